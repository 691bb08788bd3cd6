package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

type Config struct {
	Port        string
	ServiceName string
	DatabaseURL string

	StoreBackend    string
	SequenceBackend string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	BusinessTimezone     string
	WaitSampleSize       int
	StatusVocabularyFile string

	NotifyPrimaryProvider   string
	NotifySecondaryProvider string
	NotifyMaxAttempts       int
	NotifyBackoffBase       time.Duration
	NotifyAttemptTimeout    time.Duration
	NotifyOnJoin            bool
	NotifyOnRepeatCall      bool

	RateLimitPerMinute      int
	RateLimitBurst          int
	ScopeRateLimitPerMinute int
	ScopeRateLimitBurst     int
}

// Load reads configuration from the environment, after merging a .env file in
// the working directory when one exists.
func Load() Config {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5015"
	}
	dsn := os.Getenv("DB_DSN")

	return Config{
		Port:        port,
		ServiceName: readString("SERVICE_NAME", "reservation-service"),
		DatabaseURL: dsn,

		StoreBackend:    readBackend("STORE_BACKEND", defaultStoreBackend(dsn), BackendPostgres, BackendMemory),
		SequenceBackend: readBackend("SEQUENCE_BACKEND", BackendPostgres, BackendPostgres, BackendRedis),
		RedisAddr:       readString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         readInt("REDIS_DB", 0),

		BusinessTimezone:     readString("BUSINESS_TIMEZONE", "UTC"),
		WaitSampleSize:       readInt("WAIT_SAMPLE_SIZE", 5),
		StatusVocabularyFile: os.Getenv("STATUS_VOCABULARY_FILE"),

		NotifyPrimaryProvider:   readString("NOTIFY_PRIMARY_PROVIDER", "log"),
		NotifySecondaryProvider: readString("NOTIFY_SECONDARY_PROVIDER", "log"),
		NotifyMaxAttempts:       readInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyBackoffBase:       time.Duration(readInt("NOTIFY_BACKOFF_BASE_MS", 500)) * time.Millisecond,
		NotifyAttemptTimeout:    readDurationSeconds("NOTIFY_ATTEMPT_TIMEOUT_SECONDS", 1),
		NotifyOnJoin:            readBool("NOTIFY_ON_JOIN", false),
		NotifyOnRepeatCall:      readBool("NOTIFY_ON_REPEAT_CALL", false),

		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		ScopeRateLimitPerMinute: readInt("SCOPE_RATE_LIMIT_PER_MIN", 600),
		ScopeRateLimitBurst:     readInt("SCOPE_RATE_LIMIT_BURST", 120),
	}
}

// Location resolves the business time zone, falling back to UTC.
func (c Config) Location() (*time.Location, error) {
	if c.BusinessTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.BusinessTimezone)
}

func defaultStoreBackend(dsn string) string {
	if dsn == "" {
		return BackendMemory
	}
	return BackendPostgres
}

func readBackend(key, fallback string, allowed ...string) string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	for _, value := range allowed {
		if raw == value {
			return value
		}
	}
	return fallback
}

func readString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
