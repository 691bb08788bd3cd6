package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
)

type RateLimitConfig struct {
	IPPerMinute    int
	IPBurst        int
	ScopePerMinute int
	ScopeBurst     int
}

// RateLimiter applies token buckets per client IP and per queue scope.
type RateLimiter struct {
	ipLimiter    *tokenLimiter
	scopeLimiter *tokenLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:    newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		scopeLimiter: newTokenLimiter(cfg.ScopePerMinute, cfg.ScopeBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, requestIDFrom(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		if scopeID := extractScope(r); scopeID != "" && !l.scopeLimiter.allow(scopeID) {
			writeError(w, requestIDFrom(r), http.StatusTooManyRequests, "rate_limited", "too many requests for this queue")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = minFloat(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens -= 1
	return true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// scopedRoutes carry the scope as {storeId} or {storeId}/{queueId}.
var scopedRoutes = []string{
	PathPrefix + "/reservation/wait-list/",
	PathPrefix + "/reservation/waiting-time/",
}

// extractScope returns the key of the queue scope a request targets: taken from
// the path for scope reads and from store_id and queue_id in the body for joins.
func extractScope(r *http.Request) string {
	for _, route := range scopedRoutes {
		if strings.HasPrefix(r.URL.Path, route) {
			scope, ok := parseScopePath(strings.TrimPrefix(r.URL.Path, route))
			if !ok {
				return ""
			}
			return scope.ID()
		}
	}
	if r.Method != http.MethodPost || r.Body == nil || !strings.HasSuffix(r.URL.Path, "/join") {
		return ""
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	body, err := readBody(r)
	if err != nil {
		return ""
	}
	var payload struct {
		StoreID string `json:"store_id"`
		QueueID string `json:"queue_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	scope := models.QueueScope(payload.StoreID, payload.QueueID).Normalize()
	if scope.StoreID == "" {
		return ""
	}
	return scope.ID()
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
