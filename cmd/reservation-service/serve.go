package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/config"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/httpapi"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/notify"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/reservation"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/sequence"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/telemetry"
	"github.com/SWE5001-Team-Public/queuetopia-queue/migrations"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCmd(logger *log.Logger) *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reservation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, config.Load(), logger, migrateUp)
		},
	}
	cmd.Flags().BoolVar(&migrateUp, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger *log.Logger, migrateUp bool) error {
	shutdownTracing := telemetry.Setup(ctx, cfg.ServiceName, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("business timezone: %w", err)
	}

	st, pool, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
		if migrateUp {
			applied, err := migrations.Up(ctx, pool)
			if err != nil {
				return err
			}
			logger.Printf("migrations applied=%v", applied)
		}
	}

	vocab, err := loadVocabulary(ctx, st, cfg.StatusVocabularyFile)
	if err != nil {
		return err
	}

	var allocator sequence.Allocator
	if cfg.SequenceBackend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		allocator = sequence.NewRedisAllocator(client, st, sequence.DefaultCounterTTL)
		logger.Printf("sequence backend=redis addr=%s", cfg.RedisAddr)
	}

	dispatcher := notify.NewDispatcher(
		notify.Channel{Name: "sms", Provider: notify.NewProvider(cfg.NotifyPrimaryProvider, "sms", logger)},
		notify.Channel{Name: "whatsapp", Provider: notify.NewProvider(cfg.NotifySecondaryProvider, "whatsapp", logger)},
		notify.Config{
			MaxAttempts:    cfg.NotifyMaxAttempts,
			BackoffBase:    cfg.NotifyBackoffBase,
			AttemptTimeout: cfg.NotifyAttemptTimeout,
		},
		logger,
	).WithRecorder(st)

	service := reservation.NewService(st, vocab, dispatcher, logger, reservation.Options{
		Location:           loc,
		WaitSampleSize:     cfg.WaitSampleSize,
		NotifyOnJoin:       cfg.NotifyOnJoin,
		NotifyOnRepeatCall: cfg.NotifyOnRepeatCall,
		Allocator:          allocator,
	})
	handler := httpapi.NewHandler(service, logger)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:    cfg.RateLimitPerMinute,
		IPBurst:        cfg.RateLimitBurst,
		ScopePerMinute: cfg.ScopeRateLimitPerMinute,
		ScopeBurst:     cfg.ScopeRateLimitBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, limiter.Middleware(handler.Routes())), cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10*time.Second + dispatcher.OverallTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("%s listening on %s store=%s timezone=%s", cfg.ServiceName, server.Addr, cfg.StoreBackend, loc)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	return nil
}
