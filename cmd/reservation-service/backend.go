package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/config"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store/memory"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store/postgres"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/vocabulary"

	"github.com/jackc/pgx/v5/pgxpool"
)

type backend interface {
	store.ReservationStore
	store.StatusStore
	store.NotificationLog
}

var errMissingDSN = errors.New("DB_DSN is required for the postgres backend")

func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errMissingDSN
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}

// openBackend returns the configured store and its pool. The pool is nil
// for the memory backend.
func openBackend(ctx context.Context, cfg config.Config, logger *log.Logger) (backend, *pgxpool.Pool, error) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Printf("store backend=memory; reservations are lost on restart")
		return memory.NewStore(), nil, nil
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool, nil
}

// loadVocabulary seeds the configured status entries and reads back what the
// store holds, so manually added rows are honoured too.
func loadVocabulary(ctx context.Context, st store.StatusStore, path string) (*vocabulary.Vocabulary, error) {
	entries, err := vocabulary.Load(path)
	if err != nil {
		return nil, err
	}
	if err := st.SeedStatuses(ctx, entries); err != nil {
		return nil, fmt.Errorf("seed statuses: %w", err)
	}
	stored, err := st.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	vocab := vocabulary.New(stored)
	if !vocab.Contains(models.StatusWaiting) {
		return nil, fmt.Errorf("status vocabulary has no %q entry", models.StatusWaiting)
	}
	return vocab, nil
}
