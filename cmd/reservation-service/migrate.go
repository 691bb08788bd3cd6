package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/config"
	"github.com/SWE5001-Team-Public/queuetopia-queue/migrations"

	"github.com/spf13/cobra"
)

func newMigrateCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			pool, err := openPool(ctx, config.Load())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Up(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				logger.Printf("migrations up to date")
				return nil
			}
			for _, name := range applied {
				logger.Printf("migration applied name=%s", name)
			}
			return nil
		},
	}
}
