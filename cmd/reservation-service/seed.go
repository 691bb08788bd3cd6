package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/config"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store/postgres"

	"github.com/spf13/cobra"
)

func newSeedStatusesCmd(logger *log.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-statuses",
		Short: "Upsert the status vocabulary into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := config.Load()
			if file == "" {
				file = cfg.StatusVocabularyFile
			}
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			vocab, err := loadVocabulary(ctx, postgres.NewStore(pool), file)
			if err != nil {
				return err
			}
			for _, entry := range vocab.Entries() {
				logger.Printf("status key=%s value=%s", entry.Key, entry.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML vocabulary file (defaults to STATUS_VOCABULARY_FILE or the built-in set)")
	return cmd
}
