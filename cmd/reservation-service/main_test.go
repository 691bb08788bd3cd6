package main

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/config"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store/memory"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "migrate", "seed-statuses"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}
	if root.Flags().Lookup("migrate") == nil {
		t.Fatalf("root command should accept the serve flags")
	}
}

func TestOpenBackendMemory(t *testing.T) {
	var logs bytes.Buffer
	st, pool, err := openBackend(context.Background(), config.Config{StoreBackend: config.BackendMemory}, log.New(&logs, "", 0))
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	if pool != nil || st == nil {
		t.Fatalf("expected memory store without pool")
	}
}

func TestOpenPoolRequiresDSN(t *testing.T) {
	if _, err := openPool(context.Background(), config.Config{}); err != errMissingDSN {
		t.Fatalf("expected errMissingDSN, got %v", err)
	}
}

func TestLoadVocabularySeedsStore(t *testing.T) {
	st := memory.NewStore()
	vocab, err := loadVocabulary(context.Background(), st, "")
	if err != nil {
		t.Fatalf("load vocabulary: %v", err)
	}
	for _, status := range []string{models.StatusWaiting, models.StatusCalled, models.StatusServed, models.StatusCancelled} {
		if !vocab.Contains(status) {
			t.Fatalf("missing status %s", status)
		}
	}
	stored, err := st.ListStatuses(context.Background())
	if err != nil || len(stored) != vocab.Len() {
		t.Fatalf("stored=%d vocab=%d err=%v", len(stored), vocab.Len(), err)
	}
}
