package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"todoapi/internal/config"
	"todoapi/internal/db"
	"todoapi/internal/repo"
	"todoapi/internal/store"
)

func TestNewLoggerJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info().Msg("dropped")
	logger.Warn().Str("k", "v").Msg("kept")
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected a single json line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "kept" || entry["k"] != "v" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"
	if _, err := NewLogger(&bytes.Buffer{}, cfg); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestOpenStoreMemory(t *testing.T) {
	s, closeFn, err := OpenStore(context.Background(), config.Default(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*store.Memory); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.Workspace = t.TempDir()
	ctx := context.Background()
	s, closeFn, err := OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := s.(repo.Repo); !ok {
		t.Fatalf("expected sqlite repo, got %T", s)
	}
	created, err := s.Create(ctx, "persist me")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(db.Path(cfg.Store.Workspace)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}

	reopened, closeAgain, err := OpenStore(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeAgain()
	got, err := reopened.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("todo lost across reopen: %v", err)
	}
	if got.Title != "persist me" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "redis"
	if _, _, err := OpenStore(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
