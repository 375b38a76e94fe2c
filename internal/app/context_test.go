package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"coursehub/internal/config"
	"coursehub/internal/migrate"
)

func TestOpenCreatesAndMigratesWorkspaceDB(t *testing.T) {
	dir := t.TempDir()
	ac, err := Open(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ac.Close()

	if _, err := os.Stat(filepath.Join(dir, ".coursehub", "coursehub.db")); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
	v, err := migrate.Version(ac.DB)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 1 {
		t.Fatalf("expected migrations applied, got version %d", v)
	}
	if ac.Config.Progress.CompletionPolicy != config.CompletionOneWay {
		t.Fatalf("expected default completion policy, got %q", ac.Config.Progress.CompletionPolicy)
	}
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "progress:\n  completion_policy: revocable\n"
	if err := os.WriteFile(config.Path(dir), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	ac, err := Open(context.Background(), dir, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ac.Close()
	if ac.Engine.Config.Progress.CompletionPolicy != config.CompletionRevocable {
		t.Fatalf("expected revocable policy, got %q", ac.Engine.Config.Progress.CompletionPolicy)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	if _, err := Open(context.Background(), t.TempDir(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
