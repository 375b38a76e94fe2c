package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Progress.CompletionPolicy != CompletionOneWay || !cfg.Certificates.AutoIssue {
		t.Fatalf("unexpected progress defaults: %+v", cfg.Progress)
	}
	if cfg.Database.Timeout != 5*time.Second || cfg.Auth.TokenTTL != 12*time.Hour {
		t.Fatalf("durations not decoded: db=%s ttl=%s", cfg.Database.Timeout, cfg.Auth.TokenTTL)
	}
	if cfg.Events.Channel != "coursehub.events" || cfg.Certificates.ReconcileSchedule != "@every 10m" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromYAMLOverridesKeepDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("progress:\n  completion_policy: revocable\nevents:\n  redis_url: redis://localhost:6379/0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Progress.CompletionPolicy != CompletionRevocable {
		t.Fatalf("override lost: %q", cfg.Progress.CompletionPolicy)
	}
	if cfg.Server.BasePath != "/v1" || cfg.Certificates.ReconcileBatch != 100 || cfg.Events.Channel != "coursehub.events" {
		t.Fatalf("unset keys must keep defaults: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"driver", "database:\n  driver: mysql\n", "database.driver"},
		{"policy", "progress:\n  completion_policy: sometimes\n", "completion_policy"},
		{"schedule", "certificates:\n  reconcile_schedule: every now and then\n", "reconcile_schedule"},
		{"batch", "certificates:\n  reconcile_batch: -1\n", "reconcile_batch"},
		{"channel", "events:\n  redis_url: redis://x:6379\n  channel: \"\"\n", "events.channel"},
		{"logging", "logging:\n  mode: loud\n", "logging.mode"},
		{"yaml", "server: [\n", "invalid config yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	if err != nil || cfg.Logging.Mode != "prod" {
		t.Fatalf("expected defaults for an empty workspace, got %+v (%v)", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected a hint to run config init, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "coursehub.yml"), []byte("logging:\n  mode: dev\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Logging.Mode != "dev" {
		t.Fatalf("expected file config, got %+v (%v)", cfg, err)
	}
	if Path("") != "coursehub.yml" {
		t.Fatalf("unexpected default path %q", Path(""))
	}
}
