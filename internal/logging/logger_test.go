package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecretsAreRedacted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.With("component", "server").Info("login", "actor_id", "sam", "token", "abc", "api_key", "k")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["token"] != "[REDACTED]" || fields["api_key"] != "[REDACTED]" {
		t.Fatalf("secrets leaked: %v", fields)
	}
	if fields["actor_id"] != "sam" || fields["component"] != "server" {
		t.Fatalf("plain fields must pass through: %v", fields)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("mode %q: %v", mode, err)
		}
		l.Debug("ok")
	}
	Nop().Warn("discarded")
}
