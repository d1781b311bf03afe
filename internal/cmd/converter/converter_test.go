package converter

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("converter", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8090 {
		t.Fatalf("expected default port 8090, got %d", cfg.Port)
	}
	if cfg.DBPath != "data/converter.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.GameDBPath != "data/game.db" {
		t.Fatalf("expected default game db path, got %q", cfg.GameDBPath)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected 1s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("converter", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-port", "9090",
		"-db-path", "/tmp/conv.db",
		"-game-db-path", "/tmp/game.db",
		"-model", "gpt-4.1-mini",
		"-poll-interval", "250ms",
		"-max-attempts", "5",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/conv.db" {
		t.Fatalf("expected db path override, got %q", cfg.DBPath)
	}
	if cfg.GameDBPath != "/tmp/game.db" {
		t.Fatalf("expected game db path override, got %q", cfg.GameDBPath)
	}
	if cfg.OpenAIModel != "gpt-4.1-mini" {
		t.Fatalf("expected model override, got %q", cfg.OpenAIModel)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected poll interval override, got %s", cfg.PollInterval)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.MaxAttempts)
	}
}
