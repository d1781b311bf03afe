package game

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Addr != "" {
		t.Fatalf("expected empty addr, got %q", cfg.Addr)
	}
}

func TestParseConfigEnv(t *testing.T) {
	t.Setenv("MPG_GAME_PORT", "8181")
	t.Setenv("MPG_GAME_ADDR", "0.0.0.0:8181")
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8181 {
		t.Fatalf("expected env port 8181, got %d", cfg.Port)
	}
	if cfg.Addr != "0.0.0.0:8181" {
		t.Fatalf("expected env addr, got %q", cfg.Addr)
	}
}

func TestParseConfigFlagsBeatEnv(t *testing.T) {
	t.Setenv("MPG_GAME_PORT", "8181")
	fs := flag.NewFlagSet("game", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9001", "-addr", "127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("expected flag port 9001, got %d", cfg.Port)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected flag addr, got %q", cfg.Addr)
	}
}
