package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "greenroom.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":8080" || cfg.Currency != "USD" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file was not written: %v", err)
	}

	// Second load reads the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.MaxBodyBytes != cfg.MaxBodyBytes {
		t.Fatalf("reload mismatch: %+v vs %+v", again, cfg)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greenroom.toml")
	body := `
ListenAddress = ":9090"
Currency = "eur"
BoltPath = "/var/lib/greenroom/state.db"
OpsUsers = ["root", "mara"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":9090" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.Currency != "EUR" {
		t.Fatalf("currency not normalized: %q", cfg.Currency)
	}
	if !cfg.IsOps("Mara") || cfg.IsOps("theo") {
		t.Fatalf("ops allowlist broken: %+v", cfg.OpsUsers)
	}
	// File omissions keep their defaults.
	if cfg.RateLimitRPS != 20 || cfg.TokenTTLMinutes != 1440 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GREENROOM_LISTEN_ADDR", ":7070")
	t.Setenv("GREENROOM_PG_DSN", "postgres://app@db/greenroom")
	t.Setenv("GREENROOM_RATE_RPS", "5.5")
	t.Setenv("GREENROOM_STREAM_DEMO", "true")
	t.Setenv("GREENROOM_OPS_USERS", "ops1, ops2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != ":7070" || cfg.PostgresDSN != "postgres://app@db/greenroom" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.RateLimitRPS != 5.5 {
		t.Fatalf("unexpected rate: %v", cfg.RateLimitRPS)
	}
	if !cfg.StreamDemo {
		t.Fatalf("stream demo flag not applied")
	}
	if len(cfg.OpsUsers) != 2 || cfg.OpsUsers[1] != "ops2" {
		t.Fatalf("ops users not parsed: %+v", cfg.OpsUsers)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GREENROOM_MAX_BODY_BYTES", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for zero body limit")
	}
}
