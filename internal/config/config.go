// Package config loads the API configuration from a TOML file with
// GREENROOM_* environment overrides. The auth signing secret is env-only
// (GREENROOM_AUTH_SECRET) and is never written to disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress   string   `toml:"ListenAddress"`
	PostgresDSN     string   `toml:"PostgresDSN"`
	BoltPath        string   `toml:"BoltPath"`
	Currency        string   `toml:"Currency"`
	RateLimitRPS    float64  `toml:"RateLimitRPS"`
	RateLimitBurst  int      `toml:"RateLimitBurst"`
	MaxBodyBytes    int64    `toml:"MaxBodyBytes"`
	TokenTTLMinutes int      `toml:"TokenTTLMinutes"`
	StreamDemo      bool     `toml:"StreamDemo"`
	OpsUsers        []string `toml:"OpsUsers"`
}

func defaults() *Config {
	return &Config{
		ListenAddress:   ":8080",
		Currency:        "USD",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		MaxBodyBytes:    1 << 20,
		TokenTTLMinutes: 1440,
		OpsUsers:        []string{},
	}
}

// Default returns the built-in configuration without consulting any file
// or environment variable.
func Default() *Config {
	return defaults()
}

// Load reads the configuration at path. A missing file is created with
// defaults first; an empty path skips the file entirely. Environment
// overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := persist(path, cfg); err != nil {
				return nil, err
			}
		} else if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	normalize(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GREENROOM_LISTEN_ADDR"); v != "" {
		cfg.ListenAddress = v
	}
	if v := os.Getenv("GREENROOM_PG_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("GREENROOM_BOLT_PATH"); v != "" {
		cfg.BoltPath = v
	}
	if v := os.Getenv("GREENROOM_CURRENCY"); v != "" {
		cfg.Currency = v
	}
	if v := os.Getenv("GREENROOM_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("GREENROOM_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("GREENROOM_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("GREENROOM_TOKEN_TTL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TokenTTLMinutes = n
		}
	}
	if v := os.Getenv("GREENROOM_STREAM_DEMO"); v != "" {
		cfg.StreamDemo = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GREENROOM_OPS_USERS"); v != "" {
		cfg.OpsUsers = splitList(v)
	}
}

func normalize(cfg *Config) {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.OpsUsers == nil {
		cfg.OpsUsers = []string{}
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress is required")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MaxBodyBytes must be positive")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("TokenTTLMinutes must be positive")
	}
	return nil
}

// IsOps reports whether a username is on the operator allowlist.
func (c *Config) IsOps(username string) bool {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return false
	}
	for _, u := range c.OpsUsers {
		if strings.ToLower(strings.TrimSpace(u)) == username {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// persist writes the configuration as TOML, creating the parent directory.
func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
