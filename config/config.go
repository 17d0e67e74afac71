// Package config loads the server configuration from a TOML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the zalusd server configuration. Zero or missing fields
// fall back to the defaults from Default.
type Config struct {
	ListenAddr string `toml:"listen_addr"`

	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`

	StreamIterations int `toml:"stream_iterations"`
	SyncIterations   int `toml:"sync_iterations"`

	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	LogLevel string `toml:"log_level"`

	// DatabaseURL enables the Postgres audit trail when set.
	DatabaseURL string `toml:"database_url"`

	// Service-wide Vercel credentials, used when the session carries
	// no per-user token.
	VercelToken  string `toml:"vercel_token"`
	VercelTeamID string `toml:"vercel_team_id"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:            ":8080",
		Model:                 "claude-sonnet-4-5-20250514",
		MaxTokens:             4096,
		StreamIterations:      3,
		SyncIterations:        10,
		RequestTimeoutSeconds: 300,
		LogLevel:              "info",
	}
}

// Load reads a TOML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.StreamIterations <= 0 || c.SyncIterations <= 0 {
		return fmt.Errorf("iteration bounds must be positive")
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("request_timeout_seconds must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// RequestTimeout converts the configured seconds to a duration. Zero
// disables the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
