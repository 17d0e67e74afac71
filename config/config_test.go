package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.StreamIterations != 3 || cfg.SyncIterations != 10 {
		t.Errorf("iteration bounds = %d/%d", cfg.StreamIterations, cfg.SyncIterations)
	}
	if cfg.RequestTimeout() != 300*time.Second {
		t.Errorf("request timeout = %v", cfg.RequestTimeout())
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":9090"
provider = "anthropic"
log_level = "debug"
database_url = "postgres://localhost/zalus"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	// Untouched fields keep their defaults.
	if cfg.SyncIterations != 10 {
		t.Errorf("sync iterations = %d", cfg.SyncIterations)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("level = %v", level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"bad toml":        `listen_addr = `,
		"empty addr":      `listen_addr = ""`,
		"zero iterations": `stream_iterations = 0`,
		"bad level":       `log_level = "loud"`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error")
	}
}
