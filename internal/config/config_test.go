package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error writing %s: %v", path, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	if cfg.ServerAddress() != "127.0.0.1:7117" {
		t.Errorf("expected 127.0.0.1:7117, got %s", cfg.ServerAddress())
	}
	if cfg.Fallback.QuotaBytes != 5<<20 {
		t.Errorf("expected 5 MiB quota, got %d", cfg.Fallback.QuotaBytes)
	}
	if !cfg.Migration.MarkCompleteOnFailure {
		t.Error("expected best-effort-once migration by default")
	}
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.DataDir = "/data"

	if got := cfg.StorePath(); got != "/data/inkwell.db" {
		t.Errorf("expected /data/inkwell.db, got %s", got)
	}
	cfg.Store.Type = "sqlite"
	if got := cfg.StorePath(); got != "/data/inkwell.sqlite" {
		t.Errorf("expected /data/inkwell.sqlite, got %s", got)
	}
	if got := cfg.LegacyPath(); got != "/data/fallback.json" {
		t.Errorf("expected legacy path to default to the fallback file, got %s", got)
	}
	cfg.Legacy.Path = "/old/store.json"
	if got := cfg.LegacyPath(); got != "/old/store.json" {
		t.Errorf("expected /old/store.json, got %s", got)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "inkwell.yaml", `
server:
  port: 9000
store:
  type: sqlite
  open_timeout: 3s
queue:
  slow_op_threshold: 500ms
migration:
  mark_complete_on_failure: false
log:
  level: debug
`)
	t.Setenv("INKWELL_SERVER_HOST", "0.0.0.0")
	t.Setenv("INKWELL_FALLBACK_QUOTA_BYTES", "1024")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error on Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host from env, got %s", cfg.Server.Host)
	}
	if cfg.Store.Type != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Store.Type)
	}
	if cfg.Store.OpenTimeout != 3*time.Second {
		t.Errorf("expected 3s open timeout, got %s", cfg.Store.OpenTimeout)
	}
	if cfg.Queue.SlowOpThreshold != 500*time.Millisecond {
		t.Errorf("expected 500ms threshold, got %s", cfg.Queue.SlowOpThreshold)
	}
	if cfg.Migration.MarkCompleteOnFailure {
		t.Error("expected mark_complete_on_failure=false from file")
	}
	if cfg.Fallback.QuotaBytes != 1024 {
		t.Errorf("expected quota from env, got %d", cfg.Fallback.QuotaBytes)
	}
	// Untouched sections keep their defaults.
	if cfg.Log.Format != "console" {
		t.Errorf("expected default log format, got %s", cfg.Log.Format)
	}
}

func TestLoadConfigEnvVar(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.yaml", "store:\n  type: memory\n")
	t.Setenv("INKWELL_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error on Load: %v", err)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("expected memory from INKWELL_CONFIG file, got %s", cfg.Store.Type)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(""); err != nil {
		t.Errorf("expected a missing default file to be ignored, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an explicit missing file to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown store", func(c *Config) { c.Store.Type = "postgres" }, "store.type"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"negative quota", func(c *Config) { c.Fallback.QuotaBytes = -1 }, "quota_bytes"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		cfg := DefaultConfig()
		cfg.Log.Format = format
		logger, err := cfg.NewLogger()
		if err != nil {
			t.Fatalf("unexpected error building %s logger: %v", format, err)
		}
		logger.Sync()
	}
}
