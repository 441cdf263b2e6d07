package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Fallback  FallbackConfig  `yaml:"fallback" envPrefix:"FALLBACK_"`
	Legacy    LegacyConfig    `yaml:"legacy" envPrefix:"LEGACY_"`
	Queue     QueueConfig     `yaml:"queue" envPrefix:"QUEUE_"`
	Migration MigrationConfig `yaml:"migration" envPrefix:"MIGRATION_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port int    `yaml:"port" env:"PORT"` // default 7117
	Host string `yaml:"host" env:"HOST"` // default "127.0.0.1"
}

type StoreConfig struct {
	Type        string        `yaml:"type" env:"TYPE"`                 // "bolt", "sqlite", "memory" or "none"
	DataDir     string        `yaml:"data_dir" env:"DATA_DIR"`         // default "~/.inkwell/data"
	OpenTimeout time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"` // default 1s
}

type FallbackConfig struct {
	Path       string `yaml:"path" env:"PATH"`               // default DataDir + "/fallback.json"
	QuotaBytes int    `yaml:"quota_bytes" env:"QUOTA_BYTES"` // default 5 MiB
}

type LegacyConfig struct {
	Path string `yaml:"path" env:"PATH"` // default: the fallback path
}

type QueueConfig struct {
	SlowOpThreshold time.Duration `yaml:"slow_op_threshold" env:"SLOW_OP_THRESHOLD"` // default 2s
}

type MigrationConfig struct {
	// MarkCompleteOnFailure writes the sentinel even when some legacy keys
	// could not be copied, so migration is never retried.
	MarkCompleteOnFailure bool `yaml:"mark_complete_on_failure" env:"MARK_COMPLETE_ON_FAILURE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // default "info"
	Format string `yaml:"format" env:"FORMAT"` // "console" or "json"
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7117,
			Host: "127.0.0.1",
		},
		Store: StoreConfig{
			Type:        "bolt",
			DataDir:     defaultDataDir(),
			OpenTimeout: time.Second,
		},
		Fallback: FallbackConfig{
			QuotaBytes: 5 << 20,
		},
		Queue: QueueConfig{
			SlowOpThreshold: 2 * time.Second,
		},
		Migration: MigrationConfig{
			MarkCompleteOnFailure: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ServerAddress returns the listen address in "host:port" format.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StorePath returns the durable store file for the configured backend.
func (c *Config) StorePath() string {
	if c.Store.Type == "sqlite" {
		return filepath.Join(c.Store.DataDir, "inkwell.sqlite")
	}
	return filepath.Join(c.Store.DataDir, "inkwell.db")
}

// FallbackPath returns the fallback store file.
func (c *Config) FallbackPath() string {
	if c.Fallback.Path != "" {
		return c.Fallback.Path
	}
	return filepath.Join(c.Store.DataDir, "fallback.json")
}

// LegacyPath returns the file older releases stored data in. It is the
// fallback file unless configured otherwise.
func (c *Config) LegacyPath() string {
	if c.Legacy.Path != "" {
		return c.Legacy.Path
	}
	return c.FallbackPath()
}

// defaultDataDir resolves the default data directory.
// It uses os.UserHomeDir() + "/.inkwell/data", falling back to
// "/tmp/inkwell/data" if the home directory cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "inkwell", "data")
	}
	return filepath.Join(home, ".inkwell", "data")
}
