package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database == "" {
		t.Fatal("expected default database path")
	}
	if cfg.Remote.Port != 22 {
		t.Fatalf("expected default port 22, got %d", cfg.Remote.Port)
	}
	if cfg.Watch.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %v", cfg.Watch.PollInterval)
	}
	if cfg.Run.MaxFailures != 3 {
		t.Fatalf("expected 3 max failures, got %d", cfg.Run.MaxFailures)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
database: /tmp/batchforge-test.db
remote:
  host: cluster.example.org
  user: alice
  port: 2222
  timeout: 1m
slurm:
  sbatch: /opt/slurm/bin/sbatch
watch:
  poll_interval: 10s
run:
  max_failures: 5
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database != "/tmp/batchforge-test.db" {
		t.Errorf("database = %q", cfg.Database)
	}
	if cfg.Remote.Host != "cluster.example.org" || cfg.Remote.Port != 2222 {
		t.Errorf("remote = %+v", cfg.Remote)
	}
	if cfg.Remote.Timeout != time.Minute {
		t.Errorf("timeout = %v", cfg.Remote.Timeout)
	}
	if cfg.Slurm.Sbatch != "/opt/slurm/bin/sbatch" {
		t.Errorf("sbatch = %q", cfg.Slurm.Sbatch)
	}
	if cfg.Watch.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v", cfg.Watch.PollInterval)
	}
	if cfg.Run.MaxFailures != 5 {
		t.Errorf("max failures = %d", cfg.Run.MaxFailures)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if !cfg.RemoteEnabled() {
		t.Error("expected remote to be enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BATCHFORGE_REMOTE_HOST", "env.example.org")
	t.Setenv("BATCHFORGE_LOG_LEVEL", "warn")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database: /tmp/env-test.db\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.Host != "env.example.org" {
		t.Errorf("remote host = %q, want env override", cfg.Remote.Host)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want env override", cfg.Log.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database", func(c *Config) { c.Database = "" }},
		{"bad port", func(c *Config) { c.Remote.Port = 70000 }},
		{"tiny poll interval", func(c *Config) { c.Watch.PollInterval = 100 * time.Millisecond }},
		{"negative max failures", func(c *Config) { c.Run.MaxFailures = -1 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
