package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig_ParsesBackupSettings(t *testing.T) {
	yaml := `
database:
  path: "/var/lib/inventory/database.db"
backup:
  directory: "/var/backups/inventory"
  compress: true
  verify: true
  verify_timeout: "45s"
server:
  address: "127.0.0.1:9000"
  shutdown_timeout: "3s"
schedule:
  full: "0 3 * * 0"
`
	path := writeConfig(t, t.TempDir(), "config.yaml", yaml)

	var cfg Config
	if err := cfg.Load(path); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Path != "/var/lib/inventory/database.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if !cfg.Backup.Compress || !cfg.Backup.Verify {
		t.Errorf("expected compress and verify enabled, got %+v", cfg.Backup)
	}
	if cfg.Backup.VerifyTimeout != 45*time.Second {
		t.Errorf("verify_timeout = %v, want 45s", cfg.Backup.VerifyTimeout)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("shutdown_timeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Schedule.Full != "0 3 * * 0" || cfg.Schedule.Incremental != "" {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	// untouched keys keep their defaults
	if cfg.Backup.TimestampFormat != "20060102_150405" {
		t.Errorf("timestamp_format = %q", cfg.Backup.TimestampFormat)
	}
	if got, want := cfg.LogFilePath(), filepath.Join("/var/backups/inventory", "backup_log.json"); got != want {
		t.Errorf("LogFilePath() = %q, want %q", got, want)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	var cfg Config
	if err := cfg.Load(""); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Path != "database.db" || cfg.Backup.Directory != "backups" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Server.RequestTimeout != 5*time.Minute {
		t.Errorf("server.request_timeout = %v, want 5m", cfg.Server.RequestTimeout)
	}
}

func TestLoadConfig_MergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server.yaml", `
server:
  request_timeout: "90s"
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - server.yaml
database:
  path: "app.db"
`)

	var cfg Config
	if err := cfg.Load(path); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("include was not merged, request_timeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Database.Path != "app.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("INVBACKUP_DATABASE_PATH", "/srv/env.db")

	var cfg Config
	if err := cfg.Load(""); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Path != "/srv/env.db" {
		t.Errorf("database.path = %q, want env override", cfg.Database.Path)
	}
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
backup:
  output_dir: "/tmp/backups"
`)
	var cfg Config
	err := cfg.Load(path)
	if !errors.Is(err, ErrLoadConfig) {
		t.Fatalf("expected ErrLoadConfig, got %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	var cfg Config
	err := cfg.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrLoadConfig) {
		t.Fatalf("expected ErrLoadConfig, got %v", err)
	}
}

func TestValidate_RequestTimeout(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{Path: "database.db"},
		Backup:   BackupConfig{Directory: "backups", TimestampFormat: "20060102_150405"},
	}
	if err := cfg.Validate(); !errors.Is(err, ErrValidateConfig) {
		t.Fatalf("expected ErrValidateConfig for zero request_timeout, got %v", err)
	}
	cfg.Server.RequestTimeout = time.Minute
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Backup: BackupConfig{Directory: "backups", TimestampFormat: "2006/01/02"},
	}
	err := cfg.Validate()
	if !errors.Is(err, ErrValidateConfig) {
		t.Fatalf("expected ErrValidateConfig, got %v", err)
	}
}
