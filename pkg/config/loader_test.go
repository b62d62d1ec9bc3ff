package config

import (
	"os"
	"path/filepath"
	"testing"
)

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sparkd.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/sparkd.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Hostname != Default().Hostname {
		t.Errorf("expected default hostname, got %q", cfg.Hostname)
	}
}

func TestLoadValidTOML(t *testing.T) {
	content := `
hostname = "peer.example.com"
log_level = "debug"
download_dir = "/srv/spark/downloads"

[timeouts]
connect = "5s"
idle = "1h"

[metrics]
enabled = true
address = ":9999"
path = "/metrics"
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hostname != "peer.example.com" {
		t.Errorf("hostname = %q, want 'peer.example.com'", cfg.Hostname)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}
	if cfg.DownloadDir != "/srv/spark/downloads" {
		t.Errorf("download_dir = %q, want '/srv/spark/downloads'", cfg.DownloadDir)
	}
	if cfg.Timeouts.Connect != "5s" {
		t.Errorf("timeouts.connect = %q, want '5s'", cfg.Timeouts.Connect)
	}
	if !cfg.Metrics.Enabled {
		t.Errorf("expected metrics enabled")
	}
	if cfg.Metrics.Address != ":9999" {
		t.Errorf("metrics.address = %q, want ':9999'", cfg.Metrics.Address)
	}
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cfg := Default()
	f := &Flags{Hostname: "override.example.com", LogLevel: "warn", DownloadDir: "/tmp/dl", MetricsAddr: ":1234"}

	cfg = ApplyFlags(cfg, f)
	if cfg.Hostname != "override.example.com" {
		t.Errorf("hostname not overridden, got %q", cfg.Hostname)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level not overridden, got %q", cfg.LogLevel)
	}
	if cfg.DownloadDir != "/tmp/dl" {
		t.Errorf("download_dir not overridden, got %q", cfg.DownloadDir)
	}
	if cfg.Metrics.Address != ":1234" {
		t.Errorf("metrics.address not overridden, got %q", cfg.Metrics.Address)
	}
}

func TestLoadWithFlags(t *testing.T) {
	content := `
hostname = "file.example.com"
`
	path := createTempConfig(t, content)
	f := &Flags{ConfigPath: path, LogLevel: "error"}

	cfg, err := LoadWithFlags(f)
	if err != nil {
		t.Fatalf("LoadWithFlags() error = %v", err)
	}
	if cfg.Hostname != "file.example.com" {
		t.Errorf("hostname = %q, want 'file.example.com'", cfg.Hostname)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("log_level = %q, want 'error' (flag override)", cfg.LogLevel)
	}
}
