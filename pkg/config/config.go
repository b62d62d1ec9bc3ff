// Package config provides TOML-backed configuration for sparkd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// LogLevel names the valid values for Config.LogLevel.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config is the top-level TOML document sparkd reads at startup.
type Config struct {
	Hostname    string         `toml:"hostname"`
	LogLevel    string         `toml:"log_level"`
	DownloadDir string         `toml:"download_dir"`
	Timeouts    TimeoutsConfig `toml:"timeouts"`
	Metrics     MetricsConfig  `toml:"metrics"`
}

// TimeoutsConfig holds duration strings parsed with time.ParseDuration.
type TimeoutsConfig struct {
	Connect string `toml:"connect"`
	Idle    string `toml:"idle"`
}

// MetricsConfig controls the optional Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible defaults; DownloadDir is left
// empty. DownloadDir is loaded and merged like the other fields, but the
// transfer actor does not read it: downloads are always written to the
// user's Desktop directory.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: string(LogLevelInfo),
		Timeouts: TimeoutsConfig{
			Connect: "30s",
			Idle:    "10m",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Timeouts.Connect != "" {
		if _, err := time.ParseDuration(c.Timeouts.Connect); err != nil {
			return fmt.Errorf("invalid timeouts.connect: %w", err)
		}
	}
	if c.Timeouts.Idle != "" {
		if _, err := time.ParseDuration(c.Timeouts.Idle); err != nil {
			return fmt.Errorf("invalid timeouts.idle: %w", err)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics.address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics.path is required when metrics are enabled")
		}
	}
	return nil
}

// ConnectTimeout returns Timeouts.Connect as a Duration, defaulting to 30s.
func (t TimeoutsConfig) ConnectTimeout() time.Duration {
	if t.Connect == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(t.Connect)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IdleTimeout returns Timeouts.Idle as a Duration, defaulting to 10m.
func (t TimeoutsConfig) IdleTimeout() time.Duration {
	if t.Idle == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(t.Idle)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

func isValidLogLevel(l string) bool {
	switch LogLevel(l) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}
