package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values that can override the config file.
type Flags struct {
	ConfigPath  string
	Hostname    string
	LogLevel    string
	DownloadDir string
	MetricsAddr string
}

// ParseFlags parses args (the command line without the program name) and
// returns the resulting Flags.
func ParseFlags(args []string) (*Flags, error) {
	fs := flag.NewFlagSet("sparkd", flag.ContinueOnError)
	f := &Flags{}

	fs.StringVar(&f.ConfigPath, "config", "./sparkd.toml", "path to configuration file")
	fs.StringVar(&f.Hostname, "hostname", "", "override configured hostname")
	fs.StringVar(&f.LogLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
	fs.StringVar(&f.DownloadDir, "download-dir", "", "override configured download directory")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "override configured metrics listen address")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Load parses a TOML configuration file and returns the Config. A missing
// file is not an error: the defaults are returned as-is, matching sparkd's
// "works with zero configuration" posture.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig Config
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return mergeConfig(cfg, fileConfig), nil
}

// ApplyFlags merges non-empty flag values into cfg, taking precedence over
// whatever the config file set.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.DownloadDir != "" {
		cfg.DownloadDir = f.DownloadDir
	}
	if f.MetricsAddr != "" {
		cfg.Metrics.Address = f.MetricsAddr
	}
	return cfg
}

// LoadWithFlags loads the config file named by f.ConfigPath, then applies
// flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DownloadDir != "" {
		dst.DownloadDir = src.DownloadDir
	}
	if src.Timeouts.Connect != "" {
		dst.Timeouts.Connect = src.Timeouts.Connect
	}
	if src.Timeouts.Idle != "" {
		dst.Timeouts.Idle = src.Timeouts.Idle
	}
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}
	return dst
}
