// Command sparkd is the CLI bootstrap: parse flags, load config, wire up
// logging and metrics, and run a session in either listen or connect mode.
// Deliberately thin; the interesting behavior lives in pkg/session and
// pkg/transfer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pasaulais/sparkgo/pkg/config"
	"github.com/pasaulais/sparkgo/pkg/logging"
	"github.com/pasaulais/sparkgo/pkg/metrics"
	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "listen":
		err = runListen(args)
	case "connect":
		err = runConnect(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "sparkd:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sparkd <listen|connect> --config <path> [address]")
}

// loadConfig parses the subcommand's flags (just --config plus the
// overrides config.Flags already knows about) and returns the merged
// config along with the leftover positional arguments.
func loadConfig(fs *flag.FlagSet, args []string) (config.Config, []string, error) {
	f := &config.Flags{}
	fs.StringVar(&f.ConfigPath, "config", "./sparkd.toml", "path to configuration file")
	fs.StringVar(&f.Hostname, "hostname", "", "override configured hostname")
	fs.StringVar(&f.LogLevel, "log-level", "", "override configured log level (debug, info, warn, error)")
	fs.StringVar(&f.DownloadDir, "download-dir", "", "override configured download directory")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "override configured metrics listen address")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, err
	}

	cfg, err := config.LoadWithFlags(f)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, fs.Args(), nil
}

// newCollector builds the metrics.Collector the session should record
// against: a real Prometheus collector registered on the default registry
// when metrics are enabled, a NoopCollector otherwise.
func newCollector(cfg config.Config) metrics.Collector {
	if !cfg.Metrics.Enabled {
		return &metrics.NoopCollector{}
	}
	return metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
}

// withShutdown returns a context canceled on SIGINT/SIGTERM, and the stop
// function that should be deferred to release the signal.Notify channel.
func withShutdown() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// maybeStartMetricsServer starts the /metrics HTTP endpoint in the
// background when configured, and does nothing otherwise. The server stops
// when ctx is canceled.
func maybeStartMetricsServer(ctx context.Context, cfg config.Config, logger logging.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	srv := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path)
	go func() {
		logger.Infof("metrics endpoint listening on %s%s", cfg.Metrics.Address, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()
}

// logEvents drains sub until its mailbox is closed (by Detach), logging
// each message's tag under label as it arrives.
func logEvents(sub *process.Context, logger logging.Logger, label string) {
	for {
		m, err := sub.Receive()
		if err != nil {
			return
		}
		logger.Infof("%s: %s", label, m.Tag)
	}
}

// runUntilShutdown logs connection lifecycle events in the background and
// blocks until ctx is canceled (SIGINT/SIGTERM), then tears the session
// down gracefully.
func runUntilShutdown(ctx context.Context, logger logging.Logger, caller *process.Context, svc *session.Service, connected, disconnected *process.Context) error {
	go logEvents(connected, logger, "session")
	go logEvents(disconnected, logger, "session")

	<-ctx.Done()
	logger.Info("shutting down")

	if err := session.Stop(caller, svc.PID()); err != nil {
		return fmt.Errorf("stopping session: %w", err)
	}
	return nil
}
