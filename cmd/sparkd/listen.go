package main

import (
	"flag"
	"fmt"

	"github.com/pasaulais/sparkgo/pkg/logging"
	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/session"
)

// runListen binds the configured hostname and waits for a single
// incoming connection, logging every lifecycle event until the process
// is signaled to stop.
func runListen(args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	cfg, positional, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	addr := cfg.Hostname
	if len(positional) > 0 {
		addr = positional[0]
	}
	if addr == "" {
		return fmt.Errorf("listen: no address configured (set hostname in the config file or pass one)")
	}

	logger := logging.For("sparkd-listen")
	ctx, stopSignals := withShutdown()
	defer stopSignals()

	maybeStartMetricsServer(ctx, cfg, logger)

	svc := session.NewService("sparkd-server")
	svc.SetCollector(newCollector(cfg))

	caller := process.Attach("sparkd-listen-caller")
	defer caller.Detach()

	connected := process.Attach("sparkd-listen-connected")
	defer connected.Detach()
	svc.Connected.Subscribe(connected.PID())

	disconnected := process.Attach("sparkd-listen-disconnected")
	defer disconnected.Detach()
	svc.Disconnected.Subscribe(disconnected.PID())

	logger.Infof("binding on %s", addr)
	if err := session.Bind(caller, svc.PID(), addr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return runUntilShutdown(ctx, logger, caller, svc, connected, disconnected)
}
