package main

import (
	"flag"
	"fmt"

	"github.com/pasaulais/sparkgo/pkg/logging"
	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/session"
)

// runConnect dials the given (or configured) address and stays connected
// until the process is signaled to stop.
func runConnect(args []string) error {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	cfg, positional, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	addr := cfg.Hostname
	if len(positional) > 0 {
		addr = positional[0]
	}
	if addr == "" {
		return fmt.Errorf("connect: no address given (pass one, or set hostname in the config file)")
	}

	logger := logging.For("sparkd-connect")
	ctx, stopSignals := withShutdown()
	defer stopSignals()

	maybeStartMetricsServer(ctx, cfg, logger)

	svc := session.NewService("sparkd-client")
	svc.SetCollector(newCollector(cfg))

	caller := process.Attach("sparkd-connect-caller")
	defer caller.Detach()

	connected := process.Attach("sparkd-connect-connected")
	defer connected.Detach()
	svc.Connected.Subscribe(connected.PID())

	disconnected := process.Attach("sparkd-connect-disconnected")
	defer disconnected.Detach()
	svc.Disconnected.Subscribe(disconnected.PID())

	connErr := process.Attach("sparkd-connect-error")
	defer connErr.Detach()
	svc.ConnectionError.Subscribe(connErr.PID())
	go logEvents(connErr, logger, "session")

	logger.Infof("connecting to %s", addr)
	if err := session.Connect(caller, svc.PID(), addr); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return runUntilShutdown(ctx, logger, caller, svc, connected, disconnected)
}
