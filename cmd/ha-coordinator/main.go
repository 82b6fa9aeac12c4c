// SPDX-License-Identifier: MIT
// ha-coordinator is the child process spawned by ha-node: it opens the
// node-table registry, listens for one parent connection on a unix
// socket, and runs the tick-driven election loop until STOP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apimgr/ha-coordinator/internal/audit"
	"github.com/apimgr/ha-coordinator/internal/config"
	"github.com/apimgr/ha-coordinator/internal/coordinator"
	"github.com/apimgr/ha-coordinator/internal/dbexec"
	"github.com/apimgr/ha-coordinator/internal/logging"
	"github.com/apimgr/ha-coordinator/internal/wire"
)

func main() {
	configPath := flag.String("config", "ha-coordinator.yaml", "path to the node's configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ha-coordinator:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("opening logger: %w", err)
	}
	defer logger.Close()

	exec, err := dbexec.NewSQLExecutor(dbexec.Config{
		Driver:   dbexec.Driver(cfg.Database.Driver),
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
	})
	if err != nil {
		return fmt.Errorf("building database executor: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := exec.EnsureSchema(ctx); err != nil {
		logger.Warning("schema check failed, will retry from the tick loop", map[string]string{"detail": err.Error()})
	}

	ln, err := wire.Listen(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.SocketPath, err)
	}
	defer ln.Close()

	logger.Info("coordinator listening", map[string]string{"socket": cfg.SocketPath, "node_name": cfg.NodeName})

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("accepting parent connection: %w", err)
	}
	defer conn.Close()

	sink := audit.NewSink(cfg.AuditLog)
	co := coordinator.New(cfg.NodeName, int64(cfg.FailoverDelay), exec, sink, logger)

	if err := co.Loop(ctx, conn, coordinator.StatusUnknown); err != nil {
		return fmt.Errorf("coordinator loop: %w", err)
	}
	return nil
}
