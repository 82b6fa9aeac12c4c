// SPDX-License-Identifier: MIT
// ha-node is the parent process: it loads configuration, spawns the
// ha-coordinator child, tracks its status over the IPC channel, and
// serves the read-only HTTP surface (/metrics, /status).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apimgr/ha-coordinator/internal/config"
	"github.com/apimgr/ha-coordinator/internal/coordinator"
	"github.com/apimgr/ha-coordinator/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "ha-coordinator.yaml", "path to the node's configuration file")
	coordinatorPath := flag.String("coordinator-bin", "ha-coordinator", "path to the ha-coordinator binary")
	listenAddr := flag.String("http", ":9090", "address to serve /metrics and /status on")
	flag.Parse()

	if err := run(*configPath, *coordinatorPath, *listenAddr); err != nil {
		fmt.Fprintln(os.Stderr, "ha-node:", err)
		os.Exit(1)
	}
}

func run(configPath, coordinatorPath, listenAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	client := coordinator.NewClient(cfg.SocketPath)
	args := []string{"--config", configPath}
	if err := client.Start(coordinatorPath, args, nil, coordinator.StatusUnknown); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Addr: listenAddr, Handler: httpapi.New(client)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "ha-node: http server:", err)
		}
	}()

	go superviseStatus(ctx, client)

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := client.Stop(); err != nil {
		client.Kill()
		return fmt.Errorf("stopping coordinator: %w", err)
	}
	return nil
}

// superviseStatus drains the async UPDATE/HEARTBEAT stream so the
// client's heartbeat-timeout synthesis (spec section 4.4) keeps running
// even when nothing else calls RecvStatus.
func superviseStatus(ctx context.Context, client *coordinator.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := client.RecvStatus(2 * time.Second); err != nil {
			return
		}
	}
}
