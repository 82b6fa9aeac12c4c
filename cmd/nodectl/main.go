// SPDX-License-Identifier: MIT
// nodectl is an operator tool: it attaches to a running coordinator's
// unix socket and renders a live cluster table, or performs a single
// admin action and exits, grounded on the teacher's client/cmd CLI
// commands (src/client/cmd/root.go) but driving the coordinator wire
// protocol instead of an HTTP API client.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/apimgr/ha-coordinator/internal/config"
	"github.com/apimgr/ha-coordinator/internal/coordinator"
	"github.com/apimgr/ha-coordinator/internal/tui"
)

func main() {
	configPath := flag.String("config", "ha-coordinator.yaml", "path to the node's configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nodectl:", err)
		os.Exit(1)
	}

	client, err := coordinator.Attach(cfg.SocketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nodectl:", err)
		os.Exit(1)
	}
	defer client.Close()

	args := flag.Args()
	if len(args) == 0 {
		if err := runTUI(client); err != nil {
			fmt.Fprintln(os.Stderr, "nodectl:", err)
			os.Exit(1)
		}
		return
	}

	if err := runCommand(client, args); err != nil {
		fmt.Fprintln(os.Stderr, "nodectl:", err)
		os.Exit(1)
	}
}

func runTUI(client *coordinator.Client) error {
	p := tea.NewProgram(tui.New(client), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func runCommand(client *coordinator.Client, args []string) error {
	switch args[0] {
	case "list":
		nodes, err := client.GetNodes()
		if err != nil {
			return err
		}
		for _, n := range nodes {
			fmt.Printf("%-14s %-11s lastaccess=%d address=%s\n", n.Name, n.StatusText, n.LastAccess, n.Address)
		}
		return nil
	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: nodectl remove <index>")
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[1], err)
		}
		return client.RemoveNode(idx)
	case "set-failover-delay":
		if len(args) != 2 {
			return fmt.Errorf("usage: nodectl set-failover-delay <seconds>")
		}
		delay, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid delay %q: %w", args[1], err)
		}
		return client.SetFailoverDelay(delay)
	default:
		return fmt.Errorf("unknown command %q (expected list, remove, set-failover-delay)", args[0])
	}
}
