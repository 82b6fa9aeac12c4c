// SPDX-License-Identifier: MIT
// Configuration surface. Out of scope per spec section 1: node name,
// external address/port, and log-level control, referenced only by the
// values the coordinator reads from it. Grounded on the teacher's
// src/config/config.go Load/Save/Default pattern (yaml-backed, directory
// auto-creation, env var overrides), trimmed to the fields this registry
// actually needs.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPort = 10051

// Config is the node's local configuration: identity, the database it
// coordinates over, and the initial failover delay (the ha_config table
// is authoritative once the node has registered; this is only the
// starting point and the reconnect target).
type Config struct {
	// NodeName is empty for the standalone sentinel.
	NodeName string `yaml:"node_name"`
	// Address is the externally reachable endpoint, host:port. Default
	// port is DefaultPort if omitted.
	Address string `yaml:"address"`

	FailoverDelay int  `yaml:"failover_delay"`
	AuditLog      bool `yaml:"auditlog"`

	Database DatabaseConfig `yaml:"database"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	SocketPath string `yaml:"socket_path"`
}

// DatabaseConfig mirrors dbexec.Config's shape so the yaml file and the
// execution layer agree on field names without this package importing
// dbexec (config stays a leaf dependency).
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Path     string `yaml:"path"`
}

// Default returns the built-in defaults, matching spec section 3
// (failover_delay default 60) and section 6 (default port 10051).
func Default() *Config {
	return &Config{
		FailoverDelay: 60,
		AuditLog:      true,
		LogLevel:      "warning",
		SocketPath:    "/run/ha-coordinator.sock",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "ha_node.db",
		},
	}
}

// Load reads configuration from path, falling back to Default and writing
// it out if the file doesn't exist yet — same shape as the teacher's
// config.Load (create-on-first-run, load-and-merge-with-defaults
// otherwise), simplified to a single file rather than a config+data+log
// directory triad.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := Save(cfg, path); err != nil {
			return nil, fmt.Errorf("config: writing default: %w", err)
		}
		return applyEnv(cfg), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv lets HA_NODE_NAME / HA_ADDRESS / HA_FAILOVER_DELAY override the
// file, matching the teacher's env-override convention (e.g. DOMAIN,
// HOSTNAME in src/config/config.go).
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("HA_NODE_NAME"); v != "" {
		cfg.NodeName = v
	}
	if v := os.Getenv("HA_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("HA_FAILOVER_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FailoverDelay = n
		}
	}
	return cfg
}

// SplitAddress parses Address into host and port, defaulting the port to
// DefaultPort when absent, per spec section 6.
func (c *Config) SplitAddress() (host string, port int, err error) {
	if c.Address == "" {
		return "", DefaultPort, nil
	}
	h, p, err := net.SplitHostPort(c.Address)
	if err != nil {
		// No port supplied.
		return c.Address, DefaultPort, nil
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("config: invalid port %q: %w", p, err)
	}
	return h, n, nil
}

// IsStandalone reports whether this node runs unnamed (the sentinel mode).
func (c *Config) IsStandalone() bool {
	return strings.TrimSpace(c.NodeName) == ""
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[:i]
}
