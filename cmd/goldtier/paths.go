package main

import (
	"fmt"
	"os"
	"path/filepath"

	"goldtier/pkg/config"
	"goldtier/pkg/protocol"
)

// Paths holds all resolved goldtier state file paths.
type Paths struct {
	Home       string // ~/.goldtier or GOLDTIER_HOME
	ConfigPath string // config.yaml or GOLDTIER_CONFIG
	DBPath     string // events.db or GOLDTIER_DB_PATH
	PIDPath    string // goldtier.pid or GOLDTIER_PID_PATH
	AdminAddr  string // GOLDTIER_ADMIN_ADDR, empty when unset
}

// ResolvePaths returns all goldtier paths, respecting env var overrides.
// Environment variables:
//   - GOLDTIER_HOME: base directory for all state (default: ~/.goldtier)
//   - GOLDTIER_CONFIG: config file (default: $GOLDTIER_HOME/config.yaml, or
//     config.toml when only that exists)
//   - GOLDTIER_DB_PATH: event database (default: $GOLDTIER_HOME/events.db)
//   - GOLDTIER_PID_PATH: daemon PID file (default: $GOLDTIER_HOME/goldtier.pid)
//   - GOLDTIER_ADMIN_ADDR: admin API address, overriding admin.addr
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:       home,
		ConfigPath: resolveConfigPath(home),
		DBPath:     resolvePathWithEnv("GOLDTIER_DB_PATH", home, "events.db"),
		PIDPath:    resolvePathWithEnv("GOLDTIER_PID_PATH", home, "goldtier.pid"),
		AdminAddr:  os.Getenv("GOLDTIER_ADMIN_ADDR"),
	}, nil
}

// LoadConfig reads the config file if it exists, otherwise the defaults, and
// applies path overrides. events.db_path wins over the default DB path but
// not over GOLDTIER_DB_PATH.
func (p *Paths) LoadConfig() (*config.Config, error) {
	var cfg *config.Config
	if _, err := os.Stat(p.ConfigPath); err == nil {
		cfg, err = config.Load(p.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if os.Getenv("GOLDTIER_DB_PATH") == "" && cfg.Events.DBPath != "" {
		p.DBPath = cfg.Events.DBPath
	}
	if p.AdminAddr == "" {
		p.AdminAddr = cfg.Admin.Addr
	}
	if p.AdminAddr == "" {
		p.AdminAddr = config.DefaultAdminAddr
	}
	return cfg, nil
}

func resolveHome() (string, error) {
	if v := os.Getenv("GOLDTIER_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.StateDir), nil
}

// resolveConfigPath prefers GOLDTIER_CONFIG, then an existing config.yaml,
// then an existing config.toml, then config.yaml.
func resolveConfigPath(home string) string {
	if v := os.Getenv("GOLDTIER_CONFIG"); v != "" {
		return v
	}
	yamlPath := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	tomlPath := filepath.Join(home, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	return yamlPath
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
