package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"goldtier/pkg/config"
)

// newInitCmd creates the "goldtier init" subcommand.
func newInitCmd() *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long:  "Writes the built-in configuration, including the default job table, to\n$GOLDTIER_HOME/config.yaml (or config.toml with --format toml).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			path, err := initConfig(paths, format, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "config format: yaml or toml")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// initConfig renders the default config in format and writes it. Without
// GOLDTIER_CONFIG the file extension follows the format.
func initConfig(paths *Paths, format string, force bool) (string, error) {
	format = strings.ToLower(format)
	data, err := config.Render(config.Default(), format)
	if err != nil {
		return "", err
	}

	path := paths.ConfigPath
	if os.Getenv("GOLDTIER_CONFIG") == "" && format == "toml" {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".toml"
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write config %s: %w", path, err)
	}
	return path, nil
}
