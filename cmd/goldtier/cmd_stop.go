package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStopCmd creates the "goldtier stop" subcommand.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Gracefully stop the daemon",
		Long:  "Sends SIGTERM to the daemon named in the PID file. The daemon finishes\nthe cycle in flight before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}

			switch status {
			case StatusStopped:
				fmt.Fprintln(cmd.OutOrStdout(), "goldtier is not running")
				return nil
			case StatusStale:
				fmt.Fprintln(cmd.OutOrStdout(), "removing stale PID file (process already dead)")
				return RemovePIDFile(paths.PIDPath)
			case StatusRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "sending SIGTERM to goldtier (PID %d)\n", pid)
				if err := StopDaemon(paths.PIDPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			}
			return nil
		},
	}
}
