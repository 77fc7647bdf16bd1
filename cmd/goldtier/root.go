package main

import (
	"fmt"

	"goldtier/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root goldtier command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "goldtier",
		Short:         "Multi-agent task routing and scheduling",
		Long:          "goldtier routes work items between five agent roles, runs scheduled\njobs and escalates failures that cannot be retried.",
		Version:       fmt.Sprintf("goldtier %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newCycleCmd(),
		newStopCmd(),
		newStatusCmd(),
		newJobsCmd(),
		newLogsCmd(),
		newEscalationsCmd(),
	)

	return cmd
}
