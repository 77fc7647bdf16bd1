package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"goldtier/pkg/protocol"
)

// newJobsCmd creates the "goldtier jobs" command group.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled jobs on the running daemon",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsAddCmd(), newJobsToggleCmd(true), newJobsToggleCmd(false))
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(w, st.Jobs)
			}
			if len(st.Jobs) == 0 {
				fmt.Fprintln(w, "no scheduled jobs")
				return nil
			}
			renderJobs(w, st.Jobs, newStatusStyles(isTerminal(w)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print jobs as JSON")
	return cmd
}

func newJobsAddCmd() *cobra.Command {
	var (
		spec     protocol.JobSpec
		role     string
		priority string
	)
	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Register a scheduled job",
		Args:    cobra.NoArgs,
		Example: `  goldtier jobs add --id inbox --role watcher --trigger "every 15m" --category monitor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := protocol.ParseRole(role)
			if err != nil {
				return err
			}
			spec.Role = r
			if priority != "" {
				p, err := protocol.ParsePriority(priority)
				if err != nil {
					return err
				}
				spec.Priority = p
			}

			client, err := adminClient()
			if err != nil {
				return err
			}
			id, err := client.AddJob(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added job %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.ID, "id", "", "job id (generated when empty)")
	cmd.Flags().StringVar(&role, "role", "", "target role")
	cmd.Flags().StringVar(&spec.Category, "category", "", "seed item category (default: the role's own)")
	cmd.Flags().StringVar(&spec.Trigger, "trigger", "", `trigger: "daily HH:MM", "weekly <day> HH:MM", "hourly" or "every <duration>"`)
	cmd.Flags().StringVar(&spec.Description, "description", "", "free-form description")
	cmd.Flags().StringVar(&priority, "priority", "", "seed priority: low, medium, high or critical")
	cmd.Flags().BoolVar(&spec.Disabled, "disabled", false, "register the job disabled")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("trigger")
	return cmd
}

func newJobsToggleCmd(enable bool) *cobra.Command {
	use, short := "disable <job-id>", "Disable a scheduled job"
	if enable {
		use, short = "enable <job-id>", "Enable a scheduled job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminClient()
			if err != nil {
				return err
			}
			if enable {
				err = client.EnableJob(cmd.Context(), args[0])
			} else {
				err = client.DisableJob(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			state := "disabled"
			if enable {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s %s\n", args[0], state)
			return nil
		},
	}
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
