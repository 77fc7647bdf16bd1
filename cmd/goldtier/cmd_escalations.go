package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"goldtier/pkg/eventlog"
	"goldtier/pkg/protocol"
)

// newEscalationsCmd creates the "goldtier escalations" subcommand.
func newEscalationsCmd() *cobra.Command {
	var (
		status string
		limit  int
		ack    int64
	)

	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "List or acknowledge escalated work items",
		Long:  "Lists escalations from the event log, newest first.\nWith --ack, marks one pending escalation as acknowledged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if _, err := paths.LoadConfig(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if ack > 0 {
				db, err := eventlog.OpenDB(paths.DBPath)
				if err != nil {
					return fmt.Errorf("open event log: %w", err)
				}
				defer db.Close()
				if err := eventlog.AckEscalation(cmd.Context(), db, ack); err != nil {
					return err
				}
				fmt.Fprintf(w, "acknowledged escalation %d\n", ack)
				return nil
			}

			if status == "all" {
				status = ""
			}
			reader, err := eventlog.NewReader(paths.DBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer reader.Close()

			rows, err := reader.Escalations(cmd.Context(), status, limit)
			if err != nil {
				return err
			}
			printEscalations(w, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "pending", "pending, acked or all")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.Flags().Int64Var(&ack, "ack", 0, "acknowledge the escalation with this id")

	return cmd
}

func printEscalations(w io.Writer, rows []protocol.EscalationRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no escalations")
		return
	}
	for _, e := range rows {
		fmt.Fprintf(w, "%-5d %s %-8s %s\n",
			e.ID, e.CreatedAt, e.Status,
			protocol.FormatEscalation(protocol.EscalationType(e.Type), e.ItemID,
				fmt.Sprintf("%s/%s after %d attempts", e.Role, e.Category, e.Attempt), e.Reason))
	}
}
