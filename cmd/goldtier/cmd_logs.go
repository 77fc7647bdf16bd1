package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"goldtier/pkg/eventlog"
	"goldtier/pkg/protocol"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	kind   string
	role   string
	item   string
	job    string
	tail   int
	follow bool
}

// followInterval is how often --follow polls for new events.
const followInterval = time.Second

// newLogsCmd creates the "goldtier logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Query and tail the event log",
		Long:  "Displays events from the SQLite event log, oldest first.\nFilters combine; --follow polls for new events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := eventlog.QueryOpts{
				Kind:   protocol.EventKind(cfg.kind),
				ItemID: cfg.item,
				JobID:  cfg.job,
				Limit:  cfg.tail,
			}
			if cfg.role != "" {
				r, err := protocol.ParseRole(cfg.role)
				if err != nil {
					return err
				}
				opts.Role = r
			}

			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			if _, err := paths.LoadConfig(); err != nil {
				return err
			}
			reader, err := eventlog.NewReader(paths.DBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer reader.Close()

			w := cmd.OutOrStdout()
			lastID, err := printLogs(cmd.Context(), reader, w, opts, 0, true)
			if err != nil {
				return err
			}
			if !cfg.follow {
				return nil
			}
			return followLogs(cmd.Context(), reader, w, opts, lastID)
		},
	}

	cmd.Flags().StringVar(&cfg.kind, "kind", "", "only events of this kind (e.g. item_escalated)")
	cmd.Flags().StringVar(&cfg.role, "role", "", "only events for this role")
	cmd.Flags().StringVar(&cfg.item, "item", "", "only events for this work item")
	cmd.Flags().StringVar(&cfg.job, "job", "", "only events for this job")
	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")

	return cmd
}

// printLogs prints matching events newer than afterID in chronological order
// and returns the highest ID printed (afterID if none).
func printLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts, afterID int64, announceEmpty bool) (int64, error) {
	events, err := r.Query(ctx, opts)
	if err != nil {
		return afterID, err
	}
	events = slices.DeleteFunc(events, func(e protocol.EventRow) bool { return e.ID <= afterID })
	if len(events) == 0 {
		if announceEmpty {
			fmt.Fprintln(w, "no events found")
		}
		return afterID, nil
	}
	slices.Reverse(events)
	for i := range events {
		formatEvent(w, &events[i])
	}
	return events[len(events)-1].ID, nil
}

func followLogs(ctx context.Context, r *eventlog.Reader, w io.Writer, opts eventlog.QueryOpts, lastID int64) error {
	opts.Limit = 100
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			id, err := printLogs(ctx, r, w, opts, lastID, false)
			if err != nil {
				return err
			}
			lastID = id
		}
	}
}

// formatEvent writes: timestamp | role | kind | item | job | message.
func formatEvent(w io.Writer, e *protocol.EventRow) {
	fmt.Fprintf(w, "%s | %-11s | %-16s | %-36s | %-18s | %s\n",
		e.CreatedAt, e.Role, e.Type, e.ItemID, e.JobID, e.Message)
}
