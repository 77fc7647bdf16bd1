package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"goldtier/pkg/protocol"
)

// seed is one parsed --seed flag.
type seed struct {
	Role     protocol.Role
	Category string
	Payload  map[string]any
}

// parseSeed parses "role[:category[:k=v,k=v]]". Integer and boolean values
// are converted; everything else stays a string.
func parseSeed(s string) (seed, error) {
	parts := strings.SplitN(s, ":", 3)
	role, err := protocol.ParseRole(parts[0])
	if err != nil {
		return seed{}, fmt.Errorf("seed %q: %w", s, err)
	}
	sd := seed{Role: role}
	if len(parts) > 1 {
		sd.Category = strings.TrimSpace(parts[1])
	}
	if sd.Category == "" {
		sd.Category = protocol.DefaultCategory(sd.Role)
	}
	if len(parts) > 2 && parts[2] != "" {
		sd.Payload = make(map[string]any)
		for _, kv := range strings.Split(parts[2], ",") {
			k, v, ok := strings.Cut(kv, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				return seed{}, fmt.Errorf("seed %q: payload entry %q is not key=value", s, kv)
			}
			sd.Payload[k] = payloadValue(strings.TrimSpace(v))
		}
	}
	return sd, nil
}

func payloadValue(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// cycleConfig holds configuration for the cycle command.
type cycleConfig struct {
	seeds   []string
	cycles  int
	asJSON  bool
	persist bool
}

// newCycleCmd creates the "goldtier cycle" subcommand.
func newCycleCmd() *cobra.Command {
	var cfg cycleConfig

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run orchestration cycles in-process",
		Long:  "Builds a pipeline in this process, seeds it with --seed items and runs\n--cycles orchestration cycles, printing each cycle report.",
		Example: `  goldtier cycle --seed watcher:monitor:source=gmail --cycles 4
  goldtier cycle --seed analyst:report:fail=1 --cycles 3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.cycles < 1 {
				return fmt.Errorf("--cycles must be at least 1")
			}
			seeds := make([]seed, 0, len(cfg.seeds))
			for _, s := range cfg.seeds {
				sd, err := parseSeed(s)
				if err != nil {
					return err
				}
				seeds = append(seeds, sd)
			}

			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}
			conf, err := paths.LoadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), conf.Log)
			opts := pipelineOpts{}
			if cfg.persist {
				opts.dbPath = paths.DBPath
			}
			p, err := buildPipeline(conf, logger, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			for _, sd := range seeds {
				item := protocol.NewWorkItem(sd.Category, sd.Payload, protocol.PriorityMedium, time.Now())
				if err := p.orch.Inject(sd.Role, item); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			for range cfg.cycles {
				report, err := p.orch.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				if err := printReport(w, report, cfg.asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&cfg.seeds, "seed", nil, "seed item as role[:category[:k=v,...]] (repeatable)")
	cmd.Flags().IntVar(&cfg.cycles, "cycles", 1, "number of cycles to run")
	cmd.Flags().BoolVar(&cfg.asJSON, "json", false, "print reports as JSON lines")
	cmd.Flags().BoolVar(&cfg.persist, "persist", false, "also write events to the SQLite event log")

	return cmd
}

// printReport writes one cycle report as a summary line plus one line per
// role that did work, or as a JSON line.
func printReport(w io.Writer, r *protocol.CycleReport, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(r)
	}
	fmt.Fprintf(w, "cycle %d: seeded=%d processed=%d failed=%d escalated=%d retried=%d dropped=%d (%s)\n",
		r.Cycle, r.Seeded, r.TotalProcessed, r.TotalFailed, r.TotalEscalated, r.TotalRetried, r.TotalDropped,
		r.Duration.Round(time.Microsecond))
	for _, role := range protocol.Roles() {
		rc, ok := r.PerRole[role]
		if !ok || (rc.Processed == 0 && rc.Failed == 0 && rc.Deferred == 0) {
			continue
		}
		fmt.Fprintf(w, "  %-12s processed=%d failed=%d escalated=%d retried=%d deferred=%d\n",
			role, rc.Processed, rc.Failed, rc.Escalated, rc.Retried, rc.Deferred)
	}
	return nil
}
