package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"goldtier/pkg/adminapi"
	"goldtier/pkg/protocol"
)

// newStatusCmd creates the "goldtier status" subcommand.
func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline state",
		Long:  "Queries the running daemon and displays per-role statistics, the job\ntable and the last cycle report.",
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
				return writeIndentedJSON(w, st)
			}
			renderStatus(w, st, isTerminal(w))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw status JSON")
	return cmd
}

// adminClient returns a client for the configured admin address.
func adminClient() (*adminapi.Client, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	if _, err := paths.LoadConfig(); err != nil {
		return nil, err
	}
	return adminapi.NewClient(paths.AdminAddr, nil), nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// statusStyles holds the styles used to render status. The zero value
// renders plain text.
type statusStyles struct {
	title  lipgloss.Style
	header lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
}

func newStatusStyles(styled bool) statusStyles {
	if !styled {
		plain := lipgloss.NewStyle()
		return statusStyles{title: plain, header: plain, ok: plain, warn: plain, muted: plain}
	}
	return statusStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header: lipgloss.NewStyle().Bold(true).Underline(true),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// renderStatus writes role, job and last-cycle sections.
func renderStatus(w io.Writer, st *protocol.Status, styled bool) {
	s := newStatusStyles(styled)

	fmt.Fprintln(w, s.title.Render(fmt.Sprintf("goldtier: %d cycles, %d retries", st.CycleCount, st.RetriesPerformed)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, s.header.Render(row("ROLE", "QUEUE", "DONE", "FAILED", "ESCALATED", "RETRIES", "AVG")))
	for _, role := range protocol.Roles() {
		rs, ok := st.Roles[role]
		if !ok {
			continue
		}
		line := row(string(role),
			fmt.Sprint(rs.QueueDepth),
			fmt.Sprint(rs.ItemsProcessed),
			fmt.Sprint(rs.ItemsFailed),
			fmt.Sprint(rs.ItemsEscalated),
			fmt.Sprint(rs.RetriesPerformed),
			rs.AvgDuration.Round(time.Microsecond).String())
		if rs.ItemsEscalated > 0 {
			line = s.warn.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	if len(st.Jobs) == 0 {
		fmt.Fprintln(w, s.muted.Render("no scheduled jobs"))
	} else {
		renderJobs(w, st.Jobs, s)
	}

	if st.LastCycle != nil {
		lc := st.LastCycle
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.header.Render("LAST CYCLE"))
		fmt.Fprintf(w, "#%d at %s: processed=%d failed=%d escalated=%d retried=%d dropped=%d (%s)\n",
			lc.Cycle, lc.StartedAt.Format(time.RFC3339), lc.TotalProcessed, lc.TotalFailed,
			lc.TotalEscalated, lc.TotalRetried, lc.TotalDropped, lc.Duration.Round(time.Microsecond))
	}
}

func renderJobs(w io.Writer, jobs []protocol.JobStatus, s statusStyles) {
	fmt.Fprintln(w, s.header.Render(row("JOB", "ROLE", "TRIGGER", "ENABLED", "RUNS", "NEXT")))
	for _, j := range jobs {
		enabled := s.ok.Render("yes")
		next := j.NextFire.Format("2006-01-02 15:04")
		if !j.Enabled {
			enabled = s.muted.Render("no")
			next = "-"
		}
		fmt.Fprintln(w, row(j.ID, string(j.Role), j.Trigger, enabled, fmt.Sprint(j.RunCount), next))
	}
}

// row pads cells into columns. Widths are measured without ANSI sequences
// so styled cells line up; a cell wider than its column keeps one space.
func row(cells ...string) string {
	widths := []int{20, 12, 20, 10, 10, 10, 12}
	var b strings.Builder
	for i, c := range cells {
		width := 12
		if i < len(widths) {
			width = widths[i]
		}
		b.WriteString(c)
		b.WriteString(strings.Repeat(" ", max(width-lipgloss.Width(c), 1)))
	}
	return strings.TrimRight(b.String(), " ")
}
