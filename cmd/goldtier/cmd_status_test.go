package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"goldtier/pkg/protocol"
)

func TestRenderStatus_Plain(t *testing.T) {
	last := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	st := &protocol.Status{
		Roles: map[protocol.Role]protocol.RoleStats{
			protocol.Watcher: {Role: protocol.Watcher, ItemsProcessed: 4, QueueDepth: 1},
			protocol.Poster:  {Role: protocol.Poster, ItemsFailed: 3, ItemsEscalated: 1, RetriesPerformed: 2},
		},
		Jobs: []protocol.JobStatus{
			{ID: "daily_sync", Role: protocol.Watcher, Trigger: "daily 09:00", Enabled: true, RunCount: 2, NextFire: last.Add(24 * time.Hour)},
			{ID: "hourly_check", Role: protocol.Watcher, Trigger: "hourly", Enabled: false},
		},
		CycleCount:       7,
		RetriesPerformed: 2,
		LastCycle:        &protocol.CycleReport{Cycle: 7, StartedAt: last, TotalProcessed: 4, TotalEscalated: 1},
	}

	var buf bytes.Buffer
	renderStatus(&buf, st, false)
	out := buf.String()

	for _, want := range []string{
		"goldtier: 7 cycles, 2 retries",
		"ROLE",
		"watcher",
		"poster",
		"daily_sync",
		"2026-03-03 09:00",
		"hourly_check",
		"#7 at 2026-03-02T09:00:00Z: processed=4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain rendering must not contain ANSI escapes")
	}
	if strings.Contains(out, "analyst") {
		t.Error("roles absent from the snapshot should not be listed")
	}
}

func TestRow_Columns(t *testing.T) {
	got := row("a", "b")
	if got != "a"+strings.Repeat(" ", 19)+"b" {
		t.Errorf("row = %q", got)
	}
	long := strings.Repeat("x", 25)
	if got := row(long, "b"); got != long+" b" {
		t.Errorf("overflowing cell = %q", got)
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}
