// Package protocol defines the shared vocabulary of the goldtier pipeline:
// agent roles, work items, skill outcomes, events, escalations, the error
// taxonomy, and the SQLite schema backing the event log.
package protocol

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies one of the fixed agents in the pipeline.
type Role string

// Role constants. The set is closed.
const (
	Watcher     Role = "watcher"
	Processor   Role = "processor"
	Poster      Role = "poster"
	Analyst     Role = "analyst"
	Coordinator Role = "coordinator"
)

// Roles returns every role in the fixed drain order used by a cycle.
func Roles() []Role {
	return []Role{Watcher, Processor, Poster, Analyst, Coordinator}
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	switch r {
	case Watcher, Processor, Poster, Analyst, Coordinator:
		return true
	default:
		return false
	}
}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Priority is advisory metadata carried by a work item. It never changes
// queue order.
type Priority int

// Priority levels.
const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority accepts a level name ("high") or its ordinal ("3").
// The empty string maps to PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	for p, name := range priorityNames {
		if name == s || fmt.Sprint(int(p)) == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// MarshalText encodes the priority as its lowercase name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name or ordinal.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// WorkItem is the unit routed through the pipeline. It is owned by exactly one
// queue at a time and discarded once it succeeds or is escalated.
type WorkItem struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	Payload    map[string]any `json:"payload,omitempty"`
	OriginRole *Role          `json:"origin_role,omitempty"`
	Attempt    int            `json:"attempt"`
	CreatedAt  time.Time      `json:"created_at"`
	Priority   Priority       `json:"priority"`
	NotBefore  time.Time      `json:"not_before,omitzero"`
	LastError  string         `json:"last_error,omitempty"`
}

// NewWorkItem creates a work item with a fresh ID and attempt 0.
func NewWorkItem(category string, payload map[string]any, priority Priority, now time.Time) *WorkItem {
	if priority == 0 {
		priority = PriorityMedium
	}
	return &WorkItem{
		ID:        uuid.New().String(),
		Category:  category,
		Payload:   payload,
		CreatedAt: now,
		Priority:  priority,
	}
}

// Origin returns the producing role, or "" for seed items.
func (w *WorkItem) Origin() Role {
	if w.OriginRole == nil {
		return ""
	}
	return *w.OriginRole
}

// Clone returns a copy with an independent payload map and a new ID.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.ID = uuid.New().String()
	c.Payload = maps.Clone(w.Payload)
	if w.OriginRole != nil {
		r := *w.OriginRole
		c.OriginRole = &r
	}
	return &c
}

// Outcome is what a skill returns on success: an opaque payload plus the
// categories of follow-up work it declares.
type Outcome struct {
	Payload   map[string]any `json:"payload,omitempty"`
	FollowUps []string       `json:"follow_ups,omitempty"`
}

// RoleStats is a point-in-time copy of one role's execution statistics.
type RoleStats struct {
	Role             Role          `json:"role"`
	Capabilities     []string      `json:"capabilities"`
	ItemsProcessed   int64         `json:"items_processed"`
	ItemsFailed      int64         `json:"items_failed"`
	ItemsEscalated   int64         `json:"items_escalated"`
	RetriesPerformed int64         `json:"retries_performed"`
	Executions       int64         `json:"executions"`
	AvgDuration      time.Duration `json:"avg_duration"`
	TotalDuration    time.Duration `json:"total_duration"`
	QueueDepth       int           `json:"queue_depth"`
}

// JobStatus is a point-in-time copy of a scheduled job.
type JobStatus struct {
	ID          string     `json:"id"`
	Role        Role       `json:"role"`
	Category    string     `json:"category"`
	Trigger     string     `json:"trigger"`
	Description string     `json:"description,omitempty"`
	NextFire    time.Time  `json:"next_fire"`
	LastFire    *time.Time `json:"last_fire,omitempty"`
	Enabled     bool       `json:"enabled"`
	RunCount    int        `json:"run_count"`
}

// RoleCycle holds one role's counters for a single cycle.
type RoleCycle struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Escalated int      `json:"escalated"`
	Retried   int      `json:"retried"`
	Deferred  int      `json:"deferred"`
	ItemIDs   []string `json:"item_ids,omitempty"`
}

// CycleReport aggregates the result of one orchestration cycle.
type CycleReport struct {
	Cycle          int64              `json:"cycle"`
	StartedAt      time.Time          `json:"started_at"`
	Duration       time.Duration      `json:"duration"`
	Seeded         int                `json:"seeded"`
	TotalProcessed int                `json:"total_processed"`
	TotalFailed    int                `json:"total_failed"`
	TotalEscalated int                `json:"total_escalated"`
	TotalRetried   int                `json:"total_retried"`
	TotalDropped   int                `json:"total_dropped"`
	PerRole        map[Role]RoleCycle `json:"per_role"`
}

// Status is the administrative view of the whole pipeline.
type Status struct {
	Roles            map[Role]RoleStats `json:"roles"`
	Jobs             []JobStatus        `json:"jobs"`
	CycleCount       int64              `json:"cycle_count"`
	RetriesPerformed int64              `json:"retries_performed"`
	LastCycle        *CycleReport       `json:"last_cycle,omitempty"`
}

// JobSpec describes a scheduled job to create.
type JobSpec struct {
	ID          string         `json:"id" yaml:"id" toml:"id"`
	Role        Role           `json:"role" yaml:"role" toml:"role"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
	Trigger     string         `json:"trigger" yaml:"trigger" toml:"trigger"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Priority    Priority       `json:"priority,omitempty" yaml:"priority,omitempty" toml:"priority,omitempty"`
	Payload     map[string]any `json:"payload,omitempty" yaml:"payload,omitempty" toml:"payload,omitempty"`
	Disabled    bool           `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`
}

// DefaultCategory returns the seed category a role consumes when a job does
// not name one.
func DefaultCategory(r Role) string {
	switch r {
	case Watcher:
		return "monitor"
	case Processor:
		return "process"
	case Poster:
		return "post"
	case Analyst:
		return "report"
	case Coordinator:
		return "coordinate"
	default:
		return ""
	}
}
