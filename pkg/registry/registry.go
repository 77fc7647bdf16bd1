// Package registry implements AgentRegistry: the explicitly constructed map
// from role to its queue, declared capabilities, and running statistics.
package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"goldtier/pkg/protocol"
	"goldtier/pkg/queue"
)

// agent holds the mutable state of one registered role.
type agent struct {
	role         protocol.Role
	capabilities []string
	queue        *queue.RoleQueue

	processed   int64
	failed      int64
	escalated   int64
	retries     int64
	executions  int64
	avgDuration float64 // nanoseconds
	total       time.Duration
}

// Registry maps roles to their queue and statistics. Construct one per
// pipeline with New; there is no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	agents  map[protocol.Role]*agent
	retries int64
}

// New creates an empty registry. Call Register (or RegisterDefaults) before
// use.
func New() *Registry {
	return &Registry{agents: make(map[protocol.Role]*agent)}
}

// DefaultCapabilities returns the informational capability tags of each role.
func DefaultCapabilities() map[protocol.Role][]string {
	return map[protocol.Role][]string{
		protocol.Watcher:     {"gmail_monitoring", "linkedin_monitoring", "calendar_sync"},
		protocol.Processor:   {"reasoning", "data_analysis", "plan_generation"},
		protocol.Poster:      {"linkedin_posting", "email_sending", "notion_updates"},
		protocol.Analyst:     {"analytics", "reporting", "dashboard_updates"},
		protocol.Coordinator: {"task_coordination", "workflow_management", "error_handling"},
	}
}

// RegisterDefaults registers all five roles with DefaultCapabilities.
func (r *Registry) RegisterDefaults() {
	caps := DefaultCapabilities()
	for _, role := range protocol.Roles() {
		_ = r.Register(role, caps[role]...)
	}
}

// Register adds role with the given capability tags. Registering an existing
// role replaces its capabilities and keeps its queue and statistics.
func (r *Registry) Register(role protocol.Role, capabilities ...string) error {
	if !role.Valid() {
		return fmt.Errorf("register: unknown role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[role]; ok {
		a.capabilities = slices.Clone(capabilities)
		return nil
	}
	r.agents[role] = &agent{
		role:         role,
		capabilities: slices.Clone(capabilities),
		queue:        queue.New(role),
	}
	return nil
}

// QueueFor returns the queue owned by role. An unregistered role is a
// framework defect: every caller is expected to use registered roles only.
func (r *Registry) QueueFor(role protocol.Role) (*queue.RoleQueue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[role]
	if !ok {
		return nil, &protocol.FrameworkDefect{Op: "registry.QueueFor", Detail: fmt.Sprintf("role %q not registered", role)}
	}
	return a.queue, nil
}

// Enqueue places item on role's queue.
func (r *Registry) Enqueue(role protocol.Role, item *protocol.WorkItem) error {
	q, err := r.QueueFor(role)
	if err != nil {
		return err
	}
	q.Enqueue(item)
	return nil
}

// RecordOutcome counts one execution for role and folds d into the running
// mean with avg' = avg + (d - avg) / n'.
func (r *Registry) RecordOutcome(role protocol.Role, success bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[role]
	if !ok {
		return
	}
	a.executions++
	if success {
		a.processed++
	} else {
		a.failed++
	}
	a.avgDuration += (float64(d) - a.avgDuration) / float64(a.executions)
	a.total += d
}

// RecordRetry counts a re-enqueue for role and in the global counter.
func (r *Registry) RecordRetry(role protocol.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
	if a, ok := r.agents[role]; ok {
		a.retries++
	}
}

// RecordEscalation counts a terminal failure for role.
func (r *Registry) RecordEscalation(role protocol.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[role]; ok {
		a.escalated++
	}
}

// RetriesPerformed returns the pipeline-wide retry count.
func (r *Registry) RetriesPerformed() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retries
}

// Roles returns the registered roles in drain order.
func (r *Registry) Roles() []protocol.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Role, 0, len(r.agents))
	for _, role := range protocol.Roles() {
		if _, ok := r.agents[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

// Snapshot returns a copy of every role's statistics. Writers may keep
// mutating while callers read the result.
func (r *Registry) Snapshot() map[protocol.Role]protocol.RoleStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[protocol.Role]protocol.RoleStats, len(r.agents))
	for role, a := range r.agents {
		out[role] = protocol.RoleStats{
			Role:             role,
			Capabilities:     slices.Clone(a.capabilities),
			ItemsProcessed:   a.processed,
			ItemsFailed:      a.failed,
			ItemsEscalated:   a.escalated,
			RetriesPerformed: a.retries,
			Executions:       a.executions,
			AvgDuration:      time.Duration(a.avgDuration),
			TotalDuration:    a.total,
			QueueDepth:       a.queue.Size(),
		}
	}
	return out
}
