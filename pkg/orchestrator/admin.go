package orchestrator

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"goldtier/pkg/protocol"
)

// AddScheduledJob registers a scheduled job and returns its ID.
func (o *Orchestrator) AddScheduledJob(spec protocol.JobSpec) (string, error) {
	return o.sched.Add(spec)
}

// EnableJob enables a scheduled job.
func (o *Orchestrator) EnableJob(id string) error {
	return o.sched.Enable(id)
}

// DisableJob disables a scheduled job.
func (o *Orchestrator) DisableJob(id string) error {
	return o.sched.Disable(id)
}

// SyncJobs makes the job table reflect specs: unknown jobs are added and
// known jobs have their enabled flag set. Jobs missing from specs are left
// alone; jobs are never removed.
func (o *Orchestrator) SyncJobs(specs []protocol.JobSpec) error {
	var errs []error
	for _, spec := range specs {
		if spec.ID != "" {
			if _, err := o.sched.Get(spec.ID); err == nil {
				var toggle error
				if spec.Disabled {
					toggle = o.sched.Disable(spec.ID)
				} else {
					toggle = o.sched.Enable(spec.ID)
				}
				if toggle != nil {
					errs = append(errs, toggle)
				}
				continue
			}
		}
		if _, err := o.sched.Add(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Inject places item directly on role's queue. It is picked up by the next
// cycle that drains role.
func (o *Orchestrator) Inject(role protocol.Role, item *protocol.WorkItem) error {
	if item == nil {
		return fmt.Errorf("inject: nil work item")
	}
	if !role.Valid() {
		return fmt.Errorf("inject: unknown role %q", role)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = o.cfg.Now()
	}
	if item.Priority == 0 {
		item.Priority = protocol.PriorityMedium
	}
	return o.reg.Enqueue(role, item)
}

// GetStatus returns per-role and per-job statistics, the cycle count and the
// last cycle's report.
func (o *Orchestrator) GetStatus() protocol.Status {
	o.mu.RLock()
	count, last := o.cycleCount, o.last
	o.mu.RUnlock()

	return protocol.Status{
		Roles:            o.reg.Snapshot(),
		Jobs:             o.sched.Jobs(),
		CycleCount:       count,
		RetriesPerformed: o.reg.RetriesPerformed(),
		LastCycle:        last,
	}
}
