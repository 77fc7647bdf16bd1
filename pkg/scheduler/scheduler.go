// Package scheduler holds the named, time-triggered jobs that seed work items
// into role queues.
//
// Due jobs are found by scanning every job on each tick. The job table is
// expected to stay at a few dozen entries; beyond that a deadline heap would
// be the better structure.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"goldtier/pkg/protocol"
)

// Enqueuer places seed items on role queues. *registry.Registry implements it.
type Enqueuer interface {
	Enqueue(role protocol.Role, item *protocol.WorkItem) error
}

// Recorder receives scheduling events. It must not block.
type Recorder interface {
	Record(ev protocol.Event)
}

// Config controls the scheduler.
type Config struct {
	PollInterval time.Duration  // default 1s
	Location     *time.Location // default time.Local
	Now          func() time.Time
	Logger       *slog.Logger
	OnFire       func(Fired) // called after each seed is enqueued
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Job is one scheduled job.
type Job struct {
	ID          string
	Role        protocol.Role
	Category    string
	Trigger     Trigger
	Description string
	Payload     map[string]any
	Priority    protocol.Priority
	NextFire    time.Time
	LastFire    *time.Time
	Enabled     bool
	RunCount    int
}

func (j *Job) status() protocol.JobStatus {
	st := protocol.JobStatus{
		ID:          j.ID,
		Role:        j.Role,
		Category:    j.Category,
		Trigger:     j.Trigger.String(),
		Description: j.Description,
		NextFire:    j.NextFire,
		Enabled:     j.Enabled,
		RunCount:    j.RunCount,
	}
	if j.LastFire != nil {
		last := *j.LastFire
		st.LastFire = &last
	}
	return st
}

// Fired reports one job firing.
type Fired struct {
	JobID string
	Role  protocol.Role
	Item  *protocol.WorkItem
}

// Scheduler owns the job table. All methods are safe for concurrent use.
type Scheduler struct {
	cfg      Config
	queues   Enqueuer
	recorder Recorder

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
}

// New creates a scheduler that enqueues onto queues. recorder may be nil.
func New(cfg Config, queues Enqueuer, recorder Recorder) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		queues:   queues,
		recorder: recorder,
		jobs:     make(map[string]*Job),
	}
}

// Add registers a job and returns its ID. An empty spec ID is generated; an
// existing ID is rejected with *protocol.DuplicateJobError.
func (s *Scheduler) Add(spec protocol.JobSpec) (string, error) {
	if !spec.Role.Valid() {
		return "", fmt.Errorf("add job %s: unknown role %q", spec.ID, spec.Role)
	}
	trig, err := ParseTrigger(spec.Trigger)
	if err != nil {
		return "", fmt.Errorf("add job %s: %w", spec.ID, err)
	}
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = "job-" + uuid.NewString()[:8]
	}
	category := spec.Category
	if category == "" {
		category = protocol.DefaultCategory(spec.Role)
	}
	priority := spec.Priority
	if priority == 0 {
		priority = protocol.PriorityMedium
	}

	now := s.cfg.Now()
	job := &Job{
		ID:          id,
		Role:        spec.Role,
		Category:    category,
		Trigger:     trig,
		Description: spec.Description,
		Payload:     maps.Clone(spec.Payload),
		Priority:    priority,
		NextFire:    trig.Next(now, nil, s.cfg.Location),
		Enabled:     !spec.Disabled,
	}

	s.mu.Lock()
	if _, ok := s.jobs[id]; ok {
		s.mu.Unlock()
		return "", &protocol.DuplicateJobError{JobID: id}
	}
	s.jobs[id] = job
	s.order = append(s.order, id)
	next := job.NextFire
	s.mu.Unlock()

	s.record(protocol.Event{
		Kind:     protocol.EventJobScheduled,
		Role:     spec.Role,
		JobID:    id,
		Category: category,
		Message:  fmt.Sprintf("%s, next fire %s", trig, next.Format(time.RFC3339)),
		At:       now,
	})
	return id, nil
}

// Enable marks a job enabled. NextFire is left unchanged, so a job that is
// re-enabled before its next fire still fires at that time.
func (s *Scheduler) Enable(id string) error {
	return s.setEnabled(id, true)
}

// Disable stops a job from firing without touching NextFire.
func (s *Scheduler) Disable(id string) error {
	return s.setEnabled(id, false)
}

func (s *Scheduler) setEnabled(id string, enabled bool) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return &protocol.JobNotFoundError{JobID: id}
	}
	changed := job.Enabled != enabled
	job.Enabled = enabled
	role := job.Role
	s.mu.Unlock()

	if !changed {
		return nil
	}
	kind := protocol.EventJobDisabled
	if enabled {
		kind = protocol.EventJobEnabled
	}
	s.record(protocol.Event{Kind: kind, Role: role, JobID: id, At: s.cfg.Now()})
	return nil
}

// Get returns the status of one job.
func (s *Scheduler) Get(id string) (protocol.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return protocol.JobStatus{}, &protocol.JobNotFoundError{JobID: id}
	}
	return job.status(), nil
}

// Jobs returns every job's status in registration order.
func (s *Scheduler) Jobs() []protocol.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.JobStatus, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].status())
	}
	return out
}

// Tick fires every enabled job whose NextFire is not after now. Each due job
// fires once per tick however many periods were missed. Seeds are enqueued
// after the job table is unlocked; enqueue failures are joined into the
// returned error and do not stop the remaining seeds.
func (s *Scheduler) Tick(now time.Time) ([]Fired, error) {
	var fired []Fired

	s.mu.Lock()
	for _, id := range s.order {
		job := s.jobs[id]
		if !job.Enabled || now.Before(job.NextFire) {
			continue
		}
		item := protocol.NewWorkItem(job.Category, maps.Clone(job.Payload), job.Priority, now)
		fireTime := now
		job.LastFire = &fireTime
		job.RunCount++
		job.NextFire = job.Trigger.Next(now, job.LastFire, s.cfg.Location)
		fired = append(fired, Fired{JobID: job.ID, Role: job.Role, Item: item})
	}
	s.mu.Unlock()

	var errs []error
	for _, f := range fired {
		if err := s.queues.Enqueue(f.Role, f.Item); err != nil {
			errs = append(errs, fmt.Errorf("fire %s: %w", f.JobID, err))
			continue
		}
		s.record(protocol.Event{
			Kind:     protocol.EventJobFired,
			Role:     f.Role,
			ItemID:   f.Item.ID,
			JobID:    f.JobID,
			Category: f.Item.Category,
			At:       now,
		})
		if s.cfg.OnFire != nil {
			s.cfg.OnFire(f)
		}
	}
	return fired, errors.Join(errs...)
}

// Run polls Tick every PollInterval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fired, err := s.Tick(s.cfg.Now())
			if err != nil {
				s.cfg.Logger.Error("scheduler tick", "error", err)
			}
			for _, f := range fired {
				s.cfg.Logger.Debug("job fired", "job", f.JobID, "role", f.Role, "item", f.Item.ID)
			}
		}
	}
}

// Location returns the zone daily and weekly triggers are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.cfg.Location
}

func (s *Scheduler) record(ev protocol.Event) {
	if s.recorder != nil {
		s.recorder.Record(ev)
	}
}
