// Package orchestrator drives the pipeline: each cycle seeds due scheduled
// jobs, drains every role queue once in a fixed order, executes the drained
// items and routes, retries or escalates each result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"goldtier/pkg/eventlog"
	"goldtier/pkg/metrics"
	"goldtier/pkg/protocol"
	"goldtier/pkg/registry"
	"goldtier/pkg/retry"
	"goldtier/pkg/router"
	"goldtier/pkg/scheduler"
	"goldtier/pkg/skills"
)

// Config holds orchestrator configuration.
type Config struct {
	CycleInterval time.Duration // default 5m
	RetryDelay    time.Duration // minimum gap before a cycle that runs retries; default 2s, negative disables
	Logger        *slog.Logger
	Now           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = 5 * time.Minute
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = protocol.DefaultRetryDelay
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Orchestrator owns one pipeline. Cycles never overlap: concurrent RunCycle
// callers share the result of the cycle already in flight.
type Orchestrator struct {
	cfg      Config
	reg      *registry.Registry
	sched    *scheduler.Scheduler
	skills   skills.SkillInvoker
	recorder eventlog.Recorder
	metrics  *metrics.Metrics
	router   *router.Router
	policy   retry.Policy

	flight singleflight.Group

	mu         sync.RWMutex
	cycleCount int64
	last       *protocol.CycleReport
}

// New wires an orchestrator. sched, invoker, recorder and m may be nil: an
// empty scheduler, the default skills, a no-op recorder and no metrics are
// used instead.
func New(cfg Config, reg *registry.Registry, sched *scheduler.Scheduler, invoker skills.SkillInvoker, recorder eventlog.Recorder, m *metrics.Metrics) *Orchestrator {
	cfg = cfg.withDefaults()
	if recorder == nil {
		recorder = eventlog.Nop{}
	}
	if sched == nil {
		sched = scheduler.New(scheduler.Config{Now: cfg.Now, Logger: cfg.Logger}, reg, recorder)
	}
	if invoker == nil {
		invoker = skills.Defaults()
	}
	return &Orchestrator{
		cfg:      cfg,
		reg:      reg,
		sched:    sched,
		skills:   invoker,
		recorder: recorder,
		metrics:  m,
		router:   router.New(reg, recorder).WithClock(cfg.Now),
		policy:   retry.Policy{MaxAttempts: protocol.MaxAttempts},
	}
}

// RunCycle runs one orchestration cycle, or joins the one in flight. It
// returns an error only for a *protocol.FrameworkDefect; item failures are
// reported in the CycleReport. Cancelling ctx does not interrupt a cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (*protocol.CycleReport, error) {
	v, err, _ := o.flight.Do("cycle", func() (any, error) {
		return o.runCycle(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*protocol.CycleReport), nil
}

// RunCycleNow is the manual trigger used by the admin surface. It obeys the
// same single-flight guard as RunCycle.
func (o *Orchestrator) RunCycleNow(ctx context.Context) (*protocol.CycleReport, error) {
	return o.RunCycle(ctx)
}

// Run cycles immediately and then every CycleInterval until ctx is done.
// Cancellation is honored between cycles only.
func (o *Orchestrator) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		report, err := o.RunCycle(ctx)
		if err != nil {
			return err
		}
		timer.Reset(o.nextWait(report))
	}
}

// nextWait is the pause before the next loop cycle. Retried items run in the
// next cycle, which never starts sooner than RetryDelay.
func (o *Orchestrator) nextWait(report *protocol.CycleReport) time.Duration {
	if report != nil && report.TotalRetried > 0 && o.cfg.RetryDelay > o.cfg.CycleInterval {
		return o.cfg.RetryDelay
	}
	return o.cfg.CycleInterval
}

// pending is an item to put back on a queue once the drain pass is over.
type pending struct {
	role protocol.Role
	item *protocol.WorkItem
}

func (o *Orchestrator) runCycle(ctx context.Context) (*protocol.CycleReport, error) {
	started := time.Now()
	now := o.cfg.Now()

	o.mu.RLock()
	number := o.cycleCount + 1
	o.mu.RUnlock()

	report := &protocol.CycleReport{
		Cycle:     number,
		StartedAt: now,
		PerRole:   make(map[protocol.Role]protocol.RoleCycle),
	}
	o.recorder.Record(protocol.Event{Kind: protocol.EventCycleStarted, Message: fmt.Sprintf("cycle %d", number), At: now})

	// Step 1: seed due jobs.
	fired, err := o.sched.Tick(now)
	if err != nil {
		var defect *protocol.FrameworkDefect
		if errors.As(err, &defect) {
			return nil, err
		}
		o.cfg.Logger.Error("seed scheduled jobs", "error", err)
	}
	report.Seeded = len(fired)

	// Step 2: drain each role once. Retries and deferred items go back on
	// their queue after the pass so none of them runs twice in one cycle.
	var later []pending
	for _, role := range o.reg.Roles() {
		q, err := o.reg.QueueFor(role)
		if err != nil {
			return nil, err
		}
		rc := protocol.RoleCycle{}
		for _, item := range q.DrainAll() {
			if item == nil {
				return nil, &protocol.FrameworkDefect{Op: "orchestrator.drain", Detail: fmt.Sprintf("nil work item in %s queue", role)}
			}
			requeue, err := o.handle(ctx, role, item, &rc, report)
			if err != nil {
				return nil, err
			}
			if requeue {
				later = append(later, pending{role: role, item: item})
			}
		}
		report.PerRole[role] = rc
	}
	for _, p := range later {
		if err := o.reg.Enqueue(p.role, p.item); err != nil {
			return nil, err
		}
	}

	// Step 3: aggregate.
	for _, rc := range report.PerRole {
		report.TotalProcessed += rc.Processed
		report.TotalFailed += rc.Failed
		report.TotalEscalated += rc.Escalated
		report.TotalRetried += rc.Retried
	}
	report.Duration = time.Since(started)

	for role, stats := range o.reg.Snapshot() {
		o.metrics.QueueDepth(role, stats.QueueDepth)
	}
	o.metrics.CycleCompleted(report.Duration)

	o.mu.Lock()
	o.cycleCount = number
	o.last = report
	o.mu.Unlock()

	summary := fmt.Sprintf("cycle %d: processed=%d failed=%d escalated=%d retried=%d dropped=%d",
		number, report.TotalProcessed, report.TotalFailed, report.TotalEscalated, report.TotalRetried, report.TotalDropped)
	o.recorder.Record(protocol.Event{Kind: protocol.EventCycleCompleted, Message: summary, At: o.cfg.Now()})
	o.cfg.Logger.Info("cycle completed",
		"cycle", number,
		"seeded", report.Seeded,
		"processed", report.TotalProcessed,
		"failed", report.TotalFailed,
		"escalated", report.TotalEscalated,
		"retried", report.TotalRetried,
		"dropped", report.TotalDropped,
		"duration", report.Duration,
	)
	return report, nil
}

// handle executes one drained item. It reports whether the item must be
// re-enqueued on role after the pass. The returned error is always a
// framework defect.
func (o *Orchestrator) handle(ctx context.Context, role protocol.Role, item *protocol.WorkItem, rc *protocol.RoleCycle, report *protocol.CycleReport) (bool, error) {
	now := o.cfg.Now()
	if item.NotBefore.After(now) {
		rc.Deferred++
		o.recorder.Record(protocol.Event{
			Kind:     protocol.EventItemDeferred,
			Role:     role,
			ItemID:   item.ID,
			Category: item.Category,
			Attempt:  item.Attempt,
			Message:  "not before " + item.NotBefore.Format(time.RFC3339),
			At:       now,
		})
		return true, nil
	}

	rc.ItemIDs = append(rc.ItemIDs, item.ID)
	started := time.Now()
	outcome, err := o.invoke(ctx, role, item)
	elapsed := time.Since(started)
	o.reg.RecordOutcome(role, err == nil, elapsed)

	if err == nil {
		rc.Processed++
		o.metrics.ItemProcessed(role)
		o.recorder.Record(protocol.Event{
			Kind:     protocol.EventItemExecuted,
			Role:     role,
			ItemID:   item.ID,
			Category: item.Category,
			Attempt:  item.Attempt,
			Message:  fmt.Sprintf("follow-ups %v in %s", outcome.FollowUps, elapsed),
			At:       o.cfg.Now(),
		})
		o.cfg.Logger.Debug("item executed", "role", role, "item", item.ID, "category", item.Category, "follow_ups", outcome.FollowUps)

		res, err := o.router.Route(ctx, item, outcome, role)
		if err != nil {
			return false, err
		}
		report.TotalDropped += len(res.Dropped)
		o.metrics.Dropped(len(res.Dropped))
		return false, nil
	}

	rc.Failed++
	o.metrics.ItemFailed(role)
	dec := o.policy.Decide(item, err)
	o.recorder.Record(protocol.Event{
		Kind:     protocol.EventItemFailed,
		Role:     role,
		ItemID:   item.ID,
		Category: item.Category,
		Attempt:  dec.Attempt,
		Message:  dec.Reason,
		At:       o.cfg.Now(),
	})

	if dec.Action == retry.Retry {
		o.policy.Apply(item, dec)
		rc.Retried++
		o.reg.RecordRetry(role)
		o.metrics.Retried(role)
		o.recorder.Record(protocol.Event{
			Kind:     protocol.EventItemRetried,
			Role:     role,
			ItemID:   item.ID,
			Category: item.Category,
			Attempt:  item.Attempt,
			Message:  fmt.Sprintf("retry %d/%d next cycle", item.Attempt, protocol.MaxAttempts-1),
			At:       o.cfg.Now(),
		})
		o.cfg.Logger.Warn("item retried", "role", role, "item", item.ID, "attempt", item.Attempt, "error", dec.Reason)
		return true, nil
	}

	rc.Escalated++
	o.reg.RecordEscalation(role)
	o.metrics.ItemEscalated(role)
	esc := &protocol.Escalation{
		Type:     dec.EscType,
		ItemID:   item.ID,
		Role:     role,
		Category: item.Category,
		Attempt:  dec.Attempt,
		Reason:   dec.Reason,
		At:       o.cfg.Now(),
	}
	o.recorder.Record(protocol.Event{
		Kind:       protocol.EventItemEscalated,
		Role:       role,
		ItemID:     item.ID,
		Category:   item.Category,
		Attempt:    dec.Attempt,
		Message:    esc.Message(),
		At:         esc.At,
		Escalation: esc,
	})
	o.cfg.Logger.Warn("item escalated", "role", role, "item", item.ID, "type", esc.Type, "attempt", esc.Attempt, "reason", esc.Reason)
	return false, nil
}

// invoke calls the skill with a panic boundary around it. A recovered panic
// becomes a *retry.PanicError, which always escalates.
func (o *Orchestrator) invoke(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (out protocol.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &retry.PanicError{Value: r}
		}
	}()
	return o.skills.Invoke(ctx, role, item)
}
