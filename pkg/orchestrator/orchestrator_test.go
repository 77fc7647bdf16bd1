package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goldtier/pkg/orchestrator"
	"goldtier/pkg/protocol"
	"goldtier/pkg/registry"
	"goldtier/pkg/scheduler"
	"goldtier/pkg/skills"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (c *captureRecorder) Record(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureRecorder) ofKind(kind protocol.EventKind) []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	orch  *orchestrator.Orchestrator
	reg   *registry.Registry
	sched *scheduler.Scheduler
	clock *clock
	rec   *captureRecorder
}

func newFixture(t *testing.T, invoker skills.SkillInvoker) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	reg := registry.New()
	reg.RegisterDefaults()
	rec := &captureRecorder{}
	sched := scheduler.New(scheduler.Config{Location: time.UTC, Now: clk.Now}, reg, rec)
	orch := orchestrator.New(orchestrator.Config{Now: clk.Now}, reg, sched, invoker, rec, nil)
	return &fixture{orch: orch, reg: reg, sched: sched, clock: clk, rec: rec}
}

func (f *fixture) inject(t *testing.T, role protocol.Role, category string, payload map[string]any) *protocol.WorkItem {
	t.Helper()
	item := protocol.NewWorkItem(category, payload, protocol.PriorityMedium, f.clock.Now())
	if err := f.orch.Inject(role, item); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	return item
}

func (f *fixture) cycle(t *testing.T) *protocol.CycleReport {
	t.Helper()
	report, err := f.orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return report
}

func (f *fixture) totalDepth() int {
	n := 0
	for _, st := range f.reg.Snapshot() {
		n += st.QueueDepth
	}
	return n
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestRunCycle_BoundedPass(t *testing.T) {
	var mu sync.Mutex
	var watcherSaw []string
	invoker := skills.Func(func(_ context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error) {
		switch role {
		case protocol.Processor:
			return protocol.Outcome{FollowUps: []string{"monitor"}}, nil
		case protocol.Watcher:
			mu.Lock()
			watcherSaw = append(watcherSaw, item.ID)
			mu.Unlock()
		}
		return protocol.Outcome{}, nil
	})
	f := newFixture(t, invoker)
	f.inject(t, protocol.Processor, "process", nil)

	first := f.cycle(t)
	if first.PerRole[protocol.Processor].Processed != 1 {
		t.Fatalf("expected processor to run once, got %+v", first.PerRole[protocol.Processor])
	}
	if len(first.PerRole[protocol.Watcher].ItemIDs) != 0 || len(watcherSaw) != 0 {
		t.Fatal("follow-up onto an already drained role ran in the same cycle")
	}
	q, _ := f.reg.QueueFor(protocol.Watcher)
	waiting := q.Peek()
	if len(waiting) != 1 {
		t.Fatalf("expected the follow-up to wait on the watcher queue, got %d", len(waiting))
	}

	second := f.cycle(t)
	if !contains(second.PerRole[protocol.Watcher].ItemIDs, waiting[0].ID) {
		t.Errorf("follow-up %s not processed in the next cycle: %v", waiting[0].ID, second.PerRole[protocol.Watcher].ItemIDs)
	}
}

func TestRunCycle_WatcherToProcessor(t *testing.T) {
	var mu sync.Mutex
	var processorSaw []protocol.WorkItem
	defaults := skills.Defaults()
	invoker := skills.Func(func(ctx context.Context, role protocol.Role, item *protocol.WorkItem) (protocol.Outcome, error) {
		if role == protocol.Processor {
			mu.Lock()
			processorSaw = append(processorSaw, *item)
			mu.Unlock()
		}
		return defaults.Invoke(ctx, role, item)
	})
	f := newFixture(t, invoker)
	seed := f.inject(t, protocol.Watcher, "monitor", map[string]any{"src": "gmail"})

	report := f.cycle(t)
	if len(processorSaw) != 1 {
		t.Fatalf("expected exactly one processor item, got %d", len(processorSaw))
	}
	got := processorSaw[0]
	if got.Attempt != 0 {
		t.Errorf("expected attempt 0, got %d", got.Attempt)
	}
	if got.Origin() != protocol.Watcher {
		t.Errorf("expected origin watcher, got %q", got.Origin())
	}
	if got.ID == seed.ID || got.Category != "process" {
		t.Errorf("unexpected follow-up %+v", got)
	}
	if report.PerRole[protocol.Watcher].Processed != 1 || report.PerRole[protocol.Processor].Processed != 1 {
		t.Errorf("unexpected per-role breakdown %+v", report.PerRole)
	}
}

func TestRunCycle_RetryBoundThenEscalate(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	item := f.inject(t, protocol.Poster, "post", map[string]any{"fail": "timeout"})

	for i := 1; i <= 3; i++ {
		report := f.cycle(t)
		poster := report.PerRole[protocol.Poster]
		if poster.Failed != 1 {
			t.Fatalf("cycle %d: expected 1 poster failure, got %+v", i, poster)
		}
		wantRetried, wantEscalated := 1, 0
		if i == 3 {
			wantRetried, wantEscalated = 0, 1
		}
		if poster.Retried != wantRetried || poster.Escalated != wantEscalated {
			t.Fatalf("cycle %d: retried=%d escalated=%d, want %d/%d", i, poster.Retried, poster.Escalated, wantRetried, wantEscalated)
		}
	}

	st := f.orch.GetStatus()
	if got := st.Roles[protocol.Poster].ItemsEscalated; got != 1 {
		t.Errorf("expected poster itemsEscalated=1, got %d", got)
	}
	if st.RetriesPerformed != 2 {
		t.Errorf("expected retriesPerformed=2, got %d", st.RetriesPerformed)
	}
	if f.totalDepth() != 0 {
		t.Errorf("expected item absent from all queues, depth %d", f.totalDepth())
	}

	escalations := f.rec.ofKind(protocol.EventItemEscalated)
	if len(escalations) != 1 {
		t.Fatalf("expected one escalation event, got %d", len(escalations))
	}
	esc := escalations[0].Escalation
	if esc == nil || esc.Type != protocol.EscRetryExhausted || esc.ItemID != item.ID || esc.Attempt != 3 {
		t.Errorf("unexpected escalation %+v", esc)
	}

	after := f.cycle(t)
	if after.TotalProcessed+after.TotalFailed != 0 {
		t.Errorf("escalated item came back: %+v", after)
	}
}

func TestRunCycle_RetryEligibleNextCycle(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	item := f.inject(t, protocol.Poster, "post", map[string]any{"fail": "connection reset"})

	f.cycle(t)
	if !item.NotBefore.IsZero() {
		t.Errorf("retried item carries a hold: %v", item.NotBefore)
	}
	next := f.cycle(t)
	poster := next.PerRole[protocol.Poster]
	if poster.Deferred != 0 || poster.Failed != 1 || !contains(poster.ItemIDs, item.ID) {
		t.Fatalf("expected the retry to run in the next cycle, got %+v", poster)
	}
	if len(f.rec.ofKind(protocol.EventItemDeferred)) != 0 {
		t.Error("unexpected item_deferred event")
	}
}

func TestRunCycle_HoldsFutureItems(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	item := protocol.NewWorkItem("report", nil, protocol.PriorityMedium, f.clock.Now())
	item.NotBefore = f.clock.Now().Add(time.Minute)
	if err := f.orch.Inject(protocol.Analyst, item); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	held := f.cycle(t)
	if analyst := held.PerRole[protocol.Analyst]; analyst.Deferred != 1 || analyst.Processed != 0 {
		t.Fatalf("expected the item to be held, got %+v", analyst)
	}
	if len(f.rec.ofKind(protocol.EventItemDeferred)) != 1 {
		t.Error("expected an item_deferred event")
	}

	f.clock.Advance(time.Minute)
	ready := f.cycle(t)
	if ready.PerRole[protocol.Analyst].Processed != 1 {
		t.Errorf("expected the item to run once due, got %+v", ready.PerRole[protocol.Analyst])
	}
}

func TestRunCycle_TerminalEscalatesImmediately(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	f.inject(t, protocol.Poster, "post", map[string]any{"fail": "invalid credentials"})

	report := f.cycle(t)
	if report.TotalEscalated != 1 || report.TotalRetried != 0 {
		t.Fatalf("expected immediate escalation, got %+v", report)
	}
	if f.orch.GetStatus().RetriesPerformed != 0 {
		t.Error("terminal failure must not retry")
	}
	esc := f.rec.ofKind(protocol.EventItemEscalated)[0].Escalation
	if esc.Type != protocol.EscTerminalError || esc.Attempt != 1 {
		t.Errorf("unexpected escalation %+v", esc)
	}
	if f.totalDepth() != 0 {
		t.Error("terminal item must not be re-enqueued")
	}
}

func TestRunCycle_SkillPanicContained(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	f.inject(t, protocol.Analyst, "report", map[string]any{"panic": "boom"})
	f.inject(t, protocol.Analyst, "report", nil)

	report := f.cycle(t)
	analyst := report.PerRole[protocol.Analyst]
	if analyst.Processed != 1 || analyst.Escalated != 1 {
		t.Fatalf("expected one success and one escalation, got %+v", analyst)
	}
	esc := f.rec.ofKind(protocol.EventItemEscalated)[0].Escalation
	if esc.Type != protocol.EscSkillPanic {
		t.Errorf("expected SKILL_PANIC, got %s", esc.Type)
	}
}

func TestRunCycle_UnroutableCounted(t *testing.T) {
	invoker := skills.Func(func(context.Context, protocol.Role, *protocol.WorkItem) (protocol.Outcome, error) {
		return protocol.Outcome{FollowUps: []string{"teleport"}}, nil
	})
	f := newFixture(t, invoker)
	f.inject(t, protocol.Watcher, "monitor", nil)

	report := f.cycle(t)
	if report.TotalDropped != 1 {
		t.Errorf("expected 1 dropped follow-up, got %d", report.TotalDropped)
	}
	if len(f.rec.ofKind(protocol.EventItemUnroutable)) != 1 {
		t.Error("expected an item_unroutable diagnostic")
	}
}

func TestRunCycle_FrameworkDefect(t *testing.T) {
	clk := &clock{now: time.Now()}
	reg := registry.New()
	_ = reg.Register(protocol.Watcher)
	invoker := skills.Func(func(context.Context, protocol.Role, *protocol.WorkItem) (protocol.Outcome, error) {
		return protocol.Outcome{FollowUps: []string{"post"}}, nil
	})
	orch := orchestrator.New(orchestrator.Config{Now: clk.Now}, reg, nil, invoker, nil, nil)
	_ = orch.Inject(protocol.Watcher, protocol.NewWorkItem("monitor", nil, 0, clk.Now()))

	_, err := orch.RunCycle(context.Background())
	var defect *protocol.FrameworkDefect
	if !errors.As(err, &defect) {
		t.Fatalf("expected FrameworkDefect, got %v", err)
	}
}

func TestRunCycle_AllFailuresStillReport(t *testing.T) {
	invoker := skills.Func(func(context.Context, protocol.Role, *protocol.WorkItem) (protocol.Outcome, error) {
		return protocol.Outcome{}, errors.New("nothing works")
	})
	f := newFixture(t, invoker)
	for _, role := range protocol.Roles() {
		f.inject(t, role, protocol.DefaultCategory(role), nil)
	}
	report := f.cycle(t)
	if report.TotalFailed != 5 || report.TotalEscalated != 5 {
		t.Errorf("expected 5 failures and escalations, got %+v", report)
	}
}

func TestRunCycle_SeedsDueJobs(t *testing.T) {
	f := newFixture(t, skills.Defaults())
	if _, err := f.orch.AddScheduledJob(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "daily 09:00"}); err != nil {
		t.Fatalf("AddScheduledJob: %v", err)
	}

	if early := f.cycle(t); early.Seeded != 0 {
		t.Fatalf("job fired early: %+v", early)
	}
	f.clock.Advance(time.Hour)
	report := f.cycle(t)
	if report.Seeded != 1 || report.PerRole[protocol.Watcher].Processed != 1 {
		t.Errorf("expected the seed to be drained in the same cycle, got %+v", report)
	}
}

func TestRunCycle_ConcurrentCallersNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	invoker := skills.Func(func(context.Context, protocol.Role, *protocol.WorkItem) (protocol.Outcome, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return protocol.Outcome{}, nil
	})
	f := newFixture(t, invoker)

	const callers = 8
	var wg sync.WaitGroup
	reports := make(chan *protocol.CycleReport, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.orch.Inject(protocol.Watcher, protocol.NewWorkItem("monitor", nil, 0, f.clock.Now())); err != nil {
				t.Errorf("Inject: %v", err)
				return
			}
			r, err := f.orch.RunCycleNow(context.Background())
			if err != nil {
				t.Errorf("RunCycleNow: %v", err)
				return
			}
			reports <- r
		}()
	}
	wg.Wait()
	close(reports)

	distinct := map[*protocol.CycleReport]bool{}
	for r := range reports {
		distinct[r] = true
	}
	final := f.cycle(t)
	distinct[final] = true

	processed := 0
	for r := range distinct {
		processed += r.TotalProcessed
	}
	if processed != callers {
		t.Errorf("expected %d items processed across cycles, got %d", callers, processed)
	}
	if maxInFlight.Load() != 1 {
		t.Errorf("cycles overlapped: %d skills ran at once", maxInFlight.Load())
	}
	if got := f.orch.GetStatus().CycleCount; got != int64(len(distinct)) {
		t.Errorf("cycle count %d, want %d distinct cycles", got, len(distinct))
	}
}

func TestRun_StopsAtCycleBoundary(t *testing.T) {
	reg := registry.New()
	reg.RegisterDefaults()
	orch := orchestrator.New(orchestrator.Config{CycleInterval: 5 * time.Millisecond}, reg, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for orch.GetStatus().CycleCount < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("Run did not cycle")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestRun_WaitsRetryDelayAfterRetries(t *testing.T) {
	reg := registry.New()
	reg.RegisterDefaults()
	orch := orchestrator.New(orchestrator.Config{CycleInterval: 5 * time.Millisecond, RetryDelay: 400 * time.Millisecond}, reg, nil, nil, nil, nil)
	item := protocol.NewWorkItem("post", map[string]any{"fail": "timeout"}, protocol.PriorityMedium, time.Now())
	if err := orch.Inject(protocol.Poster, item); err != nil {
		t.Fatalf("Inject: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for orch.GetStatus().CycleCount < 1 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not cycle")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := orch.GetStatus().CycleCount; got != 1 {
		t.Errorf("cycle count %d before the retry delay elapsed, want 1", got)
	}

	for orch.GetStatus().RetriesPerformed < 2 {
		if time.Now().After(deadline) {
			t.Fatal("retry never ran")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
