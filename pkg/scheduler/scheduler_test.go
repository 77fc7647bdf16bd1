package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goldtier/pkg/protocol"
	"goldtier/pkg/registry"
	"goldtier/pkg/scheduler"
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

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
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

func (c *captureRecorder) count(kind protocol.EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newScheduler(t *testing.T, start time.Time) (*scheduler.Scheduler, *registry.Registry, *clock, *captureRecorder) {
	t.Helper()
	reg := registry.New()
	reg.RegisterDefaults()
	clk := &clock{now: start}
	rec := &captureRecorder{}
	s := scheduler.New(scheduler.Config{Location: time.UTC, Now: clk.Now}, reg, rec)
	return s, reg, clk, rec
}

func queueDepth(t *testing.T, reg *registry.Registry, role protocol.Role) int {
	t.Helper()
	q, err := reg.QueueFor(role)
	if err != nil {
		t.Fatalf("QueueFor(%s): %v", role, err)
	}
	return q.Size()
}

func TestAdd_DefaultsAndDuplicates(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s, _, _, rec := newScheduler(t, start)

	id, err := s.Add(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "daily 09:00"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	job, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Category != "monitor" {
		t.Errorf("expected default category monitor, got %q", job.Category)
	}
	if !job.Enabled {
		t.Error("expected job enabled by default")
	}
	if !job.NextFire.Equal(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected NextFire %v", job.NextFire)
	}
	if rec.count(protocol.EventJobScheduled) != 1 {
		t.Error("expected a job_scheduled event")
	}

	_, err = s.Add(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "hourly"})
	var dup *protocol.DuplicateJobError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateJobError, got %v", err)
	}

	generated, err := s.Add(protocol.JobSpec{Role: protocol.Analyst, Trigger: "hourly"})
	if err != nil || generated == "" {
		t.Fatalf("expected generated id, got %q, %v", generated, err)
	}

	if _, err := s.Add(protocol.JobSpec{ID: "bad", Role: "janitor", Trigger: "hourly"}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := s.Add(protocol.JobSpec{ID: "bad", Role: protocol.Poster, Trigger: "sometimes"}); err == nil {
		t.Error("expected error for bad trigger")
	}
	if got := len(s.Jobs()); got != 2 {
		t.Errorf("expected 2 jobs, got %d", got)
	}
}

func TestTick_DailyFiresOncePerDay(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s, reg, _, _ := newScheduler(t, start)
	if _, err := s.Add(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "daily 09:00"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Tick every minute for three days.
	fires := 0
	for now := start; now.Before(start.Add(72 * time.Hour)); now = now.Add(time.Minute) {
		fired, err := s.Tick(now)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		fires += len(fired)
		job, _ := s.Get("sync")
		if !job.NextFire.After(now) {
			t.Fatalf("at %v NextFire %v is not in the future", now, job.NextFire)
		}
	}

	if fires != 3 {
		t.Errorf("expected 3 fires in 72h, got %d", fires)
	}
	job, _ := s.Get("sync")
	if job.RunCount != 3 {
		t.Errorf("expected RunCount 3, got %d", job.RunCount)
	}
	if job.LastFire == nil || !job.LastFire.Equal(time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected LastFire %v", job.LastFire)
	}
	if got := queueDepth(t, reg, protocol.Watcher); got != 3 {
		t.Errorf("expected 3 seeds on watcher queue, got %d", got)
	}
}

func TestTick_MissedPeriodsFireOnce(t *testing.T) {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	s, _, _, _ := newScheduler(t, start)
	if _, err := s.Add(protocol.JobSpec{ID: "check", Role: protocol.Watcher, Trigger: "hourly"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	later := start.Add(10*time.Hour + 15*time.Minute)
	fired, _ := s.Tick(later)
	if len(fired) != 1 {
		t.Fatalf("expected one fire after a long gap, got %d", len(fired))
	}
	job, _ := s.Get("check")
	if !job.NextFire.Equal(later.Add(time.Hour)) {
		t.Errorf("NextFire = %v, want %v", job.NextFire, later.Add(time.Hour))
	}
}

func TestDisable_KeepsNextFire(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s, reg, _, rec := newScheduler(t, start)
	if _, err := s.Add(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "daily 09:00"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before, _ := s.Get("sync")

	if err := s.Disable("sync"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	after, _ := s.Get("sync")
	if !after.NextFire.Equal(before.NextFire) {
		t.Errorf("Disable changed NextFire: %v -> %v", before.NextFire, after.NextFire)
	}
	if after.Enabled {
		t.Error("expected job disabled")
	}

	fired, _ := s.Tick(start.Add(2 * time.Hour))
	if len(fired) != 0 || queueDepth(t, reg, protocol.Watcher) != 0 {
		t.Errorf("disabled job fired: %v", fired)
	}
	stale, _ := s.Get("sync")
	if !stale.NextFire.Equal(before.NextFire) {
		t.Errorf("Tick on disabled job changed NextFire to %v", stale.NextFire)
	}
	if rec.count(protocol.EventJobDisabled) != 1 {
		t.Error("expected one job_disabled event")
	}
	if err := s.Disable("sync"); err != nil {
		t.Fatalf("second Disable: %v", err)
	}
	if rec.count(protocol.EventJobDisabled) != 1 {
		t.Error("disabling twice should not record a second event")
	}
}

func TestEnable_FiresAtOriginalTime(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s, _, _, _ := newScheduler(t, start)
	if _, err := s.Add(protocol.JobSpec{ID: "sync", Role: protocol.Watcher, Trigger: "daily 09:00"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_ = s.Disable("sync")
	if fired, _ := s.Tick(start.Add(30 * time.Minute)); len(fired) != 0 {
		t.Fatal("disabled job fired")
	}
	if err := s.Enable("sync"); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if fired, _ := s.Tick(time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC)); len(fired) != 0 {
		t.Error("job fired before its original time")
	}
	fired, _ := s.Tick(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	if len(fired) != 1 {
		t.Fatalf("expected fire at original time, got %d", len(fired))
	}
}

func TestEnableDisable_UnknownJob(t *testing.T) {
	s, _, _, _ := newScheduler(t, time.Now())
	var nf *protocol.JobNotFoundError
	if err := s.Enable("ghost"); !errors.As(err, &nf) {
		t.Errorf("Enable: expected JobNotFoundError, got %v", err)
	}
	if err := s.Disable("ghost"); !errors.As(err, &nf) {
		t.Errorf("Disable: expected JobNotFoundError, got %v", err)
	}
	if _, err := s.Get("ghost"); !errors.As(err, &nf) {
		t.Errorf("Get: expected JobNotFoundError, got %v", err)
	}
}

func TestTick_SeedCarriesJobFields(t *testing.T) {
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s, reg, _, rec := newScheduler(t, start)
	_, err := s.Add(protocol.JobSpec{
		ID: "post", Role: protocol.Poster, Category: "communicate", Trigger: "every 1m",
		Priority: protocol.PriorityHigh, Payload: map[string]any{"channel": "linkedin"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	fired, err := s.Tick(start.Add(time.Minute))
	if err != nil || len(fired) != 1 {
		t.Fatalf("Tick: %v, fired %d", err, len(fired))
	}
	q, _ := reg.QueueFor(protocol.Poster)
	items := q.DrainAll()
	if len(items) != 1 {
		t.Fatalf("expected one seed, got %d", len(items))
	}
	seed := items[0]
	if seed.Category != "communicate" || seed.Priority != protocol.PriorityHigh || seed.Payload["channel"] != "linkedin" {
		t.Errorf("unexpected seed %+v", seed)
	}
	if seed.Attempt != 0 || seed.OriginRole != nil {
		t.Errorf("seed should start fresh, got attempt=%d origin=%v", seed.Attempt, seed.OriginRole)
	}
	if rec.count(protocol.EventJobFired) != 1 {
		t.Error("expected one job_fired event")
	}
}

func TestTick_OnFireHook(t *testing.T) {
	reg := registry.New()
	reg.RegisterDefaults()
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	var got []string
	s := scheduler.New(scheduler.Config{
		Location: time.UTC,
		Now:      func() time.Time { return start },
		OnFire:   func(f scheduler.Fired) { got = append(got, f.JobID) },
	}, reg, nil)
	_, _ = s.Add(protocol.JobSpec{ID: "a", Role: protocol.Watcher, Trigger: "hourly"})
	_, _ = s.Add(protocol.JobSpec{ID: "b", Role: protocol.Analyst, Trigger: "hourly"})

	if _, err := s.Tick(start.Add(time.Hour)); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("OnFire calls = %v, want [a b]", got)
	}
}

func TestTick_UnregisteredRoleReported(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(protocol.Watcher)
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	s := scheduler.New(scheduler.Config{Location: time.UTC, Now: func() time.Time { return start }}, reg, nil)

	_, _ = s.Add(protocol.JobSpec{ID: "ok", Role: protocol.Watcher, Trigger: "hourly"})
	_, _ = s.Add(protocol.JobSpec{ID: "orphan", Role: protocol.Analyst, Trigger: "hourly"})

	_, err := s.Tick(start.Add(time.Hour))
	var defect *protocol.FrameworkDefect
	if !errors.As(err, &defect) {
		t.Fatalf("expected FrameworkDefect, got %v", err)
	}
	if queueDepth(t, reg, protocol.Watcher) != 1 {
		t.Error("failure on one job should not stop other seeds")
	}
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	reg := registry.New()
	reg.RegisterDefaults()
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	clk := &clock{now: start}
	s := scheduler.New(scheduler.Config{PollInterval: 5 * time.Millisecond, Now: clk.Now}, reg, nil)

	if _, err := s.Add(protocol.JobSpec{ID: "fast", Role: protocol.Watcher, Trigger: "every 1s"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	clk.Set(start.Add(2 * time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for queueDepth(t, reg, protocol.Watcher) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduler never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestDefaultJobs(t *testing.T) {
	s, _, _, _ := newScheduler(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	for _, spec := range scheduler.DefaultJobs() {
		if _, err := s.Add(spec); err != nil {
			t.Errorf("default job %s: %v", spec.ID, err)
		}
	}
	if got := len(s.Jobs()); got != 5 {
		t.Errorf("expected 5 default jobs, got %d", got)
	}
}
