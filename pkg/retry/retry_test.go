package retry_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"goldtier/pkg/protocol"
	"goldtier/pkg/retry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want protocol.ErrorClass
	}{
		{"connection", errors.New("Connection refused"), protocol.ClassRetryable},
		{"timeout", errors.New("request TIMEOUT after 30s"), protocol.ClassRetryable},
		{"api", errors.New("upstream API returned 503"), protocol.ClassRetryable},
		{"network", errors.New("network unreachable"), protocol.ClassRetryable},
		{"server", errors.New("internal server error"), protocol.ClassRetryable},
		{"plain", errors.New("invalid payload"), protocol.ClassTerminal},
		{"wrapped keyword", fmt.Errorf("post: %w", errors.New("timeout")), protocol.ClassRetryable},
		{"transient tag", protocol.Transient("rate", "slow down"), protocol.ClassRetryable},
		{"terminal with keyword", protocol.Terminal("timeout budget is invalid"), protocol.ClassTerminal},
		{"panic", &retry.PanicError{Value: "server exploded"}, protocol.ClassTerminal},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestDecide_RetryBound(t *testing.T) {
	p := retry.Policy{}
	item := protocol.NewWorkItem("post", nil, protocol.PriorityMedium, time.Now())
	err := protocol.Transient("timeout", "linkedin did not answer")

	var actions []retry.Action
	for range 3 {
		d := p.Decide(item, err)
		actions = append(actions, d.Action)
		if d.Action == retry.Retry {
			p.Apply(item, d)
		}
	}

	want := []retry.Action{retry.Retry, retry.Retry, retry.Escalate}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("failure %d: got %s, want %s (all: %v)", i+1, actions[i], want[i], actions)
		}
	}
	if item.Attempt != 2 {
		t.Errorf("expected two re-enqueues to leave attempt=2, got %d", item.Attempt)
	}
	final := p.Decide(item, err)
	if final.EscType != protocol.EscRetryExhausted || final.Attempt != 3 {
		t.Errorf("expected RETRY_EXHAUSTED at attempt 3, got %s at %d", final.EscType, final.Attempt)
	}
}

func TestDecide_TerminalEscalatesImmediately(t *testing.T) {
	p := retry.Policy{}
	item := protocol.NewWorkItem("process", nil, protocol.PriorityMedium, time.Now())

	d := p.Decide(item, errors.New("malformed record"))
	if d.Action != retry.Escalate {
		t.Fatalf("expected escalate, got %s", d.Action)
	}
	if d.EscType != protocol.EscTerminalError {
		t.Errorf("expected TERMINAL_ERROR, got %s", d.EscType)
	}
	if d.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", d.Attempt)
	}
	if item.Attempt != 0 {
		t.Errorf("Decide must not mutate the item, attempt=%d", item.Attempt)
	}
}

func TestDecide_Panic(t *testing.T) {
	d := retry.Policy{}.Decide(protocol.NewWorkItem("report", nil, 0, time.Now()), &retry.PanicError{Value: "boom"})
	if d.Action != retry.Escalate || d.EscType != protocol.EscSkillPanic {
		t.Errorf("expected SKILL_PANIC escalation, got %s/%s", d.Action, d.EscType)
	}
	if d.Reason != "skill panic: boom" {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestApply_ClearsHold(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	var p retry.Policy
	item := protocol.NewWorkItem("post", nil, 0, now)
	item.NotBefore = now.Add(time.Hour)

	d := p.Decide(item, errors.New("connection reset"))
	p.Apply(item, d)

	if !item.NotBefore.IsZero() {
		t.Errorf("retried item must be eligible next cycle, NotBefore = %v", item.NotBefore)
	}
	if item.Attempt != 1 || item.LastError != "connection reset" {
		t.Errorf("Attempt = %d, LastError = %q", item.Attempt, item.LastError)
	}
}
