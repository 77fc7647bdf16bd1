// Package retry decides whether a failed work item is re-enqueued or
// escalated.
package retry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"goldtier/pkg/protocol"
)

// keywords mark an error message as retryable. Matching is a case-insensitive
// substring test.
var keywords = []string{"connection", "timeout", "api", "network", "server"} //nolint:gochecknoglobals // fixed classifier set

// Action is the outcome of a retry decision.
type Action int

const (
	Retry Action = iota + 1
	Escalate
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Retry:
		return "retry"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// Decision describes what to do with a failed item.
type Decision struct {
	Action  Action
	Class   protocol.ErrorClass
	Attempt int // post-increment attempt count
	Reason  string
	EscType protocol.EscalationType // set when Action is Escalate
}

// Policy classifies errors and decides re-enqueue versus escalation.
type Policy struct {
	MaxAttempts int
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = protocol.MaxAttempts
	}
	return p
}

// Classify returns the class of err. A structured class attached with
// protocol.Transient or protocol.Terminal wins; otherwise the message is
// matched against the retry keywords.
func Classify(err error) protocol.ErrorClass {
	if err == nil {
		return ""
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return protocol.ClassTerminal
	}
	if class := protocol.ClassOf(err); class != "" {
		return class
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return protocol.ClassRetryable
		}
	}
	return protocol.ClassTerminal
}

// Decide returns the decision for item after it failed with err. It does not
// mutate item; call Apply to prepare it for re-enqueue.
func (p Policy) Decide(item *protocol.WorkItem, err error) Decision {
	p = p.withDefaults()
	class := Classify(err)
	next := item.Attempt + 1
	d := Decision{Class: class, Attempt: next}
	if err != nil {
		d.Reason = err.Error()
	}

	var panicErr *PanicError
	switch {
	case errors.As(err, &panicErr):
		d.Action = Escalate
		d.EscType = protocol.EscSkillPanic
	case class != protocol.ClassRetryable:
		d.Action = Escalate
		d.EscType = protocol.EscTerminalError
	case next >= p.MaxAttempts:
		d.Action = Escalate
		d.EscType = protocol.EscRetryExhausted
	default:
		d.Action = Retry
	}
	return d
}

// Apply updates item for re-enqueue under d: the attempt count advances and
// the error is kept. A retried item is eligible in the next cycle, so any
// NotBefore hold is cleared.
func (p Policy) Apply(item *protocol.WorkItem, d Decision) {
	item.Attempt = d.Attempt
	item.LastError = d.Reason
	item.NotBefore = time.Time{}
}

// PanicError wraps a value recovered from a panicking skill. It is always
// terminal.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "skill panic: " + stringify(e.Value)
}

func stringify(v any) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case string:
		return x
	default:
		return strings.TrimSpace(strings.ReplaceAll(fmt.Sprint(x), "\n", " "))
	}
}
