// Package eventlog is the logging and persistence collaborator of the
// pipeline. Recorders accept protocol events fire-and-forget; the SQLite
// Store persists them and the Reader queries them back.
package eventlog

import (
	"context"
	"log/slog"

	"goldtier/pkg/protocol"
)

// Recorder accepts pipeline events. Record must not block the caller.
type Recorder interface {
	Record(ev protocol.Event)
}

// Func adapts a function to Recorder.
type Func func(ev protocol.Event)

// Record calls f.
func (f Func) Record(ev protocol.Event) { f(ev) }

// Nop discards every event.
type Nop struct{}

// Record does nothing.
func (Nop) Record(protocol.Event) {}

type multi []Recorder

func (m multi) Record(ev protocol.Event) {
	for _, r := range m {
		r.Record(ev)
	}
}

// Multi fans each event out to every non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	var m multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

// SlogRecorder writes events as structured log records.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a recorder logging through logger.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record logs ev. Failures and drops log at warn, escalations at error,
// cycle and job lifecycle at info, per-item execution at debug.
func (s *SlogRecorder) Record(ev protocol.Event) {
	attrs := []slog.Attr{slog.String("kind", string(ev.Kind))}
	if ev.Role != "" {
		attrs = append(attrs, slog.String("role", string(ev.Role)))
	}
	if ev.ItemID != "" {
		attrs = append(attrs, slog.String("item", ev.ItemID))
	}
	if ev.JobID != "" {
		attrs = append(attrs, slog.String("job", ev.JobID))
	}
	if ev.Category != "" {
		attrs = append(attrs, slog.String("category", ev.Category))
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", ev.Attempt))
	}

	msg := ev.Message
	if ev.Escalation != nil {
		msg = ev.Escalation.Message()
	}
	if msg == "" {
		msg = string(ev.Kind)
	}
	s.logger.LogAttrs(context.Background(), levelFor(ev.Kind), msg, attrs...)
}

func levelFor(kind protocol.EventKind) slog.Level {
	switch kind {
	case protocol.EventItemEscalated:
		return slog.LevelError
	case protocol.EventItemFailed, protocol.EventItemUnroutable, protocol.EventItemRetried:
		return slog.LevelWarn
	case protocol.EventItemExecuted, protocol.EventItemDeferred:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
