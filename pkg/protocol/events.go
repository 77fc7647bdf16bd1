package protocol

import "time"

// EventKind names a lifecycle event sent to the logging collaborator.
type EventKind string

// Event kinds.
const (
	EventJobScheduled   EventKind = "job_scheduled"
	EventJobFired       EventKind = "job_fired"
	EventJobEnabled     EventKind = "job_enabled"
	EventJobDisabled    EventKind = "job_disabled"
	EventItemExecuted   EventKind = "item_executed"
	EventItemFailed     EventKind = "item_failed"
	EventItemRetried    EventKind = "item_retried"
	EventItemEscalated  EventKind = "item_escalated"
	EventItemUnroutable EventKind = "item_unroutable"
	EventItemDeferred   EventKind = "item_deferred"
	EventCycleStarted   EventKind = "cycle_started"
	EventCycleCompleted EventKind = "cycle_completed"
	EventConfigReloaded EventKind = "config_reloaded"
)

// Event is one fire-and-forget record for the logging collaborator.
// Escalation is set only for EventItemEscalated.
type Event struct {
	Kind       EventKind   `json:"kind"`
	Role       Role        `json:"role,omitempty"`
	ItemID     string      `json:"item_id,omitempty"`
	JobID      string      `json:"job_id,omitempty"`
	Category   string      `json:"category,omitempty"`
	Attempt    int         `json:"attempt,omitempty"`
	Message    string      `json:"message,omitempty"`
	At         time.Time   `json:"at"`
	Escalation *Escalation `json:"escalation,omitempty"`
}
