package protocol

import (
	"fmt"
	"time"
)

// EscalationType classifies why a work item was escalated.
type EscalationType string

// Escalation type constants for [GOLDTIER] messages.
const (
	EscRetryExhausted EscalationType = "RETRY_EXHAUSTED"
	EscTerminalError  EscalationType = "TERMINAL_ERROR"
	EscSkillPanic     EscalationType = "SKILL_PANIC"
)

// Escalation is the terminal disposition record of a failed work item.
type Escalation struct {
	Type     EscalationType `json:"type"`
	ItemID   string         `json:"item_id"`
	Role     Role           `json:"role"`
	Category string         `json:"category"`
	Attempt  int            `json:"attempt"`
	Reason   string         `json:"reason"`
	At       time.Time      `json:"at"`
}

// FormatEscalation produces a structured escalation message in the form:
//
//	[GOLDTIER] <TYPE>: <item-id> - <summary>. <details>.
//
// If details is empty the trailing details clause is omitted.
func FormatEscalation(typ EscalationType, itemID, summary, details string) string {
	if details != "" {
		return fmt.Sprintf("[GOLDTIER] %s: %s - %s. %s.", typ, itemID, summary, details)
	}
	return fmt.Sprintf("[GOLDTIER] %s: %s - %s.", typ, itemID, summary)
}

// Message renders e with FormatEscalation.
func (e Escalation) Message() string {
	summary := fmt.Sprintf("%s item failed on attempt %d", e.Role, e.Attempt)
	return FormatEscalation(e.Type, e.ItemID, summary, e.Reason)
}
