package protocol

import (
	"errors"
	"fmt"
)

// ErrorClass is the retry classification of a work-item failure.
type ErrorClass string

// Error classes.
const (
	ClassRetryable ErrorClass = "retryable"
	ClassTerminal  ErrorClass = "terminal"
)

// TransientWorkError is a failure the caller expects to clear on retry. Tag
// should be one of the retry keywords (connection, timeout, api, network,
// server) so message-based classification agrees with the structured class.
type TransientWorkError struct {
	Tag     string
	Message string
	Err     error
}

// Transient builds a TransientWorkError tagged with tag.
func Transient(tag, msg string) *TransientWorkError {
	return &TransientWorkError{Tag: tag, Message: msg}
}

func (e *TransientWorkError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Tag == "" {
		return msg
	}
	return fmt.Sprintf("%s error: %s", e.Tag, msg)
}

func (e *TransientWorkError) Unwrap() error { return e.Err }

// TerminalWorkError is a failure that must not be retried.
type TerminalWorkError struct {
	Message string
	Err     error
}

// Terminal builds a TerminalWorkError.
func Terminal(msg string) *TerminalWorkError {
	return &TerminalWorkError{Message: msg}
}

func (e *TerminalWorkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TerminalWorkError) Unwrap() error { return e.Err }

// ClassOf returns the structured class attached to err at construction time,
// or "" when err carries none and must be classified by message.
func ClassOf(err error) ErrorClass {
	var terminal *TerminalWorkError
	if errors.As(err, &terminal) {
		return ClassTerminal
	}
	var transient *TransientWorkError
	if errors.As(err, &transient) {
		return ClassRetryable
	}
	return ""
}

// FrameworkDefect reports a violated driver invariant (registry corruption,
// queue misuse). It is never handled at the item level.
type FrameworkDefect struct {
	Op     string
	Detail string
}

func (e *FrameworkDefect) Error() string {
	return fmt.Sprintf("framework defect in %s: %s", e.Op, e.Detail)
}

// JobNotFoundError reports an unknown scheduled job ID.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

// DuplicateJobError reports an attempt to add a job whose ID is taken.
type DuplicateJobError struct {
	JobID string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("job %s already exists", e.JobID)
}
