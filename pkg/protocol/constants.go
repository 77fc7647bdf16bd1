package protocol

import "time"

// Directory and limit constants used throughout goldtier.
const (
	// StateDir is the user-level state directory (e.g., ~/.goldtier).
	StateDir = ".goldtier"

	// MaxAttempts is the fixed bound on executions of one work item. Retries
	// happen at attempts 1 and 2; the third failure escalates.
	MaxAttempts = 3

	// DefaultRetryDelay is the minimum pause the cycle loop leaves before a
	// cycle that runs retried items.
	DefaultRetryDelay = 2 * time.Second
)
