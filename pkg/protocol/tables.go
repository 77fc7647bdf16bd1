package protocol

// EventRow represents a row in the events SQLite table.
type EventRow struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Role      string `json:"role"`
	ItemID    string `json:"item_id"`
	JobID     string `json:"job_id"`
	Category  string `json:"category"`
	Attempt   int    `json:"attempt"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// EscalationRow represents a row in the escalations SQLite table.
// The store writes pending escalations; operators ack them.
type EscalationRow struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	ItemID    string `json:"item_id"`
	Role      string `json:"role"`
	Category  string `json:"category"`
	Attempt   int    `json:"attempt"`
	Reason    string `json:"reason"`
	Status    string `json:"status"` // pending, acked
	CreatedAt string `json:"created_at"`
	AckedAt   string `json:"acked_at"`
}
