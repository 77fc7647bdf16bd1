package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"goldtier/pkg/protocol"
)

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// Kind filters to one event kind (e.g. "item_escalated")
	Kind protocol.EventKind

	Role   protocol.Role
	ItemID string
	JobID  string

	// After filters events created at or after this time
	After *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read access to the event log.
type Reader struct {
	db     *sql.DB
	shared bool
}

// NewReader opens the event database in read-only mode with WAL, so it
// never blocks the daemon's writer. The database must already exist.
func NewReader(dbPath string) (*Reader, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Reader{db: db}, nil
}

// Close releases the database connection unless it is shared with a Store.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db == nil || r.shared {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Query returns events matching opts, newest first.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]protocol.EventRow, error) {
	query, args := buildQuery(opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []protocol.EventRow
	for rows.Next() {
		var e protocol.EventRow
		var role, itemID, jobID, category, message sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &role, &itemID, &jobID, &category, &e.Attempt, &message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Role, e.ItemID, e.JobID = role.String, itemID.String, jobID.String
		e.Category, e.Message = category.String, message.String
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Escalations returns escalations with the given status ("" for all),
// newest first.
func (r *Reader) Escalations(ctx context.Context, status string, limit int) ([]protocol.EscalationRow, error) {
	query := `SELECT id, type, item_id, role, category, attempt, reason, status, created_at, acked_at
		FROM escalations`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var out []protocol.EscalationRow
	for rows.Next() {
		var e protocol.EscalationRow
		var category, reason, ackedAt sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.ItemID, &e.Role, &category, &e.Attempt, &reason, &e.Status, &e.CreatedAt, &ackedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e.Category, e.Reason, e.AckedAt = category.String, reason.String, ackedAt.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return out, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	query := "SELECT id, type, role, item_id, job_id, category, attempt, message, created_at FROM events WHERE 1=1"

	if opts.Kind != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.Role != "" {
		conditions = append(conditions, "role = ?")
		args = append(args, string(opts.Role))
	}
	if opts.ItemID != "" {
		conditions = append(conditions, "item_id = ?")
		args = append(args, opts.ItemID)
	}
	if opts.JobID != "" {
		conditions = append(conditions, "job_id = ?")
		args = append(args, opts.JobID)
	}
	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(timeLayout))
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return query, args
}
