package protocol

// SchemaDDL defines the SQLite schema for the goldtier event log.
// Tables: events, escalations.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Pipeline event log: scheduling, execution, routing and error events
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    role TEXT,
    item_id TEXT,
    job_id TEXT,
    category TEXT,
    attempt INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS events_type_idx ON events(type);
CREATE INDEX IF NOT EXISTS events_item_idx ON events(item_id);

-- Escalated work items awaiting operator acknowledgement
CREATE TABLE IF NOT EXISTS escalations (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    item_id TEXT NOT NULL,
    role TEXT NOT NULL,
    category TEXT,
    attempt INTEGER NOT NULL DEFAULT 0,
    reason TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    acked_at TEXT
);
`
