package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"goldtier/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout is the UTC layout every created_at value is written in, so
// string comparison orders rows by time.
const timeLayout = "2006-01-02T15:04:05.000Z"

// OpenDB opens the event database at path and enforces production-safe
// defaults: WAL journal mode and a 5-second busy timeout. The schema is
// applied before returning. Parent directories are created as needed.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema on %s: %w", path, err)
	}

	return db, nil
}
