package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"goldtier/pkg/protocol"
)

// ErrEscalationNotFound is returned by AckEscalation for an unknown or
// already acknowledged escalation.
var ErrEscalationNotFound = errors.New("escalation not found or already acked")

// StoreConfig controls the Store.
type StoreConfig struct {
	Buffer int // queued events before drops; default 1024
	Logger *slog.Logger
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Store is a Recorder that persists events into SQLite from a single writer
// goroutine. Record never blocks: when the buffer is full the event is
// dropped and counted.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex // guards closed and sends on events
	closed bool
	events chan protocol.Event
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

// OpenStore opens (or creates) the event database at path and starts the
// writer.
func OpenStore(path string, cfg StoreConfig) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	s := &Store{
		db:     db,
		logger: cfg.Logger,
		events: make(chan protocol.Event, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Record queues ev for writing. Events recorded after Close are dropped.
func (s *Store) Record(ev protocol.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer was full
// or the store was closed.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Written returns the number of events persisted.
func (s *Store) Written() int64 { return s.written.Load() }

// Close stops accepting events, flushes the queue and closes the database.
// Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

// Reader returns a Reader sharing the store's connection. Closing it does not
// close the store.
func (s *Store) Reader() *Reader {
	return &Reader{db: s.db, shared: true}
}

// AckEscalation marks a pending escalation acknowledged.
func (s *Store) AckEscalation(ctx context.Context, id int64) error {
	return AckEscalation(ctx, s.db, id)
}

func (s *Store) writer() {
	defer close(s.done)
	for ev := range s.events {
		if err := s.write(ev); err != nil {
			s.logger.Error("write event", "kind", ev.Kind, "item", ev.ItemID, "error", err)
			continue
		}
		s.written.Add(1)
	}
}

func (s *Store) write(ev protocol.Event) error {
	ctx := context.Background()
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	createdAt := at.UTC().Format(timeLayout)

	message := ev.Message
	if ev.Escalation != nil && message == "" {
		message = ev.Escalation.Message()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (type, role, item_id, job_id, category, attempt, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), string(ev.Role), ev.ItemID, ev.JobID, ev.Category, ev.Attempt, message, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if esc := ev.Escalation; esc != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO escalations (type, item_id, role, category, attempt, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(esc.Type), esc.ItemID, string(esc.Role), esc.Category, esc.Attempt, esc.Reason, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert escalation: %w", err)
		}
	}
	return tx.Commit()
}

// AckEscalation marks escalation id acknowledged in db.
func AckEscalation(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE escalations SET status = 'acked', acked_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("ack escalation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ack escalation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("ack escalation %d: %w", id, ErrEscalationNotFound)
	}
	return nil
}
