package eventstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the event database inside the data directory.
const FileName = "events.db"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, wrap(ErrDatabaseOpenFailed, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		phase TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_events_attempt ON events(attempt_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (attempt_id, kind, timestamp, phase, channel, detail) VALUES (?, ?, ?, ?, ?, ?)",
		e.AttemptID, string(e.Kind), e.Timestamp.UnixMilli(), e.Phase, e.Channel, e.Detail,
	)
	if err != nil {
		return wrap(ErrEventAppendFailed, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, attempt_id, kind, timestamp, phase, channel, detail FROM events ORDER BY timestamp DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// Range retrieves events within a time range.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, attempt_id, kind, timestamp, phase, channel, detail FROM events WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id",
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		var ms int64
		if err := rows.Scan(&e.ID, &e.AttemptID, &kind, &ms, &e.Phase, &e.Channel, &e.Detail); err != nil {
			return nil, wrap(ErrEventQueryFailed, err)
		}
		e.Kind = Kind(kind)
		e.Timestamp = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
