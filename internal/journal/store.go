// Package journal keeps an optional SQLite record of handled Slack events.
// It stores coordinates and outcomes only, never message text.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one handled event.
type Entry struct {
	Key       string
	Kind      string // message | reaction
	Channel   string
	TS        string
	User      string
	Outcome   string
	CreatedAt time.Time
}

// SQLiteStore is the journal backed by a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	logger.Info("event journal opened", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		event_key   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		channel     TEXT,
		ts          TEXT,
		user_id     TEXT,
		outcome     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_key ON events(event_key);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(created_at);

	CREATE TABLE IF NOT EXISTS claims (
		event_key   TEXT PRIMARY KEY,
		claimed_at  DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record appends an entry. Redeliveries produce additional rows.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_key, kind, channel, ts, user_id, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Key, e.Kind, e.Channel, e.TS, e.User, e.Outcome, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Claim reserves key for the caller. It reports false when another delivery
// of the same event already holds the key, even one still in progress.
func (s *SQLiteStore) Claim(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (event_key, claimed_at) VALUES (?, ?)
		 ON CONFLICT(event_key) DO NOTHING`,
		key, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("journal claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("journal claim: %w", err)
	}
	return n == 1, nil
}

// Recent returns the newest entries first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_key, kind, channel, ts, user_id, outcome, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Kind, &e.Channel, &e.TS, &e.User, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
