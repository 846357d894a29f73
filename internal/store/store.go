package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Persisted key names for the agent's identity state.
const (
	KeyAuthToken       = "authToken"
	KeyUserID          = "userId"
	KeyUserEmail       = "userEmail"
	KeyTrackedWebsites = "trackedWebsites"
)

// Store is the agent's local persistence: a small key/value table for
// identity state plus the per-tab session-id cache. The event spool shares
// the same database handle.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the agent database at path and verifies the
// connection.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked" between the bridge
	// handlers and the relay loop.
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		log: logger.Named("store"),
	}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS kv(
	  key   TEXT PRIMARY KEY,
	  value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tab_sessions(
	  tab_id     TEXT PRIMARY KEY,
	  session_id TEXT    NOT NULL,
	  created_at INTEGER NOT NULL
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so the spool can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes key to value, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO kv(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the given keys in one transaction. Missing keys are not an
// error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete key %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SessionID returns the cached session id for a tab, if one exists.
func (s *Store) SessionID(ctx context.Context, tabID string) (string, bool, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM tab_sessions WHERE tab_id = ?`, tabID).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read session for tab %q: %w", tabID, err)
	}
	return sessionID, true, nil
}

// SaveSessionID caches a tab's session id. A tab keeps its first session id
// for its whole lifetime, so an existing row is left untouched.
func (s *Store) SaveSessionID(ctx context.Context, tabID, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tab_sessions(tab_id, session_id, created_at)
		VALUES(?, ?, ?) ON CONFLICT(tab_id) DO NOTHING`,
		tabID, sessionID, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save session for tab %q: %w", tabID, err)
	}
	return nil
}

// PruneSessions drops session-id cache entries older than maxAge. Tab
// sessions are short-lived by definition; this keeps the cache bounded.
func (s *Store) PruneSessions(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM tab_sessions WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune tab sessions: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("Pruned stale tab sessions", zap.Int64("count", n))
	}
	return nil
}
