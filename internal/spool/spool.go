package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
)

// Spool is the durable buffer between the tracker and the relay. Events land
// here first; the relay drains them in batches and deletes what the API
// accepted. Anything left over survives an agent restart.
type Spool struct {
	db  *sql.DB
	log *zap.Logger
}

// Entry is one spooled event together with its spool row id.
type Entry struct {
	ID    int64
	Event schemas.Event
}

// New creates the spool on an already-open database handle.
func New(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Spool, error) {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS spooled_events(
	  id         INTEGER PRIMARY KEY,
	  payload    TEXT    NOT NULL CHECK (json_valid(payload)),
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_spooled_events_created ON spooled_events(created_at);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool table: %w", err)
	}

	return &Spool{
		db:  db,
		log: logger.Named("spool"),
	}, nil
}

// validate rejects events that would be useless to the ingestion endpoint.
func validate(event schemas.Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if event.SessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if event.TrackingID == "" {
		return fmt.Errorf("tracking id cannot be empty")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}
	return nil
}

// Enqueue appends events to the spool in a single transaction.
func (s *Spool) Enqueue(ctx context.Context, events ...schemas.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spooled_events(payload, created_at) VALUES(json(?), ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, event := range events {
		if err := validate(event); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		payload, err := json.Marshal(event)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, string(payload), now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Deliver spools a single event. This is the tracker's sink.
func (s *Spool) Deliver(ctx context.Context, event schemas.Event) error {
	return s.Enqueue(ctx, event)
}

// NextBatch returns up to limit of the oldest spooled events.
func (s *Spool) NextBatch(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM spooled_events ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query spool: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			payload string
		)
		if err := rows.Scan(&entry.ID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan spool row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Event); err != nil {
			// A corrupt row would wedge the relay forever; drop it instead.
			s.log.Warn("Dropping undecodable spooled event", zap.Int64("id", entry.ID), zap.Error(err))
			if _, derr := s.db.ExecContext(ctx, `DELETE FROM spooled_events WHERE id = ?`, entry.ID); derr != nil {
				return nil, fmt.Errorf("failed to drop corrupt spool row: %w", derr)
			}
			continue
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate spool rows: %w", err)
	}
	return entries, nil
}

// MarkRelayed deletes entries the ingestion endpoint accepted.
func (s *Spool) MarkRelayed(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM spooled_events WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete spool row %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PendingCount reports how many events are waiting for relay.
func (s *Spool) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM spooled_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count spooled events: %w", err)
	}
	return count, nil
}
