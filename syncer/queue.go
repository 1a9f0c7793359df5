// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PayloadSchemaVersion is stored with every entry so payloads queued
// before an app upgrade can still be decoded after entity fields change.
const PayloadSchemaVersion = 1

// Entry is one durable record of a pending local mutation. Entries are
// immutable except for RetryCount; a successfully pushed entry is removed,
// never updated in place.
type Entry struct {
	ID            string
	Kind          Kind
	EntityID      string
	Op            Op
	Payload       json.RawMessage // entity snapshot at enqueue time; empty for delete
	SchemaVersion int
	CreatedAt     time.Time
	RetryCount    int
}

// Queue is the durable operation queue contract. All operations are
// individually atomic; the engine guarantees only one push cycle runs at
// a time, so no further locking is required of implementations.
type Queue interface {
	// All returns entries in insertion order, oldest first, stable across
	// process restarts.
	All(ctx context.Context) ([]Entry, error)
	// Add upserts by entry id, so re-enqueueing the same id is safe.
	Add(ctx context.Context, e Entry) error
	// Remove deletes one entry; no-op if absent.
	Remove(ctx context.Context, id string) error
	// IncrementRetry bumps RetryCount for one entry; no-op if absent.
	IncrementRetry(ctx context.Context, id string) error
	// Clear drops all entries. Used on sign-out.
	Clear(ctx context.Context) error
	// Size returns the number of pending entries.
	Size(ctx context.Context) (int, error)
	// Bury records an evicted poison entry in the dead-letter log and
	// removes it from the queue.
	Bury(ctx context.Context, e Entry, reason string) error
	// DeadLetters returns buried entries, oldest first.
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
}

// DeadLetter is an evicted entry kept for inspection. Nothing replays it
// automatically.
type DeadLetter struct {
	Entry    Entry
	Reason   string
	BuriedAt time.Time
}

var _ Queue = (*SQLiteQueue)(nil)

// SQLiteQueue stores the queue in the same SQLite file as the entity
// tables, so pending writes survive process restarts and crashes.
type SQLiteQueue struct {
	db *sql.DB
}

// NewSQLiteQueue creates the queue tables if needed.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS _sync_queue (
			id             TEXT PRIMARY KEY,
			entity_kind    TEXT NOT NULL,
			entity_id      TEXT NOT NULL,
			op             TEXT NOT NULL CHECK (op IN ('upsert','delete')),
			payload        TEXT,
			schema_version INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			retry_count    INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS _sync_dead_letter (
			id             TEXT PRIMARY KEY,
			entity_kind    TEXT NOT NULL,
			entity_id      TEXT NOT NULL,
			op             TEXT NOT NULL,
			payload        TEXT,
			schema_version INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL,
			retry_count    INTEGER NOT NULL,
			reason         TEXT NOT NULL DEFAULT '',
			buried_at      TEXT NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return nil, fmt.Errorf("failed to create sync queue table: %w", err)
		}
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) All(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, entity_kind, entity_id, op, payload, schema_version, created_at, retry_count
		FROM _sync_queue
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.EntityID, &e.Op, &payload, &e.SchemaVersion, &createdAt, &e.RetryCount); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse queue timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *SQLiteQueue) Add(ctx context.Context, e Entry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	// Re-adding an existing id refreshes the snapshot but keeps the
	// original insertion slot, so ordering stays FIFO.
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO _sync_queue (id, entity_kind, entity_id, op, payload, schema_version, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			schema_version = excluded.schema_version
	`, e.ID, string(e.Kind), e.EntityID, string(e.Op), payload, e.SchemaVersion,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to add queue entry %s: %w", e.ID, err)
	}
	return nil
}

func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM _sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue entry %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) IncrementRetry(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `
		UPDATE _sync_queue SET retry_count = retry_count + 1 WHERE id = ?
	`, id); err != nil {
		return fmt.Errorf("failed to increment retry for %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM _sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) Size(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Bury(ctx context.Context, e Entry, reason string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin bury tx: %w", err)
	}
	defer tx.Rollback()

	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO _sync_dead_letter
			(id, entity_kind, entity_id, op, payload, schema_version, created_at, retry_count, reason, buried_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, string(e.Kind), e.EntityID, string(e.Op), payload, e.SchemaVersion,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.RetryCount, reason,
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to bury queue entry %s: %w", e.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM _sync_queue WHERE id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to remove buried entry %s: %w", e.ID, err)
	}
	return tx.Commit()
}

func (q *SQLiteQueue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, entity_kind, entity_id, op, payload, schema_version, created_at, retry_count, reason, buried_at
		FROM _sync_dead_letter
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var d DeadLetter
		var payload sql.NullString
		var createdAt, buriedAt string
		if err := rows.Scan(&d.Entry.ID, &d.Entry.Kind, &d.Entry.EntityID, &d.Entry.Op,
			&payload, &d.Entry.SchemaVersion, &createdAt, &d.Entry.RetryCount, &d.Reason, &buriedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if payload.Valid {
			d.Entry.Payload = json.RawMessage(payload.String)
		}
		if d.Entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse dead letter timestamp: %w", err)
		}
		if d.BuriedAt, err = time.Parse(time.RFC3339Nano, buriedAt); err != nil {
			return nil, fmt.Errorf("failed to parse dead letter timestamp: %w", err)
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}
