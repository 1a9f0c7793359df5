// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var _ Store = (*SQLStore)(nil)

// SQLStore is the SQLite-backed local store. It is safe for use from a
// single goroutine at a time; the sync engine serializes its own access.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLStore opens a store over an existing database handle and creates
// the entity schema if it does not exist yet.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize local schema: %w", err)
	}
	return &SQLStore{db: db, logger: slog.Default()}, nil
}

// DB exposes the underlying handle so the sync queue can share one
// database file with the entity tables.
func (s *SQLStore) DB() *sql.DB { return s.db }

// initializeSchema creates the entity tables, enables WAL and foreign keys.
func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL DEFAULT '',
			unit_kg    INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS workout_plans (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			exercises  TEXT NOT NULL DEFAULT '[]', -- JSON array of planned exercises
			active     INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS workout_sessions (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			plan_id      TEXT,
			started_at   TEXT NOT NULL,
			completed_at TEXT,
			sets         TEXT NOT NULL DEFAULT '[]', -- JSON array of performed sets
			notes        TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS chat_messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON workout_sessions(user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON chat_messages(conversation_id, created_at)`,
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create entity table: %w", err)
		}
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func (s *SQLStore) SaveUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, unit_kg, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			unit_kg = excluded.unit_kg
	`, u.ID, u.Name, u.Email, boolToInt(u.UnitKg), encodeTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	var unitKg int
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, unit_kg, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.Email, &unitKg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	u.UnitKg = unitKg != 0
	if u.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) SaveWorkoutPlan(ctx context.Context, p *WorkoutPlan) error {
	exercises, err := json.Marshal(p.Exercises)
	if err != nil {
		return fmt.Errorf("failed to encode exercises for plan %s: %w", p.ID, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin plan tx: %w", err)
	}
	defer tx.Rollback()

	// One active plan per user: activating this plan deactivates the rest.
	if p.Active {
		if _, err := tx.ExecContext(ctx, `
			UPDATE workout_plans SET active = 0 WHERE user_id = ? AND id <> ?
		`, p.UserID, p.ID); err != nil {
			return fmt.Errorf("failed to deactivate previous plans: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workout_plans (id, user_id, name, exercises, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			exercises = excluded.exercises,
			active = excluded.active
	`, p.ID, p.UserID, p.Name, string(exercises), boolToInt(p.Active), encodeTime(p.CreatedAt)); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", p.ID, err)
	}
	return tx.Commit()
}

func (s *SQLStore) GetCurrentPlan(ctx context.Context, userID string) (*WorkoutPlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, exercises, active, created_at
		FROM workout_plans
		WHERE user_id = ? AND active = 1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(r rowScanner) (*WorkoutPlan, error) {
	var p WorkoutPlan
	var exercises, createdAt string
	var active int
	if err := r.Scan(&p.ID, &p.UserID, &p.Name, &exercises, &active, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(exercises), &p.Exercises); err != nil {
		return nil, fmt.Errorf("failed to decode exercises for plan %s: %w", p.ID, err)
	}
	p.Active = active != 0
	var err error
	if p.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) SaveWorkoutSession(ctx context.Context, sess *WorkoutSession) error {
	sets, err := json.Marshal(sess.Sets)
	if err != nil {
		return fmt.Errorf("failed to encode sets for session %s: %w", sess.ID, err)
	}
	var completedAt any
	if sess.CompletedAt != nil {
		completedAt = encodeTime(*sess.CompletedAt)
	}
	var planID any
	if sess.PlanID != "" {
		planID = sess.PlanID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workout_sessions (id, user_id, plan_id, started_at, completed_at, sets, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			plan_id = excluded.plan_id,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			sets = excluded.sets,
			notes = excluded.notes
	`, sess.ID, sess.UserID, planID, encodeTime(sess.StartedAt), completedAt, string(sets), sess.Notes)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SQLStore) DeleteWorkoutSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workout_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) GetWorkoutHistory(ctx context.Context, userID string, limit int) ([]*WorkoutSession, error) {
	query := `
		SELECT id, user_id, plan_id, started_at, completed_at, sets, notes
		FROM workout_sessions
		WHERE user_id = ?
		ORDER BY started_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions for %s: %w", userID, err)
	}
	defer rows.Close()

	var sessions []*WorkoutSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(r rowScanner) (*WorkoutSession, error) {
	var sess WorkoutSession
	var planID, completedAt sql.NullString
	var startedAt, sets string
	if err := r.Scan(&sess.ID, &sess.UserID, &planID, &startedAt, &completedAt, &sets, &sess.Notes); err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.PlanID = planID.String
	var err error
	if sess.StartedAt, err = decodeTime(startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := decodeTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		sess.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(sets), &sess.Sets); err != nil {
		return nil, fmt.Errorf("failed to decode sets for session %s: %w", sess.ID, err)
	}
	return &sess, nil
}

func (s *SQLStore) GetExerciseHistory(ctx context.Context, exercise string, limit int) ([]ExerciseRecord, error) {
	// Sets live inside the sessions' JSON column, so the filter happens here
	// rather than in SQL. Sessions are already newest first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, started_at, completed_at, sets, notes
		FROM workout_sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []ExerciseRecord
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		for _, set := range sess.Sets {
			if set.Exercise != exercise {
				continue
			}
			records = append(records, ExerciseRecord{
				SessionID:   sess.ID,
				PerformedAt: sess.StartedAt,
				Set:         set,
			})
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, rows.Err()
}

func (s *SQLStore) SaveConversation(ctx context.Context, c *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			title = excluded.title
	`, c.ID, c.UserID, c.Title, encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLStore) GetConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at
		FROM conversations
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations for %s: %w", userID, err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var c Conversation
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if c.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		convs = append(convs, &c)
	}
	return convs, rows.Err()
}

func (s *SQLStore) SaveChatMessage(ctx context.Context, m *ChatMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			role = excluded.role,
			content = excluded.content
	`, m.ID, m.ConversationID, m.Role, m.Content, encodeTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save message %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLStore) GetMessages(ctx context.Context, conversationID string) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM chat_messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if m.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s *SQLStore) ClearAllData(ctx context.Context) error {
	tables := []string{"chat_messages", "conversations", "workout_sessions", "workout_plans", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
