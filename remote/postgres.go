// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Backend = (*PGBackend)(nil)

// PGBackend implements the row contract directly against a shared
// Postgres, for self-hosted deployments and integration tests that skip
// the HTTP layer. The updated_at watermark column is maintained by a
// trigger so every upsert is pull-visible to other devices.
type PGBackend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGBackend creates a Postgres backend over an existing pool.
func NewPGBackend(pool *pgxpool.Pool) *PGBackend {
	return &PGBackend{pool: pool, logger: slog.Default()}
}

// EnsureSchema creates the synced tables and the updated_at trigger if
// they do not exist yet.
func (b *PGBackend) EnsureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		migrations := []string{
			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS users (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL DEFAULT '',
				email      TEXT NOT NULL DEFAULT '',
				unit_kg    BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS workout_plans (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				name       TEXT NOT NULL DEFAULT '',
				exercises  JSON NOT NULL DEFAULT '[]',
				active     BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS workout_sessions (
				id           TEXT PRIMARY KEY,
				user_id      TEXT NOT NULL REFERENCES users(id),
				plan_id      TEXT,
				started_at   TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ,
				sets         JSON NOT NULL DEFAULT '[]',
				notes        TEXT NOT NULL DEFAULT '',
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS conversations (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				title      TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS chat_messages (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				role            TEXT NOT NULL,
				content         TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,

			/*language=postgresql*/ `CREATE OR REPLACE FUNCTION touch_updated_at()
			RETURNS trigger AS $$
			BEGIN
				NEW.updated_at := now();
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql`,
		}
		for _, table := range []string{TableUsers, TableWorkoutPlans, TableSessions, TableConversations, TableMessages} {
			migrations = append(migrations, fmt.Sprintf(
				`DROP TRIGGER IF EXISTS %s_touch_updated_at ON %s`, table, table))
			migrations = append(migrations, fmt.Sprintf(
				`CREATE TRIGGER %s_touch_updated_at BEFORE UPDATE ON %s
				 FOR EACH ROW EXECUTE FUNCTION touch_updated_at()`, table, table))
		}
		for _, ddl := range migrations {
			if _, err := tx.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("failed to run remote migration: %w", err)
			}
		}
		return nil
	})
}

func (b *PGBackend) Upsert(ctx context.Context, table string, row Row) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown remote table %q", table)
	}
	id, ok := row["id"]
	if !ok {
		return fmt.Errorf("row for %s has no id column", table)
	}

	// Deterministic column order so generated SQL is stable.
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	var updates []string
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%q = EXCLUDED.%q", col, col))
		}
	}
	updates = append(updates, `updated_at = now()`)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	sql := fmt.Sprintf(
		`INSERT INTO %q (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
		table,
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
	if _, err := b.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to upsert %s id=%v: %w", table, id, err)
	}
	return nil
}

func (b *PGBackend) Delete(ctx context.Context, table string, id string) error {
	if !knownTable(table) {
		return fmt.Errorf("unknown remote table %q", table)
	}
	if _, err := b.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, table), id); err != nil {
		return fmt.Errorf("failed to delete %s id=%s: %w", table, id, err)
	}
	return nil
}

func (b *PGBackend) Select(ctx context.Context, table, column, value string, updatedAfter *time.Time) ([]Row, error) {
	return b.selectWhere(ctx, table, column, fmt.Sprintf(`%q = $1`, column), []any{value}, updatedAfter)
}

func (b *PGBackend) SelectIn(ctx context.Context, table, column string, values []string, updatedAfter *time.Time) ([]Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return b.selectWhere(ctx, table, column, fmt.Sprintf(`%q = ANY($1)`, column), []any{values}, updatedAfter)
}

func (b *PGBackend) selectWhere(ctx context.Context, table, column, cond string, args []any, updatedAfter *time.Time) ([]Row, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("unknown remote table %q", table)
	}
	if !validColumn(column) {
		return nil, fmt.Errorf("invalid filter column %q", column)
	}
	sql := fmt.Sprintf(`SELECT * FROM %q WHERE %s`, table, cond)
	if updatedAfter != nil {
		sql += fmt.Sprintf(` AND updated_at > $%d`, len(args)+1)
		args = append(args, updatedAfter.UTC())
	}
	sql += ` ORDER BY updated_at`

	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", table, err)
		}
		row := make(Row, len(descs))
		for i, desc := range descs {
			row[string(desc.Name)] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// validColumn restricts filter columns to plain lowercase identifiers.
func validColumn(column string) bool {
	if column == "" {
		return false
	}
	for _, r := range column {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}
