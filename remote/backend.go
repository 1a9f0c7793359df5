// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote defines the row-oriented contract of the shared remote
// store and provides two implementations: a PostgREST-style HTTP client
// and a direct Postgres backend over pgx.
package remote

import (
	"context"
	"time"
)

// Row is one remote table row, keyed by snake_case column names.
type Row map[string]any

// Backend is the remote store surface the sync engine pushes to and pulls
// from. Upsert and Delete are idempotent; Select filters by a single
// column equality and optionally by updated_at strictly greater than the
// given watermark.
type Backend interface {
	Upsert(ctx context.Context, table string, row Row) error
	Delete(ctx context.Context, table string, id string) error
	Select(ctx context.Context, table, column, value string, updatedAfter *time.Time) ([]Row, error)
	// SelectIn filters by column membership in values. An empty values
	// slice returns no rows.
	SelectIn(ctx context.Context, table, column string, values []string, updatedAfter *time.Time) ([]Row, error)
}

// Tables synchronized with the remote store.
const (
	TableUsers         = "users"
	TableWorkoutPlans  = "workout_plans"
	TableSessions      = "workout_sessions"
	TableConversations = "conversations"
	TableMessages      = "chat_messages"
)

// knownTable guards identifier interpolation in SQL and URL paths.
func knownTable(table string) bool {
	switch table {
	case TableUsers, TableWorkoutPlans, TableSessions, TableConversations, TableMessages:
		return true
	}
	return false
}
