// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
)

// Store is the contract every local persistence layer satisfies. All writes
// are upserts by primary id; reads return nil (or an empty slice) when
// nothing matches. The sync layer wraps a Store, so business code never
// depends on a concrete implementation.
type Store interface {
	SaveUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	SaveWorkoutPlan(ctx context.Context, p *WorkoutPlan) error
	GetCurrentPlan(ctx context.Context, userID string) (*WorkoutPlan, error)

	SaveWorkoutSession(ctx context.Context, s *WorkoutSession) error
	DeleteWorkoutSession(ctx context.Context, id string) error
	// GetWorkoutHistory returns sessions newest first. limit <= 0 means all.
	GetWorkoutHistory(ctx context.Context, userID string, limit int) ([]*WorkoutSession, error)
	// GetExerciseHistory returns the most recent performed sets of one
	// exercise across all sessions, newest first. limit <= 0 means all.
	GetExerciseHistory(ctx context.Context, exercise string, limit int) ([]ExerciseRecord, error)

	SaveConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversations(ctx context.Context, userID string) ([]*Conversation, error)
	SaveChatMessage(ctx context.Context, m *ChatMessage) error
	GetMessages(ctx context.Context, conversationID string) ([]*ChatMessage, error)

	// ClearAllData wipes every entity table. Used on sign-out.
	ClearAllData(ctx context.Context) error
}
