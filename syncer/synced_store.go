// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"

	"github.com/fishman08/gainius-sub000/store"
)

var _ store.Store = (*SyncedStore)(nil)

// SyncedStore wraps a local store so every mutation is also recorded in
// the sync queue. The local write happens first; a failed local write is
// returned unchanged and never enqueued. Reads pass straight through.
// Using it as the only write path guarantees the queue cannot drift out
// of sync with the local store by omission.
type SyncedStore struct {
	local  store.Store
	engine *Engine
}

// NewSyncedStore decorates a local store with enqueue-on-write.
func NewSyncedStore(local store.Store, engine *Engine) *SyncedStore {
	return &SyncedStore{local: local, engine: engine}
}

func (s *SyncedStore) SaveUser(ctx context.Context, u *store.User) error {
	if err := s.local.SaveUser(ctx, u); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindUser, u.ID, OpUpsert, u)
}

func (s *SyncedStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	return s.local.GetUser(ctx, id)
}

func (s *SyncedStore) SaveWorkoutPlan(ctx context.Context, p *store.WorkoutPlan) error {
	if err := s.local.SaveWorkoutPlan(ctx, p); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindWorkoutPlan, p.ID, OpUpsert, p)
}

func (s *SyncedStore) GetCurrentPlan(ctx context.Context, userID string) (*store.WorkoutPlan, error) {
	return s.local.GetCurrentPlan(ctx, userID)
}

func (s *SyncedStore) SaveWorkoutSession(ctx context.Context, sess *store.WorkoutSession) error {
	if err := s.local.SaveWorkoutSession(ctx, sess); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindWorkoutSession, sess.ID, OpUpsert, sess)
}

func (s *SyncedStore) DeleteWorkoutSession(ctx context.Context, id string) error {
	if err := s.local.DeleteWorkoutSession(ctx, id); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindWorkoutSession, id, OpDelete, nil)
}

func (s *SyncedStore) GetWorkoutHistory(ctx context.Context, userID string, limit int) ([]*store.WorkoutSession, error) {
	return s.local.GetWorkoutHistory(ctx, userID, limit)
}

func (s *SyncedStore) GetExerciseHistory(ctx context.Context, exercise string, limit int) ([]store.ExerciseRecord, error) {
	return s.local.GetExerciseHistory(ctx, exercise, limit)
}

func (s *SyncedStore) SaveConversation(ctx context.Context, c *store.Conversation) error {
	if err := s.local.SaveConversation(ctx, c); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindConversation, c.ID, OpUpsert, c)
}

func (s *SyncedStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	return s.local.GetConversation(ctx, id)
}

func (s *SyncedStore) GetConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	return s.local.GetConversations(ctx, userID)
}

func (s *SyncedStore) SaveChatMessage(ctx context.Context, m *store.ChatMessage) error {
	if err := s.local.SaveChatMessage(ctx, m); err != nil {
		return err
	}
	return s.engine.Enqueue(ctx, KindChatMessage, m.ID, OpUpsert, m)
}

func (s *SyncedStore) GetMessages(ctx context.Context, conversationID string) ([]*store.ChatMessage, error) {
	return s.local.GetMessages(ctx, conversationID)
}

// ClearAllData wipes the local store and the queue together. A signed-out
// device must not replay stale queued writes under the next identity.
func (s *SyncedStore) ClearAllData(ctx context.Context) error {
	if err := s.local.ClearAllData(ctx); err != nil {
		return err
	}
	return s.engine.ClearQueue(ctx)
}
