// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fishman08/gainius-sub000/remote"
	"github.com/fishman08/gainius-sub000/store"
)

// Engine orchestrates the durable queue: enqueue-on-write, ordered push,
// incremental pull, and one-time identity remapping. One engine instance
// serves one device; push cycles never run concurrently with each other.
type Engine struct {
	queue  Queue
	cfg    *Config
	logger *slog.Logger

	mu        sync.Mutex
	prefs     Preferences
	onEnqueue func()
	status    Status

	idSeq atomic.Int64
}

// NewEngine creates an engine over a durable queue. A nil cfg uses
// DefaultConfig.
func NewEngine(queue Queue, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		queue:  queue,
		cfg:    cfg,
		logger: slog.Default(),
		prefs:  DefaultPreferences(),
	}
}

// SetPreferences replaces the per-category sync toggles.
func (e *Engine) SetPreferences(p Preferences) {
	e.mu.Lock()
	e.prefs = p
	e.mu.Unlock()
}

// Preferences returns the current toggles.
func (e *Engine) Preferences() Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs
}

// OnEnqueue registers the single-slot observer fired synchronously after
// every successful enqueue. The host uses it to schedule the debounced
// push. Registering replaces any previous observer.
func (e *Engine) OnEnqueue(fn func()) {
	e.mu.Lock()
	e.onEnqueue = fn
	e.mu.Unlock()
}

// ClearOnEnqueue drops the observer so teardown does not fire into a dead
// context.
func (e *Engine) ClearOnEnqueue() {
	e.OnEnqueue(nil)
}

// Enqueue records one local mutation for later replay. It is the only
// write path into the queue. Kinds disabled by preferences are dropped
// silently; the user kind is always recorded.
func (e *Engine) Enqueue(ctx context.Context, kind Kind, entityID string, op Op, payload any) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if !e.Preferences().ShouldSync(kind) {
		return nil
	}

	var snapshot json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		snapshot = p
	case []byte:
		snapshot = p
	default:
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode payload for %s %s: %w", kind, entityID, err)
		}
		snapshot = encoded
	}

	now := time.Now()
	entry := Entry{
		ID:            fmt.Sprintf("%s-%s-%d-%d", kind, entityID, now.UnixMilli(), e.idSeq.Add(1)),
		Kind:          kind,
		EntityID:      entityID,
		Op:            op,
		Payload:       snapshot,
		SchemaVersion: PayloadSchemaVersion,
		CreatedAt:     now,
	}
	if err := e.queue.Add(ctx, entry); err != nil {
		return err
	}

	e.mu.Lock()
	notify := e.onEnqueue
	e.mu.Unlock()
	if notify != nil {
		notify()
	}
	return nil
}

// PushChanges replays the queue against the backend in dependency order:
// users first, then plans/sessions/conversations, then messages, FIFO
// within each band. Entries over the retry budget are evicted to the
// dead-letter log so one unrecoverable row cannot wedge the queue.
func (e *Engine) PushChanges(ctx context.Context, backend remote.Backend) PushResult {
	var result PushResult

	entries, err := e.queue.All(ctx)
	if err != nil {
		result.Errors++
		result.FirstErr = err
		return result
	}

	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Kind.Priority(), entries[j].Kind.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	for _, entry := range entries {
		if entry.RetryCount >= e.cfg.MaxRetries {
			if err := e.queue.Bury(ctx, entry, "retry budget exhausted"); err != nil {
				e.logger.Error("failed to evict poison entry", "id", entry.ID, "error", err)
			} else {
				e.logger.Warn("evicted poison queue entry",
					"id", entry.ID, "kind", entry.Kind, "retries", entry.RetryCount)
			}
			result.Errors++
			continue
		}

		if err := e.pushEntry(ctx, backend, entry); err != nil {
			if incErr := e.queue.IncrementRetry(ctx, entry.ID); incErr != nil {
				e.logger.Error("failed to increment retry", "id", entry.ID, "error", incErr)
			}
			result.Errors++
			if result.FirstErr == nil {
				result.FirstErr = err
			}
			continue
		}

		if err := e.queue.Remove(ctx, entry.ID); err != nil {
			e.logger.Error("failed to remove pushed entry", "id", entry.ID, "error", err)
		}
		result.Pushed++
	}
	return result
}

// pushEntry performs one remote write.
func (e *Engine) pushEntry(ctx context.Context, backend remote.Backend, entry Entry) error {
	table, err := entry.Kind.Table()
	if err != nil {
		return err
	}
	if entry.Op == OpDelete {
		return backend.Delete(ctx, table, entry.EntityID)
	}
	row, err := rowForEntry(entry)
	if err != nil {
		return err
	}
	return backend.Upsert(ctx, table, row)
}

// rowForEntry decodes the queued snapshot back into its entity and maps
// it to the remote row shape.
func rowForEntry(entry Entry) (remote.Row, error) {
	decode := func(out any) error {
		if len(entry.Payload) == 0 {
			return fmt.Errorf("entry %s has no payload for upsert", entry.ID)
		}
		if err := json.Unmarshal(entry.Payload, out); err != nil {
			return fmt.Errorf("failed to decode payload for %s: %w", entry.ID, err)
		}
		return nil
	}

	switch entry.Kind {
	case KindUser:
		var u store.User
		if err := decode(&u); err != nil {
			return nil, err
		}
		return userToRow(&u), nil
	case KindWorkoutPlan:
		var p store.WorkoutPlan
		if err := decode(&p); err != nil {
			return nil, err
		}
		return planToRow(&p)
	case KindWorkoutSession:
		var s store.WorkoutSession
		if err := decode(&s); err != nil {
			return nil, err
		}
		return sessionToRow(&s)
	case KindConversation:
		var c store.Conversation
		if err := decode(&c); err != nil {
			return nil, err
		}
		return conversationToRow(&c), nil
	case KindChatMessage:
		var m store.ChatMessage
		if err := decode(&m); err != nil {
			return nil, err
		}
		return messageToRow(&m), nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", entry.Kind)
}

// PullChanges fetches remote rows newer than lastSyncAt into the local
// store, per enabled category. A nil lastSyncAt pulls everything. A
// failure in one table does not abort the others; the combined error is
// returned alongside the count of rows actually written.
func (e *Engine) PullChanges(ctx context.Context, backend remote.Backend, local store.Store, lastSyncAt *time.Time, userID string) (int, error) {
	prefs := e.Preferences()
	pulled := 0
	var errs []error

	// The user row is always pulled: everything else hangs off it.
	if rows, err := backend.Select(ctx, remote.TableUsers, "id", userID, nil); err != nil {
		errs = append(errs, fmt.Errorf("users: %w", err))
	} else {
		for _, row := range rows {
			u, err := userFromRow(row)
			if err != nil {
				e.logger.Warn("skipping malformed remote row", "table", remote.TableUsers, "error", err)
				continue
			}
			if err := local.SaveUser(ctx, u); err != nil {
				errs = append(errs, fmt.Errorf("users: %w", err))
				continue
			}
			pulled++
		}
	}

	if prefs.SyncPlans {
		n, err := e.pullTable(ctx, backend, remote.TableWorkoutPlans, "user_id", userID, lastSyncAt,
			func(row remote.Row) error {
				p, err := planFromRow(row)
				if err != nil {
					return err
				}
				return local.SaveWorkoutPlan(ctx, p)
			})
		pulled += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if prefs.SyncWorkouts {
		n, err := e.pullTable(ctx, backend, remote.TableSessions, "user_id", userID, lastSyncAt,
			func(row remote.Row) error {
				s, err := sessionFromRow(row)
				if err != nil {
					return err
				}
				return local.SaveWorkoutSession(ctx, s)
			})
		pulled += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if prefs.SyncChats {
		n, convIDs, err := e.pullConversations(ctx, backend, local, lastSyncAt, userID)
		pulled += n
		if err != nil {
			errs = append(errs, err)
		}

		// Messages carry no user_id column; they are fanned out through
		// their parent conversation ids.
		if len(convIDs) > 0 {
			rows, err := backend.SelectIn(ctx, remote.TableMessages, "conversation_id", convIDs, lastSyncAt)
			if err != nil {
				errs = append(errs, fmt.Errorf("chat_messages: %w", err))
			} else {
				for _, row := range rows {
					m, err := messageFromRow(row)
					if err != nil {
						e.logger.Warn("skipping malformed remote row", "table", remote.TableMessages, "error", err)
						continue
					}
					if err := local.SaveChatMessage(ctx, m); err != nil {
						errs = append(errs, fmt.Errorf("chat_messages: %w", err))
						continue
					}
					pulled++
				}
			}
		}
	}

	return pulled, errors.Join(errs...)
}

// pullTable pulls one watermark-filtered table; malformed rows are
// skipped, store failures are collected.
func (e *Engine) pullTable(ctx context.Context, backend remote.Backend, table, column, value string, lastSyncAt *time.Time, save func(remote.Row) error) (int, error) {
	rows, err := backend.Select(ctx, table, column, value, lastSyncAt)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", table, err)
	}
	pulled := 0
	var errs []error
	for _, row := range rows {
		if err := save(row); err != nil {
			var me *MappingError
			if errors.As(err, &me) {
				e.logger.Warn("skipping malformed remote row", "table", table, "error", err)
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", table, err))
			continue
		}
		pulled++
	}
	return pulled, errors.Join(errs...)
}

// pullConversations saves remote conversations newer than the watermark
// and returns the full set of conversation ids to fan messages out over
// (local ids plus just-pulled ones).
func (e *Engine) pullConversations(ctx context.Context, backend remote.Backend, local store.Store, lastSyncAt *time.Time, userID string) (int, []string, error) {
	ids := make(map[string]struct{})
	if convs, err := local.GetConversations(ctx, userID); err == nil {
		for _, c := range convs {
			ids[c.ID] = struct{}{}
		}
	}

	pulled := 0
	var errs []error
	rows, err := backend.Select(ctx, remote.TableConversations, "user_id", userID, lastSyncAt)
	if err != nil {
		errs = append(errs, fmt.Errorf("conversations: %w", err))
	} else {
		for _, row := range rows {
			c, err := conversationFromRow(row)
			if err != nil {
				e.logger.Warn("skipping malformed remote row", "table", remote.TableConversations, "error", err)
				continue
			}
			if err := local.SaveConversation(ctx, c); err != nil {
				errs = append(errs, fmt.Errorf("conversations: %w", err))
				continue
			}
			ids[c.ID] = struct{}{}
			pulled++
		}
	}

	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return pulled, out, errors.Join(errs...)
}

// FullSync pushes, then pulls, then recomputes the status. Errors never
// propagate: they land in Status.LastError while PendingCount is still
// recomputed from the queue, so the caller's view stays accurate.
func (e *Engine) FullSync(ctx context.Context, backend remote.Backend, local store.Store, lastSyncAt *time.Time, userID string) Status {
	e.setSyncing(true)
	defer e.setSyncing(false)

	var push PushResult
	var pullErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				pullErr = fmt.Errorf("sync cycle panicked: %v", r)
			}
		}()
		push = e.PushChanges(ctx, backend)
		_, pullErr = e.PullChanges(ctx, backend, local, lastSyncAt, userID)
	}()

	pending, err := e.queue.Size(ctx)
	if err != nil {
		e.logger.Error("failed to read queue size", "error", err)
	}

	now := time.Now()
	st := Status{
		LastSyncAt:   &now,
		PendingCount: pending,
	}
	switch {
	case push.FirstErr != nil:
		st.LastError = push.FirstErr.Error()
	case pullErr != nil:
		st.LastError = pullErr.Error()
	}

	e.mu.Lock()
	st.IsSyncing = false
	e.status = st
	e.mu.Unlock()
	return st
}

// Hydrate performs a full pull with no watermark, for first sign-in or
// device restore.
func (e *Engine) Hydrate(ctx context.Context, backend remote.Backend, local store.Store, userID string) (int, error) {
	return e.PullChanges(ctx, backend, local, nil, userID)
}

// RemapLocalUser rewrites ownership of all local records from oldID to
// newID, for the moment an anonymous local identity signs in. This is a
// local-only rewrite: it bypasses the queue; the next full sync
// re-establishes remote state. Running it twice is safe since every
// re-save is an upsert.
func (e *Engine) RemapLocalUser(ctx context.Context, oldID, newID string, local store.Store) error {
	if oldID == newID {
		return nil
	}

	if u, err := local.GetUser(ctx, oldID); err != nil {
		return fmt.Errorf("failed to load user %s: %w", oldID, err)
	} else if u != nil {
		u.ID = newID
		if err := local.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("failed to re-save user under %s: %w", newID, err)
		}
	}

	if plan, err := local.GetCurrentPlan(ctx, oldID); err != nil {
		return fmt.Errorf("failed to load current plan: %w", err)
	} else if plan != nil {
		plan.UserID = newID
		if err := local.SaveWorkoutPlan(ctx, plan); err != nil {
			return fmt.Errorf("failed to remap plan %s: %w", plan.ID, err)
		}
	}

	sessions, err := local.GetWorkoutHistory(ctx, oldID, 0)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	for _, s := range sessions {
		s.UserID = newID
		if err := local.SaveWorkoutSession(ctx, s); err != nil {
			return fmt.Errorf("failed to remap session %s: %w", s.ID, err)
		}
	}

	convs, err := local.GetConversations(ctx, oldID)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	for _, c := range convs {
		c.UserID = newID
		if err := local.SaveConversation(ctx, c); err != nil {
			return fmt.Errorf("failed to remap conversation %s: %w", c.ID, err)
		}
		msgs, err := local.GetMessages(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to load messages for %s: %w", c.ID, err)
		}
		for _, m := range msgs {
			if err := local.SaveChatMessage(ctx, m); err != nil {
				return fmt.Errorf("failed to re-save message %s: %w", m.ID, err)
			}
		}
	}

	e.logger.Info("remapped local user", "from", oldID, "to", newID,
		"sessions", len(sessions), "conversations", len(convs))
	return nil
}

// PendingCount returns the queue length without running a sync cycle.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.queue.Size(ctx)
}

// Status returns the last recomputed status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// ClearQueue drops all pending entries. Used on sign-out so a stale queue
// is not replayed under a different identity.
func (e *Engine) ClearQueue(ctx context.Context) error {
	return e.queue.Clear(ctx)
}

// DeadLetters exposes the evicted-entry log for inspection.
func (e *Engine) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	return e.queue.DeadLetters(ctx)
}

func (e *Engine) setSyncing(v bool) {
	e.mu.Lock()
	e.status.IsSyncing = v
	e.mu.Unlock()
}
