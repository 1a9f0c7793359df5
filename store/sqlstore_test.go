package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s, err := NewSQLStore(db)
	require.NoError(t, err)
	return s
}

func TestSchemaCreated(t *testing.T) {
	s := newTestStore(t)
	for _, table := range []string{"users", "workout_plans", "workout_sessions", "conversations", "chat_messages"} {
		var count int
		err := s.DB().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestUserRoundTripAndUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	u := &User{ID: "u1", Name: "Ann", Email: "ann@example.com", UnitKg: true, CreatedAt: created}
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, u, got)

	// Saving again with the same id overwrites in place.
	u.Name = "Ann B"
	require.NoError(t, s.SaveUser(ctx, u))
	got, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ann B", got.Name)

	missing, err := s.GetUser(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCurrentPlanTracksActivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	first := &WorkoutPlan{
		ID: "p1", UserID: "u1", Name: "5x5", Active: true, CreatedAt: now,
		Exercises: []PlannedExercise{{Name: "squat", Sets: 5, Reps: 5, WeightKg: 80}},
	}
	require.NoError(t, s.SaveWorkoutPlan(ctx, first))

	second := &WorkoutPlan{ID: "p2", UserID: "u1", Name: "PPL", Active: true, CreatedAt: now.Add(time.Minute)}
	require.NoError(t, s.SaveWorkoutPlan(ctx, second))

	current, err := s.GetCurrentPlan(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "p2", current.ID, "activating a plan deactivates the previous one")

	none, err := s.GetCurrentPlan(ctx, "other-user")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestWorkoutHistoryOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveWorkoutSession(ctx, &WorkoutSession{
			ID: string(rune('a'+i)), UserID: "u1", StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := s.GetWorkoutHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "e", all[0].ID, "newest first")

	limited, err := s.GetWorkoutHistory(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, []string{"e", "d"}, []string{limited[0].ID, limited[1].ID})
}

func TestSessionRoundTripWithSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC)
	completed := started.Add(time.Hour)

	sess := &WorkoutSession{
		ID: "s1", UserID: "u1", PlanID: "p1",
		StartedAt: started, CompletedAt: &completed,
		Sets: []ExerciseSet{
			{Exercise: "squat", SetNumber: 1, Reps: 5, WeightKg: 100},
			{Exercise: "squat", SetNumber: 2, Reps: 5, WeightKg: 100},
		},
		Notes: "felt strong",
	}
	require.NoError(t, s.SaveWorkoutSession(ctx, sess))

	got, err := s.GetWorkoutHistory(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, sess, got[0])

	require.NoError(t, s.DeleteWorkoutSession(ctx, "s1"))
	empty, err := s.GetWorkoutHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Empty(t, empty)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteWorkoutSession(ctx, "s1"))
}

func TestExerciseHistoryFiltersAndLimits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveWorkoutSession(ctx, &WorkoutSession{
		ID: "old", UserID: "u1", StartedAt: base,
		Sets: []ExerciseSet{
			{Exercise: "bench", SetNumber: 1, Reps: 5, WeightKg: 60},
			{Exercise: "squat", SetNumber: 1, Reps: 5, WeightKg: 90},
		},
	}))
	require.NoError(t, s.SaveWorkoutSession(ctx, &WorkoutSession{
		ID: "new", UserID: "u1", StartedAt: base.Add(24 * time.Hour),
		Sets: []ExerciseSet{
			{Exercise: "bench", SetNumber: 1, Reps: 5, WeightKg: 62.5},
			{Exercise: "bench", SetNumber: 2, Reps: 5, WeightKg: 62.5},
		},
	}))

	records, err := s.GetExerciseHistory(ctx, "bench", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "new", records[0].SessionID, "newest session's sets first")
	require.Equal(t, 62.5, records[0].Set.WeightKg)

	limited, err := s.GetExerciseHistory(ctx, "bench", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestConversationsAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)

	conv := &Conversation{ID: "c1", UserID: "u1", Title: "form check", CreatedAt: now}
	require.NoError(t, s.SaveConversation(ctx, conv))
	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, conv, got)

	require.NoError(t, s.SaveChatMessage(ctx, &ChatMessage{
		ID: "m2", ConversationID: "c1", Role: "assistant", Content: "looks good", CreatedAt: now.Add(time.Minute),
	}))
	require.NoError(t, s.SaveChatMessage(ctx, &ChatMessage{
		ID: "m1", ConversationID: "c1", Role: "user", Content: "check my squat", CreatedAt: now,
	}))

	msgs, err := s.GetMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID, "messages come back oldest first")

	convs, err := s.GetConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestClearAllData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveUser(ctx, &User{ID: "u1", CreatedAt: now}))
	require.NoError(t, s.SaveConversation(ctx, &Conversation{ID: "c1", UserID: "u1", CreatedAt: now}))
	require.NoError(t, s.SaveChatMessage(ctx, &ChatMessage{ID: "m1", ConversationID: "c1", Role: "user", CreatedAt: now}))

	require.NoError(t, s.ClearAllData(ctx))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, u)
	msgs, err := s.GetMessages(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, msgs)
}
