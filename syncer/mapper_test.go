package syncer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fishman08/gainius-sub000/remote"
	"github.com/fishman08/gainius-sub000/store"
)

func TestPlanMappingRoundTrip(t *testing.T) {
	plan := &store.WorkoutPlan{
		ID:     "p1",
		UserID: "u1",
		Name:   "Starting Strength",
		Exercises: []store.PlannedExercise{
			{Name: "squat", Sets: 3, Reps: 5, WeightKg: 100},
			{Name: "bench", Sets: 3, Reps: 5, WeightKg: 70},
		},
		Active:    true,
		CreatedAt: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
	}

	row, err := planToRow(plan)
	require.NoError(t, err)
	require.Equal(t, "p1", row["id"])
	require.Equal(t, "u1", row["user_id"], "camelCase flattens to snake_case")
	require.Contains(t, string(row["exercises"].(json.RawMessage)), "squat")

	got, err := planFromRow(row)
	require.NoError(t, err)
	require.Equal(t, plan.ID, got.ID)
	require.Equal(t, plan.Exercises, got.Exercises, "nested list survives the JSON column")
	require.True(t, got.Active)
	require.Equal(t, plan.CreatedAt, got.CreatedAt)
}

func TestSessionFromJSONTransportRow(t *testing.T) {
	// Rows arriving over HTTP carry timestamps and JSON columns as strings.
	row := remote.Row{
		"id":           "s1",
		"user_id":      "u1",
		"plan_id":      "p1",
		"started_at":   "2025-02-01T08:00:00Z",
		"completed_at": "2025-02-01T09:00:00Z",
		"sets":         `[{"exercise":"deadlift","setNumber":1,"reps":5,"weightKg":120}]`,
		"notes":        "heavy",
	}
	s, err := sessionFromRow(row)
	require.NoError(t, err)
	require.Equal(t, "p1", s.PlanID)
	require.NotNil(t, s.CompletedAt)
	require.Len(t, s.Sets, 1)
	require.Equal(t, "deadlift", s.Sets[0].Exercise)
	require.Equal(t, 120.0, s.Sets[0].WeightKg)
}

func TestUserRowDefaultsForOptionalFields(t *testing.T) {
	u, err := userFromRow(remote.Row{"id": "u1"})
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)
	require.Empty(t, u.Name)
	require.Empty(t, u.Email)
	require.False(t, u.UnitKg)
	require.True(t, u.CreatedAt.IsZero())
}

func TestMalformedRowsFailMapping(t *testing.T) {
	cases := []struct {
		name string
		fn   func() error
	}{
		{"user without id", func() error { _, err := userFromRow(remote.Row{"name": "x"}); return err }},
		{"plan without user_id", func() error { _, err := planFromRow(remote.Row{"id": "p1"}); return err }},
		{"plan with broken exercises", func() error {
			_, err := planFromRow(remote.Row{"id": "p1", "user_id": "u1", "exercises": "{not json"})
			return err
		}},
		{"message without conversation", func() error { _, err := messageFromRow(remote.Row{"id": "m1"}); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			require.Error(t, err)
			var me *MappingError
			require.ErrorAs(t, err, &me)
		})
	}
}
