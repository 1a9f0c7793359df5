// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fishman08/gainius-sub000/remote"
	"github.com/fishman08/gainius-sub000/store"
)

// MappingError marks a malformed remote row. On pull the offending row is
// skipped and the rest of the batch continues; it is never retried because
// retrying cannot fix the data.
type MappingError struct {
	Table string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("malformed row in %s: %v", e.Table, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

func mappingErr(table, field string) error {
	return &MappingError{Table: table, Err: fmt.Errorf("missing or invalid %q", field)}
}

// userToRow flattens a user into its remote row shape.
func userToRow(u *store.User) remote.Row {
	return remote.Row{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"unit_kg":    u.UnitKg,
		"created_at": u.CreatedAt.UTC(),
	}
}

func userFromRow(row remote.Row) (*store.User, error) {
	id, ok := rowString(row, "id")
	if !ok {
		return nil, mappingErr(remote.TableUsers, "id")
	}
	name, _ := rowString(row, "name")
	email, _ := rowString(row, "email")
	return &store.User{
		ID:        id,
		Name:      name,
		Email:     email,
		UnitKg:    rowBool(row, "unit_kg"),
		CreatedAt: rowTime(row, "created_at"),
	}, nil
}

// planToRow JSON-encodes the exercise list into a single remote column.
func planToRow(p *store.WorkoutPlan) (remote.Row, error) {
	exercises, err := json.Marshal(p.Exercises)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exercises: %w", err)
	}
	return remote.Row{
		"id":         p.ID,
		"user_id":    p.UserID,
		"name":       p.Name,
		"exercises":  json.RawMessage(exercises),
		"active":     p.Active,
		"created_at": p.CreatedAt.UTC(),
	}, nil
}

func planFromRow(row remote.Row) (*store.WorkoutPlan, error) {
	id, ok := rowString(row, "id")
	if !ok {
		return nil, mappingErr(remote.TableWorkoutPlans, "id")
	}
	userID, ok := rowString(row, "user_id")
	if !ok {
		return nil, mappingErr(remote.TableWorkoutPlans, "user_id")
	}
	p := &store.WorkoutPlan{
		ID:        id,
		UserID:    userID,
		Active:    rowBool(row, "active"),
		CreatedAt: rowTime(row, "created_at"),
	}
	p.Name, _ = rowString(row, "name")
	if err := rowJSON(row, "exercises", &p.Exercises); err != nil {
		return nil, &MappingError{Table: remote.TableWorkoutPlans, Err: err}
	}
	return p, nil
}

func sessionToRow(s *store.WorkoutSession) (remote.Row, error) {
	sets, err := json.Marshal(s.Sets)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sets: %w", err)
	}
	row := remote.Row{
		"id":         s.ID,
		"user_id":    s.UserID,
		"started_at": s.StartedAt.UTC(),
		"sets":       json.RawMessage(sets),
		"notes":      s.Notes,
	}
	if s.PlanID != "" {
		row["plan_id"] = s.PlanID
	} else {
		row["plan_id"] = nil
	}
	if s.CompletedAt != nil {
		row["completed_at"] = s.CompletedAt.UTC()
	} else {
		row["completed_at"] = nil
	}
	return row, nil
}

func sessionFromRow(row remote.Row) (*store.WorkoutSession, error) {
	id, ok := rowString(row, "id")
	if !ok {
		return nil, mappingErr(remote.TableSessions, "id")
	}
	userID, ok := rowString(row, "user_id")
	if !ok {
		return nil, mappingErr(remote.TableSessions, "user_id")
	}
	s := &store.WorkoutSession{
		ID:        id,
		UserID:    userID,
		StartedAt: rowTime(row, "started_at"),
	}
	s.PlanID, _ = rowString(row, "plan_id")
	s.Notes, _ = rowString(row, "notes")
	if t := rowTime(row, "completed_at"); !t.IsZero() {
		s.CompletedAt = &t
	}
	if err := rowJSON(row, "sets", &s.Sets); err != nil {
		return nil, &MappingError{Table: remote.TableSessions, Err: err}
	}
	return s, nil
}

func conversationToRow(c *store.Conversation) remote.Row {
	return remote.Row{
		"id":         c.ID,
		"user_id":    c.UserID,
		"title":      c.Title,
		"created_at": c.CreatedAt.UTC(),
	}
}

func conversationFromRow(row remote.Row) (*store.Conversation, error) {
	id, ok := rowString(row, "id")
	if !ok {
		return nil, mappingErr(remote.TableConversations, "id")
	}
	userID, ok := rowString(row, "user_id")
	if !ok {
		return nil, mappingErr(remote.TableConversations, "user_id")
	}
	c := &store.Conversation{
		ID:        id,
		UserID:    userID,
		CreatedAt: rowTime(row, "created_at"),
	}
	c.Title, _ = rowString(row, "title")
	return c, nil
}

func messageToRow(m *store.ChatMessage) remote.Row {
	return remote.Row{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"role":            m.Role,
		"content":         m.Content,
		"created_at":      m.CreatedAt.UTC(),
	}
}

func messageFromRow(row remote.Row) (*store.ChatMessage, error) {
	id, ok := rowString(row, "id")
	if !ok {
		return nil, mappingErr(remote.TableMessages, "id")
	}
	convID, ok := rowString(row, "conversation_id")
	if !ok {
		return nil, mappingErr(remote.TableMessages, "conversation_id")
	}
	m := &store.ChatMessage{
		ID:             id,
		ConversationID: convID,
		CreatedAt:      rowTime(row, "created_at"),
	}
	m.Role, _ = rowString(row, "role")
	m.Content, _ = rowString(row, "content")
	return m, nil
}

// rowString reads a non-empty string column.
func rowString(row remote.Row, key string) (string, bool) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func rowBool(row remote.Row, key string) bool {
	switch v := row[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

// rowTime tolerates both time.Time values (pgx) and RFC 3339 strings
// (JSON transport); absent or unparsable values come back zero.
func rowTime(row remote.Row, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// rowJSON decodes a column that holds a JSON document, whether it arrived
// as a string, raw bytes, or an already-decoded value.
func rowJSON(row remote.Row, key string, out any) error {
	v, ok := row[key]
	if !ok || v == nil {
		return nil
	}
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	case json.RawMessage:
		data = t
	default:
		// pgx decodes JSON columns into native values already.
		encoded, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to re-encode %q: %w", key, err)
		}
		data = encoded
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}
