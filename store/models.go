// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

// Package store provides the on-device persistent store for Gainius
// entities (users, workout plans, workout sessions, conversations and
// chat messages) backed by SQLite.
package store

import (
	"time"
)

// User is the owner of every other entity, directly or transitively.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	UnitKg    bool      `json:"unitKg"` // false means pounds
	CreatedAt time.Time `json:"createdAt"`
}

// PlannedExercise is one exercise slot inside a workout plan.
type PlannedExercise struct {
	Name     string  `json:"name"`
	Sets     int     `json:"sets"`
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weightKg"`
}

// WorkoutPlan is a named list of planned exercises. At most one plan per
// user is active at a time; GetCurrentPlan returns the active one.
type WorkoutPlan struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Name      string            `json:"name"`
	Exercises []PlannedExercise `json:"exercises"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ExerciseSet is one performed set inside a workout session.
type ExerciseSet struct {
	Exercise  string  `json:"exercise"`
	SetNumber int     `json:"setNumber"`
	Reps      int     `json:"reps"`
	WeightKg  float64 `json:"weightKg"`
}

// WorkoutSession is one recorded workout.
type WorkoutSession struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	PlanID      string        `json:"planId,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Sets        []ExerciseSet `json:"sets"`
	Notes       string        `json:"notes,omitempty"`
}

// Conversation groups chat messages. Messages reference their conversation,
// not the user, so user scoping of messages always goes through here.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatMessage is a single chat turn.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ExerciseRecord is one historical set of a given exercise, used by the
// weight-suggestion UI. It is derived from stored sessions, never persisted.
type ExerciseRecord struct {
	SessionID   string      `json:"sessionId"`
	PerformedAt time.Time   `json:"performedAt"`
	Set         ExerciseSet `json:"set"`
}
