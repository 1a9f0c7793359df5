// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncer implements the Gainius synchronization engine: a durable
// write-queue of local mutations replayed against the remote backend in
// dependency order, plus incremental pull of remote changes by watermark.
package syncer

import (
	"fmt"

	"github.com/fishman08/gainius-sub000/remote"
)

// Kind identifies one of the synchronized entity categories.
type Kind string

const (
	KindUser           Kind = "user"
	KindWorkoutPlan    Kind = "workout_plan"
	KindWorkoutSession Kind = "workout_session"
	KindConversation   Kind = "conversation"
	KindChatMessage    Kind = "chat_message"
)

// Op is the mutation type carried by a queue entry.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Valid reports whether k is one of the closed set of entity kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindWorkoutPlan, KindWorkoutSession, KindConversation, KindChatMessage:
		return true
	}
	return false
}

// Priority is the push dependency band. Users must exist remotely before
// anything that references them, and conversations before their messages;
// lower bands are pushed first.
func (k Kind) Priority() int {
	switch k {
	case KindUser:
		return 0
	case KindWorkoutPlan, KindWorkoutSession, KindConversation:
		return 1
	case KindChatMessage:
		return 2
	}
	// Unknown kinds sort last so they cannot block real entities.
	return 3
}

// Table returns the remote table this kind maps to.
func (k Kind) Table() (string, error) {
	switch k {
	case KindUser:
		return remote.TableUsers, nil
	case KindWorkoutPlan:
		return remote.TableWorkoutPlans, nil
	case KindWorkoutSession:
		return remote.TableSessions, nil
	case KindConversation:
		return remote.TableConversations, nil
	case KindChatMessage:
		return remote.TableMessages, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", k)
}
