// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"time"
)

// Preferences gates which entity categories leave the device. The user
// record itself is always synchronized: every other entity depends on it
// existing remotely as a foreign-key target.
type Preferences struct {
	SyncWorkouts bool
	SyncPlans    bool
	SyncChats    bool
}

// DefaultPreferences syncs everything.
func DefaultPreferences() Preferences {
	return Preferences{SyncWorkouts: true, SyncPlans: true, SyncChats: true}
}

// ShouldSync reports whether a kind is enabled under these preferences.
func (p Preferences) ShouldSync(kind Kind) bool {
	switch kind {
	case KindUser:
		return true
	case KindWorkoutPlan:
		return p.SyncPlans
	case KindWorkoutSession:
		return p.SyncWorkouts
	case KindConversation, KindChatMessage:
		return p.SyncChats
	}
	return false
}

// Status is the UI-facing view of the engine. It is recomputed after
// every sync cycle and never persisted; LastError is data, not a stuck
// state — the engine is always ready for another attempt.
type Status struct {
	LastSyncAt   *time.Time
	PendingCount int
	IsSyncing    bool
	LastError    string
}

// PushResult summarizes one push cycle. FirstErr keeps the first error
// of the cycle only; later failures are counted but not surfaced so the
// most actionable message is not overwritten.
type PushResult struct {
	Pushed   int
	Errors   int
	FirstErr error
}

// Config holds the engine and scheduler tuning knobs.
type Config struct {
	// MaxRetries is the push retry budget per entry before the entry is
	// evicted to the dead-letter log.
	MaxRetries int
	// DebounceDelay is how long after the last local write the debounced
	// push fires, coalescing bursts into one round trip.
	DebounceDelay time.Duration
	// SyncInterval drives the periodic full sync that picks up changes
	// made on other devices.
	SyncInterval time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    3,
		DebounceDelay: 500 * time.Millisecond,
		SyncInterval:  5 * time.Minute,
	}
}
