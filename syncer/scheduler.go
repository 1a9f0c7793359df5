// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fishman08/gainius-sub000/remote"
	"github.com/fishman08/gainius-sub000/store"
)

// Scheduler drives the engine on two independent schedules: a debounced
// push shortly after the most recent local write, and a periodic full
// sync that picks up changes made on other devices. Overlapping cycles
// are tolerated (everything is idempotent) but a busy flag keeps a new
// full sync from starting while one is in flight.
type Scheduler struct {
	engine  *Engine
	backend remote.Backend
	local   store.Store
	userID  string
	cfg     *Config
	logger  *slog.Logger

	mu         sync.Mutex
	debounce   *time.Timer
	lastSyncAt *time.Time

	busy    int32
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for one signed-in user. A nil cfg uses
// DefaultConfig.
func NewScheduler(engine *Engine, backend remote.Backend, local store.Store, userID string, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		engine:  engine,
		backend: backend,
		local:   local,
		userID:  userID,
		cfg:     cfg,
		logger:  slog.Default(),
		stop:    make(chan struct{}),
	}
}

// Start hooks the engine's enqueue observer and launches the periodic
// loop. The context bounds individual sync cycles, not the scheduler
// lifetime; call Stop to tear down.
func (s *Scheduler) Start(ctx context.Context) {
	s.engine.OnEnqueue(s.kick)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SyncNow(ctx)
			}
		}
	}()
}

// kick (re)arms the debounce timer; bursts of writes collapse into one
// push.
func (s *Scheduler) kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.DebounceDelay, s.pushNow)
}

func (s *Scheduler) pushNow() {
	select {
	case <-s.stop:
		return
	default:
	}
	result := s.engine.PushChanges(context.Background(), s.backend)
	if result.FirstErr != nil {
		s.logger.Warn("debounced push finished with errors",
			"pushed", result.Pushed, "errors", result.Errors, "error", result.FirstErr)
	}
}

// SyncNow runs a full sync immediately unless one is already in flight,
// in which case it returns the engine's last status unchanged. The
// watermark advances only after a clean cycle, so a failed pull is
// retried from the same point.
func (s *Scheduler) SyncNow(ctx context.Context) Status {
	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		return s.engine.Status()
	}
	defer atomic.StoreInt32(&s.busy, 0)

	s.mu.Lock()
	watermark := s.lastSyncAt
	s.mu.Unlock()

	started := time.Now()
	st := s.engine.FullSync(ctx, s.backend, s.local, watermark, s.userID)
	if st.LastError == "" {
		s.mu.Lock()
		s.lastSyncAt = &started
		s.mu.Unlock()
	}
	return st
}

// LastSyncAt returns the current pull watermark, nil before the first
// clean sync.
func (s *Scheduler) LastSyncAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt
}

// SetLastSyncAt seeds the watermark, e.g. restored from app state.
func (s *Scheduler) SetLastSyncAt(t *time.Time) {
	s.mu.Lock()
	s.lastSyncAt = t
	s.mu.Unlock()
}

// Stop cancels the periodic loop and the pending debounce, and clears
// the enqueue observer so later writes do not fire into a dead scheduler.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()
	s.engine.ClearOnEnqueue()
	s.wg.Wait()
}
