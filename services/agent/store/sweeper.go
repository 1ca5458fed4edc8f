// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SweeperConfig holds configuration for the session retention sweeper.
type SweeperConfig struct {
	// Interval is how often a sweep cycle runs. Default: 1 hour.
	Interval time.Duration

	// Retention is how long a session may sit untouched before deletion.
	// Default: 30 days.
	Retention time.Duration

	// BatchSize caps deletions per cycle. Default: 100.
	BatchSize int
}

// DefaultSweeperConfig returns production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  1 * time.Hour,
		Retention: 30 * 24 * time.Hour,
		BatchSize: 100,
	}
}

// Sweeper periodically deletes sessions whose updated_at is older than the
// retention window. Uses the ticker + done channel pattern for shutdown.
//
// Thread Safety: All public methods are thread-safe.
type Sweeper struct {
	store  SnapshotStore
	config SweeperConfig

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewSweeper creates a sweeper over the given store. Not started until
// Start() is called.
func NewSweeper(store SnapshotStore, config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Sweeper{
		store:  store,
		config: config,
	}
}

// Start launches the background sweep goroutine. Returns an error if the
// sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sweeper already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	go s.run(ctx)

	slog.Info("Session retention sweeper started",
		"interval", s.config.Interval.String(),
		"retention", s.config.Retention.String(),
	)
	return nil
}

// Stop halts the sweeper and waits for the current cycle to finish.
// Safe to call when not running.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.Retention)

	heads, err := s.store.List(ctx, 0)
	if err != nil {
		slog.Warn("Retention sweep listing failed", "error", err)
		return
	}

	deleted := 0
	for _, head := range heads {
		if deleted >= s.config.BatchSize {
			break
		}
		if head.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, head.SessionID); err != nil {
			slog.Warn("Retention sweep delete failed",
				"session_id", head.SessionID, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		slog.Info("Retention sweep completed",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}
