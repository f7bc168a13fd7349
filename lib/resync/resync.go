// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resync periodically re-delivers the most recently updated
// pair so a sink that missed a live delivery converges on the latest
// state. Only one pair, the freshest, is re-sent per cycle; older keys
// are not replayed.
package resync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/splicebridge/lib/clock"
	"github.com/bureau-foundation/splicebridge/lib/pairing"
)

// Source provides the freshest record. *pairing.Engine implements it.
type Source interface {
	Freshest() (pairing.Record, bool)
}

// Redeliverer receives the re-sent pair. *export.FanOut implements it.
type Redeliverer interface {
	Resync(snapshot pairing.Snapshot)
}

// Config holds the scheduler's parameters.
type Config struct {
	// Interval is the minimum time between re-deliveries. Zero or
	// negative disables the scheduler.
	Interval time.Duration

	Source      Source
	Redeliverer Redeliverer
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Scheduler re-delivers the freshest pair once per Interval.
type Scheduler struct {
	interval    time.Duration
	source      Source
	redeliverer Redeliverer
	clock       clock.Clock
	logger      *slog.Logger

	mu       sync.Mutex
	lastSync time.Time
}

// New creates a scheduler. lastSync starts at the clock's current
// time, so the first re-delivery happens one full Interval after start.
func New(config Config) (*Scheduler, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("resync: Source is required")
	}
	if config.Redeliverer == nil {
		return nil, fmt.Errorf("resync: Redeliverer is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("resync: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("resync: Logger is required")
	}
	return &Scheduler{
		interval:    config.Interval,
		source:      config.Source,
		redeliverer: config.Redeliverer,
		clock:       config.Clock,
		logger:      config.Logger,
		lastSync:    config.Clock.Now(),
	}, nil
}

// Enabled reports whether Interval is positive.
func (s *Scheduler) Enabled() bool { return s.interval > 0 }

// checkPeriod is how often Run evaluates SyncIfDue, so a re-delivery
// lands at most this long after it falls due.
const checkPeriod = time.Second

// Run evaluates SyncIfDue every checkPeriod (or every Interval, if
// shorter) until ctx is done. A disabled scheduler returns immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("resync disabled")
		return nil
	}
	ticker := s.clock.NewTicker(min(checkPeriod, s.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SyncIfDue()
		}
	}
}

// SyncIfDue re-delivers the last dispatched pair of the freshest key when more than Interval has
// passed since the last re-delivery. It reports whether a pair was
// handed to the redeliverer.
func (s *Scheduler) SyncIfDue() bool {
	if !s.Enabled() {
		return false
	}
	now := s.clock.Now()

	s.mu.Lock()
	if now.Sub(s.lastSync) <= s.interval {
		s.mu.Unlock()
		return false
	}
	s.lastSync = now
	s.mu.Unlock()

	record, ok := s.source.Freshest()
	if !ok {
		s.logger.Debug("resync skipped, no records yet")
		return false
	}
	// Only a pair that was dispatched live is re-sent. Halves that
	// arrived out of order can complete the record without ever
	// forming a pair.
	snapshot, paired := record.LastPair()
	if !paired {
		s.logger.Debug("resync skipped, freshest key has no dispatched pair", "key", record.Key)
		return false
	}

	s.logger.Info("resync freshest pair",
		"key", snapshot.Key,
		"remain", snapshot.Remain,
		"previous_remain", snapshot.PreviousRemain,
		"last_update", record.LastUpdate,
	)
	s.redeliverer.Resync(snapshot)
	return true
}
