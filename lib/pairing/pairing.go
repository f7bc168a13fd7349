// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bureau-foundation/splicebridge/lib/clock"
)

// Dispatcher receives completed pairs. Implementations must not block.
type Dispatcher interface {
	Dispatch(snapshot Snapshot)
}

// Record is the live pairing state of one key.
type Record struct {
	Key                 string
	StationID           int
	Remain              *int
	PreviousRemain      *int
	RemainStamp         *time.Time
	PreviousRemainStamp *time.Time
	LastUpdate          time.Time

	// Paired is the last pair dispatched for the key. Halves that
	// arrived out of order never set it.
	Paired *Snapshot
}

// Complete reports whether both halves are present. A complete record
// is not necessarily a dispatched pair; see LastPair.
func (r Record) Complete() bool {
	return r.Remain != nil && r.PreviousRemain != nil &&
		r.RemainStamp != nil && r.PreviousRemainStamp != nil
}

// Snapshot returns the record as a pair. ok is false when a half is
// missing.
func (r Record) Snapshot() (Snapshot, bool) {
	if !r.Complete() {
		return Snapshot{}, false
	}
	return Snapshot{
		Key:                 r.Key,
		StationID:           r.StationID,
		Remain:              *r.Remain,
		PreviousRemain:      *r.PreviousRemain,
		RemainStamp:         *r.RemainStamp,
		PreviousRemainStamp: *r.PreviousRemainStamp,
	}, true
}

// LastPair returns the pair most recently dispatched for the key.
func (r Record) LastPair() (Snapshot, bool) {
	if r.Paired == nil {
		return Snapshot{}, false
	}
	return *r.Paired, true
}

// clone returns a deep copy so callers cannot reach engine state.
func (r *Record) clone() Record {
	copied := *r
	if r.Remain != nil {
		value := *r.Remain
		copied.Remain = &value
	}
	if r.PreviousRemain != nil {
		value := *r.PreviousRemain
		copied.PreviousRemain = &value
	}
	if r.RemainStamp != nil {
		stamp := *r.RemainStamp
		copied.RemainStamp = &stamp
	}
	if r.PreviousRemainStamp != nil {
		stamp := *r.PreviousRemainStamp
		copied.PreviousRemainStamp = &stamp
	}
	if r.Paired != nil {
		paired := *r.Paired
		copied.Paired = &paired
	}
	return copied
}

// Snapshot is a completed pair as handed to sinks.
type Snapshot struct {
	Key                 string
	StationID           int
	Remain              int
	PreviousRemain      int
	RemainStamp         time.Time
	PreviousRemainStamp time.Time
}

// Config holds the Engine's collaborators.
type Config struct {
	// StationID is stamped on every record (the corrugator number).
	StationID int

	// Dispatcher receives completed pairs. Required.
	Dispatcher Dispatcher

	// Clock provides LastUpdate times. Required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger

	// Registerer receives the engine's counters. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// Engine is the per-key pairing state machine.
type Engine struct {
	mu         sync.Mutex
	records    map[string]*Record
	stationID  int
	dispatcher Dispatcher
	clock      clock.Clock
	logger     *slog.Logger

	dispatched prometheus.Counter
	skipped    prometheus.Counter
}

// New creates an Engine with an empty record table.
func New(config Config) (*Engine, error) {
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("pairing: Dispatcher is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("pairing: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("pairing: Logger is required")
	}
	factory := promauto.With(config.Registerer)
	return &Engine{
		records:    make(map[string]*Record),
		stationID:  config.StationID,
		dispatcher: config.Dispatcher,
		clock:      config.Clock,
		logger:     config.Logger,
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "splice_pairs_dispatched_total",
			Help: "Completed pairs handed to the export fan-out.",
		}),
		skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "splice_pairs_skipped_total",
			Help: "Previous halves that arrived before any current half for their key.",
		}),
	}, nil
}

// OnHalfEvent records one half-event for key. A previous half
// dispatches the pair when the current half is already known; the
// returned snapshot and true report that dispatch.
func (e *Engine) OnHalfEvent(key string, value int, stamp time.Time, isPrevious bool) (Snapshot, bool) {
	e.mu.Lock()
	record, ok := e.records[key]
	if !ok {
		record = &Record{Key: key, StationID: e.stationID}
		e.records[key] = record
	}
	record.LastUpdate = e.clock.Now()
	if !isPrevious {
		record.Remain = &value
		record.RemainStamp = &stamp
		e.mu.Unlock()
		return Snapshot{}, false
	}
	record.PreviousRemain = &value
	record.PreviousRemainStamp = &stamp
	snapshot, complete := record.Snapshot()
	if complete {
		paired := snapshot
		record.Paired = &paired
	}
	e.mu.Unlock()

	if !complete {
		e.skipped.Inc()
		e.logger.Warn("previous half before current, pair skipped",
			"key", key,
			"previous_remain", value,
			"stamp", stamp,
		)
		return Snapshot{}, false
	}

	e.dispatched.Inc()
	e.logger.Info("splice pair complete",
		"key", snapshot.Key,
		"station", snapshot.StationID,
		"remain", snapshot.Remain,
		"previous_remain", snapshot.PreviousRemain,
	)
	e.dispatcher.Dispatch(snapshot)
	return snapshot, true
}

// Freshest returns a copy of the record with the latest LastUpdate.
// Ties go to the lexically smallest key. ok is false when no record
// exists yet.
func (e *Engine) Freshest() (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var freshest *Record
	for _, record := range e.records {
		if freshest == nil ||
			record.LastUpdate.After(freshest.LastUpdate) ||
			(record.LastUpdate.Equal(freshest.LastUpdate) && record.Key < freshest.Key) {
			freshest = record
		}
	}
	if freshest == nil {
		return Record{}, false
	}
	return freshest.clone(), true
}

// Record returns a copy of the record for key.
func (e *Engine) Record(key string) (Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.records[key]
	if !ok {
		return Record{}, false
	}
	return record.clone(), true
}

// Records returns copies of every record, sorted by key.
func (e *Engine) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := make([]Record, 0, len(e.records))
	for _, record := range e.records {
		records = append(records, record.clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}
