// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/splicebridge/lib/pairing"
)

// Origin records why an event was produced.
type Origin string

const (
	// OriginLive is a pair completed by a notification.
	OriginLive Origin = "live"

	// OriginResync is the freshest pair re-delivered by the scheduler.
	OriginResync Origin = "resync"
)

// Reading is one resolved notification exported without pairing.
type Reading struct {
	Key    string
	Value  any
	Stamp  time.Time
	Status string
}

// Event is the unit handed to sinks. Exactly one of Pair and Reading
// is set.
type Event struct {
	ID      uuid.UUID
	Origin  Origin
	Pair    *pairing.Snapshot
	Reading *Reading
}

// PairEvent wraps a snapshot in an event with a new ID.
func PairEvent(origin Origin, snapshot pairing.Snapshot) Event {
	return Event{ID: uuid.New(), Origin: origin, Pair: &snapshot}
}

// ReadingEvent wraps a reading in a live event with a new ID.
func ReadingEvent(reading Reading) Event {
	return Event{ID: uuid.New(), Origin: OriginLive, Reading: &reading}
}

// Key returns the data key the event is stored under.
func (e Event) Key() string {
	switch {
	case e.Pair != nil:
		return e.Pair.Key
	case e.Reading != nil:
		return e.Reading.Key
	default:
		return ""
	}
}

func (e Event) validate() error {
	if (e.Pair == nil) == (e.Reading == nil) {
		return fmt.Errorf("event %s must carry exactly one of pair or reading", e.ID)
	}
	return nil
}
