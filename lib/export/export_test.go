// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/splicebridge/lib/pairing"
)

var (
	remainStamp   = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	previousStamp = time.Date(2026, 10, 17, 9, 31, 0, 0, time.UTC)
)

func testSnapshot() pairing.Snapshot {
	return pairing.Snapshot{
		Key:                 "GL",
		StationID:           2,
		Remain:              42,
		PreviousRemain:      40,
		RemainStamp:         remainStamp,
		PreviousRemainStamp: previousStamp,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// channelSink reports every delivery on a channel and returns err.
type channelSink struct {
	name   string
	events chan Event
	err    error
}

func newChannelSink(name string, err error) *channelSink {
	return &channelSink{name: name, events: make(chan Event, 16), err: err}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) Deliver(_ context.Context, event Event) error {
	s.events <- event
	return s.err
}

// blockingSink holds every delivery until its context ends.
type blockingSink struct {
	started chan Event
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(ctx context.Context, event Event) error {
	s.started <- event
	<-ctx.Done()
	return ctx.Err()
}
