// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/splicebridge/lib/testutil"
)

func newTestFanOut(t *testing.T, config FanOutConfig) *FanOut {
	t.Helper()
	config.Logger = discardLogger()
	config.Registerer = prometheus.NewRegistry()
	fanOut, err := NewFanOut(config)
	if err != nil {
		t.Fatalf("NewFanOut: %v", err)
	}
	return fanOut
}

func runFanOut(t *testing.T, fanOut *FanOut) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fanOut.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "fan-out shutdown"); err != nil {
			t.Errorf("Run: %v", err)
		}
	})
}

func TestDispatchReachesEverySink(t *testing.T) {
	db := newChannelSink("db", nil)
	api := newChannelSink("api", nil)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{db, api}})
	runFanOut(t, fanOut)

	fanOut.Dispatch(testSnapshot())

	fromDB := testutil.RequireReceive(t, db.events, 5*time.Second, "db delivery")
	fromAPI := testutil.RequireReceive(t, api.events, 5*time.Second, "api delivery")
	if fromDB.ID != fromAPI.ID {
		t.Errorf("sinks saw different event ids: %s vs %s", fromDB.ID, fromAPI.ID)
	}
	if fromDB.Origin != OriginLive {
		t.Errorf("origin = %q, want live", fromDB.Origin)
	}
	if fromDB.Pair == nil || *fromDB.Pair != testSnapshot() {
		t.Errorf("pair = %+v, want %+v", fromDB.Pair, testSnapshot())
	}
}

func TestResyncAndReadingEvents(t *testing.T) {
	sink := newChannelSink("db", nil)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{sink}, Workers: 1})
	runFanOut(t, fanOut)

	fanOut.Resync(testSnapshot())
	resynced := testutil.RequireReceive(t, sink.events, 5*time.Second, "resync delivery")
	if resynced.Origin != OriginResync || resynced.Pair == nil {
		t.Errorf("resync event = %+v", resynced)
	}

	fanOut.DeliverReading(Reading{Key: "Speed", Value: 120.5, Stamp: remainStamp, Status: "Good"})
	reading := testutil.RequireReceive(t, sink.events, 5*time.Second, "reading delivery")
	if reading.Reading == nil || reading.Reading.Key != "Speed" || reading.Pair != nil {
		t.Errorf("reading event = %+v", reading)
	}
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	first := newChannelSink("db", nil)
	second := newChannelSink("api", nil)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{first, second}, QueueSize: 1})

	// Not running: the first job fills the queue and the second drops.
	err := fanOut.Submit(PairEvent(OriginLive, testSnapshot()))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit error = %v, want ErrQueueFull", err)
	}
	if fanOut.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", fanOut.Pending())
	}
	if dropped := promtestutil.ToFloat64(fanOut.dropped.WithLabelValues("api")); dropped != 1 {
		t.Errorf("api dropped = %v, want 1", dropped)
	}

	// Dispatch on a full queue returns immediately too.
	fanOut.Dispatch(testSnapshot())
	if dropped := promtestutil.ToFloat64(fanOut.dropped.WithLabelValues("db")); dropped != 1 {
		t.Errorf("db dropped = %v, want 1", dropped)
	}
}

func TestFailingSinkDoesNotStopOthers(t *testing.T) {
	failing := newChannelSink("api", errors.New("connection refused"))
	healthy := newChannelSink("db", nil)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{failing, healthy}, Workers: 1})
	runFanOut(t, fanOut)

	for range 3 {
		fanOut.Dispatch(testSnapshot())
	}
	for i := range 3 {
		testutil.RequireReceive(t, failing.events, 5*time.Second, "failing delivery %d", i)
		testutil.RequireReceive(t, healthy.events, 5*time.Second, "healthy delivery %d", i)
	}
}

func TestDuplicateIsCountedSeparately(t *testing.T) {
	sink := newChannelSink("db", ErrDuplicate)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{sink}, Workers: 1})
	runFanOut(t, fanOut)

	fanOut.Resync(testSnapshot())
	testutil.RequireReceive(t, sink.events, 5*time.Second, "duplicate delivery")

	// The counter is updated after Deliver returns; a second delivery
	// on the single worker orders the first one's accounting before it.
	fanOut.Resync(testSnapshot())
	testutil.RequireReceive(t, sink.events, 5*time.Second, "second delivery")
	if errorsCounted := promtestutil.ToFloat64(fanOut.deliveries.WithLabelValues("db", "error")); errorsCounted != 0 {
		t.Errorf("error deliveries = %v, want 0", errorsCounted)
	}
	if duplicates := promtestutil.ToFloat64(fanOut.deliveries.WithLabelValues("db", "duplicate")); duplicates < 1 {
		t.Errorf("duplicate deliveries = %v, want at least 1", duplicates)
	}
}

func TestSinkTimeoutBoundsDelivery(t *testing.T) {
	blocking := &blockingSink{started: make(chan Event, 4)}
	after := newChannelSink("db", nil)
	fanOut := newTestFanOut(t, FanOutConfig{
		Sinks:       []Sink{blocking, after},
		Workers:     1,
		SinkTimeout: 20 * time.Millisecond,
	})
	runFanOut(t, fanOut)

	fanOut.Dispatch(testSnapshot())
	testutil.RequireReceive(t, blocking.started, 5*time.Second, "blocking delivery started")
	// The only worker is stuck in the blocking sink until its timeout.
	testutil.RequireReceive(t, after.events, 5*time.Second, "delivery after timeout")
}

func TestRunAbandonsQueueOnCancel(t *testing.T) {
	sink := newChannelSink("db", nil)
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{sink}})
	fanOut.Dispatch(testSnapshot())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fanOut.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.RequireNoReceive(t, sink.events, 20*time.Millisecond, "delivery after cancel")
	if fanOut.Pending() != 1 {
		t.Errorf("Pending = %d, want the abandoned job", fanOut.Pending())
	}
}

func TestSubmitRejectsMalformedEvent(t *testing.T) {
	fanOut := newTestFanOut(t, FanOutConfig{Sinks: []Sink{newChannelSink("db", nil)}})
	if err := fanOut.Submit(Event{}); err == nil {
		t.Error("Submit accepted an event with neither pair nor reading")
	}
}

func TestNewFanOutRequiresLogger(t *testing.T) {
	if _, err := NewFanOut(FanOutConfig{}); err == nil {
		t.Error("NewFanOut without Logger succeeded")
	}
}
