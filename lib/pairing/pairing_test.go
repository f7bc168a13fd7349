// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pairing

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/splicebridge/lib/clock"
)

type recordingDispatcher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (d *recordingDispatcher) Dispatch(snapshot Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, snapshot)
}

func (d *recordingDispatcher) all() []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Snapshot(nil), d.snapshots...)
}

var epoch = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *recordingDispatcher, *clock.FakeClock) {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	fake := clock.Fake(epoch)
	engine, err := New(Config{
		StationID:  2,
		Dispatcher: dispatcher,
		Clock:      fake,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine, dispatcher, fake
}

func TestCurrentThenPreviousDispatches(t *testing.T) {
	engine, dispatcher, _ := newTestEngine(t)
	t1 := epoch.Add(-2 * time.Second)
	t2 := epoch.Add(-time.Second)

	if _, dispatched := engine.OnHalfEvent("GL", 42, t1, false); dispatched {
		t.Fatal("current half dispatched")
	}
	snapshot, dispatched := engine.OnHalfEvent("GL", 40, t2, true)
	if !dispatched {
		t.Fatal("previous half after current did not dispatch")
	}

	want := Snapshot{
		Key:                 "GL",
		StationID:           2,
		Remain:              42,
		PreviousRemain:      40,
		RemainStamp:         t1,
		PreviousRemainStamp: t2,
	}
	if snapshot != want {
		t.Errorf("snapshot = %+v, want %+v", snapshot, want)
	}
	got := dispatcher.all()
	if len(got) != 1 || got[0] != want {
		t.Errorf("dispatched = %+v, want [%+v]", got, want)
	}
	if count := promtestutil.ToFloat64(engine.dispatched); count != 1 {
		t.Errorf("dispatched counter = %v, want 1", count)
	}
}

func TestPreviousBeforeCurrentIsSkipped(t *testing.T) {
	engine, dispatcher, _ := newTestEngine(t)

	if _, dispatched := engine.OnHalfEvent("GL", 40, epoch, true); dispatched {
		t.Fatal("previous half without current dispatched")
	}
	if got := dispatcher.all(); len(got) != 0 {
		t.Fatalf("dispatched = %+v, want none", got)
	}
	if count := promtestutil.ToFloat64(engine.skipped); count != 1 {
		t.Errorf("skipped counter = %v, want 1", count)
	}

	record, ok := engine.Record("GL")
	if !ok {
		t.Fatal("record not created by previous half")
	}
	if record.Remain != nil {
		t.Errorf("Remain = %d, want nil", *record.Remain)
	}
	if record.PreviousRemain == nil || *record.PreviousRemain != 40 {
		t.Errorf("PreviousRemain = %v, want 40", record.PreviousRemain)
	}

	// A later current half alone still does not dispatch.
	if _, dispatched := engine.OnHalfEvent("GL", 42, epoch, false); dispatched {
		t.Fatal("current half dispatched")
	}
	if got := dispatcher.all(); len(got) != 0 {
		t.Fatalf("dispatched = %+v, want none", got)
	}

	// Both halves are now stored, but they never formed a pair.
	record, _ = engine.Record("GL")
	if !record.Complete() {
		t.Error("record not complete after both halves")
	}
	if pair, ok := record.LastPair(); ok {
		t.Errorf("LastPair = %+v, want none for out-of-order halves", pair)
	}
}

func TestLastPairTracksDispatch(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.OnHalfEvent("GL", 42, epoch, false)
	snapshot, _ := engine.OnHalfEvent("GL", 40, epoch.Add(time.Second), true)

	// A newer current half changes the record but not the pair.
	engine.OnHalfEvent("GL", 38, epoch.Add(2*time.Second), false)

	record, _ := engine.Record("GL")
	pair, ok := record.LastPair()
	if !ok || pair != snapshot {
		t.Errorf("LastPair = %+v, %v; want %+v", pair, ok, snapshot)
	}
	if *record.Remain != 38 {
		t.Errorf("Remain = %d, want 38", *record.Remain)
	}

	record.Paired.Remain = 0
	again, _ := engine.Record("GL")
	if pair, _ := again.LastPair(); pair.Remain != 42 {
		t.Error("LastPair shares state with the engine")
	}
}

func TestRepeatedPreviousRedispatchesLatestCurrent(t *testing.T) {
	engine, dispatcher, _ := newTestEngine(t)

	engine.OnHalfEvent("GL", 42, epoch, false)
	engine.OnHalfEvent("GL", 41, epoch.Add(time.Second), false)
	engine.OnHalfEvent("GL", 40, epoch.Add(2*time.Second), true)
	engine.OnHalfEvent("GL", 39, epoch.Add(3*time.Second), true)

	got := dispatcher.all()
	if len(got) != 2 {
		t.Fatalf("dispatched %d pairs, want 2", len(got))
	}
	for i, previous := range []int{40, 39} {
		if got[i].Remain != 41 {
			t.Errorf("pair %d Remain = %d, want 41 (latest current)", i, got[i].Remain)
		}
		if got[i].PreviousRemain != previous {
			t.Errorf("pair %d PreviousRemain = %d, want %d", i, got[i].PreviousRemain, previous)
		}
	}
}

// A previous half dispatches exactly when a current half for the same
// key has been seen before it, over every ordering of a short sequence.
func TestDispatchIffCurrentSeen(t *testing.T) {
	type event struct {
		key      string
		previous bool
	}
	sequences := [][]event{
		{{"A", false}, {"A", true}},
		{{"A", true}, {"A", false}},
		{{"A", true}, {"A", false}, {"A", true}},
		{{"A", false}, {"B", true}, {"A", true}, {"B", false}, {"B", true}},
		{{"B", false}, {"A", false}, {"A", true}, {"A", true}, {"B", true}},
		{{"A", true}, {"B", true}, {"C", false}, {"C", true}},
	}
	for index, sequence := range sequences {
		engine, _, _ := newTestEngine(t)
		seenCurrent := make(map[string]bool)
		for step, e := range sequence {
			_, dispatched := engine.OnHalfEvent(e.key, step, epoch, e.previous)
			want := e.previous && seenCurrent[e.key]
			if dispatched != want {
				t.Errorf("sequence %d step %d (%s previous=%v): dispatched = %v, want %v",
					index, step, e.key, e.previous, dispatched, want)
			}
			if !e.previous {
				seenCurrent[e.key] = true
			}
		}
	}
}

func TestFreshestPicksLatestUpdate(t *testing.T) {
	engine, _, fake := newTestEngine(t)

	if _, ok := engine.Freshest(); ok {
		t.Fatal("Freshest on empty engine returned a record")
	}

	engine.OnHalfEvent("B", 1, epoch, false)
	fake.Advance(time.Second)
	engine.OnHalfEvent("A", 2, epoch, false)
	fake.Advance(time.Second)
	engine.OnHalfEvent("C", 3, epoch, false)

	record, ok := engine.Freshest()
	if !ok || record.Key != "C" {
		t.Fatalf("Freshest = %q (%v), want C", record.Key, ok)
	}
	if !record.LastUpdate.Equal(epoch.Add(2 * time.Second)) {
		t.Errorf("LastUpdate = %v, want %v", record.LastUpdate, epoch.Add(2*time.Second))
	}
}

func TestFreshestTieBreaksOnSmallestKey(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	for _, key := range []string{"M", "Z", "B", "K"} {
		engine.OnHalfEvent(key, 1, epoch, false)
	}
	record, ok := engine.Freshest()
	if !ok || record.Key != "B" {
		t.Errorf("Freshest = %q (%v), want B", record.Key, ok)
	}
}

func TestRecordsAreCopies(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.OnHalfEvent("GL", 42, epoch, false)
	engine.OnHalfEvent("AB", 7, epoch, false)

	records := engine.Records()
	if len(records) != 2 || records[0].Key != "AB" || records[1].Key != "GL" {
		t.Fatalf("Records = %+v, want AB then GL", records)
	}
	*records[1].Remain = 0

	record, _ := engine.Record("GL")
	if *record.Remain != 42 {
		t.Errorf("engine state changed through a copy: Remain = %d", *record.Remain)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cases := map[string]Config{
		"dispatcher": {Clock: clock.Real(), Logger: logger},
		"clock":      {Dispatcher: &recordingDispatcher{}, Logger: logger},
		"logger":     {Dispatcher: &recordingDispatcher{}, Clock: clock.Real()},
	}
	for name, config := range cases {
		if _, err := New(config); err == nil {
			t.Errorf("New without %s succeeded", name)
		}
	}
}
