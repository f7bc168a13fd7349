// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pairing correlates the "current" and "previous" halves of a
// splice reading into a completed pair.
//
// The [Engine] keeps one [Record] per key, created on the first
// half-event for that key and held for the life of the process. A
// current half overwrites the record's remain value; it never
// dispatches. A previous half overwrites the previous-remain value and
// then dispatches a [Snapshot] of the record to the [Dispatcher].
// There is no queue of pending pairs: only the latest value of each
// half is kept, so at most one pair per key is in flight and an
// unconsumed current value is silently replaced by a newer one.
//
// A previous half that arrives before any current half for its key is
// stored but not dispatched. The engine logs the skip and counts it in
// splice_pairs_skipped_total.
//
// All record access goes through one mutex; dispatch happens after the
// lock is released, on a copy, so a slow dispatcher never holds up
// other keys or the resync scheduler.
package pairing
