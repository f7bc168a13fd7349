// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds channel helpers shared by the splice-bridge
// tests.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-deadline pattern so tests that wait on sinks, workers,
// or the supervisor never call time.After themselves. They are the
// only place in the test suite where a real wall-clock timeout is
// used; component timing otherwise runs on lib/clock fakes.
//
// All helpers call t.Fatalf on failure.
package testutil
