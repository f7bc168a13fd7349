// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every splice-bridge component
// that makes a decision based on the current time: log rotation
// deadlines and retention, pair timestamps, the resync interval, store
// retention cutoffs, and the transport liveness poll.
//
// Production wiring passes [Real]. Tests pass [Fake] and move time
// with [FakeClock.Advance], using [FakeClock.WaitForTimers] to make
// sure a goroutine has registered its ticker before time moves:
//
//	fake := clock.Fake(time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC))
//	go scheduler.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(10 * time.Second)
package clock
