// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package export delivers completed pairs and single readings to the
// configured sinks.
//
// [FanOut] turns every pair or reading into an [Event] with a fresh
// UUID and queues one job per [Sink] on a bounded channel. A fixed set
// of workers drains the queue, running each job under its own timeout.
// Enqueueing never blocks the caller: when the queue is full the job is
// dropped, logged, and counted. Failed deliveries are logged and
// counted but never retried, and jobs still queued when the run context
// ends are abandoned. Delivery is best-effort by construction; nothing
// is persisted for later replay.
//
// Two sinks ship with the package:
//
//   - [StoreSink] writes one OPCData row per event into SQLite inside an
//     IMMEDIATE transaction, optionally purging rows older than a
//     retention window first. Re-delivering a row with the same key and
//     stamp fails with [ErrDuplicate], which the fan-out treats as an
//     expected outcome of resync rather than a failure.
//   - [HTTPSink] POSTs a JSON body to a fixed URL and treats any non-2xx
//     status as an error.
package export
