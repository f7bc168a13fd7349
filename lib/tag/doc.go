// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tag maps configured OPC UA tags to the logical keys the
// pairing pipeline works with.
//
// A [Definition] pairs a display name (the logical key) with the node
// identifier the transport subscribes to. The [Registry] is built once
// at startup and resolves notifications back to their definition by
// node identifier, first match wins. Unknown identifiers resolve to
// false; callers log and drop them.
//
// Definitions also carry pairing roles. A tag whose display name ends
// in "_Current" or "_Previous" is a half of the pair keyed by the rest
// of the name, so "X_Current" and "X_Previous" pair under "X". The Key
// and Half fields override the derivation for plants whose tag names
// do not follow that convention. Tags with no half are plain readings.
package tag
