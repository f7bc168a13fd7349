// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the process's Prometheus registry and the
// optional HTTP server that exposes it.
//
// Components register their collectors on the [Registry] handed to
// them at construction. [Server] serves /metrics (and a trivial
// /healthz) on a TCP address; Serve blocks until its context is
// cancelled and then shuts down gracefully.
package metrics
