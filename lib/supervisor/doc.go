// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the lifecycle of the upstream OPC UA session.
//
// [Supervisor.Start] walks the startup stages in order: certificate
// check, endpoint discovery, session creation, namespace browse, and
// subscription setup (creation, monitored items, attach). The stage in
// progress is recorded; when a stage fails Start returns a
// process.ExitError carrying that stage's status and the process stops
// without retrying.
//
// Once running, liveness comes from keep-alive signals delivered by
// the session. The first bad signal while Connected moves the
// supervisor to Reconnecting and asks the [Transport] for a
// replacement session exactly once; further bad signals are ignored
// until a replacement is installed. Every reconnect carries an attempt
// number, and a completion whose attempt is no longer current (because
// the supervisor stopped or started a newer attempt) is discarded and
// its session closed.
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//	                                  \            /
//	                                   Terminated
//
// The package knows nothing about the wire protocol. lib/opcua
// implements [Transport] and [Session] over gopcua; tests use fakes.
package supervisor
