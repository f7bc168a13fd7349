// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the splice-bridge exit status enumeration and
// the helpers main uses to turn a returned error into a process exit.
//
// Exit statuses are ordered by the startup stage the bridge reached
// before stopping, so an operator reading a non-zero status knows how
// far the pipeline got: configuration, certificate check, endpoint
// discovery, session creation, namespace browse, subscription
// creation, monitored-item setup, subscription attach, running. The
// remaining statuses cover an empty tag list, lost liveness at
// shutdown, and invalid command-line usage.
//
// Stage failures travel up as [ExitError] values; [Exit] unwraps them
// with errors.As so wrapping with fmt.Errorf keeps the status intact.
package process
