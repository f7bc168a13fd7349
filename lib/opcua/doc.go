// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package opcua implements the supervisor's Transport and Session over
// github.com/gopcua/opcua.
//
// Sessions use security policy and mode None with anonymous
// authentication. The server certificate advertised by the chosen
// endpoint is still inspected and any problem (self-signed, expired,
// malformed) goes through the supervisor's CertificatePolicy.
//
// gopcua's own auto-reconnect is disabled: reconnection belongs to the
// supervisor, which calls [Transport.Reconnect] after a bad keep-alive.
// A session derives keep-alive signals from two sources: publish errors
// reported on the subscription's notification channel, and a periodic
// poll of the client's connection state.
package opcua
