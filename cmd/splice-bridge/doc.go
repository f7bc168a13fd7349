// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// splice-bridge subscribes to an OPC UA server's splice tags, pairs
// each key's current and previous remaining-length values, and exports
// completed pairs to a SQLite table and/or an HTTP API.
//
// Usage:
//
//	splice-bridge [OPTIONS] [ENDPOINTURL]
//
// The configuration file is --config, else $SPLICE_BRIDGE_CONFIG, else
// appsettings.json in the working directory. ENDPOINTURL overrides
// opc.url. The process runs until interrupted or until the run timeout
// elapses, and exits with a status naming the last stage reached (see
// lib/process).
package main
