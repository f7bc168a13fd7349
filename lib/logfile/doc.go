// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logfile keeps the bridge's diagnostic log on disk for long
// unattended runs.
//
// A [Manager] owns the current log file (Log_YYYYMMDD_HHMMSS.txt in
// the configured directory) and a rotation deadline computed as open
// time plus the configured split interval. Every [Manager.WriteLine]
// checks the deadline against the injected clock, rotates if it has
// passed, then opens the file in append mode, writes one line, and
// closes it again. A crash loses at most the line being written.
//
// Rotation reuses the most recent file already named for the current
// day instead of creating another one, so a restart (or a split
// interval shorter than a day) keeps appending to one file per day.
// Files whose modification time is older than the retention window
// (seven days by default) are deleted at open and after every
// rotation; failures to delete are written to the log and otherwise
// ignored.
//
// The Manager is an io.Writer so the process slog logger can write
// through it; [NewLogger] builds that logger, teeing records to the
// console and the file.
package logfile
