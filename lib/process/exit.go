// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCode is a process exit status.
type ExitCode int

const (
	ExitOK                 ExitCode = 0
	ExitLoadConfig         ExitCode = 0x10
	ExitCheckCertificate   ExitCode = 0x11
	ExitDiscoverEndpoints  ExitCode = 0x12
	ExitCreateSession      ExitCode = 0x13
	ExitBrowseNamespace    ExitCode = 0x14
	ExitCreateSubscription ExitCode = 0x15
	ExitMonitoredItem      ExitCode = 0x16
	ExitAddSubscription    ExitCode = 0x17
	ExitRunning            ExitCode = 0x18
	ExitNoTags             ExitCode = 0x20
	ExitNoKeepAlive        ExitCode = 0x30

	// ExitInvalidCommandLine is EX_USAGE from sysexits.h. Statuses
	// above 255 are truncated by POSIX wait(2), so a 0x100 status
	// would be reported as success.
	ExitInvalidCommandLine ExitCode = 0x40
)

var exitCodeNames = map[ExitCode]string{
	ExitOK:                 "ok",
	ExitLoadConfig:         "load config",
	ExitCheckCertificate:   "check certificate",
	ExitDiscoverEndpoints:  "discover endpoints",
	ExitCreateSession:      "create session",
	ExitBrowseNamespace:    "browse namespace",
	ExitCreateSubscription: "create subscription",
	ExitMonitoredItem:      "monitored item",
	ExitAddSubscription:    "add subscription",
	ExitRunning:            "running",
	ExitNoTags:             "no tags configured",
	ExitNoKeepAlive:        "no keep-alive",
	ExitInvalidCommandLine: "invalid command line",
}

// String returns the stage name, e.g. "create session".
func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("exit code 0x%x", int(c))
}

// ExitError carries an exit status alongside the error that caused it.
// Err may be nil when the status itself is the whole story (help
// output, clean shutdown with lost keep-alive).
type ExitError struct {
	Code ExitCode
	Err  error
}

// Errorf builds an ExitError with a formatted cause.
func Errorf(code ExitCode, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the numeric status.
func (e *ExitError) ExitCode() int { return int(e.Code) }

// CodeOf returns the status an error maps to: ExitOK for nil, the
// carried code for an ExitError anywhere in the chain, and ExitRunning
// for any other error (the pipeline failed after startup).
func CodeOf(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	return ExitRunning
}

// Report writes "error: err" to w when err carries a cause and returns
// the status to exit with.
func Report(w io.Writer, err error) ExitCode {
	code := CodeOf(err)
	if err == nil {
		return code
	}
	var exitError *ExitError
	if errors.As(err, &exitError) && exitError.Err == nil {
		return code
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return code
}

// Exit reports err on stderr and exits with its status. Use it as the
// last statement of main.
func Exit(err error) {
	os.Exit(int(Report(os.Stderr, err)))
}
