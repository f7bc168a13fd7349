// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of splice-bridge.
//
// Values are injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/splicebridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"

	// Version is set by hand for releases.
	Version = "0.1.0-dev"
)

// Info returns the one-line string printed by --version.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
