// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the splice-bridge configuration file.
//
// The file is found by [ResolvePath]: an explicit --config value wins,
// then the SPLICE_BRIDGE_CONFIG environment variable, then
// appsettings.json in the working directory. Files ending in .yaml or
// .yml are parsed as YAML; everything else is JSON with comments and
// trailing commas allowed (JSONC).
//
// [LoadFile] starts from [Default] and overlays the file, so a file
// only needs the values it changes. Path fields support ${HOME} and
// ${VAR:-default} expansion. No other environment variables override
// config values.
//
// [Config.Validate] reports every problem at once. An empty tag list is
// not a validation error here: the tag registry owns that check so the
// process can exit with its dedicated status.
package config
