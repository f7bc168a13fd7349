// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/splicebridge/lib/config"
	"github.com/bureau-foundation/splicebridge/lib/metrics"
	"github.com/bureau-foundation/splicebridge/lib/process"
)

func TestParseCommandLine(t *testing.T) {
	var stderr bytes.Buffer
	options, err := parseCommandLine([]string{"-a", "-t", "30", "--config", "plant.yaml", "opc.tcp://plc:4840"}, &stderr)
	if err != nil {
		t.Fatalf("parseCommandLine: %v", err)
	}
	want := commandLine{
		configPath:     "plant.yaml",
		endpoint:       "opc.tcp://plc:4840",
		autoAccept:     true,
		timeoutSeconds: 30,
	}
	if options != want {
		t.Errorf("options = %+v, want %+v", options, want)
	}
	if stderr.Len() != 0 {
		t.Errorf("unexpected output: %s", stderr.String())
	}
}

func TestParseCommandLineLongForms(t *testing.T) {
	options, err := parseCommandLine([]string{"--autoaccept", "--timeout=5", "--version"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseCommandLine: %v", err)
	}
	if !options.autoAccept || options.timeoutSeconds != 5 || !options.showVersion {
		t.Errorf("options = %+v", options)
	}
}

func TestParseCommandLineUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"help short", []string{"-h"}},
		{"help long", []string{"--help"}},
		{"unknown flag", []string{"--bogus"}},
		{"extra positional", []string{"opc.tcp://a:4840", "opc.tcp://b:4840"}},
		{"bad timeout", []string{"-t", "soon"}},
		{"negative timeout", []string{"-t", "-1"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stderr bytes.Buffer
			_, err := parseCommandLine(test.args, &stderr)
			if code := process.CodeOf(err); code != process.ExitInvalidCommandLine {
				t.Errorf("code = %v, want %v", code, process.ExitInvalidCommandLine)
			}
			if !strings.Contains(stderr.String(), "Usage:") {
				t.Errorf("usage not printed:\n%s", stderr.String())
			}
		})
	}
}

func TestApplyCommandLine(t *testing.T) {
	settings := config.Default()
	applyCommandLine(settings, commandLine{endpoint: "opc.tcp://plc:4840", autoAccept: true, timeoutSeconds: 9})
	if settings.OPC.URL != "opc.tcp://plc:4840" || !settings.OPC.AutoAccept || settings.RunTimeoutSeconds != 9 {
		t.Errorf("settings not overridden: %+v", settings.OPC)
	}

	settings = config.Default()
	settings.RunTimeoutSeconds = 60
	applyCommandLine(settings, commandLine{})
	if settings.OPC.URL != config.Default().OPC.URL || settings.OPC.AutoAccept || settings.RunTimeoutSeconds != 60 {
		t.Error("empty command line changed settings")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appsettings.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunMissingConfig(t *testing.T) {
	err := run(context.Background(), commandLine{configPath: filepath.Join(t.TempDir(), "missing.json")}, &bytes.Buffer{})
	if code := process.CodeOf(err); code != process.ExitLoadConfig {
		t.Errorf("code = %v, want %v (%v)", code, process.ExitLoadConfig, err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, `{"opc": {"url": "http://not-opc"}, "log": {"enabled": false}}`)
	err := run(context.Background(), commandLine{configPath: path}, &bytes.Buffer{})
	if code := process.CodeOf(err); code != process.ExitLoadConfig {
		t.Errorf("code = %v, want %v (%v)", code, process.ExitLoadConfig, err)
	}
}

func TestRunNoTags(t *testing.T) {
	path := writeConfig(t, `{
		// no tags configured
		"opc": {"time_zone": "UTC"},
		"log": {"enabled": false},
		"tags": [],
	}`)
	err := run(context.Background(), commandLine{configPath: path}, &bytes.Buffer{})
	if code := process.CodeOf(err); code != process.ExitNoTags {
		t.Errorf("code = %v, want %v (%v)", code, process.ExitNoTags, err)
	}
}

func TestRunUnreachableEndpoint(t *testing.T) {
	directory := t.TempDir()
	path := writeConfig(t, `{
		"opc": {"url": "opc.tcp://127.0.0.1:1", "time_zone": "UTC"},
		"tags": [
			{"display_name": "GL_Current", "node_id": "ns=4;s=C2_GL_Rem_Current"},
			{"display_name": "GL_Previous", "node_id": "ns=4;s=C2_GL_Rem_Previous"}
		],
		"log": {"enabled": true, "folder": "`+filepath.ToSlash(filepath.Join(directory, "Log"))+`"},
		"export": {"db": {"enabled": true, "connection_string": "`+filepath.ToSlash(filepath.Join(directory, "splice.db"))+`"}},
		"run_timeout_seconds": 30
	}`)
	var stderr bytes.Buffer
	err := run(context.Background(), commandLine{configPath: path}, &stderr)
	if code := process.CodeOf(err); code != process.ExitDiscoverEndpoints {
		t.Errorf("code = %v, want %v (%v)", code, process.ExitDiscoverEndpoints, err)
	}

	logs, globErr := filepath.Glob(filepath.Join(directory, "Log", "Log_*.txt"))
	if globErr != nil || len(logs) != 1 {
		t.Fatalf("log files = %v (%v), want one", logs, globErr)
	}
	content, readErr := os.ReadFile(logs[0])
	if readErr != nil {
		t.Fatal(readErr)
	}
	if !strings.Contains(string(content), "splice-bridge starting") {
		t.Errorf("log file missing startup line:\n%s", content)
	}
}

func TestServeMetricsListenFailureIsNotFatal(t *testing.T) {
	var logged bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logged, nil))
	server, err := metrics.NewServer(metrics.ServerConfig{
		Address:  "256.0.0.1:bad",
		Gatherer: prometheus.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if err := serveMetrics(context.Background(), server, logger); err != nil {
		t.Errorf("serveMetrics = %v, want nil so the run group keeps going", err)
	}
	if !strings.Contains(logged.String(), "metrics server failed") {
		t.Errorf("listen failure not logged: %q", logged.String())
	}
}
