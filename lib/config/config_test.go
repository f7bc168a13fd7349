// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/splicebridge/lib/tag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.OPC.StationID != 2 {
		t.Errorf("expected station_id=2, got %d", cfg.OPC.StationID)
	}
	if cfg.ReconnectPeriod() != 10*time.Second {
		t.Errorf("expected reconnect period 10s, got %v", cfg.ReconnectPeriod())
	}
	if cfg.PublishingInterval() != time.Second {
		t.Errorf("expected publishing interval 1s, got %v", cfg.PublishingInterval())
	}
	if cfg.LogRetention() != 7*24*time.Hour {
		t.Errorf("expected retention 7 days, got %v", cfg.LogRetention())
	}
	if cfg.RunTimeout() != 0 {
		t.Errorf("expected no run timeout, got %v", cfg.RunTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate(): %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeFile(t, "appsettings.json", `{
  // Line 2 corrugator.
  "opc": {
    "url": "opc.tcp://172.31.204.116:4840/",
    "station_id": 3,
  },
  "tags": [
    {"display_name": "C2_DF_IEM_Liner_Rem_Current", "node_id": "ns=3;s=Rem_Current", "key": "GL"},
    {"display_name": "C2_DF_IEM_Liner_Rem_Previous", "node_id": "ns=3;s=Rem_Previous", "key": "GL"},
  ],
  "export": {"db": {"enabled": true, "connection_string": "/var/lib/splice/opc.db", "clear_every_minutes": 1440}},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.OPC.URL != "opc.tcp://172.31.204.116:4840/" {
		t.Errorf("url = %q", cfg.OPC.URL)
	}
	if cfg.OPC.StationID != 3 {
		t.Errorf("station_id = %d, want 3", cfg.OPC.StationID)
	}
	// Fields absent from the file keep their defaults.
	if cfg.OPC.ReconnectPeriodSeconds != 10 {
		t.Errorf("reconnect_period_seconds = %d, want default 10", cfg.OPC.ReconnectPeriodSeconds)
	}
	if cfg.Export.Workers != 4 {
		t.Errorf("export.workers = %d, want default 4", cfg.Export.Workers)
	}
	if cfg.ClearEvery() != 24*time.Hour {
		t.Errorf("ClearEvery = %v, want 24h", cfg.ClearEvery())
	}
	if len(cfg.Tags) != 2 || cfg.Tags[1].Key != "GL" {
		t.Fatalf("tags = %+v", cfg.Tags)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "splice.yaml", `
opc:
  url: opc.tcp://plc:4840
  time_zone: UTC
tags:
  - display_name: Speed
    node_id: ns=2;i=1001
    half: none
resync:
  min_update_seconds: 0
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.OPC.URL != "opc.tcp://plc:4840" {
		t.Errorf("url = %q", cfg.OPC.URL)
	}
	if cfg.ResyncInterval() != 0 {
		t.Errorf("ResyncInterval = %v, want 0", cfg.ResyncInterval())
	}
	location, err := cfg.Location()
	if err != nil || location != time.UTC {
		t.Errorf("Location = %v, %v; want UTC", location, err)
	}
	definitions, err := cfg.TagDefinitions()
	if err != nil {
		t.Fatalf("TagDefinitions: %v", err)
	}
	if len(definitions) != 1 || definitions[0].Half != tag.HalfAuto || definitions[0].NodeID != "ns=2;i=1001" {
		t.Errorf("definitions = %+v", definitions)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeFile(t, "broken.json", `{"opc": [}`)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("SPLICE_DATA", "/srv/splice")
	path := writeFile(t, "appsettings.json", `{
  "log": {"folder": "${SPLICE_DATA}/Log"},
  "export": {"db": {"connection_string": "${SPLICE_UNSET_DIR:-/tmp}/opc.db"}}
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Log.Folder != "/srv/splice/Log" {
		t.Errorf("log.folder = %q, want /srv/splice/Log", cfg.Log.Folder)
	}
	if cfg.Export.DB.ConnectionString != "/tmp/opc.db" {
		t.Errorf("connection_string = %q, want /tmp/opc.db", cfg.Export.DB.ConnectionString)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("SPLICE_BRIDGE_CONFIG", "/etc/splice/env.yaml")

	path, err := ResolvePath("/etc/splice/flag.json")
	if err != nil || path != "/etc/splice/flag.json" {
		t.Errorf("flag: got %q, %v", path, err)
	}

	path, err = ResolvePath("")
	if err != nil || path != "/etc/splice/env.yaml" {
		t.Errorf("env: got %q, %v", path, err)
	}

	t.Setenv("SPLICE_BRIDGE_CONFIG", "")
	path, err = ResolvePath("")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if filepath.Base(path) != DefaultFileName || !filepath.IsAbs(path) {
		t.Errorf("fallback: got %q, want absolute %s", path, DefaultFileName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"wrong scheme", func(c *Config) { c.OPC.URL = "http://plc" }, "opc.url"},
		{"zero publishing", func(c *Config) { c.OPC.PublishingIntervalMS = 0 }, "publishing_interval_ms"},
		{"bad zone", func(c *Config) { c.OPC.TimeZone = "Mars/Olympus" }, "time_zone"},
		{"tag without node", func(c *Config) { c.Tags = []TagConfig{{DisplayName: "A"}} }, "tags[0].node_id"},
		{"bad half", func(c *Config) {
			c.Tags = []TagConfig{{DisplayName: "A", NodeID: "ns=1;i=1", Half: "middle"}}
		}, "tags[0].half"},
		{"zero split", func(c *Config) { c.Log.SplitHours = 0 }, "split_hours"},
		{"zero workers", func(c *Config) { c.Export.Workers = 0 }, "export.workers"},
		{"db without path", func(c *Config) { c.Export.DB.Enabled = true }, "connection_string"},
		{"api bad url", func(c *Config) {
			c.Export.API.Enabled = true
			c.Export.API.TargetURL = "localhost:5001"
		}, "target_url"},
		{"negative resync", func(c *Config) { c.Resync.MinUpdateSeconds = -1 }, "min_update_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}

	// Logging disabled skips the log checks.
	cfg := Default()
	cfg.Log.Enabled = false
	cfg.Log.SplitHours = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled log still validated: %v", err)
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.OPC.URL = ""
	cfg.Export.QueueSize = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two joined errors, got %v", err)
	}
}
