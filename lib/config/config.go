// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/splicebridge/lib/tag"
)

// DefaultFileName is the configuration file looked up in the working
// directory when neither the flag nor the environment names one.
const DefaultFileName = "appsettings.json"

// Config is the complete splice-bridge configuration.
type Config struct {
	// OPC configures the upstream OPC UA server connection.
	OPC OPCConfig `json:"opc" yaml:"opc"`

	// Tags lists the monitored items, in subscription order.
	Tags []TagConfig `json:"tags" yaml:"tags"`

	// Log configures the rotating text log.
	Log LogConfig `json:"log" yaml:"log"`

	// Export configures the fan-out and its sinks.
	Export ExportConfig `json:"export" yaml:"export"`

	// Resync configures periodic re-delivery of the freshest pair.
	Resync ResyncConfig `json:"resync" yaml:"resync"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// RunTimeoutSeconds stops the process after this many seconds.
	// Zero or negative runs until signalled.
	RunTimeoutSeconds int `json:"run_timeout_seconds" yaml:"run_timeout_seconds"`
}

// OPCConfig configures the OPC UA client.
type OPCConfig struct {
	// URL is the server endpoint. The positional ENDPOINTURL argument
	// overrides it.
	URL string `json:"url" yaml:"url"`

	// AutoAccept accepts untrusted server certificates. The -a flag
	// forces it on.
	AutoAccept bool `json:"auto_accept" yaml:"auto_accept"`

	// StationID is the corrugator number stamped on every pair.
	// Default: 2
	StationID int `json:"station_id" yaml:"station_id"`

	// ApplicationName is announced to the server in the session.
	ApplicationName string `json:"application_name" yaml:"application_name"`

	// PublishingIntervalMS is the subscription publishing interval.
	// Default: 1000
	PublishingIntervalMS int `json:"publishing_interval_ms" yaml:"publishing_interval_ms"`

	// ReconnectPeriodSeconds is the delay between reconnect attempts.
	// Default: 10
	ReconnectPeriodSeconds int `json:"reconnect_period_seconds" yaml:"reconnect_period_seconds"`

	// TimeZone is the IANA zone source timestamps are converted to
	// before pairing and export. Default: Asia/Bangkok
	TimeZone string `json:"time_zone" yaml:"time_zone"`
}

// TagConfig is one monitored item.
type TagConfig struct {
	DisplayName string `json:"display_name" yaml:"display_name"`
	NodeID      string `json:"node_id" yaml:"node_id"`

	// Key and Half override the pairing derived from DisplayName.
	// Half is "current", "previous", "none" (always a plain reading),
	// or empty to derive from the _Current/_Previous suffix.
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`
	Half string `json:"half,omitempty" yaml:"half,omitempty"`
}

// LogConfig configures the text log.
type LogConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Folder receives Log_YYYYMMDD_HHMMSS.txt files. Default: Log
	Folder string `json:"folder" yaml:"folder"`

	// SplitHours is the rotation period. Default: 24
	SplitHours int `json:"split_hours" yaml:"split_hours"`

	// RetentionDays removes older log files. Default: 7
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
}

// ExportConfig configures the fan-out.
type ExportConfig struct {
	// Workers is the number of delivery goroutines. Default: 4
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize bounds pending deliveries; a full queue drops. Default: 256
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// SinkTimeoutSeconds bounds one delivery. Default: 30
	SinkTimeoutSeconds int `json:"sink_timeout_seconds" yaml:"sink_timeout_seconds"`

	// Readings exports every resolved tag that has no pairing half as a
	// single reading.
	Readings bool `json:"readings" yaml:"readings"`

	DB  DBConfig  `json:"db" yaml:"db"`
	API APIConfig `json:"api" yaml:"api"`
}

// DBConfig configures the relational sink.
type DBConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ConnectionString is the SQLite database path.
	ConnectionString string `json:"connection_string" yaml:"connection_string"`

	// ClearEveryMinutes purges rows older than this on each insert.
	// Zero keeps everything.
	ClearEveryMinutes int `json:"clear_every_minutes" yaml:"clear_every_minutes"`
}

// APIConfig configures the HTTP sink.
type APIConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	TargetURL string `json:"target_url" yaml:"target_url"`
}

// ResyncConfig configures the resync scheduler.
type ResyncConfig struct {
	// MinUpdateSeconds is the resync period. Zero disables resync.
	// Default: 10
	MinUpdateSeconds int `json:"min_update_seconds" yaml:"min_update_seconds"`
}

// MetricsConfig configures the /metrics listener.
type MetricsConfig struct {
	// Address is a host:port to serve /metrics on. Empty disables it.
	Address string `json:"address" yaml:"address"`
}

// Default returns the configuration every file is overlaid on.
func Default() *Config {
	return &Config{
		OPC: OPCConfig{
			URL:                    "opc.tcp://localhost:4840",
			StationID:              2,
			ApplicationName:        "splice-bridge",
			PublishingIntervalMS:   1000,
			ReconnectPeriodSeconds: 10,
			TimeZone:               "Asia/Bangkok",
		},
		Log: LogConfig{
			Enabled:       true,
			Folder:        "Log",
			SplitHours:    24,
			RetentionDays: 7,
		},
		Export: ExportConfig{
			Workers:            4,
			QueueSize:          256,
			SinkTimeoutSeconds: 30,
			API: APIConfig{
				TargetURL: "https://localhost:5001/api/",
			},
		},
		Resync: ResyncConfig{
			MinUpdateSeconds: 10,
		},
	}
}

// pathEnvironment is the environment consulted by ResolvePath.
type pathEnvironment struct {
	Path string `env:"SPLICE_BRIDGE_CONFIG"`
}

// ResolvePath picks the configuration file: flagValue when set, else
// SPLICE_BRIDGE_CONFIG, else DefaultFileName in the working directory.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	var environment pathEnvironment
	if err := env.Parse(&environment); err != nil {
		return "", fmt.Errorf("parse env: %w", err)
	}
	if environment.Path != "" {
		return environment.Path, nil
	}
	workingDirectory, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	return filepath.Join(workingDirectory, DefaultFileName), nil
}

// LoadFile reads path over Default and expands path variables. The
// result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	config.expandVariables()
	return config, nil
}

// Validate checks every field and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.OPC.URL == "" {
		errs = append(errs, fmt.Errorf("opc.url is required"))
	} else if endpoint, err := url.Parse(c.OPC.URL); err != nil || endpoint.Scheme != "opc.tcp" {
		errs = append(errs, fmt.Errorf("opc.url %q must be an opc.tcp:// endpoint", c.OPC.URL))
	}
	if c.OPC.PublishingIntervalMS <= 0 {
		errs = append(errs, fmt.Errorf("opc.publishing_interval_ms must be positive"))
	}
	if c.OPC.ReconnectPeriodSeconds <= 0 {
		errs = append(errs, fmt.Errorf("opc.reconnect_period_seconds must be positive"))
	}
	if _, err := time.LoadLocation(c.OPC.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("opc.time_zone: %w", err))
	}

	for index, tagConfig := range c.Tags {
		if tagConfig.DisplayName == "" {
			errs = append(errs, fmt.Errorf("tags[%d].display_name is required", index))
		}
		if tagConfig.NodeID == "" {
			errs = append(errs, fmt.Errorf("tags[%d].node_id is required", index))
		}
		if tagConfig.Half != "" {
			if _, err := tag.ParseHalf(tagConfig.Half); err != nil {
				errs = append(errs, fmt.Errorf("tags[%d].half: %w", index, err))
			}
		}
	}

	if c.Log.Enabled {
		if c.Log.Folder == "" {
			errs = append(errs, fmt.Errorf("log.folder is required when logging is enabled"))
		}
		if c.Log.SplitHours <= 0 {
			errs = append(errs, fmt.Errorf("log.split_hours must be positive"))
		}
		if c.Log.RetentionDays <= 0 {
			errs = append(errs, fmt.Errorf("log.retention_days must be positive"))
		}
	}

	if c.Export.Workers <= 0 {
		errs = append(errs, fmt.Errorf("export.workers must be positive"))
	}
	if c.Export.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("export.queue_size must be positive"))
	}
	if c.Export.SinkTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("export.sink_timeout_seconds must be positive"))
	}
	if c.Export.DB.Enabled && c.Export.DB.ConnectionString == "" {
		errs = append(errs, fmt.Errorf("export.db.connection_string is required when the db sink is enabled"))
	}
	if c.Export.DB.ClearEveryMinutes < 0 {
		errs = append(errs, fmt.Errorf("export.db.clear_every_minutes must not be negative"))
	}
	if c.Export.API.Enabled {
		target, err := url.Parse(c.Export.API.TargetURL)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			errs = append(errs, fmt.Errorf("export.api.target_url %q must be an http(s) URL", c.Export.API.TargetURL))
		}
	}

	if c.Resync.MinUpdateSeconds < 0 {
		errs = append(errs, fmt.Errorf("resync.min_update_seconds must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TagDefinitions converts the tag list for the registry.
func (c *Config) TagDefinitions() ([]tag.Definition, error) {
	definitions := make([]tag.Definition, 0, len(c.Tags))
	for index, tagConfig := range c.Tags {
		definition := tag.Definition{
			DisplayName: tagConfig.DisplayName,
			NodeID:      tagConfig.NodeID,
			Key:         tagConfig.Key,
		}
		if tagConfig.Half != "" {
			half, err := tag.ParseHalf(tagConfig.Half)
			if err != nil {
				return nil, fmt.Errorf("tags[%d]: %w", index, err)
			}
			definition.Half = half
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

// Location loads the source timestamp zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.OPC.TimeZone)
}

// PublishingInterval returns the subscription interval.
func (c *Config) PublishingInterval() time.Duration {
	return time.Duration(c.OPC.PublishingIntervalMS) * time.Millisecond
}

// ReconnectPeriod returns the delay between reconnect attempts.
func (c *Config) ReconnectPeriod() time.Duration {
	return time.Duration(c.OPC.ReconnectPeriodSeconds) * time.Second
}

// LogRetention returns the log retention window.
func (c *Config) LogRetention() time.Duration {
	return time.Duration(c.Log.RetentionDays) * 24 * time.Hour
}

// SinkTimeout returns the per-delivery timeout.
func (c *Config) SinkTimeout() time.Duration {
	return time.Duration(c.Export.SinkTimeoutSeconds) * time.Second
}

// ClearEvery returns the store purge window. Zero disables purging.
func (c *Config) ClearEvery() time.Duration {
	return time.Duration(c.Export.DB.ClearEveryMinutes) * time.Minute
}

// ResyncInterval returns the resync period. Zero disables resync.
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.Resync.MinUpdateSeconds) * time.Second
}

// RunTimeout returns the run limit. Zero means no limit.
func (c *Config) RunTimeout() time.Duration {
	if c.RunTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.Log.Folder = expandVars(c.Log.Folder)
	c.Export.DB.ConnectionString = expandVars(c.Export.DB.ConnectionString)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
