// Package config defines process configuration and the loader that layers
// defaults, an optional YAML file and SCOUTSYNC_ environment variables.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, sends logs to a rotated file instead of stdout.
	LogFile string `koanf:"log_file"`

	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the admin HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataDir holds the local SQLite database and cross-process signal files.
	DataDir string `koanf:"data_dir"`

	// RemoteURL is the remote store base URL. Empty means no remote is
	// configured: sync becomes a no-op that keeps everything pending.
	RemoteURL       string `koanf:"remote_url"`
	RemoteAPIKey    string `koanf:"remote_api_key"`
	RemoteTimeoutMS int    `koanf:"remote_timeout_ms"`

	// BatchSize, MaxRetries, BaseBackoffMS and MaxBackoffMS tune the pusher.
	BatchSize     int `koanf:"batch_size"`
	MaxRetries    int `koanf:"max_retries"`
	BaseBackoffMS int `koanf:"base_backoff_ms"`
	MaxBackoffMS  int `koanf:"max_backoff_ms"`

	// SyncIntervalSec is the periodic trigger; ProbeIntervalSec the connectivity probe.
	SyncIntervalSec  int `koanf:"sync_interval_sec"`
	ProbeIntervalSec int `koanf:"probe_interval_sec"`

	// TriggerQueueSize bounds the orchestrator trigger queue.
	TriggerQueueSize int `koanf:"trigger_queue_size"`

	// WatchSignals enables the file-watch based cross-process signal.
	WatchSignals bool `koanf:"watch_signals"`

	// ScheduleURL and ScheduleAPIKey configure the external schedule provider.
	ScheduleURL    string `koanf:"schedule_url"`
	ScheduleAPIKey string `koanf:"schedule_api_key"`

	// EventKey is the default event for schedule imports.
	EventKey string `koanf:"event_key"`

	// MetricsEnabled turns the Prometheus counters on; MetricsRefreshSec is
	// how often process gauges are sampled while serving.
	MetricsEnabled    bool `koanf:"metrics_enabled"`
	MetricsRefreshSec int  `koanf:"metrics_refresh_sec"`

	// MetricsLabels are constant labels on every series, e.g. {device: pit-2}.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// LegacyCountFields lists section.field payload paths migrated from
	// boolean flags to numeric counts.
	LegacyCountFields []string `koanf:"legacy_count_fields"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		DataDir:           "data",
		RemoteTimeoutMS:   10_000,
		BatchSize:         50,
		MaxRetries:        6,
		BaseBackoffMS:     500,
		SyncIntervalSec:   60,
		ProbeIntervalSec:  15,
		TriggerQueueSize:  8,
		WatchSignals:      true,
		MetricsEnabled:    true,
		MetricsRefreshSec: 10,
		LegacyCountFields: []string{"auto.leave", "endgame.park"},
	}
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.BaseBackoffMS < 0 || c.MaxBackoffMS < 0:
		return fmt.Errorf("%w: backoff must not be negative", ErrInvalidConfig)
	case c.SyncIntervalSec <= 0:
		return fmt.Errorf("%w: sync_interval_sec must be positive, got %d", ErrInvalidConfig, c.SyncIntervalSec)
	case c.ProbeIntervalSec <= 0:
		return fmt.Errorf("%w: probe_interval_sec must be positive, got %d", ErrInvalidConfig, c.ProbeIntervalSec)
	case c.TriggerQueueSize <= 0:
		return fmt.Errorf("%w: trigger_queue_size must be positive, got %d", ErrInvalidConfig, c.TriggerQueueSize)
	case c.MetricsRefreshSec <= 0:
		return fmt.Errorf("%w: metrics_refresh_sec must be positive, got %d", ErrInvalidConfig, c.MetricsRefreshSec)
	}
	return nil
}

// DBPath is the local SQLite database location.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "scoutsync.db") }

// SignalDir is where cross-process marker files are written.
func (c *Config) SignalDir() string { return filepath.Join(c.DataDir, "signals") }

func (c *Config) RemoteTimeout() time.Duration { return ms(c.RemoteTimeoutMS) }
func (c *Config) BaseBackoff() time.Duration   { return ms(c.BaseBackoffMS) }
func (c *Config) MaxBackoff() time.Duration    { return ms(c.MaxBackoffMS) }
func (c *Config) SyncInterval() time.Duration  { return time.Duration(c.SyncIntervalSec) * time.Second }
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSec) * time.Second
}

func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshSec) * time.Second
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
