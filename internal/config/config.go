// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration loading for trackd: YAML file plus
// environment variable overrides, with ENV always taking precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape.
type FileConfig struct {
	LogLevel string `yaml:"logLevel,omitempty"`

	Admission AdmissionFileConfig `yaml:"admission,omitempty"`
	Reaper    ReaperFileConfig    `yaml:"reaper,omitempty"`
	Queue     QueueFileConfig     `yaml:"queue,omitempty"`
	Device    DeviceFileConfig    `yaml:"device,omitempty"`
	RateLimit RateLimitFileConfig `yaml:"rateLimit,omitempty"`
	TLS       TLSConfig           `yaml:"tls,omitempty"`
}

// AdmissionFileConfig configures the concurrency cap and wait-time estimate.
type AdmissionFileConfig struct {
	MaxConcurrentSessions int    `yaml:"maxConcurrentSessions,omitempty"`
	AvgProcessingTime     string `yaml:"avgProcessingTime,omitempty"` // e.g. "60s"
}

// ReaperFileConfig configures the idle-timeout sweep.
type ReaperFileConfig struct {
	Interval    string `yaml:"interval,omitempty"`    // e.g. "30s"
	IdleTimeout string `yaml:"idleTimeout,omitempty"` // e.g. "10m"
}

// QueueFileConfig configures durable queue persistence.
type QueueFileConfig struct {
	Backend string `yaml:"backend,omitempty"` // "file" (default) or "badger"
	Path    string `yaml:"path,omitempty"`
}

// DeviceFileConfig configures accelerator selection.
type DeviceFileConfig struct {
	ForceCPU  bool   `yaml:"forceCPU,omitempty"`
	ModelSize string `yaml:"modelSize,omitempty"`
}

// RateLimitFileConfig configures the per-client submit-rate limiter.
type RateLimitFileConfig struct {
	Enabled           bool    `yaml:"enabled,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// TLSConfig holds optional TLS material for the API server.
type TLSConfig struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// AppConfig is the resolved, process-wide configuration: FileConfig values
// merged with environment overrides and package defaults.
type AppConfig struct {
	LogLevel string

	MaxConcurrentSessions int
	AvgProcessingTime     time.Duration

	ReaperInterval time.Duration
	IdleTimeout    time.Duration

	QueueBackend string
	QueuePath    string

	DeviceForceCPU bool
	ModelSize      string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	TLSCert string
	TLSKey  string

	APIListenAddr string
	MetricsAddr   string
}

// Load reads path (if non-empty and present) and merges it with environment
// overrides and defaults. A missing file at a non-empty path is an error; an
// empty path means ENV-and-defaults only, matching how the original system
// ran with no config file present.
func Load(path string) (AppConfig, error) {
	var file FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	return resolve(file), nil
}

func resolve(file FileConfig) AppConfig {
	cfg := AppConfig{
		LogLevel:              ParseString("TRACKD_LOG_LEVEL", orDefault(file.LogLevel, "info")),
		MaxConcurrentSessions: ParseInt("TRACKD_MAX_CONCURRENT_SESSIONS", orDefaultInt(file.Admission.MaxConcurrentSessions, 5)),
		AvgProcessingTime:     ParseDuration("TRACKD_AVG_PROCESSING_TIME", orDefaultDuration(file.Admission.AvgProcessingTime, 60*time.Second)),
		ReaperInterval:        ParseDuration("TRACKD_REAPER_INTERVAL", orDefaultDuration(file.Reaper.Interval, 300*time.Second)),
		IdleTimeout:           ParseDuration("TRACKD_IDLE_TIMEOUT", orDefaultDuration(file.Reaper.IdleTimeout, 300*time.Second)),
		QueueBackend:          ParseString("TRACKD_QUEUE_BACKEND", orDefault(file.Queue.Backend, "file")),
		QueuePath:             ParseString("TRACKD_QUEUE_PATH", orDefault(file.Queue.Path, "./data/queue/queue_data.json")),
		DeviceForceCPU:        ParseBool("SAM2_DEMO_FORCE_CPU_DEVICE", file.Device.ForceCPU),
		ModelSize:             ParseString("MODEL_SIZE", orDefault(file.Device.ModelSize, "base_plus")),
		RateLimitEnabled:      ParseBool("TRACKD_RATE_LIMIT_ENABLED", file.RateLimit.Enabled),
		RateLimitRPS:          ParseFloat("TRACKD_RATE_LIMIT_RPS", orDefaultFloat(file.RateLimit.RequestsPerSecond, 2.0)),
		RateLimitBurst:        ParseInt("TRACKD_RATE_LIMIT_BURST", orDefaultInt(file.RateLimit.Burst, 5)),
		TLSCert:               ParseString("TRACKD_TLS_CERT", file.TLS.Cert),
		TLSKey:                ParseString("TRACKD_TLS_KEY", file.TLS.Key),
		APIListenAddr:         ParseString("TRACKD_LISTEN", ":8088"),
		MetricsAddr:           ParseString("TRACKD_METRICS_LISTEN", ":9090"),
	}
	return cfg
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
