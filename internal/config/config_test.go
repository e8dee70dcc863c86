// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsEnvAndDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxConcurrentSessions)
	assert.Equal(t, 60*time.Second, cfg.AvgProcessingTime)
	assert.Equal(t, "file", cfg.QueueBackend)
}

func TestLoad_MissingFileAtNonEmptyPathErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileValuesAreApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	yamlContent := `
logLevel: debug
admission:
  maxConcurrentSessions: 8
  avgProcessingTime: 45s
queue:
  backend: badger
  path: /data/queue.db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxConcurrentSessions)
	assert.Equal(t, 45*time.Second, cfg.AvgProcessingTime)
	assert.Equal(t, "badger", cfg.QueueBackend)
	assert.Equal(t, "/data/queue.db", cfg.QueuePath)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	t.Setenv("TRACKD_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel, "environment variable must win over the file value")
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseInt_FallsBackOnUnparsable(t *testing.T) {
	t.Setenv("TRACKD_TEST_INT", "not-a-number")
	assert.Equal(t, 7, ParseInt("TRACKD_TEST_INT", 7))
}

func TestParseBool_AcceptsKnownSpellings(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "yes": true, "false": false, "0": false, "no": false}
	for v, want := range cases {
		t.Setenv("TRACKD_TEST_BOOL", v)
		assert.Equal(t, want, ParseBool("TRACKD_TEST_BOOL", !want), "value=%s", v)
	}
}

func TestParseBool_FallsBackOnUnknownValue(t *testing.T) {
	t.Setenv("TRACKD_TEST_BOOL", "maybe")
	assert.Equal(t, true, ParseBool("TRACKD_TEST_BOOL", true))
}

func TestParseDuration_FallsBackOnUnparsable(t *testing.T) {
	t.Setenv("TRACKD_TEST_DURATION", "not-a-duration")
	assert.Equal(t, 5*time.Second, ParseDuration("TRACKD_TEST_DURATION", 5*time.Second))
}
