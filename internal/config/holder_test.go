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

func TestNewConfigHolder_SeedsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	h, err := NewConfigHolder(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", h.Get().LogLevel)
}

func TestConfigHolder_Reload_SwapsConfigAndNotifiesListeners(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	h, err := NewConfigHolder(path)
	require.NoError(t, err)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))
	require.NoError(t, h.Reload())

	assert.Equal(t, "warn", h.Get().LogLevel)

	select {
	case cfg := <-ch:
		assert.Equal(t, "warn", cfg.LogLevel)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified of the reload")
	}
}

func TestConfigHolder_Reload_KeepsPreviousConfigOnParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o600))

	h, err := NewConfigHolder(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o600))
	assert.Error(t, h.Reload())
	assert.Equal(t, "debug", h.Get().LogLevel, "a failed reload must not clobber the last-good configuration")
}

func TestConfigHolder_StartWatcher_NoopWithEmptyPath(t *testing.T) {
	h, err := NewConfigHolder("")
	require.NoError(t, err)
	assert.NoError(t, h.StartWatcher(nil))
}
