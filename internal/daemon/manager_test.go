// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segflow/trackd/internal/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: time.Second,
	}
}

func TestDeps_Validate_RequiresLoggerAndHandler(t *testing.T) {
	d := Deps{Logger: zerolog.Nop()}
	assert.ErrorIs(t, d.Validate(), ErrMissingLogger)

	d.Logger = zerolog.New(nil)
	assert.ErrorIs(t, d.Validate(), ErrMissingAPIHandler)

	d.APIHandler = http.NewServeMux()
	assert.NoError(t, d.Validate())
}

func TestNewManager_RejectsInvalidDeps(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{})
	assert.Error(t, err)
}

func TestManager_Start_ShutsDownOnContextCancel(t *testing.T) {
	deps := Deps{
		Logger:     zerolog.New(nil),
		Config:     config.AppConfig{},
		APIHandler: http.NewServeMux(),
	}
	mgr, err := NewManager(testServerConfig(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not shut down after context cancellation")
	}
}

func TestManager_Start_Twice_Errors(t *testing.T) {
	deps := Deps{
		Logger:     zerolog.New(nil),
		Config:     config.AppConfig{},
		APIHandler: http.NewServeMux(),
	}
	mgr, err := NewManager(testServerConfig(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	assert.Error(t, mgr.Start(context.Background()))
}

func TestManager_Shutdown_RunsHooksInLIFOOrder(t *testing.T) {
	deps := Deps{
		Logger:     zerolog.New(nil),
		Config:     config.AppConfig{},
		APIHandler: http.NewServeMux(),
	}
	mgr, err := NewManager(testServerConfig(), deps)
	require.NoError(t, err)

	var order []string
	mgr.RegisterShutdownHook("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	mgr.RegisterShutdownHook("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not shut down")
	}

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestManager_Shutdown_BeforeStartReturnsError(t *testing.T) {
	deps := Deps{
		Logger:     zerolog.New(nil),
		Config:     config.AppConfig{},
		APIHandler: http.NewServeMux(),
	}
	mgr, err := NewManager(testServerConfig(), deps)
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}
