// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/segflow/trackd/internal/config"
)

// Deps contains the dependencies required by the daemon Manager. This keeps
// construction explicit and the Manager itself free of global state.
type Deps struct {
	// Logger is the structured logger for the daemon.
	Logger zerolog.Logger

	// Config is the resolved application configuration.
	Config config.AppConfig

	// APIHandler is the HTTP handler for the main API server.
	APIHandler http.Handler

	// MetricsHandler is the HTTP handler for Prometheus metrics. Nil
	// disables the metrics server regardless of MetricsAddr.
	MetricsHandler http.Handler

	// MetricsAddr is the address the metrics server listens on. Empty
	// disables the metrics server.
	MetricsAddr string
}

// Validate checks that the dependencies are sufficient to start the daemon.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
