// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

const (
	defaultReadTimeout     = 60 * time.Second
	defaultWriteTimeout    = 0 // 0 = no timeout; propagation streams can run long
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20
	defaultShutdownTimeout = 15 * time.Second
)

// ParseServerConfigForApp resolves server config with explicit precedence:
// ENV > AppConfig > package default.
func ParseServerConfigForApp(cfg AppConfig) ServerConfig {
	return ServerConfig{
		ListenAddr:      ParseString("TRACKD_LISTEN", orDefault(cfg.APIListenAddr, ":8088")),
		ReadTimeout:     ParseDuration("TRACKD_SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    ParseDuration("TRACKD_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:     ParseDuration("TRACKD_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		MaxHeaderBytes:  ParseInt("TRACKD_SERVER_MAX_HEADER_BYTES", defaultMaxHeaderBytes),
		ShutdownTimeout: ParseDuration("TRACKD_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
}
