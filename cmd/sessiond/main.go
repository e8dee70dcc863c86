// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/segflow/trackd/internal/backend"
	"github.com/segflow/trackd/internal/config"
	"github.com/segflow/trackd/internal/daemon"
	"github.com/segflow/trackd/internal/device"
	"github.com/segflow/trackd/internal/domain/session/admission"
	"github.com/segflow/trackd/internal/domain/session/api"
	"github.com/segflow/trackd/internal/domain/session/propagation"
	"github.com/segflow/trackd/internal/domain/session/queuestore"
	"github.com/segflow/trackd/internal/domain/session/reaper"
	"github.com/segflow/trackd/internal/domain/session/table"
	trackdlog "github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/masks"
	"github.com/segflow/trackd/internal/ratelimit"
	trackdhttp "github.com/segflow/trackd/internal/transport/http"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("trackd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	trackdlog.Configure(trackdlog.Config{Level: "info", Service: "trackd", Version: version})
	logger := trackdlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}

	trackdlog.Configure(trackdlog.Config{Level: cfg.LogLevel, Service: "trackd", Version: version})
	logger.Info().Str("event", "config.loaded").Str("queue_backend", cfg.QueueBackend).Msg("configuration resolved")

	var cfgHolder *config.ConfigHolder
	if *configPath != "" {
		cfgHolder, err = config.NewConfigHolder(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("event", "config.holder_failed").Msg("failed to set up config hot reload")
		}
	}

	sel := device.Resolve(cfg)
	logger.Info().Str("event", "device.selected").Str("kind", string(sel.Kind)).Str("model_size", sel.ModelSize).Msg("accelerator selection complete")

	store, err := queuestore.Open(cfg.QueueBackend, cfg.QueuePath)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "queuestore.open_failed").Msg("failed to open queue store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue store close failed")
		}
	}()

	tbl := table.New()

	ctrl, err := admission.New(admission.Config{
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		AvgProcessingTime:     cfg.AvgProcessingTime,
	}, store, tbl)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "admission.new_failed").Msg("failed to construct admission controller")
	}

	modelBackend := backend.NewReference(0)
	driver := propagation.New(tbl, modelBackend, masks.Codec{})

	if err := api.Wire(ctrl, driver); err != nil {
		logger.Fatal().Err(err).Str("event", "api.wire_failed").Msg("failed to wire admission and propagation")
	}
	sessionAPI := api.New(ctrl, driver, tbl)

	// Restart recovery: Pump exactly once, now that an Initializer is wired,
	// to admit as many recovered queue entries as the concurrency cap allows.
	ctrl.Pump()

	idleReaper := reaper.New(tbl, ctrl, cfg.ReaperInterval, cfg.IdleTimeout)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		rlCfg := ratelimit.DefaultConfig()
		if cfg.RateLimitRPS > 0 {
			rlCfg.PerClientRate = rate.Limit(cfg.RateLimitRPS)
		}
		if cfg.RateLimitBurst > 0 {
			rlCfg.PerClientBurst = cfg.RateLimitBurst
		}
		limiter = ratelimit.New(rlCfg)
	}

	router := trackdhttp.NewRouter(sessionAPI, limiter)

	serverCfg := config.ParseServerConfigForApp(cfg)

	deps := daemon.Deps{
		Logger:         logger,
		Config:         cfg,
		APIHandler:     router,
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    cfg.MetricsAddr,
	}

	mgr, err := daemon.NewManager(serverCfg, deps)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "manager.creation_failed").Msg("failed to create daemon manager")
	}

	logger.Info().Str("event", "startup").Str("version", version).Str("addr", serverCfg.ListenAddr).Msg("starting trackd")

	app := daemon.NewApp(logger, mgr, cfgHolder, idleReaper)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "app.failed").Msg("trackd exited with error")
	}

	logger.Info().Msg("server exiting")
}
