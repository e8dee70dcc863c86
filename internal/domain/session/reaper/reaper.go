// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reaper runs the idle-timeout sweep: sessions that have gone quiet
// for longer than the configured timeout are released, freeing their slot
// for the next queued submission.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/table"
	"github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/metrics"
)

const DefaultInterval = 300 * time.Second
const DefaultIdleTimeout = 300 * time.Second

// Releaser tears down backend state for a session, removes its row and
// re-pumps the queue afterward; admission.Controller satisfies this.
type Releaser interface {
	Evict(ctx context.Context, sessionID string) error
}

// Reaper periodically scans the table for sessions idle past the timeout.
type Reaper struct {
	table       *table.Table
	releaser    Releaser
	interval    time.Duration
	idleTimeout time.Duration
	logger      zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// New constructs a Reaper. interval and idleTimeout fall back to their
// package defaults when zero.
func New(tbl *table.Table, releaser Releaser, interval, idleTimeout time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Reaper{
		table:       tbl,
		releaser:    releaser,
		interval:    interval,
		idleTimeout: idleTimeout,
		logger:      log.WithComponent("reaper"),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run blocks, sweeping every interval until ctx is cancelled or Stop is
// called. Intended to be launched with go r.Run(ctx) or supervised by an
// errgroup alongside the HTTP and metrics servers.
func (r *Reaper) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// Stop requests Run to exit and blocks until it does.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

// SweepOnce scans every active session once and evicts the idle ones. It is
// exported directly so tests can drive the sweep deterministically instead
// of waiting on the ticker.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	now := time.Now()
	evicted := 0

	for _, s := range r.table.Snapshot() {
		if s.Status != model.StatusProcessing {
			continue
		}
		if now.Sub(s.LastActiveTime) < r.idleTimeout {
			continue
		}

		if err := r.releaser.Evict(ctx, s.SessionID); err != nil {
			r.logger.Error().Err(err).Str(log.FieldSessionID, s.SessionID).Msg("idle eviction failed")
			continue
		}

		r.logger.Info().
			Str(log.FieldSessionID, s.SessionID).
			Dur("idle_for", now.Sub(s.LastActiveTime)).
			Msg("reaped idle session")
		metrics.ReaperEvictionsTotal.Inc()
		evicted++
	}

	return evicted
}
