// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the Prometheus instrumentation for the admission,
// queueing, and propagation subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsAdmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "sessions_admitted_total",
		Help:      "Total sessions transitioned from queued or new to processing.",
	})

	SessionsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "sessions_queued_total",
		Help:      "Total submissions that were appended to the wait queue.",
	})

	SessionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "sessions_rejected_total",
		Help:      "Total submissions rejected by the client submit-rate limiter.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackd",
		Name:      "queue_depth",
		Help:      "Current number of sessions waiting for a slot.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trackd",
		Name:      "active_sessions",
		Help:      "Current number of sessions with status=processing.",
	})

	ReaperEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "reaper_evictions_total",
		Help:      "Total sessions reclaimed by the idle-timeout reaper.",
	})

	PropagationFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "propagation_frames_total",
		Help:      "Total frames yielded by the propagation driver across all sessions.",
	})

	CacheFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "cache_flushes_total",
		Help:      "Total accelerator cache flush requests, by trigger.",
	}, []string{"trigger"})

	PersistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "persistence_failures_total",
		Help:      "Total QueueStore save/load failures, by operation.",
	}, []string{"operation"})

	BackendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "backend_failures_total",
		Help:      "Total ModelBackend errors, by operation.",
	}, []string{"operation"})
)
