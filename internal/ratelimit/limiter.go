// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ratelimit throttles session submission per client, on top of a
// global ceiling, so a single misbehaving client cannot starve the wait
// queue for everyone else.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trackd",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total submit requests rejected by the rate limiter, by scope.",
	},
	[]string{"scope"},
)

// Config holds rate limiting configuration for the session submit path.
type Config struct {
	GlobalRate  rate.Limit
	GlobalBurst int

	PerClientRate  rate.Limit
	PerClientBurst int

	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		GlobalRate:      20,
		GlobalBurst:     40,
		PerClientRate:   2,
		PerClientBurst:  5,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter gates StartSession submissions: a global ceiling, then a
// per-client token bucket keyed by IP address.
type Limiter struct {
	config Config

	global    *rate.Limiter
	perClient map[string]*rate.Limiter
	mu        sync.Mutex

	lastCleanup time.Time
}

// New creates a Limiter from config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perClient:   make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a submit from clientID should proceed.
func (l *Limiter) Allow(clientID string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}

	l.maybeCleanup()
	if !l.clientLimiter(clientID).Allow() {
		rateLimitExceeded.WithLabelValues("per_client").Inc()
		return false
	}

	return true
}

func (l *Limiter) clientLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.perClient[clientID]
	if !ok {
		limiter = rate.NewLimiter(l.config.PerClientRate, l.config.PerClientBurst)
		l.perClient[clientID] = limiter
	}
	return limiter
}

// maybeCleanup drops every tracked per-client limiter once the cleanup
// interval has passed, so memory does not grow unbounded across the
// lifetime of a long-running process with many distinct clients.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perClient = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// ClientIP extracts the real client IP from the request, honoring
// X-Forwarded-For and X-Real-IP for deployments behind a reverse proxy.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			xff = xff[:idx]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
