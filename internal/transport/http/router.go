// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package http exposes the session lifecycle over a chi router: one route
// per operation in api.SessionAPI, with structured JSON request/response
// bodies and a streaming endpoint for propagation.
package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/segflow/trackd/internal/domain/session/api"
	"github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/ratelimit"
)

// NewRouter builds the HTTP handler for the session API.
func NewRouter(sessionAPI *api.SessionAPI, limiter *ratelimit.Limiter) chi.Router {
	h := &handler{api: sessionAPI, limiter: limiter}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(log.Middleware())
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.startSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.queueStatus)
			r.Delete("/", h.closeSession)
			r.Post("/points", h.addPoints)
			r.Post("/mask", h.addMask)
			r.Delete("/points", h.clearPointsInVideo)
			r.Delete("/points/{frameIndex}/{objectID}", h.clearPointsInFrame)
			r.Delete("/objects/{objectID}", h.removeObject)
			r.Get("/propagate", h.propagateInVideo)
			r.Post("/propagate/cancel", h.cancelPropagation)
		})
	})

	return r
}
