// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "errors"

// Sentinel errors surfaced by the admission and propagation core. Handlers
// at the transport boundary map these to wire-level error codes.
var (
	// ErrSessionNotFound is returned for lookups of an id the table has never
	// seen, or one that was already fully reclaimed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when an operation targets a session whose
	// row exists but is not active: still queued, not yet holding model
	// state, or no longer processing. The reaper deletes the rows it
	// reclaims, so an operation on a reaped session returns
	// ErrSessionNotFound instead. The HTTP transport reports this error as
	// 409, distinct from the 404 for ErrSessionNotFound.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidArgument covers malformed requests: unknown propagation
	// direction, malformed RLE, missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBackendFailure wraps any error returned by ModelBackend.
	ErrBackendFailure = errors.New("model backend failure")

	// ErrPersistenceFailure wraps a QueueStore save/load failure.
	ErrPersistenceFailure = errors.New("queue persistence failure")
)
