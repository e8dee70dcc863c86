// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the session lifecycle as a small set of operations,
// binding the admission controller and propagation driver behind one
// facade; the reaper runs separately and is not part of it. The HTTP transport layer is the only caller; tests drive this
// package directly without going through HTTP at all.
package api

import (
	"context"
	"fmt"

	"github.com/segflow/trackd/internal/domain/session/admission"
	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/domain/session/propagation"
	"github.com/segflow/trackd/internal/domain/session/table"
)

// SessionAPI is the composition root for the ten session operations.
type SessionAPI struct {
	admission *admission.Controller
	propagate *propagation.Driver
	table     *table.Table
}

// New wires an already-constructed Controller and Driver into a SessionAPI.
// The two are connected to each other (SetInitializer/SetReleaser/
// SetAdmission) by the caller before or after this call; New does not do
// that wiring itself so callers retain full control of construction order.
func New(ctrl *admission.Controller, driver *propagation.Driver, tbl *table.Table) *SessionAPI {
	return &SessionAPI{admission: ctrl, propagate: driver, table: tbl}
}

// StartSession submits a new (or resumes a client-specified) session.
func (a *SessionAPI) StartSession(ctx context.Context, req model.StartRequest) (admission.SubmitResult, error) {
	return a.admission.Submit(ctx, req)
}

// CloseSession ends sessionID, whether queued or active, releasing any
// model state and freeing a slot for the next waiter.
func (a *SessionAPI) CloseSession(sessionID string) (bool, error) {
	return a.admission.Close(sessionID)
}

// QueueStatus reports where sessionID currently stands.
func (a *SessionAPI) QueueStatus(sessionID string) admission.StatusResult {
	return a.admission.Status(sessionID)
}

// AddPoints forwards a click-prompt edit to the propagation driver.
func (a *SessionAPI) AddPoints(ctx context.Context, sessionID string, frameIndex, objectID int, points []ports.Point, clearOldPoints bool) ([]ports.ObjectMask, error) {
	return a.propagate.AddPoints(ctx, sessionID, frameIndex, objectID, points, clearOldPoints)
}

// AddMask forwards a mask-seed edit to the propagation driver.
func (a *SessionAPI) AddMask(ctx context.Context, sessionID string, frameIndex, objectID int, mask ports.RLEMask) ([]ports.ObjectMask, error) {
	return a.propagate.AddMask(ctx, sessionID, frameIndex, objectID, mask)
}

// ClearPointsInFrame removes prompts for one object on one frame.
func (a *SessionAPI) ClearPointsInFrame(ctx context.Context, sessionID string, frameIndex, objectID int) ([]ports.ObjectMask, error) {
	return a.propagate.ClearPointsInFrame(ctx, sessionID, frameIndex, objectID)
}

// ClearPointsInVideo resets every prompt for the whole video.
func (a *SessionAPI) ClearPointsInVideo(ctx context.Context, sessionID string) error {
	return a.propagate.ClearPointsInVideo(ctx, sessionID)
}

// RemoveObject drops an object from tracking.
func (a *SessionAPI) RemoveObject(ctx context.Context, sessionID string, objectID int) ([]ports.FrameResult, error) {
	return a.propagate.RemoveObject(ctx, sessionID, objectID)
}

// PropagateInVideo starts a streaming propagation run. The returned channel
// is closed on completion, cancellation, or consumer abandonment.
func (a *SessionAPI) PropagateInVideo(ctx context.Context, sessionID string, startFrameIndex int, direction ports.Direction) (<-chan ports.FrameResult, <-chan error, error) {
	return a.propagate.PropagateInVideo(ctx, sessionID, startFrameIndex, direction)
}

// CancelPropagateInVideo requests a running PropagateInVideo call for
// sessionID stop at the next frame boundary.
func (a *SessionAPI) CancelPropagateInVideo(sessionID string) error {
	return a.propagate.CancelPropagation(sessionID)
}

// wireErr is returned by Wire when the two halves of the session core are
// not both present; kept unexported since it only matters to callers in
// this package's own construction path.
type wireErr struct{ missing string }

func (e wireErr) Error() string { return fmt.Sprintf("session api: missing %s", e.missing) }

// Wire connects ctrl and driver to each other: ctrl learns how to start and
// release model state, driver learns how to report initialisation outcomes
// back. Call this once, after constructing both, before New.
func Wire(ctrl *admission.Controller, driver *propagation.Driver) error {
	if ctrl == nil {
		return wireErr{"admission controller"}
	}
	if driver == nil {
		return wireErr{"propagation driver"}
	}
	ctrl.SetInitializer(driver)
	ctrl.SetReleaser(driver)
	driver.SetAdmission(ctrl)
	return nil
}
