// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package propagation drives every interaction with ModelBackend: session
// initialisation, point/mask edits, and the long-lived streaming
// propagation sequence. Every call here is made while holding the single
// inference lock, since the backend is not safe for concurrent use.
package propagation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/domain/session/table"
	"github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/metrics"
)

// cacheFlushEveryFrames matches the cadence of the original implementation:
// every 10 yielded frames triggers an accelerator cache flush, independent
// of the flush on every exit path.
const cacheFlushEveryFrames = 10

// AdmissionCallback lets the driver report the outcome of session
// initialisation back to the admission controller without this package
// importing it; admission.Controller satisfies this interface.
type AdmissionCallback interface {
	MarkReady(sessionID string, observed time.Duration)
	MarkFailed(sessionID string)
}

// Driver owns every ModelBackend interaction for the sessions in table.
type Driver struct {
	table   *table.Table
	backend ports.ModelBackend
	// codec validates caller-supplied masks at the AddMask boundary: the
	// backend's AddPoints/AddMask/etc. already return wire-ready RLEMask
	// values (this reference deployment never exposes the raw tensor a real
	// model produces), so Decode is the seam the driver actually exercises,
	// rejecting a malformed mask before it reaches the backend.
	codec     ports.MaskCodec
	admission AdmissionCallback

	// inferenceMu serialises every call into backend. It is never held at
	// the same time as a table or queue lock from another package; callers
	// resolve the session row first (which takes and releases the table's
	// own lock), then take inferenceMu for the backend call itself.
	inferenceMu sync.Mutex

	logger zerolog.Logger
}

// New constructs a Driver. admission is wired separately via SetAdmission
// once the admission controller exists, breaking the import cycle between
// the two packages.
func New(tbl *table.Table, backend ports.ModelBackend, codec ports.MaskCodec) *Driver {
	return &Driver{
		table:   tbl,
		backend: backend,
		codec:   codec,
		logger:  log.WithComponent("propagation"),
	}
}

// SetAdmission wires the callback used to report initialisation outcomes.
func (d *Driver) SetAdmission(a AdmissionCallback) { d.admission = a }

// InitSession performs model initialisation for a freshly admitted session.
// Called asynchronously by admission.Controller; never call this
// synchronously from within a lock the admission controller holds.
func (d *Driver) InitSession(ctx context.Context, sessionID string) {
	row, ok := d.table.Get(sessionID)
	if !ok {
		d.logger.Warn().Str(log.FieldSessionID, sessionID).Msg("init requested for unknown session")
		return
	}

	start := time.Now()

	d.inferenceMu.Lock()
	handle, err := d.backend.InitState(ctx, row.VideoPath, row.OffloadFrames)
	d.inferenceMu.Unlock()

	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("init_state").Inc()
		d.logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("session initialisation failed")
		if d.admission != nil {
			d.admission.MarkFailed(sessionID)
		}
		return
	}

	observed := time.Since(start)
	d.table.Mutate(sessionID, func(s *model.Session) {
		s.ModelState = handle
		s.LastActiveTime = time.Now()
	})
	if d.admission != nil {
		d.admission.MarkReady(sessionID, observed)
	}
}

// ReleaseSession satisfies admission.Releaser: it tears down whatever
// model state and frame tensors the session holds. Safe to call even if the
// session never finished initialising.
func (d *Driver) ReleaseSession(ctx context.Context, sessionID string) error {
	row, ok := d.table.Get(sessionID)
	if !ok || row.ModelState == nil {
		return nil
	}

	d.inferenceMu.Lock()
	defer d.inferenceMu.Unlock()

	if err := d.backend.ClearFrame(ctx, row.ModelState); err != nil {
		d.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("clear frame on release failed")
	}
	err := d.backend.ReleaseState(ctx, row.ModelState)
	d.backend.FlushCache(ctx)
	metrics.CacheFlushesTotal.WithLabelValues("session_release").Inc()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("release_state").Inc()
		return fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}
	return nil
}

func (d *Driver) resolveActive(sessionID string) (*model.Session, error) {
	row, ok := d.table.Get(sessionID)
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	if row.Status != model.StatusProcessing || row.ModelState == nil {
		return nil, model.ErrSessionExpired
	}
	return row, nil
}

// touchLastActive bumps last_active_time, which is what keeps the reaper
// from reclaiming a session that is still being used.
func (d *Driver) touchLastActive(sessionID string) {
	d.table.Mutate(sessionID, func(s *model.Session) {
		s.LastActiveTime = time.Now()
	})
}

// AddPoints handles a single click-prompt edit.
func (d *Driver) AddPoints(ctx context.Context, sessionID string, frameIndex, objectID int, points []ports.Point, clearOldPoints bool) ([]ports.ObjectMask, error) {
	row, err := d.resolveActive(sessionID)
	if err != nil {
		return nil, err
	}

	d.inferenceMu.Lock()
	masks, err := d.backend.AddPoints(ctx, row.ModelState, frameIndex, objectID, points, clearOldPoints)
	d.inferenceMu.Unlock()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("add_points").Inc()
		return nil, fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}

	d.touchLastActive(sessionID)
	return masks, nil
}

// AddMask seeds an object from a caller-supplied mask. Routed through the
// same backend handle as every other edit: the original source's add_mask
// path referenced a separate, never-assigned handle for this one operation,
// which this driver does not reproduce.
func (d *Driver) AddMask(ctx context.Context, sessionID string, frameIndex, objectID int, mask ports.RLEMask) ([]ports.ObjectMask, error) {
	row, err := d.resolveActive(sessionID)
	if err != nil {
		return nil, err
	}

	if d.codec != nil {
		if _, err := d.codec.Decode(mask); err != nil {
			return nil, fmt.Errorf("%w: invalid mask: %v", model.ErrInvalidArgument, err)
		}
	}

	d.inferenceMu.Lock()
	masks, err := d.backend.AddMask(ctx, row.ModelState, frameIndex, objectID, mask)
	d.inferenceMu.Unlock()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("add_mask").Inc()
		return nil, fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}

	d.touchLastActive(sessionID)
	return masks, nil
}

// ClearPointsInFrame removes prompts for one object on one frame.
func (d *Driver) ClearPointsInFrame(ctx context.Context, sessionID string, frameIndex, objectID int) ([]ports.ObjectMask, error) {
	row, err := d.resolveActive(sessionID)
	if err != nil {
		return nil, err
	}

	d.inferenceMu.Lock()
	masks, err := d.backend.ClearPointsInFrame(ctx, row.ModelState, frameIndex, objectID)
	d.inferenceMu.Unlock()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("clear_points_in_frame").Inc()
		return nil, fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}

	d.touchLastActive(sessionID)
	return masks, nil
}

// ClearPointsInVideo resets every prompt across the whole video, also
// clearing any pending cancellation flag so a fresh PropagateInVideo call
// starts clean.
func (d *Driver) ClearPointsInVideo(ctx context.Context, sessionID string) error {
	row, err := d.resolveActive(sessionID)
	if err != nil {
		return err
	}

	d.inferenceMu.Lock()
	err = d.backend.ResetPrompts(ctx, row.ModelState)
	d.inferenceMu.Unlock()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("reset_prompts").Inc()
		return fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}

	d.table.Mutate(sessionID, func(s *model.Session) {
		s.LastActiveTime = time.Now()
		s.Canceled = false
	})
	return nil
}

// RemoveObject drops an object from tracking. The backend returns updated
// results for every frame that object previously touched; the driver
// preserves the order the backend produced them in.
func (d *Driver) RemoveObject(ctx context.Context, sessionID string, objectID int) ([]ports.FrameResult, error) {
	row, err := d.resolveActive(sessionID)
	if err != nil {
		return nil, err
	}

	d.inferenceMu.Lock()
	results, err := d.backend.RemoveObject(ctx, row.ModelState, objectID)
	d.inferenceMu.Unlock()
	if err != nil {
		metrics.BackendFailuresTotal.WithLabelValues("remove_object").Inc()
		return nil, fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
	}

	d.touchLastActive(sessionID)
	return results, nil
}

// CancelPropagation sets the cooperative cancellation flag a running
// PropagateInVideo call observes between frames.
func (d *Driver) CancelPropagation(sessionID string) error {
	if !d.table.Mutate(sessionID, func(s *model.Session) { s.Canceled = true }) {
		return model.ErrSessionNotFound
	}
	return nil
}

var validDirections = map[ports.Direction]bool{
	ports.DirectionForward:  true,
	ports.DirectionBackward: true,
	ports.DirectionBoth:     true,
}

// PropagateInVideo returns a channel of frame results for sessionID,
// starting at startFrameIndex and walking in the requested direction. The
// channel is closed on normal completion, cooperative cancellation, or
// consumer abandonment (signalled by cancelling ctx); every exit path
// flushes the accelerator cache exactly once.
func (d *Driver) PropagateInVideo(ctx context.Context, sessionID string, startFrameIndex int, direction ports.Direction) (<-chan ports.FrameResult, <-chan error, error) {
	if !validDirections[direction] {
		return nil, nil, fmt.Errorf("%w: unknown direction %q", model.ErrInvalidArgument, direction)
	}

	row, err := d.resolveActive(sessionID)
	if err != nil {
		return nil, nil, err
	}
	// A cancellation stops only the run it interrupts; a new run starts clean.
	d.table.Mutate(sessionID, func(s *model.Session) { s.Canceled = false })

	out := make(chan ports.FrameResult)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)
		defer func() {
			d.inferenceMu.Lock()
			d.backend.FlushCache(ctx)
			d.inferenceMu.Unlock()
			metrics.CacheFlushesTotal.WithLabelValues("propagation_exit").Inc()
		}()

		iterators, err := d.iteratorsFor(ctx, row.ModelState, startFrameIndex, direction)
		if err != nil {
			metrics.BackendFailuresTotal.WithLabelValues("propagate").Inc()
			errc <- fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
			return
		}
		defer func() {
			for _, it := range iterators {
				_ = it.Close()
			}
		}()

		frameCount := 0
		for _, it := range iterators {
			for {
				current, ok := d.table.Get(sessionID)
				if !ok || current.Canceled || current.Status != model.StatusProcessing {
					return
				}

				d.inferenceMu.Lock()
				frame, more, err := it.Next(ctx)
				d.inferenceMu.Unlock()
				if err != nil {
					metrics.BackendFailuresTotal.WithLabelValues("propagate_next").Inc()
					errc <- fmt.Errorf("%w: %v", model.ErrBackendFailure, err)
					return
				}
				if !more {
					break
				}

				d.touchLastActive(sessionID)
				frameCount++
				metrics.PropagationFramesTotal.Inc()
				if frameCount%cacheFlushEveryFrames == 0 {
					d.inferenceMu.Lock()
					d.backend.FlushCache(ctx)
					d.inferenceMu.Unlock()
					metrics.CacheFlushesTotal.WithLabelValues("periodic").Inc()
				}

				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errc, nil
}

func (d *Driver) iteratorsFor(ctx context.Context, handle interface{}, startFrameIndex int, direction ports.Direction) ([]ports.FrameIterator, error) {
	switch direction {
	case ports.DirectionForward, ports.DirectionBackward:
		it, err := d.backend.Propagate(ctx, handle, startFrameIndex, direction)
		if err != nil {
			return nil, err
		}
		return []ports.FrameIterator{it}, nil
	case ports.DirectionBoth:
		forward, err := d.backend.Propagate(ctx, handle, startFrameIndex, ports.DirectionForward)
		if err != nil {
			return nil, err
		}
		backward, err := d.backend.Propagate(ctx, handle, startFrameIndex, ports.DirectionBackward)
		if err != nil {
			_ = forward.Close()
			return nil, err
		}
		return []ports.FrameIterator{forward, backward}, nil
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", model.ErrInvalidArgument, direction)
	}
}
