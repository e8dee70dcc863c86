// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission implements the concurrency-capped FIFO wait queue: the
// decision of which sessions run now, which wait, and when a waiter is
// promoted.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/queuestore"
	"github.com/segflow/trackd/internal/domain/session/table"
	"github.com/segflow/trackd/internal/log"
	"github.com/segflow/trackd/internal/metrics"
)

// DefaultMaxConcurrentSessions is the concurrency cap applied when Config
// leaves MaxConcurrentSessions at zero.
const DefaultMaxConcurrentSessions = 5

// DefaultAvgProcessingTime seeds the exponential smoothing estimate and is
// also the value restored after a restart (the smoothing history itself is
// not persisted, matching the original's in-memory-only estimate).
const DefaultAvgProcessingTime = 60 * time.Second

// Initializer starts model-state setup for a newly admitted session. It is
// invoked asynchronously (as a fresh goroutine, never a recursive call) so
// that admitting many queued sessions in one Pump pass never grows the call
// stack.
type Initializer interface {
	InitSession(ctx context.Context, sessionID string)
}

// Releaser tears down whatever model state a session holds. Called on
// explicit close; the reaper uses the same contract.
type Releaser interface {
	ReleaseSession(ctx context.Context, sessionID string) error
}

// Config configures a Controller.
type Config struct {
	MaxConcurrentSessions int
	AvgProcessingTime     time.Duration
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	SessionID     string
	Queued        bool
	Position      int
	EstimatedWait time.Duration
}

// StatusResult is the outcome of Status.
type StatusResult struct {
	SessionID     string
	Status        model.Status
	Position      int
	EstimatedWait time.Duration
}

// Controller is the admission heart of the system: it owns the pending
// queue and decides when a waiter is promoted into the active set. It does
// not itself touch ModelBackend; Initializer and Releaser are the narrow
// seams through which PropagationDriver is wired in, keeping this package
// free of a dependency on the model backend contract.
type Controller struct {
	table *table.Table
	store queuestore.Store

	maxConcurrent     int
	avgProcessingTime time.Duration

	// mu guards queue and avgProcessingTime. It plays the role the design
	// calls queue_lock: held only for bookkeeping, never across a
	// ModelBackend call or blocking I/O other than the queue file write.
	mu    sync.Mutex
	queue []model.QueueEntry

	sf singleflight.Group

	initializer Initializer
	releaser    Releaser

	logger zerolog.Logger
}

// New constructs a Controller and performs restart recovery: it loads the
// persisted queue and materialises a queued row per entry. It does not call
// Pump; the caller must do so exactly once after wiring an Initializer,
// since the model backend may not be ready during construction.
func New(cfg Config, store queuestore.Store, tbl *table.Table) (*Controller, error) {
	maxConcurrent := cfg.MaxConcurrentSessions
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSessions
	}
	avg := cfg.AvgProcessingTime
	if avg <= 0 {
		avg = DefaultAvgProcessingTime
	}

	c := &Controller{
		table:             tbl,
		store:             store,
		maxConcurrent:     maxConcurrent,
		avgProcessingTime: avg,
		logger:            log.WithComponent("admission"),
	}

	entries, err := store.Load()
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("load").Inc()
		c.logger.Warn().Err(err).Msg("queue load failed, starting with empty queue")
		entries = nil
	}
	c.queue = entries
	for _, e := range entries {
		c.table.Insert(&model.Session{
			SessionID:     e.SessionID,
			Status:        model.StatusQueued,
			VideoPath:     e.StartRequest.VideoPath,
			VideoMetadata: e.StartRequest.VideoMetadata,
			EnqueueTime:   e.EnqueueTime,
			OffloadFrames: computeOffloadFrames(e.StartRequest),
		})
	}
	metrics.QueueDepth.Set(float64(len(c.queue)))

	return c, nil
}

// SetInitializer wires the component that performs model initialisation.
func (c *Controller) SetInitializer(i Initializer) { c.initializer = i }

// SetReleaser wires the component that tears down model state.
func (c *Controller) SetReleaser(r Releaser) { c.releaser = r }

func (c *Controller) lock()   { c.mu.Lock() }
func (c *Controller) unlock() { c.mu.Unlock() }

// persistLocked saves the current queue to the store. Precondition: caller
// holds the controller lock. This and persistUnlocked replace what the
// original implementation expressed as a single save method with an
// already_has_lock boolean flag.
func (c *Controller) persistLocked() error {
	if err := c.store.Save(c.queue); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("save").Inc()
		return err
	}
	return nil
}

// persistUnlocked acquires the controller lock itself before saving.
// Precondition: caller does NOT hold the controller lock.
func (c *Controller) persistUnlocked() error {
	c.lock()
	defer c.unlock()
	return c.persistLocked()
}

func computeOffloadFrames(req model.StartRequest) bool {
	// offload_frames defaults to true; an explicit KeepFramesOnGPU opt-in
	// alone turns it off. The selected device is not consulted, here or by
	// any caller, so the opt-in takes effect on a CPU-only host as well.
	return !req.KeepFramesOnGPU
}

// Submit resolves a session id (client-supplied or minted), and either
// admits it immediately, returns its existing state for an idempotent
// resubmit, or appends it to the wait queue.
func (c *Controller) Submit(ctx context.Context, req model.StartRequest) (SubmitResult, error) {
	if req.VideoPath == "" {
		return SubmitResult{}, fmt.Errorf("%w: path is required", model.ErrInvalidArgument)
	}

	if req.SessionID == "" {
		return c.submitNew(req, uuid.New().String())
	}

	// Collapse concurrent submits racing on the same client-supplied id
	// into a single admission decision.
	v, err, _ := c.sf.Do(req.SessionID, func() (interface{}, error) {
		return c.submitNew(req, req.SessionID)
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return v.(SubmitResult), nil
}

func (c *Controller) submitNew(req model.StartRequest, sessionID string) (SubmitResult, error) {
	if existing, ok := c.table.Get(sessionID); ok {
		switch existing.Status {
		case model.StatusProcessing, model.StatusCompleted:
			return SubmitResult{SessionID: sessionID, Queued: false, Position: 0}, nil
		case model.StatusQueued:
			// Already waiting: report its current position rather than
			// appending a second queue entry for the same id.
			c.lock()
			position := 0
			for i, e := range c.queue {
				if e.SessionID == sessionID {
					position = i + 1
					break
				}
			}
			avg := c.avgProcessingTime
			c.unlock()
			return SubmitResult{
				SessionID:     sessionID,
				Queued:        true,
				Position:      position,
				EstimatedWait: time.Duration(position) * avg,
			}, nil
		}
	}

	c.lock()
	if c.table.ActiveCount() < c.maxConcurrent {
		c.admitLocked(sessionID, req)
		c.unlock()
		c.startInitializer(sessionID)
		return SubmitResult{SessionID: sessionID, Queued: false}, nil
	}

	entry := model.QueueEntry{SessionID: sessionID, StartRequest: req, EnqueueTime: time.Now()}
	c.queue = append(c.queue, entry)
	position := len(c.queue)
	avg := c.avgProcessingTime
	if err := c.persistLocked(); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("queue persist failed during submit")
	}
	c.unlock()

	c.table.Insert(&model.Session{
		SessionID:     sessionID,
		Status:        model.StatusQueued,
		VideoPath:     req.VideoPath,
		VideoMetadata: req.VideoMetadata,
		EnqueueTime:   entry.EnqueueTime,
		OffloadFrames: computeOffloadFrames(req),
	})
	metrics.SessionsQueuedTotal.Inc()
	metrics.QueueDepth.Set(float64(position))

	return SubmitResult{
		SessionID:     sessionID,
		Queued:        true,
		Position:      position,
		EstimatedWait: time.Duration(position) * avg,
	}, nil
}

// admitLocked promotes sessionID straight into the active set. Precondition:
// caller holds c.mu, so the capacity check that decided to admit and the
// active-set insert happen as one atomic step — no concurrent Submit or Pump
// can observe the freed slot twice. The caller must unlock before starting
// model initialisation.
func (c *Controller) admitLocked(sessionID string, req model.StartRequest) {
	now := time.Now()
	c.table.Insert(&model.Session{
		SessionID:           sessionID,
		Status:              model.StatusProcessing,
		VideoPath:           req.VideoPath,
		VideoMetadata:       req.VideoMetadata,
		EnqueueTime:         now,
		ProcessingStartTime: now,
		LastActiveTime:      now,
		OffloadFrames:       computeOffloadFrames(req),
	})
	metrics.SessionsAdmittedTotal.Inc()
	metrics.ActiveSessions.Set(float64(c.table.ActiveCount()))
}

// startInitializer kicks off asynchronous model initialisation for an
// already-admitted session. Never call while holding c.mu.
func (c *Controller) startInitializer(sessionID string) {
	if c.initializer != nil {
		go c.initializer.InitSession(context.Background(), sessionID)
	}
}

// Close removes sessionID from the queue and/or active set, persists the
// queue if it changed, and asynchronously pumps the queue to fill any slot
// freed up.
func (c *Controller) Close(sessionID string) (bool, error) {
	c.lock()
	queueChanged := false
	for i, e := range c.queue {
		if e.SessionID == sessionID {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			queueChanged = true
			break
		}
	}
	if queueChanged {
		if err := c.persistLocked(); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("queue persist failed during close")
		}
		metrics.QueueDepth.Set(float64(len(c.queue)))
	}
	c.unlock()

	row, ok := c.table.Get(sessionID)
	if !ok && !queueChanged {
		return false, nil
	}

	// Release before deleting the row: ReleaseSession looks the model
	// state up in the table by id.
	if ok && row.ModelState != nil && c.releaser != nil {
		if err := c.releaser.ReleaseSession(context.Background(), sessionID); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("release session on close failed")
		}
	}
	c.table.Delete(sessionID)
	if ok {
		metrics.ActiveSessions.Set(float64(c.table.ActiveCount()))
	}

	go c.Pump()
	return true, nil
}

// Pump admits queued sessions until the concurrency cap is reached or the
// queue is empty. It is an iterative loop, not a recursive function, so an
// arbitrarily long queue never deepens the call stack; the original
// restarted its equivalent loop on a fresh thread for the same reason.
func (c *Controller) Pump() {
	for {
		c.lock()
		if len(c.queue) == 0 || c.table.ActiveCount() >= c.maxConcurrent {
			c.unlock()
			return
		}
		entry := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.persistLocked(); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldSessionID, entry.SessionID).Msg("queue persist failed during pump")
		}
		metrics.QueueDepth.Set(float64(len(c.queue)))

		// Defensive: the popped entry may already be active, or its row may
		// have vanished (closed while queued). Skip and keep pumping.
		if existing, ok := c.table.Get(entry.SessionID); !ok || existing.Status == model.StatusProcessing {
			c.unlock()
			continue
		}
		c.admitLocked(entry.SessionID, entry.StartRequest)
		c.unlock()
		c.startInitializer(entry.SessionID)
	}
}

// Status reports the current state of sessionID, including queue position
// when still waiting.
func (c *Controller) Status(sessionID string) StatusResult {
	row, ok := c.table.Get(sessionID)
	if !ok {
		return StatusResult{SessionID: sessionID, Status: model.StatusNotFound, Position: -1}
	}
	if row.Status != model.StatusQueued {
		return StatusResult{SessionID: sessionID, Status: row.Status, Position: 0}
	}

	c.lock()
	position := 0
	for i, e := range c.queue {
		if e.SessionID == sessionID {
			position = i + 1
			break
		}
	}
	avg := c.avgProcessingTime
	c.unlock()

	return StatusResult{
		SessionID:     sessionID,
		Status:        model.StatusQueued,
		Position:      position,
		EstimatedWait: time.Duration(position) * avg,
	}
}

// MarkReady records that sessionID's model state finished initialising,
// updating the exponentially-smoothed processing-time estimate:
// avg ← 0.7·avg + 0.3·observed.
func (c *Controller) MarkReady(sessionID string, observed time.Duration) {
	c.lock()
	c.avgProcessingTime = time.Duration(0.7*float64(c.avgProcessingTime) + 0.3*float64(observed))
	c.unlock()

	c.table.Mutate(sessionID, func(s *model.Session) {
		s.LastActiveTime = time.Now()
		s.LastProcessingTime = observed
	})
}

// MarkFailed records that sessionID's model initialisation failed: the row
// transitions to error, freeing its slot, and the queue is pumped.
func (c *Controller) MarkFailed(sessionID string) {
	c.table.Mutate(sessionID, func(s *model.Session) {
		s.Status = model.StatusError
	})
	metrics.ActiveSessions.Set(float64(c.table.ActiveCount()))
	go c.Pump()
}

// QueueLen returns the number of sessions currently waiting. Exposed for
// tests asserting on FIFO ordering.
func (c *Controller) QueueLen() int {
	c.lock()
	defer c.unlock()
	return len(c.queue)
}

// Evict satisfies reaper.Releaser: it releases sessionID's model state and
// removes its row, freeing the slot for the next queued submission. Unlike
// Close, the caller here is the reaper, not the session's own client, so
// there is no queue entry to remove.
func (c *Controller) Evict(ctx context.Context, sessionID string) error {
	row, ok := c.table.Get(sessionID)
	if !ok {
		return nil
	}

	var err error
	if row.ModelState != nil && c.releaser != nil {
		err = c.releaser.ReleaseSession(ctx, sessionID)
	}
	c.table.Delete(sessionID)
	metrics.ActiveSessions.Set(float64(c.table.ActiveCount()))
	go c.Pump()
	return err
}
