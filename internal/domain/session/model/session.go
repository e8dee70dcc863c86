// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model defines the data shapes shared across the session admission
// and propagation subsystems.
package model

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusNotFound   Status = "not_found"
)

// IsTerminal reports whether a session in this status will never transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// VideoMetadata carries client-declared facts about the source video.
// Entirely opaque to the admission/propagation core beyond storage and replay.
type VideoMetadata struct {
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	FrameCount int     `json:"frame_count,omitempty"`
}

// StartRequest is the snapshot of everything the admission path needs to
// resume a queued entry, including across a process restart.
type StartRequest struct {
	SessionID       string         `json:"session_id,omitempty"`
	VideoPath       string         `json:"video_path"`
	VideoMetadata   *VideoMetadata `json:"video_metadata,omitempty"`
	KeepFramesOnGPU bool           `json:"keep_frames_on_gpu,omitempty"`
}

// ModelHandle is the opaque per-session state object handed back by
// ModelBackend.InitState. The core never inspects it; it only tracks
// ownership and releases it on termination.
type ModelHandle interface{}

// Session is the unit of admission: one row per tracked video, whether
// still waiting in the queue or actively bound to the model.
//
// Session collapses what the original predictor kept as two parallel maps
// (one for admission bookkeeping, one for cancellation/activity state) into
// a single row guarded by one lock. See DESIGN.md for why the split must
// not be reintroduced.
type Session struct {
	SessionID           string
	Status              Status
	VideoPath           string
	VideoMetadata       *VideoMetadata
	EnqueueTime         time.Time
	ProcessingStartTime time.Time
	LastActiveTime      time.Time
	OffloadFrames       bool
	Canceled            bool
	ModelState          ModelHandle
	LastProcessingTime  time.Duration
}

// Clone returns a shallow copy safe to hand to callers outside the table lock.
// VideoMetadata is copied by value since it is small and immutable once set.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.VideoMetadata != nil {
		vm := *s.VideoMetadata
		c.VideoMetadata = &vm
	}
	return &c
}

// QueueEntry is one pending admission, in strict insertion order.
type QueueEntry struct {
	SessionID    string
	StartRequest StartRequest
	EnqueueTime  time.Time
}
