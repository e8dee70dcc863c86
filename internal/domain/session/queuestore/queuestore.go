// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package queuestore durably persists the pending admission FIFO so that a
// process restart does not lose sessions still waiting for a slot.
package queuestore

import (
	"time"

	"github.com/segflow/trackd/internal/domain/session/model"
)

// Record is the on-disk shape of one queue entry. Field names mirror the
// original queue file format so an operator inspecting the file recognises
// the shape.
type Record struct {
	SessionID   string                 `json:"session_id"`
	RequestData map[string]interface{} `json:"request_data"`
	EnqueueTime float64                `json:"enqueue_time"`
}

// Store persists and restores the ordered pending queue. Implementations
// must satisfy the atomicity contract: a concurrent reader observes either
// the full pre-save or full post-save image, never a partial write.
type Store interface {
	// Save atomically replaces the on-disk image with queue, in order.
	// A failure is returned to the caller (FileStore also logs it);
	// callers treat it as non-fatal (availability over durability).
	Save(queue []model.QueueEntry) error

	// Load returns the persisted queue in FIFO order, or an empty slice if
	// no file exists yet. Individual records that fail to parse are
	// skipped; a load never aborts recovery of the records that did parse.
	Load() ([]model.QueueEntry, error)

	// Close releases any resources held by the store (file handles, DB
	// handles). Safe to call on stores that hold none.
	Close() error
}

func entryToRecord(e model.QueueEntry) Record {
	req := map[string]interface{}{
		"video_path": e.StartRequest.VideoPath,
	}
	if e.StartRequest.KeepFramesOnGPU {
		req["keep_frames_on_gpu"] = true
	}
	if e.StartRequest.VideoMetadata != nil {
		req["video_metadata"] = e.StartRequest.VideoMetadata
	}
	return Record{
		SessionID:   e.SessionID,
		RequestData: req,
		EnqueueTime: float64(e.EnqueueTime.UnixNano()) / float64(time.Second),
	}
}

func recordToEntry(r Record) (model.QueueEntry, bool) {
	videoPath, ok := r.RequestData["video_path"].(string)
	if !ok || r.SessionID == "" {
		return model.QueueEntry{}, false
	}
	req := model.StartRequest{
		SessionID: r.SessionID,
		VideoPath: videoPath,
	}
	if kf, ok := r.RequestData["keep_frames_on_gpu"].(bool); ok {
		req.KeepFramesOnGPU = kf
	}
	if vm, ok := r.RequestData["video_metadata"].(map[string]interface{}); ok {
		meta := &model.VideoMetadata{}
		if w, ok := vm["width"].(float64); ok {
			meta.Width = int(w)
		}
		if h, ok := vm["height"].(float64); ok {
			meta.Height = int(h)
		}
		if fps, ok := vm["fps"].(float64); ok {
			meta.FPS = fps
		}
		if fc, ok := vm["frame_count"].(float64); ok {
			meta.FrameCount = int(fc)
		}
		req.VideoMetadata = meta
	}
	sec := int64(r.EnqueueTime)
	nsec := int64((r.EnqueueTime - float64(sec)) * float64(time.Second))
	return model.QueueEntry{
		SessionID:    r.SessionID,
		StartRequest: req,
		EnqueueTime:  time.Unix(sec, nsec),
	}, true
}
