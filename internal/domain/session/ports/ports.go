// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports declares the external collaborators the session core talks
// to without owning. Concrete implementations (the segmentation model, the
// RLE codec) live outside this module; only their contracts are specified
// here, matching the boundary the original system drew around the model
// process.
package ports

import "context"

// Point is a single click prompt in image coordinates.
type Point struct {
	X     float64
	Y     float64
	Label int // 1 = positive, 0 = negative
}

// RLEMask is a COCO run-length encoded binary mask.
type RLEMask struct {
	Size   [2]int // [height, width]
	Counts string
}

// ObjectMask pairs one tracked object with its mask on a single frame.
type ObjectMask struct {
	ObjectID int
	Mask     RLEMask
}

// FrameResult is one yielded (or synchronously returned) propagation step.
type FrameResult struct {
	FrameIndex int
	Objects    []ObjectMask
}

// Direction selects which way a propagation run walks the video.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionBoth     Direction = "both"
)

// ModelBackend is the stateful, not-thread-safe segmentation engine. Every
// call must be made while holding the core's inference serialization lock;
// ModelBackend itself enforces nothing.
type ModelBackend interface {
	// InitState allocates model state for a session and returns an opaque
	// handle the core stores on the Session row and passes back on every
	// subsequent call. offloadFrames keeps decoded frames off the
	// accelerator to bound memory fragmentation.
	InitState(ctx context.Context, videoPath string, offloadFrames bool) (interface{}, error)

	// AddPoints records click prompts for one object on one frame and
	// returns the resulting masks for that frame.
	AddPoints(ctx context.Context, handle interface{}, frameIndex, objectID int, points []Point, clearOldPoints bool) ([]ObjectMask, error)

	// AddMask seeds an object directly from a caller-supplied mask.
	AddMask(ctx context.Context, handle interface{}, frameIndex, objectID int, mask RLEMask) ([]ObjectMask, error)

	// ClearPointsInFrame removes prompts for one object on one frame.
	ClearPointsInFrame(ctx context.Context, handle interface{}, frameIndex, objectID int) ([]ObjectMask, error)

	// ResetPrompts clears every prompt across the whole video.
	ResetPrompts(ctx context.Context, handle interface{}) error

	// RemoveObject drops an object from tracking and returns the updated
	// mask sets for every frame that object previously touched, in the
	// order the backend produced them.
	RemoveObject(ctx context.Context, handle interface{}, objectID int) ([]FrameResult, error)

	// Propagate returns a forward and/or backward iterator of frame results
	// starting at startFrameIndex. The driver consumes one or both
	// depending on direction.
	Propagate(ctx context.Context, handle interface{}, startFrameIndex int, direction Direction) (FrameIterator, error)

	// ClearFrame releases any per-frame tensors the backend is still
	// holding for handle. Called on every session teardown path.
	ClearFrame(ctx context.Context, handle interface{}) error

	// FlushCache requests the accelerator release cached allocations. Must
	// be safe to call idempotently and often.
	FlushCache(ctx context.Context)

	// ReleaseState frees the model state referenced by handle. Called
	// exactly once, on session termination.
	ReleaseState(ctx context.Context, handle interface{}) error
}

// FrameIterator is a pull-based sequence of frame results, used by
// PropagationDriver to stream without materialising the whole run.
type FrameIterator interface {
	// Next advances the iterator. It returns false when exhausted.
	Next(ctx context.Context) (FrameResult, bool, error)
	// Close releases any resources the iterator holds open early.
	Close() error
}

// MaskCodec converts between the backend's raw per-object tensors and the
// wire-level RLE representation. Pure, stateless, side-effect free.
type MaskCodec interface {
	Encode(raw interface{}) (RLEMask, error)
	Decode(mask RLEMask) (interface{}, error)
}
