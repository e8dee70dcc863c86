// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend provides a reference ports.ModelBackend: a bookkeeping
// stand-in for the real segmentation model, which is an external
// collaborator this module never implements. It lets cmd/sessiond start and
// serve the ten session operations end to end against synthetic masks, so
// the admission/propagation core can be exercised without a GPU or a real
// model checkpoint. A production deployment replaces this with a backend
// that actually drives the segmentation model.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/metrics"
)

// state is the opaque handle Reference hands back from InitState.
type state struct {
	mu         sync.Mutex
	videoPath  string
	frameCount int
	prompts    map[int]map[int][]ports.Point // frameIndex -> objectID -> points
	masks      map[int]map[int]ports.RLEMask // frameIndex -> objectID -> mask
}

// Reference is a single-process, in-memory ports.ModelBackend. It never
// touches an accelerator; FlushCache is a no-op metrics increment.
type Reference struct {
	defaultFrameCount int
}

var _ ports.ModelBackend = (*Reference)(nil)

// NewReference returns a Reference backend. Every session's state gets
// defaultFrameCount frames (300 when it is zero or negative); a session's
// VideoMetadata.FrameCount is not consulted.
func NewReference(defaultFrameCount int) *Reference {
	if defaultFrameCount <= 0 {
		defaultFrameCount = 300
	}
	return &Reference{defaultFrameCount: defaultFrameCount}
}

func (r *Reference) InitState(_ context.Context, videoPath string, _ bool) (interface{}, error) {
	return &state{
		videoPath:  videoPath,
		frameCount: r.defaultFrameCount,
		prompts:    make(map[int]map[int][]ports.Point),
		masks:      make(map[int]map[int]ports.RLEMask),
	}, nil
}

func asState(handle interface{}) (*state, error) {
	s, ok := handle.(*state)
	if !ok {
		return nil, fmt.Errorf("backend: unexpected handle type %T", handle)
	}
	return s, nil
}

func emptyMask() ports.RLEMask {
	return ports.RLEMask{Size: [2]int{1, 1}, Counts: "0"}
}

func (r *Reference) AddPoints(_ context.Context, handle interface{}, frameIndex, objectID int, points []ports.Point, clearOldPoints bool) ([]ports.ObjectMask, error) {
	s, err := asState(handle)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prompts[frameIndex] == nil {
		s.prompts[frameIndex] = make(map[int][]ports.Point)
	}
	if clearOldPoints {
		s.prompts[frameIndex][objectID] = nil
	}
	s.prompts[frameIndex][objectID] = append(s.prompts[frameIndex][objectID], points...)

	mask := emptyMask()
	if s.masks[frameIndex] == nil {
		s.masks[frameIndex] = make(map[int]ports.RLEMask)
	}
	s.masks[frameIndex][objectID] = mask

	return []ports.ObjectMask{{ObjectID: objectID, Mask: mask}}, nil
}

func (r *Reference) AddMask(_ context.Context, handle interface{}, frameIndex, objectID int, mask ports.RLEMask) ([]ports.ObjectMask, error) {
	s, err := asState(handle)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.masks[frameIndex] == nil {
		s.masks[frameIndex] = make(map[int]ports.RLEMask)
	}
	s.masks[frameIndex][objectID] = mask

	return []ports.ObjectMask{{ObjectID: objectID, Mask: mask}}, nil
}

func (r *Reference) ClearPointsInFrame(_ context.Context, handle interface{}, frameIndex, objectID int) ([]ports.ObjectMask, error) {
	s, err := asState(handle)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.prompts[frameIndex], objectID)
	delete(s.masks[frameIndex], objectID)

	out := make([]ports.ObjectMask, 0, len(s.masks[frameIndex]))
	for id, m := range s.masks[frameIndex] {
		out = append(out, ports.ObjectMask{ObjectID: id, Mask: m})
	}
	return out, nil
}

func (r *Reference) ResetPrompts(_ context.Context, handle interface{}) error {
	s, err := asState(handle)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = make(map[int]map[int][]ports.Point)
	s.masks = make(map[int]map[int]ports.RLEMask)
	return nil
}

func (r *Reference) RemoveObject(_ context.Context, handle interface{}, objectID int) ([]ports.FrameResult, error) {
	s, err := asState(handle)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []ports.FrameResult
	for frameIndex, objects := range s.masks {
		if _, ok := objects[objectID]; !ok {
			continue
		}
		delete(objects, objectID)
		delete(s.prompts[frameIndex], objectID)

		remaining := make([]ports.ObjectMask, 0, len(objects))
		for id, m := range objects {
			remaining = append(remaining, ports.ObjectMask{ObjectID: id, Mask: m})
		}
		results = append(results, ports.FrameResult{FrameIndex: frameIndex, Objects: remaining})
	}
	return results, nil
}

// frameIterator walks frames [start, start+step, ...) within [0, frameCount)
// yielding whatever object masks the session has accumulated.
type frameIterator struct {
	s       *state
	current int
	step    int
	frames  int
}

func (it *frameIterator) Next(_ context.Context) (ports.FrameResult, bool, error) {
	if it.current < 0 || it.current >= it.frames {
		return ports.FrameResult{}, false, nil
	}

	it.s.mu.Lock()
	objects := it.s.masks[it.current]
	out := make([]ports.ObjectMask, 0, len(objects))
	for id, m := range objects {
		out = append(out, ports.ObjectMask{ObjectID: id, Mask: m})
	}
	it.s.mu.Unlock()

	result := ports.FrameResult{FrameIndex: it.current, Objects: out}
	it.current += it.step
	return result, true, nil
}

func (it *frameIterator) Close() error { return nil }

// biDirectionalIterator chains a forward and a backward frameIterator so
// DirectionBoth can be served through the single ports.FrameIterator seam.
type biDirectionalIterator struct {
	forward, backward *frameIterator
}

func (it *biDirectionalIterator) Next(ctx context.Context) (ports.FrameResult, bool, error) {
	if it.forward != nil {
		if res, ok, err := it.forward.Next(ctx); err != nil || ok {
			return res, ok, err
		}
		it.forward = nil
	}
	if it.backward != nil {
		return it.backward.Next(ctx)
	}
	return ports.FrameResult{}, false, nil
}

func (it *biDirectionalIterator) Close() error {
	if it.forward != nil {
		_ = it.forward.Close()
	}
	if it.backward != nil {
		return it.backward.Close()
	}
	return nil
}

func (r *Reference) Propagate(_ context.Context, handle interface{}, startFrameIndex int, direction ports.Direction) (ports.FrameIterator, error) {
	s, err := asState(handle)
	if err != nil {
		return nil, err
	}

	switch direction {
	case ports.DirectionForward:
		return &frameIterator{s: s, current: startFrameIndex, step: 1, frames: s.frameCount}, nil
	case ports.DirectionBackward:
		return &frameIterator{s: s, current: startFrameIndex, step: -1, frames: s.frameCount}, nil
	case ports.DirectionBoth:
		return &biDirectionalIterator{
			forward:  &frameIterator{s: s, current: startFrameIndex, step: 1, frames: s.frameCount},
			backward: &frameIterator{s: s, current: startFrameIndex - 1, step: -1, frames: s.frameCount},
		}, nil
	default:
		return nil, fmt.Errorf("backend: unknown propagation direction %q", direction)
	}
}

func (r *Reference) ClearFrame(_ context.Context, _ interface{}) error {
	return nil
}

func (r *Reference) FlushCache(_ context.Context) {
	metrics.CacheFlushesTotal.WithLabelValues("backend_flush").Inc()
}

func (r *Reference) ReleaseState(_ context.Context, _ interface{}) error {
	return nil
}
