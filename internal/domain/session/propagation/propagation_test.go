// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package propagation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/domain/session/table"
)

// fakeBackend is a minimal ports.ModelBackend for exercising Driver without
// any real segmentation model.
type fakeBackend struct {
	mu           sync.Mutex
	initErr      error
	handleFrames int
	flushCalls   int
	released     []interface{}
}

type fakeHandle struct{ id string }

func (b *fakeBackend) InitState(_ context.Context, videoPath string, _ bool) (interface{}, error) {
	if b.initErr != nil {
		return nil, b.initErr
	}
	return &fakeHandle{id: videoPath}, nil
}

func (b *fakeBackend) AddPoints(_ context.Context, _ interface{}, frameIndex, objectID int, _ []ports.Point, _ bool) ([]ports.ObjectMask, error) {
	return []ports.ObjectMask{{ObjectID: objectID, Mask: ports.RLEMask{Size: [2]int{1, 1}, Counts: "1"}}}, nil
}

func (b *fakeBackend) AddMask(_ context.Context, _ interface{}, _, objectID int, mask ports.RLEMask) ([]ports.ObjectMask, error) {
	return []ports.ObjectMask{{ObjectID: objectID, Mask: mask}}, nil
}

func (b *fakeBackend) ClearPointsInFrame(_ context.Context, _ interface{}, _, _ int) ([]ports.ObjectMask, error) {
	return nil, nil
}

func (b *fakeBackend) ResetPrompts(_ context.Context, _ interface{}) error { return nil }

func (b *fakeBackend) RemoveObject(_ context.Context, _ interface{}, _ int) ([]ports.FrameResult, error) {
	return nil, nil
}

func (b *fakeBackend) Propagate(_ context.Context, _ interface{}, startFrameIndex int, direction ports.Direction) (ports.FrameIterator, error) {
	return &fakeIterator{current: startFrameIndex, max: b.handleFrames, direction: direction}, nil
}

func (b *fakeBackend) ClearFrame(_ context.Context, _ interface{}) error { return nil }

func (b *fakeBackend) FlushCache(_ context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushCalls++
}

func (b *fakeBackend) ReleaseState(_ context.Context, handle interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, handle)
	return nil
}

var _ ports.ModelBackend = (*fakeBackend)(nil)

type fakeIterator struct {
	current   int
	max       int
	direction ports.Direction
	closed    bool
}

func (it *fakeIterator) Next(_ context.Context) (ports.FrameResult, bool, error) {
	if it.current < 0 || it.current >= it.max {
		return ports.FrameResult{}, false, nil
	}
	fr := ports.FrameResult{FrameIndex: it.current}
	if it.direction == ports.DirectionBackward {
		it.current--
	} else {
		it.current++
	}
	return fr, true, nil
}

func (it *fakeIterator) Close() error { it.closed = true; return nil }

type stubAdmission struct {
	mu     sync.Mutex
	ready  []string
	failed []string
}

func (s *stubAdmission) MarkReady(sessionID string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, sessionID)
}

func (s *stubAdmission) MarkFailed(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, sessionID)
}

func newActiveSession(tbl *table.Table, id string, handle interface{}) {
	tbl.Insert(&model.Session{
		SessionID:      id,
		Status:         model.StatusProcessing,
		VideoPath:      "/v/a.mp4",
		ModelState:     handle,
		LastActiveTime: time.Now().Add(-time.Hour),
	})
}

func TestDriver_InitSession_MarksReadyOnSuccess(t *testing.T) {
	tbl := table.New()
	tbl.Insert(&model.Session{SessionID: "sess-1", Status: model.StatusProcessing, VideoPath: "/v/a.mp4"})

	backend := &fakeBackend{}
	admission := &stubAdmission{}
	d := New(tbl, backend, nil)
	d.SetAdmission(admission)

	d.InitSession(context.Background(), "sess-1")

	assert.Equal(t, []string{"sess-1"}, admission.ready)
	row, ok := tbl.Get("sess-1")
	require.True(t, ok)
	assert.NotNil(t, row.ModelState)
}

func TestDriver_InitSession_MarksFailedOnBackendError(t *testing.T) {
	tbl := table.New()
	tbl.Insert(&model.Session{SessionID: "sess-1", Status: model.StatusProcessing, VideoPath: "/v/a.mp4"})

	backend := &fakeBackend{initErr: errors.New("boom")}
	admission := &stubAdmission{}
	d := New(tbl, backend, nil)
	d.SetAdmission(admission)

	d.InitSession(context.Background(), "sess-1")

	assert.Equal(t, []string{"sess-1"}, admission.failed)
}

func TestDriver_AddPoints_OnInactiveSessionReturnsExpired(t *testing.T) {
	tbl := table.New()
	tbl.Insert(&model.Session{SessionID: "sess-1", Status: model.StatusQueued})

	d := New(tbl, &fakeBackend{}, nil)
	_, err := d.AddPoints(context.Background(), "sess-1", 0, 1, nil, false)
	require.ErrorIs(t, err, model.ErrSessionExpired)
}

func TestDriver_AddPoints_UnknownSessionReturnsNotFound(t *testing.T) {
	tbl := table.New()
	d := New(tbl, &fakeBackend{}, nil)
	_, err := d.AddPoints(context.Background(), "nope", 0, 1, nil, false)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestDriver_AddPoints_TouchesLastActive(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})

	d := New(tbl, &fakeBackend{}, nil)
	_, err := d.AddPoints(context.Background(), "sess-1", 0, 1, []ports.Point{{X: 1, Y: 2, Label: 1}}, false)
	require.NoError(t, err)

	row, _ := tbl.Get("sess-1")
	assert.WithinDuration(t, time.Now(), row.LastActiveTime, time.Second)
}

func TestDriver_CancelPropagation_SetsFlag(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})
	d := New(tbl, &fakeBackend{}, nil)

	require.NoError(t, d.CancelPropagation("sess-1"))
	row, _ := tbl.Get("sess-1")
	assert.True(t, row.Canceled)
}

func TestDriver_CancelPropagation_UnknownSession(t *testing.T) {
	tbl := table.New()
	d := New(tbl, &fakeBackend{}, nil)
	require.ErrorIs(t, d.CancelPropagation("nope"), model.ErrSessionNotFound)
}

func TestDriver_PropagateInVideo_RejectsUnknownDirection(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})
	d := New(tbl, &fakeBackend{}, nil)

	_, _, err := d.PropagateInVideo(context.Background(), "sess-1", 0, ports.Direction("sideways"))
	require.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestDriver_PropagateInVideo_StreamsForwardFramesInOrder(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})
	backend := &fakeBackend{handleFrames: 5}
	d := New(tbl, backend, nil)

	frames, errc, err := d.PropagateInVideo(context.Background(), "sess-1", 0, ports.DirectionForward)
	require.NoError(t, err)

	var got []int
	for f := range frames {
		got = append(got, f.FrameIndex)
	}
	for range errc {
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	backend.mu.Lock()
	assert.GreaterOrEqual(t, backend.flushCalls, 1, "cache must be flushed at least on exit")
	backend.mu.Unlock()
}

func TestDriver_PropagateInVideo_StopsOnCooperativeCancellation(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})
	backend := &fakeBackend{handleFrames: 1000}
	d := New(tbl, backend, nil)

	frames, errc, err := d.PropagateInVideo(context.Background(), "sess-1", 0, ports.DirectionForward)
	require.NoError(t, err)

	// Consume a couple of frames, then cancel cooperatively.
	<-frames
	<-frames
	require.NoError(t, d.CancelPropagation("sess-1"))

	// Drain until the producer goroutine notices the cancel flag and closes.
	for range frames {
	}
	for range errc {
	}
}

func TestDriver_PropagateInVideo_BothDirectionsChainsForwardThenBackward(t *testing.T) {
	tbl := table.New()
	newActiveSession(tbl, "sess-1", &fakeHandle{})
	backend := &fakeBackend{handleFrames: 3}
	d := New(tbl, backend, nil)

	frames, errc, err := d.PropagateInVideo(context.Background(), "sess-1", 0, ports.DirectionBoth)
	require.NoError(t, err)

	var got []int
	for f := range frames {
		got = append(got, f.FrameIndex)
	}
	for range errc {
	}

	// forward from 0 yields 0,1,2; backward from 0 yields 0 then stops (<0).
	assert.Equal(t, []int{0, 1, 2, 0}, got)
}

func TestDriver_ReleaseSession_CallsBackendAndFlushes(t *testing.T) {
	tbl := table.New()
	handle := &fakeHandle{id: "h"}
	newActiveSession(tbl, "sess-1", handle)
	backend := &fakeBackend{}
	d := New(tbl, backend, nil)

	require.NoError(t, d.ReleaseSession(context.Background(), "sess-1"))
	assert.Equal(t, []interface{}{handle}, backend.released)
	assert.Equal(t, 1, backend.flushCalls)
}

func TestDriver_ReleaseSession_NoOpWithoutModelState(t *testing.T) {
	tbl := table.New()
	tbl.Insert(&model.Session{SessionID: "sess-1", Status: model.StatusQueued})
	backend := &fakeBackend{}
	d := New(tbl, backend, nil)

	require.NoError(t, d.ReleaseSession(context.Background(), "sess-1"))
	assert.Empty(t, backend.released)
}
