// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segflow/trackd/internal/backend"
	"github.com/segflow/trackd/internal/domain/session/admission"
	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/ports"
	"github.com/segflow/trackd/internal/domain/session/propagation"
	"github.com/segflow/trackd/internal/domain/session/queuestore"
	"github.com/segflow/trackd/internal/domain/session/table"
	"github.com/segflow/trackd/internal/masks"
)

func newWiredAPI(t *testing.T, maxConcurrent int) *SessionAPI {
	t.Helper()
	store, err := queuestore.OpenFileStore(filepath.Join(t.TempDir(), "queue.json"))
	require.NoError(t, err)

	tbl := table.New()
	ctrl, err := admission.New(admission.Config{MaxConcurrentSessions: maxConcurrent}, store, tbl)
	require.NoError(t, err)

	driver := propagation.New(tbl, backend.NewReference(10), masks.Codec{})
	require.NoError(t, Wire(ctrl, driver))

	return New(ctrl, driver, tbl)
}

func TestWire_NilArgumentsError(t *testing.T) {
	require.Error(t, Wire(nil, nil))

	tbl := table.New()
	store, err := queuestore.OpenFileStore(filepath.Join(t.TempDir(), "queue.json"))
	require.NoError(t, err)
	ctrl, err := admission.New(admission.Config{}, store, tbl)
	require.NoError(t, err)
	require.Error(t, Wire(ctrl, nil))
	require.Error(t, Wire(nil, propagation.New(tbl, backend.NewReference(10), masks.Codec{})))
}

func TestSessionAPI_FullLifecycle_StartAddPointsPropagateClose(t *testing.T) {
	api := newWiredAPI(t, 2)
	ctx := context.Background()

	res, err := api.StartSession(ctx, model.StartRequest{SessionID: "sess-1", VideoPath: "/v/a.mp4"})
	require.NoError(t, err)
	require.False(t, res.Queued)

	require.Eventually(t, func() bool {
		row, ok := api.table.Get("sess-1")
		return ok && row.Status == model.StatusProcessing && row.ModelState != nil
	}, time.Second, 5*time.Millisecond, "InitSession should run asynchronously and mark the session ready")

	masksOut, err := api.AddPoints(ctx, "sess-1", 0, 1, []ports.Point{{X: 10, Y: 20, Label: 1}}, false)
	require.NoError(t, err)
	require.Len(t, masksOut, 1)

	frames, errc, err := api.PropagateInVideo(ctx, "sess-1", 0, ports.DirectionForward)
	require.NoError(t, err)
	var seen []int
	for f := range frames {
		seen = append(seen, f.FrameIndex)
	}
	for range errc {
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)

	closed, err := api.CloseSession("sess-1")
	require.NoError(t, err)
	assert.True(t, closed)

	status := api.QueueStatus("sess-1")
	assert.Equal(t, model.StatusNotFound, status.Status)
}

func TestSessionAPI_QueueOverflow_PromotesOnClose(t *testing.T) {
	api := newWiredAPI(t, 1)
	ctx := context.Background()

	_, err := api.StartSession(ctx, model.StartRequest{SessionID: "sess-1", VideoPath: "/v/a.mp4"})
	require.NoError(t, err)

	res2, err := api.StartSession(ctx, model.StartRequest{SessionID: "sess-2", VideoPath: "/v/b.mp4"})
	require.NoError(t, err)
	assert.True(t, res2.Queued)

	_, err = api.CloseSession("sess-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return api.QueueStatus("sess-2").Status == model.StatusProcessing
	}, time.Second, 5*time.Millisecond)
}

func TestSessionAPI_RemoveObject_UnknownSession(t *testing.T) {
	api := newWiredAPI(t, 1)
	_, err := api.RemoveObject(context.Background(), "nope", 1)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestSessionAPI_CancelPropagateInVideo_StopsStream(t *testing.T) {
	api := newWiredAPI(t, 1)
	ctx := context.Background()

	_, err := api.StartSession(ctx, model.StartRequest{SessionID: "sess-1", VideoPath: "/v/a.mp4"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		row, ok := api.table.Get("sess-1")
		return ok && row.Status == model.StatusProcessing && row.ModelState != nil
	}, time.Second, 5*time.Millisecond)

	frames, errc, err := api.PropagateInVideo(ctx, "sess-1", 0, ports.DirectionForward)
	require.NoError(t, err)

	<-frames
	require.NoError(t, api.CancelPropagateInVideo("sess-1"))

	for range frames {
	}
	for range errc {
	}
}
