// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/domain/session/table"
)

type stubReleaser struct {
	mu     sync.Mutex
	evicts []string
	fail   map[string]bool
}

func (s *stubReleaser) Evict(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[sessionID] {
		return assert.AnError
	}
	s.evicts = append(s.evicts, sessionID)
	return nil
}

func TestReaper_SweepOnce_EvictsOnlyIdleProcessingSessions(t *testing.T) {
	tbl := table.New()
	now := time.Now()

	tbl.Insert(&model.Session{SessionID: "idle", Status: model.StatusProcessing, LastActiveTime: now.Add(-time.Hour)})
	tbl.Insert(&model.Session{SessionID: "fresh", Status: model.StatusProcessing, LastActiveTime: now})
	tbl.Insert(&model.Session{SessionID: "queued-old", Status: model.StatusQueued, LastActiveTime: now.Add(-time.Hour)})

	rel := &stubReleaser{}
	r := New(tbl, rel, time.Hour, 10*time.Minute)

	evicted := r.SweepOnce(context.Background())

	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"idle"}, rel.evicts)
}

func TestReaper_SweepOnce_SkipsFailedEvictionsWithoutStopping(t *testing.T) {
	tbl := table.New()
	now := time.Now()
	tbl.Insert(&model.Session{SessionID: "a", Status: model.StatusProcessing, LastActiveTime: now.Add(-time.Hour)})
	tbl.Insert(&model.Session{SessionID: "b", Status: model.StatusProcessing, LastActiveTime: now.Add(-time.Hour)})

	rel := &stubReleaser{fail: map[string]bool{"a": true}}
	r := New(tbl, rel, time.Hour, 10*time.Minute)

	evicted := r.SweepOnce(context.Background())

	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"b"}, rel.evicts)
}

func TestReaper_Run_SweepsOnTickerAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	tbl := table.New()
	tbl.Insert(&model.Session{SessionID: "idle", Status: model.StatusProcessing, LastActiveTime: time.Now().Add(-time.Hour)})

	rel := &stubReleaser{}
	r := New(tbl, rel, 5*time.Millisecond, time.Millisecond)

	go r.Run(context.Background())

	require.Eventually(t, func() bool {
		rel.mu.Lock()
		defer rel.mu.Unlock()
		return len(rel.evicts) == 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
}

func TestNew_AppliesDefaultsWhenZero(t *testing.T) {
	tbl := table.New()
	r := New(tbl, &stubReleaser{}, 0, 0)
	assert.Equal(t, DefaultInterval, r.interval)
	assert.Equal(t, DefaultIdleTimeout, r.idleTimeout)
}
