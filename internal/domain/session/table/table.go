// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package table holds the in-memory registry of sessions, both queued and
// active. It is the single source of truth the admission controller,
// reaper, and propagation driver all resolve session_id against.
package table

import (
	"sync"

	"github.com/segflow/trackd/internal/domain/session/model"
)

// Table is a thread-safe registry of Session rows keyed by session_id. It
// owns no admission policy of its own — AdmissionController decides who
// gets in; Table just holds what's there.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// New returns an empty Table.
func New() *Table {
	return &Table{sessions: make(map[string]*model.Session)}
}

// Get returns a defensive copy of the row for id, or false if absent.
func (t *Table) Get(id string) (*model.Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Insert adds or replaces the row for session.SessionID.
func (t *Table) Insert(session *model.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[session.SessionID] = session.Clone()
}

// Mutate applies fn to the live row for id while holding the table lock, so
// read-modify-write sequences (e.g. bumping last_active_time) are atomic
// with respect to other table operations. Returns false if id is absent;
// fn is not called in that case.
func (t *Table) Mutate(id string, fn func(*model.Session)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	return true
}

// Delete removes the row for id, returning it (or nil) so the caller can
// release resources (model state, tensors) after dropping the table lock.
func (t *Table) Delete(id string) *model.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil
	}
	delete(t.sessions, id)
	return s
}

// Snapshot returns a defensive copy of every row, for reaper scans and
// status listings. Order is unspecified.
func (t *Table) Snapshot() []*model.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*model.Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// ActiveCount returns the number of rows with status=processing. This is
// the quantity AdmissionController gates admission on.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.sessions {
		if s.Status == model.StatusProcessing {
			n++
		}
	}
	return n
}
