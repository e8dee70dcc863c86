// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queuestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/segflow/trackd/internal/domain/session/model"
	"github.com/segflow/trackd/internal/log"
)

// FileStore persists the queue as a single JSON array at path, matching the
// layout the original predictor server used (one file, full-array rewrite),
// but replacing its plain open-and-write with a write-temp-then-rename
// sequence so a reader never observes a truncated file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// OpenFileStore prepares the directory containing path for writing. It does
// not read the file; call Load explicitly.
func OpenFileStore(path string) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(queue []model.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(queue))
	for _, e := range queue {
		records = append(records, entryToRecord(e))
	}
	buf, err := json.Marshal(records)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldComponent, "queuestore").Msg("marshal queue failed")
		return fmt.Errorf("%w: marshal: %v", model.ErrPersistenceFailure, err)
	}

	if err := writeAtomic(s.path, buf); err != nil {
		log.L().Error().Err(err).Str(log.FieldComponent, "queuestore").Str(log.FieldPath, s.path).Msg("save queue failed")
		return fmt.Errorf("%w: %v", model.ErrPersistenceFailure, err)
	}
	return nil
}

func (s *FileStore) Load() ([]model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		log.L().Error().Err(err).Str(log.FieldComponent, "queuestore").Str(log.FieldPath, s.path).Msg("load queue failed, degrading to empty queue")
		return nil, nil
	}

	var records []Record
	if err := json.Unmarshal(buf, &records); err != nil {
		log.L().Error().Err(err).Str(log.FieldComponent, "queuestore").Msg("parse queue file failed, degrading to empty queue")
		return nil, nil
	}

	entries := make([]model.QueueEntry, 0, len(records))
	for _, r := range records {
		entry, ok := recordToEntry(r)
		if !ok {
			log.L().Warn().Str(log.FieldComponent, "queuestore").Str(log.FieldSessionID, r.SessionID).Msg("skipping unparsable queue record")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
