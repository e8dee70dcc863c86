// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queuestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/segflow/trackd/internal/domain/session/model"
)

// queuePrefix namespaces queue-entry keys within the badger keyspace so the
// store can later share a database file with other durable state without
// key collisions.
var queuePrefix = []byte("queue:")

// BadgerStore persists the queue as one key per entry, ordered by a
// monotonic sequence number embedded in the key. Offered as an alternative
// to FileStore for deployments that already run an embedded KV store. Save
// still deletes and rewrites every entry on each mutation, in one
// transaction.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if absent) a badger database at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger queue store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func queueKey(seq uint64) []byte {
	key := make([]byte, len(queuePrefix)+8)
	copy(key, queuePrefix)
	binary.BigEndian.PutUint64(key[len(queuePrefix):], seq)
	return key
}

// Save replaces the entire persisted queue. Badger transactions are
// all-or-nothing, so a reader using a snapshot view never observes a mix of
// old and new entries.
func (s *BadgerStore) Save(queue []model.QueueEntry) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var stale [][]byte
		for it.Seek(queuePrefix); it.ValidForPrefix(queuePrefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			stale = append(stale, k)
		}
		it.Close()
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for i, e := range queue {
			buf, err := json.Marshal(entryToRecord(e))
			if err != nil {
				return err
			}
			if err := txn.Set(queueKey(uint64(i)), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistenceFailure, err)
	}
	return nil
}

// Load returns the persisted queue in key order, which is insertion order
// because Save always rewrites the full sequence from zero.
func (s *BadgerStore) Load() ([]model.QueueEntry, error) {
	var entries []model.QueueEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(queuePrefix); it.ValidForPrefix(queuePrefix); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if entry, ok := recordToEntry(rec); ok {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil
	}
	return entries, nil
}

var _ Store = (*BadgerStore)(nil)
