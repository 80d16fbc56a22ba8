// Copyright 2023 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package memstore is an in-memory objectstore.Store used by pagestore and
// pagedb's own tests, and by callers embedding pagedb without durability
// (e.g. scratch indexes). WriteBatch applies every op while holding the
// store's mutex, so readers see all of a batch or none of it, mirroring the
// "all or nothing" contract real backends must honor.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Ezkerrox/pagedb/objectstore"
)

// Store is a simple mutex-guarded map implementing objectstore.Store.
type Store struct {
	mu      sync.RWMutex
	objects map[objectstore.NodeId][]byte
	lowKeys map[objectstore.NodeId][]byte
	nextID  uint64
	closed  bool

	// failWrites, when set, makes the next WriteBatch fail before applying
	// any op, simulating a crash mid-batch; used to test P6 batch atomicity.
	failWrites bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		objects: make(map[objectstore.NodeId][]byte),
		lowKeys: make(map[objectstore.NodeId][]byte),
	}
}

// SimulateCrashOnNextWrite causes the next WriteBatch call to discard its
// staged writes and return an error, as if the process died mid-batch.
func (s *Store) SimulateCrashOnNextWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = true
}

func (s *Store) AllocateObjectID() (objectstore.NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return objectstore.NodeId(s.nextID), nil
}

func (s *Store) Read(_ context.Context, id objectstore.NodeId) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[id]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) WriteBatch(_ context.Context, ops []objectstore.WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		s.failWrites = false
		return fmt.Errorf("memstore: simulated crash mid-batch")
	}
	for _, op := range ops {
		if op.LowKey == nil {
			delete(s.objects, op.ID)
			delete(s.lowKeys, op.ID)
			continue
		}
		s.objects[op.ID] = append([]byte(nil), op.Bytes...)
		s.lowKeys[op.ID] = append([]byte(nil), op.LowKey...)
	}
	return nil
}

func (s *Store) Recover(_ context.Context) ([]objectstore.LiveObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]objectstore.LiveObject, 0, len(s.lowKeys))
	for id, lk := range s.lowKeys {
		out = append(out, objectstore.LiveObject{ID: id, LowKey: append([]byte(nil), lk...)})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].LowKey) < string(out[j].LowKey)
	})
	return out, nil
}

func (s *Store) Maintenance(_ context.Context) error { return nil }

func (s *Store) Stats() (objectstore.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var bytes int64
	for _, v := range s.objects {
		bytes += int64(len(v))
	}
	return objectstore.Stats{
		Backend:   "memstore",
		LiveBytes: bytes,
		LiveCount: int64(len(s.objects)),
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
