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

// Package pebblestore is the default on-disk objectstore.Store, backed by
// cockroachdb/pebble the same way the teacher's ethdb/pebble package wraps
// pebble as a KeyValueStore. Two keyspaces are kept in one pebble instance:
//
//	'o' || big-endian NodeId         -> serialized leaf bytes
//	'l' || low key                   -> big-endian NodeId
//
// The 'l' keyspace exists solely so Recover can enumerate (id, low key)
// pairs in low-key order without a second pass over 'o'.
package pebblestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/flock"

	"github.com/Ezkerrox/pagedb/log"
	"github.com/Ezkerrox/pagedb/objectstore"
)

const (
	objectPrefix = 'o'
	lowKeyPrefix = 'l'
	metaPrefix   = 'm'
)

var nextIDKey = []byte{metaPrefix, 'n'}

// Store is a pebble-backed objectstore.Store.
type Store struct {
	db   *pebble.DB
	lock *flock.Flock
	path string
	next atomic.Uint64
}

// Open opens (or creates) a pebble store rooted at dir. A sibling lock file
// guards against two processes opening the same root concurrently, grounded
// on the teacher's core/rawdb/prunedfreezer.go instanceLock pattern.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pebblestore: mkdir %s: %w", dir, err)
	}
	lock := flock.New(filepath.Join(dir, "LOCK"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("pebblestore: lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("pebblestore: %s is already locked by another process", dir)
	}
	db, err := pebble.Open(filepath.Join(dir, "pages"), &pebble.Options{})
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("pebblestore: open pebble: %w", err)
	}
	s := &Store{db: db, lock: lock, path: dir}
	if v, closer, err := db.Get(nextIDKey); err == nil {
		s.next.Store(binary.BigEndian.Uint64(v))
		closer.Close()
	}
	log.Info("opened pebble object store", "path", dir)
	return s, nil
}

func objectKey(id objectstore.NodeId) []byte {
	k := make([]byte, 9)
	k[0] = objectPrefix
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

func lowKeyKey(lowKey []byte) []byte {
	k := make([]byte, 1+len(lowKey))
	k[0] = lowKeyPrefix
	copy(k[1:], lowKey)
	return k
}

// AllocateObjectID mints a fresh NodeId, persisting the high-water mark so
// recovery after a crash never reissues an id.
func (s *Store) AllocateObjectID() (objectstore.NodeId, error) {
	id := s.next.Add(1)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	if err := s.db.Set(nextIDKey, buf, pebble.Sync); err != nil {
		return 0, fmt.Errorf("pebblestore: persist id counter: %w", err)
	}
	return objectstore.NodeId(id), nil
}

// Read returns the bytes last written for id.
func (s *Store) Read(_ context.Context, id objectstore.NodeId) ([]byte, error) {
	v, closer, err := s.db.Get(objectKey(id))
	if err == pebble.ErrNotFound {
		return nil, objectstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: read %d: %w", id, err)
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, nil
}

// WriteBatch atomically applies every op.
func (s *Store) WriteBatch(_ context.Context, ops []objectstore.WriteOp) error {
	b := s.db.NewBatch()
	defer b.Close()
	for _, op := range ops {
		if op.LowKey == nil {
			if err := b.Delete(objectKey(op.ID), nil); err != nil {
				return fmt.Errorf("pebblestore: delete %d: %w", op.ID, err)
			}
			continue
		}
		if err := b.Set(objectKey(op.ID), op.Bytes, nil); err != nil {
			return fmt.Errorf("pebblestore: stage object %d: %w", op.ID, err)
		}
		idBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(idBuf, uint64(op.ID))
		if err := b.Set(lowKeyKey(op.LowKey), idBuf, nil); err != nil {
			return fmt.Errorf("pebblestore: stage low-key %d: %w", op.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: commit batch: %w", err)
	}
	return nil
}

// Recover enumerates every (NodeId, low key) pair recorded by the most
// recent successful WriteBatch, in low-key order.
func (s *Store) Recover(_ context.Context) ([]objectstore.LiveObject, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{lowKeyPrefix},
		UpperBound: []byte{lowKeyPrefix + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: recover iterator: %w", err)
	}
	defer iter.Close()

	var out []objectstore.LiveObject
	for iter.First(); iter.Valid(); iter.Next() {
		lowKey := append([]byte(nil), iter.Key()[1:]...)
		id := objectstore.NodeId(binary.BigEndian.Uint64(iter.Value()))
		out = append(out, objectstore.LiveObject{ID: id, LowKey: lowKey})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pebblestore: recover iteration: %w", err)
	}
	return out, nil
}

// Maintenance compacts the database, a best-effort GC of tombstoned objects.
func (s *Store) Maintenance(_ context.Context) error {
	if err := s.db.Compact([]byte{objectPrefix}, []byte{objectPrefix + 1}, true); err != nil {
		return fmt.Errorf("pebblestore: compact: %w", err)
	}
	return nil
}

// Stats reports pebble's own metrics passthrough.
func (s *Store) Stats() (objectstore.Stats, error) {
	m := s.db.Metrics()
	return objectstore.Stats{
		Backend:   "pebble",
		LiveBytes: int64(m.DiskSpaceUsage()),
		Extra: map[string]string{
			"compactions": fmt.Sprintf("%d", m.Compact.Count),
			"flushes":     fmt.Sprintf("%d", m.Flush.Count),
		},
	}, nil
}

// Close releases the pebble handle and the storage-root lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}
