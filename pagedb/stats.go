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

package pagedb

import (
	"context"
	"encoding/binary"

	"github.com/Ezkerrox/pagedb/objectstore"
	"github.com/Ezkerrox/pagedb/pagecodec"
)

// StorageStats is the underlying object store's counters augmented with the
// dirty-set size (spec §4.10 storage_stats()).
type StorageStats struct {
	objectstore.Stats
	DirtyCount int
}

// StorageStats reports the object store's backend counters plus the number
// of leaves currently dirty and awaiting flush.
func (t *Tree) StorageStats() (StorageStats, error) {
	if err := t.checkError(); err != nil {
		return StorageStats{}, err
	}
	st, dirty, err := t.ps.StorageStats()
	if err != nil {
		t.errs.setError(ErrKindIO, err.Error())
		return StorageStats{}, err
	}
	return StorageStats{Stats: st, DirtyCount: dirty}, nil
}

// SizeOnDisk reports the total bytes the object store reports as live (spec
// §4.10 size_on_disk()).
func (t *Tree) SizeOnDisk() (int64, error) {
	st, err := t.StorageStats()
	if err != nil {
		return 0, err
	}
	return st.LiveBytes, nil
}

// Checksum folds every live (key, value) pair, in ascending key order, into
// a single order-dependent xxhash64 digest (spec §4.10 checksum()). Two
// trees with identical logical content produce the same checksum regardless
// of their physical leaf layout.
func (t *Tree) Checksum(ctx context.Context) (uint64, error) {
	if err := t.checkError(); err != nil {
		return 0, err
	}
	w := pagecodec.NewChecksumWriter()
	var lenBuf [8]byte
	it := t.Iterate(ctx)
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			t.errs.setError(ErrKindIO, err.Error())
			return 0, err
		}
		if !ok {
			break
		}
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(e.Key)))
		w.Write(lenBuf[:])
		w.Write(e.Key)
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(e.Value)))
		w.Write(lenBuf[:])
		w.Write(e.Value)
	}
	return w.Sum64(), nil
}

// Len reports the number of keys in the tree (spec §4.10 len()), by
// counting a full forward iteration the way the original counts its
// iterator.
func (t *Tree) Len(ctx context.Context) (int, error) {
	if err := t.checkError(); err != nil {
		return 0, err
	}
	n := 0
	it := t.Iterate(ctx)
	for {
		_, ok, err := it.Next(ctx)
		if err != nil {
			t.errs.setError(ErrKindIO, err.Error())
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// IsEmpty reports whether the tree holds no keys (spec §4.10 is_empty()),
// short-circuiting on the first iterator result rather than scanning fully.
func (t *Tree) IsEmpty(ctx context.Context) (bool, error) {
	if err := t.checkError(); err != nil {
		return false, err
	}
	_, ok, err := t.Iterate(ctx).Next(ctx)
	if err != nil {
		t.errs.setError(ErrKindIO, err.Error())
		return false, err
	}
	return !ok, nil
}

// Clear removes every key in the tree (spec §4.10 clear()), implemented as
// a drain loop over pop_first so that a crash mid-clear leaves the tree in
// a valid, merely partially-cleared state rather than a corrupt one.
func (t *Tree) Clear(ctx context.Context) error {
	if err := t.checkError(); err != nil {
		return err
	}
	for {
		_, ok, err := t.PopFirst(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
