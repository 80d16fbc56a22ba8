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

// Package objectstore defines the external, out-of-scope-for-the-core heap
// store that pagestore pages leaves in and out of (spec §6 "Object store
// contract"). It is a flat namespace of opaque byte blobs keyed by a 64-bit
// NodeId, with durable batched writes and a recovery path that lists every
// live leaf's (NodeId, low key) pair.
package objectstore

import (
	"context"
	"errors"
)

// NodeId is the opaque identifier minted by the object store for a leaf.
// It is stable for the lifetime of the leaf as seen by the index.
type NodeId uint64

// ErrNotFound is returned by Read when no bytes have ever been written for
// an id; pagestore treats this as corruption for any id it believes live.
var ErrNotFound = errors.New("objectstore: object not found")

// WriteOp is one entry of an atomic write_batch call. A nil LowKey marks a
// tombstone for ID (not produced by the core today, per spec §6, but a
// conforming Store must accept the shape).
type WriteOp struct {
	ID     NodeId
	LowKey []byte // nil means "tombstone this id"
	Bytes  []byte
}

// LiveObject is one entry of the set returned by Recover: a leaf that
// survived the last successful write_batch, together with the low key it
// was indexed under at the time it was written.
type LiveObject struct {
	ID     NodeId
	LowKey []byte
}

// Stats is a passthrough bag of backend-specific counters (spec §6 "file
// layout is the store's concern"); pagedb.StorageStats embeds it unchanged.
type Stats struct {
	Backend    string
	LiveBytes  int64
	LiveCount  int64
	FreeCount  int64
	Extra      map[string]string
}

// Store is the object-store contract external to this core (spec §6).
// Implementations must make write_batch atomic with respect to recovery:
// if the process is killed mid-batch, none of the batch's pairs may become
// visible to a subsequent Recover/Read.
type Store interface {
	// AllocateObjectID mints a fresh, never-before-used NodeId.
	AllocateObjectID() (NodeId, error)

	// Read returns the bytes last written for id, or ErrNotFound.
	Read(ctx context.Context, id NodeId) ([]byte, error)

	// WriteBatch durably and atomically applies every op.
	WriteBatch(ctx context.Context, ops []WriteOp) error

	// Maintenance performs best-effort background garbage collection.
	Maintenance(ctx context.Context) error

	// Stats reports backend counters.
	Stats() (Stats, error)

	// Close releases any resources (file handles, locks) held by the store.
	Close() error
}

// Recoverable is implemented by stores that can enumerate survivors of the
// last successful write_batch at open time.
type Recoverable interface {
	// Recover returns every live leaf's (NodeId, low key) pair, as recorded
	// by the most recent successful WriteBatch.
	Recover(ctx context.Context) ([]LiveObject, error)
}
