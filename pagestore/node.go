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

package pagestore

import (
	"sync"

	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/epoch"
	"github.com/Ezkerrox/pagedb/objectstore"
)

// Node pairs a stable NodeId with an optional resident Leaf (spec §3). The
// mutex serializes every access to the leaf, resident or not; a nil leaf
// means the page is currently evicted and must be paged back in before use.
//
// The teacher's triedb/pathdb disk layer uses a single coarse RWMutex per
// layer generation; here every leaf gets its own mutex so that unrelated
// key ranges never contend with each other (spec §3's concurrency model is
// per-leaf, not per-tree).
type Node struct {
	ID objectstore.NodeId

	mu   sync.Mutex
	leaf *Leaf
}

// newNode wraps an already-resident leaf.
func newNode(id objectstore.NodeId, leaf *Leaf) *Node {
	return &Node{ID: id, leaf: leaf}
}

// NewDetachedNode builds a Node around a leaf that is not yet reachable
// from the Index -- the shape produced by a mid-batch split (spec §4.7
// phase 3). The node is returned already locked, so the caller holds it
// like any other acquired leaf and releases it with ReleaseNode.
// PublishSplit registers its own Node for the same id and leaf in the
// Index; the detached node itself is never published.
func NewDetachedNode(id objectstore.NodeId, leaf *Leaf) *Node {
	n := newNode(id, leaf)
	n.mu.Lock()
	return n
}

// Leaf returns the resident leaf. The caller must already hold the node's
// lock (via PageInLocked or equivalent); this is an accessor for callers
// managing locks directly instead of through a Guard (the atomic batch).
func (n *Node) Leaf() *Leaf { return n.leaf }

// MarkDirty sets the resident leaf's dirty_flush_epoch and records the
// corresponding dirty-set entry. Caller must hold the node's lock.
func (n *Node) MarkDirty(e epoch.Epoch, lowKey common.IVec, dirty *DirtySet) {
	n.leaf.DirtyFlushEpoch = &e
	dirty.MarkDirty(e, string(lowKey.Bytes()))
}
