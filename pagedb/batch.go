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
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/pagestore"
)

// BatchOp is one entry of an atomic batch (spec §4.7). A Remove op ignores
// Value.
type BatchOp struct {
	Key    []byte
	Value  []byte
	Remove bool
}

// acquiredLeaf is one entry of the batch's local, sorted lock-order map
// (spec §4.7 phase 1's "acquired" map keyed by low_key).
type acquiredLeaf struct {
	lowKey common.IVec
	node   *pagestore.Node
}

// ApplyBatch implements spec §4.7's apply_batch: two-phase locking with
// deterministic ascending-key-order lock acquisition, a single epoch guard
// taken only once every lock is held, mid-batch split handling, and a
// publish-then-release phase 4. Either every op is applied atomically
// (spec P6) or, on an IO error before any durable write, the batch has no
// effect.
func (t *Tree) ApplyBatch(ctx context.Context, ops []BatchOp) error {
	if err := t.checkError(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	sorted := append([]BatchOp(nil), ops...)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i].Key) < string(sorted[j].Key) })

	// Phase 1: acquire leaf write locks in ascending key order, reusing the
	// current leaf for contiguous keys.
	var acquired []acquiredLeaf
	var current *pagestore.Node
	var currentLow common.IVec
	for _, op := range sorted {
		if current == nil || leafOvershoots(current, op.Key) {
			if current != nil {
				acquired = append(acquired, acquiredLeaf{lowKey: currentLow, node: current})
			}
			lowKey, node, err := t.ps.PageInLocked(ctx, op.Key)
			if err != nil {
				t.unlockAll(acquired)
				if current != nil {
					t.ps.ReleaseNode(current)
				}
				t.errs.setError(ErrKindIO, err.Error())
				return err
			}
			current, currentLow = node, lowKey
		}
	}
	acquired = append(acquired, acquiredLeaf{lowKey: currentLow, node: current})

	// Phase 2: acquire the epoch guard only after every lock is held, then
	// cooperatively flush any leaf still dirty in the draining epoch.
	eg := t.ps.Coord.Acquire()
	epoch := eg.Epoch()
	for _, a := range acquired {
		t.ps.CooperativeFlush(a.node, a.lowKey, epoch)
	}

	// Phase 3: apply each op against the acquired leaf covering its key;
	// a mid-batch split inserts the new right node into the local acquired
	// list so later keys route to it.
	var splits []*pagestore.SplitResult
	for _, op := range sorted {
		node := acquiredFor(acquired, op.Key)
		leaf := node.Leaf()
		if op.Remove {
			leaf.Remove(op.Key)
		} else {
			leaf.Insert(op.Key, op.Value)
		}
		if leaf.IsFull() {
			split, err := leaf.Split(epoch, t.ps.AllocateObjectID)
			if err != nil {
				t.errs.setError(ErrKindIO, err.Error())
				t.unlockAll(acquired)
				eg.Release()
				return fmt.Errorf("pagedb: apply_batch split: %w", err)
			}
			splits = append(splits, split)
			// The freshly split node has no other observer yet; it is created
			// locked and joins the local acquired list so later keys in this
			// batch route to it.
			newNode := pagestore.NewDetachedNode(split.NewID, split.NewLeaf)
			acquired = insertAcquired(acquired, acquiredLeaf{lowKey: split.Separator, node: newNode})
		}
	}

	// Phase 4: mark every acquired leaf (split-off right nodes included)
	// dirty with the batch's
	// epoch, publish split right-nodes into the index and dirty set (while
	// still holding their parent's lock), then release every lock, and
	// finally the epoch guard.
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, a := range acquired {
		key := string(a.lowKey.Bytes())
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		a.node.MarkDirty(epoch, a.lowKey, t.ps.Dirty)
	}
	for _, split := range splits {
		t.ps.PublishSplit(split)
	}
	for _, a := range acquired {
		t.ps.ReleaseNode(a.node)
	}
	eg.Release()
	return nil
}

func leafOvershoots(node *pagestore.Node, key []byte) bool {
	leaf := node.Leaf()
	if leaf.Hi == nil {
		return false
	}
	return leaf.Hi.Compare(common.NewIVec(key)) <= 0
}

func acquiredFor(acquired []acquiredLeaf, key []byte) *pagestore.Node {
	k := common.NewIVec(key)
	var best *pagestore.Node
	for _, a := range acquired {
		if a.lowKey.Compare(k) <= 0 {
			best = a.node
		}
	}
	return best
}

func insertAcquired(acquired []acquiredLeaf, entry acquiredLeaf) []acquiredLeaf {
	i := sort.Search(len(acquired), func(i int) bool { return acquired[i].lowKey.Compare(entry.lowKey) >= 0 })
	acquired = append(acquired, acquiredLeaf{})
	copy(acquired[i+1:], acquired[i:])
	acquired[i] = entry
	return acquired
}

func (t *Tree) unlockAll(acquired []acquiredLeaf) {
	for _, a := range acquired {
		t.ps.ReleaseNode(a.node)
	}
}
