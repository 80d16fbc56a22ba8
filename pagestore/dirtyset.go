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
	"sort"
	"sync"

	"github.com/Ezkerrox/pagedb/epoch"
)

// dirtyValue is the Option<bytes> of spec §3's dirty set: hasBytes=false
// means the leaf was touched in this epoch but not yet serialized (it is
// still resident and will be serialized lazily at flush time);
// hasBytes=true means cooperative flush or eviction already serialized it
// and flush writes those bytes as they are.
type dirtyValue struct {
	bytes    []byte
	hasBytes bool
}

// DirtySet is the (epoch, low_key) -> Option<bytes> map of spec §3/§4.9:
// the flusher's worklist. Grouped by epoch so a flush can cheaply take
// everything at or below the epoch it is draining (normally exactly one
// epoch's worth, per I5/P3).
type DirtySet struct {
	mu      sync.Mutex
	byEpoch map[epoch.Epoch]map[string]dirtyValue
}

// NewDirtySet returns an empty dirty set.
func NewDirtySet() *DirtySet {
	return &DirtySet{byEpoch: make(map[epoch.Epoch]map[string]dirtyValue)}
}

// MarkDirty records that the leaf at lowKey was mutated under e, without
// yet supplying serialized bytes (spec §4.6 step "mark the leaf dirty in
// the current epoch").
func (d *DirtySet) MarkDirty(e epoch.Epoch, lowKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.byEpoch[e]
	if m == nil {
		m = make(map[string]dirtyValue)
		d.byEpoch[e] = m
	}
	if _, ok := m[lowKey]; !ok {
		m[lowKey] = dirtyValue{}
	}
}

// SetBytes records pre-serialized bytes for (e, lowKey), e.g. computed by
// cooperative flush or by eviction serializing a still-dirty leaf before
// dropping it from memory (spec §4.4, §4.5).
func (d *DirtySet) SetBytes(e epoch.Epoch, lowKey string, bytes []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.byEpoch[e]
	if m == nil {
		m = make(map[string]dirtyValue)
		d.byEpoch[e] = m
	}
	m[lowKey] = dirtyValue{bytes: bytes, hasBytes: true}
}

// Remove pops the (e, lowKey) entry, if present.
func (d *DirtySet) Remove(e epoch.Epoch, lowKey string) (dirtyValue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.byEpoch[e]
	v, ok := m[lowKey]
	if ok {
		delete(m, lowKey)
		if len(m) == 0 {
			delete(d.byEpoch, e)
		}
	}
	return v, ok
}

// dirtyItem is one entry of a flush snapshot. epoch is the epoch the leaf
// was dirtied under, carried through so the flusher can assert the leaf's
// in-memory DirtyFlushEpoch still matches before clearing it (spec §4.9
// "assert leaf.dirty_flush_epoch == epoch; leaf.dirty_flush_epoch = None").
type dirtyItem struct {
	lowKey string
	epoch  epoch.Epoch
	value  dirtyValue
}

// Take atomically removes and returns, sorted ascending by low key, every
// entry dirtied at or before throughEpoch. Spec invariant I5 says at most
// one epoch's worth should ever be outstanding, but flush() is written
// defensively against more (e.g. a slow flusher that missed a cycle).
func (d *DirtySet) Take(throughEpoch epoch.Epoch) []dirtyItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	var items []dirtyItem
	for e, m := range d.byEpoch {
		if e > throughEpoch {
			continue
		}
		for lk, v := range m {
			items = append(items, dirtyItem{lowKey: lk, epoch: e, value: v})
		}
		delete(d.byEpoch, e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].lowKey < items[j].lowKey })
	return items
}

// Len reports the total number of outstanding dirty entries across all
// epochs, used by storage_stats().
func (d *DirtySet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.byEpoch {
		n += len(m)
	}
	return n
}
