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

// Package pagestore is the in-memory paged index and flush-epoch
// coordination core described by spec §4: Leaf, Node, Index, page-in,
// eviction, and the per-leaf guards that tie leaf locking to epoch guards.
package pagestore

import (
	"fmt"
	"sort"

	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/epoch"
	"github.com/Ezkerrox/pagedb/objectstore"
	"github.com/Ezkerrox/pagedb/pagecodec"
)

// LeafFanout is the default maximum number of entries a leaf may hold
// before it must split (spec §3).
const LeafFanout = 1024

type kv struct {
	key   common.IVec
	value common.IVec
}

// Leaf is a sorted, bounded-capacity map [lo, hi) of key -> value (spec
// §3/§4.1). It is never accessed concurrently by more than one goroutine:
// Node's mutex serializes every access, resident or not.
type Leaf struct {
	Lo           common.IVec
	Hi           *common.IVec // nil means +infinity
	PrefixLength uint32       // reserved; always 0 (spec §3, §9)
	entries      []kv         // sorted ascending by key
	InMemorySize int

	// DirtyFlushEpoch is the epoch in which this leaf was last mutated and
	// not yet durably written, or nil if clean (spec §3 I5).
	DirtyFlushEpoch *epoch.Epoch
}

// NewLeaf constructs an empty leaf covering [lo, hi).
func NewLeaf(lo common.IVec, hi *common.IVec) *Leaf {
	l := &Leaf{Lo: lo, Hi: hi}
	l.recomputeSize()
	return l
}

func (l *Leaf) recomputeSize() {
	size := l.Lo.Len()
	if l.Hi != nil {
		size += l.Hi.Len()
	}
	for _, e := range l.entries {
		size += e.key.Len() + e.value.Len()
	}
	l.InMemorySize = size
}

// Len returns the number of entries currently stored.
func (l *Leaf) Len() int { return len(l.entries) }

// IsFull reports whether the leaf has reached LeafFanout entries.
func (l *Leaf) IsFull() bool { return len(l.entries) >= LeafFanout }

func (l *Leaf) search(key []byte) (int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].key.Compare(common.NewIVec(key)) >= 0
	})
	if i < len(l.entries) && l.entries[i].key.Equal(common.NewIVec(key)) {
		return i, true
	}
	return i, false
}

// Get returns the value stored for key, if present.
func (l *Leaf) Get(key []byte) ([]byte, bool) {
	i, found := l.search(key)
	if !found {
		return nil, false
	}
	return append([]byte(nil), l.entries[i].value.Bytes()...), true
}

// Insert upserts key -> value, returning the previous value if any. Unlike
// the teacher's source (spec §9: "in_memory_size discrepancy ... remove does
// not update it"), both Insert and Remove here keep InMemorySize exact --
// see DESIGN.md's resolution of that Open Question.
func (l *Leaf) Insert(key, value []byte) (old []byte, hadOld bool) {
	i, found := l.search(key)
	k, v := common.NewIVec(key), common.NewIVec(value)
	if found {
		old = append([]byte(nil), l.entries[i].value.Bytes()...)
		l.InMemorySize += v.Len() - l.entries[i].value.Len()
		l.entries[i].value = v
		return old, true
	}
	l.entries = append(l.entries, kv{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = kv{key: k, value: v}
	l.InMemorySize += k.Len() + v.Len()
	return nil, false
}

// Remove deletes key, returning the removed value if present.
func (l *Leaf) Remove(key []byte) (old []byte, hadOld bool) {
	i, found := l.search(key)
	if !found {
		return nil, false
	}
	old = append([]byte(nil), l.entries[i].value.Bytes()...)
	l.InMemorySize -= l.entries[i].key.Len() + l.entries[i].value.Len()
	copy(l.entries[i:], l.entries[i+1:])
	l.entries = l.entries[:len(l.entries)-1]
	return old, true
}

// FirstKey and LastKey report the lowest and highest keys of the resident
// data, if any.
func (l *Leaf) FirstKey() (common.IVec, bool) {
	if len(l.entries) == 0 {
		return common.IVec{}, false
	}
	return l.entries[0].key, true
}

func (l *Leaf) LastKey() (common.IVec, bool) {
	if len(l.entries) == 0 {
		return common.IVec{}, false
	}
	return l.entries[len(l.entries)-1].key, true
}

// EachInRange invokes fn for every entry with lo <= key, honoring the
// caller-supplied inRange predicate, in ascending order. Used by iteration
// (spec §4.8) to drain a paged-in leaf into the prefetch queue.
func (l *Leaf) EachInRange(lo []byte, inRange func(key []byte) bool, fn func(key, value []byte)) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].key.Compare(common.NewIVec(lo)) >= 0
	})
	for ; i < len(l.entries); i++ {
		k := l.entries[i].key.Bytes()
		if !inRange(k) {
			return
		}
		fn(k, l.entries[i].value.Bytes())
	}
}

// EachInRangeReverse is the symmetric, descending counterpart used by
// reverse iteration (spec §4.8, §9 "Iterator back-direction").
func (l *Leaf) EachInRangeReverse(hi []byte, hasHi bool, inRange func(key []byte) bool, fn func(key, value []byte)) {
	end := len(l.entries)
	if hasHi {
		end = sort.Search(len(l.entries), func(i int) bool {
			return l.entries[i].key.Compare(common.NewIVec(hi)) >= 0
		})
	}
	for i := end - 1; i >= 0; i-- {
		k := l.entries[i].key.Bytes()
		if !inRange(k) {
			return
		}
		fn(k, l.entries[i].value.Bytes())
	}
}

// ToRecord converts the leaf into the wire record understood by pagecodec.
func (l *Leaf) ToRecord() *pagecodec.Record {
	r := &pagecodec.Record{
		Lo:           append([]byte(nil), l.Lo.Bytes()...),
		PrefixLength: l.PrefixLength,
		Entries:      make([]pagecodec.Entry, len(l.entries)),
	}
	if l.Hi != nil {
		r.Hi = append([]byte(nil), l.Hi.Bytes()...)
	}
	for i, e := range l.entries {
		r.Entries[i] = pagecodec.Entry{
			Key:   append([]byte(nil), e.key.Bytes()...),
			Value: append([]byte(nil), e.value.Bytes()...),
		}
	}
	return r
}

// LeafFromRecord reconstructs a Leaf from a decoded record. decompressedLen
// becomes InMemorySize, matching spec §4.1 ("deserialize recomputes
// in_memory_size as the decompressed byte length, a cheap proxy").
func LeafFromRecord(r *pagecodec.Record, decompressedLen int) *Leaf {
	l := &Leaf{
		Lo:           common.IVecFromShared(r.Lo),
		PrefixLength: r.PrefixLength,
		InMemorySize: decompressedLen,
	}
	if r.Hi != nil {
		hi := common.IVecFromShared(r.Hi)
		l.Hi = &hi
	}
	l.entries = make([]kv, len(r.Entries))
	for i, e := range r.Entries {
		l.entries[i] = kv{key: common.IVecFromShared(e.Key), value: common.IVecFromShared(e.Value)}
	}
	return l
}

// SplitResult is what Split publishes; the caller (PageStore) is
// responsible for publishing newLeaf into the node-id map and the index,
// and for recording both halves in the dirty set (spec §4.1 "The caller is
// responsible for publishing...").
type SplitResult struct {
	Separator common.IVec
	NewID     objectstore.NodeId
	NewLeaf   *Leaf
}

// Split performs the leaf split of spec §4.1, choosing the split offset by
// shard position and computing a suffix-truncated separator key (P8: the
// shortest byte string satisfying L < split_key <= R). It must only be
// called when IsFull() is true.
func (l *Leaf) Split(newEpoch epoch.Epoch, allocate func() (objectstore.NodeId, error)) (*SplitResult, error) {
	if !l.IsFull() {
		return nil, fmt.Errorf("pagestore: split called on a non-full leaf")
	}
	n := len(l.entries)
	var offset int
	switch {
	case l.Lo.IsEmpty():
		offset = 1 // left-most shard: optimize descending/leftward growth
	case l.Hi == nil:
		offset = n - 2 // right-most shard: optimize ascending/rightward growth
	default:
		offset = n / 2
	}

	left := l.entries[:offset]
	right := l.entries[offset:]
	separator := suffixTruncatedSeparator(left[len(left)-1].key, right[0].key)

	newID, err := allocate()
	if err != nil {
		return nil, fmt.Errorf("pagestore: allocate split node id: %w", err)
	}

	newLeaf := &Leaf{
		Lo:              separator,
		Hi:              l.Hi,
		PrefixLength:    l.PrefixLength,
		entries:         append([]kv(nil), right...),
		DirtyFlushEpoch: &newEpoch,
	}
	newLeaf.recomputeSize()

	l.Hi = &separator
	l.entries = append([]kv(nil), left...)
	l.recomputeSize()

	return &SplitResult{Separator: separator, NewID: newID, NewLeaf: newLeaf}, nil
}

// suffixTruncatedSeparator returns the shortest byte string k such that
// left < k <= right (spec §4.1, P8): the common prefix of left and right
// plus one extra byte taken from right.
func suffixTruncatedSeparator(left, right common.IVec) common.IVec {
	l, r := left.Bytes(), right.Bytes()
	cp := common.CommonPrefixLen(l, r)
	k := cp + 1
	if k > len(r) {
		k = len(r)
	}
	return common.NewIVec(r[:k])
}
