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
	"bytes"
	"context"

	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/pagestore"
)

// Entry is one (key, value) pair yielded by iteration.
type Entry struct {
	Key   []byte
	Value []byte
}

// Iter implements spec §4.8: a cursor plus a prefetch queue, weakly
// consistent with respect to concurrent mutation (an entry present for the
// whole iteration is seen exactly once; an entry mutated mid-iteration may
// or may not appear; entries are never duplicated or returned out of
// order). The cursor is the current leaf's stable *pagestore.Node pointer,
// not a key -- leaf low/high bounds are only ever touched by the Index
// itself, so stepping never needs byte-level key arithmetic.
type Iter struct {
	t       *Tree
	lo      []byte
	hi      []byte
	hasHi   bool
	reverse bool

	started   bool
	exhausted bool
	node      *pagestore.Node
	lowKey    common.IVec

	queue []Entry
	done  bool
}

// Iterate returns a forward iterator over the whole key space.
func (t *Tree) Iterate(ctx context.Context) *Iter { return t.Range(ctx, nil, nil) }

// Range returns a forward iterator over [lo, hi). A nil lo starts at the
// beginning of the key space; a nil hi means unbounded above.
func (t *Tree) Range(_ context.Context, lo, hi []byte) *Iter {
	it := &Iter{t: t, lo: append([]byte(nil), lo...)}
	if hi != nil {
		it.hi = append([]byte(nil), hi...)
		it.hasHi = true
	}
	return it
}

// ScanPrefix returns a forward iterator over every key carrying prefix p,
// computing the upper bound by incrementing the last non-0xFF byte of p
// (popping trailing 0xFF bytes first); if p is all 0xFF, it degenerates to
// an unbounded range starting at p (spec §4.8).
func (t *Tree) ScanPrefix(ctx context.Context, p []byte) *Iter {
	upper, ok := incrementPrefix(p)
	if !ok {
		return t.Range(ctx, p, nil)
	}
	return t.Range(ctx, p, upper)
}

func incrementPrefix(p []byte) ([]byte, bool) {
	out := append([]byte(nil), p...)
	i := len(out) - 1
	for i >= 0 && out[i] == 0xff {
		i--
	}
	if i < 0 {
		return nil, false
	}
	out = out[:i+1]
	out[i]++
	return out, true
}

// Reverse returns a reverse iterator over [lo, hi), yielding entries in
// descending key order (spec §4.8's symmetric reverse contract).
func (t *Tree) Reverse(_ context.Context, lo, hi []byte) *Iter {
	it := &Iter{t: t, reverse: true}
	if lo != nil {
		it.lo = append([]byte(nil), lo...)
	}
	if hi != nil {
		it.hi = append([]byte(nil), hi...)
		it.hasHi = true
	}
	return it
}

func cloneBytes(b []byte) []byte { return append([]byte(nil), b...) }

func (it *Iter) belowLo(k []byte) bool {
	return len(it.lo) > 0 && bytes.Compare(k, it.lo) < 0
}

func (it *Iter) aboveHi(k []byte) bool {
	return it.hasHi && bytes.Compare(k, it.hi) >= 0
}

// Next returns the next entry, or ok=false at the end of the range.
func (it *Iter) Next(ctx context.Context) (Entry, bool, error) {
	if it.done {
		return Entry{}, false, nil
	}
	for len(it.queue) == 0 {
		if it.exhausted {
			it.done = true
			return Entry{}, false, nil
		}
		if !it.started {
			if !it.step() {
				it.done = true
				return Entry{}, false, nil
			}
		}

		var entries []Entry
		var hi *common.IVec
		err := it.t.ps.WithNode(ctx, it.node, func(leaf *pagestore.Leaf) {
			hi = leaf.Hi
			if it.reverse {
				leaf.EachInRangeReverse(it.hi, it.hasHi, func(k []byte) bool {
					return !it.belowLo(k)
				}, func(k, v []byte) {
					entries = append(entries, Entry{Key: cloneBytes(k), Value: cloneBytes(v)})
				})
			} else {
				start := it.lowKey.Bytes()
				if bytes.Compare(it.lo, start) > 0 {
					start = it.lo
				}
				leaf.EachInRange(start, func(k []byte) bool {
					return !it.aboveHi(k)
				}, func(k, v []byte) {
					entries = append(entries, Entry{Key: cloneBytes(k), Value: cloneBytes(v)})
				})
			}
		})
		if err != nil {
			return Entry{}, false, err
		}

		// Advance the cursor for the *next* refill before draining this
		// leaf's entries, so a concurrent split of the current leaf can't
		// make us skip or repeat the neighbor.
		if !it.advance(hi) {
			it.exhausted = true
		}
		if len(entries) > 0 {
			it.queue = entries
		}
	}
	e := it.queue[0]
	it.queue = it.queue[1:]
	return e, true, nil
}

// step positions the cursor on the first leaf to scan; advance moves it to
// the next one. Both report false once the walk has run off the edge of
// the Index (no further leaf in that direction); the requested range's
// bounds are applied per entry in Next, not here.
func (it *Iter) step() bool {
	if it.started {
		return false
	}
	it.started = true
	if it.reverse {
		if it.hasHi {
			lowKey, node, ok := it.t.ps.Index.GetLTE(it.hi)
			if !ok {
				return false
			}
			it.lowKey, it.node = lowKey, node
			return true
		}
		lowKey, node, ok := it.t.ps.Index.Last()
		if !ok {
			return false
		}
		it.lowKey, it.node = lowKey, node
		return true
	}
	lowKey, node, ok := it.t.ps.Index.GetLTE(it.lo)
	if !ok {
		return false
	}
	it.lowKey, it.node = lowKey, node
	return true
}

// advance moves from the leaf just drained (whose high bound is hi) to its
// neighbor, using the Index's own adjacency (spec invariant I3: a leaf's hi
// equals the next leaf's lo) rather than any derived key.
func (it *Iter) advance(hi *common.IVec) bool {
	if it.reverse {
		lowKey, node, ok := it.t.ps.Index.Before(it.lowKey)
		if !ok {
			return false
		}
		it.lowKey, it.node = lowKey, node
		return true
	}
	if hi == nil {
		return false
	}
	node, ok := it.t.ps.Index.Get(*hi)
	if !ok {
		return false
	}
	it.lowKey, it.node = *hi, node
	return true
}
