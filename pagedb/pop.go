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
)

// First returns the lowest key/value pair in the tree, if any (spec §4.8).
func (t *Tree) First(ctx context.Context) (Entry, bool, error) {
	return t.Iterate(ctx).Next(ctx)
}

// Last returns the highest key/value pair in the tree, if any (spec §4.8).
func (t *Tree) Last(ctx context.Context) (Entry, bool, error) {
	return t.Reverse(ctx, nil, nil).Next(ctx)
}

// GetLt returns the greatest key/value pair strictly less than key, if any
// (spec §4.8 get_lt): a reverse walk of everything below key, taking its
// first result.
func (t *Tree) GetLt(ctx context.Context, key []byte) (Entry, bool, error) {
	return t.Reverse(ctx, nil, key).Next(ctx)
}

// GetGt returns the least key/value pair strictly greater than key, if any
// (spec §4.8 get_gt): a forward walk from key, skipping an exact match since
// Range's lower bound is inclusive.
func (t *Tree) GetGt(ctx context.Context, key []byte) (Entry, bool, error) {
	it := t.Range(ctx, key, nil)
	e, ok, err := it.Next(ctx)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if bytes.Equal(e.Key, key) {
		return it.Next(ctx)
	}
	return e, true, nil
}

// PopFirst atomically removes and returns the lowest key/value pair in the
// tree (spec §4.6 pop_first): read the current first entry, then
// compare_and_swap it to absent, retrying against a fresh first entry on a
// CAS race (another writer mutated or removed it first).
func (t *Tree) PopFirst(ctx context.Context) (Entry, bool, error) {
	return t.popFrom(ctx, nil, nil, false)
}

// PopFirstInRange is PopFirst restricted to [lo, hi).
func (t *Tree) PopFirstInRange(ctx context.Context, lo, hi []byte) (Entry, bool, error) {
	return t.popFrom(ctx, lo, hi, false)
}

// PopLast atomically removes and returns the highest key/value pair in the
// tree (spec §4.6 pop_last).
func (t *Tree) PopLast(ctx context.Context) (Entry, bool, error) {
	return t.popFrom(ctx, nil, nil, true)
}

// PopLastInRange is PopLast restricted to [lo, hi).
func (t *Tree) PopLastInRange(ctx context.Context, lo, hi []byte) (Entry, bool, error) {
	return t.popFrom(ctx, lo, hi, true)
}

func (t *Tree) popFrom(ctx context.Context, lo, hi []byte, reverse bool) (Entry, bool, error) {
	for {
		var (
			e   Entry
			ok  bool
			err error
		)
		if reverse {
			e, ok, err = t.Reverse(ctx, lo, hi).Next(ctx)
		} else {
			e, ok, err = t.Range(ctx, lo, hi).Next(ctx)
		}
		if err != nil {
			return Entry{}, false, err
		}
		if !ok {
			return Entry{}, false, nil
		}
		res, err := t.CompareAndSwap(ctx, e.Key, e.Value, nil)
		if err != nil {
			return Entry{}, false, err
		}
		if res.Success {
			return e, true, nil
		}
		// Another writer raced us for this key; re-scan the (possibly
		// shifted) edge of the range and try again.
	}
}
