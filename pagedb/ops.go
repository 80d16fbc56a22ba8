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

	"github.com/Ezkerrox/pagedb/pagestore"
)

// Get implements spec §4.6's get(k).
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := t.checkError(); err != nil {
		return nil, err
	}
	var value []byte
	var found bool
	err := t.ps.AcquireForRead(ctx, key, func(g *pagestore.Guard) {
		value, found = g.Leaf().Get(key)
	})
	if err != nil {
		t.errs.setError(ErrKindIO, err.Error())
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return value, nil
}

// ContainsKey reports whether key is present.
func (t *Tree) ContainsKey(ctx context.Context, key []byte) (bool, error) {
	v, err := t.Get(ctx, key)
	return v != nil, err
}

// mutateAndMaybeSplit runs the shared shape of insert/remove (spec §4.6
// steps 1-5): acquire a write guard, mutate, mark dirty if anything
// changed, split if the leaf overflowed, and publish the split.
func (t *Tree) mutateAndMaybeSplit(ctx context.Context, key []byte, mutate func(leaf *pagestore.Leaf) (changed bool)) error {
	return t.ps.AcquireForWrite(ctx, key, func(g *pagestore.Guard) {
		leaf := g.Leaf()
		changed := mutate(leaf)
		var split *pagestore.SplitResult
		if leaf.IsFull() {
			var err error
			split, err = leaf.Split(g.Epoch(), t.ps.AllocateObjectID)
			if err != nil {
				t.errs.setError(ErrKindIO, err.Error())
				return
			}
		}
		if changed || split != nil {
			g.MarkDirty()
		}
		if split != nil {
			t.ps.PublishSplit(split)
		}
	})
}

// Insert implements spec §4.6's insert(k,v), returning the previous value.
func (t *Tree) Insert(ctx context.Context, key, value []byte) ([]byte, error) {
	if err := t.checkError(); err != nil {
		return nil, err
	}
	var old []byte
	var hadOld bool
	err := t.mutateAndMaybeSplit(ctx, key, func(leaf *pagestore.Leaf) bool {
		old, hadOld = leaf.Insert(key, value)
		return !hadOld || !bytes.Equal(old, value)
	})
	if err != nil {
		return nil, err
	}
	if !hadOld {
		return nil, nil
	}
	return old, nil
}

// Remove implements spec §4.6's remove(k), returning the removed value.
func (t *Tree) Remove(ctx context.Context, key []byte) ([]byte, error) {
	if err := t.checkError(); err != nil {
		return nil, err
	}
	var old []byte
	var hadOld bool
	err := t.mutateAndMaybeSplit(ctx, key, func(leaf *pagestore.Leaf) bool {
		old, hadOld = leaf.Remove(key)
		return hadOld
	})
	if err != nil {
		return nil, err
	}
	if !hadOld {
		return nil, nil
	}
	return old, nil
}

// CASResult is the outcome of CompareAndSwap (spec §4.6). On success,
// Previous is the value replaced and Current is the new value. On failure,
// Current is the actual current value and Previous is the proposed old
// value that did not match. nil means absent in every field.
type CASResult struct {
	Success  bool
	Previous []byte // success: value replaced; failure: proposed old value
	Current  []byte // success: new value; failure: actual current value
}

// CompareAndSwap implements spec §4.6's compare_and_swap(k, old, new).
// A nil old matches "absent"; a nil new means "delete on success".
func (t *Tree) CompareAndSwap(ctx context.Context, key, old, new []byte) (CASResult, error) {
	if err := t.checkError(); err != nil {
		return CASResult{}, err
	}
	var res CASResult
	err := t.ps.AcquireForWrite(ctx, key, func(g *pagestore.Guard) {
		leaf := g.Leaf()
		current, present := leaf.Get(key)
		matches := (old == nil && !present) || (old != nil && present && bytes.Equal(old, current))
		if !matches {
			res = CASResult{Success: false, Current: valueOrNil(present, current), Previous: old}
			return
		}
		var split *pagestore.SplitResult
		if new == nil {
			leaf.Remove(key)
		} else {
			leaf.Insert(key, new)
			if leaf.IsFull() {
				var err error
				split, err = leaf.Split(g.Epoch(), t.ps.AllocateObjectID)
				if err != nil {
					t.errs.setError(ErrKindIO, err.Error())
					return
				}
			}
		}
		g.MarkDirty()
		if split != nil {
			t.ps.PublishSplit(split)
		}
		res = CASResult{Success: true, Previous: valueOrNil(present, current), Current: new}
	})
	if err != nil {
		return CASResult{}, err
	}
	return res, nil
}

func valueOrNil(present bool, v []byte) []byte {
	if !present {
		return nil
	}
	return v
}

// UpdateFunc computes a new value from the current one (nil = absent). It
// must be side-effect-free: spec §4.6 allows update_and_fetch to invoke it
// more than once across CAS retries.
type UpdateFunc func(current []byte) []byte

// UpdateAndFetch implements spec §4.6's update_and_fetch: apply fn to the
// current value and CAS it in, retrying with the observed current on a CAS
// race, returning the new value.
func (t *Tree) UpdateAndFetch(ctx context.Context, key []byte, fn UpdateFunc) ([]byte, error) {
	current, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	for {
		next := fn(current)
		res, err := t.CompareAndSwap(ctx, key, current, next)
		if err != nil {
			return nil, err
		}
		if res.Success {
			return next, nil
		}
		current = res.Current
	}
}

// FetchAndUpdate implements spec §4.6's fetch_and_update: like
// UpdateAndFetch but returns the value observed *before* the update.
func (t *Tree) FetchAndUpdate(ctx context.Context, key []byte, fn UpdateFunc) ([]byte, error) {
	current, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	for {
		before := current
		next := fn(current)
		res, err := t.CompareAndSwap(ctx, key, current, next)
		if err != nil {
			return nil, err
		}
		if res.Success {
			return before, nil
		}
		current = res.Current
	}
}
