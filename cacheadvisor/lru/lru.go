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

// Package lru is the default cacheadvisor.Advisor: a two-segment LRU, split
// by byte budget rather than entry count. Recently accessed ids live in the
// "hot" segment; once hot overflows its share of the budget the oldest
// entries are demoted into "warm"; once warm overflows its share, the
// oldest warm entries are returned as eviction victims. This mirrors the
// hot/cold promotion used throughout the retrieval pack's cache
// implementations, built here on top of hashicorp/golang-lru/v2's ordered
// Cache rather than a bespoke list.
package lru

import (
	"sync"

	golru "github.com/hashicorp/golang-lru/v2"

	"github.com/Ezkerrox/pagedb/cacheadvisor"
)

// Advisor is a byte-budgeted, two-segment LRU cache advisor.
type Advisor struct {
	mu        sync.Mutex
	hot, warm *golru.Cache[uint64, int]
	hotBytes  int64
	warmBytes int64
	hotLimit  int64
	warmLimit int64
}

// unboundedEntries caps the *count* of entries golang-lru will track per
// segment; eviction is driven by our own byte accounting, not this count,
// so it only needs to be large enough that count-based eviction never
// triggers before byte-based eviction does.
const unboundedEntries = 1 << 20

// New constructs an Advisor with the given total byte capacity, split
// hotPercent/100 to the hot segment and the remainder to warm (spec §6
// "entry_cache_percent: split between the advisor's segments").
func New(capacityBytes int64, hotPercent int) (*Advisor, error) {
	if hotPercent < 0 || hotPercent > 100 {
		hotPercent = 50
	}
	hot, err := golru.New[uint64, int](unboundedEntries)
	if err != nil {
		return nil, err
	}
	warm, err := golru.New[uint64, int](unboundedEntries)
	if err != nil {
		return nil, err
	}
	hotLimit := capacityBytes * int64(hotPercent) / 100
	return &Advisor{
		hot:       hot,
		warm:      warm,
		hotLimit:  hotLimit,
		warmLimit: capacityBytes - hotLimit,
	}, nil
}

// AccessedReuseBuffer implements cacheadvisor.Advisor.
func (a *Advisor) AccessedReuseBuffer(id uint64, size int) []cacheadvisor.Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.forget(id)
	a.hot.Add(id, size)
	a.hotBytes += int64(size)

	for a.hotBytes > a.hotLimit {
		k, v, ok := a.hot.RemoveOldest()
		if !ok {
			break
		}
		a.hotBytes -= int64(v)
		if old, ok := a.warm.Peek(k); ok {
			a.warmBytes -= int64(old)
		}
		a.warm.Add(k, v)
		a.warmBytes += int64(v)
	}

	var victims []cacheadvisor.Candidate
	for a.warmBytes > a.warmLimit {
		k, v, ok := a.warm.RemoveOldest()
		if !ok {
			break
		}
		a.warmBytes -= int64(v)
		victims = append(victims, cacheadvisor.Candidate{ID: k, Size: v})
	}
	return victims
}

// forget removes id from whichever segment currently holds it, so a
// re-access doesn't double count its bytes.
func (a *Advisor) forget(id uint64) {
	if v, ok := a.hot.Peek(id); ok {
		a.hot.Remove(id)
		a.hotBytes -= int64(v)
		return
	}
	if v, ok := a.warm.Peek(id); ok {
		a.warm.Remove(id)
		a.warmBytes -= int64(v)
	}
}

// Len reports the number of entries currently tracked across both segments.
func (a *Advisor) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hot.Len() + a.warm.Len()
}
