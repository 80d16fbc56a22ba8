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

// Package epoch implements the flush-epoch coordinator of spec §4.9/§9: a
// small state machine with three states per epoch -- accepting_writers(e),
// draining(e), persisted(e) -- and three notifiers handed to a flush()
// caller so that a durable flush captures a consistent snapshot without
// ever stopping writers.
package epoch

import "sync"

// Epoch is a strictly increasing, positive epoch counter (spec §3).
type Epoch uint64

// Coordinator hands out per-operation epoch Guards and advances the global
// epoch on RollForward. At any instant outstanding guards exist for at most
// two adjacent epochs: the one currently accepting writers, and at most one
// older one still draining during a flush.
type Coordinator struct {
	mu      sync.Mutex
	current Epoch
	counts  map[Epoch]int64
	vacant  map[Epoch]chan struct{}
	forward chan struct{} // closed once the most recently started flush completes
}

// NewCoordinator starts the coordinator at epoch 1 (0 is reserved as "no
// epoch", matching spec §3's "strictly increasing positive 64-bit counter").
func NewCoordinator() *Coordinator {
	done := make(chan struct{})
	close(done) // no prior flush to wait for
	return &Coordinator{
		current: 1,
		counts:  make(map[Epoch]int64),
		vacant:  make(map[Epoch]chan struct{}),
		forward: done,
	}
}

// Guard is held by a single operation for the duration of one mutation. Its
// Epoch is fixed at acquisition time; Release must be called exactly once.
type Guard struct {
	c     *Coordinator
	epoch Epoch
}

// Epoch returns the epoch this guard was acquired under.
func (g *Guard) Epoch() Epoch { return g.epoch }

// Release drops the guard, potentially unblocking a flush's VacantPrev wait.
func (g *Guard) Release() {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	g.c.counts[g.epoch]--
	if g.c.counts[g.epoch] == 0 {
		if ch, ok := g.c.vacant[g.epoch]; ok {
			close(ch)
			delete(g.c.vacant, g.epoch)
		}
		delete(g.c.counts, g.epoch)
	}
}

// Acquire hands out a guard for the epoch currently accepting writers. Spec
// §4.6/§4.7: every write happens under a write lock on the target leaf AND
// while holding an epoch guard whose epoch equals the leaf's new
// dirty_flush_epoch (§3 I7); callers must acquire the guard only after they
// hold whatever leaf locks the operation needs (§4.7 phase 2 rationale).
func (c *Coordinator) Acquire() *Guard {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[c.current]++
	return &Guard{c: c, epoch: c.current}
}

// Current returns the epoch currently accepting writers, without acquiring
// a guard. Useful for cooperative-flush comparisons (spec §4.4/§4.7 "old +
// 1 == current_epoch").
func (c *Coordinator) Current() Epoch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// RollForward implements spec §4.9's epoch.roll_forward(): it atomically
// moves the current epoch into draining and opens a fresh epoch for new
// writers, returning:
//
//   - donePrev: closed once the flush that called RollForward immediately
//     before this one has finished (serializes overlapping flush() callers);
//   - vacantPrev: blocks until every guard of the just-drained epoch has been
//     released, then returns that epoch (the one the caller must flush);
//   - doneFwd: call once this flush has finished, to unblock the next
//     caller's donePrev.
func (c *Coordinator) RollForward() (donePrev <-chan struct{}, vacantPrev func() Epoch, doneFwd func()) {
	c.mu.Lock()
	draining := c.current
	c.current++

	vacantCh := make(chan struct{})
	if c.counts[draining] == 0 {
		close(vacantCh)
	} else {
		c.vacant[draining] = vacantCh
	}

	prevForward := c.forward
	nextForward := make(chan struct{})
	c.forward = nextForward
	c.mu.Unlock()

	return prevForward, func() Epoch {
			<-vacantCh
			return draining
		}, func() {
			close(nextForward)
		}
}
