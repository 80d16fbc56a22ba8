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

// Package cacheadvisor defines the external cache-advisor collaborator
// (spec §6 "Cache advisor contract"): given an access hint (id, size) it
// returns a list of (id, size) victims that the caller should consider
// evicting to stay under its configured budget.
package cacheadvisor

// Candidate is one (id, size) pair, either an access hint fed to the
// advisor or a victim it returns.
type Candidate struct {
	ID   uint64
	Size int
}

// Advisor is the cache-advisor contract. Implementations are expected to be
// single-threaded / internally synchronized; the core never calls an
// Advisor while holding a leaf lock (spec §4.5).
type Advisor interface {
	// AccessedReuseBuffer records that id (sized size bytes) was just
	// accessed, and returns the set of ids that should now be evicted to
	// respect the configured capacity budget. The returned set may be
	// empty, may include id itself (a cold single access to an oversized
	// object), and never blocks on I/O.
	AccessedReuseBuffer(id uint64, size int) []Candidate
}
