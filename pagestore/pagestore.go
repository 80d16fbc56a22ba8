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
	"context"
	"encoding/binary"
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/Ezkerrox/pagedb/cacheadvisor"
	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/epoch"
	"github.com/Ezkerrox/pagedb/log"
	"github.com/Ezkerrox/pagedb/metrics"
	"github.com/Ezkerrox/pagedb/objectstore"
	"github.com/Ezkerrox/pagedb/pagecodec"
)

// PageStore is the in-memory core of spec §4: the Index, the Node-ID
// reverse index, the object store handle, the cache advisor, the clean
// page cache, the dirty set, and the flush-epoch coordinator, wired
// together by PageIn/eviction. The Tree facade (package pagedb) drives
// this type; PageStore itself knows nothing about get/insert/CAS.
type PageStore struct {
	Index      *Index
	NodeIDs    *NodeIDIndex
	Dirty      *DirtySet
	Coord      *epoch.Coordinator
	store      objectstore.Store
	advisor    cacheadvisor.Advisor
	codec      *pagecodec.Codec
	cleanCache *fastcache.Cache
	log        *log.Logger

	cacheMissMeter gometrics.Meter
	evictMeter     gometrics.Meter
	flushMeter     gometrics.Meter
}

// Open constructs a PageStore. If recovered is non-nil, the index and
// node-id map are seeded from a prior object-store recovery scan (spec §7
// "startup recovery"); otherwise a single empty root leaf spanning the
// whole key space is created.
func Open(store objectstore.Store, advisor cacheadvisor.Advisor, codec *pagecodec.Codec, cleanCacheBytes int, recovered []objectstore.LiveObject) (*PageStore, error) {
	ps := &PageStore{
		NodeIDs:    NewNodeIDIndex(),
		Dirty:      NewDirtySet(),
		Coord:      epoch.NewCoordinator(),
		store:      store,
		advisor:    advisor,
		codec:      codec,
		cleanCache: fastcache.New(cleanCacheBytes),
		log:        log.Root().With("component", "pagestore"),

		cacheMissMeter: metrics.NewRegisteredMeter("pagestore/pagein/miss", nil),
		evictMeter:     metrics.NewRegisteredMeter("pagestore/evict", nil),
		flushMeter:     metrics.NewRegisteredMeter("pagestore/flush/leaves", nil),
	}

	if len(recovered) == 0 {
		rootID, err := store.AllocateObjectID()
		if err != nil {
			return nil, fmt.Errorf("pagestore: allocate root node id: %w", err)
		}
		root := NewLeaf(common.IVec{}, nil)
		ps.Index = NewIndex(rootID, root)
		ps.NodeIDs.Set(rootID, root.Lo)
		return ps, nil
	}

	entries := make([]indexEntry, 0, len(recovered))
	for _, live := range recovered {
		lk := common.IVecFromShared(live.LowKey)
		entries = append(entries, indexEntry{lowKey: lk, node: &Node{ID: live.ID}})
		ps.NodeIDs.Set(live.ID, lk)
	}
	sortIndexEntries(entries)
	idx := &Index{}
	idx.snap.Store(&entries)
	ps.Index = idx
	return ps, nil
}

func sortIndexEntries(entries []indexEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].lowKey.Compare(entries[j-1].lowKey) < 0; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func idKey(id objectstore.NodeId) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// materialize deserializes a leaf's bytes, first checking the clean page
// cache before falling back to the object store (spec §4.3 page_in step
// 3's "read the bytes ... from storage").
func (ps *PageStore) materialize(ctx context.Context, id objectstore.NodeId) (*Leaf, error) {
	if cached := ps.cleanCache.Get(nil, idKey(id)); cached != nil {
		rec, size, err := ps.codec.DecodeLeaf(cached)
		if err == nil {
			return LeafFromRecord(rec, size), nil
		}
		// Fall through to storage; a corrupt cache entry is not fatal by itself.
	}
	ps.cacheMissMeter.Mark(1)
	raw, err := ps.store.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pagestore: read node %d: %w", id, err)
	}
	rec, size, err := ps.codec.DecodeLeaf(raw)
	if err != nil {
		return nil, fmt.Errorf("pagestore: decode node %d: %w", id, err)
	}
	ps.cleanCache.Set(idKey(id), raw)
	return LeafFromRecord(rec, size), nil
}

// pageIn implements spec §4.3's page_in(key) loop: binary search the index,
// lock the node exclusively, deserialize on first touch, and retry if the
// resident leaf's bounds no longer cover key (it split or was replaced
// concurrently between the index lookup and acquiring the lock).
func (ps *PageStore) pageIn(ctx context.Context, key []byte) (common.IVec, *Node, error) {
	for {
		lowKey, node, ok := ps.Index.GetLTE(key)
		if !ok {
			return common.IVec{}, nil, fmt.Errorf("pagestore: no leaf covers key %x (empty index)", key)
		}
		node.mu.Lock()
		if node.leaf == nil {
			leaf, err := ps.materialize(ctx, node.ID)
			if err != nil {
				node.mu.Unlock()
				return common.IVec{}, nil, err
			}
			node.leaf = leaf
		}
		if ps.leafCovers(node.leaf, key) {
			return lowKey, node, nil
		}
		// The leaf we locked no longer covers key: it split concurrently and
		// the index has since moved on. Unlock and retry the lookup.
		node.mu.Unlock()
	}
}

func (ps *PageStore) leafCovers(leaf *Leaf, key []byte) bool {
	k := common.NewIVec(key)
	if leaf.Lo.Compare(k) > 0 {
		return false
	}
	if leaf.Hi != nil && leaf.Hi.Compare(k) <= 0 {
		return false
	}
	return true
}

// Guard is a scoped handle on a resident, locked leaf (spec §4.4). Callers
// must call Release exactly once. A Guard obtained via AcquireForWrite also
// carries an epoch guard and has already undergone cooperative-flush
// serialization (spec §4.4/§3 I7); a Guard obtained via AcquireForRead does
// not (reads never need an epoch, only a consistent snapshot of the leaf
// while it is locked).
type Guard struct {
	ps         *PageStore
	node       *Node
	lowKey     common.IVec
	epochGuard *epoch.Guard
}

// Leaf returns the locked, resident leaf. Valid until Release.
func (g *Guard) Leaf() *Leaf { return g.node.leaf }

// LowKey returns the leaf's current low key (its index routing key and
// dirty-set identity).
func (g *Guard) LowKey() common.IVec { return g.lowKey }

// NodeID returns the stable id of the underlying node.
func (g *Guard) NodeID() objectstore.NodeId { return g.node.ID }

// Epoch returns the epoch this write guard was acquired under. Only valid
// for write guards.
func (g *Guard) Epoch() epoch.Epoch { return g.epochGuard.Epoch() }

// MarkDirty records the leaf as dirty in this guard's epoch, both on the
// leaf itself and in the store's dirty set (spec §4.6's "mark the leaf
// dirty in the current epoch" step). Only valid for write guards.
func (g *Guard) MarkDirty() {
	e := g.epochGuard.Epoch()
	g.node.leaf.DirtyFlushEpoch = &e
	g.ps.Dirty.MarkDirty(e, string(g.lowKey.Bytes()))
}

// Release unlocks the leaf and releases any epoch guard, then feeds an
// access hint to the cache advisor and evicts whatever it names -- all
// strictly after the lock is dropped, since eviction must never be invoked
// while holding a leaf lock (spec §4.5).
func (g *Guard) Release() {
	size := g.node.leaf.InMemorySize
	id := g.node.ID
	g.node.mu.Unlock()
	if g.epochGuard != nil {
		g.epochGuard.Release()
	}
	victims := g.ps.advisor.AccessedReuseBuffer(uint64(id), size)
	g.ps.evict(victims)
}

// AcquireForRead pages in the leaf covering key and returns it locked, with
// no epoch guard (spec §4.4 "Read guard: obtained by page_in + immediate
// downgrade"). Unlike a true reader/writer downgrade -- which Go's
// sync.Mutex has no primitive for -- the lock here is held for the whole
// call to fn rather than split into a separately-acquired shared lock; see
// DESIGN.md for why that is a strictly safer substitute for this module's
// scope.
func (ps *PageStore) AcquireForRead(ctx context.Context, key []byte, fn func(g *Guard)) error {
	lowKey, node, err := ps.pageIn(ctx, key)
	if err != nil {
		return err
	}
	g := &Guard{ps: ps, node: node, lowKey: lowKey}
	fn(g)
	g.Release()
	return nil
}

// AcquireForWrite pages in the leaf covering key, acquires an epoch guard,
// and applies cooperative flush serialization before returning: if the
// leaf's dirty_flush_epoch is the epoch currently draining (one behind the
// guard's epoch), this caller serializes it into the dirty set on the
// flush's behalf before touching it (spec §4.4, §3 I7/P3).
func (ps *PageStore) AcquireForWrite(ctx context.Context, key []byte, fn func(g *Guard)) error {
	lowKey, node, err := ps.pageIn(ctx, key)
	if err != nil {
		return err
	}
	eg := ps.Coord.Acquire()
	ps.cooperativeFlush(node, lowKey, eg.Epoch())
	g := &Guard{ps: ps, node: node, lowKey: lowKey, epochGuard: eg}
	fn(g)
	g.Release()
	return nil
}

// PageInLocked exposes page_in (spec §4.3) directly, returning the target
// node already exclusive-locked, for callers that need multi-leaf control
// finer than a single Guard provides -- namely the atomic batch's 2PL phase
// 1 (package pagedb). The caller owns node.mu until it unlocks it (e.g. via
// ReleaseNode).
func (ps *PageStore) PageInLocked(ctx context.Context, key []byte) (common.IVec, *Node, error) {
	return ps.pageIn(ctx, key)
}

// CooperativeFlush exposes cooperativeFlush for phase 2 of the atomic batch
// (spec §4.7), which acquires a single epoch guard for every leaf it holds
// rather than one per leaf.
func (ps *PageStore) CooperativeFlush(node *Node, lowKey common.IVec, currentEpoch epoch.Epoch) {
	ps.cooperativeFlush(node, lowKey, currentEpoch)
}

// ReleaseNode unlocks node and runs the same access-hint-then-evict
// sequence as Guard.Release, for callers (the atomic batch) managing node
// locks directly instead of through a Guard.
func (ps *PageStore) ReleaseNode(node *Node) {
	size := node.leaf.InMemorySize
	id := node.ID
	node.mu.Unlock()
	victims := ps.advisor.AccessedReuseBuffer(uint64(id), size)
	ps.evict(victims)
}

// cooperativeFlush implements spec §4.4: a writer that finds the resident
// leaf still dirty in the epoch the flusher is draining must serialize it
// into the dirty set now, on the flusher's behalf, before proceeding with
// its own mutation.
func (ps *PageStore) cooperativeFlush(node *Node, lowKey common.IVec, currentEpoch epoch.Epoch) {
	leaf := node.leaf
	if leaf.DirtyFlushEpoch == nil {
		return
	}
	old := *leaf.DirtyFlushEpoch
	if old == currentEpoch {
		return
	}
	bytes := ps.codec.EncodeLeaf(leaf.ToRecord())
	ps.Dirty.SetBytes(old, string(lowKey.Bytes()), bytes)
	leaf.DirtyFlushEpoch = nil
}

// WithNode materializes (if necessary) and locks node directly -- unlike
// AcquireForRead/AcquireForWrite it does not route by key, so it is used by
// iteration (pagedb's Iter, and through it checksum, len and clear), which
// already has the Node in hand from an Index lookup. It applies the same
// access-hint-then-evict
// ordering as Guard.Release.
func (ps *PageStore) WithNode(ctx context.Context, node *Node, fn func(leaf *Leaf)) error {
	node.mu.Lock()
	if node.leaf == nil {
		leaf, err := ps.materialize(ctx, node.ID)
		if err != nil {
			node.mu.Unlock()
			return err
		}
		node.leaf = leaf
	}
	fn(node.leaf)
	size := node.leaf.InMemorySize
	id := node.ID
	node.mu.Unlock()

	victims := ps.advisor.AccessedReuseBuffer(uint64(id), size)
	ps.evict(victims)
	return nil
}

// PublishSplit installs a split's new node into the index and node-id map,
// and marks the new leaf dirty in the dirty set (spec §4.1 "The caller is
// responsible for publishing the new node into the index and the dirty
// set"). Must be called with the parent's node lock still held (i.e. from
// inside the write-guard callback that performed the split).
func (ps *PageStore) PublishSplit(res *SplitResult) {
	node := newNode(res.NewID, res.NewLeaf)
	ps.Index.Publish(res.Separator, node)
	ps.NodeIDs.Set(res.NewID, res.Separator)
	ps.Dirty.MarkDirty(*res.NewLeaf.DirtyFlushEpoch, string(res.Separator.Bytes()))
}

// AllocateObjectID mints a fresh NodeId from the underlying object store.
func (ps *PageStore) AllocateObjectID() (objectstore.NodeId, error) {
	return ps.store.AllocateObjectID()
}

// evict drops each named victim's resident leaf from memory (spec §4.5):
// if still dirty, it is serialized into the dirty set first so the next
// flush can still persist it even though it is no longer in memory.
func (ps *PageStore) evict(victims []cacheadvisor.Candidate) {
	for _, v := range victims {
		lowKey, ok := ps.NodeIDs.Get(objectstore.NodeId(v.ID))
		if !ok {
			continue
		}
		node, ok := ps.Index.Get(lowKey)
		if !ok {
			continue
		}
		node.mu.Lock()
		if node.leaf == nil {
			node.mu.Unlock()
			continue
		}
		leaf := node.leaf
		bytes := ps.codec.EncodeLeaf(leaf.ToRecord())
		if leaf.DirtyFlushEpoch != nil {
			ps.Dirty.SetBytes(*leaf.DirtyFlushEpoch, string(lowKey.Bytes()), bytes)
		}
		ps.cleanCache.Set(idKey(node.ID), bytes)
		node.leaf = nil
		node.mu.Unlock()
		ps.evictMeter.Mark(1)
	}
}

// Flush drains every dirty entry at or below throughEpoch by writing it to
// the object store in one atomic batch, serializing any entry that never
// got pre-serialized bytes (still-resident leaves that were never touched
// by cooperative flush or eviction). Entries whose low key no longer has a
// node in the Index are skipped; no tombstone is written. Returns the
// number of leaves
// flushed. This is the object-store-facing half of spec §4.9's flush();
// the epoch roll-forward choreography lives in the pagedb package, which
// owns the Coordinator handshake.
func (ps *PageStore) Flush(ctx context.Context, throughEpoch epoch.Epoch) (int, error) {
	items := ps.Dirty.Take(throughEpoch)
	if len(items) == 0 {
		return 0, nil
	}
	ops := make([]objectstore.WriteOp, 0, len(items))
	for _, it := range items {
		node, ok := ps.Index.Get(common.NewIVec([]byte(it.lowKey)))
		if !ok {
			continue
		}
		bytes := it.value.bytes
		if !it.value.hasBytes {
			node.mu.Lock()
			if node.leaf != nil {
				bytes = ps.codec.EncodeLeaf(node.leaf.ToRecord())
				if node.leaf.DirtyFlushEpoch != nil && *node.leaf.DirtyFlushEpoch == it.epoch {
					node.leaf.DirtyFlushEpoch = nil
				}
			}
			node.mu.Unlock()
		}
		ops = append(ops, objectstore.WriteOp{ID: node.ID, LowKey: []byte(it.lowKey), Bytes: bytes})
	}
	if err := ps.store.WriteBatch(ctx, ops); err != nil {
		return 0, fmt.Errorf("pagestore: flush write_batch: %w", err)
	}
	ps.flushMeter.Mark(int64(len(ops)))
	ps.log.Debug("flushed dirty leaves", "count", len(ops), "through_epoch", throughEpoch)
	return len(ops), nil
}

// StorageStats reports the underlying object store's stats augmented with
// the dirty-set size, for pagedb.StorageStats.
func (ps *PageStore) StorageStats() (objectstore.Stats, int, error) {
	st, err := ps.store.Stats()
	return st, ps.Dirty.Len(), err
}

// Close releases the object store handle.
func (ps *PageStore) Close() error {
	return ps.store.Close()
}
