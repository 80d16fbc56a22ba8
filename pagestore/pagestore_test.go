package pagestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ezkerrox/pagedb/cacheadvisor"
	lruadvisor "github.com/Ezkerrox/pagedb/cacheadvisor/lru"
	"github.com/Ezkerrox/pagedb/objectstore/memstore"
	"github.com/Ezkerrox/pagedb/pagecodec"
)

func newTestStore(t *testing.T) *PageStore {
	t.Helper()
	advisor, err := lruadvisor.New(1<<20, 80)
	require.NoError(t, err)
	ps, err := Open(memstore.New(), advisor, pagecodec.NewCodec(3), 1<<20, nil)
	require.NoError(t, err)
	return ps
}

func TestPageInAndWriteThenRead(t *testing.T) {
	ps := newTestStore(t)
	ctx := context.Background()

	err := ps.AcquireForWrite(ctx, []byte("hello"), func(g *Guard) {
		g.Leaf().Insert([]byte("hello"), []byte("world"))
		g.MarkDirty()
	})
	require.NoError(t, err)

	var got []byte
	var ok bool
	err = ps.AcquireForRead(ctx, []byte("hello"), func(g *Guard) {
		got, ok = g.Leaf().Get([]byte("hello"))
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "world", string(got))
	require.Equal(t, 1, ps.Dirty.Len())
}

func TestSplitPublishesNewNodeReachableByIndex(t *testing.T) {
	ps := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < LeafFanout+10; i++ {
		key := []byte{byte(i / 256), byte(i % 256)}
		err := ps.AcquireForWrite(ctx, key, func(g *Guard) {
			g.Leaf().Insert(key, []byte("v"))
			g.MarkDirty()
			if g.Leaf().IsFull() {
				res, err := g.Leaf().Split(g.Epoch(), ps.AllocateObjectID)
				require.NoError(t, err)
				ps.PublishSplit(res)
			}
		})
		require.NoError(t, err)
	}
	require.Greater(t, ps.Index.Len(), 1)

	// Every inserted key must still be reachable post-split.
	for i := 0; i < LeafFanout+10; i++ {
		key := []byte{byte(i / 256), byte(i % 256)}
		var ok bool
		err := ps.AcquireForRead(ctx, key, func(g *Guard) {
			_, ok = g.Leaf().Get(key)
		})
		require.NoError(t, err)
		require.Truef(t, ok, "key %v missing after splits", key)
	}
}

func TestEvictionDropsResidentLeafAndPreservesDirtyBytes(t *testing.T) {
	ps := newTestStore(t)
	ctx := context.Background()

	// Every release names the just-accessed leaf itself as a victim.
	advisor, err := newAlwaysEvictAdvisor()
	require.NoError(t, err)
	ps.advisor = advisor

	err = ps.AcquireForWrite(ctx, []byte("k"), func(g *Guard) {
		g.Leaf().Insert([]byte("k"), []byte("v"))
		g.MarkDirty()
	})
	require.NoError(t, err)

	// Look the node up without paging it back in.
	_, node, found := ps.Index.GetLTE([]byte("k"))
	require.True(t, found)
	require.Nil(t, node.leaf, "leaf should have been evicted")
	require.Equal(t, 1, ps.Dirty.Len(), "dirty bytes must survive eviction")

	var got []byte
	var ok bool
	err = ps.AcquireForRead(ctx, []byte("k"), func(g *Guard) {
		got, ok = g.Leaf().Get([]byte("k"))
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(got))
}

func TestFlushClearsDirtyFlushEpochAcrossMultipleCycles(t *testing.T) {
	ps := newTestStore(t)
	ctx := context.Background()

	err := ps.AcquireForWrite(ctx, []byte("k"), func(g *Guard) {
		g.Leaf().Insert([]byte("k"), []byte("v1"))
		g.MarkDirty()
	})
	require.NoError(t, err)

	_, node, err := ps.pageIn(ctx, []byte("k"))
	require.NoError(t, err)
	require.NotNil(t, node.leaf.DirtyFlushEpoch)
	node.mu.Unlock()

	n, err := ps.Flush(ctx, ps.Coord.Current())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, node, err = ps.pageIn(ctx, []byte("k"))
	require.NoError(t, err)
	stillDirty := node.leaf.DirtyFlushEpoch
	node.mu.Unlock()
	require.Nil(t, stillDirty, "flush must clear a lazily-serialized leaf's dirty_flush_epoch")

	// A second write/flush cycle against the same leaf must behave the
	// same way; a stale epoch left over from the first cycle would make
	// cooperativeFlush misread this leaf as dirty under the wrong epoch.
	_, _, doneFwd := ps.Coord.RollForward()
	doneFwd()

	err = ps.AcquireForWrite(ctx, []byte("k"), func(g *Guard) {
		g.Leaf().Insert([]byte("k"), []byte("v2"))
		g.MarkDirty()
	})
	require.NoError(t, err)

	n, err = ps.Flush(ctx, ps.Coord.Current())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, node, err = ps.pageIn(ctx, []byte("k"))
	require.NoError(t, err)
	stillDirty = node.leaf.DirtyFlushEpoch
	node.mu.Unlock()
	require.Nil(t, stillDirty, "second flush cycle must also clear dirty_flush_epoch")
}

// alwaysEvictAdvisor is a test double that immediately names the just-
// accessed id itself as a victim, simulating a cache whose budget is
// smaller than a single leaf.
type alwaysEvictAdvisor struct{}

func newAlwaysEvictAdvisor() (*alwaysEvictAdvisor, error) {
	return &alwaysEvictAdvisor{}, nil
}

func (a *alwaysEvictAdvisor) AccessedReuseBuffer(id uint64, size int) []cacheadvisor.Candidate {
	return []cacheadvisor.Candidate{{ID: id, Size: size}}
}
