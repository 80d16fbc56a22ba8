package pagestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ezkerrox/pagedb/common"
	"github.com/Ezkerrox/pagedb/objectstore"
)

func TestLeafInsertGetRemove(t *testing.T) {
	l := NewLeaf(common.IVec{}, nil)
	_, had := l.Insert([]byte("b"), []byte("1"))
	require.False(t, had)
	_, had = l.Insert([]byte("a"), []byte("0"))
	require.False(t, had)

	v, ok := l.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, "0", string(v))

	old, had := l.Insert([]byte("a"), []byte("00"))
	require.True(t, had)
	require.Equal(t, "0", string(old))

	first, ok := l.FirstKey()
	require.True(t, ok)
	require.Equal(t, "a", string(first.Bytes()))

	old, had = l.Remove([]byte("b"))
	require.True(t, had)
	require.Equal(t, "1", string(old))
	require.Equal(t, 1, l.Len())
}

func TestLeafSplitMiddleShard(t *testing.T) {
	lo := common.NewIVec([]byte("m"))
	hi := common.NewIVec([]byte("z"))
	l := NewLeaf(lo, &hi)
	for i := 0; i < LeafFanout; i++ {
		k := []byte{'m', byte(i / 256), byte(i % 256)}
		l.Insert(k, []byte("v"))
	}
	require.True(t, l.IsFull())

	nextID := objectstore.NodeId(100)
	res, err := l.Split(1, func() (objectstore.NodeId, error) { return nextID, nil })
	require.NoError(t, err)
	require.Equal(t, LeafFanout/2, l.Len())
	require.Equal(t, LeafFanout/2, res.NewLeaf.Len())
	require.True(t, l.Hi.Equal(res.Separator))
	require.True(t, res.NewLeaf.Lo.Equal(res.Separator))
	require.True(t, res.NewLeaf.Hi.Equal(hi))

	lastLeft, _ := l.LastKey()
	firstRight, _ := res.NewLeaf.FirstKey()
	require.True(t, lastLeft.Less(res.Separator))
	require.True(t, res.Separator.Compare(firstRight) <= 0)
}

func TestLeafSplitLeftmostShard(t *testing.T) {
	l := NewLeaf(common.IVec{}, nil)
	for i := 0; i < LeafFanout; i++ {
		k := []byte{byte(i / 256), byte(i % 256)}
		l.Insert(k, []byte("v"))
	}
	res, err := l.Split(1, func() (objectstore.NodeId, error) { return 1, nil })
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	require.Equal(t, LeafFanout-1, res.NewLeaf.Len())
}

func TestLeafSplitRightmostShard(t *testing.T) {
	// A non-empty lo keeps this leaf out of the left-most rule.
	l := NewLeaf(common.NewIVec([]byte{0x00}), nil)
	l.Hi = nil
	for i := 0; i < LeafFanout; i++ {
		k := []byte{byte(i / 256), byte(i % 256)}
		l.Insert(k, []byte("v"))
	}
	res, err := l.Split(1, func() (objectstore.NodeId, error) { return 1, nil })
	require.NoError(t, err)
	require.Equal(t, LeafFanout-2, l.Len())
	require.Equal(t, 2, res.NewLeaf.Len())
	require.Nil(t, res.NewLeaf.Hi)
}
