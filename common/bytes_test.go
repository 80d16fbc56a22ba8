package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIVecInlineAndHeap(t *testing.T) {
	short := NewIVec([]byte("hello"))
	require.Equal(t, 5, short.Len())
	require.Equal(t, []byte("hello"), short.Bytes())

	long := NewIVec([]byte("this byte string is deliberately longer than the inline buffer"))
	require.Greater(t, long.Len(), ivecInline)
	require.Equal(t, "this byte string is deliberately longer than the inline buffer", string(long.Bytes()))
}

func TestIVecMutationIsolation(t *testing.T) {
	src := []byte("mutate-me")
	v := NewIVec(src)
	src[0] = 'X'
	require.Equal(t, "mutate-me", string(v.Bytes()))
}

func TestIVecCompare(t *testing.T) {
	a := NewIVec([]byte("abc"))
	b := NewIVec([]byte("abd"))
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, a.Equal(NewIVec([]byte("abc"))))
}

func TestIVecEmpty(t *testing.T) {
	var z IVec
	require.True(t, z.IsEmpty())
	require.Equal(t, 0, z.Len())
}

func TestCommonPrefixLen(t *testing.T) {
	require.Equal(t, 2, CommonPrefixLen([]byte("abz"), []byte("abc")))
	require.Equal(t, 0, CommonPrefixLen([]byte("a"), []byte("b")))
	require.Equal(t, 3, CommonPrefixLen([]byte("abc"), []byte("abc")))
}
