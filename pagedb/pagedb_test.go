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
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ezkerrox/pagedb/dbconfig"
)

func openTestTree(t *testing.T) *Tree {
	t.Helper()
	cfg := dbconfig.Default()
	cfg.Path = t.TempDir()
	cfg.FlushEveryMS = 0 // deterministic tests drive flush explicitly
	tree, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tree.Close()) })
	return tree
}

func TestGetInsertRemove(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	v, err := tree.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)

	old, err := tree.Insert(ctx, []byte("a"), []byte("1"))
	require.NoError(t, err)
	require.Nil(t, old)

	v, err = tree.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	old, err = tree.Insert(ctx, []byte("a"), []byte("2"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), old)

	removed, err := tree.Remove(ctx, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), removed)

	v, err = tree.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestCompareAndSwapSequence(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	res, err := tree.CompareAndSwap(ctx, []byte("k"), nil, []byte("v1"))
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = tree.CompareAndSwap(ctx, []byte("k"), []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, []byte("v1"), res.Current)

	res, err = tree.CompareAndSwap(ctx, []byte("k"), []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = tree.CompareAndSwap(ctx, []byte("k"), []byte("v2"), nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	v, err := tree.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSplitAcrossManyKeysKeepsEveryKeyReachable(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	const n = 10000
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		_, err := tree.Insert(ctx, key, key)
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		v, err := tree.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, key, v)
	}

	count := 0
	it := tree.Iterate(ctx)
	for {
		_, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, n, count)
}

func TestApplyBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	ops := []BatchOp{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	require.NoError(t, tree.ApplyBatch(ctx, ops))

	for _, op := range ops {
		v, err := tree.Get(ctx, op.Key)
		require.NoError(t, err)
		require.Equal(t, op.Value, v)
	}

	require.NoError(t, tree.ApplyBatch(ctx, []BatchOp{
		{Key: []byte("a"), Remove: true},
		{Key: []byte("b"), Remove: true},
	}))
	v, err := tree.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)
	v, err = tree.Get(ctx, []byte("c"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), v)
}

func TestConcurrentUpdateAndFetchCounter(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	key := []byte("counter")
	_, err := tree.Insert(ctx, key, []byte("0"))
	require.NoError(t, err)

	const goroutines = 20
	const perGoroutine = 100
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := tree.UpdateAndFetch(ctx, key, func(cur []byte) []byte {
					n := 0
					fmt.Sscanf(string(cur), "%d", &n)
					return []byte(fmt.Sprintf("%d", n+1))
				})
				if err != nil {
					panic(err)
				}
			}
		}()
	}
	wg.Wait()

	v, err := tree.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%d", goroutines*perGoroutine), string(v))
}

func TestIterateRangeReverseAndScanPrefix(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	keys := []string{"a1", "a2", "b1", "b2", "c1"}
	for _, k := range keys {
		_, err := tree.Insert(ctx, []byte(k), []byte(k))
		require.NoError(t, err)
	}

	var forward []string
	it := tree.Range(ctx, []byte("a2"), []byte("c1"))
	for {
		e, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		forward = append(forward, string(e.Key))
	}
	require.Equal(t, []string{"a2", "b1", "b2"}, forward)

	var reverse []string
	rit := tree.Reverse(ctx, nil, nil)
	for {
		e, ok, err := rit.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		reverse = append(reverse, string(e.Key))
	}
	require.Equal(t, []string{"c1", "b2", "b1", "a2", "a1"}, reverse)

	var prefixed []string
	pit := tree.ScanPrefix(ctx, []byte("a"))
	for {
		e, ok, err := pit.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		prefixed = append(prefixed, string(e.Key))
	}
	require.Equal(t, []string{"a1", "a2"}, prefixed)
}

func TestScanPrefixAllFFBoundary(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	prefix := []byte{0xff, 0xff}
	_, err := tree.Insert(ctx, append(append([]byte{}, prefix...), 0x01), []byte("v1"))
	require.NoError(t, err)
	_, err = tree.Insert(ctx, []byte{0x00}, []byte("other"))
	require.NoError(t, err)

	var got []string
	it := tree.ScanPrefix(ctx, prefix)
	for {
		e, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(e.Key))
	}
	require.Len(t, got, 1)
}

func TestPopFirstAndPopLast(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	for _, k := range []string{"a", "b", "c"} {
		_, err := tree.Insert(ctx, []byte(k), []byte(k))
		require.NoError(t, err)
	}

	e, ok, err := tree.PopFirst(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", string(e.Key))

	e, ok, err = tree.PopLast(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c", string(e.Key))

	e, ok, err = tree.PopFirst(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", string(e.Key))

	_, ok, err = tree.PopFirst(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetLtAndGetGt(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	for i := 0; i < 10; i++ {
		_, err := tree.Insert(ctx, []byte{byte(i)}, []byte{byte(i)})
		require.NoError(t, err)
	}

	e, ok, err := tree.GetGt(ctx, []byte{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0}, e.Key)

	e, ok, err = tree.GetGt(ctx, []byte{0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1}, e.Key)

	e, ok, err = tree.GetGt(ctx, []byte{8})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{9}, e.Key)

	_, ok, err = tree.GetGt(ctx, []byte{9})
	require.NoError(t, err)
	require.False(t, ok)

	e, ok, err = tree.GetLt(ctx, []byte{9})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{8}, e.Key)

	_, ok, err = tree.GetLt(ctx, []byte{0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLenAndIsEmpty(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	empty, err := tree.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
	n, err := tree.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	for _, k := range []string{"a", "b", "c"} {
		_, err := tree.Insert(ctx, []byte(k), []byte(k))
		require.NoError(t, err)
	}

	empty, err = tree.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
	n, err = tree.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestChecksumAndClear(t *testing.T) {
	ctx := context.Background()
	tree := openTestTree(t)

	// An empty tree folds nothing, so its checksum is xxhash64 of no input.
	const emptySum = uint64(0xef46db3751d8e999)
	sum1, err := tree.Checksum(ctx)
	require.NoError(t, err)
	require.Equal(t, emptySum, sum1)

	for _, k := range []string{"a", "b", "c"} {
		_, err := tree.Insert(ctx, []byte(k), []byte(k))
		require.NoError(t, err)
	}
	sum2, err := tree.Checksum(ctx)
	require.NoError(t, err)
	require.NotZero(t, sum2)

	require.NoError(t, tree.Clear(ctx))
	sum3, err := tree.Checksum(ctx)
	require.NoError(t, err)
	require.Equal(t, emptySum, sum3)
}

func TestFlushAndRecover(t *testing.T) {
	ctx := context.Background()
	cfg := dbconfig.Default()
	cfg.Path = t.TempDir()

	tree, err := Open(cfg)
	require.NoError(t, err)
	require.False(t, tree.WasRecovered())

	for _, k := range []string{"a", "b", "c"} {
		_, err := tree.Insert(ctx, []byte(k), []byte(k))
		require.NoError(t, err)
	}
	_, err = tree.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Close()) })
	require.True(t, reopened.WasRecovered())

	for _, k := range []string{"a", "b", "c"} {
		v, err := reopened.Get(ctx, []byte(k))
		require.NoError(t, err)
		require.Equal(t, []byte(k), v)
	}
}

func TestOperationsFailAfterClose(t *testing.T) {
	ctx := context.Background()
	cfg := dbconfig.Default()
	cfg.Path = t.TempDir()
	tree, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	_, err = tree.Get(ctx, []byte("a"))
	require.Error(t, err)
}
