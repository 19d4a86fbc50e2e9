package radix

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tr := New()
	keys := []uint64{0, 1, 63, 64, 65, 4095, 4096, 1 << 20, 1 << 40, ^uint64(0)}

	for _, k := range keys {
		require.NoError(t, tr.Insert(k, k+1))
	}
	require.Equal(t, len(keys), tr.Len())

	for _, k := range keys {
		v, ok := tr.Lookup(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, k+1, v)
	}

	// Keys never inserted miss.
	for _, k := range []uint64{2, 62, 66, 4097, 1<<20 + 1} {
		_, ok := tr.Lookup(k)
		require.False(t, ok, "key %d", k)
	}
}

func TestInsertExistingRejected(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(7, "first"))
	require.ErrorIs(t, tr.Insert(7, "second"), ErrAlreadyPresent)

	// Losing entry would be silent corruption; original survives.
	v, ok := tr.Lookup(7)
	require.True(t, ok)
	require.Equal(t, "first", v)
	require.Equal(t, 1, tr.Len())
}

func TestNilValueRejected(t *testing.T) {
	tr := New()
	require.ErrorIs(t, tr.Insert(1, nil), ErrNilValue)
	_, err := tr.Replace(1, nil)
	require.ErrorIs(t, err, ErrNilValue)
}

func TestReplace(t *testing.T) {
	tr := New()

	_, err := tr.Replace(9, "x")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tr.Insert(9, "old"))
	prev, err := tr.Replace(9, "new")
	require.NoError(t, err)
	require.Equal(t, "old", prev)

	v, _ := tr.Lookup(9)
	require.Equal(t, "new", v)
	require.Equal(t, 1, tr.Len())
}

func TestDelete(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(100, "v"))

	v, ok := tr.Delete(100)
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.Zero(t, tr.Len())

	_, ok = tr.Lookup(100)
	require.False(t, ok)

	// Deleting a missing key is a safe no-op.
	_, ok = tr.Delete(100)
	require.False(t, ok)
}

func TestDeleteCollapsesEmptyNodes(t *testing.T) {
	cache := NewNodeCache()
	tr := New(WithNodeCache(cache))

	// A deep key materializes a chain of interior nodes.
	require.NoError(t, tr.Insert(1<<40, "deep"))
	require.NoError(t, tr.Insert(0, "shallow"))

	_, ok := tr.Delete(1 << 40)
	require.True(t, ok)

	// The whole emptied chain went back to the cache; only the path to
	// key 0 remains live.
	require.Greater(t, cache.Free(), 0)

	v, ok := tr.Lookup(0)
	require.True(t, ok)
	require.Equal(t, "shallow", v)
}

func TestDeleteLastEmptiesTree(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(5, "v"))
	tr.Delete(5)

	require.Zero(t, tr.Len())
	// The tree is reusable after going empty.
	require.NoError(t, tr.Insert(1<<30, "again"))
	v, ok := tr.Lookup(1 << 30)
	require.True(t, ok)
	require.Equal(t, "again", v)
}

func TestTags(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(10, "v"))

	require.False(t, tr.TestTag(10, 0))
	require.NoError(t, tr.SetTag(10, 0))
	require.True(t, tr.TestTag(10, 0))
	require.False(t, tr.TestTag(10, 1), "tag sets are independent")

	require.NoError(t, tr.ClearTag(10, 0))
	require.False(t, tr.TestTag(10, 0))

	require.ErrorIs(t, tr.SetTag(999, 0), ErrNotFound)
	require.ErrorIs(t, tr.SetTag(10, NumTags), ErrBadTag)
	require.False(t, tr.TestTag(999, 1))
}

func TestTagClearedOnDelete(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Insert(3, "v"))
	require.NoError(t, tr.SetTag(3, 1))

	tr.Delete(3)
	require.NoError(t, tr.Insert(3, "v2"))
	require.False(t, tr.TestTag(3, 1), "tag must not survive reinsertion")
}

func TestIterate(t *testing.T) {
	tr := New()
	keys := []uint64{5, 1, 900, 64, 70, 1 << 22}
	for _, k := range keys {
		require.NoError(t, tr.Insert(k, int(k)))
	}

	var got []uint64
	it := tr.Iter(0)
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		require.Equal(t, int(k), v)
		got = append(got, k)
	}
	require.Equal(t, []uint64{1, 5, 64, 70, 900, 1 << 22}, got)
}

func TestIterateFromStart(t *testing.T) {
	tr := New()
	for _, k := range []uint64{10, 20, 30} {
		require.NoError(t, tr.Insert(k, "v"))
	}

	it := tr.Iter(15)
	k, _, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, uint64(20), k)

	// Restartable from any key.
	it.Seek(0)
	k, _, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, uint64(10), k)
}

func TestIterateToleratesDeletion(t *testing.T) {
	tr := New()
	for k := uint64(0); k < 50; k++ {
		require.NoError(t, tr.Insert(k, k))
	}

	it := tr.Iter(0)
	var visited []uint64
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		visited = append(visited, k)
		// Delete everything already visited plus the next key.
		tr.Delete(k)
		tr.Delete(k + 1)
	}

	// Every other key was deleted mid-walk; iteration skips them and
	// terminates without revisiting anything.
	require.Equal(t, 25, len(visited))
	for i, k := range visited {
		require.Equal(t, uint64(2*i), k)
	}
	require.Zero(t, tr.Len())
}

func TestSparseRandomKeys(t *testing.T) {
	tr := New()
	rng := rand.New(rand.NewSource(1))

	ref := map[uint64]int{}
	for i := 0; i < 500; i++ {
		k := rng.Uint64()
		if _, dup := ref[k]; dup {
			continue
		}
		ref[k] = i
		require.NoError(t, tr.Insert(k, i))
	}
	require.Equal(t, len(ref), tr.Len())

	for k, v := range ref {
		got, ok := tr.Lookup(k)
		require.True(t, ok)
		require.Equal(t, v, got)
	}

	// Delete half, verify the rest.
	removed := 0
	for k := range ref {
		if removed%2 == 0 {
			_, ok := tr.Delete(k)
			require.True(t, ok)
			delete(ref, k)
		}
		removed++
	}
	for k, v := range ref {
		got, ok := tr.Lookup(k)
		require.True(t, ok)
		require.Equal(t, v, got)
	}
}

func TestConcurrentDisjointInserts(t *testing.T) {
	tr := New()
	const (
		goroutines = 8
		perG       = 200
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				key := uint64(g*perG + i)
				if err := tr.Insert(key, key); err != nil {
					t.Errorf("insert %d: %v", key, err)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, goroutines*perG, tr.Len())
	for k := uint64(0); k < goroutines*perG; k++ {
		v, ok := tr.Lookup(k)
		require.True(t, ok)
		require.Equal(t, k, v)
	}
}
