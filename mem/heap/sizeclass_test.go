package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/layout"
)

func TestClassTableAscending(t *testing.T) {
	for i := 1; i < NumClasses; i++ {
		require.Greater(t, classSizes[i], classSizes[i-1])
	}
	require.Equal(t, uint64(MaxClassSize), classSizes[NumClasses-1])
}

func TestClassFor(t *testing.T) {
	cases := []struct {
		size uint64
		want int
	}{
		{1, 0},
		{8, 0},
		{9, 1},
		{16, 1},
		{20, 2},
		{32, 2},
		{33, 3},
		{4096, 9},
		{4097, 10},
		{65536, 13},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ClassFor(c.size), "ClassFor(%d)", c.size)
	}

	// Zero and oversize route to the large path.
	require.Equal(t, NumClasses, ClassFor(0))
	require.Equal(t, NumClasses, ClassFor(MaxClassSize+1))
	require.Equal(t, NumClasses, ClassFor(100000))
}

func TestRoundSize(t *testing.T) {
	require.Equal(t, uint64(32), RoundSize(20))
	require.Equal(t, uint64(8), RoundSize(1))
	require.Equal(t, uint64(65536), RoundSize(65536))
	require.Equal(t, uint64(25*layout.PageSize), RoundSize(100000))
	require.Equal(t, uint64(17*layout.PageSize), RoundSize(65537))
}

func TestRoundSizeMonotonic(t *testing.T) {
	prev := RoundSize(1)
	for s := uint64(2); s <= 3*MaxClassSize; s += 13 {
		cur := RoundSize(s)
		require.GreaterOrEqual(t, cur, prev, "RoundSize(%d)", s)
		prev = cur
	}
}

func TestSlabGeometry(t *testing.T) {
	// Sub-page classes share one page; page-multiple classes get exactly
	// one object per slab.
	require.Equal(t, uint64(layout.PageSize), slabBytes(0))
	require.Equal(t, 512, slabCapacity(0))
	require.Equal(t, 128, slabCapacity(ClassFor(32)))
	require.Equal(t, uint64(layout.PageSize), slabBytes(9))
	require.Equal(t, 1, slabCapacity(9))
	require.Equal(t, uint64(65536), slabBytes(13))
	require.Equal(t, 1, slabCapacity(13))
}
