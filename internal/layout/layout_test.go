package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlign8(t *testing.T) {
	cases := []struct {
		in, want uint64
	}{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{16, 16},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Align8(c.in), "Align8(%d)", c.in)
	}
}

func TestAlignPage(t *testing.T) {
	require.Equal(t, uint64(0), AlignPage(0))
	require.Equal(t, uint64(PageSize), AlignPage(1))
	require.Equal(t, uint64(PageSize), AlignPage(PageSize))
	require.Equal(t, uint64(2*PageSize), AlignPage(PageSize+1))
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uint64(64), AlignUp(33, 64))
	require.Equal(t, uint64(64), AlignUp(64, 64))
	require.Equal(t, uint64(128), AlignUp(65, 64))
}

func TestPagesFor(t *testing.T) {
	require.Equal(t, uint64(1), PagesFor(0))
	require.Equal(t, uint64(1), PagesFor(1))
	require.Equal(t, uint64(1), PagesFor(PageSize))
	require.Equal(t, uint64(2), PagesFor(PageSize+1))
	require.Equal(t, uint64(25), PagesFor(100000))
}

func TestPageAligned(t *testing.T) {
	require.True(t, PageAligned(0))
	require.True(t, PageAligned(PageSize))
	require.False(t, PageAligned(PageSize+8))
}

func TestU64RoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	PutU64(buf, 4, 0xDEADBEEFCAFE)
	require.Equal(t, uint64(0xDEADBEEFCAFE), ReadU64(buf, 4))
}
