package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
)

func newArena(t *testing.T, pages int) *mem.Arena {
	t.Helper()
	a, err := mem.New(pages, mem.WithSliceBacking())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewAlignsStart(t *testing.T) {
	a := newArena(t, 4)

	b, err := New(a, a.Start()+3, a.End())
	require.NoError(t, err)
	require.Equal(t, a.Start()+mem.Addr(layout.PageSize), b.Current())
	require.True(t, b.Current().PageAligned())
	require.Zero(t, b.Used())
}

func TestNewRejectsBadRange(t *testing.T) {
	a := newArena(t, 4)

	_, err := New(a, a.End(), a.Start())
	require.ErrorIs(t, err, ErrBadRange)

	_, err = New(a, a.Start(), a.End()+1)
	require.ErrorIs(t, err, ErrBadRange)
}

func TestAllocAdvancesAndZeroes(t *testing.T) {
	a := newArena(t, 4)
	b, err := New(a, a.Start(), a.End())
	require.NoError(t, err)

	// Dirty the memory first so zero-fill is observable.
	w, err := a.Slice(a.Start(), 256)
	require.NoError(t, err)
	for i := range w {
		w[i] = 0xFF
	}

	addr, err := b.Alloc(100, 0)
	require.NoError(t, err)
	require.Equal(t, a.Start(), addr)

	got, err := a.Slice(addr, 100)
	require.NoError(t, err)
	for _, v := range got {
		require.Zero(t, v)
	}

	// Cursor advanced past the allocation; default alignment applies to
	// the next request, not the cursor itself.
	require.Equal(t, uint64(100), b.Used())

	next, err := b.Alloc(8, 0)
	require.NoError(t, err)
	require.Equal(t, addr+104, next, "next allocation 8-byte aligned")
}

func TestAllocAlignment(t *testing.T) {
	a := newArena(t, 4)
	b, err := New(a, a.Start(), a.End())
	require.NoError(t, err)

	_, err = b.Alloc(16, 0)
	require.NoError(t, err)

	addr, err := b.Alloc(32, 64)
	require.NoError(t, err)
	require.Zero(t, uint64(addr)%64)

	_, err = b.Alloc(8, 3)
	require.ErrorIs(t, err, ErrBadAlign)
}

func TestAllocPages(t *testing.T) {
	a := newArena(t, 8)
	b, err := New(a, a.Start(), a.End())
	require.NoError(t, err)

	addr, err := b.AllocPages(2)
	require.NoError(t, err)
	require.True(t, addr.PageAligned())
	require.Equal(t, a.Start(), addr)
}

func TestExhaustion(t *testing.T) {
	a := newArena(t, 2)
	b, err := New(a, a.Start(), a.End())
	require.NoError(t, err)

	addr, err := b.Alloc(layout.PageSize, 0)
	require.NoError(t, err)
	require.NotEqual(t, mem.NilAddr, addr)

	before := b.Current()
	failed, err := b.Alloc(1, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Equal(t, mem.NilAddr, failed)
	// Failed allocations never move the cursor.
	require.Equal(t, before, b.Current())
	require.Zero(t, b.Remaining())
}
