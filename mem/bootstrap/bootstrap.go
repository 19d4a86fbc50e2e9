// Package bootstrap is the one-shot bump allocator used before the
// permanent page allocator exists.
//
// Its only job is to carve out the page allocator's own metadata (the frame
// bitmap) from the physical range that metadata will later describe. It uses
// a simple bump-pointer approach: O(1) initialization, O(1) allocation, and
// no Free at all. Memory handed out here is permanent.
//
// Every allocation is zero-filled before return. In early boot there are no
// debugging tools yet; zeroing up front eliminates the whole class of
// uninitialized-metadata bugs.
//
// The allocator is single-threaded by construction: it runs once, before
// any other core is released, so it carries no lock.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
)

var (
	// ErrOutOfMemory indicates the aligned request would pass the end of
	// the bootstrap range.
	ErrOutOfMemory = errors.New("bootstrap: out of memory")

	// ErrBadAlign indicates a requested alignment that is not a power of two.
	ErrBadAlign = errors.New("bootstrap: alignment must be a power of two")

	// ErrBadRange indicates an init range that is empty, inverted, or
	// outside the arena.
	ErrBadRange = errors.New("bootstrap: bad physical range")
)

// Allocator is a linear bump allocator over a caller-supplied physical
// range. The cursor only ever advances.
type Allocator struct {
	arena *mem.Arena
	start mem.Addr
	cur   mem.Addr
	end   mem.Addr
}

// New records the usable physical range [start, end), aligning start up to
// a page boundary. A range that is empty after alignment is rejected.
func New(a *mem.Arena, start, end mem.Addr) (*Allocator, error) {
	start = mem.Addr(layout.AlignPage(uint64(start)))
	if start >= end || !a.Contains(start, uint64(end-start)) {
		return nil, fmt.Errorf("%w: [%#x, %#x)", ErrBadRange, uint64(start), uint64(end))
	}
	return &Allocator{
		arena: a,
		start: start,
		cur:   start,
		end:   end,
	}, nil
}

// Alloc returns a zero-filled region of at least size bytes aligned to
// align (8 when align is 0), advancing the cursor. On exhaustion it returns
// (mem.NilAddr, ErrOutOfMemory) and leaves the cursor untouched.
func (b *Allocator) Alloc(size, align uint64) (mem.Addr, error) {
	if align == 0 {
		align = layout.WordAlignment
	}
	if align&(align-1) != 0 {
		return mem.NilAddr, fmt.Errorf("%w: %d", ErrBadAlign, align)
	}
	if size == 0 {
		size = layout.WordAlignment
	}

	addr := mem.Addr(layout.AlignUp(uint64(b.cur), align))
	next := uint64(addr) + size
	if next < uint64(addr) || next > uint64(b.end) {
		return mem.NilAddr, fmt.Errorf("%w: need %d bytes, %d remaining",
			ErrOutOfMemory, size, b.Remaining())
	}

	if err := b.arena.Zero(addr, size); err != nil {
		return mem.NilAddr, err
	}
	b.cur = mem.Addr(next)
	return addr, nil
}

// AllocPages returns n zeroed, page-aligned pages from the bootstrap range.
func (b *Allocator) AllocPages(n int) (mem.Addr, error) {
	if n <= 0 {
		return mem.NilAddr, fmt.Errorf("%w: %d pages", ErrBadRange, n)
	}
	return b.Alloc(uint64(n)*layout.PageSize, layout.PageSize)
}

// Current exposes the cursor for diagnostics.
func (b *Allocator) Current() mem.Addr { return b.cur }

// Used returns the number of bytes consumed so far, alignment padding
// included.
func (b *Allocator) Used() uint64 { return uint64(b.cur - b.start) }

// Remaining returns the bytes left before exhaustion.
func (b *Allocator) Remaining() uint64 { return uint64(b.end - b.cur) }

// End returns the exclusive upper bound of the bootstrap range. The page
// allocator takes over everything in [Current, End) once its metadata is
// carved out.
func (b *Allocator) End() mem.Addr { return b.end }
