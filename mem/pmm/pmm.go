// Package pmm implements the physical page allocator: the sole owner of
// page frames once boot hands it a physical range.
//
// Frame state lives in a bitmap (one bit per frame, set = allocated). The
// bitmap itself is carved out of the managed range through the bootstrap
// allocator, which must run first precisely because this allocator does not
// exist yet.
//
// Allocation is first-fit: single-page allocations start from a search hint
// that trails the lowest possibly-free frame, multi-page allocations scan
// for the first contiguous run. No compaction is attempted; if no run of
// the requested length exists the caller gets ErrOutOfMemory.
//
// Double frees, misaligned frees, and out-of-range frees are detected and
// absorbed: state is never touched, and the error is returned for callers
// that care. A buggy redundant free must not take the system down.
package pmm

import (
	"errors"
	"fmt"
	"os"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/internal/spin"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/bootstrap"
)

// Runtime trace flag - controlled by MEMKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("MEMKIT_LOG_ALLOC") != ""

var (
	// ErrOutOfMemory indicates no free frame (or contiguous run) exists.
	ErrOutOfMemory = errors.New("pmm: out of memory")

	// ErrBadAddress indicates a free of a misaligned or out-of-range address.
	// The operation was absorbed as a no-op.
	ErrBadAddress = errors.New("pmm: bad page address")

	// ErrDoubleFree indicates a free of a frame that was already free.
	// The operation was absorbed as a no-op.
	ErrDoubleFree = errors.New("pmm: page already free")

	// ErrBadCount indicates a non-positive page count.
	ErrBadCount = errors.New("pmm: page count must be positive")
)

// Stats holds allocator counters. Reads are racy by design; they are
// diagnostics, not bookkeeping.
type Stats struct {
	AllocCalls  int64 // AllocPage + AllocPages calls
	FreeCalls   int64 // FreePage + FreePages calls
	FailedAlloc int64 // calls that returned ErrOutOfMemory
	DoubleFrees int64 // absorbed frees of already-free frames
	BadFrees    int64 // absorbed misaligned/out-of-range frees
	FreeFrames  uint64
	TotalFrames uint64
}

// Allocator tracks every page frame in a physical range.
//
// Construct exactly one per arena in production; tests may build as many
// independent instances as they like (state is all behind the struct, never
// package-global).
type Allocator struct {
	arena *mem.Arena

	lk spin.Lock

	base   mem.Addr // first managed frame, page aligned
	frames uint64   // number of managed frames
	bits   []byte   // frame bitmap inside the arena, bit set = allocated

	free uint64 // free frame count
	hint uint64 // lowest frame that might be free

	stats Stats
}

// New builds a page allocator over [start, end) of the arena. The frame
// bitmap is allocated through bs; whatever remains of the range after the
// bitmap becomes the managed frames.
func New(a *mem.Arena, start, end mem.Addr, bs *bootstrap.Allocator) (*Allocator, error) {
	start = mem.Addr(layout.AlignPage(uint64(start)))
	end = end.PageBase()
	if start >= end || !a.Contains(start, uint64(end-start)) {
		return nil, fmt.Errorf("pmm: bad physical range [%#x, %#x)", uint64(start), uint64(end))
	}

	// Upper bound on frame count; the bitmap is sized for it even though
	// the bitmap itself consumes part of the range.
	maxFrames := uint64(end-start) >> layout.PageShift
	bmBytes := (maxFrames + 7) / 8

	bmAddr, err := bs.Alloc(bmBytes, layout.WordAlignment)
	if err != nil {
		return nil, fmt.Errorf("pmm: allocating frame bitmap: %w", err)
	}
	bits, err := a.Slice(bmAddr, bmBytes)
	if err != nil {
		return nil, err
	}

	base := mem.Addr(layout.AlignPage(uint64(bs.Current())))
	if base >= end {
		return nil, fmt.Errorf("pmm: no frames left after metadata: %w", ErrOutOfMemory)
	}
	frames := uint64(end-base) >> layout.PageShift

	p := &Allocator{
		arena:  a,
		base:   base,
		frames: frames,
		bits:   bits,
		free:   frames,
	}
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[PMM] init: base=%#x frames=%d bitmap=%d bytes\n",
			uint64(base), frames, bmBytes)
	}
	return p, nil
}

// AllocPage returns one free page-aligned frame and marks it allocated.
func (p *Allocator) AllocPage() (mem.Addr, error) {
	p.lk.Acquire()
	defer p.lk.Release()

	p.stats.AllocCalls++
	for i := p.hint; i < p.frames; i++ {
		if !p.testBit(i) {
			p.setBit(i)
			p.free--
			p.hint = i + 1
			return p.frameAddr(i), nil
		}
	}

	p.stats.FailedAlloc++
	return mem.NilAddr, ErrOutOfMemory
}

// AllocPages returns the first contiguous run of n free frames. The run is
// page aligned like every frame, but carries no natural alignment beyond
// that: first-fit places it wherever the first hole of length n starts.
func (p *Allocator) AllocPages(n int) (mem.Addr, error) {
	if n <= 0 {
		return mem.NilAddr, fmt.Errorf("%w: %d", ErrBadCount, n)
	}

	p.lk.Acquire()
	defer p.lk.Release()

	p.stats.AllocCalls++
	run := uint64(0)
	for i := uint64(0); i < p.frames; i++ {
		if p.testBit(i) {
			run = 0
			continue
		}
		run++
		if run == uint64(n) {
			first := i + 1 - run
			for f := first; f <= i; f++ {
				p.setBit(f)
			}
			p.free -= run
			if first <= p.hint {
				p.hint = i + 1
			}
			return p.frameAddr(first), nil
		}
	}

	p.stats.FailedAlloc++
	return mem.NilAddr, fmt.Errorf("%w: no contiguous run of %d pages", ErrOutOfMemory, n)
}

// FreePage marks one frame free. Misaligned, out-of-range, and already-free
// addresses are absorbed without touching bitmap state.
func (p *Allocator) FreePage(addr mem.Addr) error {
	p.lk.Acquire()
	defer p.lk.Release()

	p.stats.FreeCalls++
	return p.freeFrameLocked(addr)
}

// FreePages marks n contiguous frames free. Already-free frames within the
// run are skipped (and reported), never double-counted.
func (p *Allocator) FreePages(addr mem.Addr, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrBadCount, n)
	}

	p.lk.Acquire()
	defer p.lk.Release()

	p.stats.FreeCalls++
	var firstErr error
	for i := 0; i < n; i++ {
		if err := p.freeFrameLocked(addr + mem.Addr(i*layout.PageSize)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// freeFrameLocked does the checked state transition for one frame.
// Caller holds p.lk.
func (p *Allocator) freeFrameLocked(addr mem.Addr) error {
	if !addr.PageAligned() || addr < p.base {
		p.stats.BadFrees++
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[PMM] absorbed bad free: %#x\n", uint64(addr))
		}
		return fmt.Errorf("%w: %#x", ErrBadAddress, uint64(addr))
	}
	i := uint64(addr-p.base) >> layout.PageShift
	if i >= p.frames {
		p.stats.BadFrees++
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[PMM] absorbed bad free: %#x\n", uint64(addr))
		}
		return fmt.Errorf("%w: %#x", ErrBadAddress, uint64(addr))
	}
	if !p.testBit(i) {
		p.stats.DoubleFrees++
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[PMM] absorbed double free: %#x\n", uint64(addr))
		}
		return fmt.Errorf("%w: %#x", ErrDoubleFree, uint64(addr))
	}

	p.clearBit(i)
	p.free++
	if i < p.hint {
		p.hint = i
	}
	return nil
}

// FreeCount returns the current number of free frames. Racy by design.
func (p *Allocator) FreeCount() uint64 { return p.free }

// TotalCount returns the number of managed frames.
func (p *Allocator) TotalCount() uint64 { return p.frames }

// Base returns the address of the first managed frame.
func (p *Allocator) Base() mem.Addr { return p.base }

// Stats returns a snapshot of the allocator counters.
func (p *Allocator) Stats() Stats {
	s := p.stats
	s.FreeFrames = p.free
	s.TotalFrames = p.frames
	return s
}

func (p *Allocator) frameAddr(i uint64) mem.Addr {
	return p.base + mem.Addr(i<<layout.PageShift)
}

func (p *Allocator) testBit(i uint64) bool {
	return p.bits[i/8]&(1<<(i%8)) != 0
}

func (p *Allocator) setBit(i uint64) {
	p.bits[i/8] |= 1 << (i % 8)
}

func (p *Allocator) clearBit(i uint64) {
	p.bits[i/8] &^= 1 << (i % 8)
}
