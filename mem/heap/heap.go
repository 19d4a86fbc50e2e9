// Package heap implements the kernel object allocator: variable-size
// requests routed to fixed size classes, each class backed by slabs carved
// from page-allocator pages, with a radix index mapping any owned page back
// to its descriptor so frees need nothing but the pointer.
//
// Requests above the largest class (64KB) or of size zero take the large
// path: whole pages straight from the page allocator, rounded up to a page
// multiple of at least one page.
//
// Locking: each size class owns a spin lock; the lock is fully released
// before any call into the page allocator or the index, so no two
// component locks are ever held together.
package heap

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/internal/spin"
	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/arch"
	"github.com/joshuapare/memkit/mem/pmm"
	"github.com/joshuapare/memkit/mem/radix"
)

// Runtime trace flag - controlled by MEMKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("MEMKIT_LOG_ALLOC") != ""

var (
	// ErrOutOfMemory indicates exhaustion somewhere down the stack: no
	// free object, no free slab, and the page allocator has no pages.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrNotOwned indicates a free of a pointer this heap never handed
	// out. The operation was absorbed as a no-op.
	ErrNotOwned = errors.New("heap: pointer not owned by any slab")

	// ErrDoubleFree indicates a free of an object that is already free.
	// The operation was absorbed as a no-op.
	ErrDoubleFree = errors.New("heap: object already free")

	// ErrWouldBlock indicates a NoBlock allocation that could not take
	// the class lock without waiting.
	ErrWouldBlock = errors.New("heap: would block")

	// ErrIndexCorrupt indicates the page index disagreed with slab
	// bookkeeping mid-operation. Continuing would spread the damage, so
	// this one is not absorbed.
	ErrIndexCorrupt = errors.New("heap: page index corrupt")
)

// Flags selects allocation behavior.
type Flags uint32

const (
	// MayBlock allows the allocation to spin on contended locks. The
	// default for ordinary contexts.
	MayBlock Flags = 0

	// NoBlock makes the allocation fail with ErrWouldBlock instead of
	// spinning. For early boot and interrupt context, where the caller
	// must never be suspended.
	NoBlock Flags = 1 << 0
)

// Stats is a snapshot of heap counters. Reads are racy diagnostics.
type Stats struct {
	AllocCalls    int64
	FreeCalls     int64
	FailedAllocs  int64
	LargeAllocs   int64
	SlabsCreated  int64
	SlabsReleased int64
	DoubleFrees   int64
	NotOwned      int64
	BytesInUse    int64
}

// sizeClass is the per-class allocation state. partial holds every slab
// with at least one free object, including at most one fully-empty slab
// retained to absorb alloc/free flapping at slab granularity.
type sizeClass struct {
	lk      spin.Lock
	partial []*slab
	cached  *slab // the one retained empty slab, nil if none
}

// Heap is the slab allocator. Construct one per arena with New; all state
// hangs off the struct, so tests can run any number of independent heaps.
type Heap struct {
	arena *mem.Arena
	pm    *pmm.Allocator
	idx   *radix.Tree
	maint arch.Maintenance

	classes [NumClasses]sizeClass

	allocCalls    atomic.Int64
	freeCalls     atomic.Int64
	failedAllocs  atomic.Int64
	largeAllocs   atomic.Int64
	slabsCreated  atomic.Int64
	slabsReleased atomic.Int64
	doubleFrees   atomic.Int64
	notOwned      atomic.Int64
	bytesInUse    atomic.Int64
}

// Option configures heap construction.
type Option func(*Heap)

// WithNodeCache backs the heap's page index with a shared radix node cache.
func WithNodeCache(c *radix.NodeCache) Option {
	return func(h *Heap) { h.idx = radix.New(radix.WithNodeCache(c)) }
}

// WithMaintenance installs the cache/TLB capability invoked when the heap
// returns pages to the page allocator.
func WithMaintenance(m arch.Maintenance) Option {
	return func(h *Heap) { h.maint = m }
}

// New creates a heap drawing pages from pm.
func New(a *mem.Arena, pm *pmm.Allocator, opts ...Option) *Heap {
	h := &Heap{
		arena: a,
		pm:    pm,
		maint: arch.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.idx == nil {
		h.idx = radix.New()
	}
	return h
}

// Alloc returns the address of an object of at least size bytes, or
// NilAddr and an error. Exhaustion is reported, never fatal here; whether
// to halt is the caller's call.
func (h *Heap) Alloc(size uint64, flags Flags) (mem.Addr, error) {
	h.allocCalls.Add(1)

	ci := ClassFor(size)
	if ci == NumClasses {
		return h.allocLarge(size, flags)
	}

	c := &h.classes[ci]
	if !h.lockClass(c, flags) {
		h.failedAllocs.Add(1)
		return mem.NilAddr, ErrWouldBlock
	}

	for {
		if n := len(c.partial); n > 0 {
			s := c.partial[n-1]
			addr := s.pop(h.arena)
			if s == c.cached {
				c.cached = nil
			}
			if s.freeCount == 0 {
				c.partial = c.partial[:n-1]
			}
			c.lk.Release()
			h.bytesInUse.Add(int64(s.objSize))
			return addr, nil
		}

		// No free object anywhere in this class. Cross into the page
		// allocator with our lock dropped, then retry.
		c.lk.Release()
		s, err := h.grow(ci)
		if err != nil {
			h.failedAllocs.Add(1)
			return mem.NilAddr, err
		}
		if !h.lockClass(c, flags) {
			// NoBlock lost the reacquire race; hand the fresh slab
			// straight back rather than waiting.
			h.releaseSlab(s)
			h.failedAllocs.Add(1)
			return mem.NilAddr, ErrWouldBlock
		}
		c.partial = append(c.partial, s)
	}
}

// Free releases the object at addr. Pointers the heap does not own and
// objects that are already free are detected, absorbed as no-ops, and
// reported; they never corrupt a free list.
//
// Once a free returns pages to the page allocator (a released slab or a
// large span), their index entries are gone and the heap can no longer
// distinguish those addresses from ones it never owned: a later free of
// the same pointer reports ErrNotOwned, not ErrDoubleFree. Both are
// absorbed identically.
func (h *Heap) Free(addr mem.Addr) error {
	h.freeCalls.Add(1)

	owner, ok := h.idx.Lookup(addr.PageIndex())
	if !ok {
		return h.absorbNotOwned(addr)
	}

	switch v := owner.(type) {
	case *slab:
		return h.freeObject(v, addr)
	case *largeSpan:
		return h.freeLarge(v, addr)
	default:
		return fmt.Errorf("%w: page %d holds %T", ErrIndexCorrupt, addr.PageIndex(), owner)
	}
}

// RoundSizeOf reports the byte footprint Alloc would consume for a request
// of the given size. Shorthand for the package-level RoundSize.
func (h *Heap) RoundSizeOf(size uint64) uint64 { return RoundSize(size) }

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() Stats {
	return Stats{
		AllocCalls:    h.allocCalls.Load(),
		FreeCalls:     h.freeCalls.Load(),
		FailedAllocs:  h.failedAllocs.Load(),
		LargeAllocs:   h.largeAllocs.Load(),
		SlabsCreated:  h.slabsCreated.Load(),
		SlabsReleased: h.slabsReleased.Load(),
		DoubleFrees:   h.doubleFrees.Load(),
		NotOwned:      h.notOwned.Load(),
		BytesInUse:    h.bytesInUse.Load(),
	}
}

// ============================================================================
// Slab path
// ============================================================================

func (h *Heap) lockClass(c *sizeClass, flags Flags) bool {
	if flags&NoBlock != 0 {
		return c.lk.TryAcquire()
	}
	c.lk.Acquire()
	return true
}

// grow allocates and indexes one fresh slab for the class. Caller holds no
// locks.
func (h *Heap) grow(ci int) (*slab, error) {
	pages := int(slabBytes(ci) >> layout.PageShift)
	base, err := h.pm.AllocPages(pages)
	if err != nil {
		return nil, fmt.Errorf("%w: class %d needs %d pages: %v", ErrOutOfMemory, ci, pages, err)
	}

	s := newSlab(h.arena, ci, base)
	for p := 0; p < pages; p++ {
		key := (base + mem.Addr(p*layout.PageSize)).PageIndex()
		if err := h.idx.Insert(key, s); err != nil {
			// A page the PMM just handed out is still indexed: the
			// index and the page allocator disagree about ownership.
			for q := 0; q < p; q++ {
				h.idx.Delete((base + mem.Addr(q*layout.PageSize)).PageIndex())
			}
			_ = h.pm.FreePages(base, pages)
			return nil, fmt.Errorf("%w: page %d: %v", ErrIndexCorrupt, key, err)
		}
	}

	h.slabsCreated.Add(1)
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[HEAP] new slab: class=%d size=%d base=%#x pages=%d cap=%d\n",
			ci, classSizes[ci], uint64(base), pages, s.cap)
	}
	return s, nil
}

// releaseSlab hands a detached slab's pages back. The index entries go
// first: an index entry must never reference freed pages. Caller holds no
// locks; the slab must already be invisible to its class.
func (h *Heap) releaseSlab(s *slab) {
	for p := 0; p < s.pages; p++ {
		h.idx.Delete((s.base + mem.Addr(p*layout.PageSize)).PageIndex())
	}
	h.maint.FlushRange(s.base, uint64(s.pages)<<layout.PageShift)
	h.maint.Barrier()
	_ = h.pm.FreePages(s.base, s.pages)
	h.slabsReleased.Add(1)
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[HEAP] released slab: class=%d base=%#x\n", s.class, uint64(s.base))
	}
}

func (h *Heap) freeObject(s *slab, addr mem.Addr) error {
	c := &h.classes[s.class]
	c.lk.Acquire()

	if s.dead {
		c.lk.Release()
		return h.absorbNotOwned(addr)
	}
	i := s.objIndex(addr)
	if i < 0 {
		c.lk.Release()
		return h.absorbNotOwned(addr)
	}
	if !s.isAllocated(i) {
		c.lk.Release()
		h.doubleFrees.Add(1)
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[HEAP] absorbed double free: %#x\n", uint64(addr))
		}
		return fmt.Errorf("%w: %#x", ErrDoubleFree, uint64(addr))
	}

	wasFull := s.freeCount == 0
	s.push(h.arena, addr, i)
	h.bytesInUse.Add(-int64(s.objSize))

	if wasFull {
		c.partial = append(c.partial, s)
	}

	// Empty-slab policy: keep one empty slab per class, release the rest.
	var release *slab
	if s.freeCount == s.cap {
		if c.cached == nil {
			c.cached = s
		} else if c.cached != s {
			h.detachLocked(c, s)
			release = s
		}
	}
	c.lk.Release()

	if release != nil {
		h.releaseSlab(release)
	}
	return nil
}

// detachLocked makes a slab invisible to its class. Caller holds c.lk.
func (h *Heap) detachLocked(c *sizeClass, s *slab) {
	s.dead = true
	for i, p := range c.partial {
		if p == s {
			c.partial[i] = c.partial[len(c.partial)-1]
			c.partial = c.partial[:len(c.partial)-1]
			break
		}
	}
}

// ============================================================================
// Large path
// ============================================================================

func (h *Heap) allocLarge(size uint64, flags Flags) (mem.Addr, error) {
	pages := int(layout.PagesFor(size))
	base, err := h.pm.AllocPages(pages)
	if err != nil {
		h.failedAllocs.Add(1)
		return mem.NilAddr, fmt.Errorf("%w: large request of %d pages: %v", ErrOutOfMemory, pages, err)
	}

	span := &largeSpan{
		base:  base,
		pages: pages,
		bytes: uint64(pages) << layout.PageShift,
	}
	for p := 0; p < pages; p++ {
		key := (base + mem.Addr(p*layout.PageSize)).PageIndex()
		if err := h.idx.Insert(key, span); err != nil {
			for q := 0; q < p; q++ {
				h.idx.Delete((base + mem.Addr(q*layout.PageSize)).PageIndex())
			}
			_ = h.pm.FreePages(base, pages)
			h.failedAllocs.Add(1)
			return mem.NilAddr, fmt.Errorf("%w: page %d: %v", ErrIndexCorrupt, key, err)
		}
	}

	h.largeAllocs.Add(1)
	h.bytesInUse.Add(int64(span.bytes))
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[HEAP] large alloc: size=%d pages=%d base=%#x\n",
			size, pages, uint64(base))
	}
	return base, nil
}

func (h *Heap) freeLarge(span *largeSpan, addr mem.Addr) error {
	// Only the span base is a valid free target; an interior page pointer
	// was never handed out.
	if addr != span.base {
		return h.absorbNotOwned(addr)
	}

	// Deleting the base index entry is the commit point: of two racing
	// frees exactly one wins it, the other sees a double free. A later
	// sequential free misses the index lookup entirely and is absorbed
	// as not-owned instead.
	if _, ok := h.idx.Delete(span.base.PageIndex()); !ok {
		h.doubleFrees.Add(1)
		if logAlloc {
			fmt.Fprintf(os.Stderr, "[HEAP] absorbed double free: %#x\n", uint64(addr))
		}
		return fmt.Errorf("%w: %#x", ErrDoubleFree, uint64(addr))
	}
	for p := 1; p < span.pages; p++ {
		h.idx.Delete((span.base + mem.Addr(p*layout.PageSize)).PageIndex())
	}

	h.maint.FlushRange(span.base, span.bytes)
	h.maint.Barrier()
	_ = h.pm.FreePages(span.base, span.pages)
	h.bytesInUse.Add(-int64(span.bytes))
	return nil
}

func (h *Heap) absorbNotOwned(addr mem.Addr) error {
	h.notOwned.Add(1)
	if logAlloc {
		fmt.Fprintf(os.Stderr, "[HEAP] absorbed free of unowned pointer: %#x\n", uint64(addr))
	}
	return fmt.Errorf("%w: %#x", ErrNotOwned, uint64(addr))
}
