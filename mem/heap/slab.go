package heap

import (
	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem"
)

// slab is the descriptor for one contiguous run of pages carved into
// fixed-size objects of a single size class.
//
// Free objects form an intrusive singly-linked list threaded through the
// freed storage itself: the first 8 bytes of each free object hold the
// address of the next free object (NilAddr terminates). The descriptor,
// including the allocation bitmap, lives outside the arena so data and
// metadata never share a region.
type slab struct {
	class   int
	base    mem.Addr
	pages   int
	objSize uint64
	cap     int

	freeCount int
	freeHead  mem.Addr

	// allocBits has one bit per object, set while allocated. It is what
	// makes double-free and not-owned detection O(1) instead of a free
	// list walk.
	allocBits []uint64

	// dead marks a slab detached from its class on release. A racing
	// Free that looked the slab up just before detach must not relink
	// into it.
	dead bool
}

// newSlab wires a freshly allocated page run into a slab: every object is
// pushed onto the intrusive free list in address order.
func newSlab(a *mem.Arena, class int, base mem.Addr) *slab {
	s := &slab{
		class:     class,
		base:      base,
		pages:     int(slabBytes(class) >> layout.PageShift),
		objSize:   classSizes[class],
		cap:       slabCapacity(class),
		freeCount: slabCapacity(class),
		freeHead:  base,
		allocBits: make([]uint64, (slabCapacity(class)+63)/64),
	}

	data := a.Bytes()
	for i := 0; i < s.cap; i++ {
		obj := uint64(base) + uint64(i)*s.objSize
		next := mem.NilAddr
		if i+1 < s.cap {
			next = mem.Addr(obj + s.objSize)
		}
		layout.PutU64(data, int(obj), uint64(next))
	}
	return s
}

// objIndex maps an address to its object slot, or -1 when the address is
// not an object boundary inside the slab.
func (s *slab) objIndex(addr mem.Addr) int {
	if addr < s.base {
		return -1
	}
	off := uint64(addr - s.base)
	if off%s.objSize != 0 {
		return -1
	}
	i := int(off / s.objSize)
	if i >= s.cap {
		return -1
	}
	return i
}

func (s *slab) isAllocated(i int) bool {
	return s.allocBits[i/64]&(1<<(i%64)) != 0
}

func (s *slab) markAllocated(i int) {
	s.allocBits[i/64] |= 1 << (i % 64)
}

func (s *slab) markFree(i int) {
	s.allocBits[i/64] &^= 1 << (i % 64)
}

// pop detaches the head free object. Caller holds the class lock and has
// checked freeCount > 0.
func (s *slab) pop(a *mem.Arena) mem.Addr {
	addr := s.freeHead
	s.freeHead = mem.Addr(layout.ReadU64(a.Bytes(), int(addr)))
	s.freeCount--
	s.markAllocated(s.objIndex(addr))
	return addr
}

// push relinks a freed object at the list head. Caller holds the class
// lock and has validated ownership.
func (s *slab) push(a *mem.Arena, addr mem.Addr, i int) {
	layout.PutU64(a.Bytes(), int(addr), uint64(s.freeHead))
	s.freeHead = addr
	s.freeCount++
	s.markFree(i)
}

// largeSpan is the descriptor for a large allocation: pages obtained
// directly from the page allocator, bypassing slabs. Only the base address
// is a valid free target.
type largeSpan struct {
	base  mem.Addr
	pages int
	bytes uint64 // requested size rounded to the page multiple
}
