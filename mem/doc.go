// Package mem models the raw physical memory the allocators manage.
//
// # Overview
//
// An Arena is a single fixed-size byte region standing in for the machine's
// usable RAM. A physical address (Addr) is a byte offset into the arena, so
// every allocator in memkit hands out and accepts plain offsets, exactly as a
// kernel hands out physical addresses.
//
// The first page of every arena is reserved and never allocated. That makes
// Addr(0) safe to use as the universal "no memory" sentinel: no allocator
// ever returns it for a successful allocation.
//
// # Backing
//
// On unix builds the arena is an anonymous memory mapping, so a multi-GB
// arena only consumes physical memory for pages that are actually touched.
// Elsewhere (and under WithSliceBacking) it is a plain byte slice.
//
// # Layering
//
//	mem.Arena          raw physical range
//	mem/bootstrap      one-shot bump allocator (carves PMM metadata)
//	mem/pmm            page-frame bitmap allocator
//	mem/radix          sparse index used for heap bookkeeping
//	mem/heap           size-class slab allocator (kmalloc/kfree)
//
// # Thread Safety
//
// The Arena itself is immutable after New; the allocators layered on top
// each guard their own mutable state with a spin lock.
package mem
