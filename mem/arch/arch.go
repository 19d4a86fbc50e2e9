// Package arch isolates architecture-specific cache and TLB maintenance
// behind a small capability interface, so the allocator core carries zero
// architecture conditionals. Implementations are selected at build time by
// per-architecture files, the same way platform flush paths are selected
// elsewhere in the tree.
package arch

import "github.com/joshuapare/memkit/mem"

// Maintenance is the cache/TLB capability the allocators invoke when page
// ownership changes hands. Implementations must be safe for concurrent use.
type Maintenance interface {
	// FlushRange writes back and invalidates cache lines covering
	// [addr, addr+n).
	FlushRange(addr mem.Addr, n uint64)

	// InvalidatePage drops any stale translation for the page at addr.
	InvalidatePage(addr mem.Addr)

	// Barrier orders all prior memory operations before any later ones.
	Barrier()
}

// Null is an explicit no-op Maintenance, for contexts where coherence is
// handled elsewhere (a hosted process relies on the OS and hardware).
type Null struct{}

// FlushRange implements Maintenance.
func (Null) FlushRange(mem.Addr, uint64) {}

// InvalidatePage implements Maintenance.
func (Null) InvalidatePage(mem.Addr) {}

// Barrier implements Maintenance.
func (Null) Barrier() {}

var _ Maintenance = Null{}
