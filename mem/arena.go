package mem

import (
	"errors"
	"fmt"

	"github.com/joshuapare/memkit/internal/layout"
)

// Addr is a physical address: a byte offset into an Arena.
// Addr(0) is never a valid allocation; it is the "no memory" sentinel.
type Addr uint64

// NilAddr is the sentinel returned by failed allocations.
const NilAddr Addr = 0

// PageIndex returns the page frame number containing the address.
func (a Addr) PageIndex() uint64 {
	return uint64(a) >> layout.PageShift
}

// PageAligned reports whether the address sits on a page boundary.
func (a Addr) PageAligned() bool {
	return uint64(a)&layout.PageMask == 0
}

// PageBase returns the address of the page containing a.
func (a Addr) PageBase() Addr {
	return a &^ Addr(layout.PageMask)
}

var (
	// ErrArenaSize indicates an arena size that is not at least two pages
	// (one reserved page plus one usable frame).
	ErrArenaSize = errors.New("mem: arena must be at least 2 pages")

	// ErrOutOfRange indicates an address or window outside the arena.
	ErrOutOfRange = errors.New("mem: address out of arena range")
)

// Arena is a fixed-size physical memory region. Offsets into it are the
// physical addresses every allocator trades in.
type Arena struct {
	data    []byte
	release func() error
}

// Option configures arena construction.
type Option func(*config)

type config struct {
	sliceBacking bool
}

// WithSliceBacking forces a plain byte-slice arena even where an anonymous
// mapping is available. Useful in tests that want deterministic zeroed
// memory without mmap.
func WithSliceBacking() Option {
	return func(c *config) { c.sliceBacking = true }
}

// New creates an arena of the given number of 4KB pages. The first page is
// reserved; usable memory is [Start, End).
func New(pages int, opts ...Option) (*Arena, error) {
	if pages < 2 {
		return nil, ErrArenaSize
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	size := pages * layout.PageSize

	if cfg.sliceBacking {
		return &Arena{data: make([]byte, size)}, nil
	}

	data, release, err := mapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("mem: mapping %d pages: %w", pages, err)
	}
	return &Arena{data: data, release: release}, nil
}

// Bytes returns the whole arena. The slice aliases arena memory; writes
// through it are writes to "physical RAM".
func (a *Arena) Bytes() []byte { return a.data }

// Size returns the arena size in bytes, including the reserved first page.
func (a *Arena) Size() uint64 { return uint64(len(a.data)) }

// Pages returns the arena size in page frames, including the reserved one.
func (a *Arena) Pages() int { return len(a.data) / layout.PageSize }

// Start returns the first usable physical address (the second page).
func (a *Arena) Start() Addr { return Addr(layout.PageSize) }

// End returns the first address past the arena.
func (a *Arena) End() Addr { return Addr(len(a.data)) }

// Contains reports whether [addr, addr+n) lies inside the usable range.
func (a *Arena) Contains(addr Addr, n uint64) bool {
	if addr < a.Start() {
		return false
	}
	end := uint64(addr) + n
	return end >= uint64(addr) && end <= uint64(len(a.data))
}

// Slice returns a bounds-checked window over [addr, addr+n).
func (a *Arena) Slice(addr Addr, n uint64) ([]byte, error) {
	if !a.Contains(addr, n) {
		return nil, fmt.Errorf("%w: [%#x, %#x)", ErrOutOfRange, uint64(addr), uint64(addr)+n)
	}
	return a.data[addr : uint64(addr)+n : uint64(addr)+n], nil
}

// Zero clears [addr, addr+n). Out-of-range requests are rejected, never
// partially applied.
func (a *Arena) Zero(addr Addr, n uint64) error {
	window, err := a.Slice(addr, n)
	if err != nil {
		return err
	}
	clear(window)
	return nil
}

// Close releases the backing mapping. The arena must not be used afterwards.
func (a *Arena) Close() error {
	a.data = nil
	if a.release == nil {
		return nil
	}
	release := a.release
	a.release = nil
	return release()
}
