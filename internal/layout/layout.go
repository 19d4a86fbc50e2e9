// Package layout holds the memory-layout constants and alignment helpers
// shared by every allocator in memkit.
//
// Physical addresses are byte offsets into a single arena. The page size is
// fixed at 4KB, matching the translation granule both target architectures
// (ARM64, RISC-V Sv39/Sv48) use by default.
package layout

import "encoding/binary"

const (
	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the size of one physical page frame in bytes.
	PageSize = 1 << PageShift

	// PageMask masks the in-page offset bits of an address.
	PageMask = PageSize - 1

	// WordAlignment is the default alignment for object allocations.
	WordAlignment = 8

	// WordAlignmentMask masks the sub-word bits of a size or address.
	WordAlignmentMask = WordAlignment - 1

	// LinkSize is the size of an intrusive free-list link stored inside
	// freed object storage (a little-endian 64-bit address).
	LinkSize = 8
)

// Align8 returns n aligned up to the next 8-byte boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n uint64) uint64 {
	return (n + WordAlignmentMask) &^ WordAlignmentMask
}

// AlignUp returns n aligned up to the next multiple of align.
// align must be a power of two.
func AlignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// AlignPage returns n aligned up to the next 4KB page boundary.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n uint64) uint64 {
	return (n + PageMask) &^ PageMask
}

// PageAligned reports whether n sits on a page boundary.
func PageAligned(n uint64) bool {
	return n&PageMask == 0
}

// PagesFor returns the number of whole pages needed to hold n bytes,
// never less than one.
func PagesFor(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return AlignPage(n) >> PageShift
}

// Binary encoding helpers for in-arena metadata (intrusive free-list links).
//
// Little-endian, via encoding/binary: the standard library implementation is
// inlined by the compiler and benchmarks on par with unsafe alternatives.

// PutU64 writes a uint64 value to the buffer at the specified offset in little-endian format.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU64 reads a uint64 value from the buffer at the specified offset in little-endian format.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}
