package heap

import "github.com/joshuapare/memkit/internal/layout"

// NumClasses is the number of slab size classes.
const NumClasses = 14

// classSizes is the fixed, ascending size-class table: 14 power-of-two
// classes from 8 bytes to 64KB. Requests above the largest class bypass
// slabs entirely and go straight to the page allocator.
var classSizes = [NumClasses]uint64{
	8, 16, 32, 64, 128, 256, 512, 1024,
	2048, 4096, 8192, 16384, 32768, 65536,
}

// MaxClassSize is the largest slab-served allocation size.
const MaxClassSize = 65536

// ClassSize returns the object size of class i.
func ClassSize(i int) uint64 {
	return classSizes[i]
}

// ClassFor returns the index of the smallest class that fits size, or
// NumClasses when the request must take the large-allocation path.
// Pure function, usable to predict routing without allocating.
func ClassFor(size uint64) int {
	if size == 0 || size > MaxClassSize {
		return NumClasses
	}
	// Binary search for the smallest class >= size.
	lo, hi := 0, NumClasses-1
	for lo < hi {
		mid := (lo + hi) / 2
		if classSizes[mid] >= size {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// RoundSize returns the number of bytes Alloc would actually consume for a
// request of size bytes: the size class for slab-served sizes, a page
// multiple (at least one page) for the large path. Pure function.
func RoundSize(size uint64) uint64 {
	if c := ClassFor(size); c < NumClasses {
		return classSizes[c]
	}
	return layout.PagesFor(size) << layout.PageShift
}

// slabBytes returns the backing size of one slab of the given class: one
// page for sub-page classes, exactly the object size for page-multiple
// classes.
func slabBytes(class int) uint64 {
	if classSizes[class] < layout.PageSize {
		return layout.PageSize
	}
	return classSizes[class]
}

// slabCapacity returns the number of objects carved from one slab.
func slabCapacity(class int) int {
	return int(slabBytes(class) / classSizes[class])
}
