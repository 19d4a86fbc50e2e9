// Package radix implements a sparse integer-keyed index: a fixed-fanout
// radix tree mapping uint64 keys to opaque values, with per-entry tag bits
// and a bounded node cache.
//
// # Why a radix tree
//
// The slab heap needs an address→descriptor lookup for every page it owns,
// and identifier spaces like interrupt domains are sparse. A dense array
// over either key space would waste memory; the tree costs O(log64 n) per
// walk and only materializes nodes on populated paths.
//
// # Node cache
//
// The tree is itself part of the heap allocator's bookkeeping, so it must
// not turn around and ask the heap for a node on every churn. Freed nodes
// go onto a bounded free list (32 nodes) first; only beyond that bound do
// they fall back to the general allocator. Caches can be shared between
// trees and preloaded before first use.
//
// # Consistency
//
// All operations take the tree's spin lock. Iteration locks per step, not
// for the whole traversal: entries deleted behind the cursor stay deleted,
// and entries inserted ahead of the cursor may or may not be visited. That
// relaxed contract is deliberate; callers needing a snapshot must arrange
// their own quiescence.
package radix
