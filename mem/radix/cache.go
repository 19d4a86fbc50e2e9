package radix

import "github.com/joshuapare/memkit/internal/spin"

// cacheBound is how many freed nodes the cache keeps before handing them
// back to the general allocator.
const cacheBound = 32

// CacheStats holds node cache counters. Snapshot reads are racy diagnostics.
type CacheStats struct {
	Hits     int64 // node requests served from the free list
	Misses   int64 // node requests that fell through to the general allocator
	Returned int64 // freed nodes kept on the free list
	Dropped  int64 // freed nodes released past the bound
}

// NodeCache is a bounded free list of radix nodes. It decouples tree churn
// from the general heap allocator: a tree that indexes heap bookkeeping
// must not need the heap for every node it touches.
//
// The zero value is not usable; construct with NewNodeCache. A cache may
// back any number of trees.
type NodeCache struct {
	lk    spin.Lock
	head  *node
	count int
	stats CacheStats
}

// NewNodeCache creates an empty cache.
func NewNodeCache() *NodeCache {
	return &NodeCache{}
}

// Preload fills the free list with up to n nodes (capped at the cache
// bound) so early tree growth never touches the general allocator.
func (c *NodeCache) Preload(n int) {
	c.lk.Acquire()
	defer c.lk.Release()

	for c.count < cacheBound && n > 0 {
		nd := &node{nextFree: c.head}
		c.head = nd
		c.count++
		n--
	}
}

// Free returns the number of nodes currently on the free list.
func (c *NodeCache) Free() int {
	c.lk.Acquire()
	defer c.lk.Release()
	return c.count
}

// Stats returns a snapshot of the cache counters.
func (c *NodeCache) Stats() CacheStats {
	c.lk.Acquire()
	defer c.lk.Release()
	return c.stats
}

// get returns a zeroed node, from the free list when possible.
func (c *NodeCache) get() *node {
	c.lk.Acquire()
	if c.head != nil {
		nd := c.head
		c.head = nd.nextFree
		c.count--
		c.stats.Hits++
		c.lk.Release()
		nd.nextFree = nil
		return nd
	}
	c.stats.Misses++
	c.lk.Release()
	return &node{}
}

// put recycles a node. Past the bound the node is simply dropped for the
// general allocator to reclaim.
func (c *NodeCache) put(n *node) {
	// Scrub before the node can be handed out again; a recycled node with
	// stale slots would resurrect deleted entries.
	*n = node{}

	c.lk.Acquire()
	defer c.lk.Release()

	if c.count >= cacheBound {
		c.stats.Dropped++
		return
	}
	n.nextFree = c.head
	c.head = n
	c.count++
	c.stats.Returned++
}
