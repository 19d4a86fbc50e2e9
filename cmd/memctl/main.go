package main

import (
	"fmt"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/bootstrap"
	"github.com/joshuapare/memkit/mem/heap"
	"github.com/joshuapare/memkit/mem/pmm"
	"github.com/joshuapare/memkit/mem/radix"
)

func main() {
	execute()
}

// stack is the fully wired allocator stack every subcommand runs against.
type stack struct {
	arena *mem.Arena
	pm    *pmm.Allocator
	heap  *heap.Heap
	cache *radix.NodeCache
}

// newStack boots the stack the same way a kernel would: reserve the range,
// bump-allocate the page allocator's metadata, then layer the heap on top.
func newStack(pages int) (*stack, error) {
	a, err := mem.New(pages)
	if err != nil {
		return nil, err
	}

	bs, err := bootstrap.New(a, a.Start(), a.End())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("bootstrap init: %w", err)
	}
	pm, err := pmm.New(a, a.Start(), a.End(), bs)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("pmm init: %w", err)
	}
	printVerbose("bootstrap consumed %d bytes of metadata\n", bs.Used())

	cache := radix.NewNodeCache()
	cache.Preload(32)

	return &stack{
		arena: a,
		pm:    pm,
		heap:  heap.New(a, pm, heap.WithNodeCache(cache)),
		cache: cache,
	}, nil
}

func (s *stack) close() {
	_ = s.arena.Close()
}
