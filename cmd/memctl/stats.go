package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/mem/heap"
)

var statsTouch int

func init() {
	cmd := newStatsCmd()
	cmd.Flags().IntVar(&statsTouch, "touch", 0, "Allocations to perform before reporting")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Boot the allocator stack and print its statistics",
		Long: `The stats command stands up an arena, page allocator, and heap, optionally
performs a few allocations, then prints per-layer statistics. Useful for
seeing how much of an arena the management structures themselves consume.

Example:
  memctl stats --pages 8192 --touch 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	s, err := newStack(arenaPages)
	if err != nil {
		return err
	}
	defer s.close()

	for i := 0; i < statsTouch; i++ {
		size := uint64(8 << (i % 12))
		if _, err := s.heap.Alloc(size, heap.MayBlock); err != nil {
			break
		}
	}

	printStats(s)
	return nil
}

func printStats(s *stack) {
	printInfo("arena: %d bytes (%d pages)\n", s.arena.Size(), s.arena.Pages())
	printInfo("pmm:   %d free / %d managed frames, base %#x\n",
		s.pm.FreeCount(), s.pm.TotalCount(), uint64(s.pm.Base()))

	ps := s.pm.Stats()
	printVerbose("pmm:   %d alloc calls, %d free calls, %d double frees absorbed\n",
		ps.AllocCalls, ps.FreeCalls, ps.DoubleFrees)

	hs := s.heap.Stats()
	printInfo("heap:  %d allocs, %d frees, %d bytes in use\n",
		hs.AllocCalls, hs.FreeCalls, hs.BytesInUse)
	printInfo("heap:  %d slabs created, %d released, %d large allocs\n",
		hs.SlabsCreated, hs.SlabsReleased, hs.LargeAllocs)
	printVerbose("heap:  %d double frees absorbed, %d foreign frees rejected\n",
		hs.DoubleFrees, hs.NotOwned)

	cs := s.cache.Stats()
	printVerbose("cache: %d hits, %d misses, %d returned, %d dropped (bound %d free now)\n",
		cs.Hits, cs.Misses, cs.Returned, cs.Dropped, s.cache.Free())
}
