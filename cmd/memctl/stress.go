package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/mem"
	"github.com/joshuapare/memkit/mem/heap"
)

var (
	stressOps     int
	stressWorkers int
	stressMaxSize int
	stressSeed    int64
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressOps, "ops", 100000, "Operations per worker")
	cmd.Flags().IntVar(&stressWorkers, "workers", 4, "Concurrent workers")
	cmd.Flags().IntVar(&stressMaxSize, "max-size", 8192, "Largest request size in bytes")
	cmd.Flags().Int64Var(&stressSeed, "seed", 0, "Random seed (0 = time-based)")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a concurrent alloc/free workload",
		Long: `The stress command hammers the heap with random-size allocations from
concurrent workers, freeing in random order, then reports allocator
statistics. Exhaustion is expected and counted, not fatal.

Example:
  memctl stress --workers 8 --ops 500000 --pages 16384`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
}

func runStress() error {
	s, err := newStack(arenaPages)
	if err != nil {
		return err
	}
	defer s.close()

	seed := stressSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	printInfo("stress: %d workers x %d ops, sizes 1..%d, seed %d\n",
		stressWorkers, stressOps, stressMaxSize, seed)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(stressWorkers)
	for w := 0; w < stressWorkers; w++ {
		w := w
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed + int64(w)))
			live := make([]mem.Addr, 0, 128)

			for _op := 0; _op < stressOps; _op++ {
				// Bias toward allocation while the live set is small.
				if len(live) == 0 || (rng.Intn(100) < 60 && len(live) < cap(live)) {
					size := uint64(rng.Intn(stressMaxSize) + 1)
					addr, err := s.heap.Alloc(size, heap.MayBlock)
					if err != nil {
						continue // exhaustion is part of the workload
					}
					live = append(live, addr)
					continue
				}
				i := rng.Intn(len(live))
				_ = s.heap.Free(live[i])
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
			}
			for _, addr := range live {
				_ = s.heap.Free(addr)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	hs := s.heap.Stats()
	total := hs.AllocCalls + hs.FreeCalls
	printInfo("completed %d operations in %v (%d ops/sec)\n",
		total, elapsed.Round(time.Millisecond),
		int64(float64(total)/elapsed.Seconds()))
	printStats(s)

	if hs.BytesInUse != 0 {
		return fmt.Errorf("leak: %d bytes still in use after full free", hs.BytesInUse)
	}
	return nil
}
