package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/internal/layout"
	"github.com/joshuapare/memkit/mem/heap"
)

func init() {
	rootCmd.AddCommand(newClassesCmd())
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes [size...]",
		Short: "Print the size-class table and request routing",
		Long: `The classes command prints the fixed size-class table the heap allocates
from. With size arguments it additionally shows how each request routes:
which class serves it (or the large path), and the rounded allocation size.

Example:
  memctl classes 20 4096 100000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses(args)
		},
	}
}

func runClasses(args []string) error {
	printInfo("%-6s %10s %12s %8s\n", "class", "size", "slab bytes", "objects")
	for c := 0; c < heap.NumClasses; c++ {
		size := heap.ClassSize(c)
		slab := size
		if slab < layout.PageSize {
			slab = layout.PageSize
		}
		printInfo("%-6d %10d %12d %8d\n", c, size, slab, slab/size)
	}

	for _, arg := range args {
		size, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", arg, err)
		}
		rounded := heap.RoundSize(size)
		if c := heap.ClassFor(size); c < heap.NumClasses {
			printInfo("%d -> class %d (%d bytes)\n", size, c, rounded)
		} else {
			printInfo("%d -> large path (%d pages, %d bytes)\n",
				size, layout.PagesFor(size), rounded)
		}
	}
	return nil
}
