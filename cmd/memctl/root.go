package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	arenaPages int
)

// printer renders counters with grouped digits (1,234,567), which keeps
// multi-million-allocation stress output readable.
var printer = message.NewPrinter(language.English)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Exercise and inspect the memkit allocator stack",
	Long: `memctl stands up the full memkit stack (arena, bootstrap allocator,
page allocator, slab heap) inside the process and runs workloads against it.
It is the quickest way to observe allocator behavior: size-class routing,
slab growth and release, page exhaustion, and double-free absorption.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().
		IntVar(&arenaPages, "pages", 4096, "Arena size in 4KB pages")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		printer.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		printer.Fprintf(os.Stdout, format, args...)
	}
}
