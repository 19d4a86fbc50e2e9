//go:build riscv64

package arch

// Default returns the maintenance capability for RISC-V builds. Hosted
// execution leaves fence.i/sfence.vma to the operating system; the arena
// mapping is coherent without explicit maintenance.
func Default() Maintenance {
	return Null{}
}
