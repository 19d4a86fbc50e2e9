//go:build !arm64 && !riscv64

package arch

// Default returns the maintenance capability for all other architectures.
func Default() Maintenance {
	return Null{}
}
