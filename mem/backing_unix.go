//go:build unix

package mem

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapAnon reserves size bytes of anonymous, zero-filled memory. Pages are
// only backed by physical memory once touched, so large arenas are cheap
// until the allocators actually hand their frames out.
func mapAnon(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	release := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, release, nil
}
