//go:build !unix

package mem

// mapAnon falls back to a plain zeroed slice where anonymous mappings are
// unavailable.
func mapAnon(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
