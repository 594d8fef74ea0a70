//go:build !unix

package mempool

// Portable fallback: page-rounded blocks come from the heap instead of the
// OS mapping facility. The registry still treats them as pool-owned.
func mmapAnon(size int) []byte {
	return make([]byte, size)
}

func munmapAnon(b []byte) error {
	return nil
}
