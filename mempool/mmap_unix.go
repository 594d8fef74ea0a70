//go:build unix

package mempool

import (
	"golang.org/x/sys/unix"
)

// mmapAnon maps size bytes of zero-filled anonymous memory, or returns nil.
func mmapAnon(size int) []byte {
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil
	}
	return b
}

func munmapAnon(b []byte) error {
	return unix.Munmap(b)
}
