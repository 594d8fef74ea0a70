// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"os"
	"sync"
	"unsafe"
)

var pageSize = os.Getpagesize()

// pageRound rounds size up to a whole number of pages.
func pageRound(size int) int {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// pageMappings registers every live anonymous mapping across all pools, so
// frees are validated and the handle layer can ask whether a pointer lies in
// unmanaged memory no matter which pool mapped it.
var pageMappings = struct {
	mu sync.Mutex
	m  map[uintptr]int // base address -> mapped bytes
}{m: map[uintptr]int{}}

var _ Allocator = (*pageAllocator)(nil)

// pageAllocator obtains whole anonymous mappings from the OS.
type pageAllocator struct{}

func newPageAllocator() *pageAllocator {
	return &pageAllocator{}
}

// Backend .
func (pa *pageAllocator) Backend() Backend { return BackendPage }

// Malloc maps at least size bytes; len of the result is size, cap is the
// page-rounded mapping length. Returns nil if the OS refuses the mapping.
func (pa *pageAllocator) Malloc(size int) []byte {
	mapped := pageRound(size)
	b := mmapAnon(mapped)
	if b == nil {
		return nil
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	pageMappings.mu.Lock()
	pageMappings.m[base] = mapped
	pageMappings.mu.Unlock()
	return b[:size]
}

// Free unmaps a block. buf must be the slice Malloc returned (its base
// address identifies the mapping); anything else is backend misuse.
func (pa *pageAllocator) Free(buf []byte) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	pageMappings.mu.Lock()
	mapped, ok := pageMappings.m[base]
	if ok {
		delete(pageMappings.m, base)
	}
	pageMappings.mu.Unlock()
	if !ok {
		fatalf("mempool: page free of unmapped block %#x", base)
	}
	if err := munmapAnon(buf[:mapped]); err != nil {
		fatalf("mempool: munmap of %d bytes at %#x failed: %v", mapped, base, err)
	}
}

// pageMapped reports whether ptr falls inside any live mapping.
func pageMapped(ptr uintptr) bool {
	pageMappings.mu.Lock()
	defer pageMappings.mu.Unlock()
	for base, n := range pageMappings.m {
		if ptr >= base && ptr < base+uintptr(n) {
			return true
		}
	}
	return false
}
