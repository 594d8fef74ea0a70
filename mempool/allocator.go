// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"unsafe"

	"github.com/rawmem/membuf/logging"
)

// Backend identifies which allocator produced a block. Callers must free a
// block through the same backend that allocated it.
type Backend uint8

const (
	// BackendHeap serves small blocks from pooled heap memory.
	BackendHeap Backend = iota + 1
	// BackendPage serves large blocks from whole anonymous page mappings.
	BackendPage
)

func (be Backend) String() string {
	switch be {
	case BackendHeap:
		return "heap"
	case BackendPage:
		return "page"
	}
	return fmt.Sprintf("backend(%d)", uint8(be))
}

// Allocator is the contract a single backend implements. Malloc returns a
// slice with len == size; the backend may hand back more capacity than
// requested (the page backend rounds up to whole pages). A nil return means
// the backend could not satisfy the request.
type Allocator interface {
	Malloc(size int) []byte
	Free(buf []byte)
	Backend() Backend
}

// DefaultPageThreshold is the request size at which Pool switches from the
// heap backend to the page backend.
const DefaultPageThreshold = 64 * 1024

// Pool dispatches requests between the two backends by size.
type Pool struct {
	*debugger

	threshold int
	heap      *heapAllocator
	page      *pageAllocator
}

// New creates a Pool routing requests of pageThreshold bytes and above to the
// page backend. pageThreshold <= 0 selects DefaultPageThreshold.
func New(pageThreshold int) *Pool {
	if pageThreshold <= 0 {
		pageThreshold = DefaultPageThreshold
	}
	return &Pool{
		debugger:  &debugger{},
		threshold: pageThreshold,
		heap:      newHeapAllocator(),
		page:      newPageAllocator(),
	}
}

// BackendFor reports which backend a request of the given size is routed to.
func (p *Pool) BackendFor(size int) Backend {
	if size >= p.threshold {
		return BackendPage
	}
	return BackendHeap
}

// Malloc obtains a block of at least size bytes and reports the backend that
// produced it. Returns nil on exhaustion. A non-positive size is caller
// misuse and a fatal assertion, never an exhaustion report.
func (p *Pool) Malloc(size int) ([]byte, Backend) {
	if size <= 0 {
		fatalf("mempool: malloc with non-positive size %d", size)
	}
	be := p.BackendFor(size)
	var buf []byte
	if be == BackendPage {
		buf = p.page.Malloc(size)
	} else {
		buf = p.heap.Malloc(size)
	}
	if buf != nil {
		p.onMalloc(cap(buf))
	}
	return buf, be
}

// Free returns a block to the backend that produced it. buf must be the
// full-capacity slice obtained from Malloc.
func (p *Pool) Free(buf []byte, be Backend) {
	p.onFree(cap(buf))
	if p.poisoning() {
		poison(buf[:cap(buf)])
	}
	switch be {
	case BackendHeap:
		p.heap.Free(buf)
	case BackendPage:
		p.page.Free(buf)
	default:
		fatalf("mempool: free through unknown backend %v", be)
	}
}

// IsUnmanaged reports whether ptr lies inside a live page-backend mapping,
// i.e. memory the garbage collector does not own. Mappings of every pool
// count, so blocks stay recognizable after the default pool is swapped.
func (p *Pool) IsUnmanaged(ptr unsafe.Pointer) bool {
	return pageMapped(uintptr(ptr))
}

const poisonByte = 0xDD

// poison overwrites a freed block so stale readers surface quickly.
func poison(buf []byte) {
	for i := range buf {
		buf[i] = poisonByte
	}
}

func fatalf(format string, v ...any) {
	logging.Error(format, v...)
	panic(fmt.Sprintf(format, v...))
}

// Default is the pool used by package-level Malloc and Free.
var Default = New(DefaultPageThreshold)

// Malloc obtains a block from the default pool.
func Malloc(size int) ([]byte, Backend) {
	return Default.Malloc(size)
}

// Free returns a block to the default pool.
func Free(buf []byte, be Backend) {
	Default.Free(buf, be)
}

// Init replaces the default pool.
func Init(pageThreshold int) {
	Default = New(pageThreshold)
}
