package mempool

import (
	"math/bits"
	"sync"
)

const (
	minHeapBlockBits = 6
	maxHeapBlockBits = 16
	minHeapBlockSize = 1 << minHeapBlockBits // 64
	maxHeapBlockSize = 1 << maxHeapBlockBits // 64k
	heapBucketNum    = maxHeapBlockBits - minHeapBlockBits + 1
)

var _ Allocator = (*heapAllocator)(nil)

// heapAllocator serves small blocks from power-of-two sync.Pool buckets.
// Reused blocks come back with stale contents; zeroing is the caller's
// concern.
type heapAllocator struct {
	pools [heapBucketNum]sync.Pool
}

func newHeapAllocator() *heapAllocator {
	ha := &heapAllocator{}
	for i := range ha.pools {
		size := 1 << (i + minHeapBlockBits)
		ha.pools[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return ha
}

// Backend .
func (ha *heapAllocator) Backend() Backend { return BackendHeap }

// heapBucket returns the index of the smallest bucket that holds size bytes.
func heapBucket(size int) int {
	idx := bits.Len(uint(size-1)) - minHeapBlockBits
	if idx < 0 {
		return 0
	}
	return idx
}

// Malloc .
func (ha *heapAllocator) Malloc(size int) []byte {
	if size > maxHeapBlockSize {
		// Oversized requests bypass the buckets; the pool layer normally
		// routes these to the page backend before we see them.
		return make([]byte, size)
	}
	pbuf := ha.pools[heapBucket(size)].Get().(*[]byte)
	return (*pbuf)[:size]
}

// Free .
func (ha *heapAllocator) Free(buf []byte) {
	size := cap(buf)
	if size < minHeapBlockSize || size > maxHeapBlockSize || size&(size-1) != 0 {
		// Not a bucket block; let the collector take it.
		return
	}
	b := buf[:size]
	ha.pools[heapBucket(size)].Put(&b)
}
