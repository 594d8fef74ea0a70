// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package membuf provides a refcounted buffer over unmanaged memory. A
// Buffer is a lightweight handle: a typed view into a refcounted block
// obtained from mempool, or an alias of collector-owned memory, or nothing
// at all. Views may share one block zero-copy via Slice; Clone and Release
// are the entire refcount mechanism.
//
// Reference counts are not atomic. A chain of buffers derived from the same
// block must be held and mutated by a single logical owner; hand buffers
// off, do not share them.
package membuf

import (
	"unsafe"
)

// Buffer is a typed view plus an optional owning block. The zero value is
// the null buffer. T must be a fixed-layout type without pointers; the
// collector does not scan block memory.
type Buffer[T any] struct {
	view []T
	mem  *memory
}

// Bytes is the default byte-oriented instantiation.
type Bytes = Buffer[byte]

func sizeOf[T any]() int {
	var z T
	s := int(unsafe.Sizeof(z))
	if s == 0 {
		fatalf("membuf: zero-size element type")
	}
	return s
}

// zerobase anchors every zero-length non-null view, so the empty state needs
// no allocation. Same trick the runtime plays for zero-size allocations.
var zerobase uintptr

func emptyView[T any]() []T {
	return unsafe.Slice((*T)(unsafe.Pointer(&zerobase)), 0)
}

// blockView builds a typed view over n elements starting offBytes into m.
func blockView[T any](m *memory, offBytes, n int) []T {
	p := unsafe.Add(unsafe.Pointer(unsafe.SliceData(m.raw)), offBytes)
	return unsafe.Slice((*T)(p), n)
}

func (b Buffer[T]) byteOffset() int {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(b.mem.raw)))
	return int(uintptr(unsafe.Pointer(unsafe.SliceData(b.view))) - base)
}

// From copies src into a fresh owned block. A nil src yields the null
// buffer, a zero-length src the empty state; neither allocates. A Buffer
// never silently aliases caller memory; AliasGC is the explicit opt-in.
func From[T any](src []T) Buffer[T] {
	if src == nil {
		return Buffer[T]{}
	}
	if len(src) == 0 {
		return Buffer[T]{view: emptyView[T]()}
	}
	nbytes := len(src) * sizeOf[T]()
	m := newMemory(nbytes, nbytes, true)
	view := blockView[T](m, 0, len(src))
	copy(view, src)
	return Buffer[T]{view: view, mem: m}
}

// FromString copies s into a fresh owned block.
func FromString(s string) Bytes {
	if len(s) == 0 {
		return Bytes{view: emptyView[byte]()}
	}
	m := newMemory(len(s), len(s), true)
	view := blockView[byte](m, 0, len(s))
	copy(view, s)
	return Bytes{view: view, mem: m}
}

// AliasGC wraps src without copying. src must live on the collector-managed
// heap for the buffer's whole lifetime; the buffer takes no ownership and
// holds no refcount. Aliasing pool-owned memory is a fatal assertion.
func AliasGC[T any](src []T) Buffer[T] {
	if src == nil {
		return Buffer[T]{}
	}
	if len(src) == 0 {
		return Buffer[T]{view: emptyView[T]()}
	}
	if defaultPool.IsUnmanaged(unsafe.Pointer(unsafe.SliceData(src))) {
		fatalf("membuf: AliasGC of unmanaged memory at %p", unsafe.SliceData(src))
	}
	return Buffer[T]{view: src[:len(src):len(src)]}
}

// Make allocates a zeroed buffer of size elements.
func Make[T any](size int) Buffer[T] {
	return MakeCap[T](size, size)
}

// MakeCap allocates a zeroed buffer of size elements over a block of
// capacity elements.
func MakeCap[T any](size, capacity int) Buffer[T] {
	if size < 0 || capacity < size {
		fatalf("membuf: invalid make request: size %d, capacity %d", size, capacity)
	}
	if capacity == 0 {
		if size == 0 {
			return Buffer[T]{view: emptyView[T]()}
		}
		fatalf("membuf: invalid make request: size %d, capacity 0", size)
	}
	es := sizeOf[T]()
	m := newMemory(size*es, capacity*es, false)
	return Buffer[T]{view: blockView[T](m, 0, size), mem: m}
}

// MakeNoZero allocates a byte buffer whose contents are left uninitialized;
// reused heap blocks carry stale bytes. For callers about to overwrite the
// whole region.
func MakeNoZero(size, capacity int) Bytes {
	if size < 0 || capacity < size {
		fatalf("membuf: invalid make request: size %d, capacity %d", size, capacity)
	}
	if capacity == 0 {
		if size == 0 {
			return Bytes{view: emptyView[byte]()}
		}
		fatalf("membuf: invalid make request: size %d, capacity 0", size)
	}
	m := newMemory(size, capacity, true)
	m.noZero = true
	return Bytes{view: blockView[byte](m, 0, size), mem: m}
}

// Len returns the number of elements in the view.
func (b Buffer[T]) Len() int {
	return len(b.view)
}

// Cap reports how many elements the buffer may grow to without its block
// being swapped. Growth room is only real when the view ends at the block's
// logical boundary or nothing else references the block; otherwise growing
// in place would overwrite bytes a sibling view observes, so Cap reports no
// free room.
func (b Buffer[T]) Cap() int {
	if b.mem == nil {
		return len(b.view)
	}
	es := sizeOf[T]()
	off := b.byteOffset()
	if off+len(b.view)*es == b.mem.size || b.mem.refs == 1 {
		return (b.mem.capacity() - off) / es
	}
	return len(b.view)
}

// IsNil reports the null state.
func (b Buffer[T]) IsNil() bool {
	return b.view == nil && b.mem == nil
}

// IsUnique reports whether mutating in place cannot be observed through any
// other handle: the block has exactly one reference, or there is no
// writable backing at all.
func (b Buffer[T]) IsUnique() bool {
	return b.mem == nil || b.mem.refs == 1
}

// Refs returns the owning block's reference count, or 0 when the buffer has
// no block. Diagnostics only.
func (b Buffer[T]) Refs() int {
	if b.mem == nil {
		return 0
	}
	return b.mem.refs
}

// Clone returns a second handle onto the same view, retaining the block.
func (b Buffer[T]) Clone() Buffer[T] {
	if b.mem != nil {
		b.mem.retain()
	}
	return b
}

// Release drops this handle's reference and clears it. The block is
// returned to its backend when the last reference goes. Safe on null.
func (b *Buffer[T]) Release() {
	if b.mem != nil {
		b.mem.release()
	}
	*b = Buffer[T]{}
}

// Slice returns a view of elements [x, y) sharing the same block. An empty
// result carries no block reference; taking zero elements is common and
// should cost nothing. Out-of-range bounds are a fatal assertion.
func (b Buffer[T]) Slice(x, y int) Buffer[T] {
	if x < 0 || y < x || y > len(b.view) {
		fatalf("membuf: slice [%d:%d) of buffer with length %d", x, y, len(b.view))
	}
	if x == y {
		if b.view == nil {
			return Buffer[T]{}
		}
		return Buffer[T]{view: emptyView[T]()}
	}
	if b.mem != nil {
		b.mem.retain()
	}
	return Buffer[T]{view: b.view[x:y:y], mem: b.mem}
}

// Truncate narrows the view to n elements. Never reallocates, never touches
// block contents.
func (b *Buffer[T]) Truncate(n int) {
	if n < 0 || n > len(b.view) {
		fatalf("membuf: truncate to %d of buffer with length %d", n, len(b.view))
	}
	b.view = b.view[:n]
}

// Enter hands the current view to fn. The view is valid only for the
// duration of the call; fn must not retain it. This is the scoped read/write
// surface consumers should prefer over holding raw slices.
func (b Buffer[T]) Enter(fn func(view []T)) {
	fn(b.view)
}

// ToGC copies the contents out to a fresh collector-owned slice.
func (b Buffer[T]) ToGC() []T {
	if b.view == nil {
		return nil
	}
	out := make([]T, len(b.view))
	copy(out, b.view)
	return out
}

// EnsureUnique rebinds the buffer so in-place mutation is safe: a shared
// block is copied into a private one sized to the current length, and a
// GC-aliased view is copied into an owned block. Already-unique buffers are
// untouched. Call it before any operation that claims exclusive mutable
// access.
func (b *Buffer[T]) EnsureUnique() {
	if b.mem == nil {
		if len(b.view) > 0 {
			*b = From(b.view)
		}
		return
	}
	if b.mem.refs == 1 {
		return
	}
	nbytes := len(b.view) * sizeOf[T]()
	if nbytes == 0 {
		b.mem.release()
		*b = Buffer[T]{view: emptyView[T]()}
		return
	}
	m := newMemory(nbytes, nbytes, true)
	m.noZero = b.mem.noZero
	view := blockView[T](m, 0, len(b.view))
	copy(view, b.view)
	b.mem.release()
	b.view = view
	b.mem = m
}
