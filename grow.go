// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"math/bits"
)

// maxPrealloc caps amortized-doubling growth; beyond it capacity requests
// advance in maxPrealloc-aligned linear steps.
const maxPrealloc = 4 << 20

// growCapacity returns the capacity in bytes to request when an append
// outgrows the current block.
func growCapacity(nbytes int) int {
	if nbytes >= maxPrealloc {
		return (nbytes + maxPrealloc - 1) &^ (maxPrealloc - 1)
	}
	return 1 << bits.Len(uint(nbytes-1))
}

// Expand sets the buffer's length to newLen over a block with room for at
// least newCap elements. It grows in place only when the request fits the
// block's remaining capacity and extending cannot be observed through a
// sibling view (the view ends at the block's logical boundary, or this is
// the block's only reference); otherwise the contents move to a fresh block
// and the old reference is dropped. Newly exposed elements read as zero
// unless the buffer was built with MakeNoZero. Shrinking never reallocates.
func (b *Buffer[T]) Expand(newLen, newCap int) {
	if newLen < 0 || newCap < newLen {
		fatalf("membuf: invalid expand request: length %d, capacity %d", newLen, newCap)
	}
	es := sizeOf[T]()
	if newLen <= len(b.view) && newCap <= b.Cap() {
		b.view = b.view[:newLen]
		return
	}

	if b.mem != nil {
		off := b.byteOffset()
		viewEnd := off + len(b.view)*es
		fits := off+newCap*es <= b.mem.capacity()
		atTail := viewEnd == b.mem.size
		if fits && (atTail || b.mem.refs == 1) {
			newEnd := off + newLen*es
			if !b.mem.noZero && newEnd > viewEnd {
				zero(b.mem.raw[viewEnd:newEnd])
			}
			if newEnd > b.mem.size {
				b.mem.setSize(newEnd)
			}
			b.view = blockView[T](b.mem, off, newLen)
			return
		}
	}

	noZero := b.mem != nil && b.mem.noZero
	m := newMemory(newLen*es, newCap*es, true)
	m.noZero = noZero
	view := blockView[T](m, 0, newLen)
	n := copy(view, b.view)
	if !noZero && n < newLen {
		zero(m.raw[n*es : newLen*es])
	}
	if b.mem != nil {
		b.mem.release()
	}
	b.view = view
	b.mem = m
}

// Append adds elements at the end, preallocating with amortized doubling.
// The buffer is rebound to a grown block when the current one has no safe
// room.
func (b *Buffer[T]) Append(more ...T) {
	if len(more) == 0 {
		return
	}
	oldLen := len(b.view)
	newLen := oldLen + len(more)
	if newLen <= b.Cap() {
		b.Expand(newLen, newLen)
	} else {
		es := sizeOf[T]()
		b.Expand(newLen, growCapacity(newLen*es)/es)
	}
	copy(b.view[oldLen:], more)
}

// AppendString appends s to a byte buffer.
func AppendString(b *Bytes, s string) {
	b.Append([]byte(s)...)
}

// Prepend reallocates with front ahead of the current contents. The
// allocation is exact; prepends do not preallocate.
func (b *Buffer[T]) Prepend(front []T) {
	if len(front) == 0 {
		return
	}
	es := sizeOf[T]()
	newLen := len(front) + len(b.view)
	m := newMemory(newLen*es, newLen*es, true)
	m.noZero = b.mem != nil && b.mem.noZero
	view := blockView[T](m, 0, newLen)
	copy(view, front)
	copy(view[len(front):], b.view)
	if b.mem != nil {
		b.mem.release()
	}
	b.view = view
	b.mem = m
}

// Concat returns a new buffer holding a's elements followed by b's. The
// result is allocated exactly, with no spare capacity; the operands are
// untouched.
func Concat[T any](a, b Buffer[T]) Buffer[T] {
	n := a.Len() + b.Len()
	if n == 0 {
		if a.IsNil() && b.IsNil() {
			return Buffer[T]{}
		}
		return Buffer[T]{view: emptyView[T]()}
	}
	es := sizeOf[T]()
	m := newMemory(n*es, n*es, true)
	view := blockView[T](m, 0, n)
	copy(view, a.view)
	copy(view[a.Len():], b.view)
	return Buffer[T]{view: view, mem: m}
}
