package membuf

import (
	"unsafe"
)

// Cast reinterprets b's bytes as elements of type U without copying. The
// buffer must be unique: ownership of the block moves wholesale to the
// result and b is cleared, so a sibling view would be left observing memory
// whose element type changed under it. The byte length must divide evenly
// by U's size and the view must satisfy U's alignment; violations are fatal
// assertions.
func Cast[U, T any](b *Buffer[T]) Buffer[U] {
	if !b.IsUnique() {
		fatalf("membuf: cast of shared buffer with %d references", b.mem.refs)
	}
	st, su := sizeOf[T](), sizeOf[U]()
	nbytes := len(b.view) * st
	if nbytes%su != 0 {
		fatalf("membuf: cast of %d bytes to element type of size %d", nbytes, su)
	}
	if b.view == nil {
		*b = Buffer[T]{}
		return Buffer[U]{}
	}
	if len(b.view) == 0 {
		// Keep an empty-owned view anchored inside the block so offset
		// arithmetic stays valid for later growth.
		view := emptyView[U]()
		if b.mem != nil {
			view = blockView[U](b.mem, 0, 0)
		}
		out := Buffer[U]{view: view, mem: b.mem}
		*b = Buffer[T]{}
		return out
	}
	p := unsafe.Pointer(unsafe.SliceData(b.view))
	var zu U
	if uintptr(p)%unsafe.Alignof(zu) != 0 {
		fatalf("membuf: cast to element type with alignment %d at misaligned offset", unsafe.Alignof(zu))
	}
	out := Buffer[U]{view: unsafe.Slice((*U)(p), nbytes/su), mem: b.mem}
	*b = Buffer[T]{}
	return out
}
