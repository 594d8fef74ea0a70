// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package membuf

import (
	"fmt"

	"github.com/rawmem/membuf/logging"
	"github.com/rawmem/membuf/mempool"
)

var (
	defaultPool = mempool.Default
	defaultAcct = mempool.DefaultAccountant
)

// Init replaces the pool and accountant used for new blocks. Nil arguments
// leave the current value in place. Buffers allocated before Init keep the
// pool and accountant they were born with.
func Init(pool *mempool.Pool, acct *mempool.Accountant) {
	if pool != nil {
		defaultPool = pool
	}
	if acct != nil {
		defaultAcct = acct
	}
}

// memory is one refcounted unmanaged allocation. raw always spans the full
// allocated capacity; size is the logical length in bytes. refs is not
// atomic: a chain of buffers sharing a block has a single logical owner.
type memory struct {
	raw     []byte
	size    int
	refs    int
	backend mempool.Backend
	pool    *mempool.Pool
	acct    *mempool.Accountant

	// noZero marks raw-bytes blocks whose newly exposed regions are left
	// uninitialized on growth.
	noZero bool
}

// newMemory allocates a block of the given capacity with logical length
// size. The logical region is zeroed unless skipFill is set; callers pass
// skipFill only when they overwrite the whole logical region before the
// block is visible. Heap-backend blocks are reused and come back with stale
// contents.
func newMemory(size, capacity int, skipFill bool) *memory {
	if size < 0 || capacity < size {
		fatalf("membuf: invalid block request: size %d, capacity %d", size, capacity)
	}
	if capacity == 0 {
		fatalf("membuf: zero-capacity block request")
	}
	pool, acct := defaultPool, defaultAcct
	buf, be := acct.Alloc(pool, capacity)
	m := &memory{
		raw:     buf[:cap(buf)],
		size:    size,
		refs:    1,
		backend: be,
		pool:    pool,
		acct:    acct,
	}
	if !skipFill {
		zero(m.raw[:size])
	}
	return m
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (m *memory) capacity() int {
	return len(m.raw)
}

// setSize adjusts the logical length in place; the only mutation a block
// allows without reallocation.
func (m *memory) setSize(n int) {
	if n < 0 || n > m.capacity() {
		fatalf("membuf: setSize(%d) outside capacity %d", n, m.capacity())
	}
	m.size = n
}

func (m *memory) retain() {
	if m.refs <= 0 {
		fatalf("membuf: retain of dead block %p", m)
	}
	m.refs++
	traceRef("retain", m)
}

func (m *memory) release() {
	if m.refs <= 0 {
		fatalf("membuf: release of dead block %p", m)
	}
	m.refs--
	traceRef("release", m)
	if m.refs == 0 {
		m.destroy()
	}
}

func (m *memory) destroy() {
	if m.refs != 0 {
		fatalf("membuf: destroy of block %p with %d live reference(s)", m, m.refs)
	}
	m.acct.Dealloc(m.pool, m.raw, m.backend)
	m.raw = nil
	m.size = 0
}

func fatalf(format string, v ...any) {
	logging.Error(format, v...)
	panic(fmt.Sprintf(format, v...))
}
