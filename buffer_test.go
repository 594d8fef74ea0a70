package membuf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawmem/membuf/mempool"
)

// initTestAlloc gives the test its own pool and accountant so leak checks
// start from a clean baseline.
func initTestAlloc(t *testing.T) *mempool.Accountant {
	t.Helper()
	pool := mempool.New(0)
	acct := mempool.NewAccountant(0)
	Init(pool, acct)
	t.Cleanup(func() {
		Init(mempool.Default, mempool.DefaultAccountant)
	})
	return acct
}

func TestFromBytes(t *testing.T) {
	acct := initTestAlloc(t)

	b := FromString("hello")
	require.Equal(t, 5, b.Len())
	require.GreaterOrEqual(t, b.Cap(), 5)
	require.Equal(t, []byte("hello"), b.ToGC())
	require.Equal(t, 1, b.Refs())

	b.Release()
	require.True(t, b.IsNil())
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestFromCopies(t *testing.T) {
	initTestAlloc(t)

	src := []byte("hello")
	b := From(src)
	src[0] = 'X'
	require.Equal(t, []byte("hello"), b.ToGC())
	b.Release()
}

func TestNullBuffer(t *testing.T) {
	acct := initTestAlloc(t)

	var b Bytes
	require.True(t, b.IsNil())
	require.Equal(t, 0, b.Len())
	require.Equal(t, 0, b.Cap())
	require.Equal(t, 0, b.Refs())
	require.Nil(t, b.ToGC())
	b.Enter(func(view []byte) {
		require.Equal(t, 0, len(view))
	})
	b.Release()
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestEmptyBuffer(t *testing.T) {
	acct := initTestAlloc(t)

	b := Make[byte](0)
	require.False(t, b.IsNil())
	require.Equal(t, 0, b.Len())
	b.Enter(func(view []byte) {
		require.Equal(t, 0, len(view))
	})
	b.Release()

	e := From([]byte{})
	require.False(t, e.IsNil())
	require.Equal(t, 0, e.Len())
	e.Release()

	n := From[byte](nil)
	require.True(t, n.IsNil())

	// None of the empty states allocate.
	require.Equal(t, int64(0), acct.Stats().TotalAllocs)
}

func TestCloneRefCountRoundTrip(t *testing.T) {
	acct := initTestAlloc(t)

	b := FromString("refcount")
	require.Equal(t, 1, b.Refs())

	c := b.Clone()
	require.Equal(t, 2, b.Refs())
	require.Equal(t, 2, c.Refs())

	c.Release()
	require.Equal(t, 1, b.Refs())
	require.Equal(t, int64(1), acct.Stats().LiveBlocks)

	b.Release()
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
	require.Equal(t, int64(0), acct.Stats().LiveBytes)
}

func TestSliceSharesBlock(t *testing.T) {
	acct := initTestAlloc(t)

	a := Make[byte](10)
	require.Equal(t, 1, a.Refs())

	s := a.Slice(2, 5)
	require.Equal(t, 3, s.Len())
	require.Equal(t, 2, a.Refs())
	require.Equal(t, 2, s.Refs())
	require.Equal(t, int64(1), acct.Stats().LiveBlocks)

	s.Release()
	require.Equal(t, 1, a.Refs())

	a.Release()
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestSliceContents(t *testing.T) {
	initTestAlloc(t)

	b := FromString("hello world")
	s := b.Slice(6, 11)
	require.Equal(t, []byte("world"), s.ToGC())

	// The original outliving the slice or vice versa does not matter.
	b.Release()
	require.Equal(t, []byte("world"), s.ToGC())
	s.Release()
}

func TestSliceEmptyTakesNoReference(t *testing.T) {
	initTestAlloc(t)

	b := FromString("hello")
	s := b.Slice(3, 3)
	require.False(t, s.IsNil())
	require.Equal(t, 0, s.Len())
	require.Equal(t, 1, b.Refs())
	require.Equal(t, 0, s.Refs())
	s.Release()
	b.Release()

	var n Bytes
	require.True(t, n.Slice(0, 0).IsNil())
}

func TestSliceOutOfRange(t *testing.T) {
	initTestAlloc(t)

	b := FromString("hello")
	defer b.Release()
	require.Panics(t, func() { b.Slice(2, 6) })
	require.Panics(t, func() { b.Slice(-1, 2) })
	require.Panics(t, func() { b.Slice(4, 2) })
}

func TestTruncate(t *testing.T) {
	initTestAlloc(t)

	b := FromString("hello")
	blockCap := b.Cap()
	b.Truncate(2)
	require.Equal(t, 2, b.Len())
	require.Equal(t, []byte("he"), b.ToGC())
	// Truncation narrows the view only; the block is unchanged.
	require.Equal(t, 1, b.Refs())
	require.Equal(t, blockCap, b.Cap())

	require.Panics(t, func() { b.Truncate(3) })
	require.Panics(t, func() { b.Truncate(-1) })
	b.Release()
}

func TestEnsureUniqueCopyOnWrite(t *testing.T) {
	acct := initTestAlloc(t)

	a := FromString("hello")
	c := a.Clone()
	require.Equal(t, 2, a.Refs())

	c.EnsureUnique()
	require.Equal(t, 1, a.Refs())
	require.Equal(t, 1, c.Refs())
	require.Equal(t, int64(2), acct.Stats().LiveBlocks)

	c.Enter(func(view []byte) {
		view[0] = 'H'
	})
	require.Equal(t, []byte("hello"), a.ToGC())
	require.Equal(t, []byte("Hello"), c.ToGC())

	a.Release()
	c.Release()
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestEnsureUniqueNoopWhenUnique(t *testing.T) {
	acct := initTestAlloc(t)

	b := FromString("solo")
	b.EnsureUnique()
	require.Equal(t, 1, b.Refs())
	require.Equal(t, int64(1), acct.Stats().TotalAllocs)
	b.Release()

	var n Bytes
	n.EnsureUnique()
	require.True(t, n.IsNil())
}

func TestAliasGC(t *testing.T) {
	initTestAlloc(t)

	data := []byte("gcdata")
	b := AliasGC(data)
	require.False(t, b.IsNil())
	require.Equal(t, 0, b.Refs())
	require.Equal(t, 6, b.Len())
	require.Equal(t, 6, b.Cap())

	// The view aliases, it does not copy.
	data[0] = 'X'
	require.Equal(t, []byte("Xcdata"), b.ToGC())

	// Promotion detaches from collector-owned memory.
	b.EnsureUnique()
	require.Equal(t, 1, b.Refs())
	data[1] = 'Y'
	require.Equal(t, []byte("Xcdata"), b.ToGC())
	b.Release()
}

func TestAliasGCRejectsUnmanaged(t *testing.T) {
	initTestAlloc(t)

	b := Make[byte](1 << 20) // page backend
	defer b.Release()
	b.Enter(func(view []byte) {
		require.Panics(t, func() { AliasGC(view) })
		require.Panics(t, func() { AliasGC(view[100:200]) })
	})
}

func TestAliasGCRejectsUnmanagedAfterInit(t *testing.T) {
	initTestAlloc(t)

	b := Make[byte](1 << 20) // page backend
	defer b.Release()

	// Swapping the pool must not launder blocks born from the old one.
	Init(mempool.New(0), mempool.NewAccountant(0))
	b.Enter(func(view []byte) {
		require.Panics(t, func() { AliasGC(view) })
	})
}

func TestEnterScopedAccess(t *testing.T) {
	initTestAlloc(t)

	b := FromString("scoped")
	var got []byte
	b.Enter(func(view []byte) {
		got = append(got, view...)
	})
	require.Equal(t, []byte("scoped"), got)
	b.Release()
}

func TestReleaseIsIdempotentOnHandle(t *testing.T) {
	acct := initTestAlloc(t)

	b := FromString("x")
	b.Release()
	b.Release() // cleared handle, no-op
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestMakeCap(t *testing.T) {
	initTestAlloc(t)

	b := MakeCap[byte](3, 10)
	require.Equal(t, 3, b.Len())
	require.GreaterOrEqual(t, b.Cap(), 10)
	require.Equal(t, []byte{0, 0, 0}, b.ToGC())
	b.Release()

	require.Panics(t, func() { MakeCap[byte](5, 3) })
	require.Panics(t, func() { MakeCap[byte](-1, 3) })
}

func TestMakeNoZero(t *testing.T) {
	acct := initTestAlloc(t)

	b := MakeNoZero(128, 256)
	require.Equal(t, 128, b.Len())
	require.GreaterOrEqual(t, b.Cap(), 256)
	b.Release()
	require.Equal(t, int64(0), acct.Stats().LiveBlocks)
}

func TestRefTraceDoesNotDisturbCounts(t *testing.T) {
	initTestAlloc(t)

	SetRefTrace(true)
	defer SetRefTrace(false)

	b := FromString("traced")
	c := b.Clone()
	require.Equal(t, 2, b.Refs())
	c.Release()
	require.Equal(t, 1, b.Refs())
	b.Release()
}
