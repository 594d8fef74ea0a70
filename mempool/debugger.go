package mempool

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

type sizeStats struct {
	MallocCount int64
	FreeCount   int64
	NeedFree    int64
}

// debugger collects per-size malloc/free counters when enabled. Enabling it
// also turns on poisoning of freed blocks.
type debugger struct {
	mux         sync.Mutex
	on          atomic.Bool
	MallocCount int64
	FreeCount   int64
	NeedFree    int64
	SizeMap     map[int]*sizeStats
}

// SetDebug .
func (d *debugger) SetDebug(dbg bool) {
	d.on.Store(dbg)
}

func (d *debugger) poisoning() bool {
	return d.on.Load()
}

func (d *debugger) onMalloc(size int) {
	if d.on.Load() {
		d.onMallocSlow(size)
	}
}

func (d *debugger) onMallocSlow(size int) {
	atomic.AddInt64(&d.MallocCount, 1)
	atomic.AddInt64(&d.NeedFree, 1)
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.SizeMap == nil {
		d.SizeMap = map[int]*sizeStats{}
	}
	if v, ok := d.SizeMap[size]; ok {
		v.MallocCount++
		v.NeedFree++
	} else {
		d.SizeMap[size] = &sizeStats{MallocCount: 1, NeedFree: 1}
	}
}

func (d *debugger) onFree(size int) {
	if d.on.Load() {
		d.onFreeSlow(size)
	}
}

func (d *debugger) onFreeSlow(size int) {
	atomic.AddInt64(&d.FreeCount, 1)
	atomic.AddInt64(&d.NeedFree, -1)
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.SizeMap == nil {
		d.SizeMap = map[int]*sizeStats{}
	}
	if v, ok := d.SizeMap[size]; ok {
		v.FreeCount++
		v.NeedFree--
	} else {
		d.SizeMap[size] = &sizeStats{FreeCount: 1, NeedFree: -1}
	}
}

// String .
func (d *debugger) String() string {
	if !d.on.Load() {
		return ""
	}
	d.mux.Lock()
	defer d.mux.Unlock()
	b, err := json.Marshal(struct {
		MallocCount int64
		FreeCount   int64
		NeedFree    int64
		SizeMap     map[int]*sizeStats
	}{
		MallocCount: atomic.LoadInt64(&d.MallocCount),
		FreeCount:   atomic.LoadInt64(&d.FreeCount),
		NeedFree:    atomic.LoadInt64(&d.NeedFree),
		SizeMap:     d.SizeMap,
	})
	if err != nil {
		return ""
	}
	return string(b)
}
