// Copyright 2020 lesismal. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mempool

import (
	"encoding/json"
	"runtime"
	"sync/atomic"

	"github.com/rawmem/membuf/logging"
)

// DefaultCollectThreshold is the cumulative allocation volume after which an
// Accountant proactively requests a collection pass.
const DefaultCollectThreshold = 32 << 20

// Source is the allocation surface an Accountant drives; *Pool implements it.
type Source interface {
	Malloc(size int) ([]byte, Backend)
	Free(buf []byte, be Backend)
}

var _ Source = (*Pool)(nil)

// Accountant tracks live unmanaged memory and cooperates with the garbage
// collector: a failed allocation triggers a collection pass and exactly one
// retry, and cumulative allocation beyond the threshold triggers a pass
// proactively. Construct one per accounting domain; tests should use a fresh
// Accountant so counters start from a clean baseline.
type Accountant struct {
	collectThreshold int64
	collect          func()

	liveBytes    atomic.Int64
	peakBytes    atomic.Int64
	liveBlocks   atomic.Int64
	totalAllocs  atomic.Int64
	sinceCollect atomic.Int64
}

// NewAccountant creates an Accountant. collectThreshold <= 0 selects
// DefaultCollectThreshold. The collection trigger defaults to runtime.GC.
func NewAccountant(collectThreshold int64) *Accountant {
	if collectThreshold <= 0 {
		collectThreshold = DefaultCollectThreshold
	}
	return &Accountant{
		collectThreshold: collectThreshold,
		collect:          runtime.GC,
	}
}

// DefaultAccountant is the accounting domain used when none is injected.
var DefaultAccountant = NewAccountant(DefaultCollectThreshold)

// SetCollectFunc replaces the collection trigger, for tests.
func (a *Accountant) SetCollectFunc(fn func()) {
	if fn != nil {
		a.collect = fn
	}
}

// Alloc obtains a block from src. On exhaustion it requests a collection
// pass and retries exactly once; a second failure is fatal.
func (a *Accountant) Alloc(src Source, size int) ([]byte, Backend) {
	buf, be := src.Malloc(size)
	if buf == nil {
		a.collect()
		a.sinceCollect.Store(0)
		buf, be = src.Malloc(size)
		if buf == nil {
			logging.Error("mempool: out of memory: %d bytes unsatisfiable after collection", size)
			panic("mempool: out of memory")
		}
	}
	a.recordAlloc(int64(cap(buf)))
	return buf, be
}

// Dealloc returns a block to src and updates the counters.
func (a *Accountant) Dealloc(src Source, buf []byte, be Backend) {
	n := int64(cap(buf))
	src.Free(buf, be)
	a.recordFree(n)
}

func (a *Accountant) recordAlloc(n int64) {
	a.totalAllocs.Add(1)
	a.liveBlocks.Add(1)
	curr := a.liveBytes.Add(n)
	for {
		peak := a.peakBytes.Load()
		if curr <= peak || a.peakBytes.CompareAndSwap(peak, curr) {
			break
		}
	}
	if a.sinceCollect.Add(n) >= a.collectThreshold {
		a.sinceCollect.Store(0)
		a.collect()
	}
}

func (a *Accountant) recordFree(n int64) {
	if a.liveBlocks.Add(-1) < 0 {
		fatalf("mempool: block freed twice or freed in the wrong accounting domain")
	}
	if a.liveBytes.Add(-n) < 0 {
		fatalf("mempool: freed more bytes than allocated")
	}
}

// Stats is a counter snapshot.
type Stats struct {
	LiveBytes   int64
	PeakBytes   int64
	LiveBlocks  int64
	TotalAllocs int64
}

// Stats returns the current counters.
func (a *Accountant) Stats() Stats {
	return Stats{
		LiveBytes:   a.liveBytes.Load(),
		PeakBytes:   a.peakBytes.Load(),
		LiveBlocks:  a.liveBlocks.Load(),
		TotalAllocs: a.totalAllocs.Load(),
	}
}

// String .
func (a *Accountant) String() string {
	b, err := json.Marshal(a.Stats())
	if err != nil {
		return ""
	}
	return string(b)
}

// ReportLeaks logs outstanding blocks, for shutdown diagnostics and test
// harnesses. Returns the number of blocks still live.
func (a *Accountant) ReportLeaks() int64 {
	blocks := a.liveBlocks.Load()
	if blocks > 0 {
		logging.Warn("mempool: %d unmanaged block(s) still live, %d bytes: %v",
			blocks, a.liveBytes.Load(), a.String())
	}
	return blocks
}
