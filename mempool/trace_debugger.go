package mempool

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// TraceDebugger wraps a Source and tracks every live block's base pointer
// together with the stack that allocated it. Double frees, frees of foreign
// memory and overlapping allocations abort the process with both stacks
// printed; lifetime bugs in unmanaged memory are not recoverable conditions.
type TraceDebugger struct {
	mux     sync.Mutex
	src     Source
	alloced map[uintptr]string // block base address -> allocating stack
}

// NewTraceDebugger .
func NewTraceDebugger(src Source) *TraceDebugger {
	return &TraceDebugger{
		src:     src,
		alloced: map[uintptr]string{},
	}
}

// Malloc .
func (td *TraceDebugger) Malloc(size int) ([]byte, Backend) {
	td.mux.Lock()
	defer td.mux.Unlock()

	buf, be := td.src.Malloc(size)
	if buf == nil {
		return nil, be
	}
	ptr := bytesPointer(buf)
	if prev, ok := td.alloced[ptr]; ok {
		traceFatal(fmt.Sprintf("malloc returned block %#x which is already tracked as live", ptr), prev)
	}
	td.alloced[ptr] = callerStack()
	return buf, be
}

// Free .
func (td *TraceDebugger) Free(buf []byte, be Backend) {
	td.mux.Lock()
	defer td.mux.Unlock()

	if cap(buf) == 0 {
		traceFatal("free of block with cap 0", "")
	}
	ptr := bytesPointer(buf)
	if _, ok := td.alloced[ptr]; !ok {
		traceFatal(fmt.Sprintf("free of block %#x which was not allocated here, or was already freed", ptr), "")
	}
	delete(td.alloced, ptr)
	td.src.Free(buf, be)
}

// Live returns the number of blocks allocated through the debugger and not
// yet freed.
func (td *TraceDebugger) Live() int {
	td.mux.Lock()
	defer td.mux.Unlock()
	return len(td.alloced)
}

// LiveStacks returns the allocating stack of every live block, for leak
// reports at the end of a test.
func (td *TraceDebugger) LiveStacks() []string {
	td.mux.Lock()
	defer td.mux.Unlock()
	stacks := make([]string, 0, len(td.alloced))
	for _, s := range td.alloced {
		stacks = append(stacks, s)
	}
	return stacks
}

func callerStack() string {
	var sb strings.Builder
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "\t%d [file: %s] [func: %s] [line: %d]\n", i-1, file, runtime.FuncForPC(pc).Name(), line)
	}
	return sb.String()
}

func traceFatal(info, prevStack string) {
	if prevStack == "" {
		prevStack = "nil"
	}
	fmt.Fprintf(os.Stderr, `
-------------------------------------------
[mempool trace] %v ->

previous stack:
%v
-------------------------------------------

current stack:
%v
-------------------------------------------

`, info, prevStack, callerStack())
	os.Exit(-1)
}

func bytesPointer(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
