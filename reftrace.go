package membuf

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/rawmem/membuf/logging"
)

// refTraceOn gates the deep-debug reference-count log. Off by default; the
// per-event stack capture is far too expensive for production.
var refTraceOn atomic.Bool

// SetRefTrace toggles logging of every retain/release with the caller's
// stack, for chasing unmanaged-memory lifetime bugs.
func SetRefTrace(on bool) {
	refTraceOn.Store(on)
}

func traceRef(op string, m *memory) {
	if !refTraceOn.Load() {
		return
	}
	logging.Debug("membuf: %s block=%p refs=%d size=%d cap=%d backend=%v\n%s",
		op, m, m.refs, m.size, m.capacity(), m.backend, refStack())
}

func refStack() string {
	var sb strings.Builder
	for i := 3; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "\t%d [file: %s] [func: %s] [line: %d]\n", i-2, file, runtime.FuncForPC(pc).Name(), line)
	}
	return sb.String()
}
