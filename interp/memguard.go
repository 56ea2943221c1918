package interp

import (
	"context"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/vm"
)

// The approxBytes* constants estimate the host memory an opcode's dynamic allocation
// costs, used only to approximate RuntimeConfig.MaxMemoryBytes; per §4.10
// the limit is advisory, not a precise accounting of VM memory.
const (
	approxBytesArrayElem   = 16
	approxBytesClosure     = 64
	approxBytesRecordField = 16
)

// memoryGuard wraps an optional inner vm.Profiler, tallying an approximate
// byte cost for every dispatched instruction and cancelling cancel once the
// running total crosses limit. It exists because neither vm.Profiler nor
// vm.Debugger can abort Machine.Run directly; cancelling the context it was
// given is observed on the very next ctx.Done() check in the dispatch loop.
type memoryGuard struct {
	inner   vm.Profiler
	limit   uint64
	cancel  context.CancelFunc
	used    uint64
	tripped bool
}

func newMemoryGuard(inner vm.Profiler, limit uint64, cancel context.CancelFunc) *memoryGuard {
	return &memoryGuard{inner: inner, limit: limit, cancel: cancel}
}

func (g *memoryGuard) OnInstruction(ip int, op bytecode.Op) {
	if g.inner != nil {
		g.inner.OnInstruction(ip, op)
	}
	switch op {
	case bytecode.OpArray:
		g.used += approxBytesArrayElem
	case bytecode.OpMakeClosure:
		g.used += approxBytesClosure
	case bytecode.OpSetField:
		g.used += approxBytesRecordField
	}
	if !g.tripped && g.used > g.limit {
		g.tripped = true
		g.cancel()
	}
}

func (g *memoryGuard) OnCall(funcName string, frameDepth int) {
	if g.inner != nil {
		g.inner.OnCall(funcName, frameDepth)
	}
}

func (g *memoryGuard) OnReturn(frameDepth int) {
	if g.inner != nil {
		g.inner.OnReturn(frameDepth)
	}
}
