package interp

import (
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/jit"
	"github.com/atlas-lang/atlas/vm"
)

// jitProfiler wraps an optional inner vm.Profiler and feeds every OnCall
// into a jit.HotspotTracker, translating the called function's name to its
// bytecode entry offset (the tracker's key) via a name->offset index built
// fresh from each compiled Module's constant pool, since function offsets
// are only stable within one compile.
type jitProfiler struct {
	inner    vm.Profiler
	hotspots *jit.HotspotTracker
	offsets  map[string]int
	onHot    func(funcName string, entryOffset int)
}

func newJITProfiler(inner vm.Profiler, hotspots *jit.HotspotTracker, mod *bytecode.Module, onHot func(string, int)) *jitProfiler {
	offsets := map[string]int{}
	for _, c := range mod.Constants {
		if c.Kind == bytecode.ConstFunction {
			offsets[c.Func.Name] = c.Func.EntryOffset
		}
	}
	return &jitProfiler{inner: inner, hotspots: hotspots, offsets: offsets, onHot: onHot}
}

func (p *jitProfiler) OnInstruction(ip int, op bytecode.Op) {
	if p.inner != nil {
		p.inner.OnInstruction(ip, op)
	}
}

func (p *jitProfiler) OnCall(funcName string, frameDepth int) {
	if p.inner != nil {
		p.inner.OnCall(funcName, frameDepth)
	}
	off, ok := p.offsets[funcName]
	if !ok {
		return
	}
	if becameHot := p.hotspots.RecordCall(off); becameHot && p.onHot != nil {
		p.onHot(funcName, off)
	}
}

func (p *jitProfiler) OnReturn(frameDepth int) {
	if p.inner != nil {
		p.inner.OnReturn(frameDepth)
	}
}
