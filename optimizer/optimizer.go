// Package optimizer runs a fixed pipeline of decode->transform->encode
// passes over a compiled bytecode.Module: constant folding, peephole
// cleanup, and dead-code elimination, each run in sequence until the
// pipeline stabilizes or a small iteration cap is hit.
package optimizer

import "github.com/atlas-lang/atlas/bytecode"

// Pass is a single optimization pass over a decoded instruction stream. It
// returns the transformed instruction list, the (possibly extended)
// constant pool, and whether it changed anything.
type Pass interface {
	Name() string
	Run(instrs []bytecode.Instruction, consts []bytecode.Const) ([]bytecode.Instruction, []bytecode.Const, bool)
}

// entryAware is implemented by passes that need to know where top-level
// execution begins (currently only DeadCode, which must treat the entry
// point as a reachability root alongside every function constant).
type entryAware interface {
	setEntryOffset(offset int)
}

// Stats accumulates how many times each named pass fired, across every
// iteration of the pipeline.
type Stats struct {
	PassRuns map[string]int
}

// maxIterations bounds the fixed-point loop so a pathological input can
// never hang the optimizer.
const maxIterations = 64

// Pipeline runs every pass in order, repeating the whole sequence until a
// full round makes no change or maxIterations is hit.
func Pipeline(passes []Pass) func(*bytecode.Module) (*bytecode.Module, Stats) {
	return func(mod *bytecode.Module) (*bytecode.Module, Stats) {
		instrs := bytecode.Decode(mod.Code)
		seedSpans(instrs, mod.Debug)
		consts := mod.Constants
		stats := Stats{PassRuns: map[string]int{}}

		for _, p := range passes {
			if ea, ok := p.(entryAware); ok {
				ea.setEntryOffset(mod.EntryOffset)
			}
		}

		for iter := 0; iter < maxIterations; iter++ {
			changedThisRound := false
			for _, p := range passes {
				next, nextConsts, changed := p.Run(instrs, consts)
				if changed {
					instrs = next
					consts = nextConsts
					stats.PassRuns[p.Name()]++
					changedThisRound = true
				}
			}
			if !changedThisRound {
				break
			}
		}

		instrs, newEntry := renumber(instrs, mod.EntryOffset)
		out := &bytecode.Module{
			Code:        bytecode.Encode(instrs),
			Constants:   consts,
			Debug:       rebuildDebug(instrs),
			EntryOffset: newEntry,
		}
		return out, stats
	}
}

func seedSpans(instrs []bytecode.Instruction, debug []bytecode.DebugSpan) {
	byOffset := make(map[int]int, len(debug)) // instruction offset -> span index
	for i, d := range debug {
		byOffset[d.Offset] = i
	}
	for i := range instrs {
		if si, ok := byOffset[instrs[i].Offset]; ok {
			instrs[i].Span = debug[si].Span
		}
	}
}

func rebuildDebug(instrs []bytecode.Instruction) []bytecode.DebugSpan {
	out := make([]bytecode.DebugSpan, 0, len(instrs))
	for _, ins := range instrs {
		out = append(out, bytecode.DebugSpan{Offset: ins.Offset, Span: ins.Span})
	}
	return out
}

// DefaultPasses returns the standard pipeline: constant folding, then
// peephole, then dead-code elimination, each run once per round, with
// rounds repeating until one changes nothing or the round limit is hit.
func DefaultPasses() []Pass {
	return []Pass{
		&ConstantFolding{},
		&Peephole{},
		&DeadCode{},
	}
}

// renumber recomputes each instruction's Offset/ByteSize after a pass has
// inserted or removed instructions, fixes every jump/loop operand via
// fixReferences, and remaps entryOffset (the module's original top-level
// entry point) to wherever that logical position ended up.
func renumber(instrs []bytecode.Instruction, entryOffset int) ([]bytecode.Instruction, int) {
	// Capture each instruction's offset before renumbering, keyed by its
	// position in the slice, so fixReferences can map old absolute jump
	// targets to new ones.
	oldOffsets := make([]int, len(instrs))
	for i, ins := range instrs {
		oldOffsets[i] = ins.Offset
	}

	pos := 0
	for i := range instrs {
		instrs[i].Offset = pos
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		pos += instrs[i].ByteSize
	}

	instrs = fixReferences(instrs, oldOffsets)
	newEntry := remapOffset(instrs, oldOffsets, entryOffset)
	return instrs, newEntry
}

// remapOffset finds the surviving instruction whose pre-renumber offset
// equals target, or the nearest surviving instruction at or after target if
// the exact instruction was removed, and returns its new offset.
func remapOffset(instrs []bytecode.Instruction, oldOffsets []int, target int) int {
	for i, off := range oldOffsets {
		if off == target {
			return instrs[i].Offset
		}
	}
	best := -1
	for i, off := range oldOffsets {
		if off >= target && (best == -1 || off < oldOffsets[best]) {
			best = i
		}
	}
	if best >= 0 {
		return instrs[best].Offset
	}
	return target
}

// fixReferences rewrites every jump/loop instruction's relative operand so
// it still targets the same logical destination after instructions were
// removed/reordered. oldOffsets[i] is instrs[i]'s offset before
// renumbering; we find which surviving instruction's old offset equals (or
// immediately follows) the jump's original absolute target, and point at
// that instruction's new offset instead.
func fixReferences(instrs []bytecode.Instruction, oldOffsets []int) []bytecode.Instruction {
	for i := range instrs {
		op := instrs[i].Op
		if op != bytecode.OpJump && op != bytecode.OpJumpIfFalse && op != bytecode.OpLoop {
			continue
		}
		oldSelf := oldOffsets[i]
		oldTarget := oldSelf + bytecode.ByteSize(op) + instrs[i].Operand
		newTarget := remapOffset(instrs, oldOffsets, oldTarget)
		instrs[i].Operand = newTarget - (instrs[i].Offset + instrs[i].ByteSize)
	}
	return instrs
}
