package optimizer

import (
	"sort"

	"github.com/atlas-lang/atlas/bytecode"
)

// DeadCode removes instructions unreachable by BFS from the module's
// top-level entry point and from every function constant's entry offset
// (functions are called indirectly through the constant pool, so their
// entries must be seeded as additional roots). Jump/Loop have only their
// jump target as a successor (no fallthrough); JumpIfFalse has both the
// jump target and the fallthrough; Return/Halt have no successors; every
// other opcode falls through to the next instruction only.
type DeadCode struct {
	entryOffset int
}

func (*DeadCode) Name() string { return "dead_code" }

func (p *DeadCode) setEntryOffset(offset int) { p.entryOffset = offset }

func (p *DeadCode) Run(instrs []bytecode.Instruction, consts []bytecode.Const) ([]bytecode.Instruction, []bytecode.Const, bool) {
	roots := []int{p.entryOffset}
	for _, c := range consts {
		if c.Kind == bytecode.ConstFunction {
			roots = append(roots, c.Func.EntryOffset)
		}
	}

	reachable := make(map[int]bool, len(instrs))
	queue := append([]int{}, roots...)
	for len(queue) > 0 {
		offset := queue[0]
		queue = queue[1:]
		// instrs stay in ascending offset order; an offset whose instruction
		// an earlier pass removed resolves to the next surviving one.
		idx := sort.Search(len(instrs), func(i int) bool { return instrs[i].Offset >= offset })
		if idx == len(instrs) || reachable[instrs[idx].Offset] {
			continue
		}
		reachable[instrs[idx].Offset] = true
		ins := instrs[idx]
		for _, succ := range successors(ins) {
			if !reachable[succ] {
				queue = append(queue, succ)
			}
		}
	}

	out := make([]bytecode.Instruction, 0, len(instrs))
	changed := false
	for _, ins := range instrs {
		if reachable[ins.Offset] {
			out = append(out, ins)
		} else {
			changed = true
		}
	}
	return out, consts, changed
}

func successors(ins bytecode.Instruction) []int {
	fallthrough_ := ins.Offset + bytecode.ByteSize(ins.Op)
	switch ins.Op {
	case bytecode.OpJump, bytecode.OpLoop:
		return []int{ins.Offset + bytecode.ByteSize(ins.Op) + ins.Operand}
	case bytecode.OpJumpIfFalse:
		return []int{ins.Offset + bytecode.ByteSize(ins.Op) + ins.Operand, fallthrough_}
	case bytecode.OpReturn, bytecode.OpHalt:
		return nil
	default:
		return []int{fallthrough_}
	}
}
