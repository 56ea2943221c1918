package optimizer

import "github.com/atlas-lang/atlas/bytecode"

// Peephole removes small local redundancies: Dup,Pop cancels to nothing;
// Not,Not cancels to nothing; a Jump with relative offset 0 is a no-op;
// and a Jump/JumpIfFalse whose target is itself an unconditional Jump is
// rewritten to jump straight to the final target (jump threading), guarded
// against rewriting into an infinite self-loop.
//
// Pop,Pop is deliberately NOT folded to a no-op: collapsing two pops could
// remove a side effect the first Pop was evaluated for.
type Peephole struct{}

func (*Peephole) Name() string { return "peephole" }

func (p *Peephole) Run(instrs []bytecode.Instruction, consts []bytecode.Const) ([]bytecode.Instruction, []bytecode.Const, bool) {
	changed := false
	out := make([]bytecode.Instruction, 0, len(instrs))

	i := 0
	for i < len(instrs) {
		if i+1 < len(instrs) {
			a, b := instrs[i], instrs[i+1]
			if a.Op == bytecode.OpDup && b.Op == bytecode.OpPop {
				i += 2
				changed = true
				continue
			}
			if a.Op == bytecode.OpNot && b.Op == bytecode.OpNot {
				i += 2
				changed = true
				continue
			}
		}

		if (instrs[i].Op == bytecode.OpJump) && instrs[i].Operand == 0 {
			i++
			changed = true
			continue
		}

		if instrs[i].Op == bytecode.OpJump || instrs[i].Op == bytecode.OpJumpIfFalse {
			if newOperand, ok := threadJump(instrs, i); ok {
				instrs[i].Operand = newOperand
				changed = true
			}
		}

		out = append(out, instrs[i])
		i++
	}

	return out, consts, changed
}

// threadJump follows a chain of Jump instructions starting at the target of
// instrs[i], returning a rewritten operand that points directly at the
// final non-Jump destination. It refuses to rewrite into a cycle that would
// make the jump target itself (an infinite self-loop).
func threadJump(instrs []bytecode.Instruction, i int) (int, bool) {
	self := instrs[i]
	selfAbsTarget := self.Offset + bytecode.ByteSize(self.Op) + self.Operand

	target := findInstructionAt(instrs, selfAbsTarget)
	if target == nil || target.Op != bytecode.OpJump {
		return 0, false
	}

	finalAbsTarget := target.Offset + bytecode.ByteSize(target.Op) + target.Operand
	if finalAbsTarget == self.Offset {
		return 0, false
	}

	newOperand := finalAbsTarget - (self.Offset + bytecode.ByteSize(self.Op))
	if newOperand == self.Operand {
		return 0, false
	}
	return newOperand, true
}

func findInstructionAt(instrs []bytecode.Instruction, offset int) *bytecode.Instruction {
	for i := range instrs {
		if instrs[i].Offset == offset {
			return &instrs[i]
		}
	}
	return nil
}
