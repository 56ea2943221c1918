package optimizer

import "github.com/atlas-lang/atlas/bytecode"

// ConstantFolding folds Constant,Constant,BinOp and Constant,UnaryOp runs
// into a single pre-computed Constant/True/False instruction. It never
// folds division or modulo by zero, leaving those for the VM to raise at
// run time, and treats Bool equality/inequality as exact (no epsilon).
type ConstantFolding struct{}

func (*ConstantFolding) Name() string { return "constant_folding" }

func (p *ConstantFolding) Run(instrs []bytecode.Instruction, consts []bytecode.Const) ([]bytecode.Instruction, []bytecode.Const, bool) {
	changed := false
	out := make([]bytecode.Instruction, 0, len(instrs))
	newConsts := append([]bytecode.Const{}, consts...)

	i := 0
	for i < len(instrs) {
		if i+2 < len(instrs) && isConstPush(instrs[i]) && isConstPush(instrs[i+1]) && isFoldableBinary(instrs[i+2].Op) {
			folded, ok := foldBinary(instrs[i], instrs[i+1], instrs[i+2].Op, newConsts)
			if ok {
				span := instrs[i].Span.Join(instrs[i+2].Span)
				switch folded.Kind {
				case ConstBoolTrue:
					out = append(out, bytecode.Instruction{Op: bytecode.OpTrue, Offset: instrs[i].Offset, Span: span})
				case ConstBoolFalse:
					out = append(out, bytecode.Instruction{Op: bytecode.OpFalse, Offset: instrs[i].Offset, Span: span})
				default:
					idx := len(newConsts)
					newConsts = append(newConsts, folded)
					out = append(out, bytecode.Instruction{Op: bytecode.OpConstant, Operand: idx, Offset: instrs[i].Offset, Span: span})
				}
				i += 3
				changed = true
				continue
			}
		}
		if i+1 < len(instrs) && instrs[i].Op == bytecode.OpConstant && instrs[i+1].Op == bytecode.OpNegate {
			if c := newConsts[instrs[i].Operand]; c.Kind == bytecode.ConstNumber {
				idx := len(newConsts)
				newConsts = append(newConsts, bytecode.Const{Kind: bytecode.ConstNumber, Number: -c.Number})
				out = append(out, bytecode.Instruction{Op: bytecode.OpConstant, Operand: idx, Offset: instrs[i].Offset, Span: instrs[i].Span.Join(instrs[i+1].Span)})
				i += 2
				changed = true
				continue
			}
		}
		if i+1 < len(instrs) && instrs[i+1].Op == bytecode.OpNot {
			span := instrs[i].Span.Join(instrs[i+1].Span)
			switch instrs[i].Op {
			case bytecode.OpTrue:
				out = append(out, bytecode.Instruction{Op: bytecode.OpFalse, Offset: instrs[i].Offset, Span: span})
				i += 2
				changed = true
				continue
			case bytecode.OpFalse:
				out = append(out, bytecode.Instruction{Op: bytecode.OpTrue, Offset: instrs[i].Offset, Span: span})
				i += 2
				changed = true
				continue
			case bytecode.OpNull:
				// null is falsy: Not(null) == true
				out = append(out, bytecode.Instruction{Op: bytecode.OpTrue, Offset: instrs[i].Offset, Span: span})
				i += 2
				changed = true
				continue
			}
		}

		out = append(out, instrs[i])
		i++
	}

	return out, newConsts, changed
}

func isConstPush(ins bytecode.Instruction) bool {
	return ins.Op == bytecode.OpConstant || ins.Op == bytecode.OpTrue || ins.Op == bytecode.OpFalse
}

func isFoldableBinary(op bytecode.Op) bool {
	switch op {
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpEqual, bytecode.OpNotEqual,
		bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual:
		return true
	default:
		return false
	}
}

func boolOf(ins bytecode.Instruction) (bool, bool) {
	switch ins.Op {
	case bytecode.OpTrue:
		return true, true
	case bytecode.OpFalse:
		return false, true
	default:
		return false, false
	}
}

// foldBinary evaluates a binary op over two constant-push instructions,
// supporting Number x Number (all arithmetic/comparison ops) and Bool x
// Bool (Equal/NotEqual only). Division and modulo by zero are left
// unfolded so the VM raises its own runtime error.
func foldBinary(a, b bytecode.Instruction, op bytecode.Op, consts []bytecode.Const) (bytecode.Const, bool) {
	if ab, aok := boolOf(a); aok {
		bb, bok := boolOf(b)
		if !bok {
			return bytecode.Const{}, false
		}
		switch op {
		case bytecode.OpEqual:
			return boolConst(ab == bb), true
		case bytecode.OpNotEqual:
			return boolConst(ab != bb), true
		default:
			return bytecode.Const{}, false
		}
	}

	if a.Op != bytecode.OpConstant || b.Op != bytecode.OpConstant {
		return bytecode.Const{}, false
	}
	ca, cb := consts[a.Operand], consts[b.Operand]
	if ca.Kind != bytecode.ConstNumber || cb.Kind != bytecode.ConstNumber {
		return bytecode.Const{}, false
	}
	x, y := ca.Number, cb.Number

	switch op {
	case bytecode.OpAdd:
		return bytecode.Const{Kind: bytecode.ConstNumber, Number: x + y}, true
	case bytecode.OpSub:
		return bytecode.Const{Kind: bytecode.ConstNumber, Number: x - y}, true
	case bytecode.OpMul:
		return bytecode.Const{Kind: bytecode.ConstNumber, Number: x * y}, true
	case bytecode.OpDiv:
		if y == 0 {
			return bytecode.Const{}, false
		}
		return bytecode.Const{Kind: bytecode.ConstNumber, Number: x / y}, true
	case bytecode.OpMod:
		if y == 0 {
			return bytecode.Const{}, false
		}
		return bytecode.Const{Kind: bytecode.ConstNumber, Number: mod(x, y)}, true
	case bytecode.OpEqual:
		return boolConst(x == y), true
	case bytecode.OpNotEqual:
		return boolConst(x != y), true
	case bytecode.OpLess:
		return boolConst(x < y), true
	case bytecode.OpLessEqual:
		return boolConst(x <= y), true
	case bytecode.OpGreater:
		return boolConst(x > y), true
	case bytecode.OpGreaterEqual:
		return boolConst(x >= y), true
	default:
		return bytecode.Const{}, false
	}
}

func mod(x, y float64) float64 {
	r := x - y*float64(int64(x/y))
	return r
}

// boolConst returns a pseudo-constant used only to signal True/False to the
// caller; foldBinary's caller special-cases these by emitting True/False
// opcodes rather than a constant-pool entry, so callers must check Kind.
func boolConst(b bool) bytecode.Const {
	if b {
		return bytecode.Const{Kind: ConstBoolTrue}
	}
	return bytecode.Const{Kind: ConstBoolFalse}
}

// ConstBoolTrue/ConstBoolFalse are sentinel ConstKind values private to the
// folding pass, translated to OpTrue/OpFalse instructions rather than real
// constant-pool entries (Atlas's constant pool only holds numbers, strings,
// and functions).
const (
	ConstBoolTrue bytecode.ConstKind = 100 + iota
	ConstBoolFalse
)
