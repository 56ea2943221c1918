// Package bytecode defines Atlas's stack-based instruction set, constant
// pool, and module container, plus big-endian encode/decode of the
// instruction stream.
package bytecode

// Op is a single bytecode opcode.
type Op byte

const (
	OpConstant Op = iota // u16 constant pool index
	OpNull
	OpTrue
	OpFalse
	OpPop
	OpDup

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNegate
	OpNot
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual

	OpGetLocal  // u16 slot
	OpSetLocal  // u16 slot
	OpGetGlobal // u16 constant pool index (name)
	OpSetGlobal // u16 constant pool index (name)
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue

	OpJump         // i16 relative offset
	OpJumpIfFalse  // i16 relative offset
	OpLoop         // i16 relative offset (backward)

	OpCall      // u8 arg count
	OpReturn
	OpHalt

	OpArray    // u16 element count
	OpIndex
	OpSetIndex

	OpGetField // u16 constant pool index (field name)
	OpSetField // u16 constant pool index (field name)

	OpMakeClosure // u16 constant pool index (function constant)

	OpOwnMove   // i16 source local slot, or -1 if the moved value has no tracked slot
	OpOwnBorrow // i16 source local slot, or -1 if the borrowed value has no tracked slot
	OpOwnShared // i16 constant pool index of the parameter name, or -1 if unknown
	OpMakeShared // wraps the top-of-stack value in a shared-reference cell
)

var opNames = map[Op]string{
	OpConstant: "CONSTANT", OpNull: "NULL", OpTrue: "TRUE", OpFalse: "FALSE",
	OpPop: "POP", OpDup: "DUP",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD",
	OpNegate: "NEGATE", OpNot: "NOT",
	OpEqual: "EQUAL", OpNotEqual: "NOT_EQUAL",
	OpLess: "LESS", OpLessEqual: "LESS_EQUAL",
	OpGreater: "GREATER", OpGreaterEqual: "GREATER_EQUAL",
	OpGetLocal: "GET_LOCAL", OpSetLocal: "SET_LOCAL",
	OpGetGlobal: "GET_GLOBAL", OpSetGlobal: "SET_GLOBAL",
	OpGetUpvalue: "GET_UPVALUE", OpSetUpvalue: "SET_UPVALUE", OpCloseUpvalue: "CLOSE_UPVALUE",
	OpJump: "JUMP", OpJumpIfFalse: "JUMP_IF_FALSE", OpLoop: "LOOP",
	OpCall: "CALL", OpReturn: "RETURN", OpHalt: "HALT",
	OpArray: "ARRAY", OpIndex: "INDEX", OpSetIndex: "SET_INDEX",
	OpGetField: "GET_FIELD", OpSetField: "SET_FIELD",
	OpMakeClosure: "MAKE_CLOSURE",
	OpOwnMove:     "OWN_MOVE", OpOwnBorrow: "OWN_BORROW",
	OpOwnShared:   "OWN_SHARED", OpMakeShared: "MAKE_SHARED",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

// OperandWidth returns the number of operand bytes that follow the opcode
// byte for op (0 for opcodes with no operand).
func OperandWidth(op Op) int {
	switch op {
	case OpConstant, OpGetLocal, OpSetLocal, OpGetGlobal, OpSetGlobal,
		OpGetUpvalue, OpSetUpvalue, OpArray, OpGetField, OpSetField, OpMakeClosure,
		OpOwnMove, OpOwnBorrow, OpOwnShared:
		return 2
	case OpJump, OpJumpIfFalse, OpLoop:
		return 2
	case OpCall:
		return 1
	default:
		return 0
	}
}
