package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/atlas-lang/atlas/position"
)

// ConstKind discriminates the constant pool's value union.
type ConstKind int

const (
	ConstNumber ConstKind = iota
	ConstString
	ConstFunction
)

// Function is a compiled function constant: its name (for diagnostics and
// the JIT's boundary scan), parameter count, and entry offset into the
// owning Module's Code.
type Function struct {
	Name          string
	ParamCount    int
	EntryOffset   int
	UpvalueCount  int
}

// Const is one entry in a Module's constant pool.
type Const struct {
	Kind   ConstKind
	Number float64
	Str    string
	Func   Function
}

// DebugSpan maps a single instruction's byte offset in Code to the source
// span it was compiled from.
type DebugSpan struct {
	Offset int
	Span   position.Span
}

// Module is a fully compiled, optionally optimized, bytecode unit: the
// flat instruction stream, its constant pool, and an offset-to-span debug
// table consumed by the debugger's source map.
type Module struct {
	Code      []byte
	Constants []Const
	Debug     []DebugSpan
	// EntryOffset is where execution of top-level code begins. Compile sets
	// it just past the last function body (0 only when there are no
	// functions).
	EntryOffset int
}

// SpanFor returns the span registered for exactly offset, if any (exact
// lookup; the debugger's SourceMap does the "closest preceding" search).
func (m *Module) SpanFor(offset int) (position.Span, bool) {
	for _, d := range m.Debug {
		if d.Offset == offset {
			return d.Span, true
		}
	}
	return position.Span{}, false
}

// Instruction is one decoded bytecode instruction: its opcode, operand (if
// any), and original byte offset and size, used by the optimizer passes
// which need to reason about jump targets and byte sizes. Span is not part
// of the encoded byte format; it is threaded through by the optimizer
// pipeline (seeded from the module's DebugSpan table) so passes that
// drop/merge instructions keep debug information in sync without a
// separate offset-matching pass.
type Instruction struct {
	Op       Op
	Operand  int
	Offset   int
	ByteSize int
	Span     position.Span
}

// Decode decodes every instruction in code into a flat, offset-ordered
// list.
func Decode(code []byte) []Instruction {
	var out []Instruction
	i := 0
	for i < len(code) {
		op := Op(code[i])
		width := OperandWidth(op)
		operand := 0
		switch width {
		case 1:
			operand = int(code[i+1])
		case 2:
			operand = int(int16(binary.BigEndian.Uint16(code[i+1 : i+3])))
		}
		size := 1 + width
		out = append(out, Instruction{Op: op, Operand: operand, Offset: i, ByteSize: size})
		i += size
	}
	return out
}

// Encode re-serializes a decoded instruction list back into a byte stream,
// in order. Instructions with 2-byte operands that encode signed jump
// offsets are written as int16; unsigned index operands should fit in
// int16's positive range (constant pool / local slot counts are bounded
// well under that in practice).
func Encode(instrs []Instruction) []byte {
	var buf []byte
	for _, ins := range instrs {
		buf = append(buf, byte(ins.Op))
		switch OperandWidth(ins.Op) {
		case 1:
			buf = append(buf, byte(ins.Operand))
		case 2:
			var tmp [2]byte
			binary.BigEndian.PutUint16(tmp[:], uint16(int16(ins.Operand)))
			buf = append(buf, tmp[:]...)
		}
	}
	return buf
}

// ByteSize returns 1 + the operand width for op.
func ByteSize(op Op) int {
	return 1 + OperandWidth(op)
}

// String renders a single decoded instruction, for disassembly/debugging.
func (ins Instruction) String() string {
	if OperandWidth(ins.Op) == 0 {
		return fmt.Sprintf("%04d %s", ins.Offset, ins.Op)
	}
	return fmt.Sprintf("%04d %s %d", ins.Offset, ins.Op, ins.Operand)
}
