package vm

import (
	"context"
	"fmt"

	"github.com/atlas-lang/atlas/bytecode"
)

// Profiler receives near-zero-cost hooks from the VM's dispatch loop. A nil
// Profiler (the default) means every hook call below is a single
// nil-pointer test, matching the "VM without a debugger/profiler incurs no
// checks beyond a null test" discipline.
type Profiler interface {
	OnInstruction(ip int, op bytecode.Op)
	OnCall(funcName string, frameDepth int)
	OnReturn(frameDepth int)
}

// Debugger receives a hook before every instruction executes. A nil
// Debugger costs one nil check per instruction.
type Debugger interface {
	// BeforeInstruction reports whether execution should pause at ip. Run
	// does not suspend on a true result: it goes on to execute ip, so any
	// pause is whatever the hook itself does before returning.
	BeforeInstruction(ip int, frameDepth int) bool
}

// OwnershipError reports a move-after-move or borrow-after-move violation.
type OwnershipError struct {
	Message string
}

func (e *OwnershipError) Error() string { return e.Message }

// RuntimeError wraps any other VM-detected failure (division by zero,
// type mismatch at a dynamic operation, stack underflow).
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }

// Machine is one VM instance: its own value stack, call-frame stack,
// globals, and constant pool, executing a single bytecode.Module.
// Machine instances share no mutable state, matching the "multiple engines
// run concurrently with no shared state" concurrency model.
type Machine struct {
	Module  *bytecode.Module
	Globals map[string]Value
	stack   []Value
	frames  []*Frame

	Profiler Profiler
	Debugger Debugger

	// IsCopy reports whether a value's static type is a Copy type, wired in
	// by the embedder/checker since the VM itself has no static type
	// information at a given ip; nil means "treat everything as Copy"
	// (ownership checks are then effectively disabled, e.g. for a freshly
	// decoded module run outside the checker).
	IsCopy func(v Value) bool
}

// New creates a Machine ready to execute mod from its entry offset.
func New(mod *bytecode.Module) *Machine {
	return &Machine{
		Module:  mod,
		Globals: map[string]Value{},
		IsCopy:  defaultIsCopy,
	}
}

func defaultIsCopy(v Value) bool {
	switch v.Kind {
	case KindNumber, KindString, KindBool, KindNull, KindArray:
		return true
	default:
		return false
	}
}

func (m *Machine) push(v Value) { m.stack = append(m.stack, v) }

func (m *Machine) pop() Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) peek() Value { return m.stack[len(m.stack)-1] }

func (m *Machine) currentFrame() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// Run executes the module from its entry offset until Halt, an explicit top-level
// Return, ctx cancellation, or a runtime error. It returns the last popped
// top-level value (the script's result, per the "let x=...; x" scenario)
// and any error encountered.
func (m *Machine) Run(ctx context.Context) (Value, error) {
	ip := m.Module.EntryOffset
	code := m.Module.Code
	var last Value = Null

	// Top-level script code addresses its own let-bindings as locals the
	// same way a function body does, so it needs a frame too; a top-level
	// Return pops it and jumps to its ReturnTo of -1, which ends the loop
	// just as Halt does. Callers that seed their own frame (unit tests driving a
	// hand-built module) skip this.
	if len(m.frames) == 0 {
		m.frames = append(m.frames, NewFrame(0, -1, "<script>", nil))
	}

	for ip < len(code) {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		default:
		}

		if m.Debugger != nil && m.Debugger.BeforeInstruction(ip, len(m.frames)) {
			// Run does not suspend on a pause request; execution goes on
			// with this instruction.
		}

		op := bytecode.Op(code[ip])
		width := bytecode.OperandWidth(op)
		operand := decodeOperand(code, ip, op)

		if m.Profiler != nil {
			m.Profiler.OnInstruction(ip, op)
		}

		next := ip + 1 + width
		newIP, v, err := m.exec(ctx, ip, next, op, operand)
		if err != nil {
			return last, err
		}
		// Only Pop and top-level Return produce a meaningful "script result"
		// value; every other opcode's exec return is a placeholder Null that
		// must not clobber the last real value (notably OpHalt, which
		// Compile always emits as the final instruction and would otherwise
		// reset the result to Null right before Run returns).
		if op == bytecode.OpPop || op == bytecode.OpReturn {
			last = v
		}
		ip = newIP
		if op == bytecode.OpHalt || ip < 0 {
			break
		}
	}
	return last, nil
}

func decodeOperand(code []byte, ip int, op bytecode.Op) int {
	width := bytecode.OperandWidth(op)
	switch width {
	case 1:
		return int(code[ip+1])
	case 2:
		hi, lo := code[ip+1], code[ip+2]
		v := int(int16(uint16(hi)<<8 | uint16(lo)))
		return v
	default:
		return 0
	}
}

// exec executes a single decoded instruction and returns the next ip, the
// most recently popped top-level value (for script-result reporting), and
// any error.
func (m *Machine) exec(ctx context.Context, ip, next int, op bytecode.Op, operand int) (int, Value, error) {
	switch op {
	case bytecode.OpConstant:
		m.push(constToValue(m.Module.Constants[operand]))
	case bytecode.OpNull:
		m.push(Null)
	case bytecode.OpTrue:
		m.push(Bool(true))
	case bytecode.OpFalse:
		m.push(Bool(false))
	case bytecode.OpPop:
		return next, m.pop(), nil
	case bytecode.OpDup:
		m.push(m.peek())

	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpEqual, bytecode.OpNotEqual, bytecode.OpLess, bytecode.OpLessEqual,
		bytecode.OpGreater, bytecode.OpGreaterEqual:
		b := m.pop()
		a := m.pop()
		v, err := binaryOp(op, a, b)
		if err != nil {
			return next, Null, err
		}
		m.push(v)

	case bytecode.OpNegate:
		a := m.pop()
		if a.Kind != KindNumber {
			return next, Null, &RuntimeError{Message: "cannot negate non-number value"}
		}
		m.push(Number(-a.Number))
	case bytecode.OpNot:
		a := m.pop()
		m.push(Bool(!a.IsTruthy()))

	case bytecode.OpGetLocal:
		f := m.currentFrame()
		if f.isMoved(operand) {
			return next, Null, &OwnershipError{Message: "use of moved value"}
		}
		m.push(f.get(operand))
	case bytecode.OpSetLocal:
		f := m.currentFrame()
		f.set(operand, m.peek())
	case bytecode.OpGetGlobal:
		name := m.Module.Constants[operand].Str
		v, ok := m.Globals[name]
		if !ok {
			return next, Null, &RuntimeError{Message: fmt.Sprintf("undefined global `%s`", name)}
		}
		m.push(v)
	case bytecode.OpSetGlobal:
		name := m.Module.Constants[operand].Str
		m.Globals[name] = m.peek()
	case bytecode.OpGetUpvalue:
		f := m.currentFrame()
		m.push(f.Upvalues[operand].Value)
	case bytecode.OpSetUpvalue:
		f := m.currentFrame()
		f.Upvalues[operand].Value = m.peek()
	case bytecode.OpCloseUpvalue:
		// no-op in this slot-based model: upvalues are captured by
		// reference into Cell at closure-creation time, not closed lazily.

	case bytecode.OpJump:
		return jumpTarget(ip, op, operand), Null, nil
	case bytecode.OpLoop:
		return jumpTarget(ip, op, operand), Null, nil
	case bytecode.OpJumpIfFalse:
		cond := m.pop()
		if !cond.IsTruthy() {
			return jumpTarget(ip, op, operand), Null, nil
		}

	case bytecode.OpCall:
		return m.call(ctx, next, operand)
	case bytecode.OpReturn:
		v := m.pop()
		if len(m.frames) == 0 {
			return next, v, nil
		}
		f := m.frames[len(m.frames)-1]
		m.frames = m.frames[:len(m.frames)-1]
		if m.Profiler != nil {
			m.Profiler.OnReturn(len(m.frames))
		}
		m.push(v)
		return f.ReturnTo, v, nil
	case bytecode.OpHalt:
		return next, Null, nil

	case bytecode.OpArray:
		elems := make([]Value, operand)
		for i := operand - 1; i >= 0; i-- {
			elems[i] = m.pop()
		}
		m.push(Value{Kind: KindArray, Array: NewArray(elems)})
	case bytecode.OpIndex:
		idx := m.pop()
		target := m.pop()
		if target.Kind != KindArray || idx.Kind != KindNumber {
			return next, Null, &RuntimeError{Message: "invalid index operation"}
		}
		i := int(idx.Number)
		if i < 0 || i >= target.Array.Len() {
			return next, Null, &RuntimeError{Message: "array index out of bounds"}
		}
		m.push(target.Array.At(i))
	case bytecode.OpSetIndex:
		val := m.pop()
		idx := m.pop()
		target := m.pop()
		if target.Kind != KindArray || idx.Kind != KindNumber {
			return next, Null, &RuntimeError{Message: "invalid index operation"}
		}
		arr := target.Array.Mutate()
		arr.Set(int(idx.Number), val)
		m.push(Value{Kind: KindArray, Array: arr})

	case bytecode.OpGetField:
		name := m.Module.Constants[operand].Str
		target := m.pop()
		if target.Kind != KindRecord {
			return next, Null, &RuntimeError{Message: "cannot access field on non-record value"}
		}
		m.push(target.Record.Fields[name])
	case bytecode.OpSetField:
		name := m.Module.Constants[operand].Str
		val := m.pop()
		target := m.pop()
		if target.Kind != KindRecord {
			return next, Null, &RuntimeError{Message: "cannot access field on non-record value"}
		}
		target.Record.Fields[name] = val
		m.push(target)

	case bytecode.OpMakeClosure:
		c := m.Module.Constants[operand]
		m.push(Value{Kind: KindFunction, Func: &FunctionValue{
			Name: c.Func.Name, EntryOffset: c.Func.EntryOffset, ParamCount: c.Func.ParamCount,
		}})

	case bytecode.OpOwnMove:
		v := m.pop()
		if operand >= 0 && m.IsCopy != nil && !m.IsCopy(v) {
			f := m.currentFrame()
			if f.isMoved(operand) {
				return next, Null, &OwnershipError{Message: "use of moved value"}
			}
			f.markMoved(operand)
		}
		m.push(v)
	case bytecode.OpOwnBorrow:
		// borrowing never marks the source moved; the checker enforces the
		// no-mutation-through-a-shared-borrow rule statically, so the VM has
		// nothing further to verify at this level.

	case bytecode.OpOwnShared:
		v := m.peek()
		if v.Kind != KindShared {
			name := "argument"
			if operand >= 0 {
				name = m.Module.Constants[operand].Str
			}
			return next, Null, &OwnershipError{
				Message: fmt.Sprintf("ownership violation: %s requires a shared-reference value, found a plain binding", name),
			}
		}

	case bytecode.OpMakeShared:
		v := m.pop()
		m.push(Value{Kind: KindShared, Shared: &Cell{Value: v}})

	default:
		return next, Null, &RuntimeError{Message: fmt.Sprintf("unknown opcode %s", op)}
	}
	return next, Null, nil
}

func jumpTarget(ip int, op bytecode.Op, operand int) int {
	return ip + bytecode.ByteSize(op) + operand
}

func constToValue(c bytecode.Const) Value {
	switch c.Kind {
	case bytecode.ConstNumber:
		return Number(c.Number)
	case bytecode.ConstString:
		return String(c.Str)
	case bytecode.ConstFunction:
		return Value{Kind: KindFunction, Func: &FunctionValue{
			Name: c.Func.Name, EntryOffset: c.Func.EntryOffset, ParamCount: c.Func.ParamCount,
		}}
	default:
		return Null
	}
}

func binaryOp(op bytecode.Op, a, b Value) (Value, error) {
	switch op {
	case bytecode.OpEqual:
		return Bool(valuesEqual(a, b)), nil
	case bytecode.OpNotEqual:
		return Bool(!valuesEqual(a, b)), nil
	}
	if a.Kind == KindString && b.Kind == KindString {
		switch op {
		case bytecode.OpAdd:
			return String(a.Str + b.Str), nil
		case bytecode.OpLess:
			return Bool(a.Str < b.Str), nil
		case bytecode.OpLessEqual:
			return Bool(a.Str <= b.Str), nil
		case bytecode.OpGreater:
			return Bool(a.Str > b.Str), nil
		case bytecode.OpGreaterEqual:
			return Bool(a.Str >= b.Str), nil
		}
	}
	if a.Kind != KindNumber || b.Kind != KindNumber {
		return Null, &RuntimeError{Message: "operands must be numbers"}
	}
	switch op {
	case bytecode.OpAdd:
		return Number(a.Number + b.Number), nil
	case bytecode.OpSub:
		return Number(a.Number - b.Number), nil
	case bytecode.OpMul:
		return Number(a.Number * b.Number), nil
	case bytecode.OpDiv:
		if b.Number == 0 {
			return Null, &RuntimeError{Message: "division by zero"}
		}
		return Number(a.Number / b.Number), nil
	case bytecode.OpMod:
		if b.Number == 0 {
			return Null, &RuntimeError{Message: "modulo by zero"}
		}
		return Number(mod(a.Number, b.Number)), nil
	case bytecode.OpLess:
		return Bool(a.Number < b.Number), nil
	case bytecode.OpLessEqual:
		return Bool(a.Number <= b.Number), nil
	case bytecode.OpGreater:
		return Bool(a.Number > b.Number), nil
	case bytecode.OpGreaterEqual:
		return Bool(a.Number >= b.Number), nil
	default:
		return Null, &RuntimeError{Message: "unsupported binary operator"}
	}
}

func mod(x, y float64) float64 {
	r := x
	for r >= y {
		r -= y
	}
	for r < 0 {
		r += y
	}
	return r
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindNumber:
		return a.Number == b.Number
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	default:
		return a.Array == b.Array && a.Record == b.Record && a.Func == b.Func
	}
}

func (m *Machine) call(ctx context.Context, next int, argc int) (int, Value, error) {
	args := make([]Value, argc)
	for i := argc - 1; i >= 0; i-- {
		args[i] = m.pop()
	}
	callee := m.pop()

	switch callee.Kind {
	case KindNative:
		v, err := callee.Native.Fn(args)
		if err != nil {
			return next, Null, &RuntimeError{Message: err.Error()}
		}
		m.push(v)
		return next, Null, nil
	case KindFunction:
		f := NewFrame(len(args), next, callee.Func.Name, callee.Func.Upvalues)
		for i, a := range args {
			f.set(i, a)
		}
		m.frames = append(m.frames, f)
		if m.Profiler != nil {
			m.Profiler.OnCall(callee.Func.Name, len(m.frames))
		}
		return callee.Func.EntryOffset, Null, nil
	default:
		return next, Null, &RuntimeError{Message: "value is not callable"}
	}
}

// RegisterNative installs a host function under name in the global
// namespace, exactly the surface §4.10's register_function exposes to
// embedders.
func (m *Machine) RegisterNative(name string, fn NativeFunc) {
	m.Globals[name] = Value{Kind: KindNative, Native: &NativeValue{Name: name, Fn: fn}}
}

// RegisterExtern installs an intrinsic container/host value under name,
// the same registration path as RegisterNative (§4.7: container
// intrinsics are exposed as named symbols rather than VM opcode special
// cases).
func (m *Machine) RegisterExtern(name string, kind ExternKind, payload interface{}) {
	m.Globals[name] = Value{Kind: KindExtern, Extern: &ExternValue{Kind: kind, Payload: payload}}
}
