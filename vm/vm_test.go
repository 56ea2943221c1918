package vm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/compiler"
	"github.com/atlas-lang/atlas/parser"
)

func compileSource(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	p := parser.New(src, "<test>")
	prog, diags := p.Parse()
	require.Empty(t, diags)
	return compiler.Compile(prog)
}

func TestArithmeticExpressionEvaluatesToFourteen(t *testing.T) {
	mod := compileSource(t, "let x: number = 2 + 3 * 4; x;")
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindNumber, result.Kind)
	require.Equal(t, float64(14), result.Number)
}

func TestStringConcatenation(t *testing.T) {
	mod := compileSource(t, `let greeting: string = "hello" + " " + "world"; greeting;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello world", result.Str)
}

func TestWhileLoopAccumulates(t *testing.T) {
	mod := compileSource(t, `
		let i: number = 0;
		let total: number = 0;
		while i < 5 {
			total = total + i;
			i = i + 1;
		}
		total;
	`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(10), result.Number)
}

func TestFunctionCallReturnsValue(t *testing.T) {
	mod := compileSource(t, `
		fn add(a: number, b: number) -> number {
			return a + b;
		}
		add(4, 5);
	`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(9), result.Number)
}

func TestLogicalAndShortCircuits(t *testing.T) {
	mod := compileSource(t, `let x: bool = false && (1 / 0 > 0); x;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindBool, result.Kind)
	require.False(t, result.Bool)
}

func TestLogicalOrShortCircuits(t *testing.T) {
	mod := compileSource(t, `let x: bool = true || (1 / 0 > 0); x;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Bool)
}

func TestLogicalAndEvaluatesRightWhenLeftTruthy(t *testing.T) {
	mod := compileSource(t, `let x: bool = true && false; x;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Bool)
}

func TestCoalesceFallsBackOnNull(t *testing.T) {
	mod := compileSource(t, `let x: number = null ?? 7; x;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(7), result.Number)
}

func TestCoalesceKeepsNonNullLeft(t *testing.T) {
	mod := compileSource(t, `let x: number = 3 ?? 7; x;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(3), result.Number)
}

func TestArrayElementAssignmentMutatesBinding(t *testing.T) {
	mod := compileSource(t, `
		let xs: [number] = [1, 2, 3];
		xs[1] = 99;
		xs[1];
	`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(99), result.Number)
}

func TestArrayIndexAndCOWMutation(t *testing.T) {
	a := NewArray([]Value{Number(1), Number(2), Number(3)})
	b := a.Retain() // simulate a second owner sharing the backing store
	require.Same(t, a, b)

	mutated := b.Mutate()
	mutated.Set(0, Number(99))

	require.Equal(t, float64(99), mutated.At(0).Number)
	// original array is unaffected since Mutate() cloned while refs > 1
	require.Equal(t, float64(1), a.At(0).Number)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	mod := compileSource(t, "let x: number = 1 / 0; x;")
	m := New(mod)
	_, err := m.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "division by zero")
}

func TestOwnershipViolationUseAfterMove(t *testing.T) {
	// own x moves the local out (marking its slot moved); referencing x a
	// second time must be flagged since records are not a Copy type.
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpOwnMove, Operand: 0},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpHalt},
	}
	pos := 0
	for i := range instrs {
		instrs[i].Offset = pos
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		pos += instrs[i].ByteSize
	}
	mod := &bytecode.Module{Code: bytecode.Encode(instrs)}

	m := New(mod)
	m.IsCopy = func(v Value) bool { return v.Kind != KindRecord } // only records are non-Copy here
	f := NewFrame(1, 0, "<script>", nil)
	f.set(0, Value{Kind: KindRecord, Record: &RecordValue{TypeName: "Widget", Fields: map[string]Value{}}})
	m.frames = append(m.frames, f)

	_, err := m.Run(context.Background())
	require.Error(t, err)
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.Contains(t, ownErr.Error(), "use of moved value")
	require.True(t, f.isMoved(0))
}

func TestOwnershipBorrowDoesNotMarkMoved(t *testing.T) {
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpOwnBorrow, Operand: 0},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpHalt},
	}
	pos := 0
	for i := range instrs {
		instrs[i].Offset = pos
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		pos += instrs[i].ByteSize
	}
	mod := &bytecode.Module{Code: bytecode.Encode(instrs)}

	m := New(mod)
	m.IsCopy = func(v Value) bool { return v.Kind != KindRecord }
	f := NewFrame(1, 0, "<script>", nil)
	f.set(0, Value{Kind: KindRecord, Record: &RecordValue{TypeName: "Widget", Fields: map[string]Value{}}})
	m.frames = append(m.frames, f)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	require.False(t, f.isMoved(0))
}

func TestOwnershipSharedRejectsPlainBinding(t *testing.T) {
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpOwnShared, Operand: -1},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpHalt},
	}
	pos := 0
	for i := range instrs {
		instrs[i].Offset = pos
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		pos += instrs[i].ByteSize
	}
	mod := &bytecode.Module{Code: bytecode.Encode(instrs)}

	m := New(mod)
	f := NewFrame(1, 0, "<script>", nil)
	f.set(0, Number(5)) // a plain binding, never wrapped via OpMakeShared
	m.frames = append(m.frames, f)

	_, err := m.Run(context.Background())
	require.Error(t, err)
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.Contains(t, ownErr.Error(), "ownership violation")
}

func TestOwnershipSharedAcceptsSharedValue(t *testing.T) {
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpOwnShared, Operand: -1},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpHalt},
	}
	pos := 0
	for i := range instrs {
		instrs[i].Offset = pos
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		pos += instrs[i].ByteSize
	}
	mod := &bytecode.Module{Code: bytecode.Encode(instrs)}

	m := New(mod)
	f := NewFrame(1, 0, "<script>", nil)
	f.set(0, Value{Kind: KindShared, Shared: &Cell{Value: Number(5)}})
	m.frames = append(m.frames, f)

	_, err := m.Run(context.Background())
	require.NoError(t, err)
}

func TestMakeSharedWrapsValue(t *testing.T) {
	mod := compileSource(t, `let shared y = 5; y;`)
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindShared, result.Kind)
	require.Equal(t, float64(5), result.Shared.Value.Number)
}

func TestSharedParameterRejectsPlainArgument(t *testing.T) {
	mod := compileSource(t, `
		fn useShared(shared x: number) -> number {
			return x;
		}
		let plain = 5;
		useShared(shared plain);
	`)
	m := New(mod)
	_, err := m.Run(context.Background())
	require.Error(t, err)
	var ownErr *OwnershipError
	require.ErrorAs(t, err, &ownErr)
	require.Contains(t, ownErr.Error(), "ownership violation")
	require.Contains(t, ownErr.Error(), "x")
}

func TestSharedParameterAcceptsSharedBinding(t *testing.T) {
	mod := compileSource(t, `
		fn useShared(shared x: number) -> number {
			return 1;
		}
		let shared boxed = 5;
		useShared(shared boxed);
	`)
	m := New(mod)
	_, err := m.Run(context.Background())
	require.NoError(t, err)
}

func TestContextCancellationStopsExecution(t *testing.T) {
	mod := compileSource(t, `
		let i: number = 0;
		while i < 1000000 {
			i = i + 1;
		}
		i;
	`)
	m := New(mod)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunResultSurvivesTrailingHalt(t *testing.T) {
	// Compile always appends an OpHalt after the script's last statement;
	// executing it must not reset the reported result back to null.
	mod := compileSource(t, "let x: number = 41 + 1; x;")
	m := New(mod)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, KindNumber, result.Kind)
	require.Equal(t, float64(42), result.Number)
}

func TestTruthinessRule(t *testing.T) {
	require.True(t, Number(0).IsTruthy())
	require.True(t, String("").IsTruthy())
	require.False(t, Null.IsTruthy())
	require.False(t, Bool(false).IsTruthy())
}

func TestRegisterNativeFunction(t *testing.T) {
	mod := compileSource(t, `double(21);`)
	m := New(mod)
	m.RegisterNative("double", func(args []Value) (Value, error) {
		return Number(args[0].Number * 2), nil
	})
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, float64(42), result.Number)
}
