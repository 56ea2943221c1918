package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/position"
)

func sp(a, b int) position.Span { return position.NewSpan(a, b) }

func TestCompileArithmeticExpression(t *testing.T) {
	// 2 + 3 * 4; as a single expression statement
	prog := &ast.Program{Items: []ast.Item{
		&ast.ExprStmt{X: &ast.BinaryExpr{
			Op:   ast.OpAdd,
			Left: &ast.NumberLit{Value: 2, Sp: sp(0, 1)},
			Right: &ast.BinaryExpr{
				Op:    ast.OpMul,
				Left:  &ast.NumberLit{Value: 3, Sp: sp(4, 5)},
				Right: &ast.NumberLit{Value: 4, Sp: sp(8, 9)},
				Sp:    sp(4, 9),
			},
			Sp: sp(0, 9),
		}, Sp: sp(0, 9)},
	}}

	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	var ops []bytecode.Op
	for _, d := range decoded {
		ops = append(ops, d.Op)
	}
	require.Equal(t, []bytecode.Op{
		bytecode.OpConstant, bytecode.OpConstant, bytecode.OpConstant,
		bytecode.OpMul, bytecode.OpAdd, bytecode.OpPop, bytecode.OpHalt,
	}, ops)
	require.Len(t, mod.Constants, 3)
}

func TestCompileFunctionDeclImplicitReturn(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "f",
			Body: &ast.BlockStmt{Sp: sp(0, 1)},
			Sp:   sp(0, 10),
		},
	}}
	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	require.Equal(t, bytecode.OpNull, decoded[0].Op)
	require.Equal(t, bytecode.OpReturn, decoded[1].Op)
	require.Len(t, mod.Constants, 1)
	require.Equal(t, bytecode.ConstFunction, mod.Constants[0].Kind)
	require.Equal(t, "f", mod.Constants[0].Func.Name)
	require.Equal(t, 0, mod.Constants[0].Func.EntryOffset)
}

func TestCompileLogicalAndLeavesExactlyOneValue(t *testing.T) {
	// false && (1/0): the division must never execute, and the expression
	// must leave exactly one stack slot behind for the enclosing Pop.
	prog := &ast.Program{Items: []ast.Item{
		&ast.ExprStmt{X: &ast.BinaryExpr{
			Op:   ast.OpAnd,
			Left: &ast.BoolLit{Value: false, Sp: sp(0, 1)},
			Right: &ast.BinaryExpr{
				Op: ast.OpDiv, Left: &ast.NumberLit{Value: 1, Sp: sp(0, 1)},
				Right: &ast.NumberLit{Value: 0, Sp: sp(0, 1)}, Sp: sp(0, 1),
			},
			Sp: sp(0, 1),
		}, Sp: sp(0, 1)},
	}}
	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	require.Equal(t, bytecode.OpHalt, decoded[len(decoded)-1].Op)
	require.Equal(t, bytecode.OpPop, decoded[len(decoded)-2].Op)
}

func TestCompileLogicalOrShortCircuitsStackBalanced(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.ExprStmt{X: &ast.BinaryExpr{
			Op:   ast.OpOr,
			Left: &ast.BoolLit{Value: true, Sp: sp(0, 1)},
			Right: &ast.BinaryExpr{
				Op: ast.OpDiv, Left: &ast.NumberLit{Value: 1, Sp: sp(0, 1)},
				Right: &ast.NumberLit{Value: 0, Sp: sp(0, 1)}, Sp: sp(0, 1),
			},
			Sp: sp(0, 1),
		}, Sp: sp(0, 1)},
	}}
	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	require.Equal(t, bytecode.OpHalt, decoded[len(decoded)-1].Op)
	require.Equal(t, bytecode.OpPop, decoded[len(decoded)-2].Op)
}

func TestCompileCoalesceFallsBackOnNull(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.ExprStmt{X: &ast.BinaryExpr{
			Op:    ast.OpCoalesce,
			Left:  &ast.NullLit{Sp: sp(0, 1)},
			Right: &ast.NumberLit{Value: 7, Sp: sp(0, 1)},
			Sp:    sp(0, 1),
		}, Sp: sp(0, 1)},
	}}
	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	require.Equal(t, bytecode.OpHalt, decoded[len(decoded)-1].Op)
	require.Equal(t, bytecode.OpPop, decoded[len(decoded)-2].Op)
}

func TestCompileWhileLoopJumpsBackward(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "loop",
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.WhileStmt{
					Cond: &ast.BoolLit{Value: true, Sp: sp(0, 1)},
					Body: &ast.BlockStmt{Sp: sp(0, 1)},
					Sp:   sp(0, 5),
				},
			}, Sp: sp(0, 6)},
			Sp: sp(0, 6),
		},
	}}
	mod := Compile(prog)
	decoded := bytecode.Decode(mod.Code)
	var sawLoop bool
	for _, d := range decoded {
		if d.Op == bytecode.OpLoop {
			sawLoop = true
			require.Less(t, d.Operand, 0)
		}
	}
	require.True(t, sawLoop)
}
