package binder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/position"
)

func sp(a, b int) position.Span { return position.NewSpan(a, b) }

func TestBindResolvesLetAndUse(t *testing.T) {
	xIdent := &ast.Ident{Name: "x", Sp: sp(20, 21)}
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "main",
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.LetStmt{Name: "x", Value: &ast.NumberLit{Value: 1, Sp: sp(10, 11)}, Sp: sp(0, 12)},
				&ast.ExprStmt{X: xIdent, Sp: sp(20, 21)},
			}, Sp: sp(0, 30)},
			Sp: sp(0, 30),
		},
	}}

	b := New("<input>")
	res := b.Bind(prog)
	require.Empty(t, res.Diags)
	sym, ok := res.Resolved[xIdent]
	require.True(t, ok)
	require.Equal(t, "x", sym.Name)
}

func TestBindUndefinedIdentifier(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "main",
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ExprStmt{X: &ast.Ident{Name: "missing", Sp: sp(0, 7)}, Sp: sp(0, 7)},
			}, Sp: sp(0, 8)},
			Sp: sp(0, 8),
		},
	}}
	res := New("<input>").Bind(prog)
	require.Len(t, res.Diags, 1)
	require.Equal(t, codeUndefinedIdent, res.Diags[0].Code)
}

func TestBindDuplicateTopLevel(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{Name: "f", Body: &ast.BlockStmt{Sp: sp(0, 1)}, Sp: sp(0, 5)},
		&ast.FuncDecl{Name: "f", Body: &ast.BlockStmt{Sp: sp(10, 11)}, Sp: sp(10, 15)},
	}}
	res := New("<input>").Bind(prog)
	require.Len(t, res.Diags, 1)
	require.Equal(t, codeDuplicateDef, res.Diags[0].Code)
}

func TestBindUnusedVariableWarning(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "main",
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.LetStmt{Name: "unused", Value: &ast.NumberLit{Value: 1, Sp: sp(0, 1)}, Sp: sp(0, 10)},
			}, Sp: sp(0, 11)},
			Sp: sp(0, 11),
		},
	}}
	res := New("<input>").Bind(prog)
	require.Len(t, res.Diags, 1)
	require.Equal(t, codeUnusedSymbol, res.Diags[0].Code)
}

func TestBindUnreachableCodeWarning(t *testing.T) {
	prog := &ast.Program{Items: []ast.Item{
		&ast.FuncDecl{
			Name: "main",
			Body: &ast.BlockStmt{Stmts: []ast.Stmt{
				&ast.ReturnStmt{Sp: sp(0, 6)},
				&ast.ExprStmt{X: &ast.NumberLit{Value: 1, Sp: sp(10, 11)}, Sp: sp(10, 11)},
			}, Sp: sp(0, 12)},
			Sp: sp(0, 12),
		},
	}}
	res := New("<input>").Bind(prog)
	require.Len(t, res.Diags, 1)
	require.Equal(t, codeUnreachableCode, res.Diags[0].Code)
}
