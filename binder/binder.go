package binder

import (
	"fmt"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/types"
)

const (
	codeUnusedSymbol      = "AT2001"
	codeUndefinedIdent    = "AT2002"
	codeDuplicateDef      = "AT2003"
	codeUnreachableCode   = "AT2004"
)

// Result is the output of binding a program: the populated global scope,
// a per-Ident symbol resolution table, and every diagnostic raised along
// the way.
type Result struct {
	Global    *Scope
	Resolved  map[*ast.Ident]*Symbol
	Diags     []diag.Diagnostic
}

// Binder performs the two-pass hoist-then-resolve binding of a single
// program. Pass one declares every top-level item in the global scope so
// forward references between functions/structs work regardless of
// declaration order; pass two walks every scope resolving identifiers.
type Binder struct {
	file    string
	global  *Scope
	diags   []diag.Diagnostic
	resolve map[*ast.Ident]*Symbol
}

// New creates a Binder that will attribute diagnostics to file.
func New(file string) *Binder {
	return &Binder{
		file:    file,
		global:  NewScope(nil),
		resolve: map[*ast.Ident]*Symbol{},
	}
}

// Bind runs both passes over prog and returns the result.
func (b *Binder) Bind(prog *ast.Program) Result {
	b.hoist(prog)
	for _, item := range prog.Items {
		b.resolveItem(item, b.global)
	}
	b.checkUnused(b.global)
	return Result{Global: b.global, Resolved: b.resolve, Diags: b.diags}
}

func (b *Binder) emit(d diag.Diagnostic) {
	b.diags = append(b.diags, d.WithFile(b.file))
}

func (b *Binder) define(scope *Scope, sym *Symbol) {
	if prev, exists := scope.Define(sym); exists {
		b.emit(diag.Error(codeDuplicateDef,
			fmt.Sprintf("duplicate definition of `%s`", sym.Name), sym.Span).
			WithRelated(diag.RelatedLocation{
				File:    b.file,
				Message: "first defined here",
			}))
		_ = prev
	}
}

// hoist declares every top-level function, struct, trait, and import in the
// global scope before any bodies are resolved, so mutual/forward references
// work.
func (b *Binder) hoist(prog *ast.Program) {
	for _, item := range prog.Items {
		switch it := item.(type) {
		case *ast.FuncDecl:
			b.define(b.global, &Symbol{
				Name: it.Name, Kind: SymFunc, Span: it.Span(), Exported: it.Export,
				Type: funcDeclType(it),
			})
		case *ast.StructDecl:
			fields := map[string]*types.Type{}
			for _, f := range it.Fields {
				fields[f.Name] = types.UnknownT
			}
			b.define(b.global, &Symbol{
				Name: it.Name, Kind: SymStruct, Span: it.Span(), Exported: it.Export,
				Type: types.NewRecord(it.Name, fields),
			})
		case *ast.TraitDecl:
			b.define(b.global, &Symbol{
				Name: it.Name, Kind: SymTrait, Span: it.Span(), Exported: it.Export,
			})
		case *ast.ImportDecl:
			for _, spec := range it.Specifiers {
				name := spec.Name
				if spec.Alias != "" {
					name = spec.Alias
				}
				b.define(b.global, &Symbol{Name: name, Kind: SymImport, Span: it.Span()})
			}
		}
	}
}

func funcDeclType(f *ast.FuncDecl) *types.Type {
	params := make([]*types.Type, len(f.Params))
	for i := range f.Params {
		params[i] = types.UnknownT
	}
	return types.NewFunction(params, types.UnknownT)
}

func (b *Binder) resolveItem(item ast.Item, scope *Scope) {
	switch it := item.(type) {
	case *ast.FuncDecl:
		fnScope := NewScope(scope)
		for _, p := range it.Params {
			b.define(fnScope, &Symbol{Name: p.Name, Kind: SymParam, Span: p.Sp})
		}
		b.resolveBlock(it.Body, fnScope)
		b.checkUnreachable(it.Body.Stmts)
	case *ast.ImplDecl:
		for _, m := range it.Methods {
			b.resolveItem(m, scope)
		}
	default:
		// Everything else is a top-level (script) statement: StructDecl,
		// TraitDecl, and ImportDecl need no per-item resolution pass beyond
		// hoist, and every Stmt variant resolves directly into scope.
		if stmt, ok := item.(ast.Stmt); ok {
			b.resolveStmt(stmt, scope)
		}
	}
}

func (b *Binder) resolveBlock(block *ast.BlockStmt, scope *Scope) {
	inner := NewScope(scope)
	for _, s := range block.Stmts {
		b.resolveStmt(s, inner)
	}
	b.checkUnused(inner)
}

func (b *Binder) resolveStmt(stmt ast.Stmt, scope *Scope) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		if s.Value != nil {
			b.resolveExpr(s.Value, scope)
		}
		kind := SymVar
		if s.Const {
			kind = SymConst
		}
		b.define(scope, &Symbol{Name: s.Name, Kind: kind, Span: s.Sp})
	case *ast.ExprStmt:
		b.resolveExpr(s.X, scope)
	case *ast.ReturnStmt:
		if s.Value != nil {
			b.resolveExpr(s.Value, scope)
		}
	case *ast.IfStmt:
		b.resolveExpr(s.Cond, scope)
		b.resolveBlock(s.Then, scope)
		if s.Else != nil {
			b.resolveStmt(s.Else, scope)
		}
	case *ast.WhileStmt:
		b.resolveExpr(s.Cond, scope)
		b.resolveBlock(s.Body, scope)
	case *ast.ForStmt:
		b.resolveExpr(s.Iter, scope)
		inner := NewScope(scope)
		b.define(inner, &Symbol{Name: s.Binding, Kind: SymVar, Span: s.Sp})
		for _, st := range s.Body.Stmts {
			b.resolveStmt(st, inner)
		}
		b.checkUnused(inner)
	case *ast.BlockStmt:
		b.resolveBlock(s, scope)
	case *ast.BreakStmt, *ast.ContinueStmt:
		// no identifiers to resolve
	}
}

func (b *Binder) resolveExpr(expr ast.Expr, scope *Scope) {
	switch e := expr.(type) {
	case *ast.Ident:
		sym, ok := scope.Lookup(e.Name)
		if !ok {
			b.emit(diag.Error(codeUndefinedIdent,
				fmt.Sprintf("undefined identifier `%s`", e.Name), e.Sp))
			return
		}
		sym.Used = true
		b.resolve[e] = sym
	case *ast.BinaryExpr:
		b.resolveExpr(e.Left, scope)
		b.resolveExpr(e.Right, scope)
	case *ast.UnaryExpr:
		b.resolveExpr(e.Operand, scope)
	case *ast.AssignExpr:
		b.resolveExpr(e.Target, scope)
		b.resolveExpr(e.Value, scope)
	case *ast.CallExpr:
		b.resolveExpr(e.Callee, scope)
		for _, a := range e.Args {
			b.resolveExpr(a, scope)
		}
	case *ast.IndexExpr:
		b.resolveExpr(e.Target, scope)
		b.resolveExpr(e.Index, scope)
	case *ast.FieldExpr:
		b.resolveExpr(e.Target, scope)
	case *ast.OwnershipExpr:
		b.resolveExpr(e.Target, scope)
	case *ast.ArrayLit:
		for _, el := range e.Elements {
			b.resolveExpr(el, scope)
		}
	case *ast.FuncExpr:
		inner := NewScope(scope)
		for _, p := range e.Params {
			b.define(inner, &Symbol{Name: p.Name, Kind: SymParam, Span: p.Sp})
		}
		for _, st := range e.Body.Stmts {
			b.resolveStmt(st, inner)
		}
		b.checkUnused(inner)
	}
}

// checkUnused emits AT2001 warnings for every symbol defined in scope that
// was never referenced. Exported top-level symbols and function/struct/
// trait declarations are never flagged as unused — only let/const bindings
// and parameters are, matching the spec's "local bindings never read" rule.
func (b *Binder) checkUnused(scope *Scope) {
	for _, sym := range scope.All() {
		if sym.Used || sym.Exported {
			continue
		}
		if sym.Kind != SymVar && sym.Kind != SymConst && sym.Kind != SymParam {
			continue
		}
		b.emit(diag.Warning(codeUnusedSymbol,
			fmt.Sprintf("unused variable `%s`", sym.Name), sym.Span))
	}
}

// checkUnreachable emits AT2004 warnings for statements following a
// terminal return/break/continue within the same block.
func (b *Binder) checkUnreachable(stmts []ast.Stmt) {
	terminated := false
	for _, s := range stmts {
		if terminated {
			b.emit(diag.Warning(codeUnreachableCode, "unreachable code", s.Span()))
			break
		}
		switch s.(type) {
		case *ast.ReturnStmt, *ast.BreakStmt, *ast.ContinueStmt:
			terminated = true
		}
	}
}
