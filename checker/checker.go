// Package checker implements Atlas's bidirectional type checker: inference
// for unannotated bindings, structural checking against declared
// annotations, control-flow return analysis, trait/impl conformance, and
// narrowing across guard expressions (§4.4).
package checker

import (
	"fmt"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/position"
	"github.com/atlas-lang/atlas/types"
)

const (
	codeReturnMismatch   = "AT3001"
	codeNullMisuse       = "AT3002"
	codeImmutableAssign  = "AT3003"
	codeMissingReturn    = "AT3004"
	codeUnknownMethod    = "AT3010"
	codeDuplicateImpl    = "AT3031"
	codeBuiltinTraitRedef = "AT3032"
	codeImplMissingMethod = "AT3033"
	codeImplSignature     = "AT3034"
	codeTraitNotImplemented = "AT3035"
	codeTraitBoundFailed    = "AT3037"
)

// funcSig is a declared function's checked signature.
type funcSig struct {
	params []*types.Type
	ret    *types.Type
}

// binding is a single checked variable's inferred/declared type plus
// mutability, tracked in a scope chain independent of the binder's own
// symbol table (the checker needs narrowing to mutate a binding's type
// in place across a branch, which the binder's Symbol does not model).
type binding struct {
	typ      *types.Type
	mutable  bool
	declSpan position.Span
	hasSpan  bool
}

type env struct {
	parent *env
	vars   map[string]*binding
}

func newEnv(parent *env) *env { return &env{parent: parent, vars: map[string]*binding{}} }

func (e *env) define(name string, b *binding) { e.vars[name] = b }

func (e *env) lookup(name string) (*binding, bool) {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// Checker type-checks a single bound program, accumulating diagnostics
// without aborting on the first error, matching the binder's discipline.
type Checker struct {
	file    string
	diags   []diag.Diagnostic
	traits  *types.Registry
	funcs   map[string]*funcSig
	structs map[string]*types.Type
}

// New creates a Checker that attributes diagnostics to file, pre-populated
// with the built-in Copy trait.
func New(file string) *Checker {
	return &Checker{
		file:    file,
		traits:  types.NewRegistry(),
		funcs:   map[string]*funcSig{},
		structs: map[string]*types.Type{},
	}
}

// Registry exposes the trait/impl registry built while checking, so an
// embedder (or the VM's IsCopy hook) can consult it afterwards.
func (c *Checker) Registry() *types.Registry { return c.traits }

func (c *Checker) emit(d diag.Diagnostic) {
	c.diags = append(c.diags, d.WithFile(c.file))
}

// Check runs every checker pass over prog and returns accumulated
// diagnostics.
func (c *Checker) Check(prog *ast.Program) []diag.Diagnostic {
	c.collectDecls(prog)
	c.checkImpls(prog)

	top := newEnv(nil)
	for _, item := range prog.Items {
		switch it := item.(type) {
		case *ast.FuncDecl:
			c.checkFunc(it, top)
		default:
			if stmt, ok := item.(ast.Stmt); ok {
				c.checkStmt(stmt, top)
			}
		}
	}
	return c.diags
}

// collectDecls registers every function signature, struct, and trait
// declared anywhere in prog so forward references (including recursive and
// mutually recursive calls) resolve during body checking, mirroring the
// binder's hoist pass.
func (c *Checker) collectDecls(prog *ast.Program) {
	for _, item := range prog.Items {
		switch it := item.(type) {
		case *ast.FuncDecl:
			c.funcs[it.Name] = c.funcSigOf(it)
		case *ast.StructDecl:
			fields := map[string]*types.Type{}
			for _, f := range it.Fields {
				fields[f.Name] = c.resolveTypeExpr(f.Type)
			}
			c.structs[it.Name] = types.NewRecord(it.Name, fields)
		case *ast.TraitDecl:
			if it.Name == "Copy" {
				c.emit(diag.Error(codeBuiltinTraitRedef,
					"cannot redefine built-in trait `Copy`", it.Sp))
				continue
			}
			methods := make([]types.TraitMethodSig, 0, len(it.Methods))
			for _, m := range it.Methods {
				methods = append(methods, types.TraitMethodSig{
					Name:   m.Name,
					Params: c.resolveParams(m.Params),
					Ret:    c.resolveTypeExpr(m.Ret),
				})
			}
			c.traits.DefineTrait(&types.Trait{Name: it.Name, Methods: methods})
		}
	}
}

func (c *Checker) funcSigOf(fn *ast.FuncDecl) *funcSig {
	return &funcSig{params: c.resolveParams(fn.Params), ret: c.resolveTypeExpr(fn.Ret)}
}

func (c *Checker) resolveParams(params []ast.Param) []*types.Type {
	out := make([]*types.Type, len(params))
	for i, p := range params {
		out[i] = c.resolveTypeExpr(p.Type)
	}
	return out
}

// resolveTypeExpr converts parsed (unresolved) type syntax into a checked
// types.Type. A nil TypeExpr (no annotation) resolves to Unknown, which
// inference then narrows from the initializer.
func (c *Checker) resolveTypeExpr(te ast.TypeExpr) *types.Type {
	switch t := te.(type) {
	case nil:
		return types.UnknownT
	case *ast.NamedType:
		switch t.Name {
		case "number":
			return types.NumberT
		case "string":
			return types.StringT
		case "bool":
			return types.BoolT
		case "void":
			return types.VoidT
		case "null":
			return types.NullT
		}
		if len(t.Args) > 0 {
			args := make([]*types.Type, len(t.Args))
			for i, a := range t.Args {
				args[i] = c.resolveTypeExpr(a)
			}
			return &types.Type{Kind: types.Generic, Name: t.Name, TypeArgs: args}
		}
		if st, ok := c.structs[t.Name]; ok {
			return st
		}
		if _, ok := c.traits.Trait(t.Name); ok {
			return &types.Type{Kind: types.TypeParameter, Name: t.Name}
		}
		return types.NewExtern(t.Name)
	case *ast.ArrayType:
		return types.NewArray(c.resolveTypeExpr(t.Elem))
	case *ast.FunctionType:
		params := make([]*types.Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = c.resolveTypeExpr(p)
		}
		return types.NewFunction(params, c.resolveTypeExpr(t.Ret))
	case *ast.UnionType:
		members := make([]*types.Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = c.resolveTypeExpr(m)
		}
		return types.NewUnion(members...)
	default:
		return types.UnknownT
	}
}

// checkImpls validates every impl block: duplicate (trait, type) impls,
// and — for trait impls — that every required method is present with an
// identical signature (extra methods are allowed per §4.4).
func (c *Checker) checkImpls(prog *ast.Program) {
	seen := map[string]bool{} // "trait|type" -> already impl'd
	for _, item := range prog.Items {
		impl, ok := item.(*ast.ImplDecl)
		if !ok {
			continue
		}
		methods := map[string]types.TraitMethodSig{}
		for _, m := range impl.Methods {
			methods[m.Name] = types.TraitMethodSig{
				Name: m.Name, Params: c.resolveParams(m.Params), Ret: c.resolveTypeExpr(m.Ret),
			}
		}
		if impl.Trait == "" {
			c.traits.AddInherentMethods(impl.Type, methods)
			continue
		}
		key := impl.Trait + "|" + impl.Type
		if seen[key] {
			c.emit(diag.Error(codeDuplicateImpl,
				fmt.Sprintf("duplicate impl of trait `%s` for type `%s`", impl.Trait, impl.Type), impl.Sp))
			continue
		}
		seen[key] = true
		c.traits.Implements(impl.Trait, impl.Type, methods)

		trait, ok := c.traits.Trait(impl.Trait)
		if !ok {
			continue
		}
		for _, required := range trait.Methods {
			got, ok := methods[required.Name]
			if !ok {
				c.emit(diag.Error(codeImplMissingMethod,
					fmt.Sprintf("impl of `%s` for `%s` is missing method `%s`", impl.Trait, impl.Type, required.Name),
					impl.Sp))
				continue
			}
			if !sigMatches(got, required) {
				c.emit(diag.Error(codeImplSignature,
					fmt.Sprintf("method `%s` on impl of `%s` for `%s` does not match the trait's signature",
						required.Name, impl.Trait, impl.Type), impl.Sp))
			}
		}
	}
}

func sigMatches(got, want types.TraitMethodSig) bool {
	if len(got.Params) != len(want.Params) {
		return false
	}
	for i := range got.Params {
		if !types.Equal(got.Params[i], want.Params[i]) {
			return false
		}
	}
	return types.Equal(got.Ret, want.Ret)
}

// checkFunc type-checks one function body against its declared return
// type, including the missing-return control-flow analysis.
func (c *Checker) checkFunc(fn *ast.FuncDecl, parent *env) {
	fnEnv := newEnv(parent)
	sig := c.funcs[fn.Name]
	for i, p := range fn.Params {
		fnEnv.define(p.Name, &binding{typ: sig.params[i], mutable: true})
	}
	c.checkBlock(fn.Body, fnEnv, sig.ret)

	if sig.ret.Kind != types.Void && sig.ret.Kind != types.Unknown && !alwaysReturns(fn.Body) {
		c.emit(diag.Error(codeMissingReturn,
			fmt.Sprintf("function `%s` is missing a return on some path (declared return type `%s`)", fn.Name, sig.ret),
			fn.Sp))
	}
}

// alwaysReturns implements §4.4's control-flow analysis: every path
// through a block must end in return, or an if/else where both branches
// return, for the block to count as always returning. break/continue end
// a path without "returning" for this analysis's purposes (loop exits are
// handled by the caller's fallthrough, not modeled as returning here).
func alwaysReturns(b *ast.BlockStmt) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	return stmtAlwaysReturns(b.Stmts[len(b.Stmts)-1])
}

func stmtAlwaysReturns(s ast.Stmt) bool {
	switch st := s.(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.IfStmt:
		if st.Else == nil {
			return false
		}
		thenReturns := alwaysReturns(st.Then)
		var elseReturns bool
		switch e := st.Else.(type) {
		case *ast.BlockStmt:
			elseReturns = alwaysReturns(e)
		default:
			elseReturns = stmtAlwaysReturns(e)
		}
		return thenReturns && elseReturns
	case *ast.BlockStmt:
		return alwaysReturns(st)
	default:
		return false
	}
}

func (c *Checker) checkBlock(b *ast.BlockStmt, parent *env, retType *types.Type) {
	inner := newEnv(parent)
	for _, s := range b.Stmts {
		c.checkStmt(s, inner, retType)
	}
}

// checkStmt accepts an optional retType (present only inside a function
// body) to validate return statements against the declared return type.
func (c *Checker) checkStmt(s ast.Stmt, e *env, retType ...*types.Type) {
	var ret *types.Type
	if len(retType) > 0 {
		ret = retType[0]
	}
	switch st := s.(type) {
	case *ast.LetStmt:
		var valType *types.Type = types.NullT
		if st.Value != nil {
			valType = c.inferExpr(st.Value, e)
		}
		declared := c.resolveTypeExpr(st.Type)
		if declared.Kind != types.Unknown {
			if !types.AssignableTo(valType, declared) {
				c.emit(diag.Error(codeReturnMismatch,
					fmt.Sprintf("cannot assign `%s` to `%s`", valType, declared), st.Sp))
			}
			e.define(st.Name, &binding{typ: declared, mutable: !st.Const, declSpan: st.Sp, hasSpan: true})
		} else {
			e.define(st.Name, &binding{typ: valType, mutable: !st.Const, declSpan: st.Sp, hasSpan: true})
		}
	case *ast.ExprStmt:
		c.inferExpr(st.X, e)
	case *ast.ReturnStmt:
		var valType *types.Type = types.VoidT
		if st.Value != nil {
			valType = c.inferExpr(st.Value, e)
		}
		if ret != nil && ret.Kind != types.Unknown && !types.AssignableTo(valType, ret) {
			c.emit(diag.Error(codeReturnMismatch,
				fmt.Sprintf("function returns `%s`, expected `%s`", valType, ret), st.Sp))
		}
	case *ast.IfStmt:
		c.checkNarrowedCond(st.Cond, e)
		c.checkBlock(st.Then, e, ret)
		if st.Else != nil {
			c.checkStmt(st.Else, e, ret)
		}
	case *ast.WhileStmt:
		c.inferExpr(st.Cond, e)
		c.checkBlock(st.Body, e, ret)
	case *ast.ForStmt:
		c.inferExpr(st.Iter, e)
		inner := newEnv(e)
		inner.define(st.Binding, &binding{typ: types.UnknownT, mutable: true})
		for _, body := range st.Body.Stmts {
			c.checkStmt(body, inner, ret)
		}
	case *ast.BlockStmt:
		c.checkBlock(st, e, ret)
	}
}

// checkNarrowedCond type-checks a guard expression and, for a
// `typeof(x) == "<name>"` guard (alone or as an operand of `&&`), narrows
// the tested binding's type within the surrounding scope for the remainder
// of this pass (a flow-insensitive approximation: narrowing is visible to
// the then-branch check that immediately follows, without a per-branch
// environment fork). Literal-equality guards, predicate calls and `||`
// guards do not narrow.
func (c *Checker) checkNarrowedCond(cond ast.Expr, e *env) {
	c.inferExpr(cond, e)
	narrowFromGuard(cond, e)
}

func narrowFromGuard(cond ast.Expr, e *env) {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok {
		return
	}
	switch bin.Op {
	case ast.OpAnd:
		narrowFromGuard(bin.Left, e)
		narrowFromGuard(bin.Right, e)
	case ast.OpEq:
		narrowEquality(bin.Left, bin.Right, e)
		narrowEquality(bin.Right, bin.Left, e)
	}
}

// narrowEquality handles `typeof(x) == "number"` guards by tightening x's
// binding type for the remainder of the enclosing scope; a literal-equality
// guard such as `x == 5` leaves the type unchanged.
func narrowEquality(lhs, rhs ast.Expr, e *env) {
	call, ok := lhs.(*ast.CallExpr)
	if !ok {
		return
	}
	callee, ok := call.Callee.(*ast.Ident)
	if !ok || callee.Name != "typeof" || len(call.Args) != 1 {
		return
	}
	id, ok := call.Args[0].(*ast.Ident)
	if !ok {
		return
	}
	lit, ok := rhs.(*ast.StringLit)
	if !ok {
		return
	}
	b, ok := e.lookup(id.Name)
	if !ok {
		return
	}
	switch lit.Value {
	case "number":
		b.typ = types.NumberT
	case "string":
		b.typ = types.StringT
	case "bool":
		b.typ = types.BoolT
	case "null":
		b.typ = types.NullT
	}
}

// inferExpr infers expr's type, emitting diagnostics for null misuse,
// immutable assignment, unknown methods, and failed trait bounds along the
// way.
func (c *Checker) inferExpr(expr ast.Expr, e *env) *types.Type {
	switch ex := expr.(type) {
	case *ast.NumberLit:
		return types.NumberT
	case *ast.StringLit:
		return types.StringT
	case *ast.BoolLit:
		return types.BoolT
	case *ast.NullLit:
		return types.NullT
	case *ast.ArrayLit:
		var elem *types.Type = types.UnknownT
		for _, el := range ex.Elements {
			t := c.inferExpr(el, e)
			if elem.Kind == types.Unknown {
				elem = t
			}
		}
		return types.NewArray(elem)
	case *ast.Ident:
		if b, ok := e.lookup(ex.Name); ok {
			return b.typ
		}
		if sig, ok := c.funcs[ex.Name]; ok {
			return types.NewFunction(sig.params, sig.ret)
		}
		return types.UnknownT
	case *ast.UnaryExpr:
		c.inferExpr(ex.Operand, e)
		if ex.Op == ast.OpNeg {
			return types.NumberT
		}
		return types.BoolT
	case *ast.BinaryExpr:
		return c.inferBinary(ex, e)
	case *ast.AssignExpr:
		return c.checkAssign(ex, e)
	case *ast.CallExpr:
		return c.checkCall(ex, e)
	case *ast.IndexExpr:
		t := c.inferExpr(ex.Target, e)
		c.inferExpr(ex.Index, e)
		if t.Kind == types.Array {
			return t.Elem
		}
		return types.UnknownT
	case *ast.FieldExpr:
		return c.checkFieldOrMethod(ex, e)
	case *ast.OwnershipExpr:
		return c.inferExpr(ex.Target, e)
	case *ast.FuncExpr:
		inner := newEnv(e)
		params := make([]*types.Type, len(ex.Params))
		for i, p := range ex.Params {
			params[i] = c.resolveTypeExpr(p.Type)
			inner.define(p.Name, &binding{typ: params[i], mutable: true})
		}
		ret := c.resolveTypeExpr(ex.Ret)
		c.checkBlock(ex.Body, inner, ret)
		return types.NewFunction(params, ret)
	default:
		return types.UnknownT
	}
}

func (c *Checker) inferBinary(ex *ast.BinaryExpr, e *env) *types.Type {
	left := c.inferExpr(ex.Left, e)
	right := c.inferExpr(ex.Right, e)

	switch ex.Op {
	case ast.OpAnd, ast.OpOr:
		return types.BoolT
	case ast.OpCoalesce:
		if right.Kind == types.Null {
			return left
		}
		return right
	case ast.OpEq, ast.OpNeq:
		return types.BoolT
	}

	nullOperand := left.Kind == types.Null || right.Kind == types.Null
	bothNull := left.Kind == types.Null && right.Kind == types.Null
	if nullOperand && !bothNull {
		c.emit(diag.Error(codeNullMisuse, "null cannot be used in an arithmetic, logical, or comparison operation with a non-null value", ex.Sp))
		return types.UnknownT
	}

	switch ex.Op {
	case ast.OpLt, ast.OpLte, ast.OpGt, ast.OpGte:
		return types.BoolT
	default:
		return types.NumberT
	}
}

// checkAssign enforces immutable-binding assignment (AT3003) with a
// related location pointing at the original declaration.
func (c *Checker) checkAssign(ex *ast.AssignExpr, e *env) *types.Type {
	valType := c.inferExpr(ex.Value, e)
	if id, ok := ex.Target.(*ast.Ident); ok {
		if b, ok := e.lookup(id.Name); ok {
			if !b.mutable {
				d := diag.Error(codeImmutableAssign,
					fmt.Sprintf("cannot assign to immutable binding `%s`", id.Name), ex.Sp)
				if b.hasSpan {
					d = d.WithRelated(diag.RelatedLocation{Message: "first declared here"})
				}
				c.emit(d)
			}
			if b.typ.Kind != types.Unknown && !types.AssignableTo(valType, b.typ) {
				c.emit(diag.Error(codeReturnMismatch,
					fmt.Sprintf("cannot assign `%s` to `%s`", valType, b.typ), ex.Sp))
			}
			return b.typ
		}
		return valType
	}
	c.inferExpr(ex.Target, e)
	return valType
}

// checkCall validates argument count/types for known callees and resolves
// method-style calls (receiver.method(...)).
func (c *Checker) checkCall(ex *ast.CallExpr, e *env) *types.Type {
	if field, ok := ex.Callee.(*ast.FieldExpr); ok {
		return c.checkMethodCall(field, ex, e)
	}
	calleeType := c.inferExpr(ex.Callee, e)
	for _, a := range ex.Args {
		c.inferExpr(a, e)
	}
	if calleeType.Kind == types.Function {
		if len(ex.Args) != len(calleeType.Params) {
			c.emit(diag.Error(codeReturnMismatch,
				fmt.Sprintf("expected %d argument(s), got %d", len(calleeType.Params), len(ex.Args)), ex.Sp))
		}
		return calleeType.Ret
	}
	return types.UnknownT
}

// checkMethodCall resolves `receiver.m(args)`: a registered trait/inherent
// method first, AT3010 ("unknown method") if the receiver's type has no
// such method at all, matching §4.4's resolution order (note: stdlib
// built-in methods are registered into the same Registry as inherent
// impls by the embedder before checking, so no separate stdlib lookup path
// is needed here).
func (c *Checker) checkMethodCall(field *ast.FieldExpr, call *ast.CallExpr, e *env) *types.Type {
	recvType := c.inferExpr(field.Target, e)
	for _, a := range call.Args {
		c.inferExpr(a, e)
	}
	typeName := recvType.String()
	sig, ok := c.traits.ResolveMethod(typeName, field.Field)
	if !ok {
		c.emit(diag.Error(codeUnknownMethod,
			fmt.Sprintf("type `%s` has no method `%s`", typeName, field.Field), call.Sp))
		return types.UnknownT
	}
	return sig.Ret
}

func (c *Checker) checkFieldOrMethod(field *ast.FieldExpr, e *env) *types.Type {
	recvType := c.inferExpr(field.Target, e)
	if recvType.Kind == types.Record {
		if t, ok := recvType.Fields[field.Field]; ok {
			return t
		}
	}
	return types.UnknownT
}

// CheckTraitBound verifies that typeName satisfies every trait named in
// bounds, emitting AT3037 for the first that fails — used when
// monomorphizing a generic call against a type-parameter's declared
// bounds.
func (c *Checker) CheckTraitBound(typeName string, bounds []string, site ast.Node) {
	for _, trait := range bounds {
		if !c.traits.TypeImplements(trait, typeName) {
			c.emit(diag.Error(codeTraitBoundFailed,
				fmt.Sprintf("type `%s` does not satisfy trait bound `%s`", typeName, trait), site.Span()))
			return
		}
	}
}

// CheckTraitImplemented reports AT3035 when a concrete type is used where
// a trait is required but has no impl for it (distinct from AT3010, which
// covers a method name unknown to the registry entirely).
func (c *Checker) CheckTraitImplemented(trait, typeName string, site ast.Node) {
	if _, ok := c.traits.Trait(trait); !ok {
		return
	}
	if !c.traits.TypeImplements(trait, typeName) {
		c.emit(diag.Error(codeTraitNotImplemented,
			fmt.Sprintf("type `%s` does not implement trait `%s`", typeName, trait), site.Span()))
	}
}
