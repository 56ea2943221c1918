// Package compiler emits bytecode from an already-bound, already-checked
// AST. Each function body compiles into a flat run of instructions with a
// per-instruction debug span; every function falls through an implicit
// `return null` if control reaches its end without an explicit return.
package compiler

import (
	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/position"
)

// localScope tracks local-variable slot assignment within one function
// being compiled, including nested block scopes (locals above a scope's
// base are dropped when the scope closes).
type localScope struct {
	names []string
	base  []int // stack of scope-start indices
}

func newLocalScope() *localScope { return &localScope{} }

func (s *localScope) openBlock() { s.base = append(s.base, len(s.names)) }

func (s *localScope) closeBlock() int {
	start := s.base[len(s.base)-1]
	s.base = s.base[:len(s.base)-1]
	dropped := len(s.names) - start
	s.names = s.names[:start]
	return dropped
}

func (s *localScope) declare(name string) int {
	s.names = append(s.names, name)
	return len(s.names) - 1
}

func (s *localScope) resolve(name string) (int, bool) {
	for i := len(s.names) - 1; i >= 0; i-- {
		if s.names[i] == name {
			return i, true
		}
	}
	return 0, false
}

// Compiler turns a *ast.Program into a *bytecode.Module.
type Compiler struct {
	instrs    []bytecode.Instruction
	bytePos   int // running byte offset of the next instruction to emit
	debug     []bytecode.DebugSpan
	constants []bytecode.Const
	strIndex  map[string]int
	numIndex  map[float64]int
	locals     *localScope
	funcIndex  map[string]int      // function name -> constant pool index, for calls
	funcParams map[string][]string // function name -> declared parameter names, for shared-arg diagnostics
	loops      []loopCtx
}

// loopCtx tracks the patch points needed to resolve break/continue inside
// the loop currently being compiled.
type loopCtx struct {
	continueTarget int
	breakJumps     []int
}

// New creates an empty Compiler.
func New() *Compiler {
	return &Compiler{
		strIndex:   map[string]int{},
		numIndex:   map[float64]int{},
		locals:     newLocalScope(),
		funcIndex:  map[string]int{},
		funcParams: map[string][]string{},
	}
}

// Compile compiles prog into a Module. Top-level function declarations are
// compiled as Function constants; any top-level statements outside a
// function (script-style code) are compiled directly into the module's
// entry sequence, matching the spec's "let x = 2+3*4; x" top-level
// evaluation scenario.
func Compile(prog *ast.Program) *bytecode.Module {
	c := New()

	// Pre-register function names (and their parameter names, for
	// shared-arg diagnostics) so forward calls resolve.
	for _, item := range prog.Items {
		if fn, ok := item.(*ast.FuncDecl); ok {
			c.funcIndex[fn.Name] = -1 // placeholder, filled below
			names := make([]string, len(fn.Params))
			for i, p := range fn.Params {
				names[i] = p.Name
			}
			c.funcParams[fn.Name] = names
		}
	}

	for _, item := range prog.Items {
		switch it := item.(type) {
		case *ast.FuncDecl:
			c.compileFuncDecl(it)
		}
	}
	// Top-level (script) code is emitted after every function body, so the
	// module's entry point must skip past them rather than default to 0.
	entryOffset := c.bytePos

	for _, item := range prog.Items {
		switch item.(type) {
		case *ast.FuncDecl, *ast.StructDecl, *ast.TraitDecl, *ast.ImplDecl, *ast.ImportDecl:
			continue
		}
		if stmt, ok := item.(ast.Stmt); ok {
			c.compileStmt(stmt)
		}
	}
	c.emit(bytecode.OpHalt, 0, position.Span{})

	return &bytecode.Module{
		Code:        bytecode.Encode(c.instrs),
		Constants:   c.constants,
		Debug:       c.debug,
		EntryOffset: entryOffset,
	}
}

func (c *Compiler) emit(op bytecode.Op, operand int, span position.Span) int {
	ins := bytecode.Instruction{Op: op, Operand: operand, Offset: c.bytePos, ByteSize: bytecode.ByteSize(op)}
	c.instrs = append(c.instrs, ins)
	idx := len(c.instrs) - 1
	c.debug = append(c.debug, bytecode.DebugSpan{Offset: ins.Offset, Span: span})
	c.bytePos += ins.ByteSize
	return idx
}

func (c *Compiler) addStringConst(s string) int {
	if i, ok := c.strIndex[s]; ok {
		return i
	}
	i := len(c.constants)
	c.constants = append(c.constants, bytecode.Const{Kind: bytecode.ConstString, Str: s})
	c.strIndex[s] = i
	return i
}

func (c *Compiler) addNumberConst(n float64) int {
	if i, ok := c.numIndex[n]; ok {
		return i
	}
	i := len(c.constants)
	c.constants = append(c.constants, bytecode.Const{Kind: bytecode.ConstNumber, Number: n})
	c.numIndex[n] = i
	return i
}

func (c *Compiler) compileFuncDecl(fn *ast.FuncDecl) {
	entry := c.bytePos
	c.locals = newLocalScope()
	c.locals.openBlock()
	for _, p := range fn.Params {
		c.locals.declare(p.Name)
	}
	c.compileBlock(fn.Body)
	if !blockAlwaysReturns(fn.Body) {
		c.emit(bytecode.OpNull, 0, fn.Sp)
		c.emit(bytecode.OpReturn, 0, fn.Sp)
	}
	c.locals.closeBlock()

	idx := len(c.constants)
	c.constants = append(c.constants, bytecode.Const{Kind: bytecode.ConstFunction, Func: bytecode.Function{
		Name: fn.Name, ParamCount: len(fn.Params), EntryOffset: entry,
	}})
	c.funcIndex[fn.Name] = idx
}

func blockAlwaysReturns(b *ast.BlockStmt) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	switch b.Stmts[len(b.Stmts)-1].(type) {
	case *ast.ReturnStmt:
		return true
	default:
		return false
	}
}

func (c *Compiler) compileBlock(b *ast.BlockStmt) {
	c.locals.openBlock()
	for _, s := range b.Stmts {
		c.compileStmt(s)
	}
	// Locals live in the call frame's Locals array, not on the VM operand
	// stack, so closing a block scope only needs to forget the names; no
	// stack cleanup is emitted.
	c.locals.closeBlock()
}

func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(bytecode.OpNull, 0, s.Sp)
		}
		if s.Ownership == ast.OwnershipShared {
			c.emit(bytecode.OpMakeShared, 0, s.Sp)
		}
		slot := c.locals.declare(s.Name)
		c.emit(bytecode.OpSetLocal, slot, s.Sp)
		c.emit(bytecode.OpPop, 0, s.Sp)
	case *ast.ExprStmt:
		c.compileExpr(s.X)
		c.emit(bytecode.OpPop, 0, s.Sp)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(bytecode.OpNull, 0, s.Sp)
		}
		c.emit(bytecode.OpReturn, 0, s.Sp)
	case *ast.IfStmt:
		c.compileIf(s)
	case *ast.WhileStmt:
		c.compileWhile(s)
	case *ast.BreakStmt:
		idx := c.emit(bytecode.OpJump, 0, s.Sp)
		if n := len(c.loops); n > 0 {
			c.loops[n-1].breakJumps = append(c.loops[n-1].breakJumps, idx)
		}
	case *ast.ContinueStmt:
		if n := len(c.loops); n > 0 {
			target := c.loops[n-1].continueTarget
			backIdx := c.emit(bytecode.OpLoop, 0, s.Sp)
			back := &c.instrs[backIdx]
			back.Operand = target - (back.Offset + back.ByteSize)
		}
	}
}

func (c *Compiler) compileIf(s *ast.IfStmt) {
	c.compileExpr(s.Cond)
	jf := c.emit(bytecode.OpJumpIfFalse, 0, s.Sp)
	c.compileBlock(s.Then)
	if s.Else != nil {
		jmp := c.emit(bytecode.OpJump, 0, s.Sp)
		c.patchJump(jf)
		c.compileStmt(s.Else)
		c.patchJump(jmp)
	} else {
		c.patchJump(jf)
	}
}

func (c *Compiler) compileWhile(s *ast.WhileStmt) {
	loopStart := c.bytePos
	c.loops = append(c.loops, loopCtx{continueTarget: loopStart})

	c.compileExpr(s.Cond)
	jf := c.emit(bytecode.OpJumpIfFalse, 0, s.Sp)
	c.compileBlock(s.Body)
	backIdx := c.emit(bytecode.OpLoop, 0, s.Sp)
	back := &c.instrs[backIdx]
	back.Operand = loopStart - (back.Offset + back.ByteSize)
	c.patchJump(jf)

	ctx := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, bj := range ctx.breakJumps {
		c.patchJump(bj)
	}
}

// patchJump rewrites the relative-offset operand of the jump instruction at
// idx to point at the current byte position (the next instruction to be
// emitted), relative to the byte immediately following the jump
// instruction itself — matching the VM's "relative to next instruction"
// jump semantics.
func (c *Compiler) patchJump(idx int) {
	ins := &c.instrs[idx]
	ins.Operand = c.bytePos - (ins.Offset + ins.ByteSize)
}

func (c *Compiler) compileExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.NumberLit:
		c.emit(bytecode.OpConstant, c.addNumberConst(e.Value), e.Sp)
	case *ast.StringLit:
		c.emit(bytecode.OpConstant, c.addStringConst(e.Value), e.Sp)
	case *ast.BoolLit:
		if e.Value {
			c.emit(bytecode.OpTrue, 0, e.Sp)
		} else {
			c.emit(bytecode.OpFalse, 0, e.Sp)
		}
	case *ast.NullLit:
		c.emit(bytecode.OpNull, 0, e.Sp)
	case *ast.ArrayLit:
		for _, el := range e.Elements {
			c.compileExpr(el)
		}
		c.emit(bytecode.OpArray, len(e.Elements), e.Sp)
	case *ast.Ident:
		if slot, ok := c.locals.resolve(e.Name); ok {
			c.emit(bytecode.OpGetLocal, slot, e.Sp)
			return
		}
		if idx, ok := c.funcIndex[e.Name]; ok && idx >= 0 {
			c.emit(bytecode.OpConstant, idx, e.Sp)
			return
		}
		c.emit(bytecode.OpGetGlobal, c.addStringConst(e.Name), e.Sp)
	case *ast.UnaryExpr:
		c.compileExpr(e.Operand)
		if e.Op == ast.OpNeg {
			c.emit(bytecode.OpNegate, 0, e.Sp)
		} else {
			c.emit(bytecode.OpNot, 0, e.Sp)
		}
	case *ast.BinaryExpr:
		c.compileBinary(e)
	case *ast.AssignExpr:
		c.compileAssign(e)
	case *ast.CallExpr:
		c.compileExpr(e.Callee)
		calleeName := ""
		if id, ok := e.Callee.(*ast.Ident); ok {
			calleeName = id.Name
		}
		params := c.funcParams[calleeName]
		for i, a := range e.Args {
			if own, ok := a.(*ast.OwnershipExpr); ok {
				paramName := ""
				if i < len(params) {
					paramName = params[i]
				}
				c.compileOwnershipExpr(own, paramName)
				continue
			}
			c.compileExpr(a)
		}
		c.emit(bytecode.OpCall, len(e.Args), e.Sp)
	case *ast.IndexExpr:
		c.compileExpr(e.Target)
		c.compileExpr(e.Index)
		c.emit(bytecode.OpIndex, 0, e.Sp)
	case *ast.FieldExpr:
		c.compileExpr(e.Target)
		c.emit(bytecode.OpGetField, c.addStringConst(e.Field), e.Sp)
	case *ast.OwnershipExpr:
		// Reached when an own/borrow/shared-annotated expression appears
		// outside a direct call argument position; the callee's parameter
		// name is unknown here.
		c.compileOwnershipExpr(e, "")
	}
}

// compileOwnershipExpr compiles an own/borrow/shared-annotated expression,
// emitting the target value followed by the matching ownership opcode.
// paramName, when known (a direct call argument to a statically resolved
// function), is threaded through OpOwnShared so a violation's message names
// the parameter; it is empty when the callee isn't statically known.
func (c *Compiler) compileOwnershipExpr(e *ast.OwnershipExpr, paramName string) {
	slot := -1
	if id, ok := e.Target.(*ast.Ident); ok {
		if s, ok := c.locals.resolve(id.Name); ok {
			slot = s
		}
	}
	c.compileExpr(e.Target)
	switch e.Kind {
	case ast.OwnershipOwn:
		c.emit(bytecode.OpOwnMove, slot, e.Sp)
	case ast.OwnershipBorrow:
		c.emit(bytecode.OpOwnBorrow, slot, e.Sp)
	case ast.OwnershipShared:
		nameIdx := -1
		if paramName != "" {
			nameIdx = c.addStringConst(paramName)
		}
		c.emit(bytecode.OpOwnShared, nameIdx, e.Sp)
	}
}

// compileAssign emits the three assignable target shapes: a bare local or
// global identifier, an array element (`arr[i] = v`), and a record field
// (`rec.f = v`). Index/field assignment writes the element/field in place
// and then, when the container itself is held by a simple identifier,
// writes the (possibly copy-on-write-cloned) container back into that
// binding so a Mutate()-triggered clone is not silently dropped.
func (c *Compiler) compileAssign(e *ast.AssignExpr) {
	switch target := e.Target.(type) {
	case *ast.Ident:
		c.compileExpr(e.Value)
		if slot, ok := c.locals.resolve(target.Name); ok {
			c.emit(bytecode.OpSetLocal, slot, e.Sp)
			return
		}
		c.emit(bytecode.OpSetGlobal, c.addStringConst(target.Name), e.Sp)
	case *ast.IndexExpr:
		c.compileExpr(target.Target)
		c.compileExpr(target.Index)
		c.compileExpr(e.Value)
		c.emit(bytecode.OpSetIndex, 0, e.Sp)
		c.storeBackBase(target.Target, e.Sp)
	case *ast.FieldExpr:
		c.compileExpr(target.Target)
		c.compileExpr(e.Value)
		c.emit(bytecode.OpSetField, c.addStringConst(target.Field), e.Sp)
		c.storeBackBase(target.Target, e.Sp)
	}
}

// storeBackBase writes the stack's top value into base's binding when base
// is a simple identifier, leaving it on the stack either way (OpSetLocal/
// OpSetGlobal both peek rather than pop).
func (c *Compiler) storeBackBase(base ast.Expr, sp position.Span) {
	id, ok := base.(*ast.Ident)
	if !ok {
		return
	}
	if slot, ok := c.locals.resolve(id.Name); ok {
		c.emit(bytecode.OpSetLocal, slot, sp)
		return
	}
	c.emit(bytecode.OpSetGlobal, c.addStringConst(id.Name), sp)
}

func (c *Compiler) compileBinary(e *ast.BinaryExpr) {
	switch e.Op {
	case ast.OpAnd:
		// OpJumpIfFalse pops its operand, so Dup it first: the false path
		// leaves the original Left on the stack as the (falsy) result, the
		// true path pops it and falls through to evaluate Right.
		c.compileExpr(e.Left)
		c.emit(bytecode.OpDup, 0, e.Sp)
		jf := c.emit(bytecode.OpJumpIfFalse, 0, e.Sp)
		c.emit(bytecode.OpPop, 0, e.Sp)
		c.compileExpr(e.Right)
		c.patchJump(jf)
		return
	case ast.OpOr:
		c.compileExpr(e.Left)
		c.emit(bytecode.OpDup, 0, e.Sp)
		jf := c.emit(bytecode.OpJumpIfFalse, 0, e.Sp)
		jmpEnd := c.emit(bytecode.OpJump, 0, e.Sp)
		c.patchJump(jf)
		c.emit(bytecode.OpPop, 0, e.Sp)
		c.compileExpr(e.Right)
		c.patchJump(jmpEnd)
		return
	case ast.OpCoalesce:
		// left ?? right: evaluate Left, test for null via Dup+Equal-to-null;
		// a non-null Left short-circuits (Right is never evaluated).
		c.compileExpr(e.Left)
		c.emit(bytecode.OpDup, 0, e.Sp)
		c.emit(bytecode.OpNull, 0, e.Sp)
		c.emit(bytecode.OpEqual, 0, e.Sp)
		jf := c.emit(bytecode.OpJumpIfFalse, 0, e.Sp)
		c.emit(bytecode.OpPop, 0, e.Sp)
		c.compileExpr(e.Right)
		c.patchJump(jf)
		return
	}

	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	switch e.Op {
	case ast.OpAdd:
		c.emit(bytecode.OpAdd, 0, e.Sp)
	case ast.OpSub:
		c.emit(bytecode.OpSub, 0, e.Sp)
	case ast.OpMul:
		c.emit(bytecode.OpMul, 0, e.Sp)
	case ast.OpDiv:
		c.emit(bytecode.OpDiv, 0, e.Sp)
	case ast.OpMod:
		c.emit(bytecode.OpMod, 0, e.Sp)
	case ast.OpEq:
		c.emit(bytecode.OpEqual, 0, e.Sp)
	case ast.OpNeq:
		c.emit(bytecode.OpNotEqual, 0, e.Sp)
	case ast.OpLt:
		c.emit(bytecode.OpLess, 0, e.Sp)
	case ast.OpLte:
		c.emit(bytecode.OpLessEqual, 0, e.Sp)
	case ast.OpGt:
		c.emit(bytecode.OpGreater, 0, e.Sp)
	case ast.OpGte:
		c.emit(bytecode.OpGreaterEqual, 0, e.Sp)
	}
}
