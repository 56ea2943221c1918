// Package parser turns a token stream into an ast.Program via recursive
// descent with Pratt-style operator precedence for expressions.
package parser

import (
	"strconv"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/lexer"
	"github.com/atlas-lang/atlas/module"
	"github.com/atlas-lang/atlas/position"
	"github.com/atlas-lang/atlas/token"
)

const codeUnexpectedToken = "AT1000"

// Parser consumes a flat token slice and builds an ast.Program, collecting
// diagnostics rather than panicking on malformed input. It skips ahead to
// the next statement boundary only after an `export` that is not followed
// by a declaration; other errors do not trigger that skip.
type Parser struct {
	file   string
	toks   []token.Token
	pos    int
	diags  []diag.Diagnostic
}

// New tokenizes src under file and returns a Parser ready to build a
// Program; lexer diagnostics are folded into the Parser's own.
func New(src, file string) *Parser {
	lx := lexer.New(src, file)
	toks, lexDiags := lx.Tokenize()
	return &Parser{file: file, toks: toks, diags: lexDiags}
}

// Parse builds the Program and returns accumulated diagnostics (lexer and
// parser, errors before warnings, per diag.Sort).
func (p *Parser) Parse() (*ast.Program, []diag.Diagnostic) {
	start := p.span()
	var items []ast.Item
	for !p.at(token.EOF) {
		item := p.parseItem()
		if item != nil {
			items = append(items, item)
		}
	}
	prog := &ast.Program{Items: items, Sp: position.Span{Start: start.Start, End: p.span().End}}
	diag.Sort(p.diags)
	return prog, p.diags
}

// ---- token stream helpers ----

func (p *Parser) cur() token.Token  { return p.toks[p.pos] }
func (p *Parser) span() position.Span { return p.cur().Span }
func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) check(k token.Kind) bool { return p.at(k) }

func (p *Parser) match(k token.Kind) bool {
	if p.at(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(k token.Kind) token.Token {
	if p.at(k) {
		return p.advance()
	}
	p.error(codeUnexpectedToken, "expected `"+k.String()+"`, found `"+p.cur().Kind.String()+"`")
	return p.cur()
}

func (p *Parser) error(code, msg string) {
	p.diags = append(p.diags, diag.Error(code, msg, p.span()).WithFile(p.file))
}

// synchronize skips tokens until a likely statement boundary, so one
// malformed statement doesn't cascade into spurious follow-on errors.
func (p *Parser) synchronize() {
	for !p.at(token.EOF) {
		if p.at(token.Semicolon) {
			p.advance()
			return
		}
		switch p.cur().Kind {
		case token.KwLet, token.KwConst, token.KwFn, token.KwIf, token.KwWhile,
			token.KwFor, token.KwReturn, token.KwStruct, token.KwTrait, token.KwImpl,
			token.RBrace:
			return
		}
		p.advance()
	}
}

// ---- top-level items ----

func (p *Parser) parseItem() ast.Item {
	start := p.span()
	export := p.match(token.KwExport)
	switch {
	case p.at(token.KwFn):
		return p.parseFuncDecl(start, export)
	case p.at(token.KwStruct):
		return p.parseStructDecl(start, export)
	case p.at(token.KwTrait):
		return p.parseTraitDecl(start, export)
	case p.at(token.KwImpl):
		return p.parseImplDecl(start)
	case p.at(token.KwImport):
		return p.parseImportDecl(start)
	case export:
		p.error(codeUnexpectedToken, "expected a declaration after `export`, found `"+p.cur().Kind.String()+"`")
		p.synchronize()
		return nil
	default:
		// Atlas source files are scripts: a bare statement at file scope is
		// valid, not just function/struct/trait/impl/import declarations.
		// Every concrete Stmt also implements Item, so this assertion always
		// succeeds for whatever parseStmt returns.
		return p.parseStmt().(ast.Item)
	}
}

func (p *Parser) parseParamList() []ast.Param {
	p.expect(token.LParen)
	var params []ast.Param
	for !p.at(token.RParen) && !p.at(token.EOF) {
		pstart := p.span()
		own := p.parseOwnership()
		name := p.expect(token.Ident).Literal
		var typ ast.TypeExpr
		if p.match(token.Colon) {
			typ = p.parseType()
		}
		params = append(params, ast.Param{Name: name, Type: typ, Ownership: own, Sp: p.spanSince(pstart)})
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen)
	return params
}

func (p *Parser) parseOwnership() ast.OwnershipKind {
	switch {
	case p.match(token.KwOwn):
		return ast.OwnershipOwn
	case p.match(token.KwBorrow):
		return ast.OwnershipBorrow
	case p.match(token.KwShared):
		return ast.OwnershipShared
	default:
		return ast.OwnershipNone
	}
}

func (p *Parser) parseFuncDecl(start position.Span, export bool) *ast.FuncDecl {
	p.expect(token.KwFn)
	name := p.expect(token.Ident).Literal
	params := p.parseParamList()
	var ret ast.TypeExpr
	if p.match(token.Arrow) {
		ret = p.parseType()
	}
	body := p.parseBlock()
	return &ast.FuncDecl{Name: name, Params: params, Ret: ret, Body: body, Export: export, Sp: p.spanSince(start)}
}

func (p *Parser) parseStructDecl(start position.Span, export bool) *ast.StructDecl {
	p.expect(token.KwStruct)
	name := p.expect(token.Ident).Literal
	p.expect(token.LBrace)
	var fields []ast.Field
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		fstart := p.span()
		fname := p.expect(token.Ident).Literal
		p.expect(token.Colon)
		ftype := p.parseType()
		fields = append(fields, ast.Field{Name: fname, Type: ftype, Sp: p.spanSince(fstart)})
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace)
	return &ast.StructDecl{Name: name, Fields: fields, Export: export, Sp: p.spanSince(start)}
}

func (p *Parser) parseTraitDecl(start position.Span, export bool) *ast.TraitDecl {
	p.expect(token.KwTrait)
	name := p.expect(token.Ident).Literal
	p.expect(token.LBrace)
	var methods []ast.TraitMethod
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		mstart := p.span()
		p.expect(token.KwFn)
		mname := p.expect(token.Ident).Literal
		params := p.parseParamList()
		var ret ast.TypeExpr
		if p.match(token.Arrow) {
			ret = p.parseType()
		}
		p.match(token.Semicolon)
		methods = append(methods, ast.TraitMethod{Name: mname, Params: params, Ret: ret, Sp: p.spanSince(mstart)})
	}
	p.expect(token.RBrace)
	return &ast.TraitDecl{Name: name, Methods: methods, Export: export, Sp: p.spanSince(start)}
}

func (p *Parser) parseImplDecl(start position.Span) *ast.ImplDecl {
	p.expect(token.KwImpl)
	first := p.expect(token.Ident).Literal
	trait, typeName := "", first
	if p.match(token.KwFor) {
		trait = first
		typeName = p.expect(token.Ident).Literal
	}
	p.expect(token.LBrace)
	var methods []*ast.FuncDecl
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		mstart := p.span()
		methods = append(methods, p.parseFuncDecl(mstart, false))
	}
	p.expect(token.RBrace)
	return &ast.ImplDecl{Trait: trait, Type: typeName, Methods: methods, Sp: p.spanSince(start)}
}

func (p *Parser) parseImportDecl(start position.Span) *ast.ImportDecl {
	p.expect(token.KwImport)
	if p.at(token.Star) {
		return p.parseNamespaceImportDecl(start)
	}
	var specs []ast.ImportSpecifier
	if p.match(token.LBrace) {
		for !p.at(token.RBrace) && !p.at(token.EOF) {
			name := p.expect(token.Ident).Literal
			alias := ""
			if p.match(token.KwAs) {
				alias = p.expect(token.Ident).Literal
			}
			specs = append(specs, ast.ImportSpecifier{Name: name, Alias: alias})
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RBrace)
		p.expect(token.KwFrom)
	}
	path := p.expect(token.String).Literal
	p.match(token.Semicolon)
	return &ast.ImportDecl{Specifiers: specs, Path: path, Sp: p.spanSince(start)}
}

// parseNamespaceImportDecl consumes the rejected `import * as m from "..."`
// form. It still parses the full grammar so parsing can resynchronize
// normally afterward, but reports AT5007 rather than binding the namespace.
func (p *Parser) parseNamespaceImportDecl(start position.Span) *ast.ImportDecl {
	p.expect(token.Star)
	p.expect(token.KwAs)
	p.expect(token.Ident)
	p.expect(token.KwFrom)
	path := p.expect(token.String).Literal
	p.match(token.Semicolon)
	sp := p.spanSince(start)
	d := module.NamespaceImportDiagnostic().WithFile(p.file)
	d.Column = sp.Start + 1
	d.Length = sp.Len()
	p.diags = append(p.diags, d)
	return &ast.ImportDecl{Path: path, Sp: sp}
}

// ---- types ----

func (p *Parser) parseType() ast.TypeExpr {
	start := p.span()
	if p.match(token.LBracket) {
		elem := p.parseType()
		p.expect(token.RBracket)
		return &ast.ArrayType{Elem: elem, Sp: p.spanSince(start)}
	}
	if p.at(token.KwFn) {
		p.advance()
		p.expect(token.LParen)
		var params []ast.TypeExpr
		for !p.at(token.RParen) && !p.at(token.EOF) {
			params = append(params, p.parseType())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RParen)
		p.expect(token.Arrow)
		ret := p.parseType()
		return &ast.FunctionType{Params: params, Ret: ret, Sp: p.spanSince(start)}
	}
	name := p.expect(token.Ident).Literal
	var args []ast.TypeExpr
	base := &ast.NamedType{Name: name, Sp: p.spanSince(start)}
	var result ast.TypeExpr = base
	if p.match(token.Less) {
		for !p.at(token.Greater) && !p.at(token.EOF) {
			args = append(args, p.parseType())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.Greater)
		base.Args = args
	}
	for p.match(token.PipePipe) {
		// not a real union separator in source syntax; reserved for future use
		break
	}
	if p.match(token.Question) {
		// `T?` sugar for `T | null`
		result = &ast.UnionType{Members: []ast.TypeExpr{base, &ast.NamedType{Name: "null", Sp: p.spanSince(start)}}, Sp: p.spanSince(start)}
	}
	return result
}

// ---- statements ----

func (p *Parser) parseBlock() *ast.BlockStmt {
	start := p.span()
	p.expect(token.LBrace)
	var stmts []ast.Stmt
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		s := p.parseStmt()
		if s != nil {
			stmts = append(stmts, s)
		}
	}
	p.expect(token.RBrace)
	return &ast.BlockStmt{Stmts: stmts, Sp: p.spanSince(start)}
}

func (p *Parser) parseStmt() ast.Stmt {
	start := p.span()
	switch {
	case p.at(token.KwLet) || p.at(token.KwConst):
		return p.parseLetStmt(start)
	case p.at(token.KwReturn):
		p.advance()
		var val ast.Expr
		if !p.at(token.Semicolon) {
			val = p.parseExpr()
		}
		p.match(token.Semicolon)
		return &ast.ReturnStmt{Value: val, Sp: p.spanSince(start)}
	case p.at(token.KwIf):
		return p.parseIfStmt(start)
	case p.at(token.KwWhile):
		p.advance()
		cond := p.parseExpr()
		body := p.parseBlock()
		return &ast.WhileStmt{Cond: cond, Body: body, Sp: p.spanSince(start)}
	case p.at(token.KwFor):
		p.advance()
		name := p.expect(token.Ident).Literal
		p.expect(token.KwIn)
		iter := p.parseExpr()
		body := p.parseBlock()
		return &ast.ForStmt{Binding: name, Iter: iter, Body: body, Sp: p.spanSince(start)}
	case p.at(token.KwBreak):
		p.advance()
		p.match(token.Semicolon)
		return &ast.BreakStmt{Sp: p.spanSince(start)}
	case p.at(token.KwContinue):
		p.advance()
		p.match(token.Semicolon)
		return &ast.ContinueStmt{Sp: p.spanSince(start)}
	case p.at(token.LBrace):
		return p.parseBlock()
	default:
		x := p.parseExpr()
		p.match(token.Semicolon)
		return &ast.ExprStmt{X: x, Sp: p.spanSince(start)}
	}
}

func (p *Parser) parseLetStmt(start position.Span) *ast.LetStmt {
	isConst := p.at(token.KwConst)
	p.advance() // KwLet or KwConst
	own := p.parseOwnership()
	name := p.expect(token.Ident).Literal
	var typ ast.TypeExpr
	if p.match(token.Colon) {
		typ = p.parseType()
	}
	p.expect(token.Equal)
	value := p.parseExpr()
	p.match(token.Semicolon)
	return &ast.LetStmt{Name: name, Type: typ, Value: value, Const: isConst, Ownership: own, Sp: p.spanSince(start)}
}

func (p *Parser) parseIfStmt(start position.Span) *ast.IfStmt {
	p.expect(token.KwIf)
	cond := p.parseExpr()
	then := p.parseBlock()
	var elseStmt ast.Stmt
	if p.match(token.KwElse) {
		if p.at(token.KwIf) {
			elseStmt = p.parseIfStmt(p.span())
		} else {
			elseStmt = p.parseBlock()
		}
	}
	return &ast.IfStmt{Cond: cond, Then: then, Else: elseStmt, Sp: p.spanSince(start)}
}

// ---- expressions (precedence climbing) ----

// precedence table, higher binds tighter.
var binPrec = map[token.Kind]int{
	token.QuestionQuestion: 1,
	token.PipePipe:         2,
	token.AmpAmp:           3,
	token.EqualEqual:       4, token.BangEqual: 4,
	token.Less: 5, token.LessEqual: 5, token.Greater: 5, token.GreaterEqual: 5,
	token.Plus: 6, token.Minus: 6,
	token.Star: 7, token.Slash: 7, token.Percent: 7,
}

var binOps = map[token.Kind]ast.BinaryOp{
	token.Plus: ast.OpAdd, token.Minus: ast.OpSub, token.Star: ast.OpMul,
	token.Slash: ast.OpDiv, token.Percent: ast.OpMod,
	token.EqualEqual: ast.OpEq, token.BangEqual: ast.OpNeq,
	token.Less: ast.OpLt, token.LessEqual: ast.OpLte,
	token.Greater: ast.OpGt, token.GreaterEqual: ast.OpGte,
	token.AmpAmp: ast.OpAnd, token.PipePipe: ast.OpOr,
	token.QuestionQuestion: ast.OpCoalesce,
}

func (p *Parser) parseExpr() ast.Expr {
	return p.parseAssign()
}

func (p *Parser) parseAssign() ast.Expr {
	start := p.span()
	left := p.parseBinary(0)
	if p.match(token.Equal) {
		value := p.parseAssign()
		return &ast.AssignExpr{Target: left, Value: value, Sp: p.spanSince(start)}
	}
	return left
}

func (p *Parser) parseBinary(minPrec int) ast.Expr {
	start := p.span()
	left := p.parseUnary()
	for {
		prec, ok := binPrec[p.cur().Kind]
		if !ok || prec < minPrec {
			return left
		}
		opKind := p.advance().Kind
		right := p.parseBinary(prec + 1)
		left = &ast.BinaryExpr{Op: binOps[opKind], Left: left, Right: right, Sp: p.spanSince(start)}
	}
}

func (p *Parser) parseUnary() ast.Expr {
	start := p.span()
	switch {
	case p.match(token.Minus):
		operand := p.parseUnary()
		return &ast.UnaryExpr{Op: ast.OpNeg, Operand: operand, Sp: p.spanSince(start)}
	case p.match(token.Bang):
		operand := p.parseUnary()
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand, Sp: p.spanSince(start)}
	case p.at(token.KwOwn) || p.at(token.KwBorrow) || p.at(token.KwShared):
		kind := p.parseOwnership()
		target := p.parseUnary()
		return &ast.OwnershipExpr{Kind: kind, Target: target, Sp: p.spanSince(start)}
	default:
		return p.parseCallOrPostfix()
	}
}

func (p *Parser) parseCallOrPostfix() ast.Expr {
	start := p.span()
	expr := p.parsePrimary()
	for {
		switch {
		case p.match(token.LParen):
			var args []ast.Expr
			for !p.at(token.RParen) && !p.at(token.EOF) {
				args = append(args, p.parseExpr())
				if !p.match(token.Comma) {
					break
				}
			}
			p.expect(token.RParen)
			expr = &ast.CallExpr{Callee: expr, Args: args, Sp: p.spanSince(start)}
		case p.match(token.LBracket):
			idx := p.parseExpr()
			p.expect(token.RBracket)
			expr = &ast.IndexExpr{Target: expr, Index: idx, Sp: p.spanSince(start)}
		case p.match(token.Dot):
			field := p.expect(token.Ident).Literal
			expr = &ast.FieldExpr{Target: expr, Field: field, Sp: p.spanSince(start)}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	start := p.span()
	t := p.cur()
	switch t.Kind {
	case token.Number:
		p.advance()
		n, _ := strconv.ParseFloat(t.Literal, 64)
		return &ast.NumberLit{Value: n, Sp: start}
	case token.String, token.TemplateString:
		p.advance()
		return &ast.StringLit{Value: t.Literal, Sp: start}
	case token.KwTrue:
		p.advance()
		return &ast.BoolLit{Value: true, Sp: start}
	case token.KwFalse:
		p.advance()
		return &ast.BoolLit{Value: false, Sp: start}
	case token.KwNull:
		p.advance()
		return &ast.NullLit{Sp: start}
	case token.Ident:
		p.advance()
		return &ast.Ident{Name: t.Literal, Sp: start}
	case token.LParen:
		p.advance()
		expr := p.parseExpr()
		p.expect(token.RParen)
		return expr
	case token.LBracket:
		p.advance()
		var elems []ast.Expr
		for !p.at(token.RBracket) && !p.at(token.EOF) {
			elems = append(elems, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RBracket)
		return &ast.ArrayLit{Elements: elems, Sp: p.spanSince(start)}
	case token.KwFn:
		p.advance()
		params := p.parseParamList()
		var ret ast.TypeExpr
		if p.match(token.Arrow) {
			ret = p.parseType()
		}
		body := p.parseBlock()
		return &ast.FuncExpr{Params: params, Ret: ret, Body: body, Sp: p.spanSince(start)}
	default:
		p.error(codeUnexpectedToken, "expected an expression, found `"+t.Kind.String()+"`")
		p.advance()
		return &ast.NullLit{Sp: start}
	}
}

func (p *Parser) spanSince(start position.Span) position.Span {
	end := start.End
	if p.pos > 0 {
		end = p.toks[p.pos-1].Span.End
	}
	return position.Span{Start: start.Start, End: end}
}
