// Package token defines the lexical token kinds produced by the lexer.
package token

import "github.com/atlas-lang/atlas/position"

// Kind identifies the lexical category of a token.
type Kind int

const (
	Illegal Kind = iota
	EOF

	Ident
	Number
	String
	TemplateString

	// Keywords
	KwLet
	KwConst
	KwFn
	KwReturn
	KwIf
	KwElse
	KwWhile
	KwFor
	KwBreak
	KwContinue
	KwTrue
	KwFalse
	KwNull
	KwStruct
	KwTrait
	KwImpl
	KwImport
	KwExport
	KwFrom
	KwAs
	KwOwn
	KwBorrow
	KwShared
	KwMatch
	KwIn

	// Punctuation
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Dot
	Colon
	Semicolon
	Arrow
	FatArrow

	// Operators
	Plus
	Minus
	Star
	Slash
	Percent
	Bang
	BangEqual
	Equal
	EqualEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	AmpAmp
	PipePipe
	Question
	QuestionQuestion
)

var names = map[Kind]string{
	Illegal:          "ILLEGAL",
	EOF:              "EOF",
	Ident:            "IDENT",
	Number:           "NUMBER",
	String:           "STRING",
	TemplateString:   "TEMPLATE_STRING",
	KwLet:            "let",
	KwConst:          "const",
	KwFn:             "fn",
	KwReturn:         "return",
	KwIf:             "if",
	KwElse:           "else",
	KwWhile:          "while",
	KwFor:            "for",
	KwBreak:          "break",
	KwContinue:       "continue",
	KwTrue:           "true",
	KwFalse:          "false",
	KwNull:           "null",
	KwStruct:         "struct",
	KwTrait:          "trait",
	KwImpl:           "impl",
	KwImport:         "import",
	KwExport:         "export",
	KwFrom:           "from",
	KwAs:             "as",
	KwOwn:            "own",
	KwBorrow:         "borrow",
	KwShared:         "shared",
	KwMatch:          "match",
	KwIn:             "in",
	LParen:           "(",
	RParen:           ")",
	LBrace:           "{",
	RBrace:           "}",
	LBracket:         "[",
	RBracket:         "]",
	Comma:            ",",
	Dot:              ".",
	Colon:            ":",
	Semicolon:        ";",
	Arrow:            "->",
	FatArrow:         "=>",
	Plus:             "+",
	Minus:            "-",
	Star:             "*",
	Slash:            "/",
	Percent:          "%",
	Bang:             "!",
	BangEqual:        "!=",
	Equal:            "=",
	EqualEqual:       "==",
	Less:             "<",
	LessEqual:        "<=",
	Greater:          ">",
	GreaterEqual:     ">=",
	AmpAmp:           "&&",
	PipePipe:         "||",
	Question:         "?",
	QuestionQuestion: "??",
}

// Keywords maps the literal spelling of each reserved word to its Kind.
var Keywords = map[string]Kind{
	"let": KwLet, "const": KwConst, "fn": KwFn, "return": KwReturn,
	"if": KwIf, "else": KwElse, "while": KwWhile, "for": KwFor,
	"break": KwBreak, "continue": KwContinue, "true": KwTrue, "false": KwFalse,
	"null": KwNull, "struct": KwStruct, "trait": KwTrait, "impl": KwImpl,
	"import": KwImport, "export": KwExport, "from": KwFrom, "as": KwAs,
	"own": KwOwn, "borrow": KwBorrow, "shared": KwShared, "match": KwMatch,
	"in": KwIn,
}

// String returns the canonical name or literal spelling of the kind.
func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Token is a single lexical unit with its source span.
type Token struct {
	Kind    Kind
	Literal string
	Span    position.Span
}
