// Package lexer hand-scans Atlas source into a token stream. It never
// panics: unrecognized input is reported as a diagnostic and the scan
// continues from the next byte, in the same recover-and-continue spirit
// as the teacher's ignoreScannerError.
package lexer

import (
	"unicode"
	"unicode/utf8"

	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/position"
	"github.com/atlas-lang/atlas/token"
)

const (
	codeUnexpectedChar           = "AT1001"
	codeUnterminatedString       = "AT1002"
	codeInvalidEscape            = "AT1003"
	codeUnterminatedBlockComment = "AT1004"
)

// Lexer scans one source buffer and accumulates diagnostics along the way.
type Lexer struct {
	src   string
	file  string
	pos   int
	diags []diag.Diagnostic
}

// New creates a Lexer over src, attributing diagnostics to file.
func New(src, file string) *Lexer {
	return &Lexer{src: src, file: file}
}

// Diagnostics returns every lexical diagnostic collected so far.
func (l *Lexer) Diagnostics() []diag.Diagnostic {
	return l.diags
}

// Tokenize scans the entire source and returns the resulting token stream,
// always terminated by a single EOF token, plus any diagnostics produced.
func (l *Lexer) Tokenize() ([]token.Token, []diag.Diagnostic) {
	var toks []token.Token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks, l.diags
}

func (l *Lexer) emit(code, message string, span position.Span) {
	l.diags = append(l.diags, diag.Error(code, message, span).WithFile(l.file))
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.pos++
		case c == '/' && l.peekByteAt(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.peekByteAt(1) == '*':
			start := l.pos
			l.pos += 2
			for l.pos < len(l.src) && !(l.src[l.pos] == '*' && l.peekByteAt(1) == '/') {
				l.pos++
			}
			if l.pos < len(l.src) {
				l.pos += 2
			} else {
				l.emit(codeUnterminatedBlockComment, "unterminated block comment", position.NewSpan(start, l.pos))
			}
		default:
			return
		}
	}
}

func (l *Lexer) next() token.Token {
	l.skipTrivia()
	start := l.pos
	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EOF, Span: position.NewSpan(start, start)}
	}

	c := l.src[l.pos]
	switch {
	case isIdentStart(c):
		return l.scanIdent(start)
	case c >= '0' && c <= '9':
		return l.scanNumber(start)
	case c == '"':
		return l.scanString(start)
	}

	if k, width, ok := scanPunct(l.src[l.pos:]); ok {
		l.pos += width
		return token.Token{Kind: k, Literal: l.src[start:l.pos], Span: position.NewSpan(start, l.pos)}
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	span := position.NewSpan(start, l.pos)
	l.emit(codeUnexpectedChar, "unexpected character "+string(r), span)
	return token.Token{Kind: token.Illegal, Literal: l.src[start:l.pos], Span: span}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *Lexer) scanIdent(start int) token.Token {
	for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
		l.pos++
	}
	lit := l.src[start:l.pos]
	span := position.NewSpan(start, l.pos)
	if k, ok := token.Keywords[lit]; ok {
		return token.Token{Kind: k, Literal: lit, Span: span}
	}
	return token.Token{Kind: token.Ident, Literal: lit, Span: span}
}

func (l *Lexer) scanNumber(start int) token.Token {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	span := position.NewSpan(start, l.pos)
	lit := l.src[start:l.pos]
	return token.Token{Kind: token.Number, Literal: lit, Span: span}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *Lexer) scanString(start int) token.Token {
	l.pos++ // opening quote

	// val is the literal's value: quotes dropped, escapes decoded.
	var val []byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			span := position.NewSpan(start, l.pos)
			return token.Token{Kind: token.String, Literal: string(val), Span: span}
		}
		if c == '\\' {
			l.pos++
			if l.pos >= len(l.src) {
				break
			}
			switch l.src[l.pos] {
			case 'n', 't', 'r', '\\', '"', '0':
				val = append(val, map[byte]byte{'n': '\n', 't': '\t', 'r': '\r', '\\': '\\', '"': '"', '0': 0}[l.src[l.pos]])
				l.pos++
			default:
				escSpan := position.NewSpan(l.pos-1, l.pos+1)
				l.emit(codeInvalidEscape, "invalid escape sequence", escSpan)
				l.pos++
			}
			continue
		}
		if c == '\n' {
			break
		}
		_, size := utf8.DecodeRuneInString(l.src[l.pos:])
		val = append(val, l.src[l.pos:l.pos+size]...)
		l.pos += size
	}
	span := position.NewSpan(start, l.pos)
	l.emit(codeUnterminatedString, "unterminated string literal", span)
	return token.Token{Kind: token.Illegal, Literal: l.src[start:l.pos], Span: span}
}

// CommentRange is a byte span of a single comment, used by folding-range
// tooling independent of the main token stream.
type CommentRange struct {
	Span     position.Span
	Block    bool
	IsDocish bool
}

// ScanComments performs a side-scan over src collecting every comment span,
// without producing tokens or diagnostics. It is safe to run alongside
// Tokenize on the same source.
func ScanComments(src string) []CommentRange {
	var ranges []CommentRange
	pos := 0
	inString := false
	for pos < len(src) {
		c := src[pos]
		if inString {
			if c == '\\' && pos+1 < len(src) {
				pos += 2
				continue
			}
			if c == '"' {
				inString = false
			}
			pos++
			continue
		}
		switch {
		case c == '"':
			inString = true
			pos++
		case c == '/' && pos+1 < len(src) && src[pos+1] == '/':
			start := pos
			for pos < len(src) && src[pos] != '\n' {
				pos++
			}
			ranges = append(ranges, CommentRange{
				Span:     position.NewSpan(start, pos),
				IsDocish: pos-start >= 3 && src[start+2] == '/',
			})
		case c == '/' && pos+1 < len(src) && src[pos+1] == '*':
			start := pos
			pos += 2
			for pos < len(src) && !(src[pos] == '*' && pos+1 < len(src) && src[pos+1] == '/') {
				pos++
			}
			if pos < len(src) {
				pos += 2
			}
			ranges = append(ranges, CommentRange{Span: position.NewSpan(start, pos), Block: true})
		default:
			pos++
		}
	}
	return ranges
}

// IsSpace reports whether r is a token-separating whitespace rune, exposed
// for callers that need to re-derive column offsets across multi-byte runes.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r)
}
