package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBasicExpression(t *testing.T) {
	toks, diags := New(`let x: number = 2 + 3 * 4;`, "<input>").Tokenize()
	require.Empty(t, diags)
	require.Equal(t, []token.Kind{
		token.KwLet, token.Ident, token.Colon, token.Ident, token.Equal,
		token.Number, token.Plus, token.Number, token.Star, token.Number,
		token.Semicolon, token.EOF,
	}, kinds(toks))
}

func TestTokenizeKeywordsAndOperators(t *testing.T) {
	toks, diags := New(`if x >= 1 && y != 2 { } else { }`, "<input>").Tokenize()
	require.Empty(t, diags)
	require.Contains(t, kinds(toks), token.GreaterEqual)
	require.Contains(t, kinds(toks), token.AmpAmp)
	require.Contains(t, kinds(toks), token.BangEqual)
	require.Contains(t, kinds(toks), token.KwElse)
}

func TestTokenizeString(t *testing.T) {
	toks, diags := New(`"hello\nworld"`, "<input>").Tokenize()
	require.Empty(t, diags)
	require.Equal(t, token.String, toks[0].Kind)
}

func TestTokenizeUnterminatedString(t *testing.T) {
	_, diags := New(`"hello`, "<input>").Tokenize()
	require.Len(t, diags, 1)
	require.Equal(t, codeUnterminatedString, diags[0].Code)
}

func TestTokenizeInvalidEscape(t *testing.T) {
	_, diags := New(`"bad\qescape"`, "<input>").Tokenize()
	require.Len(t, diags, 1)
	require.Equal(t, codeInvalidEscape, diags[0].Code)
}

func TestTokenizeUnexpectedChar(t *testing.T) {
	_, diags := New("let x = 1 ` 2;", "<input>").Tokenize()
	require.NotEmpty(t, diags)
	require.Equal(t, codeUnexpectedChar, diags[0].Code)
}

func TestTokenizeUnterminatedBlockComment(t *testing.T) {
	_, diags := New("let x = 1; /* never closed", "<input>").Tokenize()
	require.Len(t, diags, 1)
	require.Equal(t, codeUnterminatedBlockComment, diags[0].Code)
}

func TestTokenizeContinuesAfterError(t *testing.T) {
	toks, diags := New("1 ` 2", "<input>").Tokenize()
	require.Len(t, diags, 1)
	require.Equal(t, token.EOF, toks[len(toks)-1].Kind)
	require.True(t, len(toks) >= 3)
}

func TestScanCommentsLineAndBlock(t *testing.T) {
	src := "// doc\nfn f() {}\n/* block */"
	ranges := ScanComments(src)
	require.Len(t, ranges, 2)
	require.False(t, ranges[0].Block)
	require.True(t, ranges[1].Block)
}

func TestScanCommentsIgnoresStringContents(t *testing.T) {
	src := `let s = "// not a comment";`
	ranges := ScanComments(src)
	require.Empty(t, ranges)
}
