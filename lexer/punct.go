package lexer

import "github.com/atlas-lang/atlas/token"

// punct3 and punct2 are ordered longest-match-first; scanPunct tries three
// bytes, then two, then one.
var punct3 = []struct {
	lit  string
	kind token.Kind
}{}

var punct2 = []struct {
	lit  string
	kind token.Kind
}{
	{"->", token.Arrow},
	{"=>", token.FatArrow},
	{"==", token.EqualEqual},
	{"!=", token.BangEqual},
	{"<=", token.LessEqual},
	{">=", token.GreaterEqual},
	{"&&", token.AmpAmp},
	{"||", token.PipePipe},
	{"??", token.QuestionQuestion},
}

var punct1 = map[byte]token.Kind{
	'(': token.LParen,
	')': token.RParen,
	'{': token.LBrace,
	'}': token.RBrace,
	'[': token.LBracket,
	']': token.RBracket,
	',': token.Comma,
	'.': token.Dot,
	':': token.Colon,
	';': token.Semicolon,
	'+': token.Plus,
	'-': token.Minus,
	'*': token.Star,
	'/': token.Slash,
	'%': token.Percent,
	'!': token.Bang,
	'=': token.Equal,
	'<': token.Less,
	'>': token.Greater,
	'?': token.Question,
}

// scanPunct attempts to match the longest punctuation/operator token at the
// start of s, returning its kind and byte width.
func scanPunct(s string) (token.Kind, int, bool) {
	for _, p := range punct3 {
		if len(s) >= 3 && s[:3] == p.lit {
			return p.kind, 3, true
		}
	}
	for _, p := range punct2 {
		if len(s) >= 2 && s[:2] == p.lit {
			return p.kind, 2, true
		}
	}
	if len(s) >= 1 {
		if k, ok := punct1[s[0]]; ok {
			return k, 1, true
		}
	}
	return 0, 0, false
}
