package position

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineTableBasics(t *testing.T) {
	tab := NewLineTable("abc\ndef")
	require.Equal(t, LineColumn{Line: 1, Column: 1}, tab.LineColumn(0))
	require.Equal(t, LineColumn{Line: 1, Column: 3}, tab.LineColumn(2))
	require.Equal(t, LineColumn{Line: 2, Column: 1}, tab.LineColumn(4))
	require.Equal(t, LineColumn{Line: 2, Column: 2}, tab.LineColumn(5))
}

func TestLineTableEmptySource(t *testing.T) {
	tab := NewLineTable("")
	require.Equal(t, 1, tab.LineCount())
	require.Equal(t, LineColumn{Line: 1, Column: 1}, tab.LineColumn(0))
}

func TestLineTableTrailingNewline(t *testing.T) {
	tab := NewLineTable("line1\n")
	require.Equal(t, 2, tab.LineCount())
}

func TestSpanJoin(t *testing.T) {
	a := NewSpan(3, 7)
	b := NewSpan(1, 5)
	require.Equal(t, NewSpan(1, 7), a.Join(b))
}

func TestSpanLen(t *testing.T) {
	require.Equal(t, 4, NewSpan(2, 6).Len())
}
