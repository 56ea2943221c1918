// Package position provides byte-offset source spans and line/column
// conversion shared by every later stage of the pipeline.
package position

import "sort"

// Span is a half-open byte range [Start, End) over a single source buffer.
// Spans are never synthesized from unrelated sources; every AST node,
// token, and diagnostic that carries a Span got it directly from the
// lexer's cursor over the buffer it is describing.
type Span struct {
	Start int
	End   int
}

// NewSpan builds a span, clamping End to be no less than Start.
func NewSpan(start, end int) Span {
	if end < start {
		end = start
	}
	return Span{Start: start, End: end}
}

// Len returns the number of bytes the span covers.
func (s Span) Len() int {
	return s.End - s.Start
}

// Join returns the smallest span covering both s and other.
func (s Span) Join(other Span) Span {
	start := s.Start
	if other.Start < start {
		start = other.Start
	}
	end := s.End
	if other.End > end {
		end = other.End
	}
	return Span{Start: start, End: end}
}

// LineColumn is a 1-based (line, column) pair.
type LineColumn struct {
	Line   int
	Column int
}

// LineTable maps byte offsets in a source buffer to 1-based (line, column)
// pairs. It is built once per source buffer and reused by every later stage
// (diagnostics, the debugger's source map) that needs human-readable
// locations.
type LineTable struct {
	// offsets[i] is the byte offset at which line i+1 (1-based) begins.
	offsets []int
}

// NewLineTable scans src once and records the byte offset of the start of
// every line. Line 1 always starts at offset 0.
func NewLineTable(src string) *LineTable {
	offsets := make([]int, 1, 16)
	offsets[0] = 0
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return &LineTable{offsets: offsets}
}

// LineColumn converts a byte offset to a 1-based (line, column) pair via
// binary search on the line-start table.
func (t *LineTable) LineColumn(offset int) LineColumn {
	idx := sort.Search(len(t.offsets), func(i int) bool {
		return t.offsets[i] > offset
	}) - 1
	if idx < 0 {
		idx = 0
	}
	lineStart := t.offsets[idx]
	col := offset - lineStart
	if col < 0 {
		col = 0
	}
	return LineColumn{Line: idx + 1, Column: col + 1}
}

// LineCount returns the number of lines recorded in the table.
func (t *LineTable) LineCount() int {
	return len(t.offsets)
}
