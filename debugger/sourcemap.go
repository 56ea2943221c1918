package debugger

import (
	"sort"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/position"
)

// SourceMap bridges instruction offsets and source locations in both
// directions, built once per compiled module from its DebugSpan table and
// the source buffer's line table.
type SourceMap struct {
	file string
	// entries is offset-ordered ascending, enabling the "closest preceding
	// offset" forward lookup via binary search.
	entries []sourceMapEntry
	// byLine maps a 1-based line number to every offset whose span starts
	// on that line, in first-seen (ascending offset) order, so a
	// reverse lookup deterministically prefers the earliest instruction
	// on a line — typically the line's statement boundary.
	byLine map[int][]int
	lines  *position.LineTable
}

type sourceMapEntry struct {
	offset int
	loc    SourceLocation
}

// BuildSourceMap constructs a SourceMap for a single compiled module. file
// names the source this module was compiled from (surfaced in every
// resolved SourceLocation) and src is that module's source text, used only
// to build the line table.
func BuildSourceMap(file, src string, mod *bytecode.Module) *SourceMap {
	lines := position.NewLineTable(src)
	sm := &SourceMap{file: file, byLine: map[int][]int{}, lines: lines}

	spans := make([]bytecode.DebugSpan, len(mod.Debug))
	copy(spans, mod.Debug)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Offset < spans[j].Offset })

	for _, d := range spans {
		lc := lines.LineColumn(d.Span.Start)
		loc := SourceLocation{File: file, Line: lc.Line, Column: lc.Column}
		sm.entries = append(sm.entries, sourceMapEntry{offset: d.Offset, loc: loc})
		sm.byLine[lc.Line] = append(sm.byLine[lc.Line], d.Offset)
	}
	return sm
}

// Forward resolves an instruction offset to the source location of the
// closest preceding (or exact) debug span, so an offset with no entry of
// its own resolves to the nearest earlier one.
func (sm *SourceMap) Forward(offset int) (SourceLocation, bool) {
	if len(sm.entries) == 0 {
		return SourceLocation{}, false
	}
	idx := sort.Search(len(sm.entries), func(i int) bool {
		return sm.entries[i].offset > offset
	}) - 1
	if idx < 0 {
		return SourceLocation{}, false
	}
	return sm.entries[idx].loc, true
}

// Reverse resolves a source line to the offset of the first instruction
// recorded on it (first-insertion-wins: the earliest-compiled span on that
// line), used to bind a user-requested breakpoint line to an instruction
// offset.
func (sm *SourceMap) Reverse(line int) (int, bool) {
	offsets, ok := sm.byLine[line]
	if !ok || len(offsets) == 0 {
		return 0, false
	}
	return offsets[0], true
}

// ReverseAll returns every instruction offset recorded on line, in
// ascending order.
func (sm *SourceMap) ReverseAll(line int) []int {
	offsets := sm.byLine[line]
	out := make([]int, len(offsets))
	copy(out, offsets)
	sort.Ints(out)
	return out
}

// NearestLineAtOrAfter finds the smallest recorded line number >= line that
// has at least one bound instruction, for "breakpoint requested on a blank
// line" resolution (the debugger binds to the next executable line instead
// of rejecting the request outright).
func (sm *SourceMap) NearestLineAtOrAfter(line int) (int, bool) {
	best := -1
	for l := range sm.byLine {
		if l >= line && (best == -1 || l < best) {
			best = l
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}
