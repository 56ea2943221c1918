// Package diag implements Atlas's unified diagnostic model: errors and
// warnings produced by every frontend stage (lexer, parser, binder, type
// checker) and by the VM, all flowing through one stable, serializable
// type so tooling can render or compare them uniformly.
package diag

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/atlas-lang/atlas/position"
)

//go:embed schema.json
var Schema []byte

// GenericErrorCode and GenericWarningCode are used by ErrorGeneric /
// WarningGeneric for ad-hoc diagnostics that don't warrant a dedicated
// stable code (internal invariants, caller-supplied messages).
const (
	GenericErrorCode   = "AT9999"
	GenericWarningCode = "AW9999"
)

// ErrorGeneric builds an error diagnostic under the generic code.
func ErrorGeneric(message string, span position.Span) Diagnostic {
	return Error(GenericErrorCode, message, span)
}

// WarningGeneric builds a warning diagnostic under the generic code.
func WarningGeneric(message string, span position.Span) Diagnostic {
	return Warning(GenericWarningCode, message, span)
}

// Version is the diagnostic schema version. It is bumped only when the
// wire shape changes; diagnostic codes themselves are append-only and are
// never repurposed across versions (spec invariant).
const Version = 1

// Level is the severity of a diagnostic.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// RelatedLocation is a secondary span attached to a diagnostic, e.g.
// "first defined here".
type RelatedLocation struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Length  int    `json:"length"`
	Message string `json:"message"`
}

// Diagnostic is a single error or warning with a stable code, a rendered
// location, and optional supplementary information.
type Diagnostic struct {
	DiagVersion int               `json:"diag_version"`
	Level       Level             `json:"level"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	File        string            `json:"file"`
	Line        int               `json:"line"`
	Column      int               `json:"column"`
	Length      int               `json:"length"`
	Snippet     string            `json:"snippet"`
	Label       string            `json:"label"`
	Notes       []string          `json:"notes,omitempty"`
	Related     []RelatedLocation `json:"related,omitempty"`
	Help        *string           `json:"help,omitempty"`
}

// New builds a diagnostic at the given level and code, deriving line 1 /
// column = span.Start+1 placeholders; callers typically refine Line/Column
// via WithLineColumn once a LineTable is available.
func New(level Level, code, message string, span position.Span) Diagnostic {
	return Diagnostic{
		DiagVersion: Version,
		Level:       level,
		Code:        code,
		Message:     message,
		File:        "<unknown>",
		Line:        1,
		Column:      span.Start + 1,
		Length:      span.Len(),
	}
}

// Error builds an error-level diagnostic.
func Error(code, message string, span position.Span) Diagnostic {
	return New(LevelError, code, message, span)
}

// Warning builds a warning-level diagnostic.
func Warning(code, message string, span position.Span) Diagnostic {
	return New(LevelWarning, code, message, span)
}

// WithFile sets the file path and returns the diagnostic for chaining.
func (d Diagnostic) WithFile(file string) Diagnostic {
	d.File = file
	return d
}

// WithLineColumn sets the line, column (and re-derives nothing else) using
// a resolved LineColumn, typically from a position.LineTable.
func (d Diagnostic) WithLineColumn(lc position.LineColumn) Diagnostic {
	d.Line = lc.Line
	d.Column = lc.Column
	return d
}

// WithSnippet sets the rendered source line.
func (d Diagnostic) WithSnippet(snippet string) Diagnostic {
	d.Snippet = snippet
	return d
}

// WithLabel sets the short caret label.
func (d Diagnostic) WithLabel(label string) Diagnostic {
	d.Label = label
	return d
}

// WithNote appends a note.
func (d Diagnostic) WithNote(note string) Diagnostic {
	d.Notes = append(d.Notes, note)
	return d
}

// WithHelp sets the suggested-fix text.
func (d Diagnostic) WithHelp(help string) Diagnostic {
	d.Help = &help
	return d
}

// WithRelated appends a related location.
func (d Diagnostic) WithRelated(loc RelatedLocation) Diagnostic {
	d.Related = append(d.Related, loc)
	return d
}

// ToHumanString renders the diagnostic as multi-line human-readable text:
//
//	error[AT0001]: message
//	  --> file:line:column
//	   |
//	12 | source line
//	   | ^^^^ label
//	   = note: ...
//	   = help: ...
func (d Diagnostic) ToHumanString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]: %s\n", d.Level, d.Code, d.Message)
	fmt.Fprintf(&b, "  --> %s:%d:%d\n", d.File, d.Line, d.Column)

	if d.Snippet != "" {
		b.WriteString("   |\n")
		fmt.Fprintf(&b, "%2d | %s\n", d.Line, d.Snippet)
		if d.Length > 0 {
			pad := strings.Repeat(" ", max(0, d.Column-1))
			carets := strings.Repeat("^", d.Length)
			b.WriteString("   | " + pad + carets)
			if d.Label != "" {
				b.WriteString(" " + d.Label)
			}
			b.WriteString("\n")
		}
	}

	for _, n := range d.Notes {
		fmt.Fprintf(&b, "   = note: %s\n", n)
	}
	for _, r := range d.Related {
		fmt.Fprintf(&b, "   = note: related location at %s:%d:%d: %s\n", r.File, r.Line, r.Column, r.Message)
	}
	if d.Help != nil {
		fmt.Fprintf(&b, "   = help: %s\n", *d.Help)
	}
	return b.String()
}

// ToJSON renders the diagnostic as compact JSON.
func (d Diagnostic) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

// FromJSON parses a diagnostic from its JSON form.
func FromJSON(data []byte) (Diagnostic, error) {
	var d Diagnostic
	err := json.Unmarshal(data, &d)
	return d, err
}

// Sort orders diagnostics errors-before-warnings, then by (file, line,
// column) lexicographically. The sort is stable so repeated runs on the
// same input produce identical ordering.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Level != b.Level {
			return a.Level == LevelError
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// HasErrors reports whether any diagnostic in the slice is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
