package debugger

import (
	"fmt"
	"strings"

	"github.com/atlas-lang/atlas/vm"
)

// maxInspectDepth bounds how many levels of nested record/array a formatted
// value descends before truncating, so a self-referential or merely huge
// structure can't make an inspector response unbounded.
const maxInspectDepth = 6

// maxArrayElements bounds how many elements of an array are rendered before
// the remainder collapses into a "... N more" marker.
const maxArrayElements = 100

// Variable is one named slot in an inspected scope.
type Variable struct {
	Name  string
	Value string // formatted, not the live vm.Value, so the session can be serialized
	Kind  string
}

// LocalNames associates a frame's local slot indices with their source
// names. The VM itself only knows locals by slot number; the compiler's
// debug metadata (recorded alongside bytecode.DebugSpan in a real pipeline)
// supplies this map. Tests and simple callers can also build one by hand.
type LocalNames map[int]string

// Inspector formats a paused Machine's frames and values for a debugger
// client. It holds no mutable state of its own.
type Inspector struct {
	names map[int]LocalNames // frame depth -> slot -> name
}

// NewInspector creates an inspector. names may be nil, in which case
// locals are reported by their slot index ("local0", "local1", ...).
func NewInspector(names map[int]LocalNames) *Inspector {
	if names == nil {
		names = map[int]LocalNames{}
	}
	return &Inspector{names: names}
}

// Frame describes one call frame for a "stack trace" response.
type Frame struct {
	Depth    int
	FuncName string
	Location SourceLocation
}

// StackTrace returns every active frame, innermost first, resolving each
// frame's current instruction offset through sm where possible. offsets
// gives the paused instruction offset for each frame depth (the caller
// tracks these as it steps through nested calls; frame 0 is the outermost
// frame, and the innermost one, at depth FrameDepth()-1, holds the
// machine's current ip).
func (ins *Inspector) StackTrace(m *vm.Machine, sm *SourceMap, offsets map[int]int) []Frame {
	depth := m.FrameDepth()
	out := make([]Frame, 0, depth)
	for d := depth - 1; d >= 0; d-- {
		f := m.FrameAt(d)
		if f == nil {
			continue
		}
		var loc SourceLocation
		if off, ok := offsets[d]; ok && sm != nil {
			loc, _ = sm.Forward(off)
		}
		out = append(out, Frame{Depth: d, FuncName: f.FuncName, Location: loc})
	}
	return out
}

// Scope enumerates the local variables of the frame at depth.
func (ins *Inspector) Scope(m *vm.Machine, depth int) []Variable {
	f := m.FrameAt(depth)
	if f == nil {
		return nil
	}
	names := ins.names[depth]
	vars := make([]Variable, 0, len(f.Locals))
	for slot, v := range f.Locals {
		name, ok := names[slot]
		if !ok {
			name = fmt.Sprintf("local%d", slot)
		}
		vars = append(vars, Variable{Name: name, Value: ins.Format(v, 0), Kind: kindName(v)})
	}
	return vars
}

// Globals enumerates every global binding.
func (ins *Inspector) Globals(m *vm.Machine) []Variable {
	vars := make([]Variable, 0, len(m.Globals))
	for name, v := range m.Globals {
		vars = append(vars, Variable{Name: name, Value: ins.Format(v, 0), Kind: kindName(v)})
	}
	return vars
}

func kindName(v vm.Value) string {
	switch v.Kind {
	case vm.KindNull:
		return "null"
	case vm.KindNumber:
		return "number"
	case vm.KindString:
		return "string"
	case vm.KindBool:
		return "bool"
	case vm.KindArray:
		return "array"
	case vm.KindRecord:
		return "record"
	case vm.KindFunction:
		return "function"
	case vm.KindNative:
		return "native"
	case vm.KindExtern:
		return "extern"
	default:
		return "unknown"
	}
}

// Format renders v as a depth-limited, truncated string suitable for a
// debugger client. It never calls vm.Value.String directly for
// arrays/records so nesting depth and element count stay bounded
// regardless of how large the live value is.
func (ins *Inspector) Format(v vm.Value, depth int) string {
	if depth >= maxInspectDepth {
		return "..."
	}
	switch v.Kind {
	case vm.KindArray:
		n := v.Array.Len()
		shown := n
		if shown > maxArrayElements {
			shown = maxArrayElements
		}
		parts := make([]string, 0, shown)
		for i := 0; i < shown; i++ {
			parts = append(parts, ins.Format(v.Array.At(i), depth+1))
		}
		s := "[" + strings.Join(parts, ", ")
		if n > shown {
			s += fmt.Sprintf(", ... %d more", n-shown)
		}
		return s + "]"
	case vm.KindRecord:
		parts := make([]string, 0, len(v.Record.Fields))
		for name, fv := range v.Record.Fields {
			parts = append(parts, name+": "+ins.Format(fv, depth+1))
		}
		return v.Record.TypeName + "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.String()
	}
}
