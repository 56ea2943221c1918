// Package debugger implements Atlas's source-level debugger: breakpoints
// (conditional, log points), step semantics at source-line granularity,
// variable inspection, expression evaluation inside a paused frame, and
// the source map bridging instruction offsets to source locations (§4.9).
package debugger

import (
	"fmt"

	"github.com/google/uuid"
)

// ConditionKind discriminates a breakpoint's firing condition.
type ConditionKind int

const (
	Always ConditionKind = iota
	Expression
	HitCountAtLeast
	HitCountMultiple
)

// Condition is a breakpoint's pause predicate, evaluated against its own
// running hit counter (and, for Expression, the paused frame's variable
// environment).
type Condition struct {
	Kind       ConditionKind
	Expr       string // meaningful for Expression
	N          int64  // meaningful for HitCountAtLeast / HitCountMultiple
}

// SourceLocation is a human-facing (file, line, column) position, the
// debugger protocol's location shape (§6).
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// String renders "file:line:column".
func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Breakpoint is one user-requested pause point.
type Breakpoint struct {
	ID         string
	Requested  SourceLocation
	Verified   bool
	Offset     *int // bound instruction offset, set once the source map resolves Requested
	Enabled    bool
	Condition  Condition
	HitCount   int64
	LogMessage *string // non-nil makes this a log point: never pauses
}

// IsLogPoint reports whether bp logs instead of pausing.
func (bp *Breakpoint) IsLogPoint() bool { return bp.LogMessage != nil }

// Manager owns every breakpoint and an offset -> breakpoint-ids index for
// O(1) membership checks at each instruction, matching the "one branch per
// instruction when absent" debugger discipline elsewhere in the spec (here:
// a single map lookup when no breakpoint is bound to the current offset).
type Manager struct {
	byID     map[string]*Breakpoint
	byOffset map[int][]string
	order    []string // insertion order, for deterministic ListBreakpoints
	logBuf   []string
}

// NewManager creates an empty breakpoint manager.
func NewManager() *Manager {
	return &Manager{byID: map[string]*Breakpoint{}, byOffset: map[int][]string{}}
}

// Add registers a new breakpoint at loc with cond (Always if zero-valued),
// returning it. Verified/Offset are set later via Bind once a source map
// can resolve loc to an instruction offset.
func (m *Manager) Add(loc SourceLocation, cond Condition, logMessage *string) *Breakpoint {
	bp := &Breakpoint{
		ID: uuid.NewString(), Requested: loc, Enabled: true, Condition: cond, LogMessage: logMessage,
	}
	m.byID[bp.ID] = bp
	m.order = append(m.order, bp.ID)
	return bp
}

// Bind resolves bp against offset, marking it verified and indexing it for
// O(1) lookup during dispatch. Re-binding (e.g. after a recompile) first
// removes any previous index entry.
func (m *Manager) Bind(bp *Breakpoint, offset int) {
	if bp.Offset != nil {
		m.unindex(bp.ID, *bp.Offset)
	}
	o := offset
	bp.Offset = &o
	bp.Verified = true
	m.byOffset[offset] = append(m.byOffset[offset], bp.ID)
}

func (m *Manager) unindex(id string, offset int) {
	ids := m.byOffset[offset]
	for i, existing := range ids {
		if existing == id {
			m.byOffset[offset] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Remove deletes a breakpoint by id, returning whether it existed.
func (m *Manager) Remove(id string) bool {
	bp, ok := m.byID[id]
	if !ok {
		return false
	}
	if bp.Offset != nil {
		m.unindex(id, *bp.Offset)
	}
	delete(m.byID, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every breakpoint.
func (m *Manager) Clear() {
	m.byID = map[string]*Breakpoint{}
	m.byOffset = map[int][]string{}
	m.order = nil
}

// List returns every breakpoint in insertion order.
func (m *Manager) List() []*Breakpoint {
	out := make([]*Breakpoint, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

// Get looks up a breakpoint by id.
func (m *Manager) Get(id string) (*Breakpoint, bool) {
	bp, ok := m.byID[id]
	return bp, ok
}

// AtOffset returns every breakpoint bound to offset (enabled or not; the
// caller filters), for the single map lookup the VM's dispatch loop makes
// per instruction.
func (m *Manager) AtOffset(offset int) []*Breakpoint {
	ids := m.byOffset[offset]
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Breakpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id])
	}
	return out
}

// EvalFunc evaluates a boolean expression against the paused frame's
// variable environment, used for Condition.Kind == Expression. Injected by
// the session so the breakpoint manager has no evaluator dependency of its
// own.
type EvalFunc func(expr string) (bool, error)

// ShouldFire advances bp's hit counter and reports whether it should pause
// execution right now. A log point never pauses: when its condition is
// satisfied, its message is appended to the manager's log buffer instead
// and ShouldFire returns false.
func (m *Manager) ShouldFire(bp *Breakpoint, eval EvalFunc) (bool, error) {
	if !bp.Enabled {
		return false, nil
	}
	bp.HitCount++

	fire, err := bp.conditionMet(eval)
	if err != nil {
		return false, err
	}
	if !fire {
		return false, nil
	}
	if bp.IsLogPoint() {
		m.logBuf = append(m.logBuf, *bp.LogMessage)
		return false, nil
	}
	return true, nil
}

func (bp *Breakpoint) conditionMet(eval EvalFunc) (bool, error) {
	switch bp.Condition.Kind {
	case Always:
		return true, nil
	case Expression:
		if eval == nil {
			return true, nil
		}
		return eval(bp.Condition.Expr)
	case HitCountAtLeast:
		return bp.HitCount >= bp.Condition.N, nil
	case HitCountMultiple:
		if bp.Condition.N <= 0 {
			return false, nil
		}
		return bp.HitCount%bp.Condition.N == 0, nil
	default:
		return true, nil
	}
}

// LogBuffer returns every log-point message recorded so far, in firing
// order.
func (m *Manager) LogBuffer() []string { return m.logBuf }
