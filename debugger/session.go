package debugger

import (
	"fmt"

	"github.com/atlas-lang/atlas/vm"
)

// StopReason explains why a paused Session suspended execution.
type StopReason int

const (
	StopNone StopReason = iota
	StopBreakpoint
	StopStep
	StopEntry
	StopPause // an explicit user-requested pause mid-run
)

func (r StopReason) String() string {
	switch r {
	case StopBreakpoint:
		return "breakpoint"
	case StopStep:
		return "step"
	case StopEntry:
		return "entry"
	case StopPause:
		return "pause"
	default:
		return "none"
	}
}

// PauseEvent is emitted to the session's client whenever the VM suspends.
type PauseEvent struct {
	Reason   StopReason
	Location SourceLocation
	Offset   int
	HitBreak *Breakpoint // set only when Reason == StopBreakpoint
}

// Session coordinates a Manager, StepTracker, SourceMap and Inspector
// against a single running vm.Machine, implementing vm.Debugger so it can
// be attached directly as Machine.Debugger. It is the request/response
// surface an editor-facing client drives: SetBreakpoints, Continue,
// StepInto/Over/Out, and the inspection getters.
type Session struct {
	Breakpoints *Manager
	step        StepTracker
	sourceMap   *SourceMap
	Inspector   *Inspector

	paused      bool
	pauseRequested bool
	lastEvent   PauseEvent
	evalFunc    EvalFunc

	// offsetStack tracks the paused instruction offset of every active
	// frame depth, refreshed each time BeforeInstruction runs, so the
	// Inspector can render a full stack trace while paused.
	offsetStack map[int]int
}

// NewSession creates a session wired to sm for location resolution. The
// session starts with an empty breakpoint set and no step in flight.
func NewSession(sm *SourceMap) *Session {
	return &Session{
		Breakpoints: NewManager(),
		sourceMap:   sm,
		Inspector:   NewInspector(nil),
		offsetStack: map[int]int{},
	}
}

// SetEvalFunc installs the expression evaluator used for conditional
// breakpoints, so the session itself never depends on an expression
// evaluation package.
func (s *Session) SetEvalFunc(fn EvalFunc) { s.evalFunc = fn }

// BeforeInstruction implements vm.Debugger. It is called once per
// instruction, before it executes, and decides whether the VM should
// suspend.
func (s *Session) BeforeInstruction(ip int, frameDepth int) bool {
	s.offsetStack[frameDepth-1] = ip

	if s.pauseRequested {
		s.pauseRequested = false
		s.enterPause(StopPause, ip, nil)
		return true
	}

	loc, hasLoc := SourceLocation{}, false
	if s.sourceMap != nil {
		loc, hasLoc = s.sourceMap.Forward(ip)
	}

	for _, bp := range s.Breakpoints.AtOffset(ip) {
		fire, err := s.Breakpoints.ShouldFire(bp, s.evalFunc)
		if err != nil {
			continue
		}
		if fire {
			s.enterPause(StopBreakpoint, ip, bp)
			return true
		}
	}

	if s.step.Active() && s.step.ShouldStop(frameDepth, loc, hasLoc, ip) {
		s.enterPause(StopStep, ip, nil)
		return true
	}

	return false
}

func (s *Session) enterPause(reason StopReason, offset int, bp *Breakpoint) {
	s.paused = true
	var loc SourceLocation
	if s.sourceMap != nil {
		loc, _ = s.sourceMap.Forward(offset)
	}
	s.lastEvent = PauseEvent{Reason: reason, Location: loc, Offset: offset, HitBreak: bp}
}

// Paused reports whether the session is currently suspended.
func (s *Session) Paused() bool { return s.paused }

// LastEvent returns the most recent pause event.
func (s *Session) LastEvent() PauseEvent { return s.lastEvent }

// RequestPause asks the session to suspend at the next instruction
// boundary, regardless of breakpoints or steps in flight.
func (s *Session) RequestPause() { s.pauseRequested = true }

// resume clears the paused flag so BeforeInstruction stops returning true
// until the next stop condition is met; callers invoke this right before
// resuming the VM's Run loop.
func (s *Session) resume() { s.paused = false }

// Continue resumes execution with no step active: the VM runs until the
// next breakpoint or an explicit pause request.
func (s *Session) Continue() {
	s.step.Clear()
	s.resume()
}

// currentLine resolves the location of the last instruction dispatched in
// m's innermost frame, used as a step's starting line.
func (s *Session) currentLine(m *vm.Machine) (int, bool) {
	if s.sourceMap == nil {
		return 0, false
	}
	off, ok := s.offsetStack[m.FrameDepth()-1]
	if !ok {
		return 0, false
	}
	loc, ok := s.sourceMap.Forward(off)
	return loc.Line, ok
}

// StepInto resumes execution, stopping at the next instruction whose
// source line differs from the current one (or immediately if the current
// location has no line info), descending into any call made along the way.
func (s *Session) StepInto(m *vm.Machine) {
	line, hasLine := s.currentLine(m)
	s.step.Begin(StepInto, m.FrameDepth(), line, hasLine)
	s.resume()
}

// StepOver resumes execution, stopping at the next line-changed instruction
// at the same or a shallower call depth.
func (s *Session) StepOver(m *vm.Machine) {
	line, hasLine := s.currentLine(m)
	s.step.Begin(StepOver, m.FrameDepth(), line, hasLine)
	s.resume()
}

// StepOut resumes execution until the current frame returns.
func (s *Session) StepOut(m *vm.Machine) {
	s.step.Begin(StepOut, m.FrameDepth(), 0, false)
	s.resume()
}

// RunToLine resumes execution until file:line is reached.
func (s *Session) RunToLine(m *vm.Machine, file string, line int) {
	s.step.BeginRunToLine(m.FrameDepth(), file, line)
	s.resume()
}

// RunToOffset resumes execution until the given raw instruction offset is
// reached.
func (s *Session) RunToOffset(m *vm.Machine, offset int) {
	s.step.BeginRunToOffset(m.FrameDepth(), offset)
	s.resume()
}

// ---- Request/response protocol ----

// SetBreakpointsRequest replaces every breakpoint bound to file with a
// fresh set at the given lines, matching the "client resends the full set
// for a file on every edit" editor protocol shape.
type SetBreakpointsRequest struct {
	File  string
	Lines []int
}

// SetBreakpointsResponse reports, per requested line, whether a breakpoint
// was verified (bound to an instruction offset) and its assigned id.
type SetBreakpointsResponse struct {
	Breakpoints []*Breakpoint
}

// SetBreakpoints implements the SetBreakpoints request: it clears any
// existing breakpoints previously bound to req.File and rebinds one per
// requested line, using sm to resolve a line to the nearest executable
// instruction offset (per NearestLineAtOrAfter).
func (s *Session) SetBreakpoints(req SetBreakpointsRequest) SetBreakpointsResponse {
	for _, bp := range s.Breakpoints.List() {
		if bp.Requested.File == req.File {
			s.Breakpoints.Remove(bp.ID)
		}
	}

	resp := SetBreakpointsResponse{}
	for _, line := range req.Lines {
		bp := s.Breakpoints.Add(SourceLocation{File: req.File, Line: line}, Condition{Kind: Always}, nil)
		if s.sourceMap == nil {
			resp.Breakpoints = append(resp.Breakpoints, bp)
			continue
		}
		resolvedLine := line
		if off, ok := s.sourceMap.Reverse(line); ok {
			s.Breakpoints.Bind(bp, off)
		} else if nearest, ok := s.sourceMap.NearestLineAtOrAfter(line); ok {
			resolvedLine = nearest
			if off, ok := s.sourceMap.Reverse(nearest); ok {
				s.Breakpoints.Bind(bp, off)
			}
		}
		bp.Requested.Line = resolvedLine
		resp.Breakpoints = append(resp.Breakpoints, bp)
	}
	return resp
}

// StackTraceResponse is the response to a StackTrace request.
type StackTraceResponse struct {
	Frames []Frame
}

// StackTrace reports every active frame of m, most-recent first.
func (s *Session) StackTrace(m *vm.Machine) StackTraceResponse {
	return StackTraceResponse{Frames: s.Inspector.StackTrace(m, s.sourceMap, s.offsetStack)}
}

// ScopesResponse is the response to a Scopes request.
type ScopesResponse struct {
	Locals  []Variable
	Globals []Variable
}

// Scopes reports the local and global variables visible at depth.
func (s *Session) Scopes(m *vm.Machine, depth int) ScopesResponse {
	return ScopesResponse{
		Locals:  s.Inspector.Scope(m, depth),
		Globals: s.Inspector.Globals(m),
	}
}

// EvaluateResponse is the response to an Evaluate request.
type EvaluateResponse struct {
	Result string
	Err    error
}

// Evaluate runs expr against the session's evaluator, if one is
// configured, formatting any error into the response rather than
// returning it directly so a client can always render something.
func (s *Session) Evaluate(expr string) EvaluateResponse {
	if s.evalFunc == nil {
		return EvaluateResponse{Err: fmt.Errorf("debugger: no expression evaluator configured")}
	}
	ok, err := s.evalFunc(expr)
	if err != nil {
		return EvaluateResponse{Err: err}
	}
	if ok {
		return EvaluateResponse{Result: "true"}
	}
	return EvaluateResponse{Result: "false"}
}
