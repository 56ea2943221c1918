// Package jit implements tiered execution for Atlas: a hotspot tracker
// that watches per-function call counts, an IR builder/evaluator that
// stands in for "native code" (§4.8 — a Go closure over a decoded
// instruction list rather than emitted machine code, since no example in
// the corpus demonstrates an assembler/cgo path for this domain), and a
// size-budgeted code cache with ascending-hit-count eviction and
// version-bump invalidation.
package jit

import (
	"fmt"
	"sort"
	"sync"

	"github.com/atlas-lang/atlas/bytecode"
)

// HotspotTracker records per-function call counts keyed by bytecode entry
// offset and reports a function "hot" once its count crosses threshold.
// Tracked functions never regress: once hot, always hot, even if later
// calls slow down.
type HotspotTracker struct {
	mu        sync.Mutex
	threshold int64
	counts    map[int]int64
	hot       map[int]bool
}

// NewHotspotTracker creates a tracker that flags a function hot once its
// call count reaches threshold.
func NewHotspotTracker(threshold int64) *HotspotTracker {
	if threshold <= 0 {
		threshold = 1
	}
	return &HotspotTracker{threshold: threshold, counts: map[int]int64{}, hot: map[int]bool{}}
}

// RecordCall increments entryOffset's call count and reports whether the
// function just became hot on this call (false if it was already hot or
// is still below threshold).
func (h *HotspotTracker) RecordCall(entryOffset int) (becameHot bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[entryOffset]++
	if h.hot[entryOffset] {
		return false
	}
	if h.counts[entryOffset] >= h.threshold {
		h.hot[entryOffset] = true
		return true
	}
	return false
}

// IsHot reports whether entryOffset has crossed the hot threshold.
func (h *HotspotTracker) IsHot(entryOffset int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hot[entryOffset]
}

// CallCount returns the current call count for entryOffset.
func (h *HotspotTracker) CallCount(entryOffset int) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[entryOffset]
}

// ---- IR ----

// IROp is a flat float64-register instruction understood by the
// closure-compiled evaluator. Only the numeric (f64,...)->f64 calling
// shape named in §4.8 is supported; anything else fails to lower and the
// function stays interpreted.
type IROp int

const (
	IRLoadArg IROp = iota // operand: arg index -> push
	IRLoadConst
	IRAdd
	IRSub
	IRMul
	IRDiv
	IRNeg
	IRReturn
)

// IRInstr is one IR instruction: its op plus an operand meaningful only
// for IRLoadArg (argument index) and IRLoadConst (constant value).
type IRInstr struct {
	Op      IROp
	ArgIdx  int
	Const   float64
}

// Program is a lowered function body: a flat instruction list operating on
// an implicit float64 stack.
type Program struct {
	Instrs     []IRInstr
	ParamCount int
}

// ErrUnsupported reports that a function's bytecode could not be lowered
// to the numeric IR (a non-numeric signature, or an opcode the IR builder
// has no lowering for) — §9's "non-numeric intrinsics fall back to
// interpretation" rule, generalized to whole functions.
type ErrUnsupported struct{ Reason string }

func (e *ErrUnsupported) Error() string { return "jit: unsupported: " + e.Reason }

// Build lowers the bytecode instructions of a single function (decoded
// starting at entryOffset, ending at the first Return reachable without
// entering a nested call) into an IR Program. It handles straight-line
// arithmetic over parameters and constants — the subset the spec's
// "(f64, ...) -> f64" calling shape requires; control flow, calls, and
// non-numeric opcodes are unsupported and reported via ErrUnsupported so
// the caller falls back to interpretation.
func Build(mod *bytecode.Module, entryOffset, paramCount int) (*Program, error) {
	instrs := bytecode.Decode(mod.Code)
	start := -1
	for i, ins := range instrs {
		if ins.Offset == entryOffset {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, &ErrUnsupported{Reason: "entry offset not found"}
	}

	prog := &Program{ParamCount: paramCount}
	for i := start; i < len(instrs); i++ {
		ins := instrs[i]
		switch ins.Op {
		case bytecode.OpGetLocal:
			if ins.Operand >= paramCount {
				return nil, &ErrUnsupported{Reason: "local beyond parameters"}
			}
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRLoadArg, ArgIdx: ins.Operand})
		case bytecode.OpConstant:
			c := mod.Constants[ins.Operand]
			if c.Kind != bytecode.ConstNumber {
				return nil, &ErrUnsupported{Reason: "non-numeric constant"}
			}
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRLoadConst, Const: c.Number})
		case bytecode.OpAdd:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRAdd})
		case bytecode.OpSub:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRSub})
		case bytecode.OpMul:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRMul})
		case bytecode.OpDiv:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRDiv})
		case bytecode.OpNegate:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRNeg})
		case bytecode.OpReturn:
			prog.Instrs = append(prog.Instrs, IRInstr{Op: IRReturn})
			return prog, nil
		default:
			return nil, &ErrUnsupported{Reason: fmt.Sprintf("opcode %s has no numeric lowering", ins.Op)}
		}
	}
	return nil, &ErrUnsupported{Reason: "function body never returns within the scanned range"}
}

// Native is the compiled artifact: a Go closure evaluating a Program over
// its arguments, standing in for emitted machine code per §4.8.
type Native func(args []float64) (float64, error)

// Compile turns a lowered Program into its Native evaluator.
func Compile(prog *Program) Native {
	return func(args []float64) (float64, error) {
		if len(args) != prog.ParamCount {
			return 0, fmt.Errorf("jit: expected %d argument(s), got %d", prog.ParamCount, len(args))
		}
		var stack []float64
		for _, ins := range prog.Instrs {
			switch ins.Op {
			case IRLoadArg:
				stack = append(stack, args[ins.ArgIdx])
			case IRLoadConst:
				stack = append(stack, ins.Const)
			case IRAdd, IRSub, IRMul, IRDiv:
				b := stack[len(stack)-1]
				a := stack[len(stack)-2]
				stack = stack[:len(stack)-2]
				var r float64
				switch ins.Op {
				case IRAdd:
					r = a + b
				case IRSub:
					r = a - b
				case IRMul:
					r = a * b
				case IRDiv:
					if b == 0 {
						return 0, fmt.Errorf("jit: division by zero")
					}
					r = a / b
				}
				stack = append(stack, r)
			case IRNeg:
				a := stack[len(stack)-1]
				stack[len(stack)-1] = -a
			case IRReturn:
				if len(stack) == 0 {
					return 0, nil
				}
				return stack[len(stack)-1], nil
			}
		}
		if len(stack) == 0 {
			return 0, nil
		}
		return stack[len(stack)-1], nil
	}
}

// ---- Code cache ----

// CacheEntry is one compiled function's cache record.
type CacheEntry struct {
	Fn         Native
	Size       int
	ParamCount int
	Version    int
	Hits       int64
}

// CacheFullError reports that an insertion could not free enough budget
// even after evicting every evictable entry.
type CacheFullError struct {
	Limit, Used, Needed int
}

func (e *CacheFullError) Error() string {
	return fmt.Sprintf("jit: cache full: limit=%d used=%d needed=%d", e.Limit, e.Used, e.Needed)
}

// Cache is a fixed-byte-budget code cache keyed by bytecode entry offset.
// Invalidation bumps a monotonic version so stale entries fail a version
// check without being freed immediately (a call site holding an old
// version number simply falls through to interpretation).
type Cache struct {
	mu      sync.Mutex
	budget  int
	used    int
	version int
	entries map[int]*CacheEntry
}

// NewCache creates a cache with the given byte budget.
func NewCache(budget int) *Cache {
	return &Cache{budget: budget, entries: map[int]*CacheEntry{}}
}

// Version returns the cache's current monotonic version.
func (c *Cache) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Lookup returns the entry for entryOffset along with whether it is
// version-current (callers should treat a stale-version hit the same as a
// miss and fall back to interpretation).
func (c *Cache) Lookup(entryOffset int) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[entryOffset]
	if !ok {
		return nil, false
	}
	if e.Version != c.version {
		return nil, false
	}
	e.Hits++
	return e, true
}

// Insert installs fn for entryOffset, sized at size bytes. If the
// insertion would exceed the budget, entries are evicted in ascending
// hit-count order until it fits; if eviction still cannot free enough
// space, Insert fails with CacheFullError and the function remains
// interpreted.
func (c *Cache) Insert(entryOffset, size, paramCount int, fn Native) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.budget {
		return &CacheFullError{Limit: c.budget, Used: c.used, Needed: size}
	}

	for c.used+size > c.budget {
		victim, ok := c.lowestHitEntry(entryOffset)
		if !ok {
			return &CacheFullError{Limit: c.budget, Used: c.used, Needed: size}
		}
		c.used -= c.entries[victim].Size
		delete(c.entries, victim)
	}

	c.entries[entryOffset] = &CacheEntry{Fn: fn, Size: size, ParamCount: paramCount, Version: c.version}
	c.used += size
	return nil
}

// lowestHitEntry finds the evictable entry (any key other than exclude)
// with the lowest hit count, breaking ties by ascending entry offset for
// determinism.
func (c *Cache) lowestHitEntry(exclude int) (int, bool) {
	best := -1
	var bestHits int64
	keys := make([]int, 0, len(c.entries))
	for k := range c.entries {
		if k == exclude {
			continue
		}
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		e := c.entries[k]
		if best == -1 || e.Hits < bestHits {
			best = k
			bestHits = e.Hits
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Invalidate removes a single entry and returns its bytes to the budget.
func (c *Cache) Invalidate(entryOffset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[entryOffset]; ok {
		c.used -= e.Size
		delete(c.entries, entryOffset)
	}
}

// InvalidateAll bumps the cache version so every existing entry fails its
// next version check, without freeing memory immediately (entries are
// physically dropped only when Insert later needs the space).
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
}

// Used returns the number of budget bytes currently occupied.
func (c *Cache) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
