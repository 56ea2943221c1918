package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/bytecode"
)

func TestHotspotTrackerBecomesHotAtThresholdAndNeverRegresses(t *testing.T) {
	h := NewHotspotTracker(3)
	require.False(t, h.RecordCall(10))
	require.False(t, h.RecordCall(10))
	require.True(t, h.RecordCall(10))
	require.True(t, h.IsHot(10))
	// Further calls never report becameHot again, and hotness persists.
	require.False(t, h.RecordCall(10))
	require.True(t, h.IsHot(10))
}

func buildAddFunction() *bytecode.Module {
	// fn(a, b) { return a + b; }
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpGetLocal, Operand: 1},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpReturn},
	}
	offset := 0
	for i := range instrs {
		instrs[i].Offset = offset
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		offset += instrs[i].ByteSize
	}
	return &bytecode.Module{Code: bytecode.Encode(instrs)}
}

func TestBuildAndCompileNumericFunction(t *testing.T) {
	mod := buildAddFunction()
	prog, err := Build(mod, 0, 2)
	require.NoError(t, err)

	fn := Compile(prog)
	result, err := fn([]float64{3, 4})
	require.NoError(t, err)
	require.Equal(t, 7.0, result)
}

func TestBuildRejectsNonNumericOpcode(t *testing.T) {
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpGetLocal, Operand: 0},
		{Op: bytecode.OpCall, Operand: 0},
		{Op: bytecode.OpReturn},
	}
	offset := 0
	for i := range instrs {
		instrs[i].Offset = offset
		instrs[i].ByteSize = bytecode.ByteSize(instrs[i].Op)
		offset += instrs[i].ByteSize
	}
	mod := &bytecode.Module{Code: bytecode.Encode(instrs)}

	_, err := Build(mod, 0, 1)
	require.Error(t, err)
	var unsupported *ErrUnsupported
	require.ErrorAs(t, err, &unsupported)
}

func TestCacheInsertAndLookupRoundTrip(t *testing.T) {
	c := NewCache(100)
	fn := Native(func(args []float64) (float64, error) { return args[0], nil })
	require.NoError(t, c.Insert(0, 40, 1, fn))

	entry, ok := c.Lookup(0)
	require.True(t, ok)
	v, err := entry.Fn([]float64{5})
	require.NoError(t, err)
	require.Equal(t, 5.0, v)
}

func TestCacheEvictsAscendingHitCountUntilItFits(t *testing.T) {
	c := NewCache(100)
	noop := Native(func(args []float64) (float64, error) { return 0, nil })
	require.NoError(t, c.Insert(1, 40, 0, noop))
	require.NoError(t, c.Insert(2, 40, 0, noop))

	// Entry 1 gets more hits than entry 2, so entry 2 is evicted first
	// when a new insertion needs the space.
	_, _ = c.Lookup(1)
	_, _ = c.Lookup(1)
	_, _ = c.Lookup(2)

	require.NoError(t, c.Insert(3, 40, 0, noop))

	_, ok2 := c.Lookup(2)
	require.False(t, ok2)
	_, ok1 := c.Lookup(1)
	require.True(t, ok1)
	_, ok3 := c.Lookup(3)
	require.True(t, ok3)
}

func TestCacheInsertFailsWhenEvictionCannotFreeEnoughSpace(t *testing.T) {
	c := NewCache(50)
	noop := Native(func(args []float64) (float64, error) { return 0, nil })
	require.NoError(t, c.Insert(1, 40, 0, noop))

	err := c.Insert(2, 60, 0, noop)
	require.Error(t, err)
	var full *CacheFullError
	require.ErrorAs(t, err, &full)
	require.Equal(t, 50, full.Limit)
	require.Equal(t, 60, full.Needed)
}

func TestInvalidateAllBumpsVersionWithoutFreeingImmediately(t *testing.T) {
	c := NewCache(100)
	noop := Native(func(args []float64) (float64, error) { return 0, nil })
	require.NoError(t, c.Insert(1, 40, 0, noop))

	c.InvalidateAll()
	_, ok := c.Lookup(1)
	require.False(t, ok, "stale-version entry must fail the version check")
	require.Equal(t, 40, c.Used(), "eviction-pending entries still occupy budget until reinsertion needs it")
}

func TestInvalidateSingleEntryFreesItsBudgetImmediately(t *testing.T) {
	c := NewCache(100)
	noop := Native(func(args []float64) (float64, error) { return 0, nil })
	require.NoError(t, c.Insert(1, 40, 0, noop))

	c.Invalidate(1)
	require.Equal(t, 0, c.Used())
	_, ok := c.Lookup(1)
	require.False(t, ok)
}
