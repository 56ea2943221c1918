package interp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/atlas-lang/atlas/vm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEvalReturnsLastTopLevelValue(t *testing.T) {
	a := New()
	v, err := a.Eval("let x = 2 + 3 * 4; x;")
	require.NoError(t, err)
	require.Equal(t, vm.KindNumber, v.Kind)
	require.Equal(t, float64(14), v.Number)
}

func TestEvalPersistsTopLevelLetAcrossCalls(t *testing.T) {
	a := New()
	_, err := a.Eval("let counter = 1;")
	require.NoError(t, err)

	v, err := a.Eval("counter + 1;")
	require.NoError(t, err)
	require.Equal(t, float64(2), v.Number)
}

func TestEvalPersistsFunctionDeclarationsAcrossCalls(t *testing.T) {
	a := New()
	_, err := a.Eval("fn double(n: number) -> number { return n * 2; }")
	require.NoError(t, err)

	v, err := a.Eval("double(21);")
	require.NoError(t, err)
	require.Equal(t, float64(42), v.Number)
}

func TestEvalRedefiningAFunctionReplacesItRatherThanDuplicating(t *testing.T) {
	a := New()
	_, err := a.Eval("fn greetingNumber() -> number { return 1; }")
	require.NoError(t, err)
	_, err = a.Eval("fn greetingNumber() -> number { return 2; }")
	require.NoError(t, err)

	v, err := a.Eval("greetingNumber();")
	require.NoError(t, err)
	require.Equal(t, float64(2), v.Number)
}

func TestEvalSyntaxErrorReturnsEvalError(t *testing.T) {
	a := New()
	_, err := a.Eval("let x = ;")
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.NotEmpty(t, evalErr.Diagnostics)
}

func TestEvalUndefinedIdentifierReturnsEvalError(t *testing.T) {
	a := New()
	_, err := a.Eval("unknownName;")
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
}

func TestRegisterFunctionIsCallableFromScript(t *testing.T) {
	a := New()
	a.RegisterFunction("double", func(args []vm.Value) (vm.Value, error) {
		return vm.Number(args[0].Number * 2), nil
	})

	v, err := a.Eval("double(21);")
	require.NoError(t, err)
	require.Equal(t, float64(42), v.Number)
}

func TestRegisterFunctionSurvivesAcrossEvalCalls(t *testing.T) {
	a := New()
	calls := 0
	a.RegisterFunction("tick", func(args []vm.Value) (vm.Value, error) {
		calls++
		return vm.Number(float64(calls)), nil
	})

	_, err := a.Eval("tick();")
	require.NoError(t, err)
	_, err = a.Eval("tick();")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestEvalWithContextHonorsMaxExecutionTime(t *testing.T) {
	d := 10 * time.Millisecond
	a := WithConfig(DefaultConfig().WithMaxExecutionTime(d))
	a.RegisterFunction("spin", func(args []vm.Value) (vm.Value, error) {
		time.Sleep(30 * time.Millisecond)
		return vm.Null, nil
	})

	_, err := a.Eval("spin();")
	require.Error(t, err)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestEvalWithContextRespectsCallerCancellation(t *testing.T) {
	a := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a.RegisterFunction("noop", func(args []vm.Value) (vm.Value, error) { return vm.Null, nil })
	_, err := a.EvalWithContext(ctx, "noop();")
	require.Error(t, err)
}

func TestEvalFileReadsAndEvaluatesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.atlas")
	require.NoError(t, os.WriteFile(path, []byte("1 + 1;"), 0o644))

	a := New()
	v, err := a.EvalFile(path)
	require.NoError(t, err)
	require.Equal(t, float64(2), v.Number)
}

func TestEvalImportResolvesExportedFunction(t *testing.T) {
	fsys := fstest.MapFS{
		"geometry.atlas": &fstest.MapFile{Data: []byte("export fn square(n: number) -> number { return n * n; }")},
	}
	a := New()
	a.SetModuleRegistry(fsys)

	_, err := a.Eval(`import { square } from "geometry.atlas";`)
	require.NoError(t, err)

	v, err := a.Eval("square(6);")
	require.NoError(t, err)
	require.Equal(t, float64(36), v.Number)
}

func TestEvalImportMissingExportReportsAT5006(t *testing.T) {
	fsys := fstest.MapFS{
		"geometry.atlas": &fstest.MapFile{Data: []byte("fn square(n: number) -> number { return n * n; }")},
	}
	a := New()
	a.SetModuleRegistry(fsys)

	_, err := a.Eval(`import { square } from "geometry.atlas";`)
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.Len(t, evalErr.Diagnostics, 1)
	require.Equal(t, "AT5006", evalErr.Diagnostics[0].Code)
}

func TestEvalImportCycleReportsAT5003(t *testing.T) {
	fsys := fstest.MapFS{
		"a.atlas": &fstest.MapFile{Data: []byte(`import "b.atlas";`)},
		"b.atlas": &fstest.MapFile{Data: []byte(`import "a.atlas";`)},
	}
	a := New()
	a.SetModuleRegistry(fsys)

	_, err := a.Eval(`import "a.atlas";`)
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.NotEmpty(t, evalErr.Diagnostics)
	require.Equal(t, "AT5003", evalErr.Diagnostics[0].Code)
}

func TestEvalNamespaceImportRejectedAsAT5007(t *testing.T) {
	a := New()
	_, err := a.Eval(`import * as geo from "geometry.atlas";`)
	require.Error(t, err)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	require.NotEmpty(t, evalErr.Diagnostics)
	require.Equal(t, "AT5007", evalErr.Diagnostics[0].Code)
}
