package interp

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/binder"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/checker"
	"github.com/atlas-lang/atlas/compiler"
	"github.com/atlas-lang/atlas/debugger"
	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/jit"
	"github.com/atlas-lang/atlas/module"
	"github.com/atlas-lang/atlas/optimizer"
	"github.com/atlas-lang/atlas/parser"
	"github.com/atlas-lang/atlas/profiler"
	"github.com/atlas-lang/atlas/vm"
)

// EvalError reports that a source snippet failed at some stage of the
// pipeline; Diagnostics carries every diagnostic raised (lex/parse errors,
// binder/checker errors), sorted per diag.Sort.
type EvalError struct {
	Diagnostics []diag.Diagnostic
}

func (e *EvalError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "interp: evaluation failed"
	}
	return fmt.Sprintf("interp: %s", e.Diagnostics[0].Message)
}

// TimeoutError reports that a run exceeded RuntimeConfig.MaxExecutionTime.
type TimeoutError struct{ Limit time.Duration }

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("interp: execution exceeded %s", e.Limit)
}

// MemoryLimitError reports that a run's estimated allocation crossed
// RuntimeConfig.MaxMemoryBytes.
type MemoryLimitError struct{ Limit uint64 }

func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("interp: execution exceeded %d byte memory ceiling", e.Limit)
}

// nativeRegistration is a replay record for a host function registered via
// RegisterFunction/RegisterVariadic, reapplied to each fresh Machine since
// native registration is a Machine-level concern, not a Module-level one.
type nativeRegistration struct {
	name string
	fn   vm.NativeFunc
}

// Atlas is one embedding-API engine instance. It owns its own accumulated
// declarations, global bindings, registered natives, and (if configured)
// profiler/JIT/debugger state. Per §5, an Atlas instance is used by one
// goroutine at a time for the duration of an Eval; separate instances share
// no mutable state and may run concurrently.
type Atlas struct {
	cfg    RuntimeConfig
	logger *zap.Logger

	mu sync.Mutex

	// decls accumulates every function/struct/trait/impl declaration seen
	// across every Eval call on this engine (including ones pulled in via
	// import resolution), recompiled fresh on each call so later snippets
	// can call earlier-declared functions. Top-level executable statements
	// are never added here: each snippet's side effects run exactly once.
	decls []ast.Item
	// declIndex maps a declaration's dedupe key (see declName) to its index
	// in decls, so re-evaluating a snippet that redefines a function,
	// struct, trait impl, or import replaces the old entry in place instead
	// of appending a duplicate.
	declIndex map[string]int

	globals map[string]vm.Value
	natives []nativeRegistration

	registry *module.Registry

	hotspots *jit.HotspotTracker
	jitCache *jit.Cache
	prof     *profiler.Collector
	dbg      *debugger.Session

	nextFile int
}

// New creates an engine with the default (permissive) RuntimeConfig.
func New() *Atlas { return WithConfig(DefaultConfig()) }

// WithConfig creates an engine with the given RuntimeConfig.
func WithConfig(cfg RuntimeConfig) *Atlas {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Atlas{
		cfg:       cfg,
		logger:    zap.NewNop(),
		declIndex: map[string]int{},
		globals:   map[string]vm.Value{},
	}
}

// SetLogger stores l as the engine's logger (the default is a no-op
// logger); no pipeline stage or runtime event is logged through it.
func (a *Atlas) SetLogger(l *zap.Logger) { a.logger = l }

// SetModuleRegistry wires fsys as the source for `import "module/path"`
// resolution. Without one, import declarations are bound (name visibility
// checked) but never resolved to source.
func (a *Atlas) SetModuleRegistry(fsys fs.FS) { a.registry = module.NewRegistry(fsys) }

// EnableProfiling attaches a profiler.Collector to every Machine created by
// this engine from now on.
func (a *Atlas) EnableProfiling() *profiler.Collector {
	a.prof = profiler.NewCollector()
	return a.prof
}

// EnableJIT attaches a hotspot tracker and code cache (budget bytes) to
// every Machine created by this engine from now on.
func (a *Atlas) EnableJIT(threshold int64, budget int) {
	a.hotspots = jit.NewHotspotTracker(threshold)
	a.jitCache = jit.NewCache(budget)
}

// tryCompileHot lowers name's body to the JIT's numeric IR and inserts the
// compiled Native into the engine's cache once it first crosses the hot
// threshold. Functions outside the IR's (f64,...)->f64 subset simply fail
// to lower (jit.ErrUnsupported) and stay interpreted forever, per §4.8.
func (a *Atlas) tryCompileHot(mod *bytecode.Module, name string, entryOffset int) {
	if a.jitCache == nil {
		return
	}
	if _, ok := a.jitCache.Lookup(entryOffset); ok {
		return
	}
	paramCount := 0
	for _, c := range mod.Constants {
		if c.Kind == bytecode.ConstFunction && c.Func.Name == name {
			paramCount = c.Func.ParamCount
			break
		}
	}
	prog, err := jit.Build(mod, entryOffset, paramCount)
	if err != nil {
		return
	}
	native := jit.Compile(prog)
	_ = a.jitCache.Insert(entryOffset, len(prog.Instrs), paramCount, native)
}

// AttachDebugger installs a debugger session, built against sm, on every
// Machine created by this engine from now on.
func (a *Atlas) AttachDebugger(sm *debugger.SourceMap) *debugger.Session {
	a.dbg = debugger.NewSession(sm)
	return a.dbg
}

// RegisterFunction registers a fixed-arity native function under name,
// replacing any existing registration (native or built-in) of the same
// name. Arity is enforced by the caller's handler, not by the engine.
func (a *Atlas) RegisterFunction(name string, handler vm.NativeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.natives = append(a.natives, nativeRegistration{name: name, fn: handler})
}

// RegisterVariadic registers a variadic native function under name; the
// handler receives every argument passed at the call site regardless of
// count.
func (a *Atlas) RegisterVariadic(name string, handler vm.NativeFunc) {
	a.RegisterFunction(name, handler)
}

// Eval compiles and runs source, returning its result value. State
// (previously declared functions/structs/traits and previously assigned
// top-level bindings) persists across calls on the same engine.
func (a *Atlas) Eval(source string) (vm.Value, error) {
	return a.EvalWithContext(context.Background(), source)
}

// EvalFile reads path and evaluates its contents.
func (a *Atlas) EvalFile(path string) (vm.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vm.Null, err
	}
	return a.Eval(string(data))
}

// EvalWithContext is Eval with caller-supplied cancellation, additionally
// bounded by RuntimeConfig.MaxExecutionTime when set.
func (a *Atlas) EvalWithContext(ctx context.Context, source string) (vm.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file := a.nextFileName()

	prog, diags := a.parse(file, source)
	if diag.HasErrors(diags) {
		diag.Sort(diags)
		return vm.Null, &EvalError{Diagnostics: diags}
	}

	newDecls, stmts := splitItems(prog.Items)
	if err := a.resolveImports(ctx, prog.Items); err != nil {
		return vm.Null, err
	}
	a.mergeDecls(newDecls)

	combined := &ast.Program{Items: append(append([]ast.Item{}, a.decls...), stmts...), Sp: prog.Sp}

	bindResult := binder.New(file).Bind(combined)
	if diag.HasErrors(bindResult.Diags) {
		diag.Sort(bindResult.Diags)
		return vm.Null, &EvalError{Diagnostics: bindResult.Diags}
	}

	chk := checker.New(file)
	checkDiags := chk.Check(combined)
	if diag.HasErrors(checkDiags) {
		all := append(bindResult.Diags, checkDiags...)
		diag.Sort(all)
		return vm.Null, &EvalError{Diagnostics: all}
	}

	mod := compiler.Compile(combined)
	mod, _ = optimizer.Pipeline(optimizer.DefaultPasses())(mod)

	letSlots := topLevelLetSlots(stmts)

	mach := a.newMachine(mod)

	runCtx := ctx
	var cancel context.CancelFunc
	if a.cfg.MaxExecutionTime != nil {
		runCtx, cancel = context.WithTimeout(ctx, *a.cfg.MaxExecutionTime)
		defer cancel()
	}
	if a.cfg.MaxMemoryBytes != nil {
		var memCancel context.CancelFunc
		runCtx, memCancel = context.WithCancel(runCtx)
		defer memCancel()
		mach.Profiler = newMemoryGuard(mach.Profiler, *a.cfg.MaxMemoryBytes, memCancel)
	}

	result, err := mach.Run(runCtx)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return vm.Null, &TimeoutError{Limit: *a.cfg.MaxExecutionTime}
		}
		if mg, ok := mach.Profiler.(*memoryGuard); ok && mg.tripped {
			return vm.Null, &MemoryLimitError{Limit: *a.cfg.MaxMemoryBytes}
		}
		return vm.Null, err
	}

	a.harvestGlobals(mach, letSlots)
	a.globals = mach.Globals

	return result, nil
}

func (a *Atlas) nextFileName() string {
	a.nextFile++
	return fmt.Sprintf("<eval:%d>", a.nextFile)
}

func (a *Atlas) parse(file, source string) (*ast.Program, []diag.Diagnostic) {
	prog, diags := parser.New(source, file).Parse()
	for i := range diags {
		diags[i] = diags[i].WithFile(file)
	}
	return prog, diags
}

// splitItems separates declarative items (persisted across calls) from
// top-level executable statements (run exactly once, this call only).
func splitItems(items []ast.Item) (decls []ast.Item, stmts []ast.Item) {
	for _, item := range items {
		switch item.(type) {
		case *ast.FuncDecl, *ast.StructDecl, *ast.TraitDecl, *ast.ImplDecl, *ast.ImportDecl:
			decls = append(decls, item)
		default:
			stmts = append(stmts, item)
		}
	}
	return decls, stmts
}

// mergeDecls folds newDecls into the engine's accumulated declaration list,
// replacing any earlier declaration of the same name so re-evaluating a
// cell redefines rather than duplicates it.
func (a *Atlas) mergeDecls(newDecls []ast.Item) {
	for _, d := range newDecls {
		name := declName(d)
		if name == "" {
			a.decls = append(a.decls, d)
			continue
		}
		if idx, ok := a.declIndex[name]; ok {
			a.decls[idx] = d
			continue
		}
		a.declIndex[name] = len(a.decls)
		a.decls = append(a.decls, d)
	}
}

func declName(item ast.Item) string {
	switch d := item.(type) {
	case *ast.FuncDecl:
		return "fn:" + d.Name
	case *ast.StructDecl:
		return "struct:" + d.Name
	case *ast.TraitDecl:
		return "trait:" + d.Name
	case *ast.ImplDecl:
		return "impl:" + d.Type + ":" + d.Trait
	case *ast.ImportDecl:
		return "import:" + d.Path
	default:
		return ""
	}
}

// topLevelLetSlots replicates the compiler's top-level local-slot
// assignment: every LetStmt directly among a snippet's executed statements
// consumes the next local slot in encounter order, the same order
// compiler.Compile's script-body pass declares them in.
func topLevelLetSlots(stmts []ast.Item) map[int]string {
	slots := map[int]string{}
	slot := 0
	for _, item := range stmts {
		if let, ok := item.(*ast.LetStmt); ok {
			slots[slot] = let.Name
			slot++
		}
	}
	return slots
}

// harvestGlobals copies the final value of every top-level let introduced
// by this Eval call out of the machine's outermost frame and into the
// engine's persistent globals map, so a later Eval's free references to
// these names (which compile to OpGetGlobal, since they are not locals in
// that later compile) resolve correctly.
func (a *Atlas) harvestGlobals(mach *vm.Machine, slots map[int]string) {
	frame := mach.FrameAt(0)
	if frame == nil {
		return
	}
	for slot, name := range slots {
		if slot < len(frame.Locals) {
			mach.Globals[name] = frame.Locals[slot]
		}
	}
}

func (a *Atlas) newMachine(mod *bytecode.Module) *vm.Machine {
	mach := vm.New(mod)
	mach.Globals = a.globals
	for _, n := range a.natives {
		mach.RegisterNative(n.name, n.fn)
	}
	if a.prof != nil {
		mach.Profiler = a.prof
	}
	if a.hotspots != nil {
		mach.Profiler = newJITProfiler(mach.Profiler, a.hotspots, mod, func(name string, entryOffset int) {
			a.tryCompileHot(mod, name, entryOffset)
		})
	}
	if a.dbg != nil {
		mach.Debugger = a.dbg
	}
	return mach
}

// resolveImports resolves every ImportDecl among items through the
// engine's module registry (if one is configured), recursively pulling in
// each imported file's own declarations. Every edge discovered along the
// way is recorded and checked with module.DetectCycle so a real import
// cycle is reported as AT5003 instead of recursing forever, and a named
// specifier is checked against the resolved module's export table before
// being merged in, per AT5006. The grammar has no `import * as m` form to
// parse in the first place (the parser rejects that syntax itself with
// AT5007), so every specifier here names a single binding.
func (a *Atlas) resolveImports(ctx context.Context, items []ast.Item) error {
	if a.registry == nil {
		return nil
	}
	return a.resolveImportsFrom(ctx, "<entry>", items, map[string][]string{})
}

// resolveImportsFrom is the recursive worker for resolveImports. fromPath
// identifies the importing module in the edges graph ("<entry>" for the
// root Eval call); edges accumulates import-graph arcs across the whole
// recursion so module.DetectCycle sees the full graph discovered so far.
func (a *Atlas) resolveImportsFrom(ctx context.Context, fromPath string, items []ast.Item, edges map[string][]string) error {
	var imports []*ast.ImportDecl
	var specs []string
	for _, item := range items {
		imp, ok := item.(*ast.ImportDecl)
		if !ok {
			continue
		}
		imports = append(imports, imp)
		specs = append(specs, imp.Path)
	}
	if len(specs) == 0 {
		return nil
	}

	sources, diags := a.registry.ResolveAll(ctx, specs)
	if len(diags) > 0 {
		return &EvalError{Diagnostics: diags}
	}

	for i, src := range sources {
		if src == nil {
			continue
		}
		imp := imports[i]
		path, _ := module.ParseSpecifier(imp.Path)

		edges[fromPath] = append(edges[fromPath], path)
		if cyc, found := module.DetectCycle(fromPath, edges); found {
			return &EvalError{Diagnostics: []diag.Diagnostic{module.CycleDiagnostic(cyc)}}
		}

		prog, parseDiags := a.parse(src.Path, src.Text)
		if diag.HasErrors(parseDiags) {
			return &EvalError{Diagnostics: parseDiags}
		}

		if len(imp.Specifiers) > 0 {
			exports := exportedNames(prog.Items)
			var missing []diag.Diagnostic
			for _, spec := range imp.Specifiers {
				if !exports[spec.Name] {
					missing = append(missing, module.MissingExportDiagnostic(path, spec.Name).WithFile(src.Path))
				}
			}
			if len(missing) > 0 {
				return &EvalError{Diagnostics: missing}
			}
		}

		decls, _ := splitItems(prog.Items)
		a.mergeDecls(decls)
		if err := a.resolveImportsFrom(ctx, path, prog.Items, edges); err != nil {
			return err
		}
	}
	return nil
}

// exportedNames collects the set of top-level declaration names marked
// exported among items, used to check an import's requested specifiers
// against the resolved module's actual export table (AT5006).
func exportedNames(items []ast.Item) map[string]bool {
	names := map[string]bool{}
	for _, it := range items {
		switch d := it.(type) {
		case *ast.FuncDecl:
			if d.Export {
				names[d.Name] = true
			}
		case *ast.StructDecl:
			if d.Export {
				names[d.Name] = true
			}
		case *ast.TraitDecl:
			if d.Export {
				names[d.Name] = true
			}
		}
	}
	return names
}
