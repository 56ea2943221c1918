// Package module resolves import specifiers ("module/path[@version]") to
// already-available sources — an fs.FS-backed or in-memory registry, not a
// package manager: no network fetch, no lockfile, matching the scope of the
// original module loader this is grounded on.
package module

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-lang/atlas/diag"
	"github.com/atlas-lang/atlas/position"
)

const (
	codeVersionMismatch  = "AT5001"
	codeImportCycle      = "AT5003"
	codeModuleNotFound   = "AT5005"
	codeMissingExport    = "AT5006"
	codeNamespaceImport  = "AT5007"
)

// Source is a resolved module: its canonical path and source text.
type Source struct {
	Path string
	Text string
}

// Registry resolves import specifiers against an fs.FS of module sources,
// deduplicating concurrent resolution of the same path within one Eval via
// singleflight, and resolving independent subgraphs concurrently via
// errgroup.
type Registry struct {
	fsys fs.FS

	mu      sync.Mutex
	cache   map[string]*Source
	group   singleflight.Group
}

// NewRegistry builds a registry backed by fsys (the embedder's module
// sources).
func NewRegistry(fsys fs.FS) *Registry {
	return &Registry{fsys: fsys, cache: map[string]*Source{}}
}

// ParseSpecifier splits "module/path@version" into its path and optional
// version suffix.
func ParseSpecifier(spec string) (path, version string) {
	if i := strings.LastIndex(spec, "@"); i > 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

// Resolve loads a single module specifier, using singleflight to collapse
// concurrent requests for the same path, and checking the version suffix
// (if both sides specify one) with golang.org/x/mod/semver.
func (r *Registry) Resolve(ctx context.Context, spec string) (*Source, []diag.Diagnostic) {
	path, version := ParseSpecifier(spec)

	v, err, _ := r.group.Do(path, func() (interface{}, error) {
		r.mu.Lock()
		if cached, ok := r.cache[path]; ok {
			r.mu.Unlock()
			return cached, nil
		}
		r.mu.Unlock()

		data, err := fs.ReadFile(r.fsys, path)
		if err != nil {
			return nil, err
		}
		src := &Source{Path: path, Text: string(data)}
		r.mu.Lock()
		r.cache[path] = src
		r.mu.Unlock()
		return src, nil
	})
	if err != nil {
		return nil, []diag.Diagnostic{
			diag.Error(codeModuleNotFound, fmt.Sprintf("module %q not found", path), zeroSpan()),
		}
	}
	src := v.(*Source)

	if version != "" {
		if declared, ok := moduleVersion(src); ok && !semverCompatible(declared, version) {
			return src, []diag.Diagnostic{
				diag.Error(codeVersionMismatch,
					fmt.Sprintf("module %q: requested version %s is incompatible with %s", path, version, declared),
					zeroSpan()),
			}
		}
	}
	return src, nil
}

// ResolveAll resolves every specifier in specs concurrently, returning
// results in input order. Any failures are reported per-specifier; the
// overall call does not short-circuit on the first error.
func (r *Registry) ResolveAll(ctx context.Context, specs []string) ([]*Source, []diag.Diagnostic) {
	results := make([]*Source, len(specs))
	allDiags := make([][]diag.Diagnostic, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			src, diags := r.Resolve(gctx, spec)
			results[i] = src
			allDiags[i] = diags
			return nil
		})
	}
	_ = g.Wait()

	var flat []diag.Diagnostic
	for _, d := range allDiags {
		flat = append(flat, d...)
	}
	return results, flat
}

// DetectCycle walks the import graph (path -> imported paths) starting at
// root, returning the cycle as an ordered path list if one exists.
func DetectCycle(root string, edges map[string][]string) ([]string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range edges[n] {
			switch color[next] {
			case gray:
				// found the cycle: slice stack from next's first occurrence
				for i, s := range stack {
					if s == next {
						cyc := append([]string{}, stack[i:]...)
						return append(cyc, next)
					}
				}
			case white:
				if cyc := visit(next); cyc != nil {
					return cyc
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}
	if cyc := visit(root); cyc != nil {
		return cyc, true
	}
	return nil, false
}

// CycleDiagnostic builds the AT5003 diagnostic for a detected import cycle.
func CycleDiagnostic(cycle []string) diag.Diagnostic {
	return diag.Error(codeImportCycle,
		fmt.Sprintf("import cycle detected: %s", strings.Join(cycle, " -> ")), zeroSpan())
}

// NamespaceImportDiagnostic reports use of the rejected `import * as m`
// form (open question, resolved against: namespace imports stay
// unsupported).
func NamespaceImportDiagnostic() diag.Diagnostic {
	return diag.Error(codeNamespaceImport, "namespace imports (`import * as m`) are not supported", zeroSpan())
}

// MissingExportDiagnostic builds the AT5006 diagnostic for an import
// specifier that names a binding the resolved module's export table does
// not contain.
func MissingExportDiagnostic(path, name string) diag.Diagnostic {
	return diag.Error(codeMissingExport,
		fmt.Sprintf("module %q has no exported member %q", path, name), zeroSpan())
}

func semverCompatible(declared, requested string) bool {
	d, req := normalizeSemver(declared), normalizeSemver(requested)
	if !semver.IsValid(d) || !semver.IsValid(req) {
		return declared == requested
	}
	return semver.Major(d) == semver.Major(req)
}

func normalizeSemver(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// moduleVersion reads an optional leading "// version: x.y.z" comment from
// a module's source as its declared version; modules without one are
// treated as version-less and always compatible.
func moduleVersion(src *Source) (string, bool) {
	const prefix = "// version:"
	for _, line := range strings.Split(src.Text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
		if line != "" && !strings.HasPrefix(line, "//") {
			break
		}
	}
	return "", false
}

func zeroSpan() position.Span { return position.Span{} }

// SortedPaths returns the cached module paths in deterministic order, for
// tests and diagnostics that enumerate the registry.
func (r *Registry) SortedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.cache))
	for p := range r.cache {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
