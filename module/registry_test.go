package module

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestResolveFindsModule(t *testing.T) {
	fsys := fstest.MapFS{
		"geometry/shapes.atlas": &fstest.MapFile{Data: []byte("fn area() -> number { return 0; }")},
	}
	r := NewRegistry(fsys)
	src, diags := r.Resolve(context.Background(), "geometry/shapes.atlas")
	require.Empty(t, diags)
	require.Equal(t, "geometry/shapes.atlas", src.Path)
}

func TestResolveModuleNotFound(t *testing.T) {
	r := NewRegistry(fstest.MapFS{})
	_, diags := r.Resolve(context.Background(), "missing.atlas")
	require.Len(t, diags, 1)
	require.Equal(t, codeModuleNotFound, diags[0].Code)
}

func TestParseSpecifierVersion(t *testing.T) {
	path, version := ParseSpecifier("geometry/shapes@1.2.0")
	require.Equal(t, "geometry/shapes", path)
	require.Equal(t, "1.2.0", version)
}

func TestResolveVersionMismatch(t *testing.T) {
	fsys := fstest.MapFS{
		"lib.atlas": &fstest.MapFile{Data: []byte("// version: 1.0.0\nfn f() {}")},
	}
	r := NewRegistry(fsys)
	_, diags := r.Resolve(context.Background(), "lib.atlas@2.0.0")
	require.Len(t, diags, 1)
	require.Equal(t, codeVersionMismatch, diags[0].Code)
}

func TestResolveVersionCompatibleMajor(t *testing.T) {
	fsys := fstest.MapFS{
		"lib.atlas": &fstest.MapFile{Data: []byte("// version: 1.0.0\nfn f() {}")},
	}
	r := NewRegistry(fsys)
	_, diags := r.Resolve(context.Background(), "lib.atlas@1.4.0")
	require.Empty(t, diags)
}

func TestResolveAllConcurrent(t *testing.T) {
	fsys := fstest.MapFS{
		"a.atlas": &fstest.MapFile{Data: []byte("fn a() {}")},
		"b.atlas": &fstest.MapFile{Data: []byte("fn b() {}")},
	}
	r := NewRegistry(fsys)
	srcs, diags := r.ResolveAll(context.Background(), []string{"a.atlas", "b.atlas"})
	require.Empty(t, diags)
	require.Equal(t, "a.atlas", srcs[0].Path)
	require.Equal(t, "b.atlas", srcs[1].Path)
}

func TestDetectCycle(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	cycle, found := DetectCycle("a", edges)
	require.True(t, found)
	require.Equal(t, []string{"a", "b", "c", "a"}, cycle)
}

func TestDetectCycleNone(t *testing.T) {
	edges := map[string][]string{
		"a": {"b"},
		"b": {},
	}
	_, found := DetectCycle("a", edges)
	require.False(t, found)
}
