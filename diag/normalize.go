package diag

import (
	"path/filepath"
	"strings"
)

// NormalizePath rewrites a file path for stable, reproducible diagnostic
// output: sentinel paths (wrapped in angle brackets, e.g. "<input>" or
// "<unknown>") pass through untouched; absolute paths are made relative to
// cwd when possible, else reduced to their base name; relative paths are
// left as-is. The function is idempotent: normalizing an already-normalized
// path returns it unchanged.
func NormalizePath(path, cwd string) string {
	if strings.HasPrefix(path, "<") && strings.HasSuffix(path, ">") {
		return path
	}
	if !filepath.IsAbs(path) {
		return path
	}
	if cwd != "" {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(path)
}

// NormalizeForTesting returns a copy of d with File, and every Related[i].File,
// passed through NormalizePath. It is used by golden tests so fixtures stay
// stable across machines and checkout locations.
func NormalizeForTesting(d Diagnostic, cwd string) Diagnostic {
	d.File = NormalizePath(d.File, cwd)
	if len(d.Related) > 0 {
		related := make([]RelatedLocation, len(d.Related))
		copy(related, d.Related)
		for i := range related {
			related[i].File = NormalizePath(related[i].File, cwd)
		}
		d.Related = related
	}
	return d
}
