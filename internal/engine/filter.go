package engine

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar"

	"cjses/internal/project"
)

// filter selects the modules a build transforms. Patterns are doublestar
// globs matched against root-relative slash paths.
type filter struct {
	root    string
	include []string
	exclude []string
}

func newFilter(root string, include, exclude []string) (*filter, error) {
	for _, p := range append(append([]string{}, include...), exclude...) {
		if _, err := doublestar.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return &filter{root: root, include: include, exclude: exclude}, nil
}

// allows reports whether id should be transformed. Externals never are.
func (f *filter) allows(id project.ModuleID) bool {
	if id.IsExternal() || id == "" {
		return false
	}
	if f == nil {
		return true
	}
	rel := id.Rel(f.root)
	if filepath.IsAbs(filepath.FromSlash(rel)) {
		rel = string(id)
	}
	if len(f.include) > 0 && !matchAny(f.include, rel) {
		return false
	}
	return !matchAny(f.exclude, rel)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
