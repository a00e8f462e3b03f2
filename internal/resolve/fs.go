package resolve

import (
	"context"
	"os"
	"path"
	"strings"

	"cjses/internal/project"
)

// FS resolves relative specifiers against the importer's directory and bare
// specifiers through an alias table. Everything else is unresolved.
type FS struct {
	Root string
	// Extensions are tried in order when the specifier has none that exists.
	Extensions []string
	// Alias maps bare specifiers to root-relative paths.
	Alias map[string]string
	// External specifiers (and their subpaths) are never resolved.
	External []string
	// Exists reports whether a file exists; defaults to os.Stat.
	Exists func(path string) bool
}

func (r *FS) Resolve(ctx context.Context, specifier string, from project.ModuleID) (project.ModuleID, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if specifier == "" || r.isExternal(specifier) {
		return "", false, nil
	}
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		if from.IsExternal() || from == "" {
			return "", false, nil
		}
		base := path.Join(path.Dir(string(from)), specifier)
		return r.probe(base)
	case strings.HasPrefix(specifier, "/"):
		return r.probe(path.Clean(specifier))
	}
	if target, ok := r.Alias[specifier]; ok {
		return r.probe(string(project.Canonical(r.Root, target)))
	}
	return "", false, nil
}

func (r *FS) probe(base string) (project.ModuleID, bool, error) {
	exists := r.Exists
	if exists == nil {
		exists = fileExists
	}
	candidates := []string{base}
	for _, ext := range r.Extensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range r.Extensions {
		candidates = append(candidates, path.Join(base, "index"+ext))
	}
	for _, c := range candidates {
		id := project.Canonical(r.Root, c)
		if exists(id.Path()) {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *FS) isExternal(specifier string) bool {
	for _, e := range r.External {
		if specifier == e || strings.HasPrefix(specifier, e+"/") {
			return true
		}
	}
	return false
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
