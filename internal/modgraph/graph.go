// Package modgraph replays builds from a declarative description of what
// the rewriter would discover in each module, so the engine can run
// without a JavaScript parser.
package modgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"cjses/internal/engine"
	"cjses/internal/project"
)

// Syntax of a described module.
const (
	SyntaxCJS = "cjs"
	SyntaxESM = "esm"
)

// Export shapes of CommonJS modules.
const (
	ShapeNone       = "none"
	ShapeValue      = "value"
	ShapeObject     = "object"
	ShapeProperties = "properties"
)

// Import kinds.
const (
	KindRequire      = "require"
	KindRequireProps = "require-props"
	KindDefault      = "default"
	KindNamed        = "named"
	KindNamespace    = "namespace"
	KindReexportAll  = "reexport-all"
)

var ErrInvalidGraph = errors.New("invalid module graph")

type Exports struct {
	Shape   string   `toml:"shape"`
	Default bool     `toml:"default"`
	Named   []string `toml:"named"`
	All     bool     `toml:"all"`
}

type Import struct {
	From  string   `toml:"from"`
	Kind  string   `toml:"kind"`
	Names []string `toml:"names"`
}

// Module describes one source file.
type Module struct {
	Path    string   `toml:"path"`
	Syntax  string   `toml:"syntax"`
	Exports Exports  `toml:"exports"`
	Imports []Import `toml:"imports"`
	// Error makes the rewrite of this module fail, like a syntax error would.
	Error string `toml:"error"`
}

type file struct {
	Modules []Module `toml:"module"`
}

// Graph is a loaded description. It implements engine.Loader and
// engine.Rewriter.
type Graph struct {
	root    string
	ids     []project.ModuleID
	modules map[project.ModuleID]*Module
}

// Load reads a graph file; module paths are relative to root.
func Load(path, root string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Decode(f, root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode parses a graph description from r.
func Decode(r io.Reader, root string) (*Graph, error) {
	var raw file
	if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	g := &Graph{root: root, modules: make(map[project.ModuleID]*Module, len(raw.Modules))}
	for i := range raw.Modules {
		m := &raw.Modules[i]
		if err := normalize(m); err != nil {
			return nil, fmt.Errorf("%w: module %d (%q): %w", ErrInvalidGraph, i+1, m.Path, err)
		}
		id := project.Canonical(root, filepath.FromSlash(m.Path))
		if _, dup := g.modules[id]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidGraph, m.Path)
		}
		g.modules[id] = m
		g.ids = append(g.ids, id)
	}
	slices.Sort(g.ids)
	return g, nil
}

func normalize(m *Module) error {
	m.Path = strings.TrimSpace(m.Path)
	if m.Path == "" {
		return errors.New("missing path")
	}
	m.Syntax = strings.ToLower(strings.TrimSpace(m.Syntax))
	switch m.Syntax {
	case "":
		m.Syntax = SyntaxCJS
	case SyntaxCJS, SyntaxESM:
	default:
		return fmt.Errorf("unknown syntax %q", m.Syntax)
	}
	if m.Syntax == SyntaxCJS {
		switch m.Exports.Shape {
		case "":
			m.Exports.Shape = ShapeNone
		case ShapeNone, ShapeValue, ShapeObject, ShapeProperties:
		default:
			return fmt.Errorf("unknown export shape %q", m.Exports.Shape)
		}
	}
	for i := range m.Imports {
		imp := &m.Imports[i]
		if strings.TrimSpace(imp.From) == "" {
			return fmt.Errorf("import %d: missing from", i+1)
		}
		if imp.Kind == "" {
			imp.Kind = KindRequire
			if m.Syntax == SyntaxESM {
				imp.Kind = KindDefault
			}
		}
		if !kindAllowed(m.Syntax, imp.Kind) {
			return fmt.Errorf("import %q: kind %q is not valid for %s", imp.From, imp.Kind, m.Syntax)
		}
	}
	return nil
}

func kindAllowed(syntax, kind string) bool {
	if syntax == SyntaxCJS {
		return kind == KindRequire || kind == KindRequireProps
	}
	switch kind {
	case KindDefault, KindNamed, KindNamespace, KindReexportAll:
		return true
	}
	return false
}

// Root returns the directory module paths are relative to.
func (g *Graph) Root() string { return g.root }

// IDs returns every described module, sorted.
func (g *Graph) IDs() []project.ModuleID { return slices.Clone(g.ids) }

// Module returns the description of id.
func (g *Graph) Module(id project.ModuleID) (*Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// Exists reports whether path is a described module; it plugs into resolve.FS.
func (g *Graph) Exists(path string) bool {
	_, ok := g.modules[project.Canonical(g.root, path)]
	return ok
}

// Load implements engine.Loader.
func (g *Graph) Load(ctx context.Context, id project.ModuleID) (engine.Module, error) {
	if err := ctx.Err(); err != nil {
		return engine.Module{}, err
	}
	m, ok := g.modules[id]
	if !ok {
		return engine.Module{}, fmt.Errorf("%s: %w", id.Rel(g.root), engine.ErrNotFound)
	}
	return engine.Module{ID: id, Code: fmt.Sprintf("// %s (%s)\n", m.Path, m.Syntax)}, nil
}
