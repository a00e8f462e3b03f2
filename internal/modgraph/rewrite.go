package modgraph

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cjses/internal/engine"
	"cjses/internal/exports"
	"cjses/internal/exporttype"
)

// Rewrite implements engine.Rewriter. ES modules are recorded as written
// and trusted. CommonJS modules ask the oracle how to shape each require
// and their own export, and are trusted only where configuration decided.
func (g *Graph) Rewrite(ctx context.Context, mod engine.Module, oracle engine.Oracle) (*engine.Rewrite, error) {
	m, ok := g.modules[mod.ID]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if m.Error != "" {
		return nil, errors.New(m.Error)
	}
	if m.Syntax == SyntaxESM {
		return rewriteESM(mod, m), nil
	}
	return rewriteCJS(ctx, mod, m, oracle)
}

func rewriteESM(mod engine.Module, m *Module) *engine.Rewrite {
	out := &engine.Rewrite{
		Code: mod.Code,
		Fact: exports.ExportFact{
			HasDefault: m.Exports.Default,
			Named:      m.Exports.Named,
			ExportsAll: m.Exports.All,
			Trusted:    true,
		},
	}
	for _, imp := range m.Imports {
		x := exports.Expectation{Trusted: true}
		switch imp.Kind {
		case KindDefault:
			x.WantsDefault = true
		case KindNamed:
			x.WantsNamed = true
			x.Props = imp.Names
		case KindNamespace, KindReexportAll:
			x.WantsAll = true
		}
		out.Imports = append(out.Imports, engine.Discovered{Specifier: imp.From, Expectation: x})
	}
	return out
}

func rewriteCJS(ctx context.Context, mod engine.Module, m *Module, oracle engine.Oracle) (*engine.Rewrite, error) {
	var code strings.Builder
	out := &engine.Rewrite{}

	for _, imp := range m.Imports {
		d, err := oracle.ImportStyle(ctx, imp.From)
		if err != nil {
			return nil, err
		}
		x := exports.Expectation{Trusted: d.Trusted()}
		local := binding(imp.From)
		switch {
		case d.Style == exporttype.StyleDefault:
			x.WantsDefault = true
			fmt.Fprintf(&code, "import %s from %q;\n", local, imp.From)
		case imp.Kind == KindRequireProps && len(imp.Names) > 0:
			x.WantsNamed = true
			x.Props = imp.Names
			fmt.Fprintf(&code, "import {%s} from %q;\n", strings.Join(imp.Names, ", "), imp.From)
		default:
			x.WantsAll = true
			fmt.Fprintf(&code, "import * as %s from %q;\n", local, imp.From)
		}
		out.Imports = append(out.Imports, engine.Discovered{Specifier: imp.From, Expectation: x})
	}

	switch m.Exports.Shape {
	case ShapeValue:
		out.Fact = exports.ExportFact{HasDefault: true, Trusted: true}
		code.WriteString("export default module.exports;\n")
	case ShapeObject, ShapeProperties:
		d, err := oracle.ExportStyle(ctx)
		if err != nil {
			return nil, err
		}
		if d.Style == exporttype.StyleDefault {
			out.Fact = exports.ExportFact{HasDefault: true, Trusted: d.Trusted()}
			fmt.Fprintf(&code, "export default {%s};\n", strings.Join(m.Exports.Named, ", "))
		} else {
			out.Fact = exports.ExportFact{Named: m.Exports.Named, Trusted: d.Trusted()}
			fmt.Fprintf(&code, "export {%s};\n", strings.Join(m.Exports.Named, ", "))
		}
	}

	out.Touched = code.Len() > 0
	out.Code = code.String() + mod.Code
	return out, nil
}

// binding derives a local identifier from a specifier: "./lib/foo-bar.js" -> "_foo_bar".
func binding(specifier string) string {
	base := strings.TrimSuffix(path.Base(specifier), path.Ext(specifier))
	var b strings.Builder
	b.WriteByte('_')
	for _, r := range base {
		if r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
