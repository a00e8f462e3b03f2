package exporttype

import (
	"context"
	"fmt"
	"sort"

	"cjses/internal/exports"
	"cjses/internal/project"
)

// Style re-exports exports.Style so callers configuring styles need a single import.
type Style = exports.Style

const (
	StyleUnknown = exports.StyleUnknown
	StyleDefault = exports.StyleDefault
	StyleNamed   = exports.StyleNamed
)

// Func is the compiled form of every configuration shape. importer is empty
// when the question concerns the module's own export. StyleUnknown means
// the configuration has no opinion.
type Func func(ctx context.Context, id, importer project.ModuleID) (Style, error)

// Option is the user-supplied export-type override: Const, Func or Map.
type Option interface {
	isOption()
}

// MapValue is a per-module override inside a Map: Const, Func or ByImporter.
type MapValue interface {
	isMapValue()
}

// Const applies one style to every module.
type Const Style

// Map selects an override per module id.
type Map map[project.ModuleID]MapValue

// ByImporter selects a style per importer; the module's own export
// (no importer) is left undecided.
type ByImporter map[project.ModuleID]Style

func (Const) isOption()        {}
func (Func) isOption()         {}
func (Map) isOption()          {}
func (Const) isMapValue()      {}
func (Func) isMapValue()       {}
func (ByImporter) isMapValue() {}

// Compile resolves the shape of opt once. A nil opt compiles to nil.
func Compile(opt Option) Func {
	switch o := opt.(type) {
	case nil:
		return nil
	case Const:
		s := Style(o)
		return func(context.Context, project.ModuleID, project.ModuleID) (Style, error) {
			return s, nil
		}
	case Func:
		return o
	case Map:
		compiled := make(map[project.ModuleID]Func, len(o))
		for id, v := range o {
			compiled[id] = compileValue(v)
		}
		return func(ctx context.Context, id, importer project.ModuleID) (Style, error) {
			fn := compiled[id]
			if fn == nil {
				return StyleUnknown, nil
			}
			return fn(ctx, id, importer)
		}
	default:
		panic(fmt.Sprintf("exporttype: unexpected option %T", opt))
	}
}

func compileValue(v MapValue) Func {
	switch x := v.(type) {
	case nil:
		return nil
	case Const:
		return Compile(x)
	case Func:
		return x
	case ByImporter:
		return func(_ context.Context, _, importer project.ModuleID) (Style, error) {
			if importer == "" {
				return StyleUnknown, nil
			}
			return x[importer], nil
		}
	default:
		panic(fmt.Sprintf("exporttype: unexpected map value %T", v))
	}
}

// FromConfig converts a decoded `export-type` value. Accepted shapes:
//
//	export-type = "named"
//	[export-type]
//	"src/foo.js" = "default"
//	"~lodash" = "named"
//	[export-type."src/bar.js"]
//	"src/entry.js" = "default"
//
// Keys are paths relative to root, or "~spec" for externals.
func FromConfig(root string, v any) (Option, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		s, err := exports.ParseStyle(x)
		if err != nil {
			return nil, fmt.Errorf("export-type: %w", err)
		}
		return Const(s), nil
	case map[string]any:
		out := make(Map, len(x))
		for _, key := range sortedKeys(x) {
			id := project.ParseRel(root, key)
			if id == "" {
				return nil, fmt.Errorf("export-type: empty module key")
			}
			mv, err := mapValueFromConfig(root, key, x[key])
			if err != nil {
				return nil, err
			}
			out[id] = mv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("export-type: expected string or table, got %T", v)
	}
}

func mapValueFromConfig(root, key string, v any) (MapValue, error) {
	switch x := v.(type) {
	case string:
		s, err := exports.ParseStyle(x)
		if err != nil {
			return nil, fmt.Errorf("export-type.%q: %w", key, err)
		}
		return Const(s), nil
	case map[string]any:
		out := make(ByImporter, len(x))
		for _, imp := range sortedKeys(x) {
			raw, ok := x[imp].(string)
			if !ok {
				return nil, fmt.Errorf("export-type.%q.%q: expected string, got %T", key, imp, x[imp])
			}
			s, err := exports.ParseStyle(raw)
			if err != nil {
				return nil, fmt.Errorf("export-type.%q.%q: %w", key, imp, err)
			}
			out[project.ParseRel(root, imp)] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("export-type.%q: expected string or table, got %T", key, v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
