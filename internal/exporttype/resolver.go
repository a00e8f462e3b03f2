package exporttype

import (
	"context"
	"fmt"

	"cjses/internal/exports"
	"cjses/internal/project"
	"cjses/internal/typecache"
)

// Source names the tier of the priority chain a Decision came from.
type Source uint8

const (
	SourceNone Source = iota
	SourceConfig
	SourceTrusted
	SourceGuess
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceConfig:
		return "config"
	case SourceTrusted:
		return "trusted"
	case SourceGuess:
		return "guess"
	case SourceCache:
		return "cache"
	default:
		return "none"
	}
}

// Decision is a style together with where it came from.
type Decision struct {
	Style  Style
	Source Source
}

// Trusted reports whether facts derived from d are certain. Only
// configuration is: everything else may be a guess.
func (d Decision) Trusted() bool {
	return d.Source == SourceConfig
}

// Cache is the read side of the persistent type cache.
type Cache interface {
	Lookup(id project.ModuleID) (typecache.Entry, bool)
}

// Resolver answers export-type questions from configuration, the live
// table and the persistent cache, in that order. Answers are never
// memoized since the table changes during the build.
type Resolver struct {
	config Func
	table  *exports.Table
	cache  Cache
}

// New builds a resolver; config and cache may be nil.
func New(config Func, table *exports.Table, cache Cache) *Resolver {
	return &Resolver{config: config, table: table, cache: cache}
}

// Query decides how id should be imported by importer.
func (r *Resolver) Query(ctx context.Context, id, importer project.ModuleID) (Decision, error) {
	if d, err := r.fromConfig(ctx, id, importer); err != nil || d.Source != SourceNone {
		return d, err
	}

	if r.table != nil {
		if e, ok := r.table.Lookup(id); ok {
			if d := fromEntry(e); d.Source != SourceNone {
				return d, nil
			}
		}
	}

	if r.cache != nil {
		if c, ok := r.cache.Lookup(id); ok && c.Style == StyleDefault && (c.Except == "" || c.Except != importer) {
			return Decision{Style: StyleDefault, Source: SourceCache}, nil
		}
	}
	return Decision{}, nil
}

// ExportStyle decides the shape of id's own export. Only configuration is
// consulted, so a module's fact does not depend on which importers were
// processed before it.
func (r *Resolver) ExportStyle(ctx context.Context, id project.ModuleID) (Decision, error) {
	return r.fromConfig(ctx, id, "")
}

func (r *Resolver) fromConfig(ctx context.Context, id, importer project.ModuleID) (Decision, error) {
	if r.config == nil {
		return Decision{}, nil
	}
	s, err := r.config(ctx, id, importer)
	if err != nil {
		return Decision{}, fmt.Errorf("export-type for %s: %w", id, err)
	}
	if s == StyleUnknown {
		return Decision{}, nil
	}
	return Decision{Style: s, Source: SourceConfig}, nil
}

func fromEntry(e exports.Entry) Decision {
	if f := e.Fact; f != nil {
		s := f.Style()
		if s == StyleUnknown {
			return Decision{}
		}
		if f.Trusted {
			return Decision{Style: s, Source: SourceTrusted}
		}
		return Decision{Style: s, Source: SourceGuess}
	}
	// Infer from what importers expect: the most trusted opinion, earliest first.
	var best *exports.Expectation
	for i := range e.Expectations {
		x := &e.Expectations[i]
		if x.Style() == StyleUnknown {
			continue
		}
		if best == nil || (x.Trusted && !best.Trusted) {
			best = x
		}
	}
	if best == nil {
		return Decision{}
	}
	return Decision{Style: best.Style(), Source: SourceGuess}
}
