package exports

import (
	"slices"
	"strings"

	"cjses/internal/project"
)

// ExportFact is what a module is known to export.
type ExportFact struct {
	HasDefault bool
	// Named is a sorted set; the table normalizes it on write.
	Named      []string
	ExportsAll bool
	// Trusted facts come from static ES syntax or configuration,
	// untrusted ones from CommonJS guesswork.
	Trusted bool
}

// Style derives the export style: named bindings win over a default.
func (f ExportFact) Style() Style {
	switch {
	case len(f.Named) > 0 || f.ExportsAll:
		return StyleNamed
	case f.HasDefault:
		return StyleDefault
	}
	return StyleUnknown
}

// HasNames reports whether the module exposes named or wildcard bindings.
func (f ExportFact) HasNames() bool {
	return len(f.Named) > 0 || f.ExportsAll
}

// SameShape compares exports, ignoring trust.
func (f ExportFact) SameShape(o ExportFact) bool {
	return f.HasDefault == o.HasDefault && f.ExportsAll == o.ExportsAll && slices.Equal(f.Named, o.Named)
}

// String renders the shape for messages, e.g. "default+names{a,b}".
func (f ExportFact) String() string {
	var parts []string
	if f.HasDefault {
		parts = append(parts, "default")
	}
	if len(f.Named) > 0 {
		parts = append(parts, "names{"+strings.Join(f.Named, ",")+"}")
	}
	if f.ExportsAll {
		parts = append(parts, "*")
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, "+")
}

func (f ExportFact) normalized() ExportFact {
	f.Named = sortedSet(f.Named)
	return f
}

// Expectation is one importer's requirement of an exportee.
type Expectation struct {
	Importer  project.ModuleID
	Specifier string

	WantsDefault bool
	WantsNamed   bool
	WantsAll     bool
	// Props lists the properties read off a required CommonJS value.
	Props []string

	External bool
	Trusted  bool
}

// Style infers the exporter's likely style from this requirement.
func (e Expectation) Style() Style {
	switch {
	case e.WantsDefault && !e.WantsNamed && !e.WantsAll:
		return StyleDefault
	case !e.WantsDefault && (e.WantsNamed || e.WantsAll):
		return StyleNamed
	}
	return StyleUnknown
}

func (e Expectation) clone() Expectation {
	e.Props = sortedSet(e.Props)
	return e
}

// FactConflict records a trusted fact replaced by a different trusted fact.
type FactConflict struct {
	Old ExportFact
	New ExportFact
}

// Import is an expectation whose specifier has already been resolved.
type Import struct {
	Target      project.ModuleID
	Expectation Expectation
}

// Entry is a snapshot of everything known about one module.
type Entry struct {
	ID           project.ModuleID
	Fact         *ExportFact
	Expectations []Expectation
	Conflicts    []FactConflict
}

// Loaded reports whether the module itself has been analyzed.
func (e Entry) Loaded() bool {
	return e.Fact != nil
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
