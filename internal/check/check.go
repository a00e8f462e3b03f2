// Package check turns the final export table into advisory diagnostics.
package check

import (
	"fmt"

	"cjses/internal/diag"
	"cjses/internal/exports"
	"cjses/internal/project"
)

const (
	reqDefault = "default"
	reqNames   = "names"
)

// Options controls how participants are rendered.
type Options struct {
	// Root makes ids relative in messages.
	Root string
	// MaxDiagnostics bounds the bag; zero means unbounded.
	MaxDiagnostics int
}

// Run walks every entry in id order and reports missing exports,
// importers that disagree, modules never loaded and facts that changed
// during the build. The result is sorted and deduplicated.
func Run(table *exports.Table, opts Options) *diag.Bag {
	limit := opts.MaxDiagnostics
	if limit <= 0 {
		limit = 1<<16 - 1
	}
	bag := diag.NewBag(limit)
	r := diag.BagReporter{Bag: bag}
	c := checker{root: opts.Root, r: r}
	for _, e := range table.Entries() {
		c.conflicts(e)
		c.missing(e)
		c.unmatched(e)
		c.notLoaded(e)
	}
	bag.Sort()
	bag.Dedup()
	return bag
}

type checker struct {
	root string
	r    diag.Reporter
}

func (c checker) rel(id project.ModuleID) string {
	return id.Rel(c.root)
}

func (c checker) missing(e exports.Entry) {
	if e.Fact == nil {
		return
	}
	f := e.Fact
	for _, x := range e.Expectations {
		if x.WantsDefault && !f.HasDefault {
			c.reportMissing(e.ID, x, diag.ExpMissingDefault, reqDefault)
		}
		if (x.WantsNamed || x.WantsAll) && !f.HasNames() {
			c.reportMissing(e.ID, x, diag.ExpMissingNames, reqNames)
		}
	}
}

func (c checker) reportMissing(id project.ModuleID, x exports.Expectation, code diag.Code, req string) {
	subject := diag.Subject{Exporter: id, Importers: []project.ModuleID{x.Importer}, Requirement: req}
	msg := fmt.Sprintf("'%s' doesn't export %s expected by '%s'", c.rel(id), req, c.rel(x.Importer))
	diag.ReportWarning(c.r, code, subject, msg).Emit()
}

// unmatched reports importers that disagree about a module whose own
// exports are unknown or only guessed.
func (c checker) unmatched(e exports.Entry) {
	if e.Fact != nil && e.Fact.Trusted {
		return
	}
	var defaults, names []project.ModuleID
	for _, x := range e.Expectations {
		switch x.Style() {
		case exports.StyleDefault:
			defaults = appendUnique(defaults, x.Importer)
		case exports.StyleNamed:
			names = appendUnique(names, x.Importer)
		}
	}
	if len(defaults) == 0 || len(names) == 0 {
		return
	}
	sortIDs(defaults)
	sortIDs(names)
	participants := make([]project.ModuleID, 0, len(defaults)+len(names))
	for _, id := range append(append([]project.ModuleID{}, defaults...), names...) {
		participants = appendUnique(participants, id)
	}
	sortIDs(participants)

	subject := diag.Subject{Exporter: e.ID, Importers: participants}
	msg := fmt.Sprintf("'%s' is imported as default by '%s' but as names by '%s'",
		c.rel(e.ID), c.rel(defaults[0]), c.rel(names[0]))
	b := diag.ReportWarning(c.r, diag.ExpUnmatchedImport, subject, msg)
	for _, id := range defaults[1:] {
		b.WithNote(diag.Note{Module: id, Msg: "also imports it as default"})
	}
	for _, id := range names[1:] {
		b.WithNote(diag.Note{Module: id, Msg: "also imports it as names"})
	}
	b.Emit()
}

func (c checker) notLoaded(e exports.Entry) {
	if e.Fact != nil {
		return
	}
	var importers []project.ModuleID
	for _, x := range e.Expectations {
		if !x.External {
			importers = appendUnique(importers, x.Importer)
		}
	}
	if len(importers) == 0 {
		return
	}
	sortIDs(importers)
	subject := diag.Subject{Exporter: e.ID, Importers: importers}
	msg := fmt.Sprintf("'%s' is imported by '%s' but was never loaded", c.rel(e.ID), c.rel(importers[0]))
	diag.ReportWarning(c.r, diag.ExpNotLoaded, subject, msg).Emit()
}

func (c checker) conflicts(e exports.Entry) {
	for _, fc := range e.Conflicts {
		msg := fmt.Sprintf("'%s' changed its exports from %s to %s during the build", c.rel(e.ID), fc.Old, fc.New)
		diag.ReportWarning(c.r, diag.ExpFactConflict, diag.Subject{Exporter: e.ID}, msg).Emit()
	}
}
