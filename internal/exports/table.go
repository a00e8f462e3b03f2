package exports

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"cjses/internal/project"
)

type entry struct {
	mu           sync.Mutex
	fact         *ExportFact
	expectations []Expectation
	conflicts    []FactConflict
}

func (e *entry) snapshot(id project.ModuleID) Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := Entry{ID: id}
	if e.fact != nil {
		f := *e.fact
		f.Named = slices.Clone(f.Named)
		out.Fact = &f
	}
	if len(e.expectations) > 0 {
		out.Expectations = make([]Expectation, len(e.expectations))
		for i, x := range e.expectations {
			x.Props = slices.Clone(x.Props)
			out.Expectations[i] = x
		}
	}
	out.Conflicts = slices.Clone(e.conflicts)
	return out
}

// Table accumulates export facts and expectations for one build.
// The map lock guards membership only; each entry has its own lock, so
// writers to different modules never wait on each other.
type Table struct {
	mu      sync.RWMutex
	entries map[project.ModuleID]*entry
}

func NewTable() *Table {
	return &Table{entries: make(map[project.ModuleID]*entry)}
}

func (t *Table) get(id project.ModuleID) (*entry, bool) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	return e, ok
}

func (t *Table) getOrCreate(id project.ModuleID) *entry {
	if e, ok := t.get(id); ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e
	}
	e := &entry{}
	t.entries[id] = e
	return e
}

// Record commits the result of analyzing id: its export fact first, then
// one expectation per import on the importee's entry.
func (t *Table) Record(id project.ModuleID, fact ExportFact, imports []Import) {
	t.SetFact(id, fact)
	for _, imp := range imports {
		x := imp.Expectation
		x.Importer = id
		t.Expect(imp.Target, x)
	}
}

// SetFact applies fact to id. Trust never decreases: an untrusted fact
// cannot replace a trusted one, and replacing a trusted fact with a
// different trusted fact queues a FactConflict before overwriting.
// It reports whether the stored fact changed.
func (t *Table) SetFact(id project.ModuleID, fact ExportFact) bool {
	fact = fact.normalized()
	e := t.getOrCreate(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.fact
	switch {
	case prev == nil:
	case prev.Trusted && !fact.Trusted:
		return false
	case prev.Trusted && fact.Trusted:
		if prev.SameShape(fact) {
			return false
		}
		e.conflicts = append(e.conflicts, FactConflict{Old: *prev, New: fact})
	case prev.Trusted == fact.Trusted && prev.SameShape(fact):
		return false
	}
	e.fact = &fact
	return true
}

// Expect appends an expectation against target.
func (t *Table) Expect(target project.ModuleID, x Expectation) {
	x = x.clone()
	e := t.getOrCreate(target)
	e.mu.Lock()
	e.expectations = append(e.expectations, x)
	e.mu.Unlock()
}

// Lookup returns a snapshot of id's entry. It is safe to call before id
// has been analyzed or mentioned.
func (t *Table) Lookup(id project.ModuleID) (Entry, bool) {
	e, ok := t.get(id)
	if !ok {
		return Entry{ID: id}, false
	}
	return e.snapshot(id), true
}

// Entries returns snapshots of every entry, sorted by id.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	ids := make([]project.ModuleID, 0, len(t.entries))
	refs := make(map[project.ModuleID]*entry, len(t.entries))
	for id, e := range t.entries {
		ids = append(ids, id)
		refs[id] = e
	}
	t.mu.RUnlock()

	slices.Sort(ids)
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, refs[id].snapshot(id))
	}
	return out
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Fingerprint hashes the sorted set of export facts. Two tables that
// converged to the same facts have the same fingerprint.
func (t *Table) Fingerprint() project.Digest {
	var parts [][]byte
	for _, e := range t.Entries() {
		if e.Fact == nil {
			continue
		}
		f := e.Fact
		var b strings.Builder
		b.WriteString(string(e.ID))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(f.HasDefault))
		b.WriteByte('|')
		b.WriteString(strings.Join(f.Named, ","))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(f.ExportsAll))
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(f.Trusted))
		parts = append(parts, []byte(b.String()))
	}
	return project.Combine(parts...)
}
