// Package testkit holds checks shared by tests of packages that build
// export tables.
package testkit

import (
	"fmt"
	"slices"

	"cjses/internal/exports"
)

// CheckTableInvariants verifies the structural guarantees of a finished table:
//  1. named export lists are sorted and free of duplicates
//  2. external modules never carry a fact
//  3. every importer was itself recorded, with a fact
//  4. conflicts are only queued on entries whose current fact is trusted
func CheckTableInvariants(table *exports.Table) error {
	if table == nil {
		return fmt.Errorf("nil table")
	}
	entries := table.Entries()
	loaded := make(map[string]bool, len(entries))
	for _, e := range entries {
		loaded[string(e.ID)] = e.Fact != nil
	}

	for _, e := range entries {
		if e.Fact != nil {
			if !slices.IsSorted(e.Fact.Named) {
				return fmt.Errorf("%s: named exports not sorted: %v", e.ID, e.Fact.Named)
			}
			if len(slices.Compact(slices.Clone(e.Fact.Named))) != len(e.Fact.Named) {
				return fmt.Errorf("%s: duplicate named exports: %v", e.ID, e.Fact.Named)
			}
			if e.ID.IsExternal() {
				return fmt.Errorf("%s: external module has a fact", e.ID)
			}
		}
		for _, x := range e.Expectations {
			if x.Importer == "" {
				return fmt.Errorf("%s: expectation without importer", e.ID)
			}
			if !loaded[string(x.Importer)] {
				return fmt.Errorf("%s: importer %s was never recorded", e.ID, x.Importer)
			}
		}
		if len(e.Conflicts) > 0 && (e.Fact == nil || !e.Fact.Trusted) {
			return fmt.Errorf("%s: conflict queued on an untrusted entry", e.ID)
		}
	}
	return nil
}
