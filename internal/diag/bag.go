package diag

import (
	"math"
	"sort"
	"strings"
	"sync"

	"fortio.org/safecast"
)

// Bag collects diagnostics up to a limit. It is safe for concurrent Add.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
	max   uint16
}

// NewBag creates a bag holding at most max diagnostics; values outside
// uint16 are clamped.
func NewBag(max int) *Bag {
	limit, err := safecast.Conv[uint16](max)
	if err != nil {
		if max < 0 {
			limit = 0
		} else {
			limit = math.MaxUint16
		}
	}
	return &Bag{
		items: make([]Diagnostic, 0, min(int(limit), 64)),
		max:   limit,
	}
}

// Add appends a diagnostic, honouring the limit.
// Returns false if the diagnostic was dropped.
func (b *Bag) Add(d Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Cap() uint16 {
	return b.max
}

// HasErrors reports whether any diagnostic has Severity >= Error.
func (b *Bag) HasErrors() bool {
	return b.hasAtLeast(SevError)
}

// HasWarnings reports whether any diagnostic has Severity >= Warning.
func (b *Bag) HasWarnings() bool {
	return b.hasAtLeast(SevWarning)
}

func (b *Bag) hasAtLeast(sev Severity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].Severity >= sev {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Items returns a copy of the diagnostics.
func (b *Bag) Items() []Diagnostic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Diagnostic, len(b.items))
	copy(out, b.items)
	return out
}

// Merge appends diagnostics from other, growing the limit if needed.
func (b *Bag) Merge(other *Bag) {
	items := other.Items()
	b.mu.Lock()
	defer b.mu.Unlock()
	newTotal := len(b.items) + len(items)
	if newTotal > int(b.max) {
		b.max = uint16(min(newTotal, math.MaxUint16))
	}
	room := int(b.max) - len(b.items)
	if room < len(items) {
		items = items[:room]
	}
	b.items = append(b.items, items...)
}

// Sort orders diagnostics by code, exporter, importers, requirement and
// message for a stable, order-independent output.
func (b *Bag) Sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sort.SliceStable(b.items, func(i, j int) bool {
		return less(b.items[i], b.items[j])
	})
}

func less(di, dj Diagnostic) bool {
	if di.Code != dj.Code {
		return di.Code < dj.Code
	}
	if di.Subject.Exporter != dj.Subject.Exporter {
		return di.Subject.Exporter < dj.Subject.Exporter
	}
	if ki, kj := importersKey(di.Subject), importersKey(dj.Subject); ki != kj {
		return ki < kj
	}
	if di.Subject.Requirement != dj.Subject.Requirement {
		return di.Subject.Requirement < dj.Subject.Requirement
	}
	if di.Severity != dj.Severity {
		return di.Severity > dj.Severity
	}
	return di.Message < dj.Message
}

// Dedup drops repeated diagnostics (same code, subject and message).
func (b *Bag) Dedup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[string]bool, len(b.items))
	newitems := make([]Diagnostic, 0, len(b.items))
	for _, d := range b.items {
		key := d.Code.ID() + "|" + string(d.Subject.Exporter) + "|" + importersKey(d.Subject) + "|" + d.Subject.Requirement + "|" + d.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		newitems = append(newitems, d)
	}
	b.items = newitems
}

// Filter keeps diagnostics for which keep returns true.
func (b *Bag) Filter(keep func(Diagnostic) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items[:0]
	for _, d := range b.items {
		if keep(d) {
			out = append(out, d)
		}
	}
	b.items = out
}

// Escalate raises every warning to an error when warningsAsErrors is set.
func (b *Bag) Escalate(warningsAsErrors bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		b.items[i].Severity = b.items[i].Severity.Escalate(warningsAsErrors)
	}
}

func importersKey(s Subject) string {
	parts := make([]string, len(s.Importers))
	for i, id := range s.Importers {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
