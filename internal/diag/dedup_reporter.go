package diag

import (
	"strings"
	"sync"
)

type dedupKey struct {
	code        Code
	sev         Severity
	exporter    string
	importers   string
	requirement string
	msg         string
}

// DedupReporter wraps another Reporter and suppresses duplicate diagnostics
// with the same code, severity, subject and message.
type DedupReporter struct {
	mu   sync.Mutex
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to the provided reporter.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	if r == nil {
		return
	}
	importers := make([]string, len(subject.Importers))
	for i, id := range subject.Importers {
		importers[i] = string(id)
	}
	key := dedupKey{
		code:        code,
		sev:         sev,
		exporter:    string(subject.Exporter),
		importers:   strings.Join(importers, ","),
		requirement: subject.Requirement,
		msg:         msg,
	}
	r.mu.Lock()
	if _, ok := r.seen[key]; ok {
		r.mu.Unlock()
		return
	}
	r.seen[key] = struct{}{}
	r.mu.Unlock()
	if r.next != nil {
		r.next.Report(code, sev, subject, msg, notes)
	}
}
