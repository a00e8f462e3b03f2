package diag_test

import (
	"sync"
	"testing"

	"cjses/internal/diag"
	"cjses/internal/project"
)

func TestBagLimitSortDedup(t *testing.T) {
	b := diag.NewBag(3)
	a := project.ModuleID("/a.js")
	z := project.ModuleID("/z.js")

	b.Add(diag.NewWarning(diag.ExpNotLoaded, diag.Subject{Exporter: z}, "z"))
	b.Add(diag.NewWarning(diag.ExpMissingDefault, diag.Subject{Exporter: z}, "z"))
	b.Add(diag.NewWarning(diag.ExpMissingDefault, diag.Subject{Exporter: a}, "a"))
	if b.Add(diag.NewWarning(diag.ExpMissingDefault, diag.Subject{Exporter: a}, "a")) {
		t.Fatal("expected limit to drop the fourth diagnostic")
	}

	b.Sort()
	items := b.Items()
	if items[0].Subject.Exporter != a || items[1].Subject.Exporter != z || items[2].Code != diag.ExpNotLoaded {
		t.Fatalf("unexpected order: %+v", items)
	}

	other := diag.NewBag(2)
	other.Add(items[0])
	b.Merge(other)
	if b.Len() != 4 {
		t.Fatalf("Merge: len = %d, want 4", b.Len())
	}
	b.Dedup()
	if b.Len() != 3 {
		t.Fatalf("Dedup: len = %d, want 3", b.Len())
	}
	if !b.HasWarnings() || b.HasErrors() {
		t.Fatal("severity queries mismatch")
	}
}

func TestSeverityLabelsAndEscalation(t *testing.T) {
	tests := []struct {
		sev          diag.Severity
		label, sarif string
		escalated    diag.Severity
	}{
		{diag.SevInfo, "info", "note", diag.SevInfo},
		{diag.SevWarning, "warning", "warning", diag.SevError},
		{diag.SevError, "error", "error", diag.SevError},
	}
	for _, tt := range tests {
		if tt.sev.Label() != tt.label || tt.sev.SarifLevel() != tt.sarif {
			t.Errorf("%v: label=%q sarif=%q", tt.sev, tt.sev.Label(), tt.sev.SarifLevel())
		}
		if got := tt.sev.Escalate(true); got != tt.escalated {
			t.Errorf("%v escalated to %v, want %v", tt.sev, got, tt.escalated)
		}
		if got := tt.sev.Escalate(false); got != tt.sev {
			t.Errorf("%v changed without escalation: %v", tt.sev, got)
		}
	}

	b := diag.NewBag(4)
	b.Add(diag.NewWarning(diag.ExpNotLoaded, diag.Subject{Exporter: "/a.js"}, "a"))
	b.Escalate(false)
	if b.HasErrors() {
		t.Fatal("warning escalated without the option")
	}
	b.Escalate(true)
	if !b.HasErrors() {
		t.Fatal("warning was not escalated")
	}
}

func TestNewBagClampsLimit(t *testing.T) {
	if got := diag.NewBag(1 << 20).Cap(); got != 65535 {
		t.Fatalf("Cap = %d, want 65535", got)
	}
	if got := diag.NewBag(-1).Cap(); got != 0 {
		t.Fatalf("Cap = %d, want 0", got)
	}
}

func TestDedupReporterConcurrent(t *testing.T) {
	bag := diag.NewBag(100)
	r := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	subject := diag.Subject{Exporter: "/foo.js", Importers: []project.ModuleID{"/entry.js"}}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diag.ReportWarning(r, diag.ExpMissingNames, subject, "same").Emit()
		}()
	}
	wg.Wait()
	if bag.Len() != 1 {
		t.Fatalf("len = %d, want 1", bag.Len())
	}
}

func TestMultiReporterFansOut(t *testing.T) {
	var got []diag.Diagnostic
	bag := diag.NewBag(10)
	m := diag.MultiReporter{
		diag.BagReporter{Bag: bag},
		diag.ReporterFunc(func(d diag.Diagnostic) { got = append(got, d) }),
		nil,
	}
	diag.Forward(m, diag.NewWarning(diag.ExpNotLoaded, diag.Subject{Exporter: "/x.js"}, "x"))
	if bag.Len() != 1 || len(got) != 1 || got[0].Kind() != "not-loaded" {
		t.Fatalf("fan-out failed: bag=%d func=%d", bag.Len(), len(got))
	}
}
