package diag

// Reporter is the host warning channel. Implementations must not block for
// long and must not panic back into the caller.
// Implementations: BagReporter (collects into a Bag), ReporterFunc, MultiReporter (fan-out), DedupReporter.
type Reporter interface {
	Report(code Code, sev Severity, subject Subject, msg string, notes []Note)
}

// ReportBuilder accumulates diagnostic details before emitting to Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// NewReportBuilder constructs a builder bound to Reporter.
func NewReportBuilder(r Reporter, sev Severity, code Code, subject Subject, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag: Diagnostic{
			Severity: sev,
			Code:     code,
			Message:  msg,
			Subject:  subject,
		},
	}
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, subject Subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, subject, msg)
}

// ReportInfo is a shortcut for SevInfo diagnostics.
func ReportInfo(r Reporter, code Code, subject Subject, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevInfo, code, subject, msg)
}

// WithNote appends a note to diagnostic.
func (b *ReportBuilder) WithNote(n Note) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Notes = append(b.diag.Notes, n)
	return b
}

// Emit sends diagnostic to underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		Forward(b.reporter, b.diag)
	}
	b.emitted = true
}

// Diagnostic returns accumulated diagnostic without emitting.
func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// Forward re-emits an already built diagnostic into r.
func Forward(r Reporter, d Diagnostic) {
	if r == nil {
		return
	}
	r.Report(d.Code, d.Severity, d.Subject, d.Message, d.Notes)
}

// BagReporter is an adapter that writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev, Code: code, Message: msg,
		Subject: subject, Notes: notes,
	})
}

// ReporterFunc adapts a plain function, e.g. a bundler's warn hook.
type ReporterFunc func(Diagnostic)

func (f ReporterFunc) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	if f == nil {
		return
	}
	f(Diagnostic{Severity: sev, Code: code, Message: msg, Subject: subject, Notes: notes})
}

// MultiReporter fans a diagnostic out to every reporter.
type MultiReporter []Reporter

func (m MultiReporter) Report(code Code, sev Severity, subject Subject, msg string, notes []Note) {
	for _, r := range m {
		if r != nil {
			r.Report(code, sev, subject, msg, notes)
		}
	}
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Code, Severity, Subject, string, []Note) {}
