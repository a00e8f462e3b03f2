package diagfmt

import (
	"encoding/json"
	"io"

	"cjses/internal/diag"
)

type NoteJSON struct {
	Module  string `json:"module"`
	Message string `json:"message"`
}

// DiagnosticJSON is the wire form of one diagnostic.
type DiagnosticJSON struct {
	Severity    string     `json:"severity"`
	Code        string     `json:"code"`
	Kind        string     `json:"kind,omitempty"`
	Message     string     `json:"message"`
	Exporter    string     `json:"exporter"`
	Importers   []string   `json:"importers,omitempty"`
	Requirement string     `json:"requirement,omitempty"`
	Notes       []NoteJSON `json:"notes,omitempty"`
}

// DiagnosticsOutput is the root object of JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
}

// BuildDiagnosticsOutput converts bag without serializing it.
func BuildDiagnosticsOutput(bag *diag.Bag, opts JSONOpts) DiagnosticsOutput {
	items := bag.Items()
	if opts.Max > 0 && opts.Max < len(items) {
		items = items[:opts.Max]
	}
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, len(items))}
	for _, d := range items {
		dj := DiagnosticJSON{
			Severity:    d.Severity.String(),
			Code:        d.Code.ID(),
			Kind:        d.Kind(),
			Message:     d.Message,
			Exporter:    formatPath(d.Subject.Exporter, opts.Root, opts.PathMode),
			Requirement: d.Subject.Requirement,
		}
		for _, imp := range d.Subject.Importers {
			dj.Importers = append(dj.Importers, formatPath(imp, opts.Root, opts.PathMode))
		}
		if opts.IncludeNotes {
			for _, n := range d.Notes {
				dj.Notes = append(dj.Notes, NoteJSON{Module: formatPath(n.Module, opts.Root, opts.PathMode), Message: n.Msg})
			}
		}
		out.Diagnostics = append(out.Diagnostics, dj)
	}
	out.Count = len(out.Diagnostics)
	return out
}

// JSON writes bag as an indented JSON document.
func JSON(w io.Writer, bag *diag.Bag, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildDiagnosticsOutput(bag, opts))
}
