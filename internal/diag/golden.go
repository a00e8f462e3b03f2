package diag

import (
	"fmt"
	"sort"
	"strings"
)

type goldenDiagnostic struct {
	Severity string
	Code     string
	Kind     string
	Subject  string
	Message  string
}

// FormatShort renders diagnostics one per line in a stable order:
//
//	<severity> <CODE> <kind> <exporter>: <message>
//
// Module ids are printed relative to root. Notes follow their diagnostic
// when includeNotes is set.
func FormatShort(diags []Diagnostic, root string, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	sorted := make([]Diagnostic, len(diags))
	copy(sorted, diags)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	rendered := make([]goldenDiagnostic, 0, len(sorted))
	for _, d := range sorted {
		rendered = append(rendered, goldenDiagnostic{
			Severity: d.Severity.Label(),
			Code:     d.Code.ID(),
			Kind:     d.Code.Kind(),
			Subject:  d.Subject.Exporter.Rel(root),
			Message:  sanitizeMessage(d.Message),
		})
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			rendered = append(rendered, goldenDiagnostic{
				Severity: "note",
				Code:     d.Code.ID(),
				Kind:     d.Code.Kind(),
				Subject:  n.Module.Rel(root),
				Message:  sanitizeMessage(n.Msg),
			})
		}
	}

	var b strings.Builder
	for i, d := range rendered {
		fmt.Fprintf(&b, "%s %s %s %s: %s", d.Severity, d.Code, d.Kind, d.Subject, d.Message)
		if i < len(rendered)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
