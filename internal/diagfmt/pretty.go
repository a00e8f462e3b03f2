package diagfmt

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"cjses/internal/diag"
)

// Pretty writes one block per diagnostic in bag order (call bag.Sort first):
//
//	<path>: <SEV> <CODE> [<kind>]: <message>
//	    note: <path>: <message>
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) {
	p := newPalette(opts.Color)
	items := bag.Items()
	for _, d := range items {
		path := formatPath(d.Subject.Exporter, opts.Root, opts.PathMode)
		fmt.Fprintf(w, "%s: %s %s", p.path.Sprint(path), p.severity(d.Severity), p.code.Sprint(d.Code.ID()))
		if kind := d.Kind(); kind != "" {
			fmt.Fprintf(w, " [%s]", kind)
		}
		fmt.Fprintf(w, ": %s\n", d.Message)
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(w, "    %s %s: %s\n", p.note.Sprint("note:"), formatPath(n.Module, opts.Root, opts.PathMode), n.Msg)
		}
	}
	if opts.Summary {
		fmt.Fprintln(w, summaryLine(len(items), p))
	}
}

func summaryLine(n int, p palette) string {
	switch n {
	case 0:
		return p.ok.Sprint("no export-type problems found")
	case 1:
		return p.warn.Sprint("1 warning")
	default:
		return p.warn.Sprintf("%d warnings", n)
	}
}

type palette struct {
	path, code, note, warn, err, info, ok *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		path: color.New(color.Bold),
		code: color.New(color.FgCyan),
		note: color.New(color.FgBlue, color.Bold),
		warn: color.New(color.FgYellow, color.Bold),
		err:  color.New(color.FgRed, color.Bold),
		info: color.New(color.FgWhite),
		ok:   color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.path, p.code, p.note, p.warn, p.err, p.info, p.ok} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) string {
	switch sev {
	case diag.SevError:
		return p.err.Sprint(sev.String())
	case diag.SevWarning:
		return p.warn.Sprint(sev.String())
	default:
		return p.info.Sprint(sev.String())
	}
}
