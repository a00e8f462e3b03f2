package diagfmt

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"cjses/internal/diag"
	"cjses/internal/project"
)

func sampleBag(root string) *diag.Bag {
	foo := project.ModuleID(filepath.ToSlash(filepath.Join(root, "src", "foo.js")))
	a := project.ModuleID(filepath.ToSlash(filepath.Join(root, "a.js")))
	b := project.ModuleID(filepath.ToSlash(filepath.Join(root, "b.js")))

	bag := diag.NewBag(16)
	bag.Add(diag.NewWarning(diag.ExpUnmatchedImport,
		diag.Subject{Exporter: foo, Importers: []project.ModuleID{a, b}},
		"'src/foo.js' is imported as default by 'a.js' but as names by 'b.js'",
	).WithNote(b, "imports names"))
	bag.Add(diag.NewWarning(diag.ExpNotLoaded,
		diag.Subject{Exporter: project.External("lodash"), Importers: []project.ModuleID{a}},
		"'~lodash' is imported by 'a.js' but was never loaded",
	))
	bag.Sort()
	return bag
}

func TestPrettyPlain(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	Pretty(&buf, sampleBag(root), PrettyOpts{Root: root, ShowNotes: true, Summary: true})
	out := buf.String()

	for _, want := range []string{
		"src/foo.js: WARNING CJS1003 [unmatched-import]: 'src/foo.js' is imported as default",
		"    note: b.js: imports names",
		"~lodash: WARNING CJS1004 [not-loaded]",
		"2 warnings",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("color codes in plain output")
	}
}

func TestPrettyPathModes(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		mode PathMode
		want string
	}{
		{PathModeRelative, "src/foo.js: "},
		{PathModeBasename, "\nfoo.js: "},
		{PathModeAbsolute, filepath.ToSlash(filepath.Join(root, "src", "foo.js")) + ": "},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		Pretty(&buf, sampleBag(root), PrettyOpts{Root: root, PathMode: tt.mode})
		if !strings.Contains("\n"+buf.String(), tt.want) {
			t.Errorf("mode %d: missing %q in:\n%s", tt.mode, tt.want, buf.String())
		}
	}
}

func TestPrettyEmptySummary(t *testing.T) {
	var buf bytes.Buffer
	Pretty(&buf, diag.NewBag(4), PrettyOpts{Summary: true})
	if got := buf.String(); got != "no export-type problems found\n" {
		t.Fatalf("got %q", got)
	}
}

func TestJSON(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(root), JSONOpts{Root: root, IncludeNotes: true}); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 {
		t.Fatalf("count = %d", out.Count)
	}
	first := out.Diagnostics[0]
	if first.Code != "CJS1003" || first.Exporter != "src/foo.js" || first.Kind != "unmatched-import" {
		t.Fatalf("first = %+v", first)
	}
	if len(first.Importers) != 2 || first.Importers[0] != "a.js" {
		t.Fatalf("importers = %v", first.Importers)
	}
	if len(first.Notes) != 1 || first.Notes[0].Module != "b.js" {
		t.Fatalf("notes = %v", first.Notes)
	}

	limited := BuildDiagnosticsOutput(sampleBag(root), JSONOpts{Root: root, Max: 1})
	if limited.Count != 1 || limited.Diagnostics[0].Notes != nil {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestSarif(t *testing.T) {
	root := t.TempDir()
	var buf bytes.Buffer
	meta := SarifRunMeta{ToolName: "cjses", ToolVersion: "0.1.0", InvocationArgs: []string{"check"}, Root: root}
	if err := Sarif(&buf, sampleBag(root), meta); err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatal(err)
	}
	run := log.Runs[0]
	if len(run.Results) != 2 || len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("run = %+v", run)
	}
	if run.Results[0].Level != "warning" || run.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI != "src/foo.js" {
		t.Fatalf("first result = %+v", run.Results[0])
	}
	if len(run.Results[1].Locations) != 0 {
		t.Fatal("external module got a file location")
	}
}
