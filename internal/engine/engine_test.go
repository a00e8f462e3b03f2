package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cjses/internal/diag"
	"cjses/internal/engine"
	"cjses/internal/exports"
	"cjses/internal/exporttype"
	"cjses/internal/modgraph"
	"cjses/internal/project"
	"cjses/internal/resolve"
	"cjses/internal/testkit"
)

type harness struct {
	t     *testing.T
	root  string
	graph *modgraph.Graph
	cache engine.CacheOption
	opts  func(*engine.Options)
}

func newHarness(t *testing.T, graph string) *harness {
	t.Helper()
	root := t.TempDir()
	g, err := modgraph.Decode(strings.NewReader(graph), root)
	if err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	return &harness{
		t:     t,
		root:  root,
		graph: g,
		cache: engine.CacheOption{Enabled: true, Path: filepath.Join(root, project.DefaultCacheName)},
	}
}

func (h *harness) id(rel string) project.ModuleID {
	return project.ParseRel(h.root, rel)
}

func (h *harness) resolver(external ...string) resolve.Resolver {
	return &resolve.FS{
		Root:       h.root,
		Extensions: []string{".js"},
		External:   external,
		Exists:     h.graph.Exists,
	}
}

// build runs one complete build and returns the warnings.
func (h *harness) build(resolver resolve.Resolver, entries ...string) (*engine.Report, []diag.Diagnostic) {
	h.t.Helper()
	var (
		mu       sync.Mutex
		reported []diag.Diagnostic
	)
	opts := engine.Options{
		Root:  h.root,
		Cache: h.cache,
		Jobs:  4,
		Reporter: diag.ReporterFunc(func(d diag.Diagnostic) {
			mu.Lock()
			reported = append(reported, d)
			mu.Unlock()
		}),
	}
	if h.opts != nil {
		h.opts(&opts)
	}
	ctx := context.Background()
	b, err := engine.Open(ctx, opts, resolver, h.graph)
	if err != nil {
		h.t.Fatalf("Open: %v", err)
	}
	ids := make([]project.ModuleID, len(entries))
	for i, e := range entries {
		ids[i] = h.id(e)
	}
	if _, err := b.Run(ctx, ids, h.graph); err != nil {
		h.t.Fatalf("Run: %v", err)
	}
	rep, err := b.End(ctx)
	if err != nil {
		h.t.Fatalf("End: %v", err)
	}
	if err := testkit.CheckTableInvariants(b.Table()); err != nil {
		h.t.Fatalf("table invariants: %v", err)
	}
	return rep, reported
}

func codes(ds []diag.Diagnostic) []diag.Code {
	out := make([]diag.Code, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Code)
	}
	return out
}

const scenarioA = `
[[module]]
path = "entry.js"
[[module.imports]]
from = "./foo"
kind = "require"

[[module]]
path = "foo.js"
[module.exports]
shape = "value"
`

func TestScenarioADefaultOnlyCJS(t *testing.T) {
	h := newHarness(t, scenarioA)

	_, first := h.build(h.resolver(), "entry.js")
	if len(first) != 1 || first[0].Code != diag.ExpMissingNames {
		t.Fatalf("first build: %v", codes(first))
	}
	if first[0].Message != "'foo.js' doesn't export names expected by 'entry.js'" {
		t.Fatalf("message = %q", first[0].Message)
	}

	rep, second := h.build(h.resolver(), "entry.js")
	if len(second) != 0 {
		t.Fatalf("second build: %v", codes(second))
	}
	if rep.CacheEntries != 1 || !rep.CacheWritten {
		t.Fatalf("report = %+v", rep)
	}
}

func TestScenarioBNativeBoth(t *testing.T) {
	h := newHarness(t, `
[[module]]
path = "entry.js"
syntax = "esm"
[[module.imports]]
from = "./foo"
kind = "default"

[[module]]
path = "a.js"
[[module.imports]]
from = "./foo"
kind = "require-props"
names = ["foo"]

[[module]]
path = "b.js"
[[module.imports]]
from = "./foo"

[[module]]
path = "foo.js"
syntax = "esm"
[module.exports]
default = true
named = ["foo"]
`)
	for range 2 {
		if _, ws := h.build(h.resolver(), "entry.js", "a.js", "b.js"); len(ws) != 0 {
			t.Fatalf("warnings: %v", codes(ws))
		}
	}
}

const scenarioC = `
[[module]]
path = "entry.js"
[[module.imports]]
from = "foo"
kind = "require-props"
names = ["bar"]
[[module.imports]]
from = "./sibling"

[[module]]
path = "sibling.js"
syntax = "esm"
[module.exports]
named = ["x"]
[[module.imports]]
from = "foo"
kind = "default"
`

func TestScenarioCDisagreeingExternal(t *testing.T) {
	h := newHarness(t, scenarioC)

	_, first := h.build(h.resolver(), "entry.js")
	if len(first) != 1 || first[0].Code != diag.ExpUnmatchedImport {
		t.Fatalf("first build: %v", codes(first))
	}
	d := first[0]
	if d.Subject.Exporter != project.External("foo") || len(d.Subject.Importers) != 2 {
		t.Fatalf("subject = %+v", d.Subject)
	}
	if !strings.Contains(d.Message, "'entry.js'") || !strings.Contains(d.Message, "'sibling.js'") {
		t.Fatalf("message = %q", d.Message)
	}

	data, err := os.ReadFile(h.cache.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"~foo": "sibling.js"`) {
		t.Fatalf("cache = %s", data)
	}

	if _, second := h.build(h.resolver(), "entry.js"); len(second) != 0 {
		t.Fatalf("second build: %v", codes(second))
	}
}

const scenarioD = `
[[module]]
path = "entry.js"
[[module.imports]]
from = "./foo"
`

func TestScenarioDNotLoaded(t *testing.T) {
	h := newHarness(t, scenarioD)
	// foo.js resolves but the graph has no body for it.
	withFoo := &resolve.FS{
		Root:       h.root,
		Extensions: []string{".js"},
		Exists: func(p string) bool {
			return h.graph.Exists(p) || filepath.Base(p) == "foo.js"
		},
	}
	_, ws := h.build(withFoo, "entry.js")
	if len(ws) != 1 || ws[0].Code != diag.ExpNotLoaded || ws[0].Subject.Exporter != h.id("foo.js") {
		t.Fatalf("warnings: %+v", ws)
	}
}

func TestScenarioDExternalListSilences(t *testing.T) {
	h := newHarness(t, scenarioD)
	withFoo := &resolve.FS{
		Root:       h.root,
		Extensions: []string{".js"},
		External:   []string{"./foo"},
		Exists:     func(string) bool { return true },
	}
	if _, ws := h.build(withFoo, "entry.js"); len(ws) != 0 {
		t.Fatalf("warnings: %v", codes(ws))
	}
}

func TestExcludedModulesAreExternal(t *testing.T) {
	h := newHarness(t, scenarioA)
	h.opts = func(o *engine.Options) { o.Exclude = []string{"foo.js"} }
	rep, ws := h.build(h.resolver(), "entry.js")
	if len(ws) != 0 {
		t.Fatalf("warnings: %v", codes(ws))
	}
	if rep.Modules != 1 {
		t.Fatalf("modules = %d", rep.Modules)
	}
}

func TestConfigPrecedence(t *testing.T) {
	h := newHarness(t, `
[[module]]
path = "entry.js"
[[module.imports]]
from = "./foo"

[[module]]
path = "foo.js"
syntax = "esm"
[module.exports]
named = ["a"]
`)
	h.cache.Enabled = false
	h.opts = func(o *engine.Options) { o.ExportType = exporttype.Const(exporttype.StyleDefault) }

	_, ws := h.build(h.resolver(), "entry.js")
	if len(ws) != 1 || ws[0].Code != diag.ExpMissingDefault {
		t.Fatalf("warnings: %v", codes(ws))
	}
	if _, err := os.Stat(h.cache.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("disabled cache was written")
	}
}

func TestConfigDecisionsAreTrusted(t *testing.T) {
	h := newHarness(t, `
[[module]]
path = "entry.js"
[module.exports]
shape = "object"
named = ["x", "y"]
`)
	h.opts = func(o *engine.Options) {
		o.ExportType = exporttype.Map{h.id("entry.js"): exporttype.Const(exporttype.StyleDefault)}
	}
	rep, _ := h.build(h.resolver(), "entry.js")
	if rep.CacheEntries != 1 {
		t.Fatalf("cache entries = %d, want the configured default export", rep.CacheEntries)
	}
}

const orderGraph = `
[[module]]
path = "a.js"
[[module.imports]]
from = "./b"
[[module.imports]]
from = "./c"
kind = "require-props"
names = ["x"]

[[module]]
path = "b.js"
[module.exports]
shape = "value"
[[module.imports]]
from = "./c"

[[module]]
path = "c.js"
[module.exports]
shape = "object"
named = ["x"]
[[module.imports]]
from = "lodash"

[[module]]
path = "d.js"
syntax = "esm"
[module.exports]
default = true
[[module.imports]]
from = "./a"
kind = "namespace"
`

func TestOrderIndependence(t *testing.T) {
	orders := [][]string{
		{"a.js", "b.js", "c.js", "d.js"},
		{"d.js", "c.js", "b.js", "a.js"},
		{"c.js", "a.js", "d.js", "b.js"},
		{"b.js", "d.js", "a.js", "c.js"},
	}
	var (
		want         project.Digest
		wantCache    []byte
		wantWarnings []string
	)
	for i, order := range orders {
		h := newHarness(t, orderGraph)
		// Keep the root fixed so serialized ids compare equal.
		h.root = filepath.Join(os.TempDir(), "cjses-order")
		g, err := modgraph.Decode(strings.NewReader(orderGraph), h.root)
		if err != nil {
			t.Fatal(err)
		}
		h.graph = g
		h.cache.Path = filepath.Join(t.TempDir(), "cache.json")

		b, err := engine.Open(context.Background(), engine.Options{Root: h.root, Cache: h.cache, Jobs: 1}, h.resolver(), h.graph)
		if err != nil {
			t.Fatal(err)
		}
		for _, rel := range order {
			mod, err := h.graph.Load(context.Background(), h.id(rel))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := b.Transform(context.Background(), mod); err != nil {
				t.Fatal(err)
			}
		}
		rep, err := b.End(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(h.cache.Path)
		if err != nil {
			t.Fatal(err)
		}
		warnings := settledWarnings(rep.Warnings.Items(), order, h.root)
		if i == 0 {
			want, wantCache, wantWarnings = rep.Fingerprint, data, warnings
			continue
		}
		if strings.Join(warnings, "\n") != strings.Join(wantWarnings, "\n") {
			t.Fatalf("order %v warned %v, want %v", order, warnings, wantWarnings)
		}
		if rep.Fingerprint != want {
			t.Fatalf("order %v converged to a different table", order)
		}
		if string(data) != string(wantCache) {
			t.Fatalf("order %v wrote a different cache:\n%s\nwant\n%s", order, data, wantCache)
		}
	}
}

// settledWarnings drops missing-export findings that exist only because an
// importer was rewritten before its exporter and relied on a guess.
func settledWarnings(ds []diag.Diagnostic, order []string, root string) []string {
	pos := make(map[string]int, len(order))
	for i, rel := range order {
		pos[rel] = i
	}
	var out []string
	for _, d := range ds {
		exporter := d.Subject.Exporter.Rel(root)
		guessed := false
		var importers []string
		for _, imp := range d.Subject.Importers {
			rel := imp.Rel(root)
			importers = append(importers, rel)
			if ep, ok := pos[exporter]; ok && pos[rel] < ep {
				guessed = true
			}
		}
		if guessed && (d.Code == diag.ExpMissingDefault || d.Code == diag.ExpMissingNames) {
			continue
		}
		sort.Strings(importers)
		out = append(out, fmt.Sprintf("%s %s<-%s", d.Code, exporter, strings.Join(importers, ",")))
	}
	sort.Strings(out)
	return out
}

func TestRewriteErrorLeavesTableUntouched(t *testing.T) {
	h := newHarness(t, `
[[module]]
path = "entry.js"
[[module.imports]]
from = "./bad"

[[module]]
path = "bad.js"
error = "Unexpected token (3:7)"
[module.exports]
shape = "value"
`)
	ctx := context.Background()
	b, err := engine.Open(ctx, engine.Options{Root: h.root}, h.resolver(), h.graph)
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Run(ctx, []project.ModuleID{h.id("entry.js")}, h.graph)
	if err == nil || !strings.Contains(err.Error(), "bad.js: Unexpected token (3:7)") {
		t.Fatalf("err = %v", err)
	}
	e, _ := b.Table().Lookup(h.id("bad.js"))
	if e.Loaded() {
		t.Fatal("failed module was recorded")
	}
	rep, err := b.End(ctx)
	if err != nil {
		t.Fatal(err)
	}
	items := rep.Warnings.Items()
	if len(items) != 1 || items[0].Code != diag.ExpNotLoaded {
		t.Fatalf("warnings = %v", codes(items))
	}
}

func TestCancelledBuildDoesNotWriteCache(t *testing.T) {
	h := newHarness(t, scenarioA)
	ctx, cancel := context.WithCancel(context.Background())
	b, err := engine.Open(ctx, engine.Options{Root: h.root, Cache: h.cache}, h.resolver(), h.graph)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Run(ctx, []project.ModuleID{h.id("entry.js")}, h.graph); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := b.End(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("End err = %v", err)
	}
	if _, err := os.Stat(h.cache.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("cache written after cancellation")
	}
	if _, err := b.End(context.Background()); !errors.Is(err, engine.ErrClosed) {
		t.Fatalf("second End err = %v", err)
	}
}

func TestMalformedExplicitCacheIsFatal(t *testing.T) {
	h := newHarness(t, scenarioA)
	path := filepath.Join(h.root, "types.json")
	if err := os.WriteFile(path, []byte("["), 0o600); err != nil {
		t.Fatal(err)
	}
	opts := engine.Options{Root: h.root, Cache: engine.CacheOption{Enabled: true, Path: path, Explicit: true}}
	if _, err := engine.Open(context.Background(), opts, h.resolver(), h.graph); err == nil {
		t.Fatal("expected error")
	}
}

func TestMissingExplicitCacheWarnsOnce(t *testing.T) {
	h := newHarness(t, scenarioA)
	h.cache = engine.CacheOption{Enabled: true, Path: filepath.Join(h.root, "typo", "cache.json"), Explicit: true}
	_, ws := h.build(h.resolver(), "entry.js")
	var missing int
	for _, d := range ws {
		if d.Code == diag.CacheMissing {
			missing++
		}
	}
	if missing != 1 {
		t.Fatalf("warnings: %v", codes(ws))
	}
}

func TestProgressEvents(t *testing.T) {
	h := newHarness(t, scenarioA)
	var (
		mu     sync.Mutex
		counts = map[engine.Status]int{}
	)
	h.opts = func(o *engine.Options) {
		o.Progress = engine.SinkFunc(func(ev engine.Event) {
			if ev.Stage != engine.StageTransform {
				return
			}
			mu.Lock()
			counts[ev.Status]++
			mu.Unlock()
		})
	}
	h.build(h.resolver(), "entry.js")
	if counts[engine.StatusQueued] != 2 || counts[engine.StatusDone] != 2 {
		t.Fatalf("events = %v", counts)
	}
}

func TestConcurrentTransformsRecordEveryExpectation(t *testing.T) {
	var graph strings.Builder
	graph.WriteString("[[module]]\npath = \"shared.js\"\n[module.exports]\nshape = \"value\"\n")
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		graph.WriteString("\n[[module]]\npath = \"" + name + ".js\"\n[[module.imports]]\nfrom = \"./shared\"\n")
	}
	h := newHarness(t, graph.String())
	h.cache.Enabled = false

	ctx := context.Background()
	b, err := engine.Open(ctx, engine.Options{Root: h.root, Jobs: 8}, h.resolver(), h.graph)
	if err != nil {
		t.Fatal(err)
	}
	var entries []project.ModuleID
	for _, id := range h.graph.IDs() {
		if id != h.id("shared.js") {
			entries = append(entries, id)
		}
	}
	if _, err := b.Run(ctx, entries, h.graph); err != nil {
		t.Fatal(err)
	}
	e, _ := b.Table().Lookup(h.id("shared.js"))
	if len(e.Expectations) != 8 || e.Fact == nil || !e.Fact.SameShape(exports.ExportFact{HasDefault: true}) {
		t.Fatalf("shared entry = %+v", e)
	}
}

func TestRewriterFuncSeesConfiguredStyle(t *testing.T) {
	root := t.TempDir()
	rw := engine.RewriterFunc(func(ctx context.Context, mod engine.Module, oracle engine.Oracle) (*engine.Rewrite, error) {
		d, err := oracle.ExportStyle(ctx)
		if err != nil {
			return nil, err
		}
		return &engine.Rewrite{
			Code: mod.Code,
			Fact: exports.ExportFact{HasDefault: d.Style == exporttype.StyleDefault, Trusted: d.Trusted()},
		}, nil
	})
	ctx := context.Background()
	b, err := engine.Open(ctx, engine.Options{Root: root, ExportType: exporttype.Const(exporttype.StyleDefault)}, nil, rw)
	if err != nil {
		t.Fatal(err)
	}
	id := project.ParseRel(root, "lib.js")
	out, err := b.Transform(ctx, engine.Module{ID: id, Code: "module.exports = {}"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Fact.HasDefault || !out.Fact.Trusted {
		t.Fatalf("fact = %+v", out.Fact)
	}
}

func TestEndWaitsForRunningTransform(t *testing.T) {
	root := t.TempDir()
	started := make(chan struct{})
	release := make(chan struct{})
	rw := engine.RewriterFunc(func(ctx context.Context, mod engine.Module, _ engine.Oracle) (*engine.Rewrite, error) {
		close(started)
		<-release
		return &engine.Rewrite{Code: mod.Code, Fact: exports.ExportFact{HasDefault: true, Trusted: true}}, nil
	})
	ctx := context.Background()
	b, err := engine.Open(ctx, engine.Options{Root: root}, nil, rw)
	if err != nil {
		t.Fatal(err)
	}
	id := project.ParseRel(root, "lib.js")
	transformed := make(chan error, 1)
	go func() {
		_, err := b.Transform(ctx, engine.Module{ID: id, Code: "exports.x = 1"})
		transformed <- err
	}()
	<-started

	ended := make(chan *engine.Report, 1)
	go func() {
		rep, err := b.End(ctx)
		if err != nil {
			t.Errorf("End: %v", err)
		}
		ended <- rep
	}()
	select {
	case <-ended:
		t.Fatal("End returned while a transform was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	if err := <-transformed; err != nil {
		t.Fatal(err)
	}
	rep := <-ended
	if rep == nil || rep.Modules != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if e, ok := b.Table().Lookup(id); !ok || !e.Loaded() {
		t.Fatal("transform result missing from the ended table")
	}
}
