package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cjses/internal/diag"
	"cjses/internal/engine"
	"cjses/internal/modgraph"
	"cjses/internal/project"
	"cjses/internal/resolve"
	"cjses/internal/typecache"
)

const defaultOnlyGraph = `
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

func writeProject(t *testing.T) *project.Config {
	t.Helper()
	root := t.TempDir()
	manifest := "[build]\nentries = [\"entry.js\"]\n"
	if err := os.WriteFile(filepath.Join(root, project.ManifestName), []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, project.DefaultGraphName), []byte(defaultOnlyGraph), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, found, err := project.LoadConfigFrom(root)
	if err != nil || !found {
		t.Fatalf("LoadConfigFrom: found=%v err=%v", found, err)
	}
	return cfg
}

func checkOnce(t *testing.T, cfg *project.Config) *checkResult {
	t.Helper()
	graph, err := modgraph.Load(cfg.GraphPath(), cfg.Root)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := cfg.EntryIDs()
	if err != nil {
		t.Fatal(err)
	}
	bag := diag.NewBag(100)
	opts := engine.Options{
		Root:     cfg.Root,
		Cache:    engine.CacheOption{Enabled: cfg.Cache.Enabled, Path: cfg.Cache.Path},
		Reporter: diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		Logger:   logger,
	}
	resolver := &resolve.FS{Root: cfg.Root, Extensions: cfg.Resolve.Extensions, Exists: graph.Exists}
	res, err := runBuild(context.Background(), opts, resolver, graph, entries, bag)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestCheckWarnsThenLearnsFromCache(t *testing.T) {
	cfg := writeProject(t)

	first := checkOnce(t, cfg)
	var out bytes.Buffer
	if err := renderCheck(&out, &bytes.Buffer{}, first, checkOptions{format: "short"}); err != nil {
		t.Fatal(err)
	}
	want := "warning CJS1002 missing-export foo.js: 'foo.js' doesn't export names expected by 'entry.js'\n"
	if out.String() != want {
		t.Fatalf("first run:\n%q\nwant\n%q", out.String(), want)
	}

	cache, _, err := typecache.Load(cfg.Cache.Path, false, cfg.Root)
	if err != nil || cache.Len() != 1 {
		t.Fatalf("cache after first run: len=%d err=%v", cache.Len(), err)
	}

	second := checkOnce(t, cfg)
	out.Reset()
	if err := renderCheck(&out, &bytes.Buffer{}, second, checkOptions{format: "pretty"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "no export-type problems found\n" {
		t.Fatalf("second run: %q", out.String())
	}
}

func TestRenderCheckOptions(t *testing.T) {
	cfg := writeProject(t)
	res := checkOnce(t, cfg)

	var out, errOut bytes.Buffer
	err := renderCheck(&out, &errOut, res, checkOptions{format: "json", warningsAsErrors: true, timings: true, emit: true})
	if err == nil || !strings.Contains(err.Error(), "1 warning(s)") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out.String(), "// --- entry.js") || !strings.Contains(out.String(), `"code": "CJS1002"`) ||
		!strings.Contains(out.String(), `"severity": "ERROR"`) {
		t.Fatalf("stdout:\n%s", out.String())
	}
	if !strings.Contains(errOut.String(), "timings:") || !strings.Contains(errOut.String(), "fingerprint:") {
		t.Fatalf("stderr:\n%s", errOut.String())
	}

	cfg.Cache.Enabled = false
	res = checkOnce(t, cfg)
	if res.bag.Len() != 1 {
		t.Fatalf("warnings without cache = %d", res.bag.Len())
	}
	out.Reset()
	if err := renderCheck(&out, &bytes.Buffer{}, res, checkOptions{format: "short", suppress: []string{"missing-export"}}); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Fatalf("suppressed output: %q", out.String())
	}
}

func TestCacheText(t *testing.T) {
	cfg := writeProject(t)
	checkOnce(t, cfg)
	cache, _, err := typecache.Load(cfg.Cache.Path, false, cfg.Root)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	writeCacheText(&out, cache, cfg.Root)
	if !strings.HasPrefix(out.String(), "foo.js") || !strings.HasSuffix(out.String(), "1 entries\n") {
		t.Fatalf("cache show:\n%s", out.String())
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "ON": uiModeOn, " off ": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatal("expected error")
	}
	if shouldUseTUI(uiModeAuto, "json") {
		t.Fatal("TUI enabled for json output")
	}
}
