package exporttype_test

import (
	"context"
	"errors"
	"testing"

	"cjses/internal/exports"
	"cjses/internal/exporttype"
	"cjses/internal/project"
	"cjses/internal/typecache"
)

const (
	foo    project.ModuleID = "/p/foo.js"
	entry  project.ModuleID = "/p/entry.js"
	other  project.ModuleID = "/p/other.js"
	extFoo project.ModuleID = "~foo"
)

type fakeCache map[project.ModuleID]typecache.Entry

func (c fakeCache) Lookup(id project.ModuleID) (typecache.Entry, bool) {
	e, ok := c[id]
	return e, ok
}

func TestQueryPriorityChain(t *testing.T) {
	ctx := context.Background()
	tab := exports.NewTable()
	cache := fakeCache{
		foo:    {Style: exporttype.StyleDefault},
		extFoo: {Style: exporttype.StyleDefault, Except: other},
	}
	r := exporttype.New(nil, tab, cache)

	if d, _ := r.Query(ctx, foo, entry); d != (exporttype.Decision{Style: exporttype.StyleDefault, Source: exporttype.SourceCache}) {
		t.Fatalf("cache tier: %+v", d)
	}
	if d, _ := r.Query(ctx, extFoo, other); d.Source != exporttype.SourceNone {
		t.Fatalf("cache must not apply to its excepted importer: %+v", d)
	}
	if d, _ := r.Query(ctx, extFoo, entry); d.Style != exporttype.StyleDefault {
		t.Fatalf("cache must apply to other importers: %+v", d)
	}

	tab.Expect(foo, exports.Expectation{Importer: other, WantsNamed: true})
	if d, _ := r.Query(ctx, foo, entry); d != (exporttype.Decision{Style: exporttype.StyleNamed, Source: exporttype.SourceGuess}) {
		t.Fatalf("expectation tier: %+v", d)
	}

	tab.SetFact(foo, exports.ExportFact{HasDefault: true})
	if d, _ := r.Query(ctx, foo, entry); d != (exporttype.Decision{Style: exporttype.StyleDefault, Source: exporttype.SourceGuess}) {
		t.Fatalf("guess tier: %+v", d)
	}

	tab.SetFact(foo, exports.ExportFact{Named: []string{"a"}, Trusted: true})
	if d, _ := r.Query(ctx, foo, entry); d != (exporttype.Decision{Style: exporttype.StyleNamed, Source: exporttype.SourceTrusted}) {
		t.Fatalf("trusted tier: %+v", d)
	}

	withConfig := exporttype.New(exporttype.Compile(exporttype.Const(exporttype.StyleDefault)), tab, cache)
	d, err := withConfig.Query(ctx, foo, entry)
	if err != nil || d != (exporttype.Decision{Style: exporttype.StyleDefault, Source: exporttype.SourceConfig}) {
		t.Fatalf("config must win over trusted facts: %+v %v", d, err)
	}
	if !d.Trusted() {
		t.Fatal("config decisions are trusted")
	}
}

func TestMostTrustedExpectationWins(t *testing.T) {
	tab := exports.NewTable()
	tab.Expect(foo, exports.Expectation{Importer: entry, WantsNamed: true})
	tab.Expect(foo, exports.Expectation{Importer: other, WantsDefault: true, WantsNamed: true, Trusted: true})
	tab.Expect(foo, exports.Expectation{Importer: other, WantsDefault: true, Trusted: true})
	tab.Expect(foo, exports.Expectation{Importer: entry, WantsNamed: true, Trusted: true})

	d, _ := exporttype.New(nil, tab, nil).Query(context.Background(), foo, "")
	if d.Style != exporttype.StyleDefault {
		t.Fatalf("want earliest trusted opinion (default), got %+v", d)
	}
}

func TestExportStyleIgnoresTableAndCache(t *testing.T) {
	tab := exports.NewTable()
	tab.SetFact(foo, exports.ExportFact{HasDefault: true, Trusted: true})
	r := exporttype.New(nil, tab, fakeCache{foo: {Style: exporttype.StyleDefault}})

	d, err := r.ExportStyle(context.Background(), foo)
	if err != nil || d.Source != exporttype.SourceNone {
		t.Fatalf("ExportStyle = %+v, %v", d, err)
	}
}

func TestMapOptionShapes(t *testing.T) {
	ctx := context.Background()
	calls := 0
	opt := exporttype.Map{
		foo: exporttype.Const(exporttype.StyleDefault),
		entry: exporttype.Func(func(_ context.Context, id, _ project.ModuleID) (exporttype.Style, error) {
			calls++
			return exporttype.StyleNamed, nil
		}),
		extFoo: exporttype.ByImporter{other: exporttype.StyleDefault},
	}
	fn := exporttype.Compile(opt)

	cases := []struct {
		id, importer project.ModuleID
		want         exporttype.Style
	}{
		{foo, "", exporttype.StyleDefault},
		{foo, entry, exporttype.StyleDefault},
		{entry, "", exporttype.StyleNamed},
		{extFoo, other, exporttype.StyleDefault},
		{extFoo, entry, exporttype.StyleUnknown},
		{extFoo, "", exporttype.StyleUnknown},
		{other, entry, exporttype.StyleUnknown},
	}
	for _, c := range cases {
		got, err := fn(ctx, c.id, c.importer)
		if err != nil || got != c.want {
			t.Errorf("(%s, %s) = %v, %v; want %v", c.id, c.importer, got, err, c.want)
		}
	}
	if calls != 1 {
		t.Fatalf("func called %d times", calls)
	}
}

func TestConfigErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	fn := exporttype.Compile(exporttype.Func(func(context.Context, project.ModuleID, project.ModuleID) (exporttype.Style, error) {
		return exporttype.StyleUnknown, boom
	}))
	_, err := exporttype.New(fn, exports.NewTable(), nil).Query(context.Background(), foo, entry)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	root := "/p"
	opt, err := exporttype.FromConfig(root, map[string]any{
		"foo.js": "default",
		"~foo":   map[string]any{"entry.js": "named"},
	})
	if err != nil {
		t.Fatal(err)
	}
	fn := exporttype.Compile(opt)
	ctx := context.Background()
	if s, _ := fn(ctx, foo, entry); s != exporttype.StyleDefault {
		t.Fatalf("foo.js = %v", s)
	}
	if s, _ := fn(ctx, extFoo, entry); s != exporttype.StyleNamed {
		t.Fatalf("~foo from entry = %v", s)
	}

	if opt, err := exporttype.FromConfig(root, "named"); err != nil || opt != exporttype.Const(exporttype.StyleNamed) {
		t.Fatalf("string form = %v, %v", opt, err)
	}
	if opt, err := exporttype.FromConfig(root, nil); err != nil || opt != nil {
		t.Fatalf("nil form = %v, %v", opt, err)
	}
	for _, bad := range []any{"both", 3, map[string]any{"a.js": 1}, map[string]any{"a.js": map[string]any{"b.js": "x"}}} {
		if _, err := exporttype.FromConfig(root, bad); err == nil {
			t.Errorf("FromConfig(%v) succeeded", bad)
		}
	}
	if _, err := exporttype.FromConfig(root, "both"); !errors.Is(err, exports.ErrInvalidStyle) {
		t.Fatalf("err = %v, want ErrInvalidStyle", err)
	}
}
