package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cjses/internal/exports"
	"cjses/internal/exporttype"
	"cjses/internal/project"
	"cjses/internal/trace"
)

// Output is the result of transforming one module.
type Output struct {
	ID      project.ModuleID
	Code    string
	Touched bool
	Fact    exports.ExportFact
	Imports []exports.Import
}

type oracle struct {
	b  *Build
	id project.ModuleID
}

func (o oracle) ImportStyle(ctx context.Context, specifier string) (exporttype.Decision, error) {
	target, err := o.b.target(ctx, specifier, o.id)
	if err != nil {
		return exporttype.Decision{}, err
	}
	return o.b.styles.Query(ctx, target.id, o.id)
}

func (o oracle) ExportStyle(ctx context.Context) (exporttype.Decision, error) {
	return o.b.styles.ExportStyle(ctx, o.id)
}

type resolved struct {
	id       project.ModuleID
	external bool
}

// target resolves specifier off-lock. Unresolved specifiers become
// external ids; files the filter rejects keep their id but count as
// external.
func (b *Build) target(ctx context.Context, specifier string, from project.ModuleID) (resolved, error) {
	id, ok, err := b.resolver.Resolve(ctx, specifier, from)
	if err != nil {
		return resolved{}, err
	}
	if !ok {
		return resolved{id: project.External(specifier), external: true}, nil
	}
	return resolved{id: id, external: !b.filter.allows(id)}, nil
}

// Transform rewrites mod and commits its facts. Modules rejected by the
// include/exclude filter return a nil Output. A rewrite error leaves the
// table untouched.
func (b *Build) Transform(ctx context.Context, mod Module) (*Output, error) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.inflight.Add(1)
	defer b.inflight.Done()
	if b.transIdx < 0 {
		b.transIdx = b.timer.Begin("transform")
	}
	b.mu.Unlock()

	if !b.filter.allows(mod.ID) {
		b.emit(Event{Module: b.rel(mod.ID), Stage: StageTransform, Status: StatusSkipped})
		return nil, nil
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeModule, "module:"+b.rel(mod.ID), trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})
	start := time.Now()
	b.emit(Event{Module: b.rel(mod.ID), Stage: StageTransform, Status: StatusWorking})

	out, err := b.transform(ctx, mod)
	if err != nil {
		span.WithExtra("error", err.Error()).End("failed")
		b.emit(Event{Module: b.rel(mod.ID), Stage: StageTransform, Status: StatusError, Err: err, Elapsed: time.Since(start)})
		b.log.Debug("transform failed", "module", b.rel(mod.ID), "err", err)
		return nil, err
	}

	b.mu.Lock()
	b.modules++
	b.mu.Unlock()
	span.WithExtra("imports", fmt.Sprint(len(out.Imports))).End(out.Fact.String())
	b.emit(Event{Module: b.rel(mod.ID), Stage: StageTransform, Status: StatusDone, Elapsed: time.Since(start)})
	return out, nil
}

func (b *Build) transform(ctx context.Context, mod Module) (*Output, error) {
	res, err := b.rw.Rewrite(ctx, mod, oracle{b: b, id: mod.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.rel(mod.ID), err)
	}
	if res == nil {
		res = &Rewrite{Code: mod.Code}
	}

	imports := make([]exports.Import, len(res.Imports))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Jobs)
	for i, d := range res.Imports {
		g.Go(func() error {
			t, err := b.target(gctx, d.Specifier, mod.ID)
			if err != nil {
				return err
			}
			trace.Point(trace.FromContext(gctx), trace.ScopeImport, "resolve", d.Specifier+" -> "+b.rel(t.id), trace.CurrentSpan(gctx).SpanID)
			x := d.Expectation
			x.Specifier = d.Specifier
			x.External = x.External || t.external
			imports[i] = exports.Import{Target: t.id, Expectation: x}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: resolve imports: %w", b.rel(mod.ID), err)
	}

	b.table.Record(mod.ID, res.Fact, imports)
	return &Output{
		ID:      mod.ID,
		Code:    res.Code,
		Touched: res.Touched,
		Fact:    res.Fact,
		Imports: imports,
	}, nil
}
