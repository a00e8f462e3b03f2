package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"cjses/internal/project"
	"cjses/internal/trace"
)

// Run transforms entries and everything they reach, one wave at a time:
// each wave holds modules first discovered by the previous one, so
// importers are always transformed before the modules they import.
// Modules the loader cannot find are skipped and later reported as not
// loaded. Rewrite errors do not stop the build; they are joined into the
// returned error.
func (b *Build) Run(ctx context.Context, entries []project.ModuleID, loader Loader) ([]*Output, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopePhase, "transform", trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	seen := make(map[project.ModuleID]struct{}, len(entries))
	var wave []project.ModuleID
	for _, id := range entries {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		wave = append(wave, id)
	}

	var (
		outputs []*Output
		errs    []error
	)
	for n := 0; len(wave) > 0; n++ {
		b.log.Debug("transform wave", "wave", n, "modules", len(wave))
		trace.Point(tracer, trace.ScopePhase, "wave", fmt.Sprintf("#%d: %d modules", n, len(wave)), span.ID())
		for _, id := range wave {
			b.emit(Event{Module: b.rel(id), Stage: StageTransform, Status: StatusQueued})
		}

		results := make([]*Output, len(wave))
		failures := make([]error, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.opts.Jobs)
		for i, id := range wave {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if !b.filter.allows(id) {
					b.emit(Event{Module: b.rel(id), Stage: StageTransform, Status: StatusSkipped})
					return nil
				}
				mod, err := loader.Load(gctx, id)
				if errors.Is(err, ErrNotFound) {
					b.emit(Event{Module: b.rel(id), Stage: StageTransform, Status: StatusSkipped, Err: err})
					return nil
				}
				if err != nil {
					failures[i] = fmt.Errorf("load %s: %w", b.rel(id), err)
					b.emit(Event{Module: b.rel(id), Stage: StageTransform, Status: StatusError, Err: err})
					return nil
				}
				out, err := b.Transform(gctx, mod)
				if isCancel(err) {
					return err
				}
				results[i], failures[i] = out, err
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			span.End("cancelled")
			return outputs, err
		}

		var next []project.ModuleID
		for i, out := range results {
			if failures[i] != nil {
				errs = append(errs, failures[i])
			}
			if out == nil {
				continue
			}
			outputs = append(outputs, out)
			for _, imp := range out.Imports {
				if imp.Expectation.External || imp.Target.IsExternal() {
					continue
				}
				if _, ok := seen[imp.Target]; ok {
					continue
				}
				seen[imp.Target] = struct{}{}
				next = append(next, imp.Target)
			}
		}
		wave = next
	}
	span.End(fmt.Sprintf("%d modules", len(outputs)))
	return outputs, errors.Join(errs...)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
