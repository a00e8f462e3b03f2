// Package trace records what a build is doing and when.
//
// Spans bracket the build phases (cache-load, transform, check,
// cache-save) and each module transform; points mark instant events such
// as the start of a transform wave. Heartbeats show the process is alive
// while a slow resolver or rewriter holds a wave open.
//
// Enable it from the CLI:
//
//	cjses check --trace=- --trace-level=detail
//
// Tracers travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "check", 0)
//	defer span.End("")
//
// Levels: off, error (ring buffer only, dumped on failure), phase (build
// and phase spans), detail (adds modules), debug (adds per-import events).
package trace
