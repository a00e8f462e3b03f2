// Package engine drives one build: it loads the type cache, transforms
// modules while recording their export facts, then checks the final table
// and persists what is safe to reuse.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"cjses/internal/check"
	"cjses/internal/diag"
	"cjses/internal/exports"
	"cjses/internal/exporttype"
	"cjses/internal/observ"
	"cjses/internal/project"
	"cjses/internal/resolve"
	"cjses/internal/trace"
	"cjses/internal/typecache"
)

// ErrClosed is returned when a finished build is used again.
var ErrClosed = errors.New("build already ended")

// CacheOption configures the persistent type cache.
type CacheOption struct {
	Enabled bool
	Path    string
	// Explicit marks a user-supplied path; see typecache.Load.
	Explicit bool
}

// Options configures a build.
type Options struct {
	Root       string
	ExportType exporttype.Option
	Cache      CacheOption
	// Include and Exclude are doublestar globs relative to Root.
	Include []string
	Exclude []string
	// Jobs bounds concurrent transforms in Run; zero means GOMAXPROCS.
	Jobs int
	// ResolveCacheSize bounds memoized resolutions.
	ResolveCacheSize int
	MaxDiagnostics   int
	Reporter         diag.Reporter
	Progress         Sink
	Logger           *log.Logger
}

// Report summarizes a finished build.
type Report struct {
	Warnings     *diag.Bag
	Modules      int
	Fingerprint  project.Digest
	CacheEntries int
	CacheWritten bool
	Timings      observ.Report
}

// Build is the state of one build. Transform may be called concurrently.
type Build struct {
	opts     Options
	table    *exports.Table
	cache    *typecache.Cache
	styles   *exporttype.Resolver
	resolver *resolve.Memo
	rw       Rewriter
	filter   *filter
	timer    *observ.Timer
	log      *log.Logger

	mu       sync.Mutex
	modules  int
	ended    bool
	transIdx int
	// inflight counts running Transform calls; End waits for them.
	inflight sync.WaitGroup
}

// Open starts a build: it compiles the export-type option and loads the
// cache. Cache problems are reported as warnings unless the configured
// cache file is present but unreadable.
func Open(ctx context.Context, opts Options, resolver resolve.Resolver, rw Rewriter) (*Build, error) {
	if rw == nil {
		return nil, errors.New("engine: nil rewriter")
	}
	if opts.Reporter == nil {
		opts.Reporter = diag.NopReporter{}
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if resolver == nil {
		resolver = resolve.Func(func(context.Context, string, project.ModuleID) (project.ModuleID, bool, error) {
			return "", false, nil
		})
	}
	memo, err := resolve.NewMemo(resolver, opts.ResolveCacheSize)
	if err != nil {
		return nil, err
	}
	flt, err := newFilter(opts.Root, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	b := &Build{
		opts:     opts,
		table:    exports.NewTable(),
		resolver: memo,
		rw:       rw,
		filter:   flt,
		timer:    observ.NewTimer(),
		log:      logger,
		transIdx: -1,
	}

	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "cache-load", trace.CurrentSpan(ctx).SpanID)
	idx := b.timer.Begin("cache-load")
	b.emit(Event{Stage: StageLoad, Status: StatusWorking})
	cache, err := b.loadCache()
	note := fmt.Sprintf("%d entries", cache.Len())
	b.timer.End(idx, note)
	span.End(note)
	if err != nil {
		b.emit(Event{Stage: StageLoad, Status: StatusError, Err: err})
		return nil, err
	}
	b.emit(Event{Stage: StageLoad, Status: StatusDone})
	b.cache = cache
	b.styles = exporttype.New(exporttype.Compile(opts.ExportType), b.table, cache)
	return b, nil
}

func (b *Build) loadCache() (*typecache.Cache, error) {
	c := b.opts.Cache
	if !c.Enabled || c.Path == "" {
		return typecache.New(b.opts.Root), nil
	}
	cache, d, err := typecache.Load(c.Path, c.Explicit, b.opts.Root)
	if err != nil {
		return typecache.New(b.opts.Root), err
	}
	if d != nil {
		b.log.Warn("type cache", "path", c.Path, "problem", d.Message)
		diag.Forward(b.opts.Reporter, *d)
	}
	b.log.Debug("type cache loaded", "path", c.Path, "entries", cache.Len())
	return cache, nil
}

// Table exposes the live export table.
func (b *Build) Table() *exports.Table {
	return b.table
}

// Styles exposes the export-type resolver bound to this build.
func (b *Build) Styles() *exporttype.Resolver {
	return b.styles
}

// End finishes the build: it waits for running transforms, checks the
// final table, forwards every warning to the reporter and saves the cache. A cancelled ctx discards
// everything and leaves the cache file untouched.
func (b *Build) End(ctx context.Context) (*Report, error) {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.ended = true
	b.mu.Unlock()

	b.inflight.Wait()
	b.mu.Lock()
	if b.transIdx >= 0 {
		b.timer.End(b.transIdx, fmt.Sprintf("%d modules", b.modules))
	}
	modules := b.modules
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		b.log.Debug("build cancelled, cache not written", "err", err)
		return nil, err
	}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	span := trace.Begin(tracer, trace.ScopePhase, "check", parent)
	idx := b.timer.Begin("check")
	b.emit(Event{Stage: StageCheck, Status: StatusWorking})
	bag := check.Run(b.table, check.Options{Root: b.opts.Root, MaxDiagnostics: b.opts.MaxDiagnostics})
	for _, d := range bag.Items() {
		diag.Forward(b.opts.Reporter, d)
	}
	note := fmt.Sprintf("%d warnings", bag.Len())
	b.timer.End(idx, note)
	span.End(note)
	b.emit(Event{Stage: StageCheck, Status: StatusDone})

	report := &Report{
		Warnings:    bag,
		Modules:     modules,
		Fingerprint: b.table.Fingerprint(),
	}

	projected := typecache.Project(b.table, b.opts.Root)
	report.CacheEntries = projected.Len()
	if b.opts.Cache.Enabled && b.opts.Cache.Path != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span = trace.Begin(tracer, trace.ScopePhase, "cache-save", parent)
		idx = b.timer.Begin("cache-save")
		b.emit(Event{Stage: StageSave, Status: StatusWorking})
		start := time.Now()
		if err := projected.Save(b.opts.Cache.Path); err != nil {
			d := diag.NewWarning(diag.CacheWriteFailed, diag.Subject{},
				fmt.Sprintf("type cache could not be written: %v", err))
			bag.Add(d)
			diag.Forward(b.opts.Reporter, d)
			b.emit(Event{Stage: StageSave, Status: StatusError, Err: err, Elapsed: time.Since(start)})
			b.log.Error("type cache write failed", "path", b.opts.Cache.Path, "err", err)
		} else {
			report.CacheWritten = true
			b.emit(Event{Stage: StageSave, Status: StatusDone, Elapsed: time.Since(start)})
			b.log.Debug("type cache saved", "path", b.opts.Cache.Path, "entries", projected.Len())
		}
		note = fmt.Sprintf("%d entries", projected.Len())
		b.timer.End(idx, note)
		span.End(note)
	}
	report.Timings = b.timer.Report()
	return report, nil
}

func (b *Build) emit(ev Event) {
	if b.opts.Progress != nil {
		b.opts.Progress.OnEvent(ev)
	}
}

func (b *Build) rel(id project.ModuleID) string {
	return id.Rel(b.opts.Root)
}
