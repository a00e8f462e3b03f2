package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"cjses/internal/diag"
	"cjses/internal/diagfmt"
	"cjses/internal/engine"
	"cjses/internal/exporttype"
	"cjses/internal/modgraph"
	"cjses/internal/project"
	"cjses/internal/resolve"
	"cjses/internal/version"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [dir]",
	Short: "Replay the module graph and report export-type problems",
	Long: `check loads cjses.toml (searching upward from dir), replays the module
graph it names through the export-type engine and prints every module whose
importers disagree with its exports. The type cache is updated unless
--no-cache is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json|sarif|short)")
	checkCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	checkCmd.Flags().String("graph", "", "module graph file (overrides [build].graph)")
	checkCmd.Flags().String("cache", "", "type cache file (overrides cache in cjses.toml)")
	checkCmd.Flags().Bool("no-cache", false, "neither read nor write the type cache")
	checkCmd.Flags().Int("jobs", 0, "max parallel transforms (0=auto)")
	checkCmd.Flags().String("export-type", "", "force every module to one export style (default|named)")
	checkCmd.Flags().Bool("emit", false, "print the rewritten preamble of every touched module")
	checkCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute module paths in output")
	checkCmd.Flags().StringSlice("suppress", nil, "diagnostic kinds to hide (e.g. not-loaded)")
	checkCmd.Flags().Bool("warnings-as-errors", false, "exit with an error when any warning is reported")
}

type checkOptions struct {
	format           string
	ui               uiMode
	emit             bool
	withNotes        bool
	fullPath         bool
	suppress         []string
	warningsAsErrors bool
	timings          bool
	maxDiagnostics   int
}

// checkResult is what a finished check hands back to rendering.
type checkResult struct {
	root    string
	report  *engine.Report
	bag     *diag.Bag
	outputs []*engine.Output
}

func runCheck(cmd *cobra.Command, args []string) (err error) {
	defer func() { dumpTraceOnFailure(err) }()

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	opts, err := readCheckOptions(cmd)
	if err != nil {
		return err
	}
	cfg, found, err := project.LoadConfigFrom(dir)
	if err != nil {
		return err
	}
	if found {
		logger.Debug("loaded config", "path", cfg.Path)
	} else {
		logger.Debug("no cjses.toml found, using defaults", "root", cfg.Root)
	}
	if err := applyCheckFlags(cmd, cfg); err != nil {
		return err
	}
	engineOpts, err := engineOptions(cmd, cfg, opts.maxDiagnostics)
	if err != nil {
		return err
	}

	graph, err := modgraph.Load(cfg.GraphPath(), cfg.Root)
	if err != nil {
		return err
	}
	entries, err := cfg.EntryIDs()
	if errors.Is(err, project.ErrNoEntries) {
		entries = graph.IDs()
		logger.Debug("no [build].entries, using every graph module", "count", len(entries))
	} else if err != nil {
		return err
	}
	resolver := &resolve.FS{
		Root:       cfg.Root,
		Extensions: cfg.Resolve.Extensions,
		Alias:      cfg.Resolve.Alias,
		External:   cfg.Build.External,
		Exists:     graph.Exists,
	}

	build := func(ctx context.Context, sink engine.Sink) (*checkResult, error) {
		bag := diag.NewBag(opts.maxDiagnostics)
		eo := engineOpts
		eo.Progress = sink
		eo.Reporter = diag.NewDedupReporter(diag.BagReporter{Bag: bag})
		return runBuild(ctx, eo, resolver, graph, entries, bag)
	}

	var res *checkResult
	if shouldUseTUI(opts.ui, opts.format) {
		res, err = runWithUI(cmd.Context(), "checking "+displayRoot(cfg.Root), build)
	} else {
		res, err = build(cmd.Context(), nil)
	}
	if err != nil {
		return err
	}
	return renderCheck(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, opts)
}

func readCheckOptions(cmd *cobra.Command) (checkOptions, error) {
	var opts checkOptions
	var err error
	flags := cmd.Flags()

	if opts.format, err = flags.GetString("format"); err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	switch opts.format {
	case "pretty", "json", "sarif", "short":
	default:
		return opts, fmt.Errorf("unknown format %q (expected pretty|json|sarif|short)", opts.format)
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return opts, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if opts.ui, err = readUIMode(uiValue); err != nil {
		return opts, err
	}
	if opts.emit, err = flags.GetBool("emit"); err != nil {
		return opts, fmt.Errorf("failed to get emit flag: %w", err)
	}
	if opts.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return opts, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if opts.fullPath, err = flags.GetBool("fullpath"); err != nil {
		return opts, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if opts.suppress, err = flags.GetStringSlice("suppress"); err != nil {
		return opts, fmt.Errorf("failed to get suppress flag: %w", err)
	}
	for _, kind := range opts.suppress {
		if !diag.ParseKind(kind) {
			return opts, fmt.Errorf("unknown diagnostic kind %q", kind)
		}
	}
	if opts.warningsAsErrors, err = flags.GetBool("warnings-as-errors"); err != nil {
		return opts, fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	if opts.timings, err = cmd.Root().PersistentFlags().GetBool("timings"); err != nil {
		return opts, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.maxDiagnostics, err = cmd.Root().PersistentFlags().GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	return opts, nil
}

// applyCheckFlags lets command-line flags override cjses.toml.
func applyCheckFlags(cmd *cobra.Command, cfg *project.Config) error {
	flags := cmd.Flags()
	if flags.Changed("graph") {
		g, _ := flags.GetString("graph")
		cfg.Build.Graph = g
	}
	if flags.Changed("cache") {
		p, _ := flags.GetString("cache")
		setting, err := project.ParseCacheSetting(cfg.Root, p)
		if err != nil {
			return fmt.Errorf("--cache: %w", err)
		}
		cfg.Cache = setting
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if flags.Changed("jobs") {
		jobs, _ := flags.GetInt("jobs")
		if jobs < 0 {
			return fmt.Errorf("--jobs must not be negative")
		}
		cfg.Build.Jobs = jobs
	}
	return nil
}

func engineOptions(cmd *cobra.Command, cfg *project.Config, maxDiagnostics int) (engine.Options, error) {
	raw := cfg.ExportType
	forced, _ := cmd.Flags().GetString("export-type")
	if forced != "" {
		raw = forced
	}
	opt, err := exporttype.FromConfig(cfg.Root, raw)
	if err != nil {
		if forced != "" {
			return engine.Options{}, fmt.Errorf("--%w", err)
		}
		return engine.Options{}, err
	}
	return engine.Options{
		Root:       cfg.Root,
		ExportType: opt,
		Cache: engine.CacheOption{
			Enabled:  cfg.Cache.Enabled,
			Path:     cfg.Cache.Path,
			Explicit: cfg.Cache.Explicit,
		},
		Include:          cfg.Build.Include,
		Exclude:          cfg.Build.Exclude,
		Jobs:             cfg.Build.Jobs,
		ResolveCacheSize: cfg.Resolve.CacheSize,
		MaxDiagnostics:   maxDiagnostics,
		Logger:           logger,
	}, nil
}

func runBuild(ctx context.Context, opts engine.Options, resolver resolve.Resolver, graph *modgraph.Graph, entries []project.ModuleID, bag *diag.Bag) (*checkResult, error) {
	b, err := engine.Open(ctx, opts, resolver, graph)
	if err != nil {
		return nil, err
	}
	outputs, runErr := b.Run(ctx, entries, graph)
	if runErr != nil && ctx.Err() != nil {
		return nil, runErr
	}
	if runErr != nil {
		// Failed modules stay unloaded; the checker reports their importers.
		logger.Error("some modules could not be rewritten", "err", runErr)
	}
	report, err := b.End(ctx)
	if err != nil {
		return nil, err
	}
	bag.Sort()
	return &checkResult{root: opts.Root, report: report, bag: bag, outputs: outputs}, nil
}

func renderCheck(out, errOut io.Writer, res *checkResult, opts checkOptions) error {
	bag := res.bag
	if len(opts.suppress) > 0 {
		bag.Filter(func(d diag.Diagnostic) bool { return !slices.Contains(opts.suppress, d.Kind()) })
	}
	bag.Escalate(opts.warningsAsErrors)
	if opts.emit {
		emitOutputs(out, res)
	}

	mode := diagfmt.PathModeRelative
	if opts.fullPath {
		mode = diagfmt.PathModeAbsolute
	}
	switch opts.format {
	case "json":
		if err := diagfmt.JSON(out, bag, diagfmt.JSONOpts{Root: res.root, PathMode: mode, IncludeNotes: opts.withNotes}); err != nil {
			return err
		}
	case "sarif":
		meta := diagfmt.SarifRunMeta{ToolName: "cjses", ToolVersion: version.Version, InvocationArgs: os.Args[1:], Root: res.root}
		if err := diagfmt.Sarif(out, bag, meta); err != nil {
			return err
		}
	case "short":
		if s := diag.FormatShort(bag.Items(), res.root, opts.withNotes); s != "" {
			fmt.Fprintln(out, s)
		}
	default:
		diagfmt.Pretty(out, bag, diagfmt.PrettyOpts{
			Color:     !colorDisabled(),
			Root:      res.root,
			PathMode:  mode,
			ShowNotes: opts.withNotes,
			Summary:   true,
		})
	}

	if opts.timings {
		fmt.Fprint(errOut, res.report.Timings.String())
		fmt.Fprintf(errOut, "modules: %d, cache entries: %d, fingerprint: %s\n",
			res.report.Modules, res.report.CacheEntries, res.report.Fingerprint.String())
	}
	if bag.HasErrors() {
		return fmt.Errorf("%d warning(s) treated as errors", bag.Len())
	}
	return nil
}

func emitOutputs(out io.Writer, res *checkResult) {
	outputs := slices.Clone(res.outputs)
	slices.SortFunc(outputs, func(a, b *engine.Output) int { return strings.Compare(string(a.ID), string(b.ID)) })
	for _, o := range outputs {
		if !o.Touched {
			continue
		}
		fmt.Fprintf(out, "// --- %s\n%s\n", o.ID.Rel(res.root), strings.TrimRight(o.Code, "\n"))
	}
}

func displayRoot(root string) string {
	if wd, err := os.Getwd(); err == nil && wd == root {
		return "."
	}
	return root
}
