package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultCacheName is the cache file created in the project root when the
// cache is enabled without an explicit path.
const DefaultCacheName = ".cjsescache"

// DefaultGraphName is the module graph description read by `cjses check`.
const DefaultGraphName = "cjses.graph.toml"

var (
	// ErrInvalidCacheSetting indicates that `cache` is neither a bool nor a path.
	ErrInvalidCacheSetting = errors.New("cache must be a boolean or a path")
	// ErrNoEntries indicates that [build].entries is empty.
	ErrNoEntries = errors.New("missing [build].entries")
)

// BuildConfig is the [build] section of cjses.toml.
type BuildConfig struct {
	Entries  []string `toml:"entries"`
	Graph    string   `toml:"graph"`
	Jobs     int      `toml:"jobs"`
	Include  []string `toml:"include"`
	Exclude  []string `toml:"exclude"`
	External []string `toml:"external"`
}

// ResolveConfig is the [resolve] section of cjses.toml.
type ResolveConfig struct {
	Extensions []string          `toml:"extensions"`
	Alias      map[string]string `toml:"alias"`
	CacheSize  int               `toml:"cache-size"`
}

// CacheSetting is the decoded form of `cache = bool | "path"`.
type CacheSetting struct {
	Enabled bool
	Path    string
	// Explicit is set when the user named the path; a missing file then gets a warning.
	Explicit bool
}

// Config is a loaded project configuration.
type Config struct {
	Path    string
	Root    string
	Build   BuildConfig
	Resolve ResolveConfig
	Cache   CacheSetting
	// ExportType is the raw `export-type` value (string or table); see exporttype.FromConfig.
	ExportType any
}

type rawConfig struct {
	Build      BuildConfig   `toml:"build"`
	Resolve    ResolveConfig `toml:"resolve"`
	Cache      any           `toml:"cache"`
	ExportType any           `toml:"export-type"`
}

// DefaultConfig returns the configuration used when no cjses.toml exists.
func DefaultConfig(root string) *Config {
	return &Config{
		Root: root,
		Build: BuildConfig{
			Graph: DefaultGraphName,
		},
		Resolve: ResolveConfig{
			Extensions: []string{".js", ".cjs", ".mjs"},
			CacheSize:  4096,
		},
		Cache: CacheSetting{
			Enabled: true,
			Path:    filepath.Join(root, DefaultCacheName),
		},
	}
}

// LoadConfig parses cjses.toml at path.
func LoadConfig(path string) (*Config, error) {
	var raw rawConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	root := filepath.Dir(path)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	cfg := DefaultConfig(root)
	cfg.Path = path

	if meta.IsDefined("build") {
		cfg.Build.Entries = trimAll(raw.Build.Entries)
		cfg.Build.Jobs = raw.Build.Jobs
		cfg.Build.Include = trimAll(raw.Build.Include)
		cfg.Build.Exclude = trimAll(raw.Build.Exclude)
		cfg.Build.External = trimAll(raw.Build.External)
		if g := strings.TrimSpace(raw.Build.Graph); g != "" {
			cfg.Build.Graph = g
		}
	}
	if meta.IsDefined("build", "jobs") && raw.Build.Jobs < 0 {
		return nil, fmt.Errorf("%s: [build].jobs must not be negative", path)
	}
	if meta.IsDefined("resolve", "extensions") {
		cfg.Resolve.Extensions = trimAll(raw.Resolve.Extensions)
	}
	if meta.IsDefined("resolve", "alias") {
		cfg.Resolve.Alias = raw.Resolve.Alias
	}
	if meta.IsDefined("resolve", "cache-size") {
		if raw.Resolve.CacheSize <= 0 {
			return nil, fmt.Errorf("%s: [resolve].cache-size must be positive", path)
		}
		cfg.Resolve.CacheSize = raw.Resolve.CacheSize
	}
	if meta.IsDefined("cache") {
		setting, err := ParseCacheSetting(root, raw.Cache)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Cache = setting
	}
	if meta.IsDefined("export-type") {
		cfg.ExportType = raw.ExportType
	}
	return cfg, nil
}

// LoadConfigFrom finds cjses.toml starting at startDir; without one it
// returns DefaultConfig rooted at startDir.
func LoadConfigFrom(startDir string) (*Config, bool, error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		root, err := filepath.Abs(startDir)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve start directory: %w", err)
		}
		return DefaultConfig(root), false, nil
	}
	cfg, err := LoadConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

// ParseCacheSetting decodes `cache = true | false | "path"`.
func ParseCacheSetting(root string, v any) (CacheSetting, error) {
	switch x := v.(type) {
	case nil:
		return CacheSetting{Enabled: true, Path: filepath.Join(root, DefaultCacheName)}, nil
	case bool:
		return CacheSetting{Enabled: x, Path: filepath.Join(root, DefaultCacheName)}, nil
	case string:
		p := strings.TrimSpace(x)
		if p == "" {
			return CacheSetting{}, ErrInvalidCacheSetting
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, filepath.FromSlash(p))
		}
		return CacheSetting{Enabled: true, Path: p, Explicit: true}, nil
	default:
		return CacheSetting{}, fmt.Errorf("%w, got %T", ErrInvalidCacheSetting, v)
	}
}

// EntryIDs returns the canonical ids of [build].entries.
func (c *Config) EntryIDs() ([]ModuleID, error) {
	if len(c.Build.Entries) == 0 {
		return nil, ErrNoEntries
	}
	ids := make([]ModuleID, 0, len(c.Build.Entries))
	for _, e := range c.Build.Entries {
		ids = append(ids, Canonical(c.Root, filepath.FromSlash(e)))
	}
	return ids, nil
}

// GraphPath returns the absolute path of the module graph description.
func (c *Config) GraphPath() string {
	g := c.Build.Graph
	if g == "" {
		g = DefaultGraphName
	}
	if filepath.IsAbs(g) {
		return g
	}
	return filepath.Join(c.Root, filepath.FromSlash(g))
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
