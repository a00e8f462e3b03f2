package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cjses/internal/exports"
	"cjses/internal/project"
	"cjses/internal/typecache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or remove the type cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "List the modules the type cache treats as default-exporting",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheShow,
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean [dir]",
	Short: "Delete the type cache file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClean,
}

func init() {
	cacheShowCmd.Flags().String("format", "text", "output format (text|json)")
	cacheShowCmd.Flags().String("cache", "", "type cache file (overrides cache in cjses.toml)")
	cacheCleanCmd.Flags().String("cache", "", "type cache file (overrides cache in cjses.toml)")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}

// cacheConfig resolves the cache file a cache subcommand works on.
func cacheConfig(cmd *cobra.Command, args []string) (*project.Config, error) {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	cfg, _, err := project.LoadConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("cache") {
		p, _ := cmd.Flags().GetString("cache")
		setting, err := project.ParseCacheSetting(cfg.Root, p)
		if err != nil {
			return nil, fmt.Errorf("--cache: %w", err)
		}
		cfg.Cache = setting
	}
	return cfg, nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (expected text|json)", format)
	}
	cfg, err := cacheConfig(cmd, args)
	if err != nil {
		return err
	}
	if !cfg.Cache.Enabled {
		logger.Warn("the type cache is disabled in cjses.toml")
	}
	cache, d, err := typecache.Load(cfg.Cache.Path, cfg.Cache.Explicit, cfg.Root)
	if err != nil {
		return err
	}
	if d != nil {
		logger.Warn(d.Message, "code", d.Code.ID())
	}
	if format == "json" {
		return writeCacheJSON(cmd.OutOrStdout(), cache, cfg.Root)
	}
	writeCacheText(cmd.OutOrStdout(), cache, cfg.Root)
	return nil
}

func writeCacheText(out io.Writer, cache *typecache.Cache, root string) {
	items := cache.Entries()
	for _, it := range items {
		line := fmt.Sprintf("%-40s %s", it.ID.Rel(root), it.Style)
		if it.Except != "" {
			line += " (except for " + it.Except.Rel(root) + ")"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%d entries\n", len(items))
}

type cacheItemJSON struct {
	Module string `json:"module"`
	Style  string `json:"style"`
	Except string `json:"except,omitempty"`
}

func writeCacheJSON(out io.Writer, cache *typecache.Cache, root string) error {
	items := cache.Entries()
	payload := make([]cacheItemJSON, 0, len(items))
	for _, it := range items {
		style := it.Style
		if style == exports.StyleUnknown {
			style = exports.StyleDefault
		}
		payload = append(payload, cacheItemJSON{
			Module: it.ID.Rel(root),
			Style:  style.String(),
			Except: it.Except.Rel(root),
		})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	cfg, err := cacheConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := typecache.Remove(cfg.Cache.Path); err != nil {
		return fmt.Errorf("failed to remove type cache: %w", err)
	}
	logger.Info("type cache removed", "path", cfg.Cache.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cfg.Cache.Path)
	return nil
}
