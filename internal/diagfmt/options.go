// Package diagfmt renders diagnostics for people and for tools.
package diagfmt

import "cjses/internal/project"

// PathMode specifies how module paths are displayed.
type PathMode uint8

const (
	// PathModeAuto prints root-relative paths when a root is known.
	PathModeAuto PathMode = iota
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	Root      string
	PathMode  PathMode
	ShowNotes bool
	// Summary appends "N warnings" after the list.
	Summary bool
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	Root         string
	PathMode     PathMode
	Max          int // truncates output only, not the bag
	IncludeNotes bool
}

// SarifRunMeta provides metadata for SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
	Root           string
}

func formatPath(id project.ModuleID, root string, mode PathMode) string {
	if id.IsExternal() {
		return id.String()
	}
	switch mode {
	case PathModeAbsolute:
		return id.String()
	case PathModeBasename:
		s := id.Rel(root)
		for i := len(s) - 1; i >= 0; i-- {
			if s[i] == '/' {
				return s[i+1:]
			}
		}
		return s
	default:
		return id.Rel(root)
	}
}
