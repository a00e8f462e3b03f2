package project

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// externalPrefix marks ids of specifiers that never resolved to a file.
const externalPrefix = "~"

// ModuleID is the canonical identity of a module inside one build.
// File modules are absolute, cleaned, NFC-normalized slash paths;
// external modules are the bare specifier prefixed with "~".
type ModuleID string

// Canonical builds the id of a file module. Relative paths are joined with root.
func Canonical(root, path string) ModuleID {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return ModuleID(norm.NFC.String(filepath.ToSlash(filepath.Clean(path))))
}

// External builds the id of an unresolved specifier.
func External(specifier string) ModuleID {
	return ModuleID(externalPrefix + norm.NFC.String(specifier))
}

// IsExternal reports whether id denotes an unresolved specifier.
func (id ModuleID) IsExternal() bool {
	return strings.HasPrefix(string(id), externalPrefix)
}

// Specifier returns the bare specifier of an external id, or the path of a file id.
func (id ModuleID) Specifier() string {
	return strings.TrimPrefix(string(id), externalPrefix)
}

// Path returns the native filesystem path of a file id.
func (id ModuleID) Path() string {
	if id.IsExternal() {
		return ""
	}
	return filepath.FromSlash(string(id))
}

// Rel returns the serialized form of id: a root-relative slash path for
// files, "~spec" for externals.
func (id ModuleID) Rel(root string) string {
	if id == "" || id.IsExternal() || root == "" {
		return string(id)
	}
	rel, err := filepath.Rel(root, id.Path())
	if err != nil {
		return string(id)
	}
	return filepath.ToSlash(rel)
}

func (id ModuleID) String() string {
	return string(id)
}

// ParseRel is the inverse of Rel.
func ParseRel(root, s string) ModuleID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, externalPrefix) {
		return External(strings.TrimPrefix(s, externalPrefix))
	}
	return Canonical(root, filepath.FromSlash(s))
}

// Within reports whether the file id lies under root.
func (id ModuleID) Within(root string) bool {
	if id.IsExternal() || root == "" {
		return false
	}
	return pathWithin(root, id.Path())
}

func pathWithin(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
