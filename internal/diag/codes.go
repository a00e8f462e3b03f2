package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// export-type consistency
	ExpInfo            Code = 1000
	ExpMissingDefault  Code = 1001
	ExpMissingNames    Code = 1002
	ExpUnmatchedImport Code = 1003
	ExpNotLoaded       Code = 1004
	ExpFactConflict    Code = 1005

	// persistent type cache
	CacheInfo        Code = 2000
	CacheMissing     Code = 2001
	CacheCorrupt     Code = 2002
	CacheWriteFailed Code = 2003

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:        "Unknown error",
		ExpInfo:            "Export type information",
		ExpMissingDefault:  "Missing default export",
		ExpMissingNames:    "Missing named exports",
		ExpUnmatchedImport: "Importers disagree on export type",
		ExpNotLoaded:       "Imported module was never loaded",
		ExpFactConflict:    "Module exports changed during the build",
		CacheInfo:          "Type cache information",
		CacheMissing:       "Type cache file not found",
		CacheCorrupt:       "Type cache file is malformed",
		CacheWriteFailed:   "Type cache could not be written",
		ObsInfo:            "Observability information",
		ObsTimings:         "Timings",
	}

	// codeKind holds the machine-readable tags tooling filters on.
	codeKind = map[Code]string{
		ExpMissingDefault:  "missing-export",
		ExpMissingNames:    "missing-export",
		ExpUnmatchedImport: "unmatched-import",
		ExpNotLoaded:       "not-loaded",
		ExpFactConflict:    "fact-conflict",
		CacheMissing:       "cache",
		CacheCorrupt:       "cache",
		CacheWriteFailed:   "cache",
		ObsTimings:         "timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 3000:
		return fmt.Sprintf("CJS%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

// Kind returns the stable tag of the code's category, e.g. "missing-export".
func (c Code) Kind() string {
	if k, ok := codeKind[c]; ok {
		return k
	}
	return "info"
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// ParseKind reports whether s names a known kind tag.
func ParseKind(s string) bool {
	for _, k := range codeKind {
		if k == s {
			return true
		}
	}
	return false
}
