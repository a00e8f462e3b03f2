package typecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cjses/internal/diag"
	"cjses/internal/exports"
	"cjses/internal/project"
)

// ErrMalformedCache is returned when an explicitly configured cache file
// cannot be decoded.
var ErrMalformedCache = errors.New("malformed type cache")

// Legacy files stored the preferred style instead of an importer.
const (
	legacyDefault = "default"
	legacyNamed   = "named"
)

// Entry is one cached fact. Except is the importer it must not be applied to.
type Entry struct {
	Style  exports.Style
	Except project.ModuleID
}

// Cache is an immutable set of cached facts, safe for concurrent readers.
type Cache struct {
	root    string
	entries map[project.ModuleID]Entry
}

// New returns an empty cache rooted at root.
func New(root string) *Cache {
	return &Cache{root: root, entries: make(map[project.ModuleID]Entry)}
}

// Load reads the cache at path. A missing file is a cold start; explicit
// paths additionally get a warning. A malformed file is fatal for explicit
// paths and a warning otherwise.
func Load(path string, explicit bool, root string) (*Cache, *diag.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("read type cache %s: %w", path, err)
		}
		if !explicit {
			return New(root), nil, nil
		}
		d := diag.NewWarning(diag.CacheMissing, diag.Subject{},
			fmt.Sprintf("type cache '%s' does not exist, starting empty", displayPath(root, path)))
		return New(root), &d, nil
	}

	rec, err := codecFor(path).decode(data)
	if err != nil {
		if explicit {
			return nil, nil, fmt.Errorf("%w %s: %w", ErrMalformedCache, path, err)
		}
		d := diag.NewWarning(diag.CacheCorrupt, diag.Subject{},
			fmt.Sprintf("type cache '%s' is malformed and was ignored: %v", displayPath(root, path), err))
		return New(root), &d, nil
	}
	return fromRecord(root, rec), nil, nil
}

func fromRecord(root string, rec record) *Cache {
	c := New(root)
	for key, v := range rec {
		id := project.ParseRel(root, key)
		if id == "" {
			continue
		}
		e := Entry{Style: exports.StyleDefault}
		switch {
		case v == nil:
		case *v == legacyDefault:
		case *v == legacyNamed:
			e.Style = exports.StyleNamed
		default:
			e.Except = project.ParseRel(root, *v)
		}
		c.entries[id] = e
	}
	return c
}

// Project keeps only the facts safe to reuse in a later build: trusted
// default-only exports, and externals whose trusted importers all want a
// default.
func Project(table *exports.Table, root string) *Cache {
	c := New(root)
	for _, e := range table.Entries() {
		if f := e.Fact; f != nil {
			if f.Trusted && f.HasDefault && !f.HasNames() {
				c.entries[e.ID] = Entry{Style: exports.StyleDefault}
			}
			continue
		}
		if !external(e) {
			continue
		}
		var trusted []project.ModuleID
		ok := true
		for _, x := range e.Expectations {
			if !x.Trusted {
				continue
			}
			if x.Style() != exports.StyleDefault {
				ok = false
				break
			}
			trusted = append(trusted, x.Importer)
		}
		if !ok || len(trusted) == 0 {
			continue
		}
		entry := Entry{Style: exports.StyleDefault}
		if len(trusted) == 1 {
			entry.Except = trusted[0]
		}
		c.entries[e.ID] = entry
	}
	return c
}

// external reports whether e is treated as external: an unresolved
// specifier, or a resolved file the include/exclude filter leaves alone.
func external(e exports.Entry) bool {
	if e.ID.IsExternal() {
		return true
	}
	for _, x := range e.Expectations {
		if x.External {
			return true
		}
	}
	return false
}

// Lookup returns the cached fact for id.
func (c *Cache) Lookup(id project.ModuleID) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Item is an entry paired with its id.
type Item struct {
	ID project.ModuleID
	Entry
}

// Entries returns every entry sorted by serialized id.
func (c *Cache) Entries() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, 0, len(c.entries))
	for id, e := range c.entries {
		out = append(out, Item{ID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Rel(c.root) < out[j].ID.Rel(c.root)
	})
	return out
}

func (c *Cache) toRecord() record {
	rec := make(record, len(c.entries))
	for id, e := range c.entries {
		var v *string
		switch {
		case e.Style == exports.StyleNamed:
			s := legacyNamed
			v = &s
		case e.Except != "":
			s := e.Except.Rel(c.root)
			v = &s
		}
		rec[id.Rel(c.root)] = v
	}
	return rec
}

// Encode renders the cache in the format chosen by path's extension.
// Equal caches encode to identical bytes.
func (c *Cache) Encode(path string) ([]byte, error) {
	return codecFor(path).encode(c.toRecord())
}

// Save writes the cache atomically: a temp file in the target directory is
// renamed over path.
func (c *Cache) Save(path string) (err error) {
	data, err := c.Encode(path)
	if err != nil {
		return fmt.Errorf("encode type cache: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".cjsescache-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Remove deletes the cache file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func displayPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
