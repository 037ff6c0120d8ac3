// Package catalog discovers agent descriptors from a catalog source and
// exposes them as an immutable, ordered snapshot.
package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// CardFile is the descriptor file name inside each agent directory.
const CardFile = "card.json"

// Entry is one raw catalog record keyed by its source key.
type Entry struct {
	Key  string
	Data []byte
}

// Source supplies raw catalog entries. Implementations perform no network I/O.
type Source interface {
	Entries() ([]Entry, error)
}

// DirSource reads one agent per sub-directory of Root, from <dir>/card.json.
// Directories without a card are not agents and are ignored.
type DirSource struct {
	Root string
}

// Entries implements Source.
func (s DirSource) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", s.Root, err)
	}

	var entries []Entry
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Root, de.Name(), CardFile))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			// Unreadable card: surface it as a parse failure for this key only.
			entries = append(entries, Entry{Key: de.Name(), Data: nil})
			continue
		}
		entries = append(entries, Entry{Key: de.Name(), Data: data})
	}
	return entries, nil
}

// StaticSource is an in-memory source keyed by entry key.
type StaticSource map[string][]byte

// Entries implements Source.
func (s StaticSource) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(s))
	for k, v := range s {
		entries = append(entries, Entry{Key: k, Data: v})
	}
	return entries, nil
}

// Catalog is an immutable, ordered set of agent descriptors.
type Catalog struct {
	agents []Descriptor
	byName map[string]int
}

// Discover reads every entry from src in lexicographic key order. Entries that
// fail to parse are skipped and reported as *ParseError values; they never
// abort discovery. A source-level failure returns a nil catalog.
func Discover(src Source) (*Catalog, []error) {
	entries, err := src.Entries()
	if err != nil {
		return nil, []error{err}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.Key, b.Key)
	})

	c := &Catalog{byName: make(map[string]int, len(entries))}
	var errs []error
	for _, e := range entries {
		if e.Data == nil {
			errs = append(errs, &ParseError{Key: e.Key, Err: errors.New("card unreadable")})
			continue
		}
		d, err := ParseDescriptor(e.Data)
		if err != nil {
			errs = append(errs, &ParseError{Key: e.Key, Err: err})
			continue
		}
		if _, dup := c.byName[d.Name]; dup {
			errs = append(errs, &ParseError{Key: e.Key, Err: fmt.Errorf("duplicate agent name %q", d.Name)})
			continue
		}
		d.Source = e.Key
		c.byName[d.Name] = len(c.agents)
		c.agents = append(c.agents, d)
	}
	return c, errs
}

// New builds a catalog from already-parsed descriptors, keeping their order.
// Later duplicates are dropped.
func New(descs ...Descriptor) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(descs))}
	for _, d := range descs {
		if _, dup := c.byName[d.Name]; dup || d.Name == "" {
			continue
		}
		c.byName[d.Name] = len(c.agents)
		c.agents = append(c.agents, d)
	}
	return c
}

// Descriptors returns the catalogued agents in discovery order.
func (c *Catalog) Descriptors() []Descriptor {
	if c == nil {
		return nil
	}
	return slices.Clone(c.agents)
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.agents[i], true
}

// Len returns the number of catalogued agents.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.agents)
}
