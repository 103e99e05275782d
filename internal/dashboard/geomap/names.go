package geomap

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed names.json
var namesJSON []byte

// Names translates between boundary-file names and archive names. Archive
// names are upper case; the canonical key of any name is its archive form.
type Names struct {
	toBoundary map[string]string
	toArchive  map[string]string
}

type namesFile struct {
	Countries map[string]string `json:"countries"`
	States    map[string]string `json:"states"`
}

// LoadNames parses the built-in translation table.
func LoadNames() (*Names, error) {
	return ParseNames(namesJSON)
}

// ParseNames builds a table from {"countries":{ARCHIVE:boundary},"states":{...}}.
func ParseNames(raw []byte) (*Names, error) {
	var f namesFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse name table: %w", err)
	}
	n := &Names{toBoundary: map[string]string{}, toArchive: map[string]string{}}
	for _, m := range []map[string]string{f.Countries, f.States} {
		for archive, boundary := range m {
			a, b := norm(archive), norm(boundary)
			if prev, dup := n.toArchive[b]; dup && prev != a {
				return nil, fmt.Errorf("boundary name %q maps to both %q and %q", boundary, prev, archive)
			}
			n.toBoundary[a] = boundary
			n.toArchive[b] = a
		}
	}
	return n, nil
}

func norm(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Archive returns the archive spelling of a boundary-file name.
func (n *Names) Archive(boundary string) string {
	k := norm(boundary)
	if a, ok := n.toArchive[k]; ok {
		return a
	}
	return k
}

// Lookup returns the archive spelling the table lists for a boundary name.
func (n *Names) Lookup(boundary string) (string, bool) {
	a, ok := n.toArchive[norm(boundary)]
	return a, ok
}

// Boundary returns the boundary-file spelling of an archive name, or the name
// unchanged when no translation exists.
func (n *Names) Boundary(archive string) string {
	if b, ok := n.toBoundary[norm(archive)]; ok {
		return b
	}
	return archive
}

// Same reports whether two names, from either source, denote one place.
func (n *Names) Same(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return n.Archive(a) == n.Archive(b)
}
