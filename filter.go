package ftpclient

import (
	"sort"
	"strings"
)

// FilterHidden returns the entries whose names do not start with a dot.
func FilterHidden(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, ".") {
			out = append(out, e)
		}
	}
	return out
}

// SortEntries sorts entries by name, case-insensitively, in place. With
// foldersFirst, directories precede files.
func SortEntries(entries []Entry, foldersFirst bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if foldersFirst && a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// SearchOptions tune Search.
type SearchOptions struct {
	CaseSensitive bool
	// IncludeDirs also matches directory names.
	IncludeDirs bool
}

// Search returns entries whose name contains query. An empty query matches
// everything Search would otherwise consider.
func Search(entries []Entry, query string, opts SearchOptions) []Entry {
	if !opts.CaseSensitive {
		query = strings.ToLower(query)
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() && !opts.IncludeDirs {
			continue
		}
		name := e.Name
		if !opts.CaseSensitive {
			name = strings.ToLower(name)
		}
		if strings.Contains(name, query) {
			out = append(out, e)
		}
	}
	return out
}
