package entry

import (
	"slices"
	"strings"

	"github.com/scylladb/go-set/strset"
)

// Elide removes directory pseudo-entries from a flat listing.
//
// Tools such as rar list directories as plain paths with no trailing slash,
// so a directory is only recognizable by having a child. Elide is a heuristic
// over that output: after a lexical sort a directory sits right before its
// first child, so an entry whose sorted successor starts with entry+"/" is a
// directory. A second pass catches the case where a sibling like "a.txt"
// sorts between "a" and "a/b", as '.' and '-' sort before '/'.
//
// The returned listing keeps the order of names, minus the removed entries.
// Blank names and names ending with a slash are also removed.
func Elide(names []string) []string {
	if len(names) == 0 {
		return []string{}
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	dirs := strset.New()
	for i := 0; i+1 < len(sorted); i++ {
		current, next := sorted[i], sorted[i+1]
		if strings.HasPrefix(next, current+"/") {
			dirs.Add(current)
		}
	}
	parents := ancestors(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !RejectDirectoryLike.Accept(name, nil) {
			continue
		}
		if dirs.Has(name) || parents.Has(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ancestors returns every proper parent path of the names.
func ancestors(names []string) *strset.Set {
	set := strset.New()
	for _, name := range names {
		for i := strings.LastIndexByte(name, '/'); i > 0; i = strings.LastIndexByte(name[:i], '/') {
			parent := name[:i]
			if set.Has(parent) {
				break
			}
			set.Add(parent)
		}
	}
	return set
}
