package entry

import (
	"fmt"
	"path"
	"strings"

	"github.com/woozymasta/pathrules"
)

// Filter decides whether a member path is included in a listing or an
// extraction batch. The raw argument is the original path encoding and may be nil.
type Filter interface {
	Accept(path string, raw []byte) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(path string, raw []byte) bool

// Accept calls f.
func (f FilterFunc) Accept(path string, raw []byte) bool {
	return f(path, raw)
}

var (
	// AcceptAll includes every member.
	AcceptAll Filter = FilterFunc(func(string, []byte) bool { return true })

	// RejectDirectoryLike excludes empty paths and paths that end with a separator,
	// which some tools emit for directory records.
	RejectDirectoryLike Filter = FilterFunc(func(name string, _ []byte) bool {
		name = strings.TrimSpace(name)
		return name != "" && !strings.HasSuffix(name, "/")
	})
)

// Extensions includes members whose filename extension matches one of exts.
// Matching is case-insensitive and the leading dot is optional.
func Extensions(exts ...string) Filter {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		want[ext] = struct{}{}
	}
	return FilterFunc(func(name string, _ []byte) bool {
		_, ok := want[strings.ToLower(path.Ext(name))]
		return ok
	})
}

// Glob includes members matched by at least one gitignore-style pattern.
// A pattern prefixed with "!" excludes what earlier patterns included.
func Glob(patterns ...string) (Filter, error) {
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		action := pathrules.ActionInclude
		if strings.HasPrefix(p, "!") {
			action = pathrules.ActionExclude
			p = p[1:]
		}
		rules = append(rules, pathrules.Rule{Action: action, Pattern: p})
	}
	if len(rules) == 0 {
		return AcceptAll, nil
	}
	m, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
	if err != nil {
		return nil, fmt.Errorf("entry glob %w", err)
	}
	return FilterFunc(func(name string, _ []byte) bool {
		return m.Included(name, false)
	}), nil
}

// All includes a member only when every filter accepts it.
// Nil filters are skipped and an empty set accepts everything.
func All(filters ...Filter) Filter {
	return FilterFunc(func(name string, raw []byte) bool {
		for _, f := range filters {
			if f == nil {
				continue
			}
			if !f.Accept(name, raw) {
				return false
			}
		}
		return true
	})
}

// Not inverts f.
func Not(f Filter) Filter {
	return FilterFunc(func(name string, raw []byte) bool {
		return !f.Accept(name, raw)
	})
}

// Apply returns the names accepted by f, keeping their order.
// A nil filter accepts everything.
func Apply(f Filter, names ...string) []string {
	if f == nil {
		f = AcceptAll
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if f.Accept(name, nil) {
			out = append(out, name)
		}
	}
	return out
}
