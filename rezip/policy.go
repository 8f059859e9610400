package rezip

import (
	"archive/zip"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/woozymasta/pathrules"
)

// DefaultGrowThreshold is the archive size in bytes above which new members
// are appended instead of rebuilding the whole archive.
const DefaultGrowThreshold int64 = 5 * 1024 * 1024

// DefaultStorePatterns match members that are already compressed,
// such as raster images and other archives.
func DefaultStorePatterns() []string {
	return []string{
		"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.bmp",
		"*.zip", "*.cbz", "*.rar", "*.cbr", "*.7z",
	}
}

// Policy is the write configuration for one add call.
// It is immutable and safe to share between goroutines.
type Policy struct {
	threshold int64
	patterns  []string
	matcher   *pathrules.Matcher
}

// NewPolicy returns a policy that grows archives larger than threshold bytes
// and stores members matching the gitignore-style patterns without compression.
// A negative threshold always rebuilds.
func NewPolicy(threshold int64, patterns ...string) (Policy, error) {
	p := Policy{threshold: threshold}
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		p.patterns = append(p.patterns, pattern)
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	if len(rules) == 0 {
		return p, nil
	}
	m, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
	if err != nil {
		return Policy{}, fmt.Errorf("rezip policy %w", err)
	}
	p.matcher = m
	return p, nil
}

// DefaultPolicy returns the policy built from DefaultGrowThreshold and DefaultStorePatterns.
func DefaultPolicy() Policy {
	p, err := NewPolicy(DefaultGrowThreshold, DefaultStorePatterns()...)
	if err != nil {
		panic(err)
	}
	return p
}

// Store reports whether the named member is written without compression.
// The result depends only on the name.
func (p Policy) Store(name string) bool {
	if p.matcher == nil {
		return false
	}
	name = strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
	return p.matcher.Included(name, false)
}

// Method returns the zip compression method for the named member.
func (p Policy) Method(name string) uint16 {
	if p.Store(name) {
		return zip.Store
	}
	return zip.Deflate
}

// Grow reports whether an archive of size bytes is appended to in grow mode.
func (p Policy) Grow(size int64) bool {
	if p.threshold < 0 {
		return false
	}
	return size > p.threshold
}

// Threshold returns the grow threshold in bytes.
func (p Policy) Threshold() int64 {
	return p.threshold
}

// Patterns returns the store patterns.
func (p Policy) Patterns() []string {
	return slices.Clone(p.patterns)
}
