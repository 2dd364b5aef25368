// Package export implements the secure export filter: a sensitive-path
// predicate plus an audited copy of a repository's index into a fresh,
// filtered store. It is only ever applied at export time — local
// indexing and search always see the full, unfiltered tree.
package export

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns are always-excluded glob patterns, matched against a
// file's repository-relative path. Callers append additional patterns
// on top; none of these can be un-excluded.
var DefaultPatterns = []string{
	".env*",
	"**/.env*",
	"*.key",
	"**/*.key",
	"*.pem",
	"**/*.pem",
	"*secret*",
	"**/*secret*",
	"node_modules/**",
	".git/**",
}

// Filter decides whether a path is sensitive and must be excluded from
// an export.
type Filter struct {
	patterns []string
}

// NewFilter returns a Filter over DefaultPatterns plus any caller-supplied
// additional glob patterns.
func NewFilter(additional ...string) *Filter {
	patterns := append([]string(nil), DefaultPatterns...)
	patterns = append(patterns, additional...)
	return &Filter{patterns: patterns}
}

// Patterns returns the patterns this filter was built with, in the order
// they were added, for inclusion in an audit log.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// IsSensitive reports whether relativePath matches any of the filter's
// patterns and should be excluded from an export.
func (f *Filter) IsSensitive(relativePath string) bool {
	relativePath = strings.TrimPrefix(relativePath, "/")
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, relativePath); ok {
			return true
		}
		// Also try matching just the basename, so a bare "*secret*"
		// style pattern catches a match nested at any depth without
		// requiring the caller to write "**/*secret*" explicitly.
		if base := basename(relativePath); base != relativePath {
			if ok, _ := doublestar.Match(p, base); ok {
				return true
			}
		}
	}
	return false
}

func basename(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
