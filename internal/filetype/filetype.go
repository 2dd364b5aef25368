// Package filetype maps a file path to a language/MIME guess with a
// confidence score, caching results for the lifetime of a file's mtime.
package filetype

import (
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cidx-dev/cidx/internal/scanner"
)

// Match is the result of classifying a path.
type Match struct {
	Language   string
	MIME       string
	Confidence float64
}

// cacheEntry pairs a cached Match with the mtime it was computed for.
type cacheEntry struct {
	match Match
	mtime time.Time
}

// Matcher classifies paths by extension (primary) and MIME sniff
// (secondary), caching per-path results keyed by mtime so a changed
// file is reclassified rather than served a stale guess.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{cache: make(map[string]cacheEntry)}
}

// Match classifies absPath. mtime is the file's current modification
// time; a cache hit is only honored if it was computed for this mtime.
func (m *Matcher) Match(absPath string, mtime time.Time) Match {
	if cached, ok := m.lookup(absPath, mtime); ok {
		return cached
	}

	match := classify(absPath)
	m.mu.Lock()
	m.cache[absPath] = cacheEntry{match: match, mtime: mtime}
	m.mu.Unlock()
	return match
}

func (m *Matcher) lookup(absPath string, mtime time.Time) (Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.cache[absPath]
	if !ok || !entry.mtime.Equal(mtime) {
		return Match{}, false
	}
	return entry.match, true
}

// Invalidate drops any cached classification for absPath.
func (m *Matcher) Invalidate(absPath string) {
	m.mu.Lock()
	delete(m.cache, absPath)
	m.mu.Unlock()
}

func classify(absPath string) Match {
	if lang := scanner.DetectLanguage(absPath); lang != "" {
		return Match{
			Language:   lang,
			MIME:       mimeForLanguage(lang),
			Confidence: 1.0, // exact extension/filename match
		}
	}

	// Extension map missed; fall back to content sniff.
	mime, ok := sniffMIME(absPath)
	if !ok {
		return Match{Language: "", MIME: "", Confidence: 0}
	}
	if lang := languageForMIME(mime); lang != "" {
		return Match{Language: lang, MIME: mime, Confidence: 0.6}
	}
	return Match{Language: "", MIME: mime, Confidence: 0.6}
}

func sniffMIME(absPath string) (string, bool) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", false
	}
	return http.DetectContentType(buf[:n]), true
}

func mimeForLanguage(lang string) string {
	switch lang {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "html":
		return "text/html"
	case "markdown", "rst", "text":
		return "text/plain"
	default:
		return "text/plain"
	}
}

func languageForMIME(mime string) string {
	mime = strings.SplitN(mime, ";", 2)[0]
	switch mime {
	case "text/html":
		return "html"
	case "application/json":
		return "json"
	case "application/xml", "text/xml":
		return "xml"
	case "text/plain":
		return "text"
	default:
		return ""
	}
}

// IsBinary reports whether content looks like non-text data, using the
// same null-byte-in-first-512-bytes heuristic the indexer's file
// scanner already relies on to skip unindexable files.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
