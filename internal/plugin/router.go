package plugin

import (
	"sort"
	"sync"
	"time"

	"github.com/cidx-dev/cidx/internal/filetype"
)

// Candidate is one routing outcome: a plugin able to serve a path,
// with its computed confidence.
type Candidate struct {
	Language   string
	Confidence float64
}

// DefaultLatencySampleWindow bounds the rolling-latency sample size.
const DefaultLatencySampleWindow = 100

// latencyStats tracks a plugin's recent execution times for load-
// balancing tie-breaks and status reporting.
type latencyStats struct {
	samples    []time.Duration
	usageCount int
}

func (s *latencyStats) record(d time.Duration, window int) {
	s.samples = append(s.samples, d)
	if len(s.samples) > window {
		s.samples = s.samples[len(s.samples)-window:]
	}
	s.usageCount++
}

func (s *latencyStats) average() time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.samples {
		total += d
	}
	return total / time.Duration(len(s.samples))
}

// Router selects and orders plugin candidates for a path, capability,
// or language, and records per-plugin rolling execution times for
// load-balanced tie-breaking. Reads are lock-free after a statistic
// update completes; updates are serialized under a mutex sized to the
// sample window.
type Router struct {
	registry *Registry
	matcher  *filetype.Matcher

	mu           sync.RWMutex
	stats        map[string]*latencyStats
	sampleWindow int
}

// NewRouter builds a Router over registry, using matcher to classify
// paths by extension/MIME.
func NewRouter(registry *Registry, matcher *filetype.Matcher) *Router {
	return &Router{
		registry:     registry,
		matcher:      matcher,
		stats:        make(map[string]*latencyStats),
		sampleWindow: DefaultLatencySampleWindow,
	}
}

// RouteByPath returns an ordered list of (language, confidence)
// candidates able to serve path, highest confidence first.
//
//  1. exact extension/filename match          → confidence 1.0
//  2. MIME match only                          → confidence 0.6
//  3. language hint only (caller-supplied)      → confidence 0.4
//
// Ties are broken by (priority desc, recent_avg_latency asc,
// usage_count asc) so load balances toward the less-used, faster
// plugin.
func (r *Router) RouteByPath(path string, mtime time.Time, languageHint string) []Candidate {
	match := r.matcher.Match(path, mtime)

	var candidates []Candidate
	for _, lang := range r.registry.Languages() {
		switch {
		case match.Language != "" && match.Language == lang:
			candidates = append(candidates, Candidate{Language: lang, Confidence: 1.0})
		case match.MIME != "" && mimeMatchesLanguage(match.MIME, lang):
			candidates = append(candidates, Candidate{Language: lang, Confidence: 0.6})
		case languageHint != "" && languageHint == lang:
			candidates = append(candidates, Candidate{Language: lang, Confidence: 0.4})
		}
	}
	r.sortCandidates(candidates)
	return candidates
}

// RouteByLanguage returns the single candidate for an exact language
// name, if registered.
func (r *Router) RouteByLanguage(language string) []Candidate {
	for _, lang := range r.registry.Languages() {
		if lang == language {
			return []Candidate{{Language: lang, Confidence: 1.0}}
		}
	}
	return nil
}

// RouteByCapability returns every registered plugin whose advertised
// capability name matches name.
func (r *Router) RouteByCapability(name string) []Candidate {
	var candidates []Candidate
	for _, lang := range r.registry.Languages() {
		cap, ok := r.registry.Capability(lang)
		if ok && cap.Name == name {
			candidates = append(candidates, Candidate{Language: lang, Confidence: 1.0})
		}
	}
	r.sortCandidates(candidates)
	return candidates
}

func (r *Router) sortCandidates(candidates []Candidate) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Confidence != cj.Confidence {
			return ci.Confidence > cj.Confidence
		}
		capI, _ := r.registry.Capability(ci.Language)
		capJ, _ := r.registry.Capability(cj.Language)
		if capI.Priority != capJ.Priority {
			return capI.Priority > capJ.Priority
		}
		latI, latJ := r.stats[ci.Language], r.stats[cj.Language]
		avgI, avgJ := zeroIfNil(latI), zeroIfNil(latJ)
		if avgI != avgJ {
			return avgI < avgJ
		}
		return usageOf(latI) < usageOf(latJ)
	})
}

func zeroIfNil(s *latencyStats) time.Duration {
	if s == nil {
		return 0
	}
	return s.average()
}

func usageOf(s *latencyStats) int {
	if s == nil {
		return 0
	}
	return s.usageCount
}

// RecordLatency records one execution time sample for a language,
// used by subsequent routing decisions to load-balance toward faster,
// less-loaded plugins.
func (r *Router) RecordLatency(language string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[language]
	if !ok {
		s = &latencyStats{}
		r.stats[language] = s
	}
	s.record(d, r.sampleWindow)
}

// Stats reports (avg latency, usage count) for a language, for the
// status()/plugins() surfaces.
func (r *Router) Stats(language string) (avg time.Duration, usageCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stats[language]
	if !ok {
		return 0, 0
	}
	return s.average(), s.usageCount
}

func mimeMatchesLanguage(mime, language string) bool {
	switch language {
	case "html":
		return mime == "text/html"
	case "json":
		return mime == "application/json"
	case "xml":
		return mime == "application/xml" || mime == "text/xml"
	default:
		return false
	}
}
