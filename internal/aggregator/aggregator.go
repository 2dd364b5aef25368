// Package aggregator fuses per-plugin search results across languages:
// grouping, ranking, symbol-definition and reference merging, and a
// fingerprint-keyed TTL cache over the aggregated output.
package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cidx-dev/cidx/internal/plugin"
)

// Strategy selects the grouping algorithm.
type Strategy string

const (
	StrategySimple Strategy = "simple"
	StrategySmart  Strategy = "smart"
)

// RankingCriteria tunes the weighted rank computation. Weights must
// sum to 1.0.
type RankingCriteria struct {
	RelevanceWeight  float64
	ConfidenceWeight float64
	FrequencyWeight  float64
	RecencyWeight    float64

	PreferExactMatches    bool
	BoostMultipleSources  bool
	PenalizeLongFiles     bool
	BoostCommonExtensions bool

	// SimilarityThreshold gates the Smart strategy's LCS-ratio grouping.
	SimilarityThreshold float64
	// DocumentLineGap widens the line-distance grouping window for
	// documentation files, where related prose sits further apart than
	// the tighter window used for code (≤2 lines).
	DocumentLineGap int
}

// DefaultRankingCriteria returns the default weights (0.4 / 0.3 / 0.2 /
// 0.1) and a similarity threshold of 0.8.
func DefaultRankingCriteria() RankingCriteria {
	return RankingCriteria{
		RelevanceWeight:      0.4,
		ConfidenceWeight:     0.3,
		FrequencyWeight:      0.2,
		RecencyWeight:        0.1,
		PreferExactMatches:   true,
		BoostMultipleSources: true,
		SimilarityThreshold:  0.8,
		DocumentLineGap:      10,
	}
}

// DocumentationRankingCriteria tunes ranking for doc-query results:
// exact matches and multi-source agreement matter less than for code,
// recency matters more (docs go stale).
func DocumentationRankingCriteria() RankingCriteria {
	c := DefaultRankingCriteria()
	c.RelevanceWeight = 0.5
	c.ConfidenceWeight = 0.2
	c.FrequencyWeight = 0.1
	c.RecencyWeight = 0.2
	return c
}

// SourceResult is one plugin's raw result, tagged with its origin for
// cross-plugin fusion.
type SourceResult struct {
	Plugin    string
	FilePath  string
	Line      int
	Snippet   string
	Score     float64 // in [0,1]
	MatchType plugin.MatchType
	IsDoc     bool
	IndexedAt time.Time
}

// Aggregated is one fused, ranked result.
type Aggregated struct {
	FilePath   string
	Line       int
	Primary    SourceResult
	Sources    []string
	Confidence float64
	Rank       float64
	Contexts   []string // merged adjacent snippets, documentation only
}

// Aggregator groups, ranks, and caches cross-plugin search results.
type Aggregator struct {
	cache *Cache
}

// New returns an Aggregator with a TTL cache of the given default TTL.
func New(defaultTTL time.Duration) *Aggregator {
	return &Aggregator{cache: NewCache(defaultTTL)}
}

// Aggregate groups raw results by strategy and ranking criteria,
// checking the fingerprint cache first.
func (a *Aggregator) Aggregate(pluginsUsed []string, results []SourceResult, limit int, strategy Strategy, criteria RankingCriteria) []Aggregated {
	fp := Fingerprint(pluginsUsed, results, limit, strategy)
	if cached, ok := a.cache.Get(fp); ok {
		return cached
	}

	var out []Aggregated
	switch strategy {
	case StrategySmart:
		out = aggregateSmart(results, criteria)
	default:
		out = aggregateSimple(results, criteria)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	a.cache.Set(fp, out)
	return out
}

// aggregateSimple groups by (file, line); primary is the first result
// seen, confidence is min(1, sources/3).
func aggregateSimple(results []SourceResult, criteria RankingCriteria) []Aggregated {
	groups := make(map[string]*Aggregated)
	var order []string

	for _, r := range results {
		key := groupKey(r.FilePath, r.Line)
		g, ok := groups[key]
		if !ok {
			g = &Aggregated{FilePath: r.FilePath, Line: r.Line, Primary: r}
			groups[key] = g
			order = append(order, key)
		}
		g.Sources = appendUnique(g.Sources, r.Plugin)
	}

	out := make([]Aggregated, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.Confidence = minFloat(1, float64(len(g.Sources))/3)
		g.Rank = weightedRank(g.Primary, g.Confidence, len(g.Sources), criteria)
		out = append(out, *g)
	}
	sortByRank(out)
	return out
}

// aggregateSmart groups results judged similar by file/line proximity
// or snippet LCS ratio, then boosts rank for multi-source agreement
// and apparent exact matches, merging adjacent documentation snippets.
func aggregateSmart(results []SourceResult, criteria RankingCriteria) []Aggregated {
	var groups []*Aggregated
	index := newLineIndex()

	for _, r := range results {
		placed := false

		if idx, ok := index.lookup(r.FilePath, r.Line); ok {
			g := groups[idx]
			g.Sources = appendUnique(g.Sources, r.Plugin)
			if r.Score > g.Primary.Score {
				g.Primary = r
			}
			if r.IsDoc {
				g.Contexts = mergeContext(g.Contexts, r.Snippet, r.Line, g.Primary.Line, criteria)
			}
			placed = true
		}

		if !placed {
			for i, g := range groups {
				if similar(g.Primary, r, criteria) {
					g.Sources = appendUnique(g.Sources, r.Plugin)
					if r.Score > g.Primary.Score {
						g.Primary = r
					}
					if r.IsDoc {
						g.Contexts = mergeContext(g.Contexts, r.Snippet, r.Line, g.Primary.Line, criteria)
					}
					index.record(r.FilePath, r.Line, i)
					placed = true
					break
				}
			}
		}

		if !placed {
			groups = append(groups, &Aggregated{
				FilePath: r.FilePath,
				Line:     r.Line,
				Primary:  r,
				Sources:  []string{r.Plugin},
				Contexts: nil,
			})
			index.record(r.FilePath, r.Line, len(groups)-1)
		}
	}

	out := make([]Aggregated, 0, len(groups))
	for _, g := range groups {
		g.Confidence = minFloat(1, float64(len(g.Sources))/3)
		rank := weightedRank(g.Primary, g.Confidence, len(g.Sources), criteria)
		if criteria.BoostMultipleSources && len(g.Sources) > 1 {
			rank *= 1.1
		}
		if isApparentExactMatch(g.Primary) {
			rank *= 1.05
		}
		g.Rank = rank
		out = append(out, *g)
	}
	sortByRank(out)
	return out
}

func similar(a, b SourceResult, criteria RankingCriteria) bool {
	if a.FilePath != b.FilePath {
		return false
	}
	maxGap := 2
	if a.IsDoc || b.IsDoc {
		maxGap = criteria.DocumentLineGap
		if maxGap == 0 {
			maxGap = 10
		}
	}
	if abs(a.Line-b.Line) <= maxGap {
		return true
	}
	threshold := criteria.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	return lcsRatio(a.Snippet, b.Snippet) >= threshold
}

func isApparentExactMatch(r SourceResult) bool {
	return r.MatchType == plugin.MatchExact && !strings.Contains(r.Snippet, "\n") && len(r.Snippet) < 120
}

// mergeContext folds adjacent (line gap ≤3) documentation snippets into
// a combined context list, capped at five per group.
func mergeContext(existing []string, snippet string, line, primaryLine int, criteria RankingCriteria) []string {
	if abs(line-primaryLine) > 3 {
		return existing
	}
	if len(existing) >= 5 {
		return existing
	}
	for _, e := range existing {
		if e == snippet {
			return existing
		}
	}
	return append(existing, snippet)
}

func weightedRank(r SourceResult, confidence float64, sourceCount int, c RankingCriteria) float64 {
	frequency := minFloat(1, float64(sourceCount)/3)
	recency := recencyScore(r.IndexedAt)
	rank := c.RelevanceWeight*r.Score + c.ConfidenceWeight*confidence +
		c.FrequencyWeight*frequency + c.RecencyWeight*recency
	if c.PreferExactMatches && r.MatchType == plugin.MatchExact {
		rank += 0.05
	}
	return rank
}

func recencyScore(t time.Time) float64 {
	if t.IsZero() {
		return 0.5
	}
	age := time.Since(t)
	const halfLife = 30 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	decay := 1 - float64(age)/float64(halfLife)
	if decay < 0 {
		return 0
	}
	if decay > 1 {
		return 1
	}
	return decay
}

func sortByRank(out []Aggregated) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].Line < out[j].Line
	})
}

func groupKey(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

func appendUnique(sources []string, s string) []string {
	for _, existing := range sources {
		if existing == s {
			return sources
		}
	}
	return append(sources, s)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Fingerprint returns a stable hash of (plugins ordered by language,
// per-plugin md5-of-results, limit, strategy), used as the aggregator
// cache key.
func Fingerprint(pluginsUsed []string, results []SourceResult, limit int, strategy Strategy) string {
	sorted := append([]string(nil), pluginsUsed...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, ",")))
	fmt.Fprintf(h, "|limit=%d|strategy=%s|", limit, strategy)

	sortedResults := append([]SourceResult(nil), results...)
	sort.Slice(sortedResults, func(i, j int) bool {
		if sortedResults[i].Plugin != sortedResults[j].Plugin {
			return sortedResults[i].Plugin < sortedResults[j].Plugin
		}
		if sortedResults[i].FilePath != sortedResults[j].FilePath {
			return sortedResults[i].FilePath < sortedResults[j].FilePath
		}
		return sortedResults[i].Line < sortedResults[j].Line
	})
	for _, r := range sortedResults {
		fmt.Fprintf(h, "%s:%s:%d:%.4f;", r.Plugin, r.FilePath, r.Line, r.Score)
	}
	return hex.EncodeToString(h.Sum(nil))
}
