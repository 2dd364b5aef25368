package aggregator

import (
	"sort"
	"strconv"

	"github.com/cidx-dev/cidx/internal/plugin"
)

// MergeDefinitions selects the most complete symbol definition when
// multiple plugins return one for the same lookup. Completeness score:
// has_doc +0.3, has_signature +0.2, has_kind +0.1, has_span +0.1,
// has_language +0.1, base 0.2.
func MergeDefinitions(defs []*plugin.SymbolDef) *plugin.SymbolDef {
	var best *plugin.SymbolDef
	bestScore := -1.0
	for _, d := range defs {
		if d == nil {
			continue
		}
		score := completeness(d)
		if score > bestScore {
			bestScore = score
			best = d
		}
	}
	return best
}

func completeness(d *plugin.SymbolDef) float64 {
	score := 0.2
	if d.Documentation != "" {
		score += 0.3
	}
	if d.Signature != "" {
		score += 0.2
	}
	if d.Kind != "" {
		score += 0.1
	}
	if d.LineStart != 0 || d.LineEnd != 0 {
		score += 0.1
	}
	if d.Language != "" {
		score += 0.1
	}
	return score
}

// MergeReferences deduplicates references by (file, line) and sorts
// ascending by (file, line).
func MergeReferences(refs []plugin.Reference) []plugin.Reference {
	seen := make(map[string]struct{}, len(refs))
	out := make([]plugin.Reference, 0, len(refs))
	for _, r := range refs {
		key := r.FilePath + ":" + strconv.Itoa(r.Line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].Line < out[j].Line
	})
	return out
}
