package dispatcher

import "strings"

// MaxExpandedQueries bounds how many distinct queries ExpandDocumentationQuery
// returns, regardless of how many synonym branches a query matches.
const MaxExpandedQueries = 10

// docSynonyms is a fixed topic → alternate-phrasing map used to widen a
// documentation query before it is fanned out to plugins.
var docSynonyms = map[string][]string{
	"install":       {"installation", "setup", "getting started", "requirements"},
	"installation":  {"install", "setup", "getting started"},
	"setup":         {"install", "installation", "getting started", "configuration"},
	"config":        {"configuration", "settings", "options", "setup"},
	"configuration": {"config", "settings", "options"},
	"usage":         {"how to use", "example", "getting started"},
	"api":           {"api reference", "api documentation", "reference"},
	"reference":     {"api reference", "documentation", "api"},
	"example":       {"examples", "usage", "tutorial", "sample"},
	"tutorial":      {"guide", "walkthrough", "getting started"},
	"guide":         {"tutorial", "walkthrough", "documentation"},
	"troubleshoot":  {"troubleshooting", "faq", "common issues", "debugging"},
	"faq":           {"frequently asked questions", "troubleshooting"},
	"architecture":  {"design", "overview", "structure"},
	"changelog":     {"release notes", "history", "changes"},
	"contributing":  {"contribution guide", "development setup"},
}

// ExpandDocumentationQuery returns a deduplicated list of query variants
// for a documentation-classified query: the input itself first, then
// synonym substitutions, then the four fixed README/topic forms,
// capped at MaxExpandedQueries. The first returned element always
// equals query, unmodified.
func ExpandDocumentationQuery(query string) []string {
	out := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}

	add := func(candidate string) bool {
		key := strings.ToLower(candidate)
		if _, ok := seen[key]; ok {
			return len(out) < MaxExpandedQueries
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
		return len(out) < MaxExpandedQueries
	}

	lower := strings.ToLower(query)
	for _, word := range strings.Fields(lower) {
		synonyms, ok := docSynonyms[word]
		if !ok {
			continue
		}
		for _, syn := range synonyms {
			if !add(strings.Replace(lower, word, syn, 1)) {
				return out
			}
		}
	}

	topic := strings.TrimSpace(query)
	for _, form := range []string{
		"README " + topic,
		topic + " documentation",
		topic + " guide",
		topic + " docs",
	} {
		if !add(form) {
			return out
		}
	}

	return out
}
