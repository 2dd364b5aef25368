package dispatcher

import (
	"regexp"
	"strings"
)

// docQueryPattern matches the enumerated documentation-query vocabulary:
// phrasing that targets prose (a README, a guide, an API reference)
// rather than source code.
var docQueryPattern = regexp.MustCompile(`(?i)\b(how to|getting started|installation|configuration|api doc|tutorial|example|readme|usage|reference|faq|troubleshoot|best practice|architecture|changelog)\b`)

// englishQuestionWords are first-token markers of a natural-language
// question, which this package also treats as a documentation query.
var englishQuestionWords = map[string]struct{}{
	"how":   {},
	"what":  {},
	"why":   {},
	"when":  {},
	"where": {},
	"who":   {},
	"which": {},
	"can":   {},
	"does":  {},
	"is":    {},
}

// IsDocumentationQuery classifies query as targeting documentation
// rather than code. Deterministic and side-effect free: the same input
// always returns the same result.
func IsDocumentationQuery(query string) bool {
	if docQueryPattern.MatchString(query) {
		return true
	}
	first, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	_, isQuestionWord := englishQuestionWords[strings.ToLower(first)]
	return isQuestionWord
}
