package dispatcher

import "testing"

func TestExpandDocumentationQuery_FirstElementIsInputUnmodified(t *testing.T) {
	got := ExpandDocumentationQuery("install guide")
	if len(got) == 0 || got[0] != "install guide" {
		t.Fatalf("expected first element to equal input, got %v", got)
	}
}

func TestExpandDocumentationQuery_ExpandsKnownSynonyms(t *testing.T) {
	got := ExpandDocumentationQuery("installation")
	found := false
	for _, q := range got {
		if q == "install" || q == "setup" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a synonym substitution in %v", got)
	}
}

func TestExpandDocumentationQuery_AppendsFixedForms(t *testing.T) {
	got := ExpandDocumentationQuery("caching")
	want := []string{"README caching", "caching documentation", "caching guide", "caching docs"}
	for _, w := range want {
		present := false
		for _, q := range got {
			if q == w {
				present = true
			}
		}
		if !present {
			t.Errorf("expected %q in expanded set %v", w, got)
		}
	}
}

func TestExpandDocumentationQuery_CapsAtMax(t *testing.T) {
	got := ExpandDocumentationQuery("install setup config")
	if len(got) > MaxExpandedQueries {
		t.Fatalf("expected at most %d queries, got %d", MaxExpandedQueries, len(got))
	}
}

func TestExpandDocumentationQuery_DeduplicatesCaseInsensitively(t *testing.T) {
	got := ExpandDocumentationQuery("API")
	seen := map[string]struct{}{}
	for _, q := range got {
		key := q
		if _, ok := seen[key]; ok {
			t.Fatalf("duplicate entry %q in %v", q, got)
		}
		seen[key] = struct{}{}
	}
}
