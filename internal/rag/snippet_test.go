package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildExcerptPicksBestSentenceWithNeighbours(t *testing.T) {
	text := "Recitals apply. Definitions follow. Fees are payable monthly. The renewal term is one year. Notices go by mail. Signatures."
	got := buildExcerpt(text, []string{"renewal", "term"})
	want := "Fees are payable monthly. The **renewal** **term** is one year. Notices go by mail."
	if got != want {
		t.Fatalf("buildExcerpt() = %q, want %q", got, want)
	}
}

func TestBuildExcerptWithoutTermsStartsAtBeginning(t *testing.T) {
	got := buildExcerpt("First. Second. Third. Fourth.", nil)
	if got != "First. Second." {
		t.Fatalf("buildExcerpt() = %q", got)
	}
	if buildExcerpt("   ", nil) != "" {
		t.Fatal("expected empty excerpt for blank text")
	}
}

func TestBuildExcerptIsCapped(t *testing.T) {
	long := strings.Repeat("word ", 400) + "."
	got := buildExcerpt(long, nil)
	if n := utf8.RuneCountInString(got); n > maxExcerptChars {
		t.Fatalf("excerpt has %d runes, want at most %d", n, maxExcerptChars)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis on truncated excerpt, got %q", got[len(got)-10:])
	}
}

func TestHighlightTermsSkipsShortTerms(t *testing.T) {
	got := highlightTerms("An NDA is an agreement.", []string{"nda", "an", "agreement"})
	if got != "An **NDA** is an **agreement**." {
		t.Fatalf("highlightTerms() = %q", got)
	}
}

func TestDetectClauseType(t *testing.T) {
	tests := map[string]string{
		"Either party may terminate this Agreement upon notice.":           "termination",
		"This Agreement shall automatically renew for successive terms.":   "renewal",
		"The Recipient shall hold Confidential Information in confidence.": "confidentiality",
		"This Agreement is governed by the laws of New York.":              "",
	}
	for text, want := range tests {
		if got := detectClauseType(text); got != want {
			t.Errorf("detectClauseType(%q) = %q, want %q", text, got, want)
		}
	}
}
