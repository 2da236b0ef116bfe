package rag

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxExcerptChars = 700

var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]*`)

// clauseKeywords maps clause types to the phrases that signal them, in
// priority order for ties.
var clauseKeywords = []struct {
	clause   string
	keywords []string
}{
	{"confidentiality", []string{"confidential", "confidentiality", "non-disclosure", "nondisclosure", "proprietary information"}},
	{"termination", []string{"terminate", "termination", "terminated"}},
	{"renewal", []string{"renew", "renewal", "auto-renew", "automatically renew"}},
	{"payment", []string{"payment", "invoice", "fees", "compensation"}},
	{"liability", []string{"liability", "liable", "consequential damages"}},
	{"indemnification", []string{"indemnify", "indemnification", "hold harmless"}},
	{"governing law", []string{"governing law", "jurisdiction", "venue"}},
	{"intellectual property", []string{"intellectual property", "copyright", "patent", "trademark"}},
	{"warranty", []string{"warranty", "warranties", "warrants"}},
	{"dispute resolution", []string{"arbitration", "dispute", "mediation"}},
	{"data protection", []string{"personal data", "data protection", "gdpr"}},
}

// buildExcerpt picks the sentence with the most query terms plus one
// sentence on either side, caps it and bolds the query terms.
func buildExcerpt(text string, terms []string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}
	best, bestCount := 0, 0
	for i, s := range sentences {
		count := 0
		for _, token := range tokenize(s) {
			if _, ok := termSet[token]; ok {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	start := max(0, best-1)
	end := min(len(sentences), best+2)
	passage := truncateRunes(strings.Join(sentences[start:end], " "), maxExcerptChars)
	return highlightTerms(passage, terms)
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentencePattern.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// highlightTerms wraps whole-word occurrences of terms longer than two
// characters in markdown bold.
func highlightTerms(text string, terms []string) string {
	var words []string
	for _, t := range terms {
		if len(t) > 2 {
			words = append(words, regexp.QuoteMeta(t))
		}
	}
	if len(words) == 0 {
		return text
	}
	sort.Slice(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	return re.ReplaceAllString(text, "**$1**")
}

// truncateRunes cuts text to at most limit runes at a word boundary.
func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit-1])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// detectClauseType labels text with the clause type whose keywords occur most.
func detectClauseType(text string) string {
	lower := strings.ToLower(text)
	best, bestCount := "", 0
	for _, c := range clauseKeywords {
		count := 0
		for _, kw := range c.keywords {
			count += strings.Count(lower, kw)
		}
		if count > bestCount {
			best, bestCount = c.clause, count
		}
	}
	return best
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
