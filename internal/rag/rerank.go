package rag

import (
	"strings"
	"unicode"
)

const (
	// termOccurrenceWeight is added per occurrence of a query term, counting
	// at most maxOccurrencesPerTerm occurrences of each term.
	termOccurrenceWeight  = 0.05
	maxOccurrencesPerTerm = 3
	coverageBonus         = 0.05
	phraseBonus           = 0.15
	// phraseSlack is how many extra tokens a phrase window may span.
	phraseSlack        = 3
	fileNameMatchBonus = 0.03
	maxKeywordBoost    = 0.4
)

var lexicalStopwords = map[string]struct{}{
	"a": {}, "about": {}, "all": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "could": {}, "do": {}, "does": {}, "for": {}, "from": {},
	"give": {}, "has": {}, "have": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "our": {}, "please": {},
	"say": {}, "says": {}, "should": {}, "show": {}, "tell": {}, "that": {}, "the": {}, "their": {},
	"there": {}, "these": {}, "this": {}, "those": {}, "to": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
	"would": {}, "you": {}, "your": {},
}

// keywordMatch summarises how a chunk matches the query terms.
type keywordMatch struct {
	termCount   int
	matched     int
	nameTerms   int
	occurrences int
	phrase      bool
}

// queryTerms returns the distinct non-stopword terms of a query in order.
func queryTerms(query string) []string {
	tokens := filterStopwords(tokenize(query))
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) < 2 {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	return terms
}

// matchKeywords scores terms against a chunk's text and file name.
func matchKeywords(terms []string, chunkText, fileName string) keywordMatch {
	m := keywordMatch{termCount: len(terms)}
	if len(terms) == 0 {
		return m
	}

	chunkTokens := tokenize(chunkText)
	chunkFreq := make(map[string]int, len(chunkTokens))
	for _, token := range chunkTokens {
		chunkFreq[token]++
	}
	nameSet := make(map[string]struct{})
	for _, token := range tokenize(fileName) {
		nameSet[token] = struct{}{}
	}

	for _, term := range terms {
		occ := chunkFreq[term]
		_, inName := nameSet[term]
		if occ > 0 || inName {
			m.matched++
		}
		if inName {
			m.nameTerms++
		}
		m.occurrences += min(occ, maxOccurrencesPerTerm)
	}

	if len(terms) > 1 {
		m.phrase = shortestCover(chunkTokens, terms) <= len(terms)+phraseSlack
	}
	return m
}

// boost converts the match into an additive score in [0, maxKeywordBoost].
func (m keywordMatch) boost() float64 {
	if m.matched == 0 {
		return 0
	}
	score := float64(m.occurrences) * termOccurrenceWeight
	if m.matched > 1 {
		score += float64(m.matched-1) * coverageBonus
	}
	if m.phrase {
		score += phraseBonus
	}
	score += float64(m.nameTerms) * fileNameMatchBonus
	return min(score, maxKeywordBoost)
}

// satisfiesStrict applies the keyword requirement of the strict pass: a single
// term must match, two terms must both match, longer queries need two matches.
func (m keywordMatch) satisfiesStrict() bool {
	switch {
	case m.termCount == 0:
		return false
	case m.termCount == 1:
		return m.matched >= 1
	case m.termCount == 2:
		return m.matched == 2
	default:
		return m.matched >= 2
	}
}

// shortestCover returns the length of the shortest token window containing
// every term, or len(tokens)+len(terms)+phraseSlack+1 when there is none.
func shortestCover(tokens, terms []string) int {
	none := len(tokens) + len(terms) + phraseSlack + 1
	want := make(map[string]int, len(terms))
	for _, term := range terms {
		want[term] = 0
	}

	best := none
	covered := 0
	left := 0
	for right, token := range tokens {
		count, ok := want[token]
		if !ok {
			continue
		}
		if count == 0 {
			covered++
		}
		want[token] = count + 1

		for covered == len(want) {
			if width := right - left + 1; width < best {
				best = width
			}
			if c, ok := want[tokens[left]]; ok {
				if c == 1 {
					covered--
				}
				want[tokens[left]] = c - 1
			}
			left++
		}
	}
	return best
}

func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func filterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := lexicalStopwords[token]; isStop {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
