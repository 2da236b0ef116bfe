package rag

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// contractTypes maps common contract abbreviations to the phrases a file
// name may spell them out with.
var contractTypes = map[string][]string{
	"nda": {"nda", "non disclosure agreement", "nondisclosure agreement", "confidentiality agreement"},
	"msa": {"msa", "master services agreement", "master service agreement"},
	"sow": {"sow", "statement of work"},
	"dpa": {"dpa", "data processing agreement", "data processing addendum"},
	"sla": {"sla", "service level agreement"},
	"ica": {"ica", "independent contractor agreement"},
	"loi": {"loi", "letter of intent"},
	"mou": {"mou", "memorandum of understanding"},
}

var (
	quotedPattern   = regexp.MustCompile(`"([^"]{2,120})"|“([^”]{2,120})”|'([^']{2,120})'`)
	fileRefPattern  = regexp.MustCompile(`(?i)\b[\w\-]+\.(pdf|docx?|txt|md|rtf|csv|xlsx?|pptx?)\b`)
	camelPattern    = regexp.MustCompile(`^[A-Z][a-z]+[A-Z][A-Za-z0-9]*$`)
	acronymPattern  = regexp.MustCompile(`^[A-Z]{2,6}$`)
	camelBoundaries = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// normalizeName lowercases s, splits camel case and turns every run of
// non-alphanumeric characters into one space.
func normalizeName(s string) string {
	return foldName(camelBoundaries.ReplaceAllString(s, "$1 $2"))
}

// foldName is normalizeName without the camel case split, so
// "MasterContract" and "mastercontract" fold to the same text.
func foldName(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if r == '\'' || r == '’' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// nameForms returns the normalized phrases that refer to a file: its full
// name and stem, each with and without the camel case split, and the
// acronym of a multi-word stem.
func nameForms(name string) []string {
	stem := fileStem(name)
	forms := []string{normalizeName(name), foldName(name)}
	for _, s := range []string{normalizeName(stem), foldName(stem)} {
		if s != "" && !isStopPhrase(s) {
			forms = append(forms, s)
		}
	}
	if a := acronym(stem); len(a) >= 3 {
		forms = append(forms, a)
	}
	return dedupe(forms)
}

// acronym builds the lowercase initials of a stem. Stems of three or more
// words use every word; shorter ones only their capitalized words. Words
// containing digits, such as version tags, are skipped.
func acronym(stem string) string {
	spaced := camelBoundaries.ReplaceAllString(stem, "$1 $2")
	var words []string
	for _, w := range strings.FieldsFunc(spaced, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !strings.ContainsFunc(w, unicode.IsDigit) {
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return ""
	}
	all := len(words) >= 3
	var b strings.Builder
	for _, w := range words {
		if r, _ := utf8.DecodeRuneInString(w); all || unicode.IsUpper(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func isStopPhrase(s string) bool {
	if len(s) < 2 {
		return true
	}
	_, stop := lexicalStopwords[s]
	return stop
}

// phraseIndex returns the byte offsets of phrase as whole words in the
// normalized text, or -1.
func phraseIndex(text, phrase string) (int, int) {
	if phrase == "" {
		return -1, -1
	}
	padded := " " + text + " "
	i := strings.Index(padded, " "+phrase+" ")
	if i < 0 {
		return -1, -1
	}
	return i, i + len(phrase)
}

// quotedSpans returns the contents of quoted spans in the raw query.
func quotedSpans(query string) []string {
	var spans []string
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		for _, g := range m[1:] {
			if g = strings.TrimSpace(g); g != "" {
				spans = append(spans, g)
			}
		}
	}
	return spans
}

// nameLikeTokens returns the parts of a query that look like references to a
// file: file names with an extension, quoted spans, CamelCase words and
// known contract or alias acronyms.
func nameLikeTokens(query string, aliases map[string]string) []string {
	var out []string
	out = append(out, fileRefPattern.FindAllString(query, -1)...)
	out = append(out, quotedSpans(query)...)
	for _, w := range strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	}) {
		switch {
		case camelPattern.MatchString(w):
			out = append(out, w)
		case acronymPattern.MatchString(w):
			lower := strings.ToLower(w)
			_, isContract := contractTypes[lower]
			_, isAlias := aliases[lower]
			if isContract || isAlias {
				out = append(out, w)
			}
		}
	}
	return dropContained(dedupe(out))
}

// dropContained removes tokens that occur inside a longer token, so "NDA"
// is not reported next to "NDA.pdf".
func dropContained(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		contained := false
		for _, o := range tokens {
			if len(o) > len(t) && strings.Contains(strings.ToLower(o), strings.ToLower(t)) {
				contained = true
				break
			}
		}
		if !contained {
			out = append(out, t)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedUnique(values []string) []string {
	out := dedupe(values)
	sort.Strings(out)
	return out
}

// normalizeAliases lowercases alias keys and drops blank entries.
func normalizeAliases(aliases map[string]string) map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		k = normalizeName(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
