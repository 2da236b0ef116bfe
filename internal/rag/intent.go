package rag

import (
	"regexp"
	"sort"
	"strings"

	"docrag/internal/llm"
)

// Rule names reported on Intent.Rule.
const (
	RuleInventory = "inventory"
	RuleFilename  = "filename"
	RuleFollowUp  = "follow_up"
	RuleExplicit  = "explicit"
	RuleGeneral   = "general"
)

// followUpLookback is how many history turns a follow-up may refer back to.
const followUpLookback = 6

// Rule inspects a query and either claims it with an intent or passes.
type Rule interface {
	Name() string
	Match(query string, known []string, history []Turn) (Intent, bool)
}

// Classifier applies its rules in order; the first match wins and General
// is the fallback.
type Classifier struct {
	rules   []Rule
	aliases map[string]string
}

// NewClassifier creates a classifier with the inventory, file name and
// follow-up rules. aliases maps nicknames to file names.
func NewClassifier(aliases map[string]string) *Classifier {
	normalized := normalizeAliases(aliases)
	names := &FilenameRule{aliases: normalized}
	return &Classifier{
		aliases: normalized,
		rules: []Rule{
			InventoryRule{},
			names,
			&FollowUpRule{names: names, lookback: followUpLookback},
		},
	}
}

// Classify decides what query asks for. known is the set of file names
// currently in the store. It never fails.
func (c *Classifier) Classify(query string, known []string, history []Turn) Intent {
	known = sortedUnique(known)
	for _, r := range c.rules {
		intent, ok := r.Match(query, known, history)
		if !ok {
			continue
		}
		intent.Query = query
		intent.Rule = r.Name()
		if intent.Kind == IntentInventory {
			intent.FileNames = known
		}
		return intent
	}
	return Intent{
		Kind:       IntentGeneral,
		Query:      query,
		Rule:       RuleGeneral,
		Unresolved: nameLikeTokens(query, c.aliases),
	}
}

var inventoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(files|documents|docs) (are )?(in|loaded into|stored in) (memory|the index|the system)\b`),
	regexp.MustCompile(`\b(what|which) (files|documents|docs) (do you have|are (there|loaded|indexed|available|stored|uploaded))\b`),
	regexp.MustCompile(`^(what|which) (files|documents|docs)$`),
	regexp.MustCompile(`\blist (all |the |all the |my |your )?(files|documents|docs)\b`),
	regexp.MustCompile(`\bshow (me )?(all |the |all the |my |your )?(files|documents|docs)\b`),
	regexp.MustCompile(`\b(whats|what is|what have you) indexed\b`),
	regexp.MustCompile(`\b(documents|files) (loaded|indexed)\b`),
}

// InventoryRule matches requests to list the stored files.
type InventoryRule struct{}

func (InventoryRule) Name() string { return RuleInventory }

func (InventoryRule) Match(query string, _ []string, _ []Turn) (Intent, bool) {
	text := normalizeName(query)
	for _, p := range inventoryPatterns {
		if p.MatchString(text) {
			return Intent{Kind: IntentInventory}, true
		}
	}
	return Intent{}, false
}

// FilenameRule matches queries that name one or more known files by full
// name, stem, acronym, configured alias, contract type or quoted span.
type FilenameRule struct {
	aliases map[string]string
}

func (r *FilenameRule) Name() string { return RuleFilename }

func (r *FilenameRule) Match(query string, known []string, _ []Turn) (Intent, bool) {
	names, ambiguous := r.resolve(query, known)
	if len(names) == 0 {
		return Intent{}, false
	}
	return Intent{Kind: IntentTargetedFile, FileNames: names, Ambiguous: ambiguous}, true
}

type nameMatch struct {
	name       string
	start, end int
}

// resolve returns the sorted file names referenced by query. The query is
// matched both with and without its camel case split, so the spelling of a
// name's capitals does not matter.
func (r *FilenameRule) resolve(query string, known []string) ([]string, bool) {
	if len(known) == 0 {
		return nil, false
	}
	split, ambiguous := r.resolveIn(normalizeName(query), query, known, normalizeName)
	folded := foldName(query)
	if folded == normalizeName(query) {
		return split, ambiguous
	}
	more, moreAmbiguous := r.resolveIn(folded, query, known, foldName)
	if len(more) == 0 {
		return split, ambiguous
	}
	return sortedUnique(append(split, more...)), ambiguous || moreAmbiguous
}

// resolveIn matches known names against text, a normalized form of query
// produced by norm. A file whose matched text lies strictly inside a longer
// match of another file is dropped, so "NDA_Template" does not also select
// "NDA.pdf".
func (r *FilenameRule) resolveIn(text, query string, known []string, norm func(string) string) ([]string, bool) {
	var matches []nameMatch
	add := func(name string, start, end int) {
		matches = append(matches, nameMatch{name: name, start: start, end: end})
	}

	for _, name := range known {
		for _, form := range nameForms(name) {
			if s, e := phraseIndex(text, form); s >= 0 {
				add(name, s, e)
			}
		}
	}

	for alias, target := range r.aliases {
		s, e := phraseIndex(text, alias)
		if s < 0 {
			continue
		}
		for _, name := range known {
			if strings.EqualFold(name, target) || normalizeName(fileStem(name)) == normalizeName(fileStem(target)) {
				add(name, s, e)
			}
		}
	}

	for _, phrases := range contractTypes {
		s, e := -1, -1
		for _, p := range phrases {
			if s, e = phraseIndex(text, p); s >= 0 {
				break
			}
		}
		if s < 0 {
			continue
		}
		for _, name := range known {
			stem := normalizeName(fileStem(name))
			for _, p := range phrases {
				if ps, _ := phraseIndex(stem, p); ps >= 0 {
					add(name, s, e)
					break
				}
			}
		}
	}

	for _, span := range quotedSpans(query) {
		q := norm(span)
		s, e := phraseIndex(text, q)
		if s < 0 {
			continue
		}
		for _, name := range known {
			if ps, _ := phraseIndex(norm(name), q); ps >= 0 {
				add(name, s, e)
			}
		}
	}

	if len(matches) == 0 {
		return nil, false
	}

	kept := make(map[string]struct{})
	spans := make(map[[2]int]map[string]struct{})
	for _, m := range matches {
		shadowed := false
		for _, o := range matches {
			if o.name != m.name && o.start <= m.start && o.end >= m.end && o.end-o.start > m.end-m.start {
				shadowed = true
				break
			}
		}
		if shadowed {
			continue
		}
		kept[m.name] = struct{}{}
		key := [2]int{m.start, m.end}
		if spans[key] == nil {
			spans[key] = make(map[string]struct{})
		}
		spans[key][m.name] = struct{}{}
	}

	ambiguous := false
	for _, names := range spans {
		if len(names) > 1 {
			ambiguous = true
		}
	}
	names := make([]string, 0, len(kept))
	for n := range kept {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, ambiguous
}

var followUpPattern = regexp.MustCompile(`\b(this|that|the same|said|the above) (document|doc|file|contract|agreement|pdf)\b`)

// FollowUpRule resolves references such as "this document" to the files
// named in the most recent user turn that named any.
type FollowUpRule struct {
	names    *FilenameRule
	lookback int
}

func (r *FollowUpRule) Name() string { return RuleFollowUp }

func (r *FollowUpRule) Match(query string, known []string, history []Turn) (Intent, bool) {
	if !followUpPattern.MatchString(normalizeName(query)) {
		return Intent{}, false
	}
	for i, seen := len(history)-1, 0; i >= 0 && seen < r.lookback; i, seen = i-1, seen+1 {
		if history[i].Role != llm.RoleUser {
			continue
		}
		names, ambiguous := r.names.resolve(history[i].Content, known)
		if len(names) > 0 {
			return Intent{Kind: IntentTargetedFile, FileNames: names, Ambiguous: ambiguous}, true
		}
	}
	return Intent{}, false
}
