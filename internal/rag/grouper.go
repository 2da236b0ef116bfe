package rag

import (
	"sort"
)

const (
	// corroborationBonus is added to a document score per supporting hit
	// beyond the first, for at most maxCorroboratingHits hits.
	corroborationBonus   = 0.02
	maxCorroboratingHits = 2
	// DefaultDiversityLambda weighs relevance against redundancy in snippet selection.
	DefaultDiversityLambda = 0.7
)

// GroupOptions tunes grouping and snippet selection.
type GroupOptions struct {
	// Query is used to pick and highlight snippet excerpts.
	Query string
	// DiversityLambda is the relevance weight in [0, 1]; 1 disables diversification.
	DiversityLambda float64
	// MinHitScore drops hits scoring below it. Zero keeps every hit.
	MinHitScore float64
	// MinDocScore drops groups scoring below it. Zero keeps every group.
	MinDocScore float64
}

// Group aggregates hits by file, ranks files by doc score and picks up to
// maxSnippets diverse snippets per file.
func Group(hits []Hit, topKGroups, maxSnippets int, opts GroupOptions) ([]DocumentGroup, error) {
	if topKGroups < 1 {
		return nil, invalidArgument("top_k_groups", "must be at least 1")
	}
	if maxSnippets < 1 {
		return nil, invalidArgument("max_snippets_per_group", "must be at least 1")
	}
	lambda := opts.DiversityLambda
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultDiversityLambda
	}

	type bucket struct {
		group     DocumentGroup
		hits      []Hit
		firstRank int
	}
	buckets := make(map[string]*bucket)
	var order []string
	seen := make(map[string]struct{}, len(hits))
	for i, h := range hits {
		if opts.MinHitScore != 0 && h.Score < opts.MinHitScore {
			continue
		}
		if _, dup := seen[h.Chunk.ChunkID]; dup {
			continue
		}
		seen[h.Chunk.ChunkID] = struct{}{}

		rank := h.Rank
		if rank == 0 {
			rank = i + 1
		}
		b, ok := buckets[h.Chunk.FileID]
		if !ok {
			b = &bucket{
				group:     DocumentGroup{FileID: h.Chunk.FileID, FileName: h.Chunk.FileName},
				firstRank: rank,
			}
			buckets[h.Chunk.FileID] = b
			order = append(order, h.Chunk.FileID)
		}
		b.hits = append(b.hits, h)
		b.firstRank = min(b.firstRank, rank)
	}

	terms := queryTerms(opts.Query)
	groups := make([]*bucket, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		b.group.HitCount = len(b.hits)
		b.group.MaxScore = maxScore(b.hits)
		b.group.DocScore = docScore(b.hits)
		if opts.MinDocScore != 0 && b.group.DocScore < opts.MinDocScore {
			continue
		}
		groups = append(groups, b)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.group.DocScore != b.group.DocScore {
			return a.group.DocScore > b.group.DocScore
		}
		if a.group.HitCount != b.group.HitCount {
			return a.group.HitCount > b.group.HitCount
		}
		if a.firstRank != b.firstRank {
			return a.firstRank < b.firstRank
		}
		return a.group.FileID < b.group.FileID
	})
	if len(groups) > topKGroups {
		groups = groups[:topKGroups]
	}

	out := make([]DocumentGroup, len(groups))
	for i, b := range groups {
		g := b.group
		for _, h := range selectDiverse(b.hits, maxSnippets, lambda) {
			g.Snippets = append(g.Snippets, Snippet{
				Hit:        h,
				Excerpt:    buildExcerpt(h.Chunk.Text, terms),
				ClauseType: detectClauseType(h.Chunk.Text),
			})
		}
		out[i] = g
	}
	return out, nil
}

// docScore is the best hit score plus a bounded bonus per corroborating hit.
// It never decreases when a hit is added.
func docScore(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	extra := min(len(hits)-1, maxCorroboratingHits)
	return maxScore(hits) + float64(extra)*corroborationBonus
}

func maxScore(hits []Hit) float64 {
	best := hits[0].Score
	for _, h := range hits[1:] {
		best = max(best, h.Score)
	}
	return best
}

// selectDiverse picks up to n hits by maximal marginal relevance. Redundancy
// between two hits is 1 when their positions are adjacent and their word
// overlap otherwise, so neighbouring chunks only come back together when
// nothing else is left.
func selectDiverse(hits []Hit, n int, lambda float64) []Hit {
	candidates := make([]Hit, len(hits))
	copy(candidates, hits)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Rank < candidates[j].Rank
	})

	wordSets := make([]map[string]struct{}, len(candidates))
	for i, c := range candidates {
		wordSets[i] = wordSet(c.Chunk.Text)
	}

	selected := []int{0}
	used := make([]bool, len(candidates))
	used[0] = true
	for len(selected) < n && len(selected) < len(candidates) {
		best, bestValue := -1, 0.0
		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range selected {
				redundancy = max(redundancy, similarity(candidates[i], candidates[j], wordSets[i], wordSets[j]))
			}
			value := lambda*candidates[i].Score - (1-lambda)*redundancy
			if best == -1 || value > bestValue {
				best, bestValue = i, value
			}
		}
		used[best] = true
		selected = append(selected, best)
	}

	out := make([]Hit, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

func similarity(a, b Hit, wa, wb map[string]struct{}) float64 {
	d := a.Chunk.Position - b.Chunk.Position
	if d >= -1 && d <= 1 {
		return 1
	}
	return jaccard(wa, wb)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range filterStopwords(tokenize(text)) {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
