package rag

import (
	"context"
	"fmt"
	"sort"

	"docrag/internal/contextutil"
	"docrag/internal/corpus"
	"docrag/internal/llm"
)

// ChunkIndex is the part of the chunk store the retriever reads from.
type ChunkIndex interface {
	QueryByVector(ctx context.Context, vec []float32, k int, filter corpus.Filter) ([]corpus.ScoredChunk, error)
	QueryByMetadata(ctx context.Context, filter corpus.Filter) ([]corpus.Chunk, error)
}

// RetrieverOptions tunes hybrid search.
type RetrieverOptions struct {
	// Oversample multiplies k to get the vector candidate pool.
	Oversample int
	// MinSimilarity is the similarity floor of the strict pass.
	MinSimilarity float64
}

// Retriever combines vector similarity with a keyword boost.
type Retriever struct {
	embedder llm.Embedder
	index    ChunkIndex
	opts     RetrieverOptions
}

// NewRetriever creates a Retriever. An Oversample below 1 is treated as 1.
func NewRetriever(embedder llm.Embedder, index ChunkIndex, opts RetrieverOptions) *Retriever {
	if opts.Oversample < 1 {
		opts.Oversample = 1
	}
	return &Retriever{embedder: embedder, index: index, opts: opts}
}

// Search returns at most k hits for query ordered by descending blended score.
//
// A nil filter searches every file. A non-nil filter restricts results to
// those file ids, and an empty one yields no hits. Candidates must pass the
// keyword requirement and the similarity floor; when none does, a relaxed
// pass ranks every candidate instead.
func (r *Retriever) Search(ctx context.Context, query string, k int, filter []string) ([]Hit, error) {
	if err := validateSearch(query, k); err != nil {
		return nil, err
	}
	if filter != nil && len(filter) == 0 {
		return []Hit{}, nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrievalUnavailable, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embed query: got %d vectors", ErrRetrievalUnavailable, len(vecs))
	}

	candidates, err := r.index.QueryByVector(ctx, vecs[0], k*r.opts.Oversample, corpus.Filter{FileIDs: filter})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	terms := queryTerms(query)
	all := make([]Hit, len(candidates))
	strict := make([]Hit, 0, len(candidates))
	for i, c := range candidates {
		m := matchKeywords(terms, c.Text, c.FileName)
		boost := m.boost()
		all[i] = Hit{
			Chunk:        c.Chunk,
			Score:        c.Similarity + boost,
			Similarity:   c.Similarity,
			KeywordBoost: boost,
			Boosted:      boost > 0,
			VectorRank:   i + 1,
		}
		if m.satisfiesStrict() && c.Similarity >= r.opts.MinSimilarity {
			strict = append(strict, all[i])
		}
	}

	hits := strict
	if len(hits) == 0 {
		hits = all
		for i := range hits {
			hits[i].Relaxed = true
		}
	}

	rankHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	logger.DebugContext(ctx, "hybrid search",
		"terms", terms,
		"candidates", len(candidates),
		"strict", len(strict),
		"returned", len(hits),
	)
	return hits, nil
}

// KeywordSearch ranks chunks by keyword match alone. It serves as the
// degraded path when the embedding provider is unavailable.
func (r *Retriever) KeywordSearch(ctx context.Context, query string, k int, filter []string) ([]Hit, error) {
	if err := validateSearch(query, k); err != nil {
		return nil, err
	}
	if filter != nil && len(filter) == 0 {
		return []Hit{}, nil
	}

	chunks, err := r.index.QueryByMetadata(ctx, corpus.Filter{FileIDs: filter})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	terms := queryTerms(query)
	hits := make([]Hit, 0)
	for _, c := range chunks {
		m := matchKeywords(terms, c.Text, c.FileName)
		if m.matched == 0 {
			continue
		}
		boost := m.boost()
		hits = append(hits, Hit{
			Chunk:        c,
			Score:        boost,
			KeywordBoost: boost,
			Boosted:      true,
			Relaxed:      !m.satisfiesStrict(),
		})
	}

	// QueryByMetadata orders by file and position, so a stable sort on score
	// keeps ties deterministic.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// rankHits orders hits by blended score, breaking ties by vector rank, and
// assigns final ranks.
func rankHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].VectorRank < hits[j].VectorRank
	})
	for i := range hits {
		hits[i].Rank = i + 1
	}
}

func validateSearch(query string, k int) error {
	if isBlank(query) {
		return invalidArgument("query", "must not be empty")
	}
	if k <= 0 {
		return invalidArgument("k", "must be greater than 0")
	}
	return nil
}
