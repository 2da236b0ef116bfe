package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// TokenStats summarizes chunk sizes across the store.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// CorpusStats describes the current contents of the store.
type CorpusStats struct {
	Documents       int        `json:"documents"`
	EmptyDocuments  int        `json:"empty_documents"`
	Chunks          int        `json:"chunks"`
	ChunkTokenStats TokenStats `json:"chunk_token_stats"`
	// VectorPoints is the point count of the vector index. It differs from
	// Chunks when a write to one of the two stores failed.
	VectorPoints int `json:"vector_points"`
}

// Stats computes corpus statistics from the database.
func (r *ChunkRepo) Stats(ctx context.Context) (*CorpusStats, error) {
	stats := &CorpusStats{}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE id NOT IN (SELECT DISTINCT file_id FROM chunks)",
	).Scan(&stats.EmptyDocuments); err != nil {
		return nil, fmt.Errorf("failed to count empty documents: %w", err)
	}

	counts, err := r.TokenCounts(ctx)
	if err != nil {
		return nil, err
	}
	stats.Chunks = len(counts)
	stats.ChunkTokenStats = computeTokenStats(counts)
	return stats, nil
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) TokenStats {
	if len(tokenCounts) == 0 {
		return TokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
