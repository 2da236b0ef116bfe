package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/corpus"
)

func hit(fileID string, position int, score float64, text string) Hit {
	return Hit{
		Chunk: corpus.Chunk{
			ChunkID:  fmt.Sprintf("%s-%d", fileID, position),
			FileID:   fileID,
			FileName: fileID + ".pdf",
			Position: position,
			Text:     text,
		},
		Score: score,
	}
}

func ranked(hits ...Hit) []Hit {
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}

func TestGroupValidation(t *testing.T) {
	_, err := Group(nil, 0, 3, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Group(nil, 3, 0, GroupOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	groups, err := Group(nil, 3, 3, GroupOptions{})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestGroupRanksDocumentsAndCapsSnippets(t *testing.T) {
	hits := ranked(
		hit("nda", 0, 0.9, "confidential information is protected"),
		hit("msa", 3, 0.85, "payment terms"),
		hit("nda", 5, 0.8, "return of materials on termination"),
		hit("nda", 9, 0.7, "remedies include injunctive relief"),
		hit("nda", 12, 0.6, "governing law is Delaware"),
		hit("sow", 1, 0.5, "deliverables schedule"),
	)

	groups, err := Group(hits, 2, 2, GroupOptions{})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "nda", groups[0].FileID)
	assert.Equal(t, 4, groups[0].HitCount)
	assert.InDelta(t, 0.9+2*corroborationBonus, groups[0].DocScore, 1e-9)
	assert.Len(t, groups[0].Snippets, 2)
	assert.Equal(t, "msa", groups[1].FileID)
	assert.InDelta(t, 0.85, groups[1].DocScore, 1e-9)

	for _, g := range groups {
		assert.LessOrEqual(t, len(g.Snippets), 2)
		for _, s := range g.Snippets {
			assert.Equal(t, g.FileID, s.Hit.Chunk.FileID)
		}
	}
}

func TestGroupDocScoreIsMonotonic(t *testing.T) {
	base := []Hit{hit("a", 0, 0.5, "x"), hit("a", 4, 0.4, "y")}
	before := docScore(base)

	for _, extra := range []Hit{hit("a", 8, 0.1, "z"), hit("a", 9, 0.9, "w"), hit("a", 20, 0.5, "v")} {
		after := docScore(append(append([]Hit{}, base...), extra))
		assert.GreaterOrEqual(t, after, before, "adding hit with score %f", extra.Score)
	}
}

func TestGroupTieBreaksDeterministically(t *testing.T) {
	hits := ranked(
		hit("b", 0, 0.5, "alpha"),
		hit("a", 0, 0.5, "beta"),
		hit("c", 0, 0.5, "gamma"),
		hit("c", 5, 0.4, "delta"),
	)
	groups, err := Group(hits, 3, 1, GroupOptions{})
	require.NoError(t, err)
	require.Len(t, groups, 3)
	// c has the corroboration bonus; b precedes a by first rank.
	assert.Equal(t, []string{"c", "b", "a"}, []string{groups[0].FileID, groups[1].FileID, groups[2].FileID})
}

func TestGroupDiversifiesAdjacentChunks(t *testing.T) {
	hits := ranked(
		hit("nda", 4, 0.90, "term one of confidentiality obligations"),
		hit("nda", 5, 0.89, "term two of confidentiality obligations continued"),
		hit("nda", 20, 0.80, "exceptions for publicly available information"),
	)
	groups, err := Group(hits, 1, 2, GroupOptions{DiversityLambda: 0.7})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Snippets, 2)
	assert.Equal(t, 4, groups[0].Snippets[0].Hit.Chunk.Position)
	assert.Equal(t, 20, groups[0].Snippets[1].Hit.Chunk.Position)
}

func TestGroupKeepsAdjacentChunksWhenNothingElse(t *testing.T) {
	hits := ranked(
		hit("nda", 4, 0.9, "first part"),
		hit("nda", 5, 0.8, "second part"),
	)
	groups, err := Group(hits, 1, 3, GroupOptions{})
	require.NoError(t, err)
	assert.Len(t, groups[0].Snippets, 2)
}

func TestGroupBuildsExcerpts(t *testing.T) {
	hits := ranked(hit("nda", 0, 0.9, "Intro text. The confidentiality obligations last five years. Closing."))
	groups, err := Group(hits, 1, 1, GroupOptions{Query: "confidentiality obligations"})
	require.NoError(t, err)
	s := groups[0].Snippets[0]
	assert.Contains(t, s.Excerpt, "**confidentiality**")
	assert.Equal(t, "confidentiality", s.ClauseType)
}

func TestGroupThresholds(t *testing.T) {
	hits := ranked(hit("a", 0, 0.9, "x"), hit("b", 0, 0.3, "y"), hit("a", 5, 0.2, "z"))
	groups, err := Group(hits, 5, 5, GroupOptions{MinHitScore: 0.25, MinDocScore: 0.5})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "a", groups[0].FileID)
	assert.Equal(t, 1, groups[0].HitCount)
}

func TestGroupKeepsTopGroupsFromTenHits(t *testing.T) {
	hits := ranked(
		hit("a", 0, 0.91, "a0"),
		hit("b", 0, 0.90, "b0"),
		hit("c", 0, 0.89, "c0"),
		hit("c", 10, 0.88, "c1"),
		hit("c", 20, 0.87, "c2"),
		hit("a", 10, 0.70, "a1"),
		hit("b", 10, 0.60, "b1"),
		hit("b", 20, 0.55, "b2"),
		hit("a", 20, 0.50, "a2"),
		hit("c", 30, 0.40, "c3"),
	)
	for i := 0; i < 3; i++ {
		groups, err := Group(hits, 2, 3, GroupOptions{})
		require.NoError(t, err)
		require.Len(t, groups, 2)
		// c: 0.89+0.04, a: 0.91+0.04, b: 0.90+0.04
		assert.Equal(t, "a", groups[0].FileID)
		assert.Equal(t, "b", groups[1].FileID)
	}
}
