package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRrfFuse_CombinesRanksAcrossEngines(t *testing.T) {
	bm25 := []rrfCandidate{
		{DocID: "1", Rank: 1, Score: 5},
		{DocID: "2", Rank: 2, Score: 3},
	}
	vec := []rrfCandidate{
		{DocID: "2", Rank: 1, Score: 0.9},
		{DocID: "3", Rank: 2, Score: 0.5},
	}

	fused := rrfFuse(bm25, vec, 60)
	require.Len(t, fused, 3)

	// doc 2 appears in both lists (rank 2 BM25, rank 1 vector) and should
	// out-rank documents present in only one list.
	assert.Equal(t, "2", fused[0].DocID)
	assert.True(t, fused[0].InBothLists)
}

func TestRrfFuse_TieBreaksByIDWhenEverythingElseMatches(t *testing.T) {
	// "a" and "b" are identically ranked and scored in both lists, so the
	// only remaining tie-break is lexicographic ID.
	bm25 := []rrfCandidate{{DocID: "b", Rank: 1, Score: 5}, {DocID: "a", Rank: 1, Score: 5}}
	vec := []rrfCandidate{{DocID: "b", Rank: 1, Score: 5}, {DocID: "a", Rank: 1, Score: 5}}

	fused := rrfFuse(bm25, vec, 60)
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].RRFScore, fused[1].RRFScore, 1e-9)
	assert.Equal(t, "a", fused[0].DocID)
}

// A rank-1 single-engine hit scores the raw, unweighted RRF sum
// 1/(k+rank) = 1/61 with k=60, not normalized to 1.0.
func TestRrfFuse_ScoreIsRawUnweightedSum(t *testing.T) {
	bm25 := []rrfCandidate{{DocID: "1", Rank: 1, Score: 1}}
	fused := rrfFuse(bm25, nil, 60)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61.0, fused[0].RRFScore, 1e-9)
}

// A document matched by both engines at rank 1 strictly outranks one
// matched by only a single engine at rank 1.
func TestRrfFuse_BothEnginesOutranksSingleEngine(t *testing.T) {
	bm25 := []rrfCandidate{{DocID: "both", Rank: 1, Score: 1}, {DocID: "bm25-only", Rank: 2, Score: 0.5}}
	vec := []rrfCandidate{{DocID: "both", Rank: 1, Score: 1}}

	fused := rrfFuse(bm25, vec, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "both", fused[0].DocID)
	assert.InDelta(t, 2.0/61.0, fused[0].RRFScore, 1e-9)
	assert.InDelta(t, 1.0/62.0, fused[1].RRFScore, 1e-9)
}

func TestRrfFuse_EmptyInputsProduceNoHits(t *testing.T) {
	assert.Empty(t, rrfFuse(nil, nil, 60))
}
