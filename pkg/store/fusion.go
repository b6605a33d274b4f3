package store

import "sort"

// DefaultRRFConstant is k in the unweighted RRF formula.
const DefaultRRFConstant = 60

// rrfCandidate is one document ranked by one retrieval engine.
type rrfCandidate struct {
	DocID string
	Rank  int // 1-indexed
	Score float64
}

// fusedHit is one document after Reciprocal Rank Fusion of the BM25 and
// vector candidate lists.
type fusedHit struct {
	DocID       string
	RRFScore    float64
	BM25Score   float64
	BM25Rank    int
	VecScore    float64
	VecRank     int
	InBothLists bool
}

// rrfFuse combines BM25 and vector candidate lists with unweighted
// Reciprocal Rank Fusion: rrf_score = sum(1/(k+rank_e)) over the engines a
// document appears in.
func rrfFuse(bm25, vec []rrfCandidate, k int) []*fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit)
	order := []string{}

	for _, c := range bm25 {
		h, ok := hits[c.DocID]
		if !ok {
			h = &fusedHit{DocID: c.DocID}
			hits[c.DocID] = h
			order = append(order, c.DocID)
		}
		h.BM25Rank = c.Rank
		h.BM25Score = c.Score
		h.RRFScore += 1.0 / float64(k+c.Rank)
	}

	for _, c := range vec {
		h, ok := hits[c.DocID]
		if !ok {
			h = &fusedHit{DocID: c.DocID}
			hits[c.DocID] = h
			order = append(order, c.DocID)
		}
		h.VecRank = c.Rank
		h.VecScore = c.Score
		h.RRFScore += 1.0 / float64(k+c.Rank)
	}

	for _, id := range order {
		h := hits[id]
		h.InBothLists = h.BM25Rank > 0 && h.VecRank > 0
	}

	result := make([]*fusedHit, 0, len(order))
	for _, id := range order {
		result = append(result, hits[id])
	}

	sort.SliceStable(result, func(i, j int) bool {
		return compareFused(result[i], result[j])
	})

	return result
}

// compareFused orders by RRF score desc, then documents present in both
// lists first, then raw BM25 score desc, then document id for a
// deterministic tie-break.
func compareFused(a, b *fusedHit) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}
	return a.DocID < b.DocID
}
