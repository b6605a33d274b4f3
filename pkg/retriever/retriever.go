// Package retriever is a thin wrapper over the document store's hybrid
// search that rehydrates each hit into a coherent excerpt before handing
// results back to a caller such as a search tool.
package retriever

import (
	"context"
	"sort"

	"github.com/docindex/docindex/pkg/store"
)

// Result is one retrieved excerpt: a full page URL, its rehydrated text,
// and the RRF score of the representative chunk that anchored it.
type Result struct {
	URL     string
	Content string
	Score   float64
}

// Retriever expands raw hybrid-search hits with surrounding context and
// collapses them to one representative excerpt per URL.
type Retriever struct {
	store *store.Store
}

// New returns a Retriever over store.
func New(s *store.Store) *Retriever {
	return &Retriever{store: s}
}

// Search runs a hybrid search and returns at most limit excerpts, one per
// URL, each expanded with its parent, preceding/subsequent siblings, and
// children to read as a self-contained passage. Results are ordered by the
// representative chunk's RRF score, descending.
func (r *Retriever) Search(ctx context.Context, library, version, query string, limit int) ([]Result, error) {
	hits, err := r.store.FindByContent(ctx, library, version, query, limit)
	if err != nil {
		return nil, err
	}

	best := make(map[string]store.SearchResult, len(hits))
	for _, h := range hits {
		cur, ok := best[h.Document.URL]
		if !ok || h.Score > cur.Score {
			best[h.Document.URL] = h
		}
	}

	results := make([]Result, 0, len(best))
	for url, hit := range best {
		content, err := r.expand(ctx, library, version, hit.Document)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{URL: url, Content: content, Score: hit.Score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// expand rehydrates doc's excerpt with its parent, preceding/subsequent
// siblings, and children, deduplicated by chunk id and stitched back into
// document order.
func (r *Retriever) expand(ctx context.Context, library, version string, doc store.Document) (string, error) {
	seen := map[int64]store.Document{doc.ID: doc}

	if parent, err := r.store.FindParentChunk(ctx, library, version, doc.ID); err == nil && parent != nil {
		seen[parent.ID] = *parent
	}
	if prev, err := r.store.FindPrecedingSiblings(ctx, library, version, doc.ID, 1); err == nil {
		for _, d := range prev {
			seen[d.ID] = d
		}
	}
	if next, err := r.store.FindSubsequentSiblings(ctx, library, version, doc.ID, 1); err == nil {
		for _, d := range next {
			seen[d.ID] = d
		}
	}
	if children, err := r.store.FindChildChunks(ctx, library, version, doc.ID, 5); err == nil {
		for _, d := range children {
			seen[d.ID] = d
		}
	}

	ordered := make([]store.Document, 0, len(seen))
	for _, d := range seen {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })

	content := ""
	for i, d := range ordered {
		if i > 0 {
			content += "\n\n"
		}
		content += d.Content
	}
	return content, nil
}
