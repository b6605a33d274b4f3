package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docindex/docindex/pkg/embedding"
	"github.com/docindex/docindex/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = ""
	s, err := store.Open(cfg, embedding.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Ingest two pages with three chunks each and confirm a search for
// "hooks" surfaces a hit whose content mentions it, scores descending.
func TestSearch_IngestAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page1 := []store.DocumentInput{
		{URL: "https://react.dev/learn", Title: "Learn React", Content: "React hooks let you use state in function components.", Path: []string{"Learn"}, Level: 1},
		{URL: "https://react.dev/learn", Title: "Learn React", Content: "useState is the most common hook.", Path: []string{"Learn", "Hooks"}, Level: 2},
		{URL: "https://react.dev/learn", Title: "Learn React", Content: "useEffect runs side effects after render.", Path: []string{"Learn", "Hooks"}, Level: 2},
	}
	page2 := []store.DocumentInput{
		{URL: "https://react.dev/reference/suspense", Title: "Suspense", Content: "Suspense lets components wait for data before rendering.", Path: []string{"Reference"}, Level: 1},
		{URL: "https://react.dev/reference/suspense", Title: "Suspense", Content: "Wrap a lazy component in Suspense boundaries.", Path: []string{"Reference", "Suspense"}, Level: 2},
		{URL: "https://react.dev/reference/suspense", Title: "Suspense", Content: "Fallback UI is shown while the boundary is pending.", Path: []string{"Reference", "Suspense"}, Level: 2},
	}

	require.NoError(t, s.AddDocuments(ctx, "react", "18.2.0", page1))
	require.NoError(t, s.AddDocuments(ctx, "react", "18.2.0", page2))

	r := New(s)
	results, err := r.Search(ctx, "react", "18.2.0", "hooks", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Contains(t, results[0].Content, "hook")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

// One representative excerpt per URL: a query matching several chunks on
// the same page still returns a single result for that URL.
func TestSearch_OneResultPerURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []store.DocumentInput{
		{URL: "https://example.com/docs", Title: "Docs", Content: "widgets are configurable components.", Path: []string{"Docs"}, Level: 1},
		{URL: "https://example.com/docs", Title: "Docs", Content: "widgets support themes and sizes.", Path: []string{"Docs", "Widgets"}, Level: 2},
	}
	require.NoError(t, s.AddDocuments(ctx, "widgetlib", "", docs))

	r := New(s)
	results, err := r.Search(ctx, "widgetlib", "", "widgets", 5)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, res := range results {
		assert.False(t, seen[res.URL], "duplicate URL in results: %s", res.URL)
		seen[res.URL] = true
	}
}

// expand stitches the hit together with its preceding sibling (the heading
// chunk, which shares its path) and following sibling paragraph, in
// document order, not retrieval order.
func TestSearch_ExpandsWithHierarchy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []store.DocumentInput{
		{URL: "https://example.com/guide", Title: "Guide", Content: "Configuration", Path: []string{"Configuration"}, Level: 1},
		{URL: "https://example.com/guide", Title: "Guide", Content: "Set the timeout option to control request duration.", Path: []string{"Configuration"}, Level: 1},
		{URL: "https://example.com/guide", Title: "Guide", Content: "Set the retries option to control retry attempts.", Path: []string{"Configuration"}, Level: 1},
	}
	require.NoError(t, s.AddDocuments(ctx, "configlib", "", docs))

	r := New(s)
	results, err := r.Search(ctx, "configlib", "", "timeout", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Contains(t, results[0].Content, "Configuration")
	assert.Contains(t, results[0].Content, "timeout")
}
