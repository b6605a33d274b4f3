package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Search results for one (library, version) never include a document
// from another scope, even when both contain near-identical content.
func TestFindByContent_ScopesResultsToLibraryAndVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "react", "17", []DocumentInput{
		{URL: "https://react.dev/a", Title: "Hooks", Content: "useState hook basics"},
	}))
	require.NoError(t, s.AddDocuments(ctx, "react", "18", []DocumentInput{
		{URL: "https://react.dev/b", Title: "Hooks", Content: "useState hook basics"},
	}))

	results, err := s.FindByContent(ctx, "react", "17", "useState hook basics", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://react.dev/a", results[0].Document.URL)
}

func TestFindByContent_ReturnsRankedHybridResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "", []DocumentInput{
		{URL: "https://example.com/a", Title: "Routing", Content: "configure client side routing"},
		{URL: "https://example.com/b", Title: "Styling", Content: "apply css modules for styling"},
	}))

	results, err := s.FindByContent(ctx, "lib", "", "routing", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://example.com/a", results[0].Document.URL)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestFtsMatchQuery_NeutralizesReservedSyntax(t *testing.T) {
	assert.Equal(t, `"foo OR bar"`, ftsMatchQuery("foo OR bar"))
	assert.Equal(t, "", ftsMatchQuery("   "))
}
