package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs(url string, n int) []DocumentInput {
	docs := make([]DocumentInput, n)
	for i := range docs {
		docs[i] = DocumentInput{
			URL:     url,
			Title:   "Guide",
			Content: "chunk content number",
			Path:    []string{"Guide"},
			Level:   1,
		}
	}
	return docs
}

// addDocuments is idempotent at URL granularity: re-adding the same URL
// replaces its prior chunks rather than appending to them.
func TestAddDocuments_ReplacesExistingURLGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddDocuments(ctx, "react", "18", sampleDocs("https://react.dev/learn", 3))
	require.NoError(t, err)

	err = s.AddDocuments(ctx, "react", "18", sampleDocs("https://react.dev/learn", 1))
	require.NoError(t, err)

	libraryID, versionID, err := s.resolveIds(ctx, "react", "18")
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE library_id = ? AND version_id = ? AND url = ?`,
		libraryID, versionID, "https://react.dev/learn").Scan(&count))
	assert.Equal(t, 1, count)
}

// addDocuments rejects a document missing a url.
func TestAddDocuments_RejectsMissingURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddDocuments(ctx, "react", "18", []DocumentInput{{Content: "no url"}})
	assert.Error(t, err)
}

// A large group is split into BATCH_COUNT-bounded embedding sub-batches
// without losing or reordering any chunk.
func TestAddDocuments_BatchesLargeGroupsAndPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	s.cfg.BatchCount = 2
	ctx := context.Background()

	docs := make([]DocumentInput, 5)
	for i := range docs {
		docs[i] = DocumentInput{
			URL:     "https://example.com/p",
			Title:   "P",
			Content: string(rune('a' + i)),
			Path:    []string{"P"},
		}
	}
	require.NoError(t, s.AddDocuments(ctx, "lib", "", docs))

	libraryID, versionID, err := s.resolveIds(ctx, "lib", "")
	require.NoError(t, err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM documents WHERE library_id = ? AND version_id = ? ORDER BY sort_order`,
		libraryID, versionID)
	require.NoError(t, err)
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		contents = append(contents, c)
	}
	require.Len(t, contents, 5)
	for i, c := range contents {
		assert.Equal(t, string(rune('a'+i)), c)
	}
}

// Embeddings wider than D_store raise a DimensionError rather than silently
// truncating.
func TestAddDocuments_RejectsOversizedEmbedding(t *testing.T) {
	s := newTestStore(t)
	s.cfg.StoreDimensions = 4 // static embedder produces 256 dims, so this always overflows
	ctx := context.Background()

	err := s.AddDocuments(ctx, "lib", "", sampleDocs("https://example.com/p", 1))
	require.Error(t, err)
}

func TestDeleteDocuments_RemovesScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "1", sampleDocs("https://example.com/a", 2)))
	require.NoError(t, s.AddDocuments(ctx, "lib", "1", sampleDocs("https://example.com/b", 1)))

	count, err := s.DeleteDocuments(ctx, "lib", "1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	exists, err := s.CheckDocumentExists(ctx, "lib", "1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddDocument_SplitsPageIntoChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	page := ScrapedPage{
		URL:     "https://example.com/guide",
		Title:   "Guide",
		Content: "# Intro\n\nFirst paragraph.\n\n# Usage\n\nSecond paragraph.",
	}
	require.NoError(t, s.AddDocument(ctx, "lib", "", page))

	libraryID, versionID, err := s.resolveIds(ctx, "lib", "")
	require.NoError(t, err)

	docs, err := s.scopeDocuments(ctx, libraryID, versionID, page.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
	for _, d := range docs {
		assert.Equal(t, page.URL, d.URL)
		assert.Equal(t, page.Title, d.Title)
	}
}

func TestRemoveAllDocuments_EmptiesTheStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "react", "18", sampleDocs("https://react.dev/a", 2)))
	require.NoError(t, s.AddDocuments(ctx, "vue", "3", sampleDocs("https://vuejs.org/b", 1)))

	count, err := s.RemoveAllDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	var libraries int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM libraries`).Scan(&libraries))
	assert.Equal(t, 0, libraries)
}

func TestDeleteDocumentsByURL_RemovesOnlyThatURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddDocuments(ctx, "lib", "", sampleDocs("https://example.com/a", 2)))
	require.NoError(t, s.AddDocuments(ctx, "lib", "", sampleDocs("https://example.com/b", 1)))

	count, err := s.DeleteDocumentsByURL(ctx, "lib", "", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	exists, err := s.CheckDocumentExists(ctx, "lib", "")
	require.NoError(t, err)
	assert.True(t, exists)
}
