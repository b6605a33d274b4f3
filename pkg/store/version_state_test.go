package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateVersionStatus_PersistsStatusAndError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateVersionStatus(ctx, versionID, StatusFailed, "scrape timed out"))

	var status, errMsg string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT status, error_message FROM versions WHERE id = ?`, versionID).
		Scan(&status, &errMsg))
	assert.Equal(t, string(StatusFailed), status)
	assert.Equal(t, "scrape timed out", errMsg)
}

func TestUpdateVersionProgress_PersistsCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateVersionProgress(ctx, versionID, 5, 20))

	var pages, maxPages int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT progress_pages, progress_max_pages FROM versions WHERE id = ?`, versionID).
		Scan(&pages, &maxPages))
	assert.Equal(t, 5, pages)
	assert.Equal(t, 20, maxPages)
}

func TestStoreAndGetScraperOptions_StripsRuntimeOnlyFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)

	options := map[string]any{
		"maxPages": float64(50),
		"signal":   "runtime-token",
		"library":  "lib",
		"version":  "1",
		"url":      "https://example.com",
	}
	require.NoError(t, s.StoreScraperOptions(ctx, versionID, "https://example.com", options))

	record, err := s.GetScraperOptions(ctx, versionID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "https://example.com", record.SourceURL)
	assert.Contains(t, record.Options, "maxPages")
	assert.NotContains(t, record.Options, "signal")
	assert.NotContains(t, record.Options, "runtime-token")
}

func TestGetScraperOptions_NilWhenNoSourceURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)

	record, err := s.GetScraperOptions(ctx, versionID)
	require.NoError(t, err)
	assert.Nil(t, record)
}

// Removing the only version of a library cascades to the library row
// when removeLibraryIfEmpty is set.
func TestRemoveVersion_CascadesToEmptyLibrary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	libraryID, versionID, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)
	require.NoError(t, s.AddDocuments(ctx, "lib", "1", sampleDocs("https://example.com/a", 2)))

	summary, err := s.RemoveVersion(ctx, libraryID, versionID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentsDeleted)
	assert.True(t, summary.VersionDeleted)
	assert.True(t, summary.LibraryDeleted)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM libraries WHERE id = ?`, libraryID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRemoveVersion_KeepsLibraryWhenOtherVersionsRemain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	libraryID, versionID1, err := s.resolveIds(ctx, "lib", "1")
	require.NoError(t, err)
	_, _, err = s.resolveIds(ctx, "lib", "2")
	require.NoError(t, err)

	summary, err := s.RemoveVersion(ctx, libraryID, versionID1, true)
	require.NoError(t, err)
	assert.False(t, summary.LibraryDeleted)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM libraries WHERE id = ?`, libraryID).Scan(&count))
	assert.Equal(t, 1, count)
}
