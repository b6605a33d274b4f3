package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryUniqueVersions_ReturnsRawStoredNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.resolveIds(ctx, "react", "")
	require.NoError(t, err)
	_, _, err = s.resolveIds(ctx, "react", "18.2.0")
	require.NoError(t, err)

	versions, err := s.QueryUniqueVersions(ctx, "react")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"", "18.2.0"}, versions)
}

func TestQueryLibraryVersions_SortsUnversionedFirstThenBySemver(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"2.0.0", "", "10.0.0", "1.5.0"} {
		_, _, err := s.resolveIds(ctx, "react", v)
		require.NoError(t, err)
	}

	byLibrary, err := s.QueryLibraryVersions(ctx)
	require.NoError(t, err)

	rows := byLibrary["react"]
	require.Len(t, rows, 4)

	var order []string
	for _, r := range rows {
		order = append(order, r.Version)
	}
	assert.Equal(t, []string{"", "1.5.0", "2.0.0", "10.0.0"}, order)
}

func TestCompareVersions_FallsBackToLexicographicOnParseFailure(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.0.0", "1.0.0"))
	assert.Less(t, compareVersions("1.2.0", "1.10.0"), 0)
	assert.Less(t, compareVersions("alpha", "beta"), 0)
}

func TestGetVersionsByStatus_IncludesLibraryName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "react", "18")
	require.NoError(t, err)
	require.NoError(t, s.UpdateVersionStatus(ctx, versionID, StatusRunning, ""))

	versions, err := s.GetVersionsByStatus(ctx, []VersionStatus{StatusRunning})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "react", versions[0].LibraryName)
	assert.Equal(t, StatusRunning, versions[0].Status)
}

func TestFindVersionsBySourceUrl_MatchesStoredURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.resolveIds(ctx, "react", "18")
	require.NoError(t, err)
	require.NoError(t, s.StoreScraperOptions(ctx, versionID, "https://react.dev/docs", nil))

	versions, err := s.FindVersionsBySourceUrl(ctx, "https://react.dev/docs")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, versionID, versions[0].ID)
}
