package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docindex/docindex/internal/errors"
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

func seedVersions(t *testing.T, s *store.Store, library string, versions ...string) {
	t.Helper()
	ctx := context.Background()
	for _, v := range versions {
		_, _, err := s.ResolveIds(ctx, library, v)
		require.NoError(t, err)
	}
}

// Version selection against ["1.0.0","1.1.0","2.0.0"] plus unversioned.
func TestFindBestVersion_SeedScenario(t *testing.T) {
	s := newTestStore(t)
	seedVersions(t, s, "lib", "1.0.0", "1.1.0", "2.0.0", "")
	c := New(s)
	ctx := context.Background()

	best, hasUnversioned, err := c.FindBestVersion(ctx, "lib", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "1.0.0", *best)
	assert.True(t, hasUnversioned)

	best, hasUnversioned, err = c.FindBestVersion(ctx, "lib", "3.0.0")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "2.0.0", *best)
	assert.True(t, hasUnversioned)

	best, hasUnversioned, err = c.FindBestVersion(ctx, "lib", "1.x")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "1.1.0", *best)
	assert.True(t, hasUnversioned)
}

func TestFindBestVersion_NoSemverFallsBackToUnversioned(t *testing.T) {
	s := newTestStore(t)
	seedVersions(t, s, "lib", "")
	c := New(s)

	best, hasUnversioned, err := c.FindBestVersion(context.Background(), "lib", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, best)
	assert.True(t, hasUnversioned)
}

func TestFindBestVersion_NoVersionsAtAllErrors(t *testing.T) {
	s := newTestStore(t)
	c := New(s)

	_, _, err := c.FindBestVersion(context.Background(), "ghost-lib", "1.0.0")
	require.Error(t, err)
	var notFound *errors.VersionNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFindBestVersion_LatestPicksMax(t *testing.T) {
	s := newTestStore(t)
	seedVersions(t, s, "lib", "1.0.0", "1.1.0", "2.0.0")
	c := New(s)

	best, _, err := c.FindBestVersion(context.Background(), "lib", "latest")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "2.0.0", *best)

	best, _, err = c.FindBestVersion(context.Background(), "lib", "")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, "2.0.0", *best)
}

func TestValidateLibraryExists_SuggestsClosestNames(t *testing.T) {
	s := newTestStore(t)
	seedVersions(t, s, "react", "18.2.0")
	c := New(s)

	err := c.ValidateLibraryExists(context.Background(), "react")
	require.NoError(t, err)

	err = c.ValidateLibraryExists(context.Background(), "reacct")
	require.Error(t, err)
	var notFound *errors.LibraryNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Suggestions, "react")
}

func TestListLibraries_SortedByName(t *testing.T) {
	s := newTestStore(t)
	seedVersions(t, s, "vue", "3.0.0")
	seedVersions(t, s, "angular", "17.0.0")
	c := New(s)

	libs, err := c.ListLibraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 2)
	assert.Equal(t, "angular", libs[0].Name)
	assert.Equal(t, "vue", libs[1].Name)
}
