package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRRFConstant, cfg.Search.RRFConstant)
	assert.Equal(t, DefaultBatchCount, cfg.Embeddings.BatchCount)
	assert.Equal(t, DefaultBatchChars, cfg.Embeddings.BatchChars)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, cfg.Pipeline.Concurrency)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  rrf_constant: 30\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  rrf_constant: 30\n"), 0o644))

	t.Setenv("DOCINDEX_RRF_CONSTANT", "99")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Search.RRFConstant)
}

func TestResolveStorePath_UsesConfiguredPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/tmp/custom/store.db"
	assert.Equal(t, "/tmp/custom/store.db", ResolveStorePath(cfg))
}

func TestInstallationID_StableAcrossCalls(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.db")
	id1, err := InstallationID(storePath)
	require.NoError(t, err)
	id2, err := InstallationID(storePath)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
