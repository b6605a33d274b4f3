package scraper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalFileScraper_WalksMarkdownInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.md"), "# B\nhooks content")
	writeFile(t, filepath.Join(dir, "a.md"), "# A\nsuspense content")
	writeFile(t, filepath.Join(dir, "skip.json"), "{}")

	var docs []*Document
	err := NewLocalFileScraper().Scrape(context.Background(), Options{URL: dir}, func(p Progress) error {
		if p.Document != nil {
			docs = append(docs, p.Document)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "A", docs[0].Metadata.Title)
	require.Equal(t, "B", docs[1].Metadata.Title)
	require.Equal(t, mimeMarkdown, docs[0].ContentType)
}

func TestLocalFileScraper_RespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.md"), "top")
	writeFile(t, filepath.Join(dir, "a", "b", "deep.md"), "deep")

	var docs []*Document
	err := NewLocalFileScraper().Scrape(context.Background(), Options{URL: dir, MaxDepth: 1}, func(p Progress) error {
		if p.Document != nil {
			docs = append(docs, p.Document)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "top", docs[0].Metadata.Title)
}

func TestLocalFileScraper_CancellationStopsEarly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "a")
	writeFile(t, filepath.Join(dir, "b.md"), "b")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewLocalFileScraper().Scrape(ctx, Options{URL: dir}, func(p Progress) error {
		calls++
		cancel()
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestLocalFileScraper_RejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.md")
	writeFile(t, file, "a")

	err := NewLocalFileScraper().Scrape(context.Background(), Options{URL: file}, func(Progress) error { return nil })
	require.Error(t, err)
}
