package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentSplitter_Markdown_HeaderHierarchy(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	text := "# Guide\n\nIntro paragraph.\n\n## Installation\n\nRun the installer.\n\n### macOS\n\nUse brew.\n"
	chunks, err := s.Split(text, "text/markdown")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var macos *ContentChunk
	for i := range chunks {
		if strings.Contains(chunks[i].Content, "brew") {
			macos = &chunks[i]
		}
	}
	require.NotNil(t, macos)
	assert.Equal(t, 3, macos.Section.Level)
	assert.Equal(t, []string{"Guide", "Installation", "macOS"}, macos.Section.Path)
}

func TestDocumentSplitter_Markdown_Frontmatter(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	text := "---\ntitle: Hello\n---\n\n# Hello\n\nBody text.\n"
	chunks, err := s.Split(text, "text/markdown")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, chunks[0].Content, "title: Hello")
	assert.Equal(t, 0, chunks[0].Section.Level)
}

func TestDocumentSplitter_Markdown_RespectsMaxSize(t *testing.T) {
	s := NewDocumentSplitter(SplitOptions{PreferredChunkChars: 100, MaxChunkChars: 150, MinChunkChars: 20})
	defer s.Close()

	var sb strings.Builder
	sb.WriteString("# Big Section\n\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("This is a paragraph with some content to pad things out.\n\n")
	}
	chunks, err := s.Split(sb.String(), "text/markdown")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 150)
	}
}

func TestDocumentSplitter_Markdown_CoalescesSmallChunks(t *testing.T) {
	s := NewDocumentSplitter(SplitOptions{PreferredChunkChars: 500, MaxChunkChars: 800, MinChunkChars: 200})
	defer s.Close()

	text := "# A\n\nshort\n\n# B\n\nshort too\n"
	chunks, err := s.Split(text, "text/markdown")
	require.NoError(t, err)
	// Both sections are below MinChunkChars and together fit Preferred, so they coalesce.
	assert.Len(t, chunks, 1)
}

func TestDocumentSplitter_Code_OneChunkPerSymbol(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	src := "package main\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n\nfunc Sub(a, b int) int {\n\treturn a - b\n}\n"
	chunks, err := s.Split(src, "text/x-go")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"Add"}, chunks[0].Section.Path)
	assert.Equal(t, []string{"Sub"}, chunks[1].Section.Path)
}

func TestDocumentSplitter_UnknownMimeFallsBackToParagraphs(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	chunks, err := s.Split("some content\nin an unknown format\n", "application/x-nonsense")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestDocumentSplitter_PlainText_Paragraphs(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	chunks, err := s.Split("First paragraph.\n\nSecond paragraph.\n", "text/plain")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestDocumentSplitter_Empty(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	chunks, err := s.Split("   \n\t\n", "text/markdown")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocumentSplitter_Deterministic(t *testing.T) {
	s := NewDocumentSplitter(DefaultSplitOptions())
	defer s.Close()

	text := "# Title\n\nSome body content here.\n\n## Sub\n\nMore content.\n"
	a, err := s.Split(text, "text/markdown")
	require.NoError(t, err)
	b, err := s.Split(text, "text/markdown")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
