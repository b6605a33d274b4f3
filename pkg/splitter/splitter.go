package splitter

import (
	"context"
	"strings"
)

// codeLanguageByMime maps the source MIME types the scraper's
// content-processing middleware emits to the tree-sitter grammar name
// registered in languages.go.
var codeLanguageByMime = map[string]string{
	"text/x-go":               "go",
	"application/x-go":        "go",
	"text/typescript":         "typescript",
	"application/typescript":  "typescript",
	"text/tsx":                "tsx",
	"text/jsx":                "jsx",
	"text/javascript":         "javascript",
	"application/javascript":  "javascript",
	"text/x-python":           "python",
	"application/x-python":    "python",
}

const (
	mimeMarkdown = "text/markdown"
	mimePlain    = "text/plain"
)

// DocumentSplitter is the default Splitter implementation: markdown MIME
// types and an empty MIME type are header-sectioned, recognized source-code
// MIME types are AST-chunked one symbol per chunk, and anything else
// (text/plain included) falls back to paragraph-greedy plain-text splitting.
//
// Three size parameters are honored in priority order: Preferred is the
// target chunk size, Max is a hard cap that is never exceeded, and Min
// triggers coalescing adjacent small chunks so long as the result stays at
// or under Preferred. Output preserves input order and is deterministic.
type DocumentSplitter struct {
	opts SplitOptions
	code *codeSplitter
}

// NewDocumentSplitter builds a splitter with the given size options
// (zero-valued fields fall back to the package defaults).
func NewDocumentSplitter(opts SplitOptions) *DocumentSplitter {
	return &DocumentSplitter{
		opts: opts.withDefaults(),
		code: newCodeSplitter(DefaultRegistry()),
	}
}

// Close releases the tree-sitter parser held for code-mime splitting.
func (s *DocumentSplitter) Close() {
	s.code.close()
}

// Split implements Splitter.
func (s *DocumentSplitter) Split(text string, mimeType string) ([]ContentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	switch {
	case mimeType == mimeMarkdown || mimeType == "":
		return markdownSplitter{}.split(text, s.opts), nil
	case mimeType == mimePlain:
		return chunkParagraphs(text, nil, 0, s.opts), nil
	default:
		if lang, ok := codeLanguageByMime[mimeType]; ok {
			return s.code.splitCode(context.Background(), text, lang, s.opts)
		}
		return chunkParagraphs(text, nil, 0, s.opts), nil
	}
}
