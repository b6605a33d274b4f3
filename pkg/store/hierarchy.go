package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docindex/docindex/internal/errors"
)

// GetByID returns one document by row id.
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	return s.getByID(ctx, id)
}

// FindChildChunks returns chunks on the same page as the id'd chunk whose
// path is exactly one level deeper and nests under it, ordered by the page's
// natural reading order.
func (s *Store) FindChildChunks(ctx context.Context, library, version string, id int64, limit int) ([]Document, error) {
	ref, err := s.refChunk(ctx, library, version, id)
	if err != nil {
		return nil, err
	}

	docs, err := s.scopeDocuments(ctx, ref.LibraryID, ref.VersionID, ref.URL)
	if err != nil {
		return nil, err
	}

	var children []Document
	for _, d := range docs {
		if d.SortOrder <= ref.SortOrder {
			continue
		}
		if len(d.Path) != len(ref.Path)+1 || !pathHasPrefix(d.Path, ref.Path) {
			continue
		}
		children = append(children, d)
		if limit > 0 && len(children) >= limit {
			break
		}
	}
	return children, nil
}

// FindPrecedingSiblings returns up to limit chunks immediately before the
// id'd chunk with the same path, in document order.
func (s *Store) FindPrecedingSiblings(ctx context.Context, library, version string, id int64, limit int) ([]Document, error) {
	ref, err := s.refChunk(ctx, library, version, id)
	if err != nil {
		return nil, err
	}

	docs, err := s.scopeDocuments(ctx, ref.LibraryID, ref.VersionID, ref.URL)
	if err != nil {
		return nil, err
	}

	var preceding []Document
	for _, d := range docs {
		if d.SortOrder >= ref.SortOrder || !pathEquals(d.Path, ref.Path) {
			continue
		}
		preceding = append(preceding, d)
	}

	// Closest-first (reverse sort_order), capped at limit, then reversed
	// back to document order.
	reverseDocuments(preceding)
	if limit > 0 && len(preceding) > limit {
		preceding = preceding[:limit]
	}
	reverseDocuments(preceding)
	return preceding, nil
}

// FindSubsequentSiblings returns up to limit chunks immediately after the
// id'd chunk with the same path, in document order.
func (s *Store) FindSubsequentSiblings(ctx context.Context, library, version string, id int64, limit int) ([]Document, error) {
	ref, err := s.refChunk(ctx, library, version, id)
	if err != nil {
		return nil, err
	}

	docs, err := s.scopeDocuments(ctx, ref.LibraryID, ref.VersionID, ref.URL)
	if err != nil {
		return nil, err
	}

	var subsequent []Document
	for _, d := range docs {
		if d.SortOrder <= ref.SortOrder || !pathEquals(d.Path, ref.Path) {
			continue
		}
		subsequent = append(subsequent, d)
		if limit > 0 && len(subsequent) >= limit {
			break
		}
	}
	return subsequent, nil
}

// FindParentChunk returns the closest preceding chunk one path level up
// from the id'd chunk, or nil if it has no parent (top-level chunk).
func (s *Store) FindParentChunk(ctx context.Context, library, version string, id int64) (*Document, error) {
	ref, err := s.refChunk(ctx, library, version, id)
	if err != nil {
		return nil, err
	}
	if len(ref.Path) == 0 {
		return nil, nil
	}
	parentPath := ref.Path[:len(ref.Path)-1]

	docs, err := s.scopeDocuments(ctx, ref.LibraryID, ref.VersionID, ref.URL)
	if err != nil {
		return nil, err
	}

	var best *Document
	for i := range docs {
		d := &docs[i]
		if d.SortOrder >= ref.SortOrder || !pathEquals(d.Path, parentPath) {
			continue
		}
		if best == nil || d.SortOrder > best.SortOrder {
			best = d
		}
	}
	return best, nil
}

// FindChunksByIds returns the requested documents ordered by sort_order.
func (s *Store) FindChunksByIds(ctx context.Context, library, version string, ids []int64) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, library_id, version_id, url, content, title, path, level, mime_type, sort_order, indexed_at
		FROM documents WHERE id IN (%s) ORDER BY sort_order`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ConnectionError("failed to query chunks by id", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// refChunk loads the id'd document and verifies it belongs to (library,
// version).
func (s *Store) refChunk(ctx context.Context, library, version string, id int64) (*Document, error) {
	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return nil, err
	}
	doc, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.LibraryID != libraryID || doc.VersionID != versionID {
		return nil, errors.NotFoundError("chunk not found in requested library/version scope", nil)
	}
	return doc, nil
}

// scopeDocuments returns every document on one page, ordered by sort_order.
func (s *Store) scopeDocuments(ctx context.Context, libraryID, versionID int64, url string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, library_id, version_id, url, content, title, path, level, mime_type, sort_order, indexed_at
		FROM documents WHERE library_id = ? AND version_id = ? AND url = ? ORDER BY sort_order`,
		libraryID, versionID, url)
	if err != nil {
		return nil, errors.ConnectionError("failed to query page documents", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var (
			d        Document
			pathJSON string
			indexed  string
		)
		if err := rows.Scan(&d.ID, &d.LibraryID, &d.VersionID, &d.URL, &d.Content, &d.Title, &pathJSON, &d.Level, &d.MimeType, &d.SortOrder, &indexed); err != nil {
			return nil, errors.ConnectionError("failed to scan document", err)
		}
		if err := json.Unmarshal([]byte(pathJSON), &d.Path); err != nil {
			return nil, errors.InternalError("failed to decode chunk path", err)
		}
		d.IndexedAt = parseTimestamp(indexed)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func pathEquals(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pathHasPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func reverseDocuments(docs []Document) {
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
}
