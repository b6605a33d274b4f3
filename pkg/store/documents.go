package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docindex/docindex/internal/errors"
)

// ScrapedPage is one page the scraper produced: title/content plus the URL
// it was retrieved from, still unsplit into chunks.
type ScrapedPage struct {
	URL      string
	Title    string
	Content  string
	MimeType string
}

// AddDocument is the thin wrapper the Pipeline Worker calls per scraped
// page: split its content into chunks, then store them as one URL group via
// AddDocuments.
func (s *Store) AddDocument(ctx context.Context, library, version string, page ScrapedPage) error {
	chunks, err := s.splitter.Split(page.Content, page.MimeType)
	if err != nil {
		return errors.InternalError("failed to split document", err)
	}

	docs := make([]DocumentInput, len(chunks))
	for i, c := range chunks {
		docs[i] = DocumentInput{
			URL:      page.URL,
			Title:    page.Title,
			Content:  c.Content,
			Path:     c.Section.Path,
			Level:    c.Section.Level,
			MimeType: page.MimeType,
		}
	}
	return s.AddDocuments(ctx, library, version, docs)
}

// AddDocuments stores docs for (library, version), atomically per URL
// group: existing documents for that (library_id, version_id, url) are
// deleted before the new batch is inserted, making the call idempotent at
// URL granularity. Embeddings are computed per group in BATCH_COUNT/
// BATCH_CHARS-bounded sub-batches and padded to the store's fixed width.
func (s *Store) AddDocuments(ctx context.Context, library, version string, docs []DocumentInput) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if strings.TrimSpace(d.URL) == "" {
			return errors.ValidationError("document missing required url", nil)
		}
	}

	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return err
	}

	groups := groupByURL(docs)
	for _, url := range groups.order {
		if err := s.addURLGroup(ctx, libraryID, versionID, url, groups.byURL[url]); err != nil {
			return err
		}
	}
	return nil
}

type urlGroups struct {
	order []string
	byURL map[string][]DocumentInput
}

func groupByURL(docs []DocumentInput) urlGroups {
	g := urlGroups{byURL: make(map[string][]DocumentInput)}
	for _, d := range docs {
		if _, seen := g.byURL[d.URL]; !seen {
			g.order = append(g.order, d.URL)
		}
		g.byURL[d.URL] = append(g.byURL[d.URL], d)
	}
	return g
}

func (s *Store) addURLGroup(ctx context.Context, libraryID, versionID int64, url string, docs []DocumentInput) error {
	lock := s.urlLock(libraryID, versionID, url)
	lock.Lock()
	defer lock.Unlock()

	// Embed before touching the database: an embedding failure must leave
	// the previously stored group untouched.
	vectors, err := s.embedGroup(ctx, docs)
	if err != nil {
		return err
	}

	priorIDs, err := s.documentIDs(ctx, `SELECT id FROM documents WHERE library_id = ? AND version_id = ? AND url = ?`,
		libraryID, versionID, url)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.ConnectionError("failed to begin addDocuments transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Replace the whole URL group inside one transaction so a failed insert
	// rolls the delete back with it.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE library_id = ? AND version_id = ? AND url = ?`, libraryID, versionID, url); err != nil {
		return errors.ConnectionError("failed to delete prior documents for url", err)
	}
	for _, id := range priorIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fts_documents WHERE doc_id = ?`, id); err != nil {
			return errors.ConnectionError("failed to delete prior fts row", err)
		}
	}

	insertDoc, err := tx.PrepareContext(ctx, `
		INSERT INTO documents(library_id, version_id, url, content, title, path, level, mime_type, sort_order, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.ConnectionError("failed to prepare document insert", err)
	}
	defer insertDoc.Close()

	insertFTS, err := tx.PrepareContext(ctx, `
		INSERT INTO fts_documents(doc_id, library_id, version_id, title, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.ConnectionError("failed to prepare fts insert", err)
	}
	defer insertFTS.Close()

	insertEmbedding, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings(document_id, library_id, version_id, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.ConnectionError("failed to prepare embedding insert", err)
	}
	defer insertEmbedding.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	type inserted struct {
		id     int64
		vector []float32
	}
	var rows []inserted

	for i, d := range docs {
		pathJSON, err := json.Marshal(d.Path)
		if err != nil {
			return errors.InternalError("failed to encode chunk path", err)
		}

		res, err := insertDoc.ExecContext(ctx, libraryID, versionID, url, d.Content, d.Title, string(pathJSON), d.Level, d.MimeType, i, now)
		if err != nil {
			return errors.ConnectionError("failed to insert document", err)
		}
		docID, err := res.LastInsertId()
		if err != nil {
			return errors.ConnectionError("failed to read inserted document id", err)
		}

		if _, err := insertFTS.ExecContext(ctx, docID, libraryID, versionID, d.Title, d.Content); err != nil {
			return errors.ConnectionError("failed to index document for full text search", err)
		}

		blob, err := encodeVector(vectors[i])
		if err != nil {
			return err
		}
		if _, err := insertEmbedding.ExecContext(ctx, docID, libraryID, versionID, blob); err != nil {
			return errors.ConnectionError("failed to persist embedding", err)
		}

		rows = append(rows, inserted{id: docID, vector: vectors[i]})
	}

	if err := tx.Commit(); err != nil {
		return errors.ConnectionError("failed to commit addDocuments transaction", err)
	}

	s.vectors.remove(libraryID, versionID, idsToStrings(priorIDs))
	for _, r := range rows {
		s.vectors.add(libraryID, versionID, fmt.Sprintf("%d", r.id), r.vector)
	}
	return nil
}

// embedGroup builds the embedding input for each chunk, splits it into
// BATCH_COUNT/BATCH_CHARS-bounded sub-batches, embeds each sub-batch, and
// pads every vector to the store's fixed dimension.
func (s *Store) embedGroup(ctx context.Context, docs []DocumentInput) ([][]float32, error) {
	inputs := make([]string, len(docs))
	for i, d := range docs {
		inputs[i] = embeddingInput(d)
	}

	batchCount := s.cfg.BatchCount
	if batchCount <= 0 {
		batchCount = 100
	}
	batchChars := s.cfg.BatchChars
	if batchChars <= 0 {
		batchChars = 50_000
	}

	result := make([][]float32, 0, len(docs))
	start := 0
	for start < len(inputs) {
		end := start + 1
		chars := len(inputs[start])
		for end < len(inputs) && end-start < batchCount {
			next := chars + len(inputs[end])
			if next > batchChars {
				break
			}
			chars = next
			end++
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, inputs[start:end])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeProviderFailure, err)
		}

		for _, v := range vectors {
			padded, err := s.padVector(v)
			if err != nil {
				return nil, err
			}
			result = append(result, padded)
		}
		start = end
	}
	return result, nil
}

func (s *Store) padVector(v []float32) ([]float32, error) {
	if len(v) > s.cfg.StoreDimensions {
		return nil, errors.DimensionError(
			fmt.Sprintf("embedding dimension %d exceeds store dimension %d", len(v), s.cfg.StoreDimensions), nil)
	}
	if len(v) == s.cfg.StoreDimensions {
		return v, nil
	}
	padded := make([]float32, s.cfg.StoreDimensions)
	copy(padded, v)
	return padded, nil
}

// embeddingInput builds the fixed title/url/path header concatenated with
// the chunk content.
func embeddingInput(d DocumentInput) string {
	var b strings.Builder
	b.WriteString("<title>")
	b.WriteString(d.Title)
	b.WriteString("</title><url>")
	b.WriteString(d.URL)
	b.WriteString("</url><path>")
	b.WriteString(strings.Join(d.Path, " / "))
	b.WriteString("</path>")
	b.WriteString(d.Content)
	return b.String()
}

// DeleteDocuments removes every document for (library, version).
func (s *Store) DeleteDocuments(ctx context.Context, library, version string) (int, error) {
	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return 0, err
	}
	return s.deleteDocumentsScope(ctx, libraryID, versionID)
}

// DeleteDocumentsByURL removes documents for (library, version, url).
func (s *Store) DeleteDocumentsByURL(ctx context.Context, library, version, url string) (int, error) {
	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return 0, err
	}
	lock := s.urlLock(libraryID, versionID, url)
	lock.Lock()
	defer lock.Unlock()
	return s.deleteDocumentsByURLLocked(ctx, libraryID, versionID, url)
}

func (s *Store) deleteDocumentsByURLLocked(ctx context.Context, libraryID, versionID int64, url string) (int, error) {
	ids, err := s.documentIDs(ctx, `SELECT id FROM documents WHERE library_id = ? AND version_id = ? AND url = ?`,
		libraryID, versionID, url)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE library_id = ? AND version_id = ? AND url = ?`, libraryID, versionID, url); err != nil {
		return 0, errors.ConnectionError("failed to delete documents by url", err)
	}
	if err := s.deleteFTSRows(ctx, ids); err != nil {
		return 0, err
	}
	s.vectors.remove(libraryID, versionID, idsToStrings(ids))
	return len(ids), nil
}

func (s *Store) deleteDocumentsScope(ctx context.Context, libraryID, versionID int64) (int, error) {
	ids, err := s.documentIDs(ctx, `SELECT id FROM documents WHERE library_id = ? AND version_id = ?`,
		libraryID, versionID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE library_id = ? AND version_id = ?`, libraryID, versionID); err != nil {
		return 0, errors.ConnectionError("failed to delete documents", err)
	}
	if err := s.deleteFTSRows(ctx, ids); err != nil {
		return 0, err
	}
	s.vectors.remove(libraryID, versionID, idsToStrings(ids))
	return len(ids), nil
}

func (s *Store) deleteFTSRows(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM fts_documents WHERE doc_id = ?`, id); err != nil {
			return errors.ConnectionError("failed to delete fts row", err)
		}
	}
	return nil
}

func (s *Store) documentIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ConnectionError("failed to query document ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.ConnectionError("failed to scan document id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func idsToStrings(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = fmt.Sprintf("%d", id)
	}
	return out
}

// RemoveAllDocuments empties the store: every document, version, and
// library row, the full-text index, and every in-memory vector graph.
func (s *Store) RemoveAllDocuments(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, errors.ConnectionError("failed to count documents", err)
	}

	for _, stmt := range []string{
		`DELETE FROM embeddings`,
		`DELETE FROM fts_documents`,
		`DELETE FROM documents`,
		`DELETE FROM versions`,
		`DELETE FROM libraries`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return 0, errors.ConnectionError("failed to clear store", err)
		}
	}
	s.vectors.closeAll()
	return count, nil
}

// CheckDocumentExists reports whether (library, version) has any stored
// documents.
func (s *Store) CheckDocumentExists(ctx context.Context, library, version string) (bool, error) {
	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return false, err
	}
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE library_id = ? AND version_id = ?`, libraryID, versionID).Scan(&count)
	if err != nil {
		return false, errors.ConnectionError("failed to check document existence", err)
	}
	return count > 0, nil
}
