package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docindex/docindex/internal/errors"
)

// FindByContent runs hybrid search over (library, version): dense ANN
// candidates from the per-scope HNSW graph and sparse BM25 candidates from
// fts_documents (title weighted over content), fused by unweighted RRF.
func (s *Store) FindByContent(ctx context.Context, library, version, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}
	if limit <= 0 {
		limit = 10
	}

	libraryID, versionID, err := s.resolveIds(ctx, library, version)
	if err != nil {
		return nil, err
	}

	vecCandidates, err := s.vectorCandidates(ctx, libraryID, versionID, query, limit)
	if err != nil {
		return nil, err
	}

	ftsCandidates, err := s.ftsCandidates(ctx, libraryID, versionID, query, limit)
	if err != nil {
		return nil, err
	}

	fused := rrfFuse(ftsCandidates, vecCandidates, s.cfg.RRFConstant)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]SearchResult, 0, len(fused))
	for _, h := range fused {
		docID, err := strconv.ParseInt(h.DocID, 10, 64)
		if err != nil {
			continue
		}
		doc, err := s.getByID(ctx, docID)
		if err != nil {
			if errors.IsFatal(err) {
				return nil, err
			}
			continue
		}
		results = append(results, SearchResult{
			Document: *doc,
			Score:    h.RRFScore,
			VecRank:  h.VecRank,
			FTSRank:  h.BM25Rank,
		})
	}
	return results, nil
}

func (s *Store) vectorCandidates(ctx context.Context, libraryID, versionID int64, query string, limit int) ([]rrfCandidate, error) {
	qvec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderFailure, err)
	}
	qvec, err = s.padVector(qvec)
	if err != nil {
		return nil, err
	}

	hits := s.vectors.search(libraryID, versionID, qvec, limit)
	candidates := make([]rrfCandidate, len(hits))
	for i, h := range hits {
		candidates[i] = rrfCandidate{DocID: h.DocID, Rank: i + 1, Score: float64(h.Score)}
	}
	return candidates, nil
}

func (s *Store) ftsCandidates(ctx context.Context, libraryID, versionID int64, query string, limit int) ([]rrfCandidate, error) {
	matchQuery := ftsMatchQuery(query)
	if matchQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_documents, 0, 0, 0, 10.0, 1.0) AS rank
		FROM fts_documents
		WHERE fts_documents MATCH ? AND library_id = ? AND version_id = ?
		ORDER BY rank LIMIT ?`,
		matchQuery, libraryID, versionID, limit)
	if err != nil {
		return nil, errors.ConnectionError("failed to query full text search candidates", err)
	}
	defer rows.Close()

	var candidates []rrfCandidate
	rank := 0
	for rows.Next() {
		var docID int64
		var bm25Rank float64
		if err := rows.Scan(&docID, &bm25Rank); err != nil {
			return nil, errors.ConnectionError("failed to scan full text search candidate", err)
		}
		rank++
		// bm25() returns a cost (lower is better); negate so higher means
		// more relevant, matching the vector engine's score orientation.
		candidates = append(candidates, rrfCandidate{
			DocID: fmt.Sprintf("%d", docID),
			Rank:  rank,
			Score: -bm25Rank,
		})
	}
	return candidates, rows.Err()
}

// ftsMatchQuery wraps the raw query in double quotes so user input cannot
// inject FTS5 query-syntax operators (AND/OR/NOT/NEAR, column filters).
func ftsMatchQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	escaped := strings.ReplaceAll(query, `"`, `""`)
	return `"` + escaped + `"`
}

func (s *Store) getByID(ctx context.Context, docID int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, library_id, version_id, url, content, title, path, level, mime_type, sort_order, indexed_at
		FROM documents WHERE id = ?`, docID)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*Document, error) {
	var (
		d        Document
		pathJSON string
		indexed  string
	)
	if err := row.Scan(&d.ID, &d.LibraryID, &d.VersionID, &d.URL, &d.Content, &d.Title, &pathJSON, &d.Level, &d.MimeType, &d.SortOrder, &indexed); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundError("document not found", nil)
		}
		return nil, errors.ConnectionError("failed to scan document", err)
	}
	if err := json.Unmarshal([]byte(pathJSON), &d.Path); err != nil {
		return nil, errors.InternalError("failed to decode chunk path", err)
	}
	d.IndexedAt = parseTimestamp(indexed)
	return &d, nil
}

// parseTimestamp parses the RFC3339Nano timestamps the store writes (the
// schema's strftime column defaults parse the same way), falling back to
// the zero time for anything unexpected rather than failing the read.
func parseTimestamp(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", value); err == nil {
		return t
	}
	return time.Time{}
}
