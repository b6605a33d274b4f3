package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/docindex/docindex/internal/errors"
)

// runtimeOnlyOptionFields are stripped from the scraper options payload
// before it is persisted: they are reconstructed per-run by the Worker, not
// durable configuration.
var runtimeOnlyOptionFields = map[string]struct{}{
	"signal":  {},
	"library": {},
	"version": {},
	"url":     {},
}

// UpdateVersionStatus writes a Version's lifecycle state and, for
// StatusFailed, an error message.
func (s *Store) UpdateVersionStatus(ctx context.Context, versionID int64, status VersionStatus, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE versions SET status = ?, error_message = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, string(status), errorMessage, versionID)
	if err != nil {
		return errors.ConnectionError("failed to update version status", err)
	}
	return nil
}

// UpdateVersionProgress records the scraper's page counters for a Version.
func (s *Store) UpdateVersionProgress(ctx context.Context, versionID int64, pages, maxPages int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE versions SET progress_pages = ?, progress_max_pages = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, pages, maxPages, versionID)
	if err != nil {
		return errors.ConnectionError("failed to update version progress", err)
	}
	return nil
}

// StoreScraperOptions persists sourceURL and the option payload minus
// runtime-only fields (signal, library, version, url).
func (s *Store) StoreScraperOptions(ctx context.Context, versionID int64, sourceURL string, options map[string]any) error {
	persisted := make(map[string]any, len(options))
	for k, v := range options {
		if _, skip := runtimeOnlyOptionFields[k]; skip {
			continue
		}
		persisted[k] = v
	}

	encoded, err := json.Marshal(persisted)
	if err != nil {
		return errors.InternalError("failed to encode scraper options", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE versions SET source_url = ?, scraper_options = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?`, sourceURL, string(encoded), versionID)
	if err != nil {
		return errors.ConnectionError("failed to store scraper options", err)
	}
	return nil
}

// GetScraperOptions returns {sourceURL, options} for a Version, or nil when
// source_url is absent. Invalid stored JSON is logged and treated as an
// empty option payload rather than failing the call.
func (s *Store) GetScraperOptions(ctx context.Context, versionID int64) (*ScraperOptionsRecord, error) {
	var sourceURL, optionsJSON *string
	err := s.db.QueryRowContext(ctx, `SELECT source_url, scraper_options FROM versions WHERE id = ?`, versionID).
		Scan(&sourceURL, &optionsJSON)
	if err != nil {
		return nil, errors.ConnectionError("failed to load scraper options", err)
	}
	if sourceURL == nil || *sourceURL == "" {
		return nil, nil
	}

	options := "{}"
	if optionsJSON != nil && *optionsJSON != "" {
		var probe map[string]any
		if err := json.Unmarshal([]byte(*optionsJSON), &probe); err != nil {
			slog.Warn("stored scraper options are not valid JSON, treating as empty", "versionId", versionID, "error", err)
		} else {
			options = *optionsJSON
		}
	}

	return &ScraperOptionsRecord{SourceURL: *sourceURL, Options: options}, nil
}

// RemoveVersion deletes every document for a Version, then the Version row,
// then the Library row if it has no versions left and removeLibraryIfEmpty
// is set.
func (s *Store) RemoveVersion(ctx context.Context, libraryID, versionID int64, removeLibraryIfEmpty bool) (RemovalSummary, error) {
	var summary RemovalSummary

	deleted, err := s.deleteDocumentsScope(ctx, libraryID, versionID)
	if err != nil {
		return summary, err
	}
	summary.DocumentsDeleted = deleted

	if _, err := s.db.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, versionID); err != nil {
		return summary, errors.ConnectionError("failed to delete version", err)
	}
	summary.VersionDeleted = true

	if !removeLibraryIfEmpty {
		return summary, nil
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE library_id = ?`, libraryID).Scan(&remaining); err != nil {
		return summary, errors.ConnectionError("failed to count remaining versions", err)
	}
	if remaining > 0 {
		return summary, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, libraryID); err != nil {
		return summary, errors.ConnectionError("failed to delete empty library", err)
	}
	summary.LibraryDeleted = true
	return summary, nil
}
