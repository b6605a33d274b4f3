package store

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/docindex/docindex/internal/errors"
)

// QueryUniqueVersions returns the raw version names stored for a library,
// as-is (including "" for the unversioned variant).
func (s *Store) QueryUniqueVersions(ctx context.Context, library string) ([]string, error) {
	libraryName := normalizeName(library)

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.name FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE l.name = ?`, libraryName)
	if err != nil {
		return nil, errors.ConnectionError("failed to query unique versions", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.ConnectionError("failed to scan version name", err)
		}
		versions = append(versions, name)
	}
	return versions, rows.Err()
}

// QueryLibraryVersions returns every library's versions, each annotated
// with document counts, sorted unversioned-first then ascending semver
// (lexicographic fallback on parse failure).
func (s *Store) QueryLibraryVersions(ctx context.Context) (map[string][]VersionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.name, v.id, v.name, v.status, v.progress_pages, v.progress_max_pages, v.source_url,
		       COUNT(d.id) AS document_count,
		       COUNT(DISTINCT d.url) AS unique_url_count,
		       MAX(d.indexed_at) AS indexed_at
		FROM libraries l
		JOIN versions v ON v.library_id = l.id
		LEFT JOIN documents d ON d.version_id = v.id
		GROUP BY l.id, v.id`)
	if err != nil {
		return nil, errors.ConnectionError("failed to query library versions", err)
	}
	defer rows.Close()

	result := make(map[string][]VersionRow)
	for rows.Next() {
		var (
			libraryName string
			row         VersionRow
			sourceURL   *string
			indexedAt   *string
		)
		if err := rows.Scan(&libraryName, &row.VersionID, &row.Version, &row.Status, &row.ProgressPages,
			&row.ProgressMaxPages, &sourceURL, &row.DocumentCount, &row.UniqueURLCount, &indexedAt); err != nil {
			return nil, errors.ConnectionError("failed to scan library version", err)
		}
		if sourceURL != nil {
			row.SourceURL = *sourceURL
		}
		if indexedAt != nil {
			row.IndexedAt = parseTimestamp(*indexedAt)
		}
		result[libraryName] = append(result[libraryName], row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for name := range result {
		sortVersionRows(result[name])
	}
	return result, nil
}

func sortVersionRows(rows []VersionRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Version, rows[j].Version
		if a == "" {
			return b != ""
		}
		if b == "" {
			return false
		}
		return compareVersions(a, b) < 0
	})
}

// compareVersions compares dot-separated numeric version strings
// component-wise, falling back to a plain lexicographic comparison when
// either side fails to parse as numeric dotted components.
func compareVersions(a, b string) int {
	aParts, aOK := numericParts(a)
	bParts, bOK := numericParts(b)
	if !aOK || !bOK {
		return strings.Compare(a, b)
	}

	for i := 0; i < len(aParts) || i < len(bParts); i++ {
		var av, bv int
		if i < len(aParts) {
			av = aParts[i]
		}
		if i < len(bParts) {
			bv = bParts[i]
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}

func numericParts(v string) ([]int, bool) {
	v = strings.TrimPrefix(v, "v")
	segments := strings.Split(v, ".")
	parts := make([]int, len(segments))
	for i, seg := range segments {
		// Strip a trailing pre-release/build suffix like "-rc1" for the
		// numeric comparison; anything non-numeric before that disqualifies
		// the whole string from numeric comparison.
		if idx := strings.IndexAny(seg, "-+"); idx >= 0 {
			seg = seg[:idx]
		}
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, false
		}
		parts[i] = n
	}
	return parts, true
}

// GetVersionsByStatus returns every Version in any of the given statuses,
// with its owning library's name.
func (s *Store) GetVersionsByStatus(ctx context.Context, statuses []VersionStatus) ([]Version, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	query := `
		SELECT v.id, v.library_id, v.name, v.status, v.progress_pages, v.progress_max_pages,
		       v.error_message, v.source_url, v.scraper_options, v.created_at, v.updated_at, l.name
		FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE v.status IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ConnectionError("failed to query versions by status", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersionWithLibraryName(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// FindVersionsBySourceUrl returns every Version whose source_url matches.
func (s *Store) FindVersionsBySourceUrl(ctx context.Context, url string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.library_id, v.name, v.status, v.progress_pages, v.progress_max_pages,
		       v.error_message, v.source_url, v.scraper_options, v.created_at, v.updated_at, l.name
		FROM versions v
		JOIN libraries l ON l.id = v.library_id
		WHERE v.source_url = ?`, url)
	if err != nil {
		return nil, errors.ConnectionError("failed to query versions by source url", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		v, err := scanVersionWithLibraryName(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersionWithLibraryName(row rowScanner) (Version, error) {
	var (
		v           Version
		errMsg      *string
		sourceURL   *string
		scraperOpts *string
		createdAt   string
		updatedAt   string
	)
	if err := row.Scan(&v.ID, &v.LibraryID, &v.Name, &v.Status, &v.ProgressPages, &v.ProgressMaxPages,
		&errMsg, &sourceURL, &scraperOpts, &createdAt, &updatedAt, &v.LibraryName); err != nil {
		return Version{}, errors.ConnectionError("failed to scan version", err)
	}
	if errMsg != nil {
		v.ErrorMessage = *errMsg
	}
	if sourceURL != nil {
		v.SourceURL = *sourceURL
	}
	if scraperOpts != nil {
		v.ScraperOptions = *scraperOpts
	}
	v.CreatedAt = parseTimestamp(createdAt)
	v.UpdatedAt = parseTimestamp(updatedAt)
	return v, nil
}
