// Package catalog answers library/version management questions over a
// Store: listing what's indexed, validating a library name with fuzzy
// suggestions, and resolving a requested version string to the best
// indexed match.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/agnivade/levenshtein"

	"github.com/docindex/docindex/internal/errors"
	"github.com/docindex/docindex/pkg/store"
)

// maxSuggestions bounds how many fuzzy library-name suggestions
// validateLibraryExists reports.
const maxSuggestions = 3

// suggestionThreshold is the maximum normalized edit distance (0..1) for a
// library name to be offered as a suggestion.
const suggestionThreshold = 0.4

// LibrarySummary is one library's indexed versions, as listLibraries
// returns them.
type LibrarySummary struct {
	Name     string
	Versions []store.VersionRow
}

// Catalog answers library/version questions over a Store.
type Catalog struct {
	store *store.Store
}

// New returns a Catalog over s.
func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// ListLibraries returns every indexed library with its versions, sorted by
// name.
func (c *Catalog) ListLibraries(ctx context.Context) ([]LibrarySummary, error) {
	byName, err := c.store.QueryLibraryVersions(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]LibrarySummary, 0, len(byName))
	for name, versions := range byName {
		summaries = append(summaries, LibrarySummary{Name: name, Versions: versions})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// ValidateLibraryExists returns a *errors.LibraryNotFoundError carrying up
// to three fuzzy name suggestions when library has no indexed versions.
func (c *Catalog) ValidateLibraryExists(ctx context.Context, library string) error {
	libraries, err := c.ListLibraries(ctx)
	if err != nil {
		return err
	}

	for _, lib := range libraries {
		if strings.EqualFold(lib.Name, library) {
			return nil
		}
	}

	names := make([]string, len(libraries))
	for i, lib := range libraries {
		names[i] = lib.Name
	}
	return &errors.LibraryNotFoundError{
		Library:     library,
		Suggestions: suggestLibraryNames(library, names),
	}
}

// suggestLibraryNames returns up to maxSuggestions candidates closest to
// target by normalized Levenshtein distance, within suggestionThreshold.
func suggestLibraryNames(target string, candidates []string) []string {
	type scored struct {
		name string
		dist float64
	}

	target = strings.ToLower(target)
	var ranked []scored
	for _, name := range candidates {
		lower := strings.ToLower(name)
		maxLen := len(target)
		if len(lower) > maxLen {
			maxLen = len(lower)
		}
		if maxLen == 0 {
			continue
		}
		dist := float64(levenshtein.ComputeDistance(target, lower)) / float64(maxLen)
		if dist <= suggestionThreshold {
			ranked = append(ranked, scored{name: name, dist: dist})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.name
	}
	return out
}

// FindBestVersion resolves targetVersion against library's indexed
// versions. An empty or "latest" targetVersion picks the maximum semver
// version. An exact version prefers itself, falling back to the next
// older version. A bare numeric prefix ("1", "1.2") is treated as a tilde
// range; anything else is parsed as a verbatim semver constraint.
//
// When no semver version satisfies the request but an unversioned variant
// exists, it returns (nil, true, nil). When neither exists, it returns a
// *errors.VersionNotFoundError carrying the full indexed listing.
func (c *Catalog) FindBestVersion(ctx context.Context, library, targetVersion string) (*string, bool, error) {
	rows, err := c.store.QueryLibraryVersions(ctx)
	if err != nil {
		return nil, false, err
	}

	versions := rows[normalizeLibraryKey(library, rows)]

	hasUnversioned := false
	var semvers []*semver.Version
	byOriginal := map[*semver.Version]string{}
	for _, row := range versions {
		if row.Version == "" {
			hasUnversioned = true
			continue
		}
		if v, err := semver.NewVersion(row.Version); err == nil {
			semvers = append(semvers, v)
			byOriginal[v] = row.Version
		}
	}
	sort.Sort(semver.Collection(semvers))

	if len(semvers) == 0 {
		if hasUnversioned {
			return nil, true, nil
		}
		return nil, false, notFoundError(library, targetVersion, versions)
	}

	constraint, err := resolveConstraint(targetVersion)
	if err != nil {
		return nil, false, errors.ValidationError("invalid version constraint: "+targetVersion, err)
	}

	for i := len(semvers) - 1; i >= 0; i-- {
		if constraint == nil || constraint.Check(semvers[i]) {
			best := byOriginal[semvers[i]]
			return &best, hasUnversioned, nil
		}
	}

	if hasUnversioned {
		return nil, true, nil
	}
	return nil, false, notFoundError(library, targetVersion, versions)
}

// resolveConstraint derives the semver constraint for a requested version
// string. A nil constraint with a nil error means "match anything" (the
// "latest" / absent case).
func resolveConstraint(targetVersion string) (*semver.Constraints, error) {
	if targetVersion == "" || targetVersion == "latest" {
		return nil, nil
	}
	if v, err := semver.StrictNewVersion(targetVersion); err == nil {
		return semver.NewConstraint("<=" + v.String())
	}
	if isPlainNumericPrefix(targetVersion) {
		return semver.NewConstraint("~" + targetVersion)
	}
	return semver.NewConstraint(targetVersion)
}

// isPlainNumericPrefix reports whether v looks like "1" or "1.2": digits
// and dots only, with at most 2 dotted segments (i.e. not a full semver).
func isPlainNumericPrefix(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return strings.Count(v, ".") < 2
}

func notFoundError(library, targetVersion string, versions []store.VersionRow) error {
	available := make([]errors.VersionInfo, 0, len(versions))
	for _, row := range versions {
		available = append(available, errors.VersionInfo{
			Version:        row.Version,
			DocumentCount:  row.DocumentCount,
			UniqueURLCount: row.UniqueURLCount,
			IndexedAt:      row.IndexedAt.String(),
		})
	}
	return &errors.VersionNotFoundError{
		Library:          library,
		RequestedVersion: targetVersion,
		Available:        available,
	}
}

// normalizeLibraryKey finds rows' key matching library case-insensitively,
// since QueryLibraryVersions keys by the stored (already-normalized) name.
func normalizeLibraryKey(library string, rows map[string][]store.VersionRow) string {
	lower := strings.ToLower(library)
	if _, ok := rows[lower]; ok {
		return lower
	}
	for name := range rows {
		if strings.EqualFold(name, library) {
			return name
		}
	}
	return lower
}
