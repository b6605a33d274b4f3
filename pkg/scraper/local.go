package scraper

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docindex/docindex/internal/errors"
)

// LocalFileScraper walks a local documentation folder instead of crawling
// a remote site. It satisfies the same Scraper contract as HTTPScraper, so
// the pipeline never knows which strategy it is driving.
type LocalFileScraper struct{}

// NewLocalFileScraper returns a LocalFileScraper.
func NewLocalFileScraper() *LocalFileScraper { return &LocalFileScraper{} }

const (
	mimeMarkdown = "text/markdown"
	mimePlain    = "text/plain"
)

var localDocExtensions = map[string]string{
	".md":       mimeMarkdown,
	".markdown": mimeMarkdown,
	".txt":      mimePlain,
}

// Scrape walks opts.URL (treated as a filesystem path) for Markdown/plain
// text files, honoring MaxDepth, MaxPages, and Include/ExcludePatterns (the
// HTTP scraper's pattern syntax, matched against each file's path relative
// to the root), and reports one Progress per file in deterministic
// (lexicographic) path order so a run is reproducible. A Markdown file's
// title is its first "# " heading, else its file name without extension;
// a plain-text file's title is always its file name without extension.
func (l *LocalFileScraper) Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	opts = opts.ResolveDefaults()
	root := opts.URL

	info, err := os.Stat(root)
	if err != nil {
		return errors.ValidationError("local scrape root does not exist", err)
	}
	if !info.IsDir() {
		return errors.ValidationError("local scrape root is not a directory", nil)
	}

	includeRe, err := compilePatterns(opts.IncludePatterns)
	if err != nil {
		return errors.ValidationError("invalid include pattern", err)
	}
	excludeRe, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return errors.ValidationError("invalid exclude pattern", err)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if opts.IgnoreErrors {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator))
		if depth > opts.MaxDepth {
			return nil
		}
		if _, ok := localDocExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if matchesExclude(rel, excludeRe) {
			return nil
		}
		if !matchesInclude(rel, includeRe) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return errors.ConnectionError("failed to walk local scrape root", err)
	}
	sort.Strings(paths)

	totalDiscovered := len(paths)
	if opts.MaxPages < totalDiscovered {
		paths = paths[:opts.MaxPages]
	}

	for i, path := range paths {
		select {
		case <-ctx.Done():
			return errors.CancellationError("local scrape cancelled")
		default:
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if opts.IgnoreErrors {
				content = nil
			} else {
				return errors.ConnectionError("failed to read local file", err)
			}
		}

		rel, _ := filepath.Rel(root, path)
		progress := Progress{
			PagesScraped:    i + 1,
			TotalPages:      len(paths),
			TotalDiscovered: totalDiscovered,
			CurrentURL:      "file://" + path,
			Depth:           strings.Count(rel, string(filepath.Separator)),
			MaxDepth:        opts.MaxDepth,
		}
		if content != nil {
			mime := localDocExtensions[strings.ToLower(filepath.Ext(path))]
			title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if mime == mimeMarkdown {
				for _, line := range strings.Split(string(content), "\n") {
					if strings.HasPrefix(line, "# ") {
						title = strings.TrimSpace(line[2:])
						break
					}
				}
			}
			progress.Document = &Document{
				Content:     string(content),
				ContentType: mime,
				Metadata: DocumentMetadata{
					URL:   "file://" + path,
					Title: title,
				},
			}
		}

		if err := onProgress(progress); err != nil {
			return err
		}
	}
	return nil
}

var _ Scraper = (*LocalFileScraper)(nil)
