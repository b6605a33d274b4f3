package pipeline

import (
	"context"

	"github.com/docindex/docindex/internal/errors"
	"github.com/docindex/docindex/pkg/scraper"
	"github.com/docindex/docindex/pkg/store"
)

// Worker drives a single Job's scrape-and-index run. It never sets a Job's
// terminal status; that is reserved for the Manager's runJob.
type Worker struct {
	store   *store.Store
	scraper scraper.Scraper
}

// NewWorker returns a Worker bound to the given Store and Scraper.
func NewWorker(s *store.Store, sc scraper.Scraper) *Worker {
	return &Worker{store: s, scraper: sc}
}

// Execute runs job to completion, failure, or cancellation: clear prior
// chunks, build runtime scraper options, drive the scrape, and forward
// progress/errors through callbacks. A returned CancellationError
// means the cancellation token was observed; any other error is a scraper
// or framework failure.
func (w *Worker) Execute(ctx context.Context, job *Job, callbacks Callbacks) error {
	if _, err := w.store.DeleteDocuments(ctx, job.Library, job.Version); err != nil {
		return errors.InternalError("failed to clear prior documents before scrape", err)
	}

	opts := scraper.Options{
		URL:     job.SourceURL,
		Library: job.Library,
		Version: job.Version,
	}
	applyStoredOptions(&opts, job.Options)

	cancelled := func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	onProgress := func(p scraper.Progress) error {
		if cancelled() {
			return errors.CancellationError("job cancelled during scraping progress")
		}

		job.setProgress(p)
		if callbacks.OnJobProgress != nil {
			callbacks.OnJobProgress(job, p)
		}

		if p.Document != nil {
			page := store.ScrapedPage{
				URL:      p.Document.Metadata.URL,
				Title:    p.Document.Metadata.Title,
				Content:  p.Document.Content,
				MimeType: p.Document.ContentType,
			}
			if err := w.store.AddDocument(ctx, job.Library, job.Version, page); err != nil {
				if callbacks.OnJobError != nil {
					callbacks.OnJobError(job, err, p.Document)
				}
			}
		}
		return nil
	}

	scrapeErr := w.scraper.Scrape(ctx, opts, onProgress)

	// Cancellation always wins: a cancelled context can surface as a plain
	// context error, or as nothing at all if the scraper returned early
	// without propagating it, so check the token directly rather than
	// trust scrapeErr's shape.
	if cancelled() {
		return errors.CancellationError("job cancelled")
	}
	return scrapeErr
}

// applyStoredOptions copies a Job's persisted scraper option map onto the
// typed scraper.Options the Worker hands to the Scraper, skipping keys that
// don't match a known option so unrecognized JSON fields are silently
// ignored rather than rejected.
func applyStoredOptions(opts *scraper.Options, stored map[string]any) {
	if stored == nil {
		return
	}
	if v, ok := stored["maxPages"].(float64); ok {
		opts.MaxPages = int(v)
	}
	if v, ok := stored["maxDepth"].(float64); ok {
		opts.MaxDepth = int(v)
	}
	if v, ok := stored["maxConcurrency"].(float64); ok {
		opts.MaxConcurrency = int(v)
	}
	if v, ok := stored["scope"].(string); ok {
		opts.Scope = scraper.Scope(v)
	}
	if v, ok := stored["followRedirects"].(bool); ok {
		opts.FollowRedirects = v
	}
	if v, ok := stored["ignoreErrors"].(bool); ok {
		opts.IgnoreErrors = v
	}
	if v, ok := stored["includePatterns"].([]any); ok {
		opts.IncludePatterns = toStringSlice(v)
	}
	if v, ok := stored["excludePatterns"].([]any); ok {
		opts.ExcludePatterns = toStringSlice(v)
	}
	if v, ok := stored["excludeSelectors"].([]any); ok {
		opts.ExcludeSelectors = toStringSlice(v)
	}
	if v, ok := stored["headers"].(map[string]any); ok {
		headers := make(map[string]string, len(v))
		for k, hv := range v {
			if s, ok := hv.(string); ok {
				headers[k] = s
			}
		}
		opts.Headers = headers
	}
	if v, ok := stored["scrapeMode"].(string); ok {
		opts.ScrapeMode = scraper.Mode(v)
	}
}

func toStringSlice(v []any) []string {
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
