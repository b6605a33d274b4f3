// Package scraper crawls a documentation site starting from a seed URL,
// extracting one Document per page and reporting progress as it goes.
package scraper

import "context"

// Scope bounds which discovered links a crawl will follow.
type Scope string

const (
	ScopeSubpages Scope = "subpages"
	ScopeHostname Scope = "hostname"
	ScopeDomain   Scope = "domain"
)

// Mode selects how a page is fetched. Playwright-backed rendering is not
// implemented here; "auto" and "playwright" both fall back to a plain HTTP
// fetch, which is sufficient for server-rendered documentation sites.
type Mode string

const (
	ModeFetch      Mode = "fetch"
	ModePlaywright Mode = "playwright"
	ModeAuto       Mode = "auto"
)

// Options configures one crawl. URL, Library, and Version are required.
// ResolveDefaults fills MaxPages, MaxDepth, MaxConcurrency, Scope, and
// ScrapeMode when unset. FollowRedirects and IgnoreErrors are plain bools
// that ResolveDefaults does not touch, so they stay false unless the caller
// sets them; the pattern, selector, and header fields default to empty.
type Options struct {
	URL     string
	Library string
	Version string

	MaxPages       int
	MaxDepth       int
	MaxConcurrency int
	Scope          Scope

	FollowRedirects bool
	IgnoreErrors    bool

	IncludePatterns  []string
	ExcludePatterns  []string
	ExcludeSelectors []string
	Headers          map[string]string
	ScrapeMode       Mode
}

// ResolveDefaults fills unset fields with their defaults and returns the
// resulting Options; it does not mutate the receiver.
func (o Options) ResolveDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = 1000
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 3
	}
	if o.Scope == "" {
		o.Scope = ScopeSubpages
	}
	if o.ScrapeMode == "" {
		o.ScrapeMode = ModeAuto
	}
	return o
}

// DocumentMetadata carries the page attributes a Document was extracted
// from, beyond its content.
type DocumentMetadata struct {
	URL   string
	Title string
}

// Document is one scraped page's extracted content, ready for the store's
// splitter.
type Document struct {
	Content     string
	ContentType string
	Metadata    DocumentMetadata
}

// Progress is reported once per page visited, whether or not that page
// yielded a Document (a fetch error with IgnoreErrors set still advances
// progress without a Document).
type Progress struct {
	PagesScraped    int
	TotalPages      int
	TotalDiscovered int
	CurrentURL      string
	Depth           int
	MaxDepth        int
	Document        *Document
}

// ProgressFunc receives crawl progress, one call per page visited, in visit
// order. Returning an error unwinds the crawl; Scraper.Scrape propagates it
// to the caller (this is how the pipeline Worker's cooperative cancellation
// check interrupts an in-flight crawl).
type ProgressFunc func(Progress) error

// Scraper crawls a documentation source and reports progress page by page.
type Scraper interface {
	Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error
}
