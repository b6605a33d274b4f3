package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/docindex/docindex/internal/errors"
)

const maxBodyBytes = 5 << 20 // 5MB per page

// HTTPScraper crawls a site breadth-first over plain HTTP GETs, extracting
// readable text and outbound links with golang.org/x/net/html. It has no
// JavaScript execution; ScrapeMode "playwright" and "auto" both degrade to
// this fetch path.
type HTTPScraper struct {
	Client *http.Client
}

// NewHTTPScraper returns an HTTPScraper with a default client.
func NewHTTPScraper() *HTTPScraper {
	return &HTTPScraper{Client: &http.Client{}}
}

type crawlTask struct {
	url   string
	depth int
}

// Scrape performs a breadth-first crawl from opts.URL, bounded by
// MaxPages/MaxDepth, fanning fetches out across MaxConcurrency workers.
// onProgress is invoked once per page in discovery order; a non-nil return
// from it aborts the crawl (used by the pipeline Worker to implement
// cooperative cancellation).
func (h *HTTPScraper) Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	opts = opts.ResolveDefaults()
	seed, err := url.Parse(opts.URL)
	if err != nil {
		return errors.ValidationError("invalid scrape url", err)
	}

	includeRe, err := compilePatterns(opts.IncludePatterns)
	if err != nil {
		return errors.ValidationError("invalid include pattern", err)
	}
	excludeRe, err := compilePatterns(opts.ExcludePatterns)
	if err != nil {
		return errors.ValidationError("invalid exclude pattern", err)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{}
	}
	if !opts.FollowRedirects {
		client = &http.Client{
			Transport:     client.Transport,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}

	var (
		mu              sync.Mutex
		visited         = map[string]bool{seed.String(): true}
		queue           = []crawlTask{{url: seed.String(), depth: 0}}
		pagesScraped    int
		totalDiscovered = 1
	)

	sem := make(chan struct{}, opts.MaxConcurrency)
	var progressErr error
	var progressMu sync.Mutex

	for len(queue) > 0 && pagesScraped < opts.MaxPages {
		mu.Lock()
		batch := queue
		queue = nil
		mu.Unlock()

		type fetched struct {
			task  crawlTask
			doc   *Document
			links []string
			err   error
		}
		results := make([]fetched, len(batch))

		// Fan this batch's fetches out across MaxConcurrency workers with
		// errgroup, bounded by sem; fetch errors are captured per-task
		// rather than returned to the group, since a page failure is
		// tolerated (IgnoreErrors) rather than aborting the whole batch.
		g, gctx := errgroup.WithContext(ctx)
		for i, task := range batch {
			if pagesScraped+i >= opts.MaxPages {
				break
			}
			i, task := i, task
			sem <- struct{}{}
			g.Go(func() error {
				defer func() { <-sem }()
				doc, links, fetchErr := h.fetchPage(gctx, client, task.url, opts)
				results[i] = fetched{task: task, doc: doc, links: links, err: fetchErr}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}

		for _, r := range results {
			if r.task.url == "" {
				continue
			}
			if pagesScraped >= opts.MaxPages {
				break
			}
			if r.err != nil && !opts.IgnoreErrors {
				return errors.ProviderError(fmt.Sprintf("fetch failed for %s", r.task.url), r.err)
			}

			pagesScraped++
			progress := Progress{
				PagesScraped:    pagesScraped,
				TotalPages:      opts.MaxPages,
				TotalDiscovered: totalDiscovered,
				CurrentURL:      r.task.url,
				Depth:           r.task.depth,
				MaxDepth:        opts.MaxDepth,
				Document:        r.doc,
			}

			progressMu.Lock()
			cbErr := onProgress(progress)
			progressMu.Unlock()
			if cbErr != nil {
				progressErr = cbErr
				break
			}

			if r.task.depth >= opts.MaxDepth {
				continue
			}
			for _, link := range r.links {
				if !inScope(seed, link, opts.Scope) {
					continue
				}
				if !matchesInclude(link, includeRe) || matchesExclude(link, excludeRe) {
					continue
				}
				mu.Lock()
				if !visited[link] {
					visited[link] = true
					totalDiscovered++
					queue = append(queue, crawlTask{url: link, depth: r.task.depth + 1})
				}
				mu.Unlock()
			}
		}
		if progressErr != nil {
			return progressErr
		}
	}
	return nil
}

func (h *HTTPScraper) fetchPage(ctx context.Context, client *http.Client, target string, opts Options) (*Document, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "docindex-bot/1.0")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 && !opts.FollowRedirects {
		loc := resp.Header.Get("Location")
		if loc != "" {
			if abs := resolveLink(target, loc); abs != "" {
				return nil, []string{abs}, nil
			}
		}
		return nil, nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") {
		return &Document{
			Content:     string(body),
			ContentType: contentType,
			Metadata:    DocumentMetadata{URL: target},
		}, nil, nil
	}

	node, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, err
	}

	title := extractTitle(node)
	links := extractLinks(node, target)
	text := extractText(node)

	return &Document{
		Content:     text,
		ContentType: "text/html",
		Metadata:    DocumentMetadata{URL: target, Title: title},
	}, links, nil
}

func extractTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// extractText renders readable text, skipping script/style/nav/footer
// elements that would otherwise pollute the indexed content with
// boilerplate or non-prose text.
func extractText(doc *html.Node) string {
	var sb strings.Builder
	skip := map[string]bool{"script": true, "style": true, "nav": true, "footer": true, "head": true}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func extractLinks(doc *html.Node, base string) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					if abs := resolveLink(base, attr.Val); abs != "" {
						links = append(links, abs)
					}
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func resolveLink(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// inScope reports whether link is reachable from seed under the given
// crawl scope: subpages stays under the seed's path prefix, hostname
// requires an exact host match, domain allows any host sharing the seed's
// registrable suffix (approximated by the last two labels).
func inScope(seed *url.URL, link string, scope Scope) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	switch scope {
	case ScopeHostname:
		return u.Host == seed.Host
	case ScopeDomain:
		return sameRegistrableDomain(u.Host, seed.Host)
	default: // ScopeSubpages
		if u.Host != seed.Host {
			return false
		}
		prefix := seed.Path
		if !strings.HasSuffix(prefix, "/") {
			prefix = path.Dir(prefix)
			if !strings.HasSuffix(prefix, "/") {
				prefix += "/"
			}
		}
		return strings.HasPrefix(u.Path, prefix) || u.Path == seed.Path
	}
}

func sameRegistrableDomain(a, b string) bool {
	suffix := func(host string) string {
		parts := strings.Split(host, ".")
		if len(parts) <= 2 {
			return host
		}
		return strings.Join(parts[len(parts)-2:], ".")
	}
	return suffix(a) == suffix(b)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") && len(p) > 1 {
			re, err := regexp.Compile(p[1 : len(p)-1])
			if err != nil {
				return nil, err
			}
			compiled = append(compiled, re)
			continue
		}
		re, err := globToRegexp(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func globToRegexp(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func matchesInclude(link string, includes []*regexp.Regexp) bool {
	if len(includes) == 0 {
		return true
	}
	for _, re := range includes {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

func matchesExclude(link string, excludes []*regexp.Regexp) bool {
	for _, re := range excludes {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}
