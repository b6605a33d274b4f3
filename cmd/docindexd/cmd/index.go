package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docindex/docindex/pkg/scraper"
)

type indexOptions struct {
	version         string
	maxPages        int
	maxDepth        int
	maxConcurrency  int
	scope           string
	includePatterns []string
	excludePatterns []string
	local           bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <library> <url-or-path>",
		Short: "Crawl and index a documentation source for a library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "version tag for this index (empty = unversioned)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to crawl (default 1000)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "maximum crawl depth (default 3)")
	cmd.Flags().IntVar(&opts.maxConcurrency, "max-concurrency", 0, "crawl fan-out (default 3)")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "link scope: subpages, hostname, or domain")
	cmd.Flags().StringSliceVar(&opts.includePatterns, "include", nil, "glob or /regex/ patterns to include")
	cmd.Flags().StringSliceVar(&opts.excludePatterns, "exclude", nil, "glob or /regex/ patterns to exclude (wins over include)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "treat the source as a local folder instead of a URL")

	return cmd
}

func runIndex(cmd *cobra.Command, library, source string, opts indexOptions) error {
	var sc scraper.Scraper
	if opts.local {
		sc = scraper.NewLocalFileScraper()
	}

	app, err := newApp(configPath, sc)
	if err != nil {
		return err
	}
	defer warnClose("app", app.Close())

	ctx := cmd.Context()
	if err := app.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline manager: %w", err)
	}

	scraperOptions := map[string]any{"url": source}
	if opts.maxPages > 0 {
		scraperOptions["maxPages"] = float64(opts.maxPages)
	}
	if opts.maxDepth > 0 {
		scraperOptions["maxDepth"] = float64(opts.maxDepth)
	}
	if opts.maxConcurrency > 0 {
		scraperOptions["maxConcurrency"] = float64(opts.maxConcurrency)
	}
	if opts.scope != "" {
		scraperOptions["scope"] = opts.scope
	}
	if len(opts.includePatterns) > 0 {
		scraperOptions["includePatterns"] = toAnySlice(opts.includePatterns)
	}
	if len(opts.excludePatterns) > 0 {
		scraperOptions["excludePatterns"] = toAnySlice(opts.excludePatterns)
	}

	jobID, err := app.manager.EnqueueJob(ctx, library, opts.version, scraperOptions)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	app.manager.SetCallbacks(progressCallbacks(cmd))

	fmt.Fprintf(cmd.OutOrStdout(), "enqueued job %s for %s@%s\n", jobID, library, displayVersion(opts.version))
	if err := app.manager.WaitForJobCompletion(ctx, jobID); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	job, _ := app.manager.GetJob(jobID)
	fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", job.Status())
	return nil
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func displayVersion(v string) string {
	if v == "" {
		return "unversioned"
	}
	return v
}
