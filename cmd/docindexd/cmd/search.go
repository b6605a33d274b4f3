package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type searchOptions struct {
	version string
	limit   int
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <library> <query>",
		Short: "Hybrid search (vector + full-text) over an indexed library",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			library := args[0]
			query := args[1]
			for _, extra := range args[2:] {
				query += " " + extra
			}
			return runSearch(cmd, library, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "version to search (empty/latest resolves via findBestVersion)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "maximum results")

	return cmd
}

func runSearch(cmd *cobra.Command, library, query string, opts searchOptions) error {
	app, err := newApp(configPath, nil)
	if err != nil {
		return err
	}
	defer warnClose("app", app.Close())

	ctx := cmd.Context()

	if err := app.catalog.ValidateLibraryExists(ctx, library); err != nil {
		return err
	}

	version := opts.version
	if version == "" || version == "latest" {
		best, hasUnversioned, err := app.catalog.FindBestVersion(ctx, library, opts.version)
		if err != nil {
			return err
		}
		switch {
		case best != nil:
			version = *best
		case hasUnversioned:
			version = ""
		}
	}

	results, err := app.retriever.Search(ctx, library, version, query, opts.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%d. %s (score %.4f)\n%s\n\n", i+1, r.URL, r.Score, r.Content)
	}
	return nil
}
