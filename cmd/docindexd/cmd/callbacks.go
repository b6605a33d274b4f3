package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docindex/docindex/pkg/pipeline"
	"github.com/docindex/docindex/pkg/scraper"
)

// progressCallbacks prints one line per page visited and one line per
// per-document storage error. A failed document does not stop the run,
// but it is surfaced.
func progressCallbacks(cmd *cobra.Command) pipeline.Callbacks {
	out := cmd.OutOrStdout()
	return pipeline.Callbacks{
		OnJobProgress: func(job *pipeline.Job, p scraper.Progress) {
			fmt.Fprintf(out, "[%s] page %d/%d: %s\n", job.ID, p.PagesScraped, p.TotalPages, p.CurrentURL)
		},
		OnJobError: func(job *pipeline.Job, err error, doc *scraper.Document) {
			url := ""
			if doc != nil {
				url = doc.Metadata.URL
			}
			fmt.Fprintf(out, "[%s] failed to store %s: %v\n", job.ID, url, err)
		},
	}
}
