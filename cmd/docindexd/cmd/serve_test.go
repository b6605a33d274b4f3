package cmd

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docindex/docindex/pkg/embedding"
	"github.com/docindex/docindex/pkg/pipeline"
	"github.com/docindex/docindex/pkg/scraper"
	"github.com/docindex/docindex/pkg/store"
)

type fakeCompleteScraper struct{}

func (fakeCompleteScraper) Scrape(ctx context.Context, opts scraper.Options, onProgress scraper.ProgressFunc) error {
	return onProgress(scraper.Progress{PagesScraped: 1, TotalPages: 1})
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = ""
	s, err := store.Open(cfg, embedding.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestRPCHandler_RoundTripsEnqueueAndWait exercises the remote pipeline
// client contract end to end: a RemoteClient talking over real HTTP to the
// handler this process would serve, driving a real in-process Manager.
func TestRPCHandler_RoundTripsEnqueueAndWait(t *testing.T) {
	s := newTestStore(t)
	manager := pipeline.NewManager(s, fakeCompleteScraper{}, 1, false)
	require.NoError(t, manager.Start(context.Background()))

	srv := httptest.NewServer(newRPCHandler(pipeline.NewLocal(manager)))
	defer srv.Close()

	client := pipeline.NewRemoteClient(srv.URL)

	jobID, err := client.EnqueueJob(context.Background(), "react", "18", map[string]any{"url": "https://react.dev"})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.WaitForJobCompletion(ctx, jobID))

	view, ok := client.GetJob(jobID)
	require.True(t, ok)
	require.Equal(t, pipeline.JobCompleted, view.Status)
}

func TestRPCHandler_CancelJob(t *testing.T) {
	s := newTestStore(t)
	manager := pipeline.NewManager(s, fakeCompleteScraper{}, 1, false)
	require.NoError(t, manager.Start(context.Background()))

	srv := httptest.NewServer(newRPCHandler(pipeline.NewLocal(manager)))
	defer srv.Close()

	client := pipeline.NewRemoteClient(srv.URL)

	jobID, err := client.EnqueueJob(context.Background(), "vue", "", map[string]any{"url": "https://vuejs.org"})
	require.NoError(t, err)

	require.NoError(t, client.CancelJob(context.Background(), jobID))
}
