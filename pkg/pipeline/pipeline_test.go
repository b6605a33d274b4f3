package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docindex/docindex/pkg/embedding"
	"github.com/docindex/docindex/pkg/scraper"
	"github.com/docindex/docindex/pkg/store"
)

// fakeScraper replays a fixed sequence of progress events, optionally
// blocking before each one so a test can exercise cancellation mid-scrape.
type fakeScraper struct {
	mu       sync.Mutex
	progress []scraper.Progress
	gate     chan struct{} // closed to release a blocked Scrape call
	err      error
}

func (f *fakeScraper) Scrape(ctx context.Context, opts scraper.Options, onProgress scraper.ProgressFunc) error {
	for _, p := range f.progress {
		if f.gate != nil {
			select {
			case <-f.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := onProgress(p); err != nil {
			return err
		}
	}
	return f.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = ""
	s, err := store.Open(cfg, embedding.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitForStatus(t *testing.T, job *Job, want JobStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if job.Status() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached status %s, last was %s", job.ID, want, job.Status())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestManager_EnqueueJobRunsToCompletion(t *testing.T) {
	s := newTestStore(t)
	sc := &fakeScraper{progress: []scraper.Progress{
		{PagesScraped: 1, TotalPages: 2, Document: &scraper.Document{
			Content: "hello world", Metadata: scraper.DocumentMetadata{URL: "https://example.com/a", Title: "A"}}},
		{PagesScraped: 2, TotalPages: 2, Document: &scraper.Document{
			Content: "second page", Metadata: scraper.DocumentMetadata{URL: "https://example.com/b", Title: "B"}}},
	}}
	m := NewManager(s, sc, 1, false)
	require.NoError(t, m.Start(context.Background()))

	id, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	err = m.WaitForJobCompletion(context.Background(), id)
	require.NoError(t, err)

	job, ok := m.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, job.Status())

	exists, err := s.CheckDocumentExists(context.Background(), "lib", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestManager_FailedScrapeMarksJobFailedAndPersistsError(t *testing.T) {
	s := newTestStore(t)
	sc := &fakeScraper{err: assert.AnError}
	m := NewManager(s, sc, 1, false)
	require.NoError(t, m.Start(context.Background()))

	id, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)

	err = m.WaitForJobCompletion(context.Background(), id)
	require.Error(t, err)

	job, _ := m.GetJob(id)
	assert.Equal(t, JobFailed, job.Status())

	_, versionID, rerr := s.ResolveIds(context.Background(), "lib", "")
	require.NoError(t, rerr)
	versions, err := s.GetVersionsByStatus(context.Background(), []store.VersionStatus{store.StatusFailed})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, versionID, versions[0].ID)
	assert.NotEmpty(t, versions[0].ErrorMessage)
}

func TestManager_CancelQueuedJobResolvesImmediately(t *testing.T) {
	s := newTestStore(t)
	blocker := &fakeScraper{gate: make(chan struct{}), progress: []scraper.Progress{{PagesScraped: 1, TotalPages: 1}}}
	m := NewManager(s, blocker, 1, false)
	require.NoError(t, m.Start(context.Background()))

	// Occupy the single worker slot so the second job stays QUEUED.
	firstID, err := m.EnqueueJob(context.Background(), "lib", "1", map[string]any{"url": "https://a"})
	require.NoError(t, err)
	waitForStatus(t, mustJob(t, m, firstID), JobRunning, time.Second)

	secondID, err := m.EnqueueJob(context.Background(), "lib", "2", map[string]any{"url": "https://b"})
	require.NoError(t, err)
	second := mustJob(t, m, secondID)
	require.Equal(t, JobQueued, second.Status())

	require.NoError(t, m.CancelJob(context.Background(), secondID))
	assert.Equal(t, JobCancelled, second.Status())

	err = m.WaitForJobCompletion(context.Background(), secondID)
	assert.NoError(t, err, "cancellation is not an error to waitForJobCompletion")

	close(blocker.gate)
	_ = m.WaitForJobCompletion(context.Background(), firstID)
}

func TestManager_CancelRunningJobStopsTheScrapeCooperatively(t *testing.T) {
	s := newTestStore(t)
	sc := &fakeScraper{gate: make(chan struct{}), progress: []scraper.Progress{
		{PagesScraped: 1, TotalPages: 10},
	}}
	m := NewManager(s, sc, 1, false)
	require.NoError(t, m.Start(context.Background()))

	id, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	job := mustJob(t, m, id)
	waitForStatus(t, job, JobRunning, time.Second)

	require.NoError(t, m.CancelJob(context.Background(), id))
	assert.Equal(t, JobCancelling, job.Status())

	err = m.WaitForJobCompletion(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, JobCancelled, job.Status())
}

func TestManager_EnqueueJobCancelsPriorJobForSameLibraryVersion(t *testing.T) {
	s := newTestStore(t)
	sc := &fakeScraper{gate: make(chan struct{}), progress: []scraper.Progress{
		{PagesScraped: 1, TotalPages: 10},
	}}
	m := NewManager(s, sc, 2, false)
	require.NoError(t, m.Start(context.Background()))

	firstID, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://a"})
	require.NoError(t, err)
	first := mustJob(t, m, firstID)
	waitForStatus(t, first, JobRunning, time.Second)

	// The fake scraper returns as soon as its context is cancelled, so the
	// first job is CANCELLING only briefly; record its status changes rather
	// than polling for that transient state.
	var statusMu sync.Mutex
	var firstStatuses []JobStatus
	m.SetCallbacks(Callbacks{OnJobStatusChange: func(job *Job, status JobStatus) {
		if job.ID == firstID {
			statusMu.Lock()
			firstStatuses = append(firstStatuses, status)
			statusMu.Unlock()
		}
	}})

	// Enqueuing a second job for the same (library, version) while the
	// first is still RUNNING must cancel it rather than run both at once.
	secondDone := make(chan string, 1)
	go func() {
		id, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://a-v2"})
		require.NoError(t, err)
		secondDone <- id
	}()

	waitForStatus(t, first, JobCancelled, 2*time.Second)
	close(sc.gate)

	var secondID string
	select {
	case secondID = <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueueJob never returned")
	}
	assert.NotEqual(t, firstID, secondID)

	require.NoError(t, m.WaitForJobCompletion(context.Background(), firstID))
	assert.Equal(t, JobCancelled, first.Status())

	statusMu.Lock()
	defer statusMu.Unlock()
	assert.Equal(t, []JobStatus{JobCancelling, JobCancelled}, firstStatuses)
}

func TestManager_RecoverPendingJobsRequeuesInterruptedVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, versionID, err := s.ResolveIds(ctx, "lib", "")
	require.NoError(t, err)
	require.NoError(t, s.UpdateVersionStatus(ctx, versionID, store.StatusRunning, ""))
	require.NoError(t, s.StoreScraperOptions(ctx, versionID, "https://example.com", map[string]any{"maxPages": float64(5)}))

	sc := &fakeScraper{}
	m := NewManager(s, sc, 1, true)
	require.NoError(t, m.Start(ctx))

	jobs := m.GetJobs(nil)
	require.Len(t, jobs, 1)
	assert.Equal(t, "lib", jobs[0].Library)
	assert.Equal(t, "https://example.com", jobs[0].SourceURL)

	require.NoError(t, m.WaitForJobCompletion(ctx, jobs[0].ID))
	assert.Equal(t, JobCompleted, jobs[0].Status())
}

func TestManager_EnqueueJobWithStoredOptionsFailsWithoutSourceURL(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s, &fakeScraper{}, 1, false)
	require.NoError(t, m.Start(context.Background()))

	_, err := m.EnqueueJobWithStoredOptions(context.Background(), "unknown-lib", "")
	assert.Error(t, err)
}

func TestManager_ClearCompletedJobsOnlyPurgesTerminalJobs(t *testing.T) {
	s := newTestStore(t)
	sc := &fakeScraper{}
	m := NewManager(s, sc, 1, false)
	require.NoError(t, m.Start(context.Background()))

	id, err := m.EnqueueJob(context.Background(), "lib", "", map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	require.NoError(t, m.WaitForJobCompletion(context.Background(), id))

	purged := m.ClearCompletedJobs()
	assert.Equal(t, 1, purged)
	_, ok := m.GetJob(id)
	assert.False(t, ok)
}

func mustJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	j, ok := m.GetJob(id)
	require.True(t, ok)
	return j
}
