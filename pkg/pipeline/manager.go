package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docindex/docindex/internal/errors"
	"github.com/docindex/docindex/pkg/scraper"
	"github.com/docindex/docindex/pkg/store"
)

// DefaultConcurrency is the number of Jobs the Manager runs at once.
const DefaultConcurrency = 3

// Manager is the single-process scheduler for indexing Jobs: a FIFO queue
// drained by a fixed-size worker pool, with every status and progress
// change written through to the Store so a restart can recover in-flight
// work from durable state.
type Manager struct {
	store       *store.Store
	worker      *Worker
	concurrency int
	recover     bool

	mu            sync.Mutex
	jobs          map[string]*Job
	queue         []string
	activeWorkers int
	started       bool
	stopped       bool
	rootCtx       context.Context
	rootCancel    context.CancelFunc

	callbacksMu sync.RWMutex
	callbacks   Callbacks
}

// NewManager returns a Manager bound to store and scraper. concurrency<=0
// falls back to DefaultConcurrency. recoveryEnabled controls whether
// Start() calls recoverPendingJobs.
func NewManager(s *store.Store, sc scraper.Scraper, concurrency int, recoveryEnabled bool) *Manager {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Manager{
		store:       s,
		worker:      NewWorker(s, sc),
		concurrency: concurrency,
		recover:     recoveryEnabled,
		jobs:        make(map[string]*Job),
	}
}

// SetCallbacks installs the observer for job progress, status changes, and
// per-document errors. Safe to call at any time, including while jobs are
// running.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.callbacksMu.Lock()
	m.callbacks = cb
	m.callbacksMu.Unlock()
}

func (m *Manager) callbacksSnapshot() Callbacks {
	m.callbacksMu.RLock()
	defer m.callbacksMu.RUnlock()
	return m.callbacks
}

// Start is idempotent. On first call it recovers interrupted/queued jobs
// from the Store (if recovery is enabled) and begins draining the queue.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.stopped = false
	m.rootCtx, m.rootCancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.recover {
		if err := m.recoverPendingJobs(ctx); err != nil {
			return err
		}
	}
	m.processQueue()
	return nil
}

// Stop stops pulling new jobs from the queue. Jobs already running are left
// to finish; it does not cancel them.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// Shutdown stops pulling new jobs and cancels every job context derived
// from the Manager's root context, including ones already RUNNING. Unlike
// Stop, this is not part of the documented scheduling contract; it exists
// for process-exit cleanup.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	cancel := m.rootCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// EnqueueJob normalizes version, cancels any existing job for the same
// (library, version) in {QUEUED, RUNNING}, creates a fresh Job, writes its
// QUEUED status and options through to the Store, and appends it to the
// FIFO queue.
func (m *Manager) EnqueueJob(ctx context.Context, library, version string, scraperOptions map[string]any) (string, error) {
	library = strings.ToLower(strings.TrimSpace(library))
	version = strings.ToLower(strings.TrimSpace(version))
	if version == "unversioned" {
		version = ""
	}

	m.cancelExistingAndWait(ctx, library, version)

	libraryID, versionID, err := m.store.ResolveIds(ctx, library, version)
	if err != nil {
		return "", err
	}

	sourceURL, _ := scraperOptions["url"].(string)

	jobCtx, cancel := context.WithCancelCause(m.rootContext())
	job := &Job{
		ID:        uuid.NewString(),
		Library:   library,
		Version:   version,
		SourceURL: sourceURL,
		Options:   scraperOptions,
		CreatedAt: m.now(),
		libraryID: libraryID,
		versionID: versionID,
		ctx:       jobCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	job.setStatus(JobQueued)

	if err := m.store.UpdateVersionStatus(ctx, versionID, store.StatusQueued, ""); err != nil {
		slog.Warn("failed to write through queued status", "job", job.ID, "error", err)
	}
	if scraperOptions != nil {
		if err := m.store.StoreScraperOptions(ctx, versionID, sourceURL, scraperOptions); err != nil {
			slog.Warn("failed to persist scraper options", "job", job.ID, "error", err)
		}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.queue = append(m.queue, job.ID)
	m.mu.Unlock()

	m.processQueue()
	return job.ID, nil
}

// EnqueueJobWithStoredOptions reconstructs scraper options from the
// version's last persisted run and delegates to EnqueueJob. It fails with
// NotFound if no source URL was ever stored for (library, version).
func (m *Manager) EnqueueJobWithStoredOptions(ctx context.Context, library, version string) (string, error) {
	_, versionID, err := m.store.ResolveIds(ctx, library, version)
	if err != nil {
		return "", err
	}
	record, err := m.store.GetScraperOptions(ctx, versionID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", errors.NotFoundError("no stored scraper options for this library version", nil)
	}

	options := decodeOptions(record.Options)
	options["url"] = record.SourceURL
	return m.EnqueueJob(ctx, library, version, options)
}

// GetJob returns a Job by id.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// GetJobs returns every Job, optionally filtered to a single status.
func (m *Manager) GetJobs(status *JobStatus) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if status == nil || j.Status() == *status {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// CancelJob cancels a Job. QUEUED jobs are removed and transitioned
// synchronously; RUNNING jobs are marked CANCELLING and their cancellation
// token is set, and the Worker observes it cooperatively. Terminal jobs are
// a no-op.
func (m *Manager) CancelJob(ctx context.Context, id string) error {
	job, ok := m.GetJob(id)
	if !ok {
		return errors.NotFoundError("job not found", nil)
	}

	switch job.Status() {
	case JobQueued:
		m.mu.Lock()
		m.removeFromQueueLocked(id)
		m.mu.Unlock()
		m.finish(ctx, job, JobCancelled, errors.CancellationError("job cancelled while queued"))
	case JobRunning:
		m.transition(ctx, job, JobCancelling, "")
		job.cancel(errors.CancellationError("job cancelled"))
	default:
		slog.Warn("cancelJob called on a terminal job", "job", id, "status", job.Status())
	}
	return nil
}

// ClearCompletedJobs removes every Job in a terminal state from the
// in-memory map and returns how many were purged.
func (m *Manager) ClearCompletedJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for id, j := range m.jobs {
		if j.Status().IsTerminal() {
			delete(m.jobs, id)
			purged++
		}
	}
	return purged
}

// WaitForJobCompletion blocks until the Job reaches a terminal state. A
// CANCELLED outcome returns nil (cancellation is not an error to
// consumers); a FAILED outcome returns the original error.
func (m *Manager) WaitForJobCompletion(ctx context.Context, id string) error {
	job, ok := m.GetJob(id)
	if !ok {
		return errors.NotFoundError("job not found", nil)
	}
	select {
	case <-job.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	err := job.Err()
	if errors.IsCancellation(err) {
		return nil
	}
	return err
}

func (m *Manager) rootContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rootCtx != nil {
		return m.rootCtx
	}
	return context.Background()
}

// now is isolated so tests could inject a clock; production always uses
// wall time.
func (m *Manager) now() time.Time {
	return time.Now()
}

func (m *Manager) cancelExistingAndWait(ctx context.Context, library, version string) {
	m.mu.Lock()
	var existing *Job
	for _, j := range m.jobs {
		if j.Library == library && j.Version == version {
			switch j.Status() {
			case JobQueued, JobRunning:
				existing = j
			}
		}
	}
	m.mu.Unlock()
	if existing == nil {
		return
	}
	_ = m.CancelJob(ctx, existing.ID)
	select {
	case <-existing.done:
	case <-ctx.Done():
	}
}

func (m *Manager) removeFromQueueLocked(id string) {
	filtered := m.queue[:0]
	for _, qid := range m.queue {
		if qid != id {
			filtered = append(filtered, qid)
		}
	}
	m.queue = filtered
}

// recoverPendingJobs requeues interrupted RUNNING versions and materializes
// Jobs for every QUEUED version. It is the only path that
// re-creates Jobs from durable state.
func (m *Manager) recoverPendingJobs(ctx context.Context) error {
	running, err := m.store.GetVersionsByStatus(ctx, []store.VersionStatus{store.StatusRunning})
	if err != nil {
		return err
	}
	for _, v := range running {
		if err := m.store.UpdateVersionStatus(ctx, v.ID, store.StatusQueued, ""); err != nil {
			slog.Warn("failed to reset interrupted version to queued", "versionId", v.ID, "error", err)
		}
	}

	queued, err := m.store.GetVersionsByStatus(ctx, []store.VersionStatus{store.StatusQueued})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range queued {
		options := decodeOptions(v.ScraperOptions)
		jobCtx, cancel := context.WithCancelCause(m.rootContextLocked())

		job := &Job{
			ID:        uuid.NewString(),
			Library:   v.LibraryName,
			Version:   v.Name,
			SourceURL: v.SourceURL,
			Options:   options,
			CreatedAt: m.now(),
			libraryID: v.LibraryID,
			versionID: v.ID,
			ctx:       jobCtx,
			cancel:    cancel,
			done:      make(chan struct{}),
		}
		job.setStatus(JobQueued)
		m.jobs[job.ID] = job
		m.queue = append(m.queue, job.ID)
	}
	return nil
}

func (m *Manager) rootContextLocked() context.Context {
	if m.rootCtx != nil {
		return m.rootCtx
	}
	return context.Background()
}

func decodeOptions(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var options map[string]any
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		slog.Warn("stored scraper options are not valid JSON, treating as empty", "error", err)
		return map[string]any{}
	}
	return options
}

// processQueue pulls QUEUED jobs off the front of the FIFO queue while a
// worker slot is free, spawning runJob for each (runJob performs the
// transition to RUNNING).
// Fire-and-forget: errors here are logged, never propagated to the
// enqueuer.
func (m *Manager) processQueue() {
	for {
		m.mu.Lock()
		if m.stopped || len(m.queue) == 0 || m.activeWorkers >= m.concurrency {
			m.mu.Unlock()
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		job, ok := m.jobs[id]
		if !ok {
			m.mu.Unlock()
			continue
		}
		m.activeWorkers++
		m.mu.Unlock()

		go m.runJob(job)
	}
}

// runJob drives one Job through the Worker and performs the terminal
// transition.
func (m *Manager) runJob(job *Job) {
	ctx := m.rootContext()
	m.transition(ctx, job, JobRunning, "")
	now := m.now()
	job.mu.Lock()
	job.StartedAt = &now
	job.mu.Unlock()

	err := m.worker.Execute(job.ctx, job, m.composedCallbacks())

	finished := m.now()
	job.mu.Lock()
	job.FinishedAt = &finished
	job.mu.Unlock()

	switch {
	case err == nil:
		m.finish(ctx, job, JobCompleted, nil)
	case errors.IsCancellation(err):
		m.finish(ctx, job, JobCancelled, err)
	default:
		m.finish(ctx, job, JobFailed, err)
	}

	m.mu.Lock()
	m.activeWorkers--
	m.mu.Unlock()
	m.processQueue()
}

func (m *Manager) composedCallbacks() Callbacks {
	return Callbacks{
		OnJobProgress: func(job *Job, p scraper.Progress) {
			if err := m.store.UpdateVersionProgress(context.Background(), job.versionID, p.PagesScraped, p.TotalPages); err != nil {
				slog.Warn("failed to write through progress", "job", job.ID, "error", err)
			}
			if user := m.callbacksSnapshot(); user.OnJobProgress != nil {
				user.OnJobProgress(job, p)
			}
		},
		OnJobError: func(job *Job, err error, doc *scraper.Document) {
			if user := m.callbacksSnapshot(); user.OnJobError != nil {
				user.OnJobError(job, err, doc)
			}
		},
	}
}

// finish performs a Job's single terminal transition: set status, write
// through to the Store, persist the error message for FAILED, record
// finished_at, and resolve the completion signal exactly once.
func (m *Manager) finish(ctx context.Context, job *Job, status JobStatus, err error) {
	job.mu.Lock()
	job.err = err
	job.status = status
	job.mu.Unlock()

	errMessage := ""
	if err != nil && !errors.IsCancellation(err) {
		errMessage = err.Error()
		slog.Error("job failed", append([]any{"job", job.ID}, errors.FormatForLog(err)...)...)
	}
	if werr := m.store.UpdateVersionStatus(ctx, job.versionID, mirrorStatus(status), errMessage); werr != nil {
		slog.Warn("failed to write through terminal status", "job", job.ID, "error", werr)
	}

	cb := m.callbacksSnapshot()
	if cb.OnJobStatusChange != nil {
		cb.OnJobStatusChange(job, status)
	}

	closeOnce(job)
}

// transition performs a non-terminal status change (QUEUED->RUNNING,
// RUNNING->CANCELLING), writing through the mirrored Version status.
func (m *Manager) transition(ctx context.Context, job *Job, status JobStatus, errMessage string) {
	job.setStatus(status)
	if err := m.store.UpdateVersionStatus(ctx, job.versionID, mirrorStatus(status), errMessage); err != nil {
		slog.Warn("failed to write through status transition", "job", job.ID, "status", status, "error", err)
	}
	cb := m.callbacksSnapshot()
	if cb.OnJobStatusChange != nil {
		cb.OnJobStatusChange(job, status)
	}
}

// mirrorStatus maps a Job status onto the Version status mirror;
// CANCELLING stays "running" in the DB until the Job reaches its terminal
// CANCELLED state.
func mirrorStatus(status JobStatus) store.VersionStatus {
	switch status {
	case JobQueued:
		return store.StatusQueued
	case JobRunning, JobCancelling:
		return store.StatusRunning
	case JobCompleted:
		return store.StatusCompleted
	case JobFailed:
		return store.StatusFailed
	case JobCancelled:
		return store.StatusCancelled
	default:
		return store.StatusFailed
	}
}

var closeOnceMu sync.Mutex

func closeOnce(job *Job) {
	closeOnceMu.Lock()
	defer closeOnceMu.Unlock()
	select {
	case <-job.done:
	default:
		close(job.done)
	}
}
