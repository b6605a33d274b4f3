// Package pipeline schedules and runs document-indexing Jobs against a
// Scraper and a Store: a fixed-concurrency queue with a durable state
// mirror in the Store's version rows, so a crash mid-job is recoverable
// from what was already persisted.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/docindex/docindex/pkg/scraper"
)

// JobStatus is a Job's lifecycle state.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobRunning    JobStatus = "running"
	JobCancelling JobStatus = "cancelling"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether a Job in this status will never transition
// again without an explicit retry (requeue).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one scheduled or in-flight indexing run for a (library, version).
// Exported fields are read-only snapshots for callers; mutation happens
// only on the Manager's control path, guarded by Job.mu.
type Job struct {
	ID        string
	Library   string
	Version   string
	SourceURL string

	libraryID int64
	versionID int64
	// Options carries the caller-supplied scraper options verbatim,
	// including "url" when the caller passed it. The Worker builds the
	// scrape call's URL, library, and version from the Job's own fields.
	Options map[string]any

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	mu       sync.Mutex
	status   JobStatus
	progress scraper.Progress
	err      error

	// ctx/cancel bound one run's cooperative cancellation: CancelJob on a
	// RUNNING job calls cancel with a CancellationError cause, and the
	// Worker observes ctx.Done() between scrape callbacks.
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Status returns the Job's current status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the most recently reported scrape progress.
func (j *Job) Progress() scraper.Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Err returns the terminal error: the failure for a FAILED job, a
// CancellationError for a CANCELLED job, nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) setProgress(p scraper.Progress) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

// View returns a serializable snapshot of the Job, suitable for JSON
// encoding over an RPC boundary. Unlike *Job itself, a JobView carries no
// control-path state (mutex, cancellation token, completion channel) and
// is safe to pass across a process boundary.
type JobView struct {
	ID         string
	Library    string
	Version    string
	SourceURL  string
	Status     JobStatus
	Progress   scraper.Progress
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// View snapshots j into a JobView.
func (j *Job) View() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	errMsg := ""
	if j.err != nil {
		errMsg = j.err.Error()
	}
	return JobView{
		ID:         j.ID,
		Library:    j.Library,
		Version:    j.Version,
		SourceURL:  j.SourceURL,
		Status:     j.status,
		Progress:   j.progress,
		Error:      errMsg,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Callbacks lets a caller observe a Manager's job lifecycle. Every field is
// optional; a nil callback is simply skipped. These are delegates in a
// composed chain: the Manager's own store write-through always runs
// first, regardless of whether callbacks are set.
type Callbacks struct {
	OnJobProgress     func(job *Job, progress scraper.Progress)
	OnJobStatusChange func(job *Job, status JobStatus)
	OnJobError        func(job *Job, err error, doc *scraper.Document)
}
