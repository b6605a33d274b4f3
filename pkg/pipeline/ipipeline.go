package pipeline

import "context"

// IPipeline is the capability set both a local Manager and a remote proxy
// implement: callers depend on this interface and pick the concrete
// implementation by whether a server URL is configured, so "index this
// library" code is identical whether the Manager lives in-process or
// across an RPC boundary.
type IPipeline interface {
	Start(ctx context.Context) error
	Stop()
	EnqueueJob(ctx context.Context, library, version string, scraperOptions map[string]any) (string, error)
	EnqueueJobWithStoredOptions(ctx context.Context, library, version string) (string, error)
	GetJob(id string) (JobView, bool)
	GetJobs(status *JobStatus) []JobView
	CancelJob(ctx context.Context, id string) error
	ClearCompletedJobs() int
	WaitForJobCompletion(ctx context.Context, id string) error
}

// Local adapts a *Manager to IPipeline by snapshotting its rich *Job
// values into JobViews at the boundary. SetCallbacks is intentionally
// left off IPipeline: the remote client is polling-based and carries no
// live progress callbacks, so only Local exposes it.
type Local struct {
	Manager *Manager
}

// NewLocal wraps m as an IPipeline.
func NewLocal(m *Manager) *Local {
	return &Local{Manager: m}
}

func (l *Local) Start(ctx context.Context) error { return l.Manager.Start(ctx) }
func (l *Local) Stop()                           { l.Manager.Stop() }

func (l *Local) EnqueueJob(ctx context.Context, library, version string, scraperOptions map[string]any) (string, error) {
	return l.Manager.EnqueueJob(ctx, library, version, scraperOptions)
}

func (l *Local) EnqueueJobWithStoredOptions(ctx context.Context, library, version string) (string, error) {
	return l.Manager.EnqueueJobWithStoredOptions(ctx, library, version)
}

func (l *Local) GetJob(id string) (JobView, bool) {
	job, ok := l.Manager.GetJob(id)
	if !ok {
		return JobView{}, false
	}
	return job.View(), true
}

func (l *Local) GetJobs(status *JobStatus) []JobView {
	jobs := l.Manager.GetJobs(status)
	views := make([]JobView, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	return views
}

func (l *Local) CancelJob(ctx context.Context, id string) error {
	return l.Manager.CancelJob(ctx, id)
}

func (l *Local) ClearCompletedJobs() int { return l.Manager.ClearCompletedJobs() }

func (l *Local) WaitForJobCompletion(ctx context.Context, id string) error {
	return l.Manager.WaitForJobCompletion(ctx, id)
}

// SetCallbacks delegates to the wrapped Manager; it is not part of
// IPipeline (see the Local doc comment) but remains available to callers
// that have a concrete *Local rather than the interface.
func (l *Local) SetCallbacks(cb Callbacks) { l.Manager.SetCallbacks(cb) }

var _ IPipeline = (*Local)(nil)
