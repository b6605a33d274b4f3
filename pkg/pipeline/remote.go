package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/docindex/docindex/internal/errors"
)

// pollInterval is how often WaitForJobCompletion polls getJob: remote
// clients have no completion signal, so they emulate it at 1 Hz.
const pollInterval = time.Second

// RemoteClient is an IPipeline backed by an RPC-fronted Manager running in
// another process. It depends only on the procedure contract
// (enqueueJob/getJob/getJobs/cancelJob/clearCompletedJobs/ping), spoken as
// plain JSON-over-HTTP POST to a path named after each procedure.
type RemoteClient struct {
	BaseURL string
	HTTP    *http.Client

	waitingMu sync.Mutex
	waiting   map[string]bool
}

// NewRemoteClient returns a RemoteClient targeting baseURL (e.g.
// "http://localhost:8765").
func NewRemoteClient(baseURL string) *RemoteClient {
	return &RemoteClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		waiting: make(map[string]bool),
	}
}

// Ping calls the root-level health probe.
func (c *RemoteClient) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// Start verifies the remote manager is reachable. The remote process owns
// its own lifecycle; this never starts or recovers anything over the wire.
func (c *RemoteClient) Start(ctx context.Context) error {
	return c.Ping(ctx)
}

// Stop is a no-op: stopping the remote process is its operator's decision,
// not a client's.
func (c *RemoteClient) Stop() {}

func (c *RemoteClient) EnqueueJob(ctx context.Context, library, version string, scraperOptions map[string]any) (string, error) {
	req := map[string]any{"library": library, "version": version, "options": scraperOptions}
	resp, err := c.call(ctx, "enqueueJob", req)
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", errors.ConnectionError("malformed enqueueJob response", err)
	}
	return out.JobID, nil
}

func (c *RemoteClient) EnqueueJobWithStoredOptions(ctx context.Context, library, version string) (string, error) {
	req := map[string]any{"library": library, "version": version}
	resp, err := c.call(ctx, "enqueueJobWithStoredOptions", req)
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", errors.ConnectionError("malformed enqueueJob response", err)
	}
	return out.JobID, nil
}

func (c *RemoteClient) GetJob(id string) (JobView, bool) {
	resp, err := c.call(context.Background(), "getJob", map[string]any{"id": id})
	if err != nil {
		return JobView{}, false
	}
	var view JobView
	if err := json.Unmarshal(resp, &view); err != nil {
		return JobView{}, false
	}
	return view, true
}

func (c *RemoteClient) GetJobs(status *JobStatus) []JobView {
	req := map[string]any{}
	if status != nil {
		req["status"] = *status
	}
	resp, err := c.call(context.Background(), "getJobs", req)
	if err != nil {
		return nil
	}
	var out struct {
		Jobs []JobView `json:"jobs"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil
	}
	return out.Jobs
}

func (c *RemoteClient) CancelJob(ctx context.Context, id string) error {
	resp, err := c.call(ctx, "cancelJob", map[string]any{"id": id})
	if err != nil {
		return err
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp, &out); err == nil && !out.Success {
		return errors.StateError("remote cancelJob reported failure", nil)
	}
	return nil
}

func (c *RemoteClient) ClearCompletedJobs() int {
	resp, err := c.call(context.Background(), "clearCompletedJobs", nil)
	if err != nil {
		return 0
	}
	var out struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(resp, &out)
	return out.Count
}

// WaitForJobCompletion polls getJob at pollInterval until the job reaches a
// terminal status. A second concurrent wait on the same jobId is rejected
// rather than allowed to pile up polling goroutines.
func (c *RemoteClient) WaitForJobCompletion(ctx context.Context, id string) error {
	c.waitingMu.Lock()
	if c.waiting[id] {
		c.waitingMu.Unlock()
		return errors.StateError("Already waiting for completion", nil)
	}
	c.waiting[id] = true
	c.waitingMu.Unlock()
	defer func() {
		c.waitingMu.Lock()
		delete(c.waiting, id)
		c.waitingMu.Unlock()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		view, ok := c.GetJob(id)
		if !ok {
			return errors.NotFoundError("job not found", nil)
		}
		if view.Status.IsTerminal() {
			if view.Status == JobFailed {
				return errors.New("FAILED", view.Error, nil)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *RemoteClient) call(ctx context.Context, procedure string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.InternalError("failed to encode rpc request", err)
	}
	url := fmt.Sprintf("%s/%s", c.BaseURL, procedure)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.ConnectionError("failed to build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("rpc call failed: "+procedure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ConnectionError("failed to read rpc response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errors.ConnectionError(fmt.Sprintf("rpc call %s returned status %d: %s", procedure, resp.StatusCode, string(data)), nil)
	}
	return data, nil
}

var _ IPipeline = (*RemoteClient)(nil)
