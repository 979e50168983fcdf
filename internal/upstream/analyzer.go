package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Job statuses reported by the analyzer's job-result endpoint. The endpoint
// returns HTTP 200 for all three, so classification must read the status
// field, never the HTTP status.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobStatus is one observation of a remote job.
type JobStatus struct {
	Status       string
	Payload      json.RawMessage
	ErrorMessage string
}

// AnalyzerAPI is the job-mode upstream surface consumed by the orchestrator.
type AnalyzerAPI interface {
	// Process starts a remote analysis job and returns its opaque id.
	Process(ctx context.Context, productID, source string) (string, error)
	// JobResult fetches the current state of a remote job.
	JobResult(ctx context.Context, jobID string) (JobStatus, error)
	// EntityStatus fetches the entity-scoped status. Older analyzer
	// deployments expose only this route.
	EntityStatus(ctx context.Context, productID string) (JobStatus, error)
}

// AnalyzerClient implements AnalyzerAPI against the analyzer's HTTP API.
type AnalyzerClient struct {
	baseURL string
	client  *Client
}

// NewAnalyzerClient creates an AnalyzerClient for baseURL using the given
// retrying client.
func NewAnalyzerClient(baseURL string, client *Client) *AnalyzerClient {
	return &AnalyzerClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Process submits a job via POST {base}/process. A response without a jobId
// is a hard ErrInvalidShape failure: job mode is a configuration property of
// this upstream, never inferred from what came back.
func (c *AnalyzerClient) Process(ctx context.Context, productID, source string) (string, error) {
	payload := map[string]string{
		"entityId": productID,
		"source":   source,
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := c.client.PostJSON(ctx, c.baseURL+"/process", payload, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("%w: process response missing jobId", ErrInvalidShape)
	}
	return resp.JobID, nil
}

// JobResult fetches GET {base}/job-result/{jobId} and classifies the response
// by its explicit status field.
func (c *AnalyzerClient) JobResult(ctx context.Context, jobID string) (JobStatus, error) {
	var raw json.RawMessage
	if err := c.client.GetJSON(ctx, c.baseURL+"/job-result/"+jobID, &raw); err != nil {
		return JobStatus{}, err
	}

	var resp struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return JobStatus{}, fmt.Errorf("%w: decoding job result: %v", ErrInvalidShape, err)
	}

	switch resp.Status {
	case JobPending, JobCompleted, JobFailed:
	default:
		return JobStatus{}, fmt.Errorf("%w: job result has unknown status %q", ErrInvalidShape, resp.Status)
	}

	return JobStatus{
		Status:       resp.Status,
		Payload:      raw,
		ErrorMessage: resp.ErrorMessage,
	}, nil
}

// EntityStatus fetches the analyzer's entity-scoped status via
// POST {base}/status. Older deployments expose only this endpoint; the
// response carries the same status field and optional payload.
func (c *AnalyzerClient) EntityStatus(ctx context.Context, productID string) (JobStatus, error) {
	payload := map[string]string{"entityId": productID}
	var raw json.RawMessage
	if err := c.client.PostJSON(ctx, c.baseURL+"/status", payload, &raw); err != nil {
		return JobStatus{}, err
	}

	var resp struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return JobStatus{}, fmt.Errorf("%w: decoding status response: %v", ErrInvalidShape, err)
	}
	if resp.Status == "" {
		return JobStatus{}, fmt.Errorf("%w: status response missing status field", ErrInvalidShape)
	}

	return JobStatus{
		Status:       resp.Status,
		Payload:      raw,
		ErrorMessage: resp.ErrorMessage,
	}, nil
}

// Compile-time check that AnalyzerClient implements AnalyzerAPI.
var _ AnalyzerAPI = (*AnalyzerClient)(nil)
