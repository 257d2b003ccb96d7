package rest

import (
	"context"
	"fmt"
	"time"
)

// Job states reported by the engine
const (
	JobStateCompleted = "COMPLETED"
	JobStateFailed    = "FAILED"
	JobStateCanceled  = "CANCELED"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 300 * time.Second
)

// JobPoller submits statements and waits for their jobs to finish.
type JobPoller struct {
	client       *Client
	pollInterval time.Duration
	maxWait      time.Duration
	resultLimit  int
}

// NewJobPoller creates a poller; zero durations and limits take the defaults.
func NewJobPoller(client *Client, pollInterval, maxWait time.Duration, resultLimit int) *JobPoller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if resultLimit <= 0 {
		resultLimit = DefaultResultLimit
	}
	return &JobPoller{
		client:       client,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		resultLimit:  resultLimit,
	}
}

// ExecuteAndWait submits sql, waits for completion and fetches the first page of results
func (p *JobPoller) ExecuteAndWait(ctx context.Context, sql string) (*JobResults, error) {
	jobID, err := p.client.SubmitSQL(ctx, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to submit statement: %w", err)
	}

	status, err := p.waitForCompletion(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status.JobState != JobStateCompleted {
		message := status.ErrorMessage
		if message == "" {
			message = "unknown error"
		}
		return nil, fmt.Errorf("job %s %s: %s", jobID, status.JobState, message)
	}

	return p.client.GetJobResults(ctx, jobID, p.resultLimit, 0)
}

// waitForCompletion polls until the job reaches a terminal state
func (p *JobPoller) waitForCompletion(ctx context.Context, jobID string) (*JobStatus, error) {
	deadline := time.Now().Add(p.maxWait)

	for {
		status, err := p.client.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to get job status: %w", err)
		}

		switch status.JobState {
		case JobStateCompleted, JobStateFailed, JobStateCanceled:
			return status, nil
		}

		if time.Now().Add(p.pollInterval).After(deadline) {
			return nil, fmt.Errorf("job %s did not complete within %s: %w", jobID, p.maxWait, context.DeadlineExceeded)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}
