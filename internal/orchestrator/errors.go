package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrJobTimeout marks a poll loop that exhausted its attempt budget while
	// the remote job was still pending.
	ErrJobTimeout = errors.New("job polling timed out")
	// ErrJobFailed marks a job the upstream explicitly reported as failed.
	ErrJobFailed = errors.New("job failed upstream")
)

// JobTimeoutError carries the attempt count for operator visibility.
type JobTimeoutError struct {
	Attempts int
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job still pending after %d poll attempts", e.Attempts)
}

func (e *JobTimeoutError) Is(target error) bool {
	return target == ErrJobTimeout
}

// JobFailedError carries the upstream-provided failure message.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return "job failed upstream"
	}
	return "job failed upstream: " + e.Message
}

func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}
