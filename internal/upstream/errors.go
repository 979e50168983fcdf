package upstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for upstream failures.
var (
	// ErrUpstreamUnavailable marks transient failures (cold-start 502s,
	// network errors) that survived the whole retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidShape marks responses missing required fields. Never retried:
	// it signals an API contract break, not a transient fault.
	ErrInvalidShape = errors.New("upstream response has invalid shape")
	// ErrTimeout marks a single request exceeding its network timeout.
	ErrTimeout = errors.New("upstream request timeout")
)

// UpstreamError carries the last observed status and body after the retry
// budget is exhausted.
type UpstreamError struct {
	StatusCode int
	Body       string
	Attempts   int
	cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream unavailable after %d attempts: status %d: %s",
			e.Attempts, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("upstream unavailable after %d attempts: %v", e.Attempts, e.cause)
}

func (e *UpstreamError) Unwrap() error {
	return e.cause
}

// Is reports ErrUpstreamUnavailable so callers can match the sentinel
// regardless of the underlying cause.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
