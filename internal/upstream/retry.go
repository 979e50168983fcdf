package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// RetryConfig bounds the retry behavior of a Client.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// total attempt count is MaxRetries+1.
	MaxRetries int
	// BaseDelay seeds the exponential backoff: attempt n sleeps
	// min(BaseDelay<<n, MaxDelay).
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// RetryableStatusCodes lists the HTTP statuses treated as transient
	// (typically 502 from upstream cold starts, 503, 429). Any other non-2xx
	// fails immediately without consuming retry budget.
	RetryableStatusCodes []int
}

// DefaultRetryConfig matches the upstream scraper's observed cold-start
// behavior: a couple of 502s before the service warms up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           2,
		BaseDelay:            500 * time.Millisecond,
		MaxDelay:             8 * time.Second,
		RetryableStatusCodes: []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusTooManyRequests},
	}
}

// Client executes JSON requests against upstream services with bounded
// exponential-backoff retry for transient failures. It is reusable for both
// job submission and direct synchronous calls.
type Client struct {
	http *http.Client
	cfg  RetryConfig
}

// NewClient creates a Client with a per-request network timeout, which is
// independent of any job-level polling timeout enforced by callers.
func NewClient(timeout time.Duration, cfg RetryConfig) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		cfg:  cfg,
	}
}

// PostJSON sends payload as JSON to url, retrying transient failures, and
// decodes the 2xx response body into out.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.execute(ctx, http.MethodPost, url, body, out)
}

// GetJSON fetches url, retrying transient failures, and decodes the 2xx
// response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.execute(ctx, http.MethodGet, url, nil, out)
}

func (c *Client) execute(ctx context.Context, method, url string, body []byte, out any) error {
	var lastStatus int
	var lastBody string
	var lastErr error

	attempts := c.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}

		status, respBody, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			// The caller's context ending is not a transient fault.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Network-level failure (including per-request timeout): retryable.
			lastErr = err
			lastStatus, lastBody = 0, ""
			continue
		}

		if status >= 200 && status < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%w: decoding response: %v", ErrInvalidShape, err)
			}
			return nil
		}

		if !c.retryable(status) {
			return fmt.Errorf("%w: unexpected status %d: %s", ErrInvalidShape, status, truncate(string(respBody), 200))
		}

		lastStatus, lastBody, lastErr = status, string(respBody), nil
	}

	return &UpstreamError{
		StatusCode: lastStatus,
		Body:       lastBody,
		Attempts:   attempts,
		cause:      lastErr,
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, classifyError(err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) retryable(status int) bool {
	for _, code := range c.cfg.RetryableStatusCodes {
		if status == code {
			return true
		}
	}
	return false
}

// sleep blocks for min(BaseDelay<<attempt, MaxDelay) or until ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.cfg.BaseDelay << attempt
	if c.cfg.MaxDelay > 0 && delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
