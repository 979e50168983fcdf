package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/godseye3002/godseye/internal/upstream"
)

// Poller watches a remote job until it reaches a terminal state. Poll
// attempts within one Poll call are strictly sequential: a new request is
// never issued before the previous one resolves. The loop is always
// bounded: it stops at MaxAttempts with a timeout failure rather than polling
// forever.
type Poller struct {
	api         upstream.AnalyzerAPI
	interval    time.Duration
	maxAttempts int
	allowDebug  bool
}

// NewPoller creates a Poller. allowDebug controls whether the debug any-text
// response shape is accepted when normalizing completed payloads.
func NewPoller(api upstream.AnalyzerAPI, interval time.Duration, maxAttempts int, allowDebug bool) *Poller {
	return &Poller{
		api:         api,
		interval:    interval,
		maxAttempts: maxAttempts,
		allowDebug:  allowDebug,
	}
}

// Poll polls the job-result endpoint until the job completes, fails, or the
// attempt budget runs out. Each response is classified by its explicit status
// field; the endpoint returns HTTP 200 for all states. When the job-result
// endpoint fails, one attempt is made against the entity-scoped status route,
// which older analyzer deployments expose instead; once that route answers,
// later attempts stay on it. Completed payloads are shape-validated and
// normalized before being returned. Cancelling ctx stops the loop at the next
// suspension point without leaking the timer.
func (p *Poller) Poll(ctx context.Context, remoteID, productID string) (upstream.Result, error) {
	useEntityStatus := false
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		var status upstream.JobStatus
		var err error
		if useEntityStatus {
			status, err = p.api.EntityStatus(ctx, productID)
		} else {
			status, err = p.api.JobResult(ctx, remoteID)
			if err != nil && ctx.Err() == nil {
				if fallback, ferr := p.api.EntityStatus(ctx, productID); ferr == nil {
					slog.Info("job-result endpoint unavailable, polling entity status",
						"remote_id", remoteID, "product_id", productID)
					status, err = fallback, nil
					useEntityStatus = true
				}
			}
		}
		if err != nil {
			return upstream.Result{}, err
		}

		switch status.Status {
		case upstream.JobCompleted:
			return upstream.Normalize(status.Payload, p.allowDebug)
		case upstream.JobFailed:
			return upstream.Result{}, &JobFailedError{Message: status.ErrorMessage}
		}

		if attempt == p.maxAttempts {
			break
		}
		if err := p.wait(ctx); err != nil {
			return upstream.Result{}, err
		}
	}
	return upstream.Result{}, &JobTimeoutError{Attempts: p.maxAttempts}
}

func (p *Poller) wait(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
