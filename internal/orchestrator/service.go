package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godseye3002/godseye/internal/analysis"
	"github.com/godseye3002/godseye/internal/cache"
	"github.com/godseye3002/godseye/internal/notify"
	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/internal/upstream"
	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
)

const jobStatusTTL = 30 * time.Minute

// Modes an engine's upstream can run in. The mode is a configuration property
// of the target upstream, never inferred from its responses.
const (
	ModeDirect = "direct"
	ModeJob    = "job"
)

// ServiceStore is the slice of the data store the orchestration service
// writes through.
type ServiceStore interface {
	ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error)
	UpsertAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error)
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error
}

// StartResult is the outcome of a StartAnalysis call. Exactly one of the
// following holds: the stored analysis was already up to date (UpToDate),
// a direct-mode run finished synchronously (Result set), or a job-mode run
// was submitted and is completing in the background (Job still running).
type StartResult struct {
	UpToDate   bool
	HashStatus analysis.HashStatus
	Job        *models.Job
	Result     *upstream.Result
}

// Service orchestrates analysis runs: it gates on the source fingerprint,
// submits work to the configured upstream, and tracks the run's lifecycle.
type Service struct {
	store    ServiceStore
	cache    cache.Cache
	gate     *analysis.Gate
	scraper  *upstream.ScraperClient
	poller   *Poller
	analyzer upstream.AnalyzerAPI
	notifier notify.Notifier
	modes    map[string]string
	location string

	// baseCtx bounds the lifetime of background poll loops; Close cancels it
	// and waits for every loop to exit.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the orchestration service. modes maps engine names to
// ModeDirect or ModeJob; engines not listed default to ModeDirect.
func NewService(
	st ServiceStore,
	ca cache.Cache,
	gate *analysis.Gate,
	scraper *upstream.ScraperClient,
	analyzer upstream.AnalyzerAPI,
	poller *Poller,
	notifier notify.Notifier,
	modes map[string]string,
	location string,
) *Service {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:    st,
		cache:    ca,
		gate:     gate,
		scraper:  scraper,
		analyzer: analyzer,
		poller:   poller,
		notifier: notifier,
		modes:    modes,
		location: location,
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Close stops every background poll loop and blocks until they have exited.
// Jobs still in flight keep their running row; their runs are resubmitted
// after a restart once the stale fingerprint is observed.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// CheckUpToDate reports whether the stored analysis for (productID, engine)
// still matches the current source-record set.
func (s *Service) CheckUpToDate(ctx context.Context, productID uuid.UUID, engine string) analysis.HashStatus {
	return s.gate.CheckUpToDate(ctx, productID, engine)
}

// StartAnalysis begins an analysis run for (productID, engine). When the
// stored analysis is already up to date no work is submitted. Direct-mode
// engines resolve synchronously; job-mode engines return a running job whose
// completion is driven by a background poll loop.
func (s *Service) StartAnalysis(ctx context.Context, tenantID, productID uuid.UUID, engine, query string) (*StartResult, error) {
	status := s.gate.CheckUpToDate(ctx, productID, engine)
	if status.UpToDate {
		return &StartResult{UpToDate: true, HashStatus: status}, nil
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		Engine:    engine,
		Type:      "analysis",
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	s.setCachedStatus(ctx, job.ID, models.JobStatusPending)

	if s.mode(engine) == ModeDirect {
		result, err := s.runDirect(ctx, job, productID, engine, query)
		if err != nil {
			return nil, err
		}
		job.Status = models.JobStatusCompleted
		return &StartResult{HashStatus: status, Job: job, Result: result}, nil
	}

	remoteID, err := s.analyzer.Process(ctx, productID.String(), engine)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return nil, err
	}

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning, store.WithRemoteID(remoteID)); err != nil {
		slog.Error("job status write failed", "job_id", job.ID, "status", models.JobStatusRunning, "error", err)
	}
	s.setCachedStatus(ctx, job.ID, models.JobStatusRunning)
	job.Status = models.JobStatusRunning
	job.RemoteID = &remoteID

	s.wg.Add(1)
	go s.awaitRemote(job.ID, productID, engine, remoteID)

	return &StartResult{HashStatus: status, Job: job}, nil
}

// runDirect performs a synchronous scrape through the retrying client and
// persists the analysis before the call returns.
func (s *Service) runDirect(ctx context.Context, job *models.Job, productID uuid.UUID, engine, query string) (*upstream.Result, error) {
	result, err := s.scraper.Scrape(ctx, upstream.ScrapeRequest{
		Query:      query,
		Location:   s.location,
		MaxRetries: 2,
	})
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return nil, err
	}

	if err := s.persistAnalysis(ctx, productID, engine, result); err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return nil, err
	}

	s.completeJob(ctx, job.ID, productID, engine)
	return &result, nil
}

// awaitRemote drives a job-mode run to a terminal state in the background.
// It recovers from panics and, unless the service is shutting down, always
// marks the job completed or failed.
func (s *Service) awaitRemote(jobID, productID uuid.UUID, engine, remoteID string) {
	defer s.wg.Done()
	ctx := s.baseCtx

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in awaitRemote", "error", r, "job_id", jobID)
			s.failJob(ctx, jobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	result, err := s.poller.Poll(ctx, remoteID, productID.String())
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("abandoning background poll on shutdown", "job_id", jobID, "remote_id", remoteID)
			return
		}
		var timeout *JobTimeoutError
		if errors.As(err, &timeout) {
			slog.Warn("job polling timed out", "job_id", jobID, "remote_id", remoteID, "attempts", timeout.Attempts)
		}
		s.failJob(ctx, jobID, err.Error())
		return
	}

	if err := s.persistAnalysis(ctx, productID, engine, result); err != nil {
		s.failJob(ctx, jobID, err.Error())
		return
	}

	s.completeJob(ctx, jobID, productID, engine)
}

// persistAnalysis overwrites the analysis row for the pair, stamping it with
// the fingerprint of the source-record set it was computed from.
func (s *Service) persistAnalysis(ctx context.Context, productID uuid.UUID, engine string, result upstream.Result) error {
	ids, err := s.store.ListSourceRecordIDs(ctx, productID, engine)
	if err != nil {
		return fmt.Errorf("listing source records: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.store.UpsertAnalysis(ctx, &models.Analysis{
		ID:          uuid.New(),
		ProductID:   productID,
		Engine:      engine,
		SourceHash:  analysis.Fingerprint(ids),
		Summary:     result.Text,
		CompletedAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("storing analysis: %w", err)
	}
	return nil
}

// completeJob and failJob record the terminal state. A failed terminal write
// leaves the row stuck running, so it is always logged loudly.
func (s *Service) completeJob(ctx context.Context, jobID, productID uuid.UUID, engine string) {
	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted); err != nil {
		slog.Error("job status write failed", "job_id", jobID, "status", models.JobStatusCompleted, "error", err)
	}
	s.setCachedStatus(ctx, jobID, models.JobStatusCompleted)
	if err := s.notifier.Publish(ctx, notify.Change{Table: "analyses", ProductID: productID, Engine: engine}); err != nil {
		slog.Warn("publishing change notification failed", "product_id", productID, "engine", engine, "error", err)
	}
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, msg string) {
	if err := s.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		slog.Error("job status write failed", "job_id", jobID, "status", models.JobStatusFailed, "error", err)
	}
	s.setCachedStatus(ctx, jobID, models.JobStatusFailed)
}

// setCachedStatus mirrors the job status into the cache. The store row stays
// authoritative, so a cache failure only costs a warm read.
func (s *Service) setCachedStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if err := s.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		slog.Warn("job status cache write failed", "job_id", jobID, "status", status, "error", err)
	}
}

func (s *Service) mode(engine string) string {
	if m, ok := s.modes[engine]; ok {
		return m
	}
	return ModeDirect
}
