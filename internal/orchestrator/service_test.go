package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godseye3002/godseye/internal/analysis"
	"github.com/godseye3002/godseye/internal/cache"
	"github.com/godseye3002/godseye/internal/notify"
	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/internal/upstream"
	"github.com/godseye3002/godseye/pkg/models"
)

// fakeServiceStore backs both the gate and the orchestration service.
type fakeServiceStore struct {
	mu         sync.Mutex
	ids        []string
	storedHash string
	analyses   []*models.Analysis
	jobs       map[uuid.UUID]*models.Job
	statuses   map[uuid.UUID][]string
	updateErr  error
}

func newFakeServiceStore(ids []string, storedHash string) *fakeServiceStore {
	return &fakeServiceStore{
		ids:        ids,
		storedHash: storedHash,
		jobs:       make(map[uuid.UUID]*models.Job),
		statuses:   make(map[uuid.UUID][]string),
	}
}

func (f *fakeServiceStore) ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids, nil
}

func (f *fakeServiceStore) GetAnalysis(ctx context.Context, productID uuid.UUID, engine string) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storedHash == "" {
		return nil, store.ErrNotFound
	}
	return &models.Analysis{SourceHash: f.storedHash}, nil
}

func (f *fakeServiceStore) UpsertAnalysis(ctx context.Context, a *models.Analysis) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, a)
	f.storedHash = a.SourceHash
	return a, nil
}

func (f *fakeServiceStore) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeServiceStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.statuses[id] = append(f.statuses[id], status)
	return nil
}

func (f *fakeServiceStore) jobStatuses(id uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.statuses[id]))
	copy(out, f.statuses[id])
	return out
}

func (f *fakeServiceStore) lastAnalysis() *models.Analysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.analyses) == 0 {
		return nil
	}
	return f.analyses[len(f.analyses)-1]
}

func scraperFor(t *testing.T, handler http.HandlerFunc) *upstream.ScraperClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	client := upstream.NewClient(time.Second, upstream.RetryConfig{
		BaseDelay: time.Millisecond,
		MaxDelay:  time.Millisecond,
	})
	return upstream.NewScraperClient(ts.URL, client)
}

func newTestService(fs *fakeServiceStore, scraper *upstream.ScraperClient, api upstream.AnalyzerAPI, mn *notify.MemoryNotifier, modes map[string]string) *Service {
	poller := NewPoller(api, time.Millisecond, 5, false)
	return NewService(fs, cache.NewMemoryCache(), analysis.NewGate(fs), scraper, api, poller, mn, modes, "United States")
}

func TestStartAnalysisSkipsWhenUpToDate(t *testing.T) {
	ids := []string{"r1", "r2"}
	fs := newFakeServiceStore(ids, analysis.Fingerprint(ids))
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("scraper must not be called when up to date")
	})
	svc := newTestService(fs, scraper, &fakeAnalyzer{}, notify.NewMemoryNotifier(), nil)

	result, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "best widgets")
	require.NoError(t, err)

	assert.True(t, result.UpToDate)
	assert.Nil(t, result.Job)
	assert.Empty(t, fs.jobs)
}

func TestStartAnalysisDirectMode(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1", "r2"}, "stale")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":          true,
			"ai_overview_text": "widgets summary",
		})
	})
	mn := notify.NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := mn.Listen(ctx)
	require.NoError(t, err)

	svc := newTestService(fs, scraper, &fakeAnalyzer{}, mn, nil)

	productID := uuid.New()
	result, err := svc.StartAnalysis(context.Background(), uuid.New(), productID, "google", "best widgets")
	require.NoError(t, err)

	assert.False(t, result.UpToDate)
	require.NotNil(t, result.Result)
	assert.Equal(t, "widgets summary", result.Result.Text)
	require.NotNil(t, result.Job)
	assert.Equal(t, models.JobStatusCompleted, result.Job.Status)

	stored := fs.lastAnalysis()
	require.NotNil(t, stored)
	assert.Equal(t, analysis.Fingerprint([]string{"r1", "r2"}), stored.SourceHash)
	assert.Equal(t, "widgets summary", stored.Summary)

	select {
	case change := <-events:
		assert.Equal(t, "analyses", change.Table)
		assert.Equal(t, productID, change.ProductID)
	case <-time.After(time.Second):
		t.Fatal("completion notification never published")
	}
}

func TestStartAnalysisDirectModeScrapeFailure(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1"}, "")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})
	svc := newTestService(fs, scraper, &fakeAnalyzer{}, notify.NewMemoryNotifier(), nil)

	_, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrInvalidShape)

	// The job row must record the failure, and no analysis may be written.
	require.Len(t, fs.jobs, 1)
	for id := range fs.jobs {
		statuses := fs.jobStatuses(id)
		require.NotEmpty(t, statuses)
		assert.Equal(t, models.JobStatusFailed, statuses[len(statuses)-1])
	}
	assert.Nil(t, fs.lastAnalysis())
}

func TestStartAnalysisJobMode(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1", "r2"}, "")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("scraper must not be called in job mode")
	})
	api := &fakeAnalyzer{states: []upstream.JobStatus{pending(), completed("async summary")}}
	mn := notify.NewMemoryNotifier()
	svc := newTestService(fs, scraper, api, mn, map[string]string{"google": ModeJob})

	result, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.NoError(t, err)

	// The call returns while the remote job is still running.
	require.NotNil(t, result.Job)
	assert.Equal(t, models.JobStatusRunning, result.Job.Status)
	require.NotNil(t, result.Job.RemoteID)
	assert.Equal(t, "remote-1", *result.Job.RemoteID)
	assert.Nil(t, result.Result)

	// The background poll loop completes the job and persists the analysis.
	require.Eventually(t, func() bool {
		statuses := fs.jobStatuses(result.Job.ID)
		return len(statuses) > 0 && statuses[len(statuses)-1] == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored := fs.lastAnalysis()
	require.NotNil(t, stored)
	assert.Equal(t, "async summary", stored.Summary)
}

func TestStartAnalysisJobModeRemoteFailure(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1"}, "")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {})
	api := &fakeAnalyzer{states: []upstream.JobStatus{
		{Status: upstream.JobFailed, ErrorMessage: "model crashed"},
	}}
	svc := newTestService(fs, scraper, api, notify.NewMemoryNotifier(), map[string]string{"google": ModeJob})

	result, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		statuses := fs.jobStatuses(result.Job.ID)
		return len(statuses) > 0 && statuses[len(statuses)-1] == models.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, fs.lastAnalysis())
}

func TestStartAnalysisJobModeSubmitFailure(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1"}, "")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {})
	api := &failingAnalyzer{err: upstream.ErrUpstreamUnavailable}
	svc := newTestService(fs, scraper, api, notify.NewMemoryNotifier(), map[string]string{"google": ModeJob})

	_, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrUpstreamUnavailable)

	require.Len(t, fs.jobs, 1)
	for id := range fs.jobs {
		statuses := fs.jobStatuses(id)
		require.NotEmpty(t, statuses)
		assert.Equal(t, models.JobStatusFailed, statuses[len(statuses)-1])
	}
}

func TestCloseStopsBackgroundPolls(t *testing.T) {
	fs := newFakeServiceStore([]string{"r1"}, "")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {})
	// The remote job never resolves, so only Close can end the loop.
	api := &fakeAnalyzer{states: []upstream.JobStatus{pending()}}
	poller := NewPoller(api, 5*time.Millisecond, 100000, false)
	svc := NewService(fs, cache.NewMemoryCache(), analysis.NewGate(fs), scraper, api, poller,
		notify.NewMemoryNotifier(), map[string]string{"google": ModeJob}, "United States")

	result, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return api.callCount() > 0 }, 2*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the background poll loop")
	}

	// No further polls once Close has returned.
	polled := api.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polled, api.callCount())

	// The abandoned job keeps its running row; restarts resubmit it.
	statuses := fs.jobStatuses(result.Job.ID)
	require.NotEmpty(t, statuses)
	assert.Equal(t, models.JobStatusRunning, statuses[len(statuses)-1])
}

func TestTerminalJobWriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fs := newFakeServiceStore([]string{"r1"}, "")
	fs.updateErr = errors.New("connection reset")
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":          true,
			"ai_overview_text": "summary",
		})
	})
	svc := newTestService(fs, scraper, &fakeAnalyzer{}, notify.NewMemoryNotifier(), nil)

	result, err := svc.StartAnalysis(context.Background(), uuid.New(), uuid.New(), "google", "q")
	require.NoError(t, err)
	require.NotNil(t, result.Result)

	logged := buf.String()
	assert.Contains(t, logged, "job status write failed")
	assert.Contains(t, logged, "connection reset")
}

func TestStartAnalysisRecomputeRefreshesHash(t *testing.T) {
	// The stored hash matches an older, smaller record set.
	fs := newFakeServiceStore([]string{"r1", "r2", "r3"}, analysis.Fingerprint([]string{"r1", "r2"}))
	scraper := scraperFor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success":          true,
			"ai_overview_text": "fresh",
		})
	})
	svc := newTestService(fs, scraper, &fakeAnalyzer{}, notify.NewMemoryNotifier(), nil)

	productID := uuid.New()
	result, err := svc.StartAnalysis(context.Background(), uuid.New(), productID, "google", "q")
	require.NoError(t, err)
	require.NotNil(t, result.Result)

	// A second run now sees the stored hash up to date.
	status := svc.CheckUpToDate(context.Background(), productID, "google")
	assert.True(t, status.UpToDate)
}

type failingAnalyzer struct {
	err error
}

func (f *failingAnalyzer) Process(ctx context.Context, productID, source string) (string, error) {
	return "", f.err
}

func (f *failingAnalyzer) JobResult(ctx context.Context, jobID string) (upstream.JobStatus, error) {
	return upstream.JobStatus{}, errors.New("not used")
}

func (f *failingAnalyzer) EntityStatus(ctx context.Context, productID string) (upstream.JobStatus, error) {
	return upstream.JobStatus{}, errors.New("not used")
}
