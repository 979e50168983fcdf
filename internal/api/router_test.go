package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godseye3002/godseye/internal/api"
	mw "github.com/godseye3002/godseye/internal/api/middleware"
	"github.com/godseye3002/godseye/internal/cache"
	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
)

// --- stub store that returns empty results (all auth fails) ---

type stubStore struct{}

func (s *stubStore) Ping(_ context.Context) error { return nil }
func (s *stubStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateProduct(_ context.Context, _ *models.Product) error       { return nil }
func (s *stubStore) GetProduct(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Product, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) CreateSourceRecord(_ context.Context, _ *models.SourceRecord) error { return nil }
func (s *stubStore) CreateInsight(_ context.Context, _ *models.Insight) error           { return nil }
func (s *stubStore) LatestSnapshotID(_ context.Context, _ uuid.UUID, _ string) (string, error) {
	return "", store.ErrNotFound
}
func (s *stubStore) ListSourceRecordIDs(_ context.Context, _ uuid.UUID, _ string) ([]string, error) {
	return nil, nil
}
func (s *stubStore) CountSourceRecords(_ context.Context, _ uuid.UUID, _, _ string) (int, error) {
	return 0, nil
}
func (s *stubStore) CountInsights(_ context.Context, _ uuid.UUID, _, _ string) (int, error) {
	return 0, nil
}
func (s *stubStore) GetAnalysis(_ context.Context, _ uuid.UUID, _ string) (*models.Analysis, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) UpsertAnalysis(_ context.Context, a *models.Analysis) (*models.Analysis, error) {
	return a, nil
}
func (s *stubStore) CreateJob(_ context.Context, _ *models.Job) error { return nil }
func (s *stubStore) GetJob(_ context.Context, _ uuid.UUID, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.JobUpdateOption) error {
	return nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) Close() error                                                     { return nil }
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) SetStatusEntry(_ context.Context, _ uuid.UUID, _ string, _ cache.StatusEntry, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetStatusEntry(_ context.Context, _ uuid.UUID, _ string) (cache.StatusEntry, bool, error) {
	return cache.StatusEntry{}, false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()
	productID := uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/products/" + productID + "/analyses"},
		{"GET", "/api/v1/products/" + productID + "/analyses/freshness"},
		{"GET", "/api/v1/products/" + productID + "/progress"},
		{"GET", "/api/v1/products/" + productID + "/progress/watch"},
		{"GET", "/api/v1/jobs/" + uuid.NewString()},
		{"POST", "/api/v1/ingest"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify unused interfaces are satisfied
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
