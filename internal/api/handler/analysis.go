// Package handler contains the HTTP handlers exposed by the API server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/godseye3002/godseye/internal/analysis"
	mw "github.com/godseye3002/godseye/internal/api/middleware"
	"github.com/godseye3002/godseye/internal/api/response"
	"github.com/godseye3002/godseye/internal/orchestrator"
	"github.com/godseye3002/godseye/internal/upstream"
	"github.com/godseye3002/godseye/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Orchestrator defines the analysis operations the handlers depend on.
type Orchestrator interface {
	CheckUpToDate(ctx context.Context, productID uuid.UUID, engine string) analysis.HashStatus
	StartAnalysis(ctx context.Context, tenantID, productID uuid.UUID, engine, query string) (*orchestrator.StartResult, error)
}

// NewStartAnalysisHandler returns the handler for
// POST /api/v1/products/{productID}/analyses.
func NewStartAnalysisHandler(svc Orchestrator, engines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		productID, ok := parseProductID(w, r)
		if !ok {
			return
		}

		var req struct {
			Engine string `json:"engine"`
			Query  string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if !validEngine(req.Engine, engines) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "engine must be one of the configured engines", nil)
			return
		}
		if req.Query == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required", nil)
			return
		}

		result, err := svc.StartAnalysis(r.Context(), tenantID, productID, req.Engine, req.Query)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		if result.UpToDate {
			response.JSON(w, startAnalysisResponse{
				UpToDate:   true,
				HashStatus: result.HashStatus,
			})
			return
		}

		resp := startAnalysisResponse{
			HashStatus: result.HashStatus,
			Job:        result.Job,
			Result:     result.Result,
		}
		if result.Result != nil {
			response.JSON(w, resp)
			return
		}
		response.Accepted(w, resp)
	}
}

// NewFreshnessHandler returns the handler for
// GET /api/v1/products/{productID}/analyses/freshness.
func NewFreshnessHandler(svc Orchestrator, engines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, ok := parseProductID(w, r)
		if !ok {
			return
		}
		engine := r.URL.Query().Get("engine")
		if !validEngine(engine, engines) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "engine must be one of the configured engines", nil)
			return
		}

		response.JSON(w, svc.CheckUpToDate(r.Context(), productID, engine))
	}
}

func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, upstream.ErrUpstreamUnavailable):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"The upstream service is not available; retry later", nil)
	case errors.Is(err, upstream.ErrInvalidShape):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_CONTRACT_BROKEN",
			"The upstream service returned an unrecognized response", nil)
	case errors.Is(err, orchestrator.ErrJobFailed):
		response.Error(w, http.StatusBadGateway, "JOB_FAILED", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

type startAnalysisResponse struct {
	UpToDate   bool                `json:"up_to_date"`
	HashStatus analysis.HashStatus `json:"hash_status"`
	Job        *models.Job         `json:"job,omitempty"`
	Result     *upstream.Result    `json:"result,omitempty"`
}

func parseProductID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "productID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func validEngine(engine string, engines []string) bool {
	for _, e := range engines {
		if engine == e {
			return true
		}
	}
	return false
}
