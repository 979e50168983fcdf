package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/godseye3002/godseye/internal/api/response"
	"github.com/godseye3002/godseye/pkg/models"
)

// ProgressReader defines the progress computation the handler depends on.
// The returned snapshot is always derived from live row counts; a store
// failure yields a degraded processing snapshot, never an error.
type ProgressReader interface {
	Progress(ctx context.Context, productID uuid.UUID, engine string) models.ProgressSnapshot
}

// NewGetProgressHandler returns the handler for
// GET /api/v1/products/{productID}/progress.
func NewGetProgressHandler(reconciler ProgressReader, engines []string) http.HandlerFunc {
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

		response.JSON(w, reconciler.Progress(r.Context(), productID, engine))
	}
}
