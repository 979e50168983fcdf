package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	mw "github.com/godseye3002/godseye/internal/api/middleware"
	"github.com/godseye3002/godseye/internal/api/response"
	"github.com/godseye3002/godseye/internal/notify"
	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
)

// IngestStore defines the writes the ingestion handler depends on.
type IngestStore interface {
	GetProduct(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Product, error)
	CreateSourceRecord(ctx context.Context, record *models.SourceRecord) error
	CreateInsight(ctx context.Context, insight *models.Insight) error
}

type ingestRequest struct {
	ProductID  uuid.UUID `json:"product_id"`
	Engine     string    `json:"engine"`
	SnapshotID string    `json:"snapshot_id"`

	SourceRecords []struct {
		Query   string `json:"query"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"source_records"`

	Insights []struct {
		SourceRecordID uuid.UUID `json:"source_record_id"`
		Mentioned      bool      `json:"mentioned"`
		Sentiment      string    `json:"sentiment"`
		Summary        string    `json:"summary"`
	} `json:"insights"`
}

// NewIngestHandler returns the handler for POST /api/v1/ingest. Scraper and
// analyzer pipelines push rows through here; each batch emits one change
// notification per touched table so status observers re-derive progress.
func NewIngestHandler(s IngestStore, notifier notify.Notifier, engines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if !validEngine(req.Engine, engines) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "engine must be one of the configured engines", nil)
			return
		}
		if len(req.SourceRecords) > 0 && req.SnapshotID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "snapshot_id is required when ingesting source records", nil)
			return
		}
		if len(req.SourceRecords) == 0 && len(req.Insights) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Nothing to ingest", nil)
			return
		}

		if _, err := s.GetProduct(r.Context(), req.ProductID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Product not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load product", nil)
			return
		}

		var sourceIDs []uuid.UUID
		for _, rec := range req.SourceRecords {
			row := &models.SourceRecord{
				ID:         uuid.New(),
				ProductID:  req.ProductID,
				Engine:     req.Engine,
				SnapshotID: req.SnapshotID,
				Query:      rec.Query,
				URL:        rec.URL,
				Content:    rec.Content,
			}
			if err := s.CreateSourceRecord(r.Context(), row); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store source record", nil)
				return
			}
			sourceIDs = append(sourceIDs, row.ID)
		}

		var insightCount int
		for _, in := range req.Insights {
			row := &models.Insight{
				ID:             uuid.New(),
				SourceRecordID: in.SourceRecordID,
				ProductID:      req.ProductID,
				Engine:         req.Engine,
				Mentioned:      in.Mentioned,
				Sentiment:      in.Sentiment,
				Summary:        in.Summary,
			}
			if err := s.CreateInsight(r.Context(), row); err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store insight", nil)
				return
			}
			insightCount++
		}

		publishChanges(r.Context(), notifier, req, len(sourceIDs), insightCount)

		response.Accepted(w, map[string]any{
			"source_record_ids": sourceIDs,
			"insights_stored":   insightCount,
		})
	}
}

func publishChanges(ctx context.Context, notifier notify.Notifier, req ingestRequest, sources, insights int) {
	emit := func(table string) {
		err := notifier.Publish(ctx, notify.Change{
			Table:     table,
			ProductID: req.ProductID,
			Engine:    req.Engine,
		})
		if err != nil {
			// Observers poll on their own schedule, so a lost event only
			// delays the next status refresh.
			slog.Warn("failed to publish change notification",
				"table", table, "product_id", req.ProductID, "error", err)
		}
	}
	if sources > 0 {
		emit("source_records")
	}
	if insights > 0 {
		emit("insights")
	}
}
