package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
)

// HashStatus is the result of an idempotency check for one (product, engine)
// pair.
type HashStatus struct {
	UpToDate      bool   `json:"up_to_date"`
	ComputedHash  string `json:"computed_hash"`
	StoredHash    string `json:"stored_hash"`
	HasSourceRows bool   `json:"has_source_rows"`
}

// GateStore is the slice of the data store the gate reads from.
type GateStore interface {
	ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error)
	GetAnalysis(ctx context.Context, productID uuid.UUID, engine string) (*models.Analysis, error)
}

// Gate compares the fingerprint of the current source-record set against the
// hash stored with the last completed analysis. It is read-only and fail-safe:
// any lookup failure is reported as not-up-to-date so callers recompute rather
// than silently skip.
type Gate struct {
	store GateStore
}

// NewGate creates a Gate over the given store.
func NewGate(store GateStore) *Gate {
	return &Gate{store: store}
}

// CheckUpToDate reports whether the stored analysis for (productID, engine)
// was computed from the current source-record set. Never returns an error:
// failures degrade to a forced recompute.
func (g *Gate) CheckUpToDate(ctx context.Context, productID uuid.UUID, engine string) HashStatus {
	ids, err := g.store.ListSourceRecordIDs(ctx, productID, engine)
	if err != nil {
		slog.Warn("hash gate: listing source records failed, forcing recompute",
			"product_id", productID, "engine", engine, "error", err)
		return HashStatus{}
	}

	status := HashStatus{
		ComputedHash:  Fingerprint(ids),
		HasSourceRows: len(ids) > 0,
	}

	stored, err := g.store.GetAnalysis(ctx, productID, engine)
	if errors.Is(err, store.ErrNotFound) {
		// No completed analysis yet: not up to date, but not a failure.
		return status
	}
	if err != nil {
		slog.Warn("hash gate: stored hash lookup failed, forcing recompute",
			"product_id", productID, "engine", engine, "error", err)
		return status
	}

	status.StoredHash = stored.SourceHash
	status.UpToDate = stored.SourceHash != "" && stored.SourceHash == status.ComputedHash
	return status
}
