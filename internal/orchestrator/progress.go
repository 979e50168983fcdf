package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
)

// ProgressStore is the slice of the data store the reconciler reads from.
type ProgressStore interface {
	LatestSnapshotID(ctx context.Context, productID uuid.UUID, engine string) (string, error)
	CountSourceRecords(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error)
	CountInsights(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error)
}

// Reconciler derives a coarse analysis status from live row counts instead of
// an explicit status column, which makes it robust to partial writes and
// desynchronized state. Counts are always scoped to the latest snapshot for
// the pair; rows from earlier runs never count.
type Reconciler struct {
	store ProgressStore
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store ProgressStore) *Reconciler {
	return &Reconciler{store: store}
}

// Progress computes the current snapshot for (productID, engine). It is
// read-only and idempotent: polling it repeatedly mutates nothing. Store
// failures degrade to a conservative "processing" rather than erroring out,
// because getting stuck is worse than one extra recomputation.
func (r *Reconciler) Progress(ctx context.Context, productID uuid.UUID, engine string) models.ProgressSnapshot {
	snapshotID, err := r.store.LatestSnapshotID(ctx, productID, engine)
	if errors.Is(err, store.ErrNotFound) {
		return models.ProgressSnapshot{
			Status:  models.ProgressWaitingForData,
			Message: "no source data scraped yet",
		}
	}
	if err != nil {
		return r.degraded(productID, engine, err)
	}

	total, err := r.store.CountSourceRecords(ctx, productID, engine, snapshotID)
	if err != nil {
		return r.degraded(productID, engine, err)
	}
	if total == 0 {
		return models.ProgressSnapshot{
			Status:  models.ProgressWaitingForData,
			Message: "no source data scraped yet",
		}
	}

	completed, err := r.store.CountInsights(ctx, productID, engine, snapshotID)
	if err != nil {
		return r.degraded(productID, engine, err)
	}

	snapshot := models.ProgressSnapshot{
		TotalScraped:       total,
		CompletedInsights:  completed,
		ProgressPercentage: completed * 100 / total,
	}
	if completed >= total {
		snapshot.Status = models.ProgressComplete
		snapshot.ProgressPercentage = 100
		snapshot.Message = fmt.Sprintf("analyzed %d of %d results", completed, total)
		return snapshot
	}
	snapshot.Status = models.ProgressProcessing
	snapshot.Message = fmt.Sprintf("analyzed %d of %d results", completed, total)
	return snapshot
}

func (r *Reconciler) degraded(productID uuid.UUID, engine string, err error) models.ProgressSnapshot {
	slog.Warn("progress reconcile failed, reporting processing",
		"product_id", productID, "engine", engine, "error", err)
	return models.ProgressSnapshot{
		Status:  models.ProgressProcessing,
		Message: "status temporarily unavailable",
	}
}
