package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
)

type fakeProgressStore struct {
	snapshotID  string
	snapshotErr error
	total       int
	totalErr    error
	insights    int
	insightsErr error
}

func (f *fakeProgressStore) LatestSnapshotID(ctx context.Context, productID uuid.UUID, engine string) (string, error) {
	return f.snapshotID, f.snapshotErr
}

func (f *fakeProgressStore) CountSourceRecords(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error) {
	return f.total, f.totalErr
}

func (f *fakeProgressStore) CountInsights(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error) {
	return f.insights, f.insightsErr
}

func TestProgressStates(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		insights    int
		wantStatus  string
		wantPercent int
	}{
		{
			name:       "no rows means waiting",
			total:      0,
			wantStatus: models.ProgressWaitingForData,
		},
		{
			name:        "partial insights means processing",
			total:       10,
			insights:    4,
			wantStatus:  models.ProgressProcessing,
			wantPercent: 40,
		},
		{
			name:        "nine of ten is still processing",
			total:       10,
			insights:    9,
			wantStatus:  models.ProgressProcessing,
			wantPercent: 90,
		},
		{
			name:        "all insights means complete",
			total:       10,
			insights:    10,
			wantStatus:  models.ProgressComplete,
			wantPercent: 100,
		},
		{
			name:        "insight surplus clamps to 100",
			total:       10,
			insights:    12,
			wantStatus:  models.ProgressComplete,
			wantPercent: 100,
		},
		{
			name:        "single row complete",
			total:       1,
			insights:    1,
			wantStatus:  models.ProgressComplete,
			wantPercent: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler(&fakeProgressStore{
				snapshotID: "snap-1",
				total:      tt.total,
				insights:   tt.insights,
			})

			snap := r.Progress(context.Background(), uuid.New(), "google")

			assert.Equal(t, tt.wantStatus, snap.Status)
			assert.Equal(t, tt.wantPercent, snap.ProgressPercentage)
		})
	}
}

func TestProgressNoSnapshotYet(t *testing.T) {
	r := NewReconciler(&fakeProgressStore{snapshotErr: store.ErrNotFound})

	snap := r.Progress(context.Background(), uuid.New(), "google")

	assert.Equal(t, models.ProgressWaitingForData, snap.Status)
	assert.False(t, snap.Terminal())
}

func TestProgressDegradesOnStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	stores := []*fakeProgressStore{
		{snapshotErr: boom},
		{snapshotID: "snap-1", totalErr: boom},
		{snapshotID: "snap-1", total: 10, insightsErr: boom},
	}

	for i, fs := range stores {
		r := NewReconciler(fs)
		snap := r.Progress(context.Background(), uuid.New(), "google")

		// Degraded is conservative: never complete, never an error.
		assert.Equal(t, models.ProgressProcessing, snap.Status, "store %d", i)
		assert.False(t, snap.Terminal(), "store %d", i)
		assert.NotEmpty(t, snap.Message, "store %d", i)
	}
}

func TestProgressIsIdempotent(t *testing.T) {
	r := NewReconciler(&fakeProgressStore{snapshotID: "snap-1", total: 5, insights: 3})
	id := uuid.New()

	first := r.Progress(context.Background(), id, "google")
	second := r.Progress(context.Background(), id, "google")

	assert.Equal(t, first, second)
}
