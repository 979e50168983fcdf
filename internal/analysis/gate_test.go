package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/godseye3002/godseye/internal/store"
	"github.com/godseye3002/godseye/pkg/models"
)

type fakeGateStore struct {
	ids     []string
	idsErr  error
	stored  *models.Analysis
	getErr  error
	getCall int
}

func (f *fakeGateStore) ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error) {
	return f.ids, f.idsErr
}

func (f *fakeGateStore) GetAnalysis(ctx context.Context, productID uuid.UUID, engine string) (*models.Analysis, error) {
	f.getCall++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.stored, nil
}

func TestGateUpToDate(t *testing.T) {
	ids := []string{"r1", "r2", "r3"}
	fs := &fakeGateStore{
		ids:    ids,
		stored: &models.Analysis{SourceHash: Fingerprint(ids)},
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.True(t, status.UpToDate)
	assert.True(t, status.HasSourceRows)
	assert.Equal(t, status.ComputedHash, status.StoredHash)
}

func TestGateStaleHash(t *testing.T) {
	fs := &fakeGateStore{
		ids:    []string{"r1", "r2", "r3"},
		stored: &models.Analysis{SourceHash: Fingerprint([]string{"r1", "r2"})},
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.False(t, status.UpToDate)
	assert.NotEqual(t, status.ComputedHash, status.StoredHash)
}

func TestGateNoStoredAnalysis(t *testing.T) {
	fs := &fakeGateStore{
		ids:    []string{"r1"},
		getErr: store.ErrNotFound,
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.False(t, status.UpToDate)
	assert.True(t, status.HasSourceRows)
	assert.NotEmpty(t, status.ComputedHash)
	assert.Empty(t, status.StoredHash)
}

func TestGateNoSourceRows(t *testing.T) {
	fs := &fakeGateStore{
		ids:    nil,
		stored: &models.Analysis{SourceHash: "abc"},
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	// Empty set has no fingerprint, so a stored hash can never match it.
	assert.False(t, status.UpToDate)
	assert.False(t, status.HasSourceRows)
	assert.Empty(t, status.ComputedHash)
}

func TestGateListFailureForcesRecompute(t *testing.T) {
	fs := &fakeGateStore{idsErr: errors.New("connection refused")}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.False(t, status.UpToDate)
	assert.Zero(t, fs.getCall, "stored hash should not be consulted when listing fails")
}

func TestGateStoredLookupFailureForcesRecompute(t *testing.T) {
	fs := &fakeGateStore{
		ids:    []string{"r1"},
		getErr: errors.New("connection refused"),
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.False(t, status.UpToDate)
	assert.NotEmpty(t, status.ComputedHash)
}

func TestGateEmptyStoredHashNeverUpToDate(t *testing.T) {
	fs := &fakeGateStore{
		ids:    []string{"r1"},
		stored: &models.Analysis{SourceHash: ""},
	}
	gate := NewGate(fs)

	status := gate.CheckUpToDate(context.Background(), uuid.New(), "google")

	assert.False(t, status.UpToDate)
}
