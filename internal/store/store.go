package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/godseye3002/godseye/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Product, error)

	// Source records and insights are written by the ingestion pipeline; the
	// orchestration core only reads ids and counts, always scoped to the
	// latest snapshot for the (product, engine) pair.
	CreateSourceRecord(ctx context.Context, record *models.SourceRecord) error
	CreateInsight(ctx context.Context, insight *models.Insight) error
	LatestSnapshotID(ctx context.Context, productID uuid.UUID, engine string) (string, error)
	ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error)
	CountSourceRecords(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error)
	CountInsights(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error)

	GetAnalysis(ctx context.Context, productID uuid.UUID, engine string) (*models.Analysis, error)
	UpsertAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

type jobUpdateParams struct {
	ErrorMessage *string
	RemoteID     *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithRemoteID(id string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.RemoteID = &id
	}
}
