package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job tracks one analysis run. The API returns a job id on
// POST /api/v1/products/{id}/analyses; clients poll GET /api/v1/jobs/{job_id}
// until status is completed or failed. RemoteID is the opaque id assigned by
// the upstream analyzer when the run executes in job mode; it is empty for
// direct-mode runs.
type Job struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	TenantID     uuid.UUID  `db:"tenant_id"     json:"tenant_id"`
	ProductID    uuid.UUID  `db:"product_id"    json:"product_id"`
	Engine       string     `db:"engine"        json:"engine"`
	Type         string     `db:"type"          json:"type"`
	Status       string     `db:"status"        json:"status"`
	RemoteID     *string    `db:"remote_id"     json:"remote_id,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"    json:"updated_at"`
}
