package models

import (
	"time"

	"github.com/google/uuid"
)

// Analysis holds the persisted result of one completed analysis run for a
// (product, engine) pair. There is at most one row per pair; successful re-runs
// overwrite it. SourceHash is the fingerprint of the source-record set the run
// was computed from and is the sole idempotency check; timestamps are never
// trusted for staleness decisions.
type Analysis struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	ProductID   uuid.UUID  `db:"product_id"   json:"product_id"`
	Engine      string     `db:"engine"       json:"engine"`
	SourceHash  string     `db:"source_hash"  json:"source_hash"`
	Summary     string     `db:"summary"      json:"summary"`
	SOVScore    *float64   `db:"sov_score"    json:"sov_score,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}
