// Package models contains shared data models used across the GodsEye codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a tracked offering whose visibility in AI search engines is
// analyzed. Every analysis, source record, and insight hangs off a product.
type Product struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	TenantID  uuid.UUID `db:"tenant_id"  json:"tenant_id"`
	Name      string    `db:"name"       json:"name"`
	Domain    string    `db:"domain"     json:"domain"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
