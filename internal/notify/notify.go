// Package notify carries change notifications between the ingestion pipeline
// and status observers. Delivery is at-least-once: events may be duplicated
// and may fire before the full row set for a snapshot is committed, so
// consumers must never treat an event alone as proof of completion.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Change identifies a mutation to a table scoped to one (product, engine) pair.
type Change struct {
	Table     string    `json:"table"`
	ProductID uuid.UUID `json:"product_id"`
	Engine    string    `json:"engine"`
}

// Notifier publishes and subscribes to change notifications.
type Notifier interface {
	// Publish emits a change event to all current listeners.
	Publish(ctx context.Context, change Change) error
	// Listen returns a channel of change events. The channel is closed when
	// ctx is cancelled or the underlying connection is lost.
	Listen(ctx context.Context) (<-chan Change, error)
	Close() error
}
