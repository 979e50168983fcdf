package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceRecord is one raw scraped row for a (product, engine) pair. Rows are
// written by the ingestion pipeline; the orchestration core only reads ids and
// counts. SnapshotID groups the rows produced by a single scrape run.
type SourceRecord struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	ProductID  uuid.UUID `db:"product_id"  json:"product_id"`
	Engine     string    `db:"engine"      json:"engine"`
	SnapshotID string    `db:"snapshot_id" json:"snapshot_id"`
	Query      string    `db:"query"       json:"query"`
	URL        string    `db:"url"         json:"url"`
	Content    string    `db:"content"     json:"content"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// Insight is a derived row produced by the analyzer for one source record.
// Progress is measured by comparing insight counts against source row counts,
// never by an explicit status column.
type Insight struct {
	ID             uuid.UUID `db:"id"               json:"id"`
	SourceRecordID uuid.UUID `db:"source_record_id" json:"source_record_id"`
	ProductID      uuid.UUID `db:"product_id"       json:"product_id"`
	Engine         string    `db:"engine"           json:"engine"`
	Mentioned      bool      `db:"mentioned"        json:"mentioned"`
	Sentiment      string    `db:"sentiment"        json:"sentiment"`
	Summary        string    `db:"summary"          json:"summary"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
}
