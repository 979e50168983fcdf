package models

// Progress statuses derived from live row counts.
const (
	ProgressWaitingForData = "waiting_for_data"
	ProgressProcessing     = "processing"
	ProgressComplete       = "complete"
)

// ProgressSnapshot is a derived, never-stored view of how far an analysis run
// has progressed for a (product, engine) pair. It is recomputed on demand from
// two row counts scoped to the latest snapshot:
//
//	status = waiting_for_data  iff TotalScraped == 0
//	status = complete          iff CompletedInsights >= TotalScraped > 0
//	status = processing        otherwise
type ProgressSnapshot struct {
	Status             string `json:"status"`
	TotalScraped       int    `json:"total_scraped"`
	CompletedInsights  int    `json:"completed_insights"`
	ProgressPercentage int    `json:"progress_percentage"`
	Message            string `json:"message,omitempty"`
}

// Terminal reports whether the snapshot represents a finished run.
func (p ProgressSnapshot) Terminal() bool {
	return p.Status == ProgressComplete
}
