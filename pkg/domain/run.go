package domain

import "time"

// RunSummary describes one ingestion cycle. A single process-wide slot holds
// the current summary; it is created at cycle start, finalized at cycle end
// and read by the status reporter until the next cycle overwrites it.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	InProgress     bool      `json:"in_progress"`
	ItemsFetched   int       `json:"items_fetched"`
	ItemsAccepted  int       `json:"items_accepted"`
	ItemsDuplicate int       `json:"items_duplicate"`
	ItemsFailed    int       `json:"items_failed"`
	LastError      string    `json:"last_error,omitempty"`
}

// DataQualityReport aggregates known defect signatures over persisted drafts.
// It is a regression detector for the cleaner, not a live pipeline stage.
type DataQualityReport struct {
	DraftsScanned       int       `json:"drafts_scanned"`
	CodeFenceLeftovers  int       `json:"code_fence_leftovers"`
	SkeletonTags        int       `json:"skeleton_tags"`
	ParagraphFreeBodies int       `json:"paragraph_free_bodies"`
	DefectRate          float64   `json:"defect_rate"`
	GeneratedAt         time.Time `json:"generated_at"`
}
