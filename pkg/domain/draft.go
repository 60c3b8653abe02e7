package domain

import "time"

// DraftStatus represents the lifecycle state of an ingested draft
type DraftStatus string

const (
	StatusDraft     DraftStatus = "draft"
	StatusDuplicate DraftStatus = "duplicate-rejected"
	StatusFailed    DraftStatus = "failed"
)

// LocalizedText holds bilingual text; KM may be empty when translation
// is unavailable
type LocalizedText struct {
	EN string
	KM string
}

// SourceRef is the provenance of a draft, required for dedupe
type SourceRef struct {
	Name string
	URL  string
}

// IngestionMeta records how and when a draft entered the system
type IngestionMeta struct {
	Method        string
	RunID         string
	FetchedAt     time.Time
	StagesApplied []string
}

// NewsDraft is a persisted, not-yet-published article record produced by
// ingestion. SourceRef.URL is unique among non-rejected drafts; the
// orchestrator enforces this before persistence.
type NewsDraft struct {
	ID        int64
	Title     LocalizedText
	Content   LocalizedText
	Thumbnail string
	Source    SourceRef
	Ingestion IngestionMeta
	Status    DraftStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
