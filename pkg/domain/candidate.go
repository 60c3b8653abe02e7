package domain

import "time"

// CandidateItem is a single externally sourced news item before cleaning,
// formatting and persistence. It has no identity beyond SourceURL and is
// consumed once per ingestion cycle.
type CandidateItem struct {
	SourceURL    string
	SourceName   string
	RawTitle     string
	RawBody      string
	ThumbnailURL string
	FetchedAt    time.Time
}

// CleanedFragment is a well-formed HTML fragment derived from a candidate's
// raw body: block elements only, no document-level tags, no stray code-fence
// markers. Never persisted on its own.
type CleanedFragment struct {
	BodyHTML string
}

// Empty reports whether the fragment carries no usable content.
func (f CleanedFragment) Empty() bool {
	return f.BodyHTML == ""
}

// FormattedResult is the output of one formatting pipeline invocation.
type FormattedResult struct {
	Content       string
	AppliedStages []string
	Warnings      []string
}
