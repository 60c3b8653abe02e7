package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/newsdesk/sentinel/pkg/domain"
)

// DraftRepository handles draft-related database operations
type DraftRepository struct {
	db *sqlx.DB
}

// draftSQL represents a draft for SQL operations
type draftSQL struct {
	ID           int64     `db:"id"`
	TitleEN      string    `db:"title_en"`
	TitleKM      string    `db:"title_km"`
	ContentEN    string    `db:"content_en"`
	ContentKM    string    `db:"content_km"`
	Thumbnail    string    `db:"thumbnail"`
	SourceName   string    `db:"source_name"`
	SourceURL    string    `db:"source_url"`
	IngestMethod string    `db:"ingest_method"`
	RunID        string    `db:"run_id"`
	FetchedAt    time.Time `db:"fetched_at"`
	Stages       stagesSQL `db:"stages_applied"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// stagesSQL is a JSON array of stage names for SQL operations
type stagesSQL []string

// Value implements driver.Valuer for database storage
func (s stagesSQL) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for database retrieval
func (s *stagesSQL) Scan(value interface{}) error {
	if value == nil {
		*s = stagesSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return json.Unmarshal([]byte("[]"), s)
	}

	return json.Unmarshal(data, s)
}

// NewDraftRepository creates a new draft repository
func NewDraftRepository(database *sqlx.DB) *DraftRepository {
	return &DraftRepository{db: database}
}

// CreateDraft inserts a new draft, retrying on SQLite lock errors. The
// draft's ID is set on success.
func (r *DraftRepository) CreateDraft(ctx context.Context, draft *domain.NewsDraft) error {
	sqlDraft := toSQLDraft(draft)

	query := `
		INSERT INTO drafts (
			title_en, title_km, content_en, content_km, thumbnail,
			source_name, source_url, ingest_method, run_id, fetched_at,
			stages_applied, status
		) VALUES (
			:title_en, :title_km, :content_en, :content_km, :thumbnail,
			:source_name, :source_url, :ingest_method, :run_id, :fetched_at,
			:stages_applied, :status
		)
	`

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		result, err := r.db.NamedExecContext(ctx, query, sqlDraft)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("create draft: %w", err)}
		}

		id, err := result.LastInsertId()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get last insert id: %w", err)}
		}
		draft.ID = id
		return nil
	})
}

// FindBySourceURL retrieves the non-rejected draft with the given source URL.
// Returns nil without error when no such draft exists; this is the dedupe
// lookup used by the orchestrator before persistence.
func (r *DraftRepository) FindBySourceURL(ctx context.Context, url string) (*domain.NewsDraft, error) {
	var sqlDraft draftSQL
	query := `
		SELECT * FROM drafts
		WHERE source_url = ? AND status != ?
		ORDER BY id LIMIT 1
	`
	err := r.db.GetContext(ctx, &sqlDraft, query, url, string(domain.StatusDuplicate))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find draft by source url: %w", err)
	}
	return toDomainDraft(&sqlDraft), nil
}

// GetDraft retrieves a draft by ID
func (r *DraftRepository) GetDraft(ctx context.Context, id int64) (*domain.NewsDraft, error) {
	var sqlDraft draftSQL
	err := r.db.GetContext(ctx, &sqlDraft, `SELECT * FROM drafts WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("draft not found")
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return toDomainDraft(&sqlDraft), nil
}

// ListDrafts retrieves drafts with pagination, newest first
func (r *DraftRepository) ListDrafts(ctx context.Context, limit, offset int) ([]domain.NewsDraft, error) {
	var sqlDrafts []draftSQL
	query := `
		SELECT * FROM drafts
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	err := r.db.SelectContext(ctx, &sqlDrafts, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}

	drafts := make([]domain.NewsDraft, 0, len(sqlDrafts))
	for i := range sqlDrafts {
		drafts = append(drafts, *toDomainDraft(&sqlDrafts[i]))
	}
	return drafts, nil
}

// UpdateDraftStatus changes the status of a draft, retrying on lock errors
func (r *DraftRepository) UpdateDraftStatus(ctx context.Context, id int64, status domain.DraftStatus) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		result, err := r.db.ExecContext(ctx, `UPDATE drafts SET status = ? WHERE id = ?`, string(status), id)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("update draft status: %w", err)}
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return &criticalError{err: fmt.Errorf("get rows affected: %w", err)}
		}
		if affected == 0 {
			return &criticalError{err: fmt.Errorf("draft not found")}
		}
		return nil
	})
}

// CountDrafts returns the number of drafts with the given status, or all
// drafts when status is empty
func (r *DraftRepository) CountDrafts(ctx context.Context, status domain.DraftStatus) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM drafts`)
	} else {
		err = r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM drafts WHERE status = ?`, string(status))
	}
	if err != nil {
		return 0, fmt.Errorf("count drafts: %w", err)
	}
	return count, nil
}

// toSQLDraft converts a domain draft for SQL operations
func toSQLDraft(d *domain.NewsDraft) *draftSQL {
	return &draftSQL{
		ID:           d.ID,
		TitleEN:      d.Title.EN,
		TitleKM:      d.Title.KM,
		ContentEN:    d.Content.EN,
		ContentKM:    d.Content.KM,
		Thumbnail:    d.Thumbnail,
		SourceName:   d.Source.Name,
		SourceURL:    d.Source.URL,
		IngestMethod: d.Ingestion.Method,
		RunID:        d.Ingestion.RunID,
		FetchedAt:    d.Ingestion.FetchedAt,
		Stages:       stagesSQL(d.Ingestion.StagesApplied),
		Status:       string(d.Status),
	}
}

// toDomainDraft converts draftSQL to domain.NewsDraft
func toDomainDraft(s *draftSQL) *domain.NewsDraft {
	return &domain.NewsDraft{
		ID:        s.ID,
		Title:     domain.LocalizedText{EN: s.TitleEN, KM: s.TitleKM},
		Content:   domain.LocalizedText{EN: s.ContentEN, KM: s.ContentKM},
		Thumbnail: s.Thumbnail,
		Source:    domain.SourceRef{Name: s.SourceName, URL: s.SourceURL},
		Ingestion: domain.IngestionMeta{
			Method:        s.IngestMethod,
			RunID:         s.RunID,
			FetchedAt:     s.FetchedAt,
			StagesApplied: []string(s.Stages),
		},
		Status:    domain.DraftStatus(s.Status),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
