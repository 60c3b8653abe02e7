package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/newsdesk/sentinel/pkg/domain"
)

// defect signatures the quality scan looks for in persisted draft bodies
var (
	fenceLeftoverRe = regexp.MustCompile("```|~~~|\"{3}|'{3}")
	skeletonTagRe   = regexp.MustCompile(`(?i)<(?:html|head|body|script|style|meta|link|title)\b`)
	paragraphRe     = regexp.MustCompile(`(?i)<(?:p|h[1-6]|ul|ol|blockquote|figure)\b`)
)

// bodies shorter than this are allowed to have no block structure,
// one-liner drafts are not a formatting defect
const minStructuredBodyLen = 200

// DataQuality scans draft bodies for cleaning and formatting defects and
// returns aggregate counts. Only accepted drafts are scanned, rejected
// duplicates and failed items never reach publication.
func (r *DraftRepository) DataQuality(ctx context.Context) (*domain.DataQualityReport, error) {
	rows := []struct {
		ID      int64  `db:"id"`
		Content string `db:"content_en"`
	}{}

	query := `SELECT id, content_en FROM drafts WHERE status = ?`
	if err := r.db.SelectContext(ctx, &rows, query, string(domain.StatusDraft)); err != nil {
		return nil, fmt.Errorf("scan drafts for quality: %w", err)
	}

	report := &domain.DataQualityReport{GeneratedAt: time.Now().UTC()}
	defective := 0

	for _, row := range rows {
		report.DraftsScanned++
		bad := false

		if fenceLeftoverRe.MatchString(row.Content) {
			report.CodeFenceLeftovers++
			bad = true
		}
		if skeletonTagRe.MatchString(row.Content) {
			report.SkeletonTags++
			bad = true
		}
		body := strings.TrimSpace(row.Content)
		if len([]rune(body)) >= minStructuredBodyLen && !paragraphRe.MatchString(body) {
			report.ParagraphFreeBodies++
			bad = true
		}

		if bad {
			defective++
		}
	}

	if report.DraftsScanned > 0 {
		report.DefectRate = float64(defective) / float64(report.DraftsScanned)
	}
	return report, nil
}
