package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/sentinel/pkg/domain"
)

func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	repos, err := New(context.Background(), Config{
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repos.Close()) })
	return repos
}

func testDraft(url string) *domain.NewsDraft {
	return &domain.NewsDraft{
		Title:     domain.LocalizedText{EN: "Test article", KM: "អត្ថបទសាកល្បង"},
		Content:   domain.LocalizedText{EN: "<p>Body text of the draft under test.</p>"},
		Thumbnail: "https://example.com/thumb.jpg",
		Source:    domain.SourceRef{Name: "test source", URL: url},
		Ingestion: domain.IngestionMeta{
			Method:        "sentinel",
			RunID:         "run-1",
			FetchedAt:     time.Now().UTC().Truncate(time.Second),
			StagesApplied: []string{"section_headings", "enhance_quotes"},
		},
		Status: domain.StatusDraft,
	}
}

func TestDraftRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	draft := testDraft("https://example.com/article-1")
	require.NoError(t, repos.Draft.CreateDraft(ctx, draft))
	assert.NotZero(t, draft.ID)

	got, err := repos.Draft.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.Title.EN, got.Title.EN)
	assert.Equal(t, draft.Title.KM, got.Title.KM)
	assert.Equal(t, draft.Content.EN, got.Content.EN)
	assert.Equal(t, draft.Source.URL, got.Source.URL)
	assert.Equal(t, "sentinel", got.Ingestion.Method)
	assert.Equal(t, []string{"section_headings", "enhance_quotes"}, got.Ingestion.StagesApplied)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repos.Draft.GetDraft(ctx, 12345)
	require.Error(t, err)
}

func TestDraftRepository_FindBySourceURL(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	// absent URL yields nil without error
	got, err := repos.Draft.FindBySourceURL(ctx, "https://example.com/missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	draft := testDraft("https://example.com/article-1")
	require.NoError(t, repos.Draft.CreateDraft(ctx, draft))

	got, err = repos.Draft.FindBySourceURL(ctx, "https://example.com/article-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, draft.ID, got.ID)

	// rejected duplicates don't count for dedupe
	require.NoError(t, repos.Draft.UpdateDraftStatus(ctx, draft.ID, domain.StatusDuplicate))
	got, err = repos.Draft.FindBySourceURL(ctx, "https://example.com/article-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDraftRepository_ListAndCount(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repos.Draft.CreateDraft(ctx, testDraft(fmt.Sprintf("https://example.com/a-%d", i))))
	}

	drafts, err := repos.Draft.ListDrafts(ctx, 3, 0)
	require.NoError(t, err)
	assert.Len(t, drafts, 3)

	rest, err := repos.Draft.ListDrafts(ctx, 10, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	total, err := repos.Draft.CountDrafts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	asDraft, err := repos.Draft.CountDrafts(ctx, domain.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, int64(5), asDraft)

	failed, err := repos.Draft.CountDrafts(ctx, domain.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

func TestDraftRepository_UpdateStatus(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	draft := testDraft("https://example.com/article-1")
	require.NoError(t, repos.Draft.CreateDraft(ctx, draft))

	require.NoError(t, repos.Draft.UpdateDraftStatus(ctx, draft.ID, domain.StatusFailed))
	got, err := repos.Draft.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)

	// missing draft is an error
	require.Error(t, repos.Draft.UpdateDraftStatus(ctx, 12345, domain.StatusFailed))
}

func TestDraftRepository_UniqueSourceBackstop(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Draft.CreateDraft(ctx, testDraft("https://example.com/dup")))

	// second non-rejected draft for the same URL is rejected by the index
	err := repos.Draft.CreateDraft(ctx, testDraft("https://example.com/dup"))
	require.Error(t, err)
}

func TestDraftRepository_DataQuality(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	clean := testDraft("https://example.com/clean")
	require.NoError(t, repos.Draft.CreateDraft(ctx, clean))

	fenced := testDraft("https://example.com/fenced")
	fenced.Content.EN = "<p>Paragraph with leftover fence markers ``` inside the body.</p>"
	require.NoError(t, repos.Draft.CreateDraft(ctx, fenced))

	skeleton := testDraft("https://example.com/skeleton")
	skeleton.Content.EN = "<p>Body</p><script>leaked()</script>"
	require.NoError(t, repos.Draft.CreateDraft(ctx, skeleton))

	// failed drafts are not scanned
	failed := testDraft("https://example.com/failed")
	failed.Status = domain.StatusFailed
	failed.Content.EN = "```broken"
	require.NoError(t, repos.Draft.CreateDraft(ctx, failed))

	report, err := repos.Draft.DataQuality(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.DraftsScanned)
	assert.Equal(t, 1, report.CodeFenceLeftovers)
	assert.Equal(t, 1, report.SkeletonTags)
	assert.Equal(t, 0, report.ParagraphFreeBodies)
	assert.InDelta(t, 2.0/3.0, report.DefectRate, 0.001)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestRepositories_Ping(t *testing.T) {
	repos := setupTestRepos(t)
	require.NoError(t, repos.Ping(context.Background()))
}
