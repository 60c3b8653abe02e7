package sentinel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/sentinel/pkg/cleaner"
	"github.com/newsdesk/sentinel/pkg/config"
	"github.com/newsdesk/sentinel/pkg/domain"
	"github.com/newsdesk/sentinel/pkg/formatter"
)

type fakeFetcher struct {
	items     []domain.CandidateItem
	err       error
	started   chan struct{} // closed when Fetch is first entered, optional
	startOnce sync.Once
	release   chan struct{} // Fetch blocks until closed, optional
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]domain.CandidateItem, error) {
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

type fakeStore struct {
	mu        sync.Mutex
	drafts    []*domain.NewsDraft
	createErr error
	findErr   error
}

func (s *fakeStore) FindBySourceURL(_ context.Context, url string) (*domain.NewsDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, d := range s.drafts {
		if d.Source.URL == url && d.Status != domain.StatusDuplicate {
			return d, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateDraft(_ context.Context, draft *domain.NewsDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *draft
	cp.ID = int64(len(s.drafts) + 1)
	s.drafts = append(s.drafts, &cp)
	draft.ID = cp.ID
	return nil
}

func (s *fakeStore) all() []*domain.NewsDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.NewsDraft, len(s.drafts))
	copy(out, s.drafts)
	return out
}

type fakeTranslator struct {
	err    error
	prefix string
}

func (t *fakeTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.prefix + text, nil
}

type countingTranslator struct {
	calls atomic.Int32
}

func (t *countingTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	t.calls.Add(1)
	return text, nil
}

// blockingCleaner holds the first Clean call until released, to let tests
// cancel a cycle while an item is in flight
type blockingCleaner struct {
	inner   *cleaner.Cleaner
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (c *blockingCleaner) Clean(raw string) domain.CleanedFragment {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return c.inner.Clean(raw)
}

func candidate(url, title string) domain.CandidateItem {
	return domain.CandidateItem{
		SourceURL:  url,
		SourceName: "test source",
		RawTitle:   title,
		RawBody:    "<p>A sufficiently long paragraph of news body text for testing purposes.</p>",
		FetchedAt:  time.Now(),
	}
}

func newTestService(t *testing.T, f Fetcher, store DraftStore, tr Translator, cfg Config) *Service {
	t.Helper()
	cfg.Stages = config.FormatterConfig{AddSectionHeadings: true}
	svc, err := New(f, cleaner.New(), formatter.New(nil), tr, store, cfg)
	require.NoError(t, err)
	return svc
}

func TestService_RunOnce(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{
		candidate("https://example.com/a", "Article A"),
		candidate("https://example.com/b", "Article B"),
	}}
	svc := newTestService(t, fetcher, store, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.InProgress)
	assert.False(t, summary.FinishedAt.IsZero())
	assert.Equal(t, 2, summary.ItemsFetched)
	assert.Equal(t, 2, summary.ItemsAccepted)
	assert.Equal(t, 0, summary.ItemsDuplicate)
	assert.Equal(t, 0, summary.ItemsFailed)
	assert.Empty(t, summary.LastError)

	drafts := store.all()
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Equal(t, domain.StatusDraft, d.Status)
		assert.Equal(t, "sentinel", d.Ingestion.Method)
		assert.Equal(t, summary.RunID, d.Ingestion.RunID)
		assert.NotEmpty(t, d.Content.EN)
		assert.Empty(t, d.Content.KM)
		assert.Contains(t, d.Ingestion.StagesApplied, "section_headings")
	}
}

func TestService_DedupeWithinCycle(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{
		candidate("https://example.com/same", "First copy"),
		candidate("https://example.com/same", "Second copy"),
	}}
	svc := newTestService(t, fetcher, store, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsAccepted)
	assert.Equal(t, 1, summary.ItemsDuplicate)
	assert.Len(t, store.all(), 1)
}

func TestService_DedupeAcrossCycles(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
	svc := newTestService(t, fetcher, store, nil, Config{})

	first, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.ItemsAccepted)

	second, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.ItemsAccepted)
	assert.Equal(t, 1, second.ItemsDuplicate)

	// exactly one non-rejected draft for the URL
	assert.Len(t, store.all(), 1)
}

func TestService_DuplicateSkipsExpensiveStages(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, store.CreateDraft(context.Background(), &domain.NewsDraft{
		Source: domain.SourceRef{Name: "test source", URL: "https://example.com/a"},
		Status: domain.StatusDraft,
	}))

	tr := &countingTranslator{}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
	svc := newTestService(t, fetcher, store, tr, Config{TargetLang: "km"})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsDuplicate)
	assert.Equal(t, 0, summary.ItemsAccepted)
	assert.Len(t, store.all(), 1)

	// a known duplicate never reaches the translation collaborator
	assert.Equal(t, int32(0), tr.calls.Load())
}

func TestService_DuplicateWithEmptyBodyCountsDuplicate(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, store.CreateDraft(context.Background(), &domain.NewsDraft{
		Source: domain.SourceRef{Name: "test source", URL: "https://example.com/a"},
		Status: domain.StatusDraft,
	}))

	// the duplicate check precedes cleaning, so a duplicate whose body would
	// clean to empty still counts as duplicate, not failed
	item := candidate("https://example.com/a", "Article A")
	item.RawBody = "<script>tracking()</script>"
	svc := newTestService(t, &fakeFetcher{items: []domain.CandidateItem{item}}, store, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsDuplicate)
	assert.Equal(t, 0, summary.ItemsFailed)
}

func TestService_EmptyCleanedBodyFails(t *testing.T) {
	item := candidate("https://example.com/empty", "Empty one")
	item.RawBody = "<script>only skeleton content()</script>"
	store := &fakeStore{}
	svc := newTestService(t, &fakeFetcher{items: []domain.CandidateItem{item}}, store, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsFailed)
	assert.Equal(t, 0, summary.ItemsAccepted)
	assert.Empty(t, store.all())
}

func TestService_FetchFailureFinalizesSummary(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{err: errors.New("network down")}, &fakeStore{}, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsFetched)
	assert.Contains(t, summary.LastError, "network down")
	assert.False(t, summary.InProgress)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestService_PersistErrorCountsFailed(t *testing.T) {
	store := &fakeStore{createErr: errors.New("disk full")}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
	svc := newTestService(t, fetcher, store, nil, Config{})

	summary, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsFailed)
	assert.Equal(t, 0, summary.ItemsAccepted)
	assert.Contains(t, summary.LastError, "disk full")
}

func TestService_SingleRunGuard(t *testing.T) {
	fetcher := &fakeFetcher{
		items:   []domain.CandidateItem{candidate("https://example.com/a", "Article A")},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(t, fetcher, &fakeStore{}, nil, Config{})

	done := make(chan domain.RunSummary, 1)
	go func() {
		summary, err := svc.RunOnce(context.Background(), RunRequest{})
		assert.NoError(t, err)
		done <- summary
	}()

	<-fetcher.started
	assert.True(t, svc.Status().InProgress)

	_, err := svc.RunOnce(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(fetcher.release)
	summary := <-done
	assert.Equal(t, 1, summary.ItemsAccepted)

	// guard released after the first run finished
	_, err = svc.RunOnce(context.Background(), RunRequest{})
	assert.NoError(t, err)
}

func TestService_Translation(t *testing.T) {
	t.Run("translated fields populated", func(t *testing.T) {
		store := &fakeStore{}
		fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
		svc := newTestService(t, fetcher, store, &fakeTranslator{prefix: "km:"}, Config{TargetLang: "km"})

		_, err := svc.RunOnce(context.Background(), RunRequest{})
		require.NoError(t, err)

		drafts := store.all()
		require.Len(t, drafts, 1)
		assert.Equal(t, "km:Article A", drafts[0].Title.KM)
		assert.NotEmpty(t, drafts[0].Content.KM)
	})

	t.Run("translation failure leaves secondary empty", func(t *testing.T) {
		store := &fakeStore{}
		fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
		svc := newTestService(t, fetcher, store, &fakeTranslator{err: errors.New("unavailable")}, Config{TargetLang: "km"})

		summary, err := svc.RunOnce(context.Background(), RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ItemsAccepted)

		drafts := store.all()
		require.Len(t, drafts, 1)
		assert.Equal(t, domain.StatusDraft, drafts[0].Status)
		assert.Empty(t, drafts[0].Title.KM)
		assert.Empty(t, drafts[0].Content.KM)
	})
}

func TestService_PersistWindow(t *testing.T) {
	outside := time.Date(2025, 6, 1, 3, 0, 0, 0, time.Local) // 03:00, outside 06:00-22:00

	t.Run("outside window counts but does not persist", func(t *testing.T) {
		store := &fakeStore{}
		fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
		svc := newTestService(t, fetcher, store, nil, Config{ActiveHours: "06:00-22:00"})
		svc.now = func() time.Time { return outside }

		summary, err := svc.RunOnce(context.Background(), RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ItemsAccepted)
		assert.Empty(t, store.all())
	})

	t.Run("persist override forces writes", func(t *testing.T) {
		store := &fakeStore{}
		fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
		svc := newTestService(t, fetcher, store, nil, Config{ActiveHours: "06:00-22:00"})
		svc.now = func() time.Time { return outside }

		summary, err := svc.RunOnce(context.Background(), RunRequest{PersistOverride: true})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ItemsAccepted)
		assert.Len(t, store.all(), 1)
	})
}

func TestService_CancellationFinalizesPartialCycle(t *testing.T) {
	store := &fakeStore{}
	items := []domain.CandidateItem{
		candidate("https://example.com/a", "Article A"),
		candidate("https://example.com/b", "Article B"),
		candidate("https://example.com/c", "Article C"),
	}
	cl := &blockingCleaner{inner: cleaner.New(), entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := New(&fakeFetcher{items: items}, cl, formatter.New(nil), nil, store,
		Config{MaxWorkers: 1, Stages: config.FormatterConfig{AddSectionHeadings: true}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan domain.RunSummary, 1)
	go func() {
		summary, runErr := svc.RunOnce(ctx, RunRequest{})
		assert.NoError(t, runErr)
		done <- summary
	}()

	// cancel while the first item is in flight, then let it finish
	<-cl.entered
	cancel()
	close(cl.release)

	// the cycle still finalizes a summary reflecting work done so far
	summary := <-done
	assert.False(t, summary.InProgress)
	assert.False(t, summary.FinishedAt.IsZero())
	assert.Equal(t, 3, summary.ItemsFetched)
	assert.Equal(t, 1, summary.ItemsAccepted)
	assert.Equal(t, 0, summary.ItemsFailed)
	assert.Len(t, store.all(), 1)
}

func TestService_StartStop(t *testing.T) {
	store := &fakeStore{}
	fetcher := &fakeFetcher{items: []domain.CandidateItem{candidate("https://example.com/a", "Article A")}}
	svc := newTestService(t, fetcher, store, nil, Config{UpdateInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	// first cycle runs immediately
	require.Eventually(t, func() bool {
		s := svc.Status()
		return s.RunID != "" && !s.InProgress
	}, 5*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	assert.Equal(t, 1, svc.Status().ItemsAccepted)
	assert.Len(t, store.all(), 1)
}

func TestService_Status(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{}, &fakeStore{}, nil, Config{})

	// never run yet
	status := svc.Status()
	assert.Empty(t, status.RunID)
	assert.False(t, status.InProgress)

	_, err := svc.RunOnce(context.Background(), RunRequest{})
	require.NoError(t, err)

	status = svc.Status()
	assert.NotEmpty(t, status.RunID)
	assert.False(t, status.InProgress)
}

func TestService_BadActiveHours(t *testing.T) {
	_, err := New(&fakeFetcher{}, cleaner.New(), formatter.New(nil), nil, &fakeStore{},
		Config{ActiveHours: "6am-10pm"})
	require.Error(t, err)
}
