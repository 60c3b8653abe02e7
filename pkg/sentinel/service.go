package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/newsdesk/sentinel/pkg/config"
	"github.com/newsdesk/sentinel/pkg/domain"
	"github.com/newsdesk/sentinel/pkg/formatter"
)

// ErrRunInProgress is returned when RunOnce is called while another cycle is
// active. Concurrent cycles would race the dedupe check, so the second caller
// is rejected rather than queued.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Fetcher supplies candidate items for one cycle
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.CandidateItem, error)
}

// Cleaner repairs raw markup into a well-formed fragment
type Cleaner interface {
	Clean(raw string) domain.CleanedFragment
}

// Formatter runs the enhancement pipeline over a cleaned fragment
type Formatter interface {
	Format(ctx context.Context, fragment domain.CleanedFragment, opts formatter.StageOptions) domain.FormattedResult
}

// Translator populates the secondary language. Failures degrade to an empty
// secondary field, never a failed item.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// DraftStore is the persistence boundary for ingested drafts
type DraftStore interface {
	FindBySourceURL(ctx context.Context, url string) (*domain.NewsDraft, error)
	CreateDraft(ctx context.Context, draft *domain.NewsDraft) error
}

// Config holds orchestrator settings
type Config struct {
	UpdateInterval time.Duration
	MaxWorkers     int
	ItemTimeout    time.Duration
	ActiveHours    string // persist window as HH:MM-HH:MM, empty means always
	Stages         config.FormatterConfig
	TargetLang     string // secondary language, empty disables translation
}

// RunRequest carries per-invocation options for RunOnce
type RunRequest struct {
	PersistOverride bool // write accepted drafts even outside the persist window
}

// Service drives ingestion cycles: fetch candidates, dedupe against stored
// drafts, clean, format, assemble a bilingual draft and persist it. One cycle
// at a time; per-item work runs with bounded concurrency while the dedupe
// check and summary updates stay serialized.
type Service struct {
	fetcher    Fetcher
	cleaner    Cleaner
	formatter  Formatter
	translator Translator
	store      DraftStore
	cfg        Config
	window     *persistWindow

	running   atomic.Bool
	summaryMu sync.RWMutex
	summary   domain.RunSummary
	storeMu   sync.Mutex // serialize dedupe check and draft writes

	wg     sync.WaitGroup
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates the orchestrator. The translator may be nil, which leaves the
// secondary language empty.
func New(f Fetcher, c Cleaner, fm Formatter, tr Translator, store DraftStore, cfg Config) (*Service, error) {
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = 30 * time.Minute
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = time.Minute
	}

	window, err := parseWindow(cfg.ActiveHours)
	if err != nil {
		return nil, fmt.Errorf("parse active hours: %w", err)
	}

	return &Service{
		fetcher:    f,
		cleaner:    c,
		formatter:  fm,
		translator: tr,
		store:      store,
		cfg:        cfg,
		window:     window,
		now:        time.Now,
	}, nil
}

// Start begins the periodic ingestion loop with an immediate first cycle
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.UpdateInterval)
		defer ticker.Stop()

		// run immediately on start
		s.runScheduled(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runScheduled(ctx)
			}
		}
	}()

	lgr.Printf("[INFO] sentinel started with update interval %v, max workers %d", s.cfg.UpdateInterval, s.cfg.MaxWorkers)
}

// Stop gracefully stops the loop and waits for the in-flight cycle
func (s *Service) Stop() {
	lgr.Printf("[INFO] stopping sentinel...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] sentinel stopped")
}

// runScheduled invokes a cycle from the ticker loop, logging instead of
// propagating failures
func (s *Service) runScheduled(ctx context.Context) {
	summary, err := s.RunOnce(ctx, RunRequest{})
	if err != nil {
		lgr.Printf("[WARN] scheduled run skipped: %v", err)
		return
	}
	lgr.Printf("[INFO] run %s finished: fetched %d, accepted %d, duplicate %d, failed %d",
		summary.RunID, summary.ItemsFetched, summary.ItemsAccepted, summary.ItemsDuplicate, summary.ItemsFailed)
}

// RunOnce executes a single ingestion cycle and returns its finalized summary.
// A call while another cycle is active fails immediately with ErrRunInProgress.
// A cycle-level fetch failure still finalizes a summary with LastError set.
func (s *Service) RunOnce(ctx context.Context, req RunRequest) (domain.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.RunSummary{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	runID := uuid.New().String()

	// publish the in-progress summary before any work so concurrent status
	// queries see the running cycle
	s.mutateSummary(func(r *domain.RunSummary) {
		*r = domain.RunSummary{RunID: runID, StartedAt: s.now().UTC(), InProgress: true}
	})

	lgr.Printf("[INFO] run %s started", runID)

	items, err := s.fetcher.Fetch(ctx)
	if err != nil {
		lgr.Printf("[ERROR] run %s: fetch failed: %v", runID, err)
		return s.finalize(func(r *domain.RunSummary) {
			r.LastError = fmt.Sprintf("fetch: %v", err)
		}), nil
	}

	s.mutateSummary(func(r *domain.RunSummary) { r.ItemsFetched = len(items) })

	persist := req.PersistOverride || s.window.contains(s.now())
	if !persist {
		lgr.Printf("[INFO] run %s outside persist window %s, drafts will not be written", runID, s.cfg.ActiveHours)
	}

	seen := make(map[string]bool) // source URLs handled this cycle, guarded by storeMu

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for _, item := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // cycle asked to stop, skip remaining items
			}
			itemCtx, cancel := context.WithTimeout(gctx, s.cfg.ItemTimeout)
			defer cancel()
			s.processItem(itemCtx, item, runID, persist, seen)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are counted per item

	summary := s.finalize(nil)
	return summary, nil
}

// processItem runs one candidate through dedupe, clean, format, translate and
// persist. Every failure mode is counted, never propagated.
func (s *Service) processItem(ctx context.Context, item domain.CandidateItem, runID string, persist bool, seen map[string]bool) {
	// dedupe before the expensive stages, so re-fetched items from prior
	// cycles don't pay cleaning and translation again; the authoritative
	// check runs once more under storeMu before persisting
	if s.knownDuplicate(ctx, item.SourceURL, seen) {
		s.mutateSummary(func(r *domain.RunSummary) { r.ItemsDuplicate++ })
		lgr.Printf("[DEBUG] run %s: duplicate: %s", runID, item.SourceURL)
		return
	}

	fragment := s.cleaner.Clean(item.RawBody)
	if fragment.Empty() {
		lgr.Printf("[WARN] run %s: empty content after cleaning for %s", runID, item.SourceURL)
		s.mutateSummary(func(r *domain.RunSummary) { r.ItemsFailed++ })
		return
	}

	opts := stageOptions(s.cfg.Stages, item.RawTitle)
	res := s.formatter.Format(ctx, fragment, opts)
	for _, w := range res.Warnings {
		lgr.Printf("[WARN] run %s: formatter warning for %s: %s", runID, item.SourceURL, w)
	}

	draft := &domain.NewsDraft{
		Title:     domain.LocalizedText{EN: item.RawTitle},
		Content:   domain.LocalizedText{EN: res.Content},
		Thumbnail: item.ThumbnailURL,
		Source:    domain.SourceRef{Name: item.SourceName, URL: item.SourceURL},
		Ingestion: domain.IngestionMeta{
			Method:        "sentinel",
			RunID:         runID,
			FetchedAt:     item.FetchedAt,
			StagesApplied: res.AppliedStages,
		},
		Status: domain.StatusDraft,
	}
	s.translate(ctx, draft)

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if seen[item.SourceURL] {
		s.mutateSummary(func(r *domain.RunSummary) { r.ItemsDuplicate++ })
		lgr.Printf("[DEBUG] run %s: duplicate within cycle: %s", runID, item.SourceURL)
		return
	}
	existing, err := s.store.FindBySourceURL(ctx, item.SourceURL)
	if err != nil {
		lgr.Printf("[ERROR] run %s: dedupe lookup failed for %s: %v", runID, item.SourceURL, err)
		s.mutateSummary(func(r *domain.RunSummary) {
			r.ItemsFailed++
			r.LastError = fmt.Sprintf("dedupe lookup: %v", err)
		})
		return
	}
	if existing != nil {
		s.mutateSummary(func(r *domain.RunSummary) { r.ItemsDuplicate++ })
		lgr.Printf("[DEBUG] run %s: duplicate of draft %d: %s", runID, existing.ID, item.SourceURL)
		return
	}
	seen[item.SourceURL] = true

	if persist {
		if err := s.store.CreateDraft(ctx, draft); err != nil {
			lgr.Printf("[ERROR] run %s: persist failed for %s: %v", runID, item.SourceURL, err)
			s.mutateSummary(func(r *domain.RunSummary) {
				r.ItemsFailed++
				r.LastError = fmt.Sprintf("persist %s: %v", item.SourceURL, err)
			})
			return
		}
	}

	s.mutateSummary(func(r *domain.RunSummary) { r.ItemsAccepted++ })
	lgr.Printf("[DEBUG] run %s: accepted %s (persisted=%v, stages=%v)", runID, item.SourceURL, persist, res.AppliedStages)
}

// knownDuplicate reports whether the URL was already handled this cycle or
// belongs to a stored non-rejected draft. Lookup errors are ignored here, the
// persist-time check repeats the lookup and handles them.
func (s *Service) knownDuplicate(ctx context.Context, url string, seen map[string]bool) bool {
	s.storeMu.Lock()
	handled := seen[url]
	s.storeMu.Unlock()
	if handled {
		return true
	}
	existing, err := s.store.FindBySourceURL(ctx, url)
	return err == nil && existing != nil
}

// translate fills the secondary-language fields; failures leave them empty
func (s *Service) translate(ctx context.Context, draft *domain.NewsDraft) {
	if s.translator == nil || s.cfg.TargetLang == "" {
		return
	}

	title, err := s.translator.Translate(ctx, draft.Title.EN, s.cfg.TargetLang)
	if err != nil {
		lgr.Printf("[WARN] title translation failed for %s: %v", draft.Source.URL, err)
	} else {
		draft.Title.KM = title
	}

	content, err := s.translator.Translate(ctx, draft.Content.EN, s.cfg.TargetLang)
	if err != nil {
		lgr.Printf("[WARN] content translation failed for %s: %v", draft.Source.URL, err)
		return
	}
	draft.Content.KM = content
}

// Status returns a snapshot of the current run state. Before the first cycle
// it is the zero "never run" summary.
func (s *Service) Status() domain.RunSummary {
	s.summaryMu.RLock()
	defer s.summaryMu.RUnlock()
	return s.summary
}

// mutateSummary applies fn to the process-wide summary slot under lock
func (s *Service) mutateSummary(fn func(*domain.RunSummary)) {
	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()
	fn(&s.summary)
}

// finalize stamps FinishedAt, applies the optional extra mutation and returns
// the finalized summary copy
func (s *Service) finalize(extra func(*domain.RunSummary)) domain.RunSummary {
	var out domain.RunSummary
	s.mutateSummary(func(r *domain.RunSummary) {
		if extra != nil {
			extra(r)
		}
		r.FinishedAt = s.now().UTC()
		r.InProgress = false
		out = *r
	})
	return out
}

// stageOptions converts config toggles to per-item pipeline options
func stageOptions(cfg config.FormatterConfig, title string) formatter.StageOptions {
	return formatter.StageOptions{
		Title:                   title,
		AddSectionHeadings:      cfg.AddSectionHeadings,
		EnhanceQuotes:           cfg.EnhanceQuotes,
		OptimizeLists:           cfg.OptimizeLists,
		EnhanceStructure:        cfg.EnhanceStructure,
		ReadabilityOptimization: cfg.ReadabilityOptimization,
		SEOOptimization:         cfg.SEOOptimization,
		VisualEnhancement:       cfg.VisualEnhancement,
		ContentAnalysis:         cfg.ContentAnalysis,
		AddKeyPoints:            cfg.AddKeyPoints,
		AIEnhancement:           cfg.AIEnhancement,
	}
}
