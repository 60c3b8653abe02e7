package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/mmcdole/gofeed"

	"github.com/newsdesk/sentinel/pkg/config"
	"github.com/newsdesk/sentinel/pkg/domain"
)

// Fetcher produces candidate items from the configured news sources. Each
// source is an RSS/Atom feed; sources flagged with fetch_full_content also
// download the article page and extract the full body. Failures are
// per-source: one broken source never aborts the whole fetch.
type Fetcher struct {
	sources   []config.SourceConfig
	client    *http.Client
	userAgent string
	extractor *ArticleExtractor
}

// New creates a fetcher for the given sources
func New(sources []config.SourceConfig, cfg config.FetchConfig) *Fetcher {
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Fetcher{
		sources:   sources,
		client:    client,
		userAgent: cfg.UserAgent,
		extractor: NewArticleExtractor(client, cfg.UserAgent, cfg.MinTextLength),
	}
}

// Fetch gathers candidate items from all sources. It returns an error only
// when every source failed, which the orchestrator treats as a cycle-level
// fetch failure.
func (f *Fetcher) Fetch(ctx context.Context) ([]domain.CandidateItem, error) {
	var items []domain.CandidateItem
	failed := 0

	for _, src := range f.sources {
		srcItems, err := f.fetchSource(ctx, src)
		if err != nil {
			lgr.Printf("[WARN] source %s failed: %v", src.Name, err)
			failed++
			continue
		}
		items = append(items, srcItems...)
	}

	if len(f.sources) > 0 && failed == len(f.sources) {
		return nil, fmt.Errorf("all %d sources failed", failed)
	}
	return items, nil
}

// fetchSource pulls one feed and converts its entries to candidate items
func (f *Fetcher) fetchSource(ctx context.Context, src config.SourceConfig) ([]domain.CandidateItem, error) {
	body, err := f.get(ctx, src.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.CandidateItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if len(items) >= src.MaxItems {
			break
		}
		if entry.Link == "" {
			continue
		}

		rawBody := entry.Content
		if rawBody == "" {
			rawBody = entry.Description
		}

		if src.FetchFullContent {
			full, err := f.extractor.Extract(ctx, entry.Link)
			if err != nil {
				lgr.Printf("[WARN] full content extraction failed for %s, using feed body: %v", entry.Link, err)
			} else {
				rawBody = full
			}
		}

		items = append(items, domain.CandidateItem{
			SourceURL:    entry.Link,
			SourceName:   src.Name,
			RawTitle:     entry.Title,
			RawBody:      rawBody,
			ThumbnailURL: thumbnailURL(entry),
			FetchedAt:    time.Now(),
		})
	}

	lgr.Printf("[DEBUG] source %s produced %d candidates", src.Name, len(items))
	return items, nil
}

// thumbnailURL picks a thumbnail from feed metadata if present
func thumbnailURL(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc.Type == "image/jpeg" || enc.Type == "image/png" || enc.Type == "image/webp" {
			return enc.URL
		}
	}
	return ""
}

// get retrieves content from a URL
func (f *Fetcher) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	// add browser-like headers
	addBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
