package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// ArticleExtractor downloads an article page and extracts the main content
// markup using trafilatura
type ArticleExtractor struct {
	client        *http.Client
	userAgent     string
	minTextLength int
}

// NewArticleExtractor creates a new content extractor sharing the fetcher's
// HTTP client
func NewArticleExtractor(client *http.Client, userAgent string, minTextLength int) *ArticleExtractor {
	return &ArticleExtractor{
		client:        client,
		userAgent:     userAgent,
		minTextLength: minTextLength,
	}
}

// Extract retrieves the page and returns the extracted article markup
func (e *ArticleExtractor) Extract(ctx context.Context, urlStr string) (string, error) {
	// validate URL
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", urlStr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	addBrowserHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for URL %s", resp.StatusCode, urlStr)
	}

	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		ExcludeTables:   false,
		IncludeImages:   true,
		IncludeLinks:    false,
		Deduplicate:     true,
		OriginalURL:     parsedURL,
	}

	result, err := trafilatura.Extract(resp.Body, opts)
	if err != nil {
		return "", fmt.Errorf("extract content from %s: %w", urlStr, err)
	}
	if result == nil {
		return "", fmt.Errorf("no content extracted from %s", urlStr)
	}

	if len(strings.TrimSpace(result.ContentText)) < e.minTextLength {
		return "", fmt.Errorf("extracted text too short from %s", urlStr)
	}

	// prefer the markup tree, the cleaner handles the rest
	if result.ContentNode != nil {
		var b strings.Builder
		if err := html.Render(&b, result.ContentNode); err == nil {
			return b.String(), nil
		}
	}

	return strings.TrimSpace(result.ContentText), nil
}
