package cleaner

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/newsdesk/sentinel/pkg/domain"
)

// Cleaner repairs raw scraped markup into a well-formed HTML fragment limited
// to a small block-element subset. Clean is total and idempotent: it never
// fails, and cleaning its own output returns the same fragment. Idempotence
// matters because stored drafts may be re-processed through the same pipeline.
type Cleaner struct {
	policy      *bluemonday.Policy
	minStrayLen int
}

// minStrayTextLen is the minimum rune length for top-level text without a
// block wrapper to survive cleaning, filters out boilerplate fragments
const minStrayTextLen = 25

var (
	// code-fence and triple-quote markers leaked by scrapers, optionally tagged html
	fenceRe = regexp.MustCompile("(?:```|~~~)(?:html?)?|\"{3}|'{3}")

	blankLinesRe = regexp.MustCompile(`\n[ \t]*\n+`)
	blockOpenRe  = regexp.MustCompile(`(<(?:p|h[1-6]|li|blockquote|figcaption)(?:\s[^>]*)?>)\s+`)
	blockCloseRe = regexp.MustCompile(`\s+(</(?:p|h[1-6]|li|blockquote|figcaption)>)`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// New creates a cleaner with the default sanitizer policy
func New() *Cleaner {
	return &Cleaner{
		policy:      newPolicy(),
		minStrayLen: minStrayTextLen,
	}
}

// newPolicy builds the allowlist for cleaned fragments. Class attributes are
// kept on block elements because the formatter marks its own insertions with
// classes and re-cleaning must not strip those markers.
func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "h2", "h3", "ul", "ol", "li", "blockquote", "cite",
		"em", "strong", "b", "i", "u", "br", "span", "div", "figure", "figcaption",
		"img", "iframe", "a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("src", "title", "allowfullscreen").OnElements("iframe")
	p.AllowAttrs("class").OnElements("p", "h2", "h3", "ul", "ol", "blockquote",
		"span", "div", "figure", "img", "iframe")
	p.AllowAttrs("id").OnElements("span", "h2", "h3")
	p.AllowDataAttributes()
	p.AllowStandardURLs()
	return p
}

// Clean sanitizes raw scraped markup into a well-formed fragment. Applied in
// fixed order: strip document skeleton, unwrap stray code-fence markers,
// sanitize to the allowed element subset, drop short unwrapped text and wrap
// long unwrapped text into paragraphs, normalize whitespace. The worst input
// degrades to an escaped-text paragraph rather than an error.
func (c *Cleaner) Clean(raw string) domain.CleanedFragment {
	s := strings.TrimSpace(raw)
	if s == "" {
		return domain.CleanedFragment{}
	}

	// unwrap code fences, keep the wrapped content
	s = fenceRe.ReplaceAllString(s, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return domain.CleanedFragment{BodyHTML: escapedParagraph(s)}
	}

	// scraped pages sometimes leak whole documents into the body field,
	// drop document skeleton with contents
	doc.Find("head, script, style, meta, link, title, noscript, template").Remove()

	body := doc.Find("body").First()
	if body.Length() == 0 {
		return domain.CleanedFragment{}
	}

	inner, err := body.Html()
	if err != nil {
		return domain.CleanedFragment{BodyHTML: escapedParagraph(s)}
	}

	sanitized := c.policy.Sanitize(inner)

	out := c.rebuildTopLevel(sanitized)
	out = blankLinesRe.ReplaceAllString(out, "\n")
	out = blockOpenRe.ReplaceAllString(out, "$1")
	out = blockCloseRe.ReplaceAllString(out, "$1")
	return domain.CleanedFragment{BodyHTML: strings.TrimSpace(out)}
}

// rebuildTopLevel walks the top-level nodes of the sanitized fragment, keeps
// elements as-is, wraps long stray text into paragraphs and drops short one
func (c *Cleaner) rebuildTopLevel(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return fragment
	}

	var b strings.Builder
	for n := body.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		switch n.Type {
		case html.TextNode:
			text := strings.TrimSpace(spacesRe.ReplaceAllString(n.Data, " "))
			if utf8.RuneCountInString(text) < c.minStrayLen {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(text))
			b.WriteString("</p>")
		case html.ElementNode:
			if err := html.Render(&b, n); err != nil {
				continue
			}
		}
	}
	return b.String()
}

// escapedParagraph is the total-function fallback for unparseable input
func escapedParagraph(s string) string {
	text := strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
	if text == "" {
		return ""
	}
	return "<p>" + html.EscapeString(text) + "</p>"
}
