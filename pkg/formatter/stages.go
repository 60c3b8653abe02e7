package formatter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	maxListLineLen    = 80  // runes, lines longer than this don't look list-like
	minListLines      = 3   // minimum fragments to form a list
	minSectionRun     = 3   // adjacent short paragraphs grouped into a section
	maxShortParaLen   = 150 // runes, paragraphs shorter than this count as short
	maxParagraphLen   = 600 // runes, paragraphs longer than this get split
	maxKeyPoints      = 3
	maxKeyPointLen    = 160
	minQuoteLen       = 20
	minKeywordLetters = 4
)

var (
	brRe      = regexp.MustCompile(`<br\s*/?>|\n`)
	bulletRe  = regexp.MustCompile(`^\s*(?:[-*•–—]|\d+[.)])\s+`)
	quoteRe   = regexp.MustCompile(`^[“"]([^”"]+)[”"]\s*(?:[,.]?\s*(?:[-–—]\s*|said\s+|says\s+|according to\s+)(.+?))?\s*\.?$`)
	nonWordRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// topicHeadings maps detected keywords to a section heading, checked in order
var topicHeadings = []struct {
	keywords []string
	heading  string
}{
	{[]string{"economy", "economic", "market", "inflation", "trade", "export"}, "Economy"},
	{[]string{"health", "hospital", "disease", "vaccine", "medical"}, "Health"},
	{[]string{"election", "government", "minister", "parliament", "policy"}, "Politics"},
	{[]string{"technology", "software", "startup", "digital", "internet"}, "Technology"},
	{[]string{"school", "university", "education", "student"}, "Education"},
	{[]string{"climate", "environment", "flood", "drought"}, "Environment"},
	{[]string{"football", "tournament", "championship", "athlete"}, "Sport"},
}

// stageHeadings inserts a heading before the first paragraph when the
// fragment has no heading at all. Any existing h2/h3, including a previously
// inserted marker heading, means there is nothing to do.
func stageHeadings(st *state) bool {
	if st.body.Find("h2, h3").Length() > 0 {
		return false
	}
	first := st.body.Find("p").First()
	if first.Length() == 0 {
		return false
	}
	topic := detectTopic(st.opts.Title + " " + st.body.Text())
	first.BeforeHtml(fmt.Sprintf("<h2 class=%q>%s</h2>", markerHeading, html.EscapeString(topic)))
	return true
}

func detectTopic(text string) string {
	lower := strings.ToLower(text)
	for _, t := range topicHeadings {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.heading
			}
		}
	}
	return "Overview"
}

// stageLists converts paragraphs made of short line-break separated fragments
// into a list. Only paragraphs whose element children are all <br> qualify,
// so inline markup is never destroyed.
func stageLists(st *state) bool {
	changed := false
	st.body.Find("p").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Not("br").Length() > 0 {
			return
		}
		inner, err := s.Html()
		if err != nil {
			return
		}
		parts := brRe.Split(inner, -1)
		if len(parts) < minListLines {
			return
		}
		lines := make([]string, 0, len(parts))
		bullets := 0
		for _, part := range parts {
			text := strings.TrimSpace(html.UnescapeString(part))
			if bulletRe.MatchString(text) {
				bullets++
				text = bulletRe.ReplaceAllString(text, "")
			}
			if text == "" {
				continue
			}
			lines = append(lines, text)
		}
		if len(lines) < minListLines {
			return
		}
		// list-like: either bulleted or uniformly short fragments
		if bullets < len(lines) {
			for _, line := range lines {
				if utf8.RuneCountInString(line) > maxListLineLen {
					return
				}
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<ul class=%q>", markerList)
		for _, line := range lines {
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(line))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
		s.ReplaceWithHtml(b.String())
		changed = true
	})
	return changed
}

// stageStructure groups runs of adjacent short paragraphs into section
// wrappers without altering content order. Wrapped paragraphs are no longer
// direct children of the body, so repeated runs leave them alone.
func stageStructure(st *state) bool {
	changed := false
	var run []*goquery.Selection

	flush := func() {
		if len(run) >= minSectionRun {
			run[0].BeforeHtml(fmt.Sprintf("<div class=%q></div>", markerSection))
			section := run[0].Prev()
			for _, p := range run {
				section.AppendSelection(p)
			}
			changed = true
		}
		run = nil
	}

	st.body.Children().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "p" && !s.HasClass(markerSplit) &&
			utf8.RuneCountInString(strings.TrimSpace(s.Text())) < maxShortParaLen {
			run = append(run, s)
			return
		}
		flush()
	})
	flush()
	return changed
}

// stageQuotes wraps recognized quotation paragraphs in a blockquote,
// preserving attribution text. Paragraphs already inside a blockquote are
// prior insertions and are skipped.
func stageQuotes(st *state) bool {
	changed := false
	st.body.Find("p").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("blockquote").Length() > 0 || s.HasClass(markerSplit) {
			return
		}
		text := strings.TrimSpace(s.Text())
		m := quoteRe.FindStringSubmatch(text)
		if m == nil || utf8.RuneCountInString(m[1]) < minQuoteLen {
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "<blockquote class=%q><p>“%s”</p>", markerQuote, html.EscapeString(m[1]))
		if attribution := strings.TrimSpace(m[2]); attribution != "" {
			fmt.Fprintf(&b, "<cite>%s</cite>", html.EscapeString(attribution))
		}
		b.WriteString("</blockquote>")
		s.ReplaceWithHtml(b.String())
		changed = true
	})
	return changed
}

// stageReadability splits over-long plain-text paragraphs at sentence
// boundaries. Resulting paragraphs are under the threshold, so a second pass
// finds nothing to split.
func stageReadability(st *state) bool {
	changed := false
	st.body.Find("p").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 || s.ParentsFiltered("blockquote").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if utf8.RuneCountInString(text) <= maxParagraphLen {
			return
		}
		chunks := packSentences(splitSentences(text), maxParagraphLen)
		if len(chunks) < 2 {
			return
		}
		var b strings.Builder
		for _, chunk := range chunks {
			fmt.Fprintf(&b, "<p class=%q>", markerSplit)
			b.WriteString(html.EscapeString(chunk))
			b.WriteString("</p>")
		}
		s.ReplaceWithHtml(b.String())
		changed = true
	})
	return changed
}

// splitSentences breaks text after sentence terminators followed by space
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?' || r == '។') &&
			(i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// packSentences greedily joins sentences into chunks no longer than limit;
// a single oversized sentence stays intact rather than being cut mid-word
func packSentences(sentences []string, limit int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0
	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if currentLen > 0 && currentLen+sLen+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(s)
		currentLen += sLen
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// stageSEO makes sure the first paragraph carries a keyword anchor derived
// from the title. When the keyword already appears in the text, or the anchor
// was inserted earlier, nothing changes.
func stageSEO(st *state) bool {
	first := st.body.Find("p").First()
	if first.Length() == 0 {
		return false
	}
	if st.body.Find("span." + markerAnchor).Length() > 0 {
		return false
	}
	keyword := seoKeyword(st.opts.Title)
	if keyword == "" {
		return false
	}
	if strings.Contains(strings.ToLower(first.Text()), keyword) {
		return false
	}
	slug := nonWordRe.ReplaceAllString(keyword, "-")
	first.PrependHtml(fmt.Sprintf("<span class=%q id=\"kw-%s\"></span>", markerAnchor, slug))
	return true
}

// seoKeyword picks the first significant word of the title
func seoKeyword(title string) string {
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if utf8.RuneCountInString(w) >= minKeywordLetters {
			return w
		}
	}
	return ""
}

// stageVisual adds presentational classes to images and embeds, never
// touching textual content
func stageVisual(st *state) bool {
	changed := false
	st.body.Find("img, iframe").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(markerMedia) {
			return
		}
		s.AddClass(markerMedia)
		changed = true
	})
	return changed
}

// stageKeyPoints appends a generated summary list built from the first
// sentence of the longest paragraphs. The marker class on the list makes
// repeated formatting skip the whole stage.
func stageKeyPoints(st *state) bool {
	if st.body.Find("ul."+markerKeyPoints).Length() > 0 {
		return false
	}

	type para struct {
		idx  int
		text string
		size int
	}
	var paras []para
	st.body.Find("p").Each(func(i int, s *goquery.Selection) {
		if s.ParentsFiltered("blockquote").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		paras = append(paras, para{idx: i, text: text, size: utf8.RuneCountInString(text)})
	})

	sort.SliceStable(paras, func(i, j int) bool { return paras[i].size > paras[j].size })
	if len(paras) > maxKeyPoints {
		paras = paras[:maxKeyPoints]
	}
	sort.SliceStable(paras, func(i, j int) bool { return paras[i].idx < paras[j].idx })

	var points []string
	for _, p := range paras {
		sentences := splitSentences(p.text)
		if len(sentences) == 0 {
			continue
		}
		point := sentences[0]
		if utf8.RuneCountInString(point) > maxKeyPointLen {
			point = string([]rune(point)[:maxKeyPointLen-1]) + "…"
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		st.warn("content analysis found no key points")
		return false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<ul class=%q>", markerKeyPoints)
	for _, p := range points {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(p))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	st.body.AppendHtml(b.String())
	return true
}

// stageAIEnhance delegates to the external text enhancer. Unavailability or
// failure records a warning and leaves the content untouched.
func (p *Pipeline) stageAIEnhance(ctx context.Context, st *state) bool {
	if p.enhancer == nil {
		st.warn("ai enhancement skipped: enhancer not configured")
		return false
	}
	current, err := st.body.Html()
	if err != nil {
		st.warn("ai enhancement skipped: render failed")
		return false
	}
	enhanced, err := p.enhancer.Enhance(ctx, current)
	if err != nil {
		st.warn("ai enhancement skipped: " + err.Error())
		return false
	}
	if strings.TrimSpace(enhanced) == "" {
		st.warn("ai enhancement skipped: empty response")
		return false
	}
	st.body.SetHtml(enhanced)
	return true
}
