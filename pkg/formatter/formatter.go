package formatter

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsdesk/sentinel/pkg/domain"
)

// TextEnhancer is an optional external text-enhancement capability used by the
// AI enhancement stage. A nil enhancer means the stage is skipped with a
// warning; formatting never fails because the enhancer is unreachable.
type TextEnhancer interface {
	Enhance(ctx context.Context, htmlContent string) (string, error)
}

// StageOptions gates the individual pipeline stages. Stage order is fixed
// internally and independent of which options are set. Title provides context
// for the heading and SEO stages.
type StageOptions struct {
	Title string

	AddSectionHeadings      bool
	EnhanceQuotes           bool
	OptimizeLists           bool
	EnhanceStructure        bool
	ReadabilityOptimization bool
	SEOOptimization         bool
	VisualEnhancement       bool
	ContentAnalysis         bool
	AddKeyPoints            bool
	AIEnhancement           bool
}

func (o StageOptions) anyEnabled() bool {
	return o.AddSectionHeadings || o.EnhanceQuotes || o.OptimizeLists ||
		o.EnhanceStructure || o.ReadabilityOptimization || o.SEOOptimization ||
		o.VisualEnhancement || (o.ContentAnalysis && o.AddKeyPoints) || o.AIEnhancement
}

// marker classes identify pipeline insertions so that re-formatting the same
// content detects prior work and skips it instead of duplicating it
const (
	markerHeading   = "sentinel-heading"
	markerQuote     = "sentinel-quote"
	markerList      = "sentinel-list"
	markerSection   = "sentinel-section"
	markerAnchor    = "sentinel-anchor"
	markerMedia     = "sentinel-media"
	markerKeyPoints = "sentinel-keypoints"
	markerSplit     = "sentinel-split"
)

// Pipeline applies an ordered sequence of enhancement stages to a cleaned
// fragment. Structural stages (headings, lists, sections) run first, then
// quote/readability/SEO/visual stages, then analysis and AI stages, because
// later stages assume block structure already exists.
type Pipeline struct {
	enhancer TextEnhancer
	stages   []stage
}

type stage struct {
	name    string
	enabled func(StageOptions) bool
	apply   func(ctx context.Context, p *Pipeline, st *state) bool
}

type state struct {
	body     *goquery.Selection
	opts     StageOptions
	warnings []string
}

func (st *state) warn(msg string) {
	st.warnings = append(st.warnings, msg)
}

// New creates a formatting pipeline. The enhancer may be nil, in which case
// the AI enhancement stage reports a warning and is skipped.
func New(enhancer TextEnhancer) *Pipeline {
	p := &Pipeline{enhancer: enhancer}
	p.stages = []stage{
		{"section_headings", func(o StageOptions) bool { return o.AddSectionHeadings },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageHeadings(st) }},
		{"optimize_lists", func(o StageOptions) bool { return o.OptimizeLists },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageLists(st) }},
		{"enhance_structure", func(o StageOptions) bool { return o.EnhanceStructure },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageStructure(st) }},
		{"enhance_quotes", func(o StageOptions) bool { return o.EnhanceQuotes },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageQuotes(st) }},
		{"readability", func(o StageOptions) bool { return o.ReadabilityOptimization },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageReadability(st) }},
		{"seo", func(o StageOptions) bool { return o.SEOOptimization },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageSEO(st) }},
		{"visual", func(o StageOptions) bool { return o.VisualEnhancement },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageVisual(st) }},
		{"key_points", func(o StageOptions) bool { return o.ContentAnalysis && o.AddKeyPoints },
			func(_ context.Context, _ *Pipeline, st *state) bool { return stageKeyPoints(st) }},
		{"ai_enhance", func(o StageOptions) bool { return o.AIEnhancement },
			func(ctx context.Context, p *Pipeline, st *state) bool { return p.stageAIEnhance(ctx, st) }},
	}
	return p
}

// Format runs the enabled stages over the fragment in fixed order and returns
// the result with the names of stages that changed the content plus any
// non-fatal warnings. A stage that finds nothing to do is a no-op, not an
// error. With no stages enabled the content is returned textually unchanged.
func (p *Pipeline) Format(ctx context.Context, fragment domain.CleanedFragment, opts StageOptions) domain.FormattedResult {
	res := domain.FormattedResult{
		Content:       fragment.BodyHTML,
		AppliedStages: []string{},
		Warnings:      []string{},
	}
	if fragment.Empty() || !opts.anyEnabled() {
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment.BodyHTML))
	if err != nil {
		res.Warnings = append(res.Warnings, "fragment parse failed, content left unchanged")
		return res
	}

	st := &state{body: doc.Find("body").First(), opts: opts, warnings: []string{}}
	for _, sg := range p.stages {
		if !sg.enabled(opts) {
			continue
		}
		if sg.apply(ctx, p, st) {
			res.AppliedStages = append(res.AppliedStages, sg.name)
		}
	}

	out, err := st.body.Html()
	if err != nil {
		st.warn("render failed, content left unchanged")
		res.Warnings = st.warnings
		return res
	}
	res.Content = strings.TrimSpace(out)
	res.Warnings = st.warnings
	return res
}
