// Package layout turns a markup document into a print-stable paginated
// artifact.
//
// Generator output cannot be trusted to print well, so the stabilizer
// applies the same rules to every input before it reaches an engine:
//   - non-string inputs are coerced to markup deterministically
//   - empty input becomes a minimal placeholder document
//   - the body is sanitized and print CSS is injected around it
//   - malformed page formats fall back to A4 portrait
//
// Engine failures, panics included, come back as *core.RenderError. There
// are no retries here; the orchestrator owns retry policy.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/extract"
	"github.com/gaurav-prasanna/newsletterpipe/core/fallback"
	"github.com/gaurav-prasanna/newsletterpipe/core/normalize"
	"github.com/gaurav-prasanna/newsletterpipe/core/render"
)

// DefaultPageFormat is used whenever the requested format is malformed.
var DefaultPageFormat = core.PageFormat{Size: "A4", Orientation: "portrait", MarginMM: 15}

const (
	maxMarginMM = 50
	maxColumns  = 4
	// placeholderSrc marks photo boxes in the Markdown projection.
	placeholderSrc = "photo-placeholder"
)

var pageSizes = map[string]string{
	"a3": "A3", "a4": "A4", "a5": "A5", "letter": "Letter", "legal": "Legal",
}

// Metadata describes the document being rendered.
type Metadata struct {
	Title    string
	Subtitle string
	Columns  int
	Outline  *core.Outline
}

// jobState tracks one render call.
type jobState string

const (
	jobIdle      jobState = "idle"
	jobRendering jobState = "rendering"
	jobDone      jobState = "done"
	jobFailed    jobState = "failed"
)

// Stabilizer prepares documents for printing and runs the engine.
type Stabilizer struct {
	engine     core.Engine
	fonts      []string
	logger     *slog.Logger
	now        func() time.Time
	extractor  *extract.BodyExtractor
	normalizer *normalize.MarkdownNormalizer
	policy     *bluemonday.Policy
}

// Option configures a Stabilizer.
type Option func(*Stabilizer)

// WithFonts sets the TrueType candidates handed to the engine, in order of
// preference.
func WithFonts(fonts []string) Option {
	return func(s *Stabilizer) { s.fonts = fonts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stabilizer) { s.logger = l }
}

// WithClock sets the time source used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Stabilizer) { s.now = now }
}

// New creates a Stabilizer that renders with engine.
func New(engine core.Engine, opts ...Option) *Stabilizer {
	policy := bluemonday.UGCPolicy()
	policy.AllowStyling()
	policy.AllowDataAttributes()
	policy.AllowStyles("color", "background-color", "font-weight", "font-style",
		"font-size", "text-align", "border", "padding", "margin", "width").Globally()

	s := &Stabilizer{
		engine:     engine,
		logger:     slog.Default(),
		now:        time.Now,
		extractor:  extract.NewBodyExtractor(),
		normalizer: normalize.New(),
		policy:     policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the engine name.
func (s *Stabilizer) Engine() string { return s.engine.Name() }

// Render converts input into a paginated artifact. input may be a markup
// string, bytes, a MarkupDocument, a map carrying the markup under "html",
// "markup" or "content", or anything else, which is printed as JSON.
func (s *Stabilizer) Render(ctx context.Context, input any, meta Metadata, format core.PageFormat) (core.PaginatedArtifact, error) {
	return s.render(ctx, Coerce(input), meta, format)
}

// RenderPlaceholder renders the minimal placeholder document.
func (s *Stabilizer) RenderPlaceholder(ctx context.Context, meta Metadata, format core.PageFormat) (core.PaginatedArtifact, error) {
	return s.render(ctx, "", meta, format)
}

func (s *Stabilizer) render(ctx context.Context, body string, meta Metadata, format core.PageFormat) (core.PaginatedArtifact, error) {
	state := jobIdle
	transition := func(next jobState, args ...any) {
		s.logger.Debug("render job", append([]any{"engine", s.engine.Name(), "from", state, "to", next}, args...)...)
		state = next
	}

	placeholder := strings.TrimSpace(body) == ""
	if placeholder {
		body = placeholderDocument(meta)
	}
	format, adjusted := NormalizePageFormat(format)
	if adjusted {
		s.logger.Warn("page format replaced by default", "size", format.Size, "orientation", format.Orientation)
	}

	transition(jobRendering, "placeholder", placeholder)
	doc, err := s.Prepare(body, meta, format)
	if err != nil {
		transition(jobFailed, "error", err)
		return core.PaginatedArtifact{}, &core.RenderError{Engine: s.engine.Name(), Err: err}
	}

	data, err := s.run(ctx, doc)
	if err == nil && len(data) == 0 {
		err = fmt.Errorf("engine produced no output")
	}
	if err != nil {
		transition(jobFailed, "error", err)
		return core.PaginatedArtifact{}, &core.RenderError{Engine: s.engine.Name(), Err: err}
	}

	pages := 1
	if s.engine.Extension() == ".pdf" {
		pages = render.CountPages(data)
	} else if meta.Outline != nil && meta.Outline.Layout.PageCount > 1 {
		pages = meta.Outline.Layout.PageCount
	}
	transition(jobDone, "bytes", len(data), "pages", pages)

	art := core.PaginatedArtifact{
		Data:               data,
		ByteSize:           len(data),
		EstimatedPageCount: pages,
		GeneratedAt:        doc.GeneratedAt,
		Engine:             s.engine.Name(),
		Placeholder:        placeholder,
	}
	if a, ok := s.engine.(core.GlyphAuditor); ok {
		if n := a.MissingGlyphs(doc); n > 0 {
			s.logger.Warn("characters replaced in print output, no font covers them",
				"engine", s.engine.Name(), "replaced", n, "fonts", doc.Fonts)
			art.GlyphsReplaced = n
		}
	}
	return art, nil
}

func (s *Stabilizer) run(ctx context.Context, doc core.PrintDocument) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("engine panic: %v", r)
		}
	}()
	return s.engine.Render(ctx, doc)
}

var tagRegex = regexp.MustCompile(`<[A-Za-z!/][^>]*>`)

// Prepare builds the print document for body without rendering it.
func (s *Stabilizer) Prepare(body string, meta Metadata, format core.PageFormat) (core.PrintDocument, error) {
	format, _ = NormalizePageFormat(format)
	if !tagRegex.MatchString(body) {
		converted, err := normalize.MarkdownToHTML(body)
		if err != nil {
			return core.PrintDocument{}, err
		}
		body = converted
	}

	extracted, err := s.extractor.Extract(body)
	if err != nil {
		return core.PrintDocument{}, err
	}

	title, subtitle := meta.Title, meta.Subtitle
	primary := ""
	if meta.Outline != nil {
		if title == "" {
			title = meta.Outline.MainTitle
		}
		if subtitle == "" {
			subtitle = meta.Outline.IssueDate
		}
		primary = meta.Outline.ColorScheme.Primary
	}
	if title == "" {
		title = extracted.Title
	}

	fragment, err := goquery.NewDocumentFromReader(strings.NewReader(s.policy.Sanitize(extracted.HTML)))
	if err != nil {
		return core.PrintDocument{}, fmt.Errorf("parsing sanitized body: %w", err)
	}
	placeholders := fragment.Find(`[class*="photo"]`)
	placeholders.AddClass(placeholderSrc)
	printable, err := fragment.Find("body").Html()
	if err != nil {
		return core.PrintDocument{}, fmt.Errorf("serializing body: %w", err)
	}

	// The Markdown projection feeds the block engine: photo boxes become
	// standalone images and the masthead title is not repeated.
	placeholders.Each(func(_ int, sel *goquery.Selection) {
		sel.ReplaceWithHtml(fmt.Sprintf(`<p><img alt="%s" src="%s"></p>`, html.EscapeString(placeholderLabel(sel)), placeholderSrc))
	})
	if h1 := fragment.Find("h1").First(); h1.Length() > 0 && strings.TrimSpace(h1.Text()) == title {
		h1.Remove()
	}
	projection, err := fragment.Find("body").Html()
	if err != nil {
		return core.PrintDocument{}, fmt.Errorf("serializing projection: %w", err)
	}
	markdown, err := s.normalizer.Normalize(projection)
	if err != nil {
		return core.PrintDocument{}, err
	}

	columns := meta.Columns
	if columns <= 0 && meta.Outline != nil {
		columns = meta.Outline.Layout.Columns
	}
	columns = clamp(columns, 1, maxColumns)
	heading := headingColorFor(primary)

	return core.PrintDocument{
		HTML:         printDocument(title, extracted.Styles, printCSS(format, columns, heading), strings.TrimSpace(printable)),
		Markdown:     markdown,
		Title:        title,
		Subtitle:     subtitle,
		Format:       format,
		Columns:      columns,
		BodyColor:    BodyTextColor,
		HeadingColor: heading,
		Fonts:        s.fonts,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

func placeholderLabel(sel *goquery.Selection) string {
	for _, attr := range []string{"data-label", "aria-label", "title"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if text := strings.Join(strings.Fields(sel.Text()), " "); text != "" {
		return text
	}
	return "Photo"
}

// NormalizePageFormat fills empty fields from DefaultPageFormat and
// replaces the whole format with it when any field is invalid. The second
// result reports the replacement.
func NormalizePageFormat(f core.PageFormat) (core.PageFormat, bool) {
	out := DefaultPageFormat
	if f.Size != "" {
		size, ok := pageSizes[strings.ToLower(strings.TrimSpace(f.Size))]
		if !ok {
			return DefaultPageFormat, true
		}
		out.Size = size
	}
	if f.Orientation != "" {
		o := strings.ToLower(strings.TrimSpace(f.Orientation))
		if o != "portrait" && o != "landscape" {
			return DefaultPageFormat, true
		}
		out.Orientation = o
	}
	if f.MarginMM != 0 {
		if math.IsNaN(f.MarginMM) || math.IsInf(f.MarginMM, 0) || f.MarginMM < 0 || f.MarginMM > maxMarginMM {
			return DefaultPageFormat, true
		}
		out.MarginMM = f.MarginMM
	}
	return out, false
}

// Coerce turns any render input into a markup string. The same input
// always yields the same string.
func Coerce(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case core.MarkupDocument:
		return v.Content
	case *core.MarkupDocument:
		if v == nil {
			return ""
		}
		return v.Content
	case map[string]any:
		for _, key := range []string{"html", "markup", "content"} {
			if inner, ok := v[key]; ok {
				return Coerce(inner)
			}
		}
	case map[string]string:
		for _, key := range []string{"html", "markup", "content"} {
			if inner, ok := v[key]; ok {
				return inner
			}
		}
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "<pre>" + html.EscapeString(fmt.Sprint(input)) + "</pre>"
	}
	return "<pre>" + html.EscapeString(string(data)) + "</pre>"
}

func placeholderDocument(meta Metadata) string {
	title := meta.Title
	if title == "" && meta.Outline != nil {
		title = meta.Outline.MainTitle
	}
	if title == "" {
		title = fallback.PlaceholderTitle
	}
	t := html.EscapeString(title)
	return "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" + t +
		"</title></head><body><h1>" + t + "</h1><p>" +
		html.EscapeString(fallback.PlaceholderBody) + "</p></body></html>"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
