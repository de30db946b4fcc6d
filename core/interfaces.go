// Package core defines the pipeline types and interfaces for the newsletter
// pipeline. Each stage of the pipeline is a clean, testable interface.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the outline schema version written by this pipeline.
const SchemaVersion = "2.4"

// Section is one planned block of the newsletter.
type Section struct {
	Type            string `json:"type"`
	Title           string `json:"title"`
	Content         string `json:"content"`
	EstimatedLength string `json:"estimatedLength"`
}

// ColorScheme holds the four named #RRGGBB colors of an outline.
type ColorScheme struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
}

// PhotoPlaceholders describes where photos should be pasted in by hand.
type PhotoPlaceholders struct {
	Count     int      `json:"count"`
	Positions []string `json:"positions"`
}

// Layout holds the page plan of an outline.
type Layout struct {
	PageCount int `json:"pageCount"`
	Columns   int `json:"columns"`
}

// Outline is the structured document plan produced by the outline stage.
type Outline struct {
	SchemaVersion     string            `json:"schemaVersion"`
	IssueDate         string            `json:"issueDate"` // YYYY-MM-DD
	MainTitle         string            `json:"mainTitle"`
	Sections          []Section         `json:"sections"`
	ColorScheme       ColorScheme       `json:"colorScheme"`
	PhotoPlaceholders PhotoPlaceholders `json:"photoPlaceholders"`
	Layout            Layout            `json:"layout"`
}

// OutlineArtifact is an accepted outline plus its provenance.
type OutlineArtifact struct {
	Outline       Outline   `json:"outline"`
	IsFallback    bool      `json:"isFallback"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Markup heuristics recorded on a MarkupDocument.
const (
	HeuristicFenced  = "fenced"
	HeuristicDoctype = "doctype"
	HeuristicRoot    = "root"
	HeuristicRaw     = "raw"
)

// MarkupDocument is a full HTML document recovered from generator output.
type MarkupDocument struct {
	Content     string    `json:"content"`
	RawFallback bool      `json:"rawFallback"`
	Heuristic   string    `json:"heuristic"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Defect is one structural problem found in a markup document.
type Defect struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationReport is the advisory result of structural validation.
type ValidationReport struct {
	WellFormed bool     `json:"wellFormed"`
	Defects    []Defect `json:"defects"`
}

// PaginatedArtifact is the print-ready binary plus its metadata.
type PaginatedArtifact struct {
	Data               []byte    `json:"-"`
	ByteSize           int       `json:"byteSize"`
	EstimatedPageCount int       `json:"estimatedPageCount"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Engine             string    `json:"engine"`
	Placeholder        bool      `json:"placeholder"`
	// GlyphsReplaced counts characters no available font could draw.
	GlyphsReplaced     int       `json:"glyphsReplaced,omitempty"`
}

// ArtifactKind names one of the per-session artifact slots.
type ArtifactKind string

const (
	KindOutline    ArtifactKind = "outline"
	KindMarkup     ArtifactKind = "markup"
	KindValidation ArtifactKind = "validation"
	KindPaginated  ArtifactKind = "paginated"
)

// PageFormat selects paper size, orientation and margins.
type PageFormat struct {
	Size        string  `json:"size"`
	Orientation string  `json:"orientation"`
	MarginMM    float64 `json:"marginMM"`
}

// Prompt kinds.
const (
	PromptOutline = "outline"
	PromptMarkup  = "markup"
)

// Prompt is the full text sent to the generation oracle for one call.
type Prompt struct {
	Kind   string
	System string
	User   string
}

// PrintDocument is what a rendering engine receives after layout
// stabilization: the print-ready HTML and its Markdown projection.
type PrintDocument struct {
	HTML         string
	Markdown     string
	Title        string
	Subtitle     string
	Format       PageFormat
	Columns      int
	BodyColor    string
	HeadingColor string
	Fonts        []string
	GeneratedAt  time.Time
}

// ErrEngineUnavailable marks rendering engine failures.
var ErrEngineUnavailable = errors.New("rendering engine unavailable")

// RenderError is returned when the paginated output cannot be produced.
type RenderError struct {
	Engine string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render with %s: %v", e.Engine, e.Err)
}

// Unwrap exposes both the engine marker and the underlying cause.
func (e *RenderError) Unwrap() []error {
	return []error{ErrEngineUnavailable, e.Err}
}

// Oracle is the external text generator. It makes no promise about the
// shape of the returned text.
type Oracle interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Engine converts a stabilized document into print output.
type Engine interface {
	Render(ctx context.Context, doc PrintDocument) ([]byte, error)
	// Name identifies the engine in logs and artifact metadata.
	Name() string
	// Extension returns the file extension for this engine (e.g. ".pdf").
	Extension() string
}

// GlyphAuditor is implemented by engines whose fonts may not cover every
// character. MissingGlyphs counts the characters of doc the engine would
// have to replace.
type GlyphAuditor interface {
	MissingGlyphs(doc PrintDocument) int
}

// ArtifactSink is notified after every committed artifact.
type ArtifactSink interface {
	OnArtifactCommitted(ctx context.Context, sessionID string, kind ArtifactKind, generation uint64, artifact any) error
}

// StageNotifier receives markup and paginated artifacts for delivery.
type StageNotifier interface {
	OnStageReady(ctx context.Context, sessionID string, kind ArtifactKind, artifact any)
}
