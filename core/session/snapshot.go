package session

import (
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Snapshot is a copy of an entry's state, safe to read and encode.
type Snapshot struct {
	ID                  string                  `json:"id"`
	State               State                   `json:"state"`
	Generation          uint64                  `json:"generation"`
	Outline             *core.OutlineArtifact   `json:"outline,omitempty"`
	OutlineGeneration   uint64                  `json:"outlineGeneration,omitempty"`
	Markup              *core.MarkupDocument    `json:"markup,omitempty"`
	MarkupGeneration    uint64                  `json:"markupGeneration,omitempty"`
	Validation          *core.ValidationReport  `json:"validation,omitempty"`
	Paginated           *core.PaginatedArtifact `json:"paginated,omitempty"`
	PaginatedGeneration uint64                  `json:"paginatedGeneration,omitempty"`
	FailedStage         core.ArtifactKind       `json:"failedStage,omitempty"`
	LastError           string                  `json:"lastError,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// Snapshot copies the entry's current state.
func (e *Entry) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		ID:                  e.id,
		State:               e.state,
		Generation:          e.generation,
		OutlineGeneration:   e.outlineGen,
		MarkupGeneration:    e.markupGen,
		PaginatedGeneration: e.paginatedGen,
		FailedStage:         e.failedStage,
		CreatedAt:           e.createdAt,
		UpdatedAt:           e.updatedAt,
	}
	if e.outline != nil {
		o := *e.outline
		s.Outline = &o
	}
	if e.markup != nil {
		m := *e.markup
		s.Markup = &m
	}
	if e.validation != nil {
		v := *e.validation
		s.Validation = &v
	}
	if e.paginated != nil {
		p := *e.paginated
		s.Paginated = &p
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Restore rebuilds an entry from persisted state. Later-stage artifacts
// committed under an older generation than the stage before them are
// stale and dropped, and the state is derived from what remains.
func Restore(s Snapshot) *Entry {
	e := &Entry{
		id:        s.ID,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}
	if s.Outline != nil {
		o := *s.Outline
		e.outline, e.outlineGen = &o, s.OutlineGeneration
	}
	if s.Markup != nil && e.outline != nil && s.MarkupGeneration > e.outlineGen {
		m := *s.Markup
		e.markup, e.markupGen = &m, s.MarkupGeneration
		if s.Validation != nil {
			v := *s.Validation
			e.validation = &v
		}
	}
	if s.Paginated != nil && e.markup != nil && s.PaginatedGeneration > e.markupGen {
		p := *s.Paginated
		e.paginated, e.paginatedGen = &p, s.PaginatedGeneration
	}

	switch {
	case e.paginated != nil:
		e.state = PaginatedReady
	case e.markup != nil:
		e.state = MarkupReady
	case e.outline != nil && e.outlineGen > 0:
		e.state = OutlineReady
	default:
		e.state = AwaitingOutline
	}

	e.generation = max(s.Generation, e.outlineGen, e.markupGen, e.paginatedGen)
	if e.createdAt.IsZero() {
		e.createdAt = e.updatedAt
	}
	return e
}
