package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// State is the pipeline position of a session.
type State int

const (
	AwaitingOutline State = iota
	OutlineReady
	AwaitingMarkup
	MarkupReady
	AwaitingPaginated
	PaginatedReady
	Error
)

var stateNames = [...]string{
	AwaitingOutline:   "awaiting_outline",
	OutlineReady:      "outline_ready",
	AwaitingMarkup:    "awaiting_markup",
	MarkupReady:       "markup_ready",
	AwaitingPaginated: "awaiting_paginated",
	PaginatedReady:    "paginated_ready",
	Error:             "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// Stage errors.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrStageNotReady  = errors.New("stage not ready")
	ErrSuperseded     = errors.New("stage superseded by a newer request")
	ErrRetryExhausted = errors.New("stage already retried after failure")
)

// Ticket is handed out by Claim. It carries the generation the result
// must be committed under and the inputs the stage works from.
type Ticket struct {
	SessionID  string
	Stage      core.ArtifactKind
	Generation uint64
	Outline    core.Outline
	Markup     core.MarkupDocument
}

// Entry is one session's state. The zero value is not usable; entries
// come from Store.
type Entry struct {
	mu sync.Mutex
	// sinkMu orders collaborator writes against removal. It is taken
	// before mu, never after.
	sinkMu sync.Mutex

	id         string
	state      State
	generation uint64
	pending    bool
	removed    bool

	outline      *core.OutlineArtifact
	outlineGen   uint64
	markup       *core.MarkupDocument
	markupGen    uint64
	validation   *core.ValidationReport
	paginated    *core.PaginatedArtifact
	paginatedGen uint64
	failedStage  core.ArtifactKind
	lastErr      error
	errorRetried bool
	createdAt    time.Time
	updatedAt    time.Time
}

// ID returns the session ID.
func (e *Entry) ID() string { return e.id }

// Seed stores outline as a placeholder when the session has no outline and
// nothing has been claimed yet. The state stays AwaitingOutline.
func (e *Entry) Seed(outline core.OutlineArtifact, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.outline != nil || e.generation != 0 {
		return false
	}
	e.outline = &outline
	e.updatedAt = now
	return true
}

// Claim starts stage, increments the generation and invalidates the
// artifacts of stage and every later stage.
func (e *Entry) Claim(stage core.ArtifactKind, now time.Time) (Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Ticket{}, ErrUnknownSession
	}

	t := Ticket{SessionID: e.id, Stage: stage}
	switch stage {
	case core.KindOutline:
		e.clearFrom(core.KindMarkup)
		e.errorRetried = false
		e.state = AwaitingOutline
	case core.KindMarkup:
		if e.outline == nil || e.state == AwaitingOutline {
			return Ticket{}, fmt.Errorf("markup requires an accepted outline (state %s): %w", e.state, ErrStageNotReady)
		}
		if err := e.reenter(stage); err != nil {
			return Ticket{}, err
		}
		t.Outline = e.outline.Outline
		e.clearFrom(core.KindMarkup)
		e.state = AwaitingMarkup
	case core.KindPaginated:
		if e.markup == nil {
			return Ticket{}, fmt.Errorf("paginated output requires markup (state %s): %w", e.state, ErrStageNotReady)
		}
		if err := e.reenter(stage); err != nil {
			return Ticket{}, err
		}
		t.Outline = e.outline.Outline
		t.Markup = *e.markup
		e.clearFrom(core.KindPaginated)
		e.state = AwaitingPaginated
	default:
		return Ticket{}, fmt.Errorf("unknown stage %q", stage)
	}

	e.failedStage, e.lastErr = "", nil
	e.generation++
	e.pending = true
	e.updatedAt = now
	t.Generation = e.generation
	return t, nil
}

// reenter applies the Error state rule: the failed stage may be entered
// again once; an earlier stage resets the failure.
func (e *Entry) reenter(stage core.ArtifactKind) error {
	if e.state != Error {
		return nil
	}
	if stage != e.failedStage {
		e.errorRetried = false
		return nil
	}
	if e.errorRetried {
		return fmt.Errorf("%s after %v: %w", stage, e.lastErr, ErrRetryExhausted)
	}
	e.errorRetried = true
	return nil
}

func (e *Entry) clearFrom(stage core.ArtifactKind) {
	switch stage {
	case core.KindMarkup:
		e.markup, e.validation, e.markupGen = nil, nil, 0
		fallthrough
	case core.KindPaginated:
		e.paginated, e.paginatedGen = nil, 0
	}
}

func (e *Entry) checkCurrent(gen uint64) error {
	if e.removed {
		return ErrUnknownSession
	}
	if gen != e.generation {
		return fmt.Errorf("generation %d, current %d: %w", gen, e.generation, ErrSuperseded)
	}
	return nil
}

// CommitOutline stores the outline produced under gen.
func (e *Entry) CommitOutline(gen uint64, art core.OutlineArtifact, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkCurrent(gen); err != nil {
		return err
	}
	e.outline, e.outlineGen = &art, gen
	e.succeed(OutlineReady, now)
	return nil
}

// CommitMarkup stores the markup document and its validation report.
func (e *Entry) CommitMarkup(gen uint64, doc core.MarkupDocument, report core.ValidationReport, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkCurrent(gen); err != nil {
		return err
	}
	e.markup, e.markupGen = &doc, gen
	e.validation = &report
	e.succeed(MarkupReady, now)
	return nil
}

// CommitPaginated stores the paginated artifact.
func (e *Entry) CommitPaginated(gen uint64, art core.PaginatedArtifact, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkCurrent(gen); err != nil {
		return err
	}
	e.paginated, e.paginatedGen = &art, gen
	e.succeed(PaginatedReady, now)
	return nil
}

func (e *Entry) succeed(state State, now time.Time) {
	e.state = state
	e.pending = false
	e.failedStage, e.lastErr, e.errorRetried = "", nil, false
	e.updatedAt = now
}

// Fail moves the session to Error for the stage claimed under gen.
func (e *Entry) Fail(gen uint64, stage core.ArtifactKind, cause error, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkCurrent(gen); err != nil {
		return err
	}
	e.state = Error
	e.pending = false
	e.failedStage = stage
	e.lastErr = cause
	e.updatedAt = now
	return nil
}

// Generation returns the current stage generation.
func (e *Entry) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// State returns the current state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// markRemoved waits for a running IfLive callback before flagging the
// entry, so nothing written there outlives the removal.
func (e *Entry) markRemoved() {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// IfLive runs fn unless the entry has been removed and reports whether it
// ran. Removal blocks until fn returns.
func (e *Entry) IfLive(fn func()) bool {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	e.mu.Lock()
	removed := e.removed
	e.mu.Unlock()
	if removed {
		return false
	}
	fn()
	return true
}

func (e *Entry) idleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.pending && e.updatedAt.Before(cutoff)
}
