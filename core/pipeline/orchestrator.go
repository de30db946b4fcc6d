// Package pipeline sequences the newsletter stages for each session:
// outline, then markup (with its advisory validation), then paginated
// output on demand.
//
// Concurrent requests for the same session and stage share one execution
// through singleflight, so the oracle is called once and every caller sees
// the same result. The session lock is held only to claim a stage and to
// commit its result; the oracle call runs outside it under its own
// timeout, detached from caller cancellation. A result whose generation is
// no longer current is dropped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/extract"
	"github.com/gaurav-prasanna/newsletterpipe/core/fallback"
	"github.com/gaurav-prasanna/newsletterpipe/core/layout"
	"github.com/gaurav-prasanna/newsletterpipe/core/oracle"
	"github.com/gaurav-prasanna/newsletterpipe/core/prompt"
	"github.com/gaurav-prasanna/newsletterpipe/core/session"
	"github.com/gaurav-prasanna/newsletterpipe/core/validate"
)

const (
	defaultOracleTimeout = 90 * time.Second
	defaultRenderTimeout = 2 * time.Minute
	defaultOracleRetries = 1
	seedReason           = "seed"
)

// MarkupResult is what RequestMarkup returns.
type MarkupResult struct {
	Markup     core.MarkupDocument   `json:"markup"`
	Validation core.ValidationReport `json:"validation"`
}

// SessionRemover is implemented by collaborators that keep per-session
// state of their own and must forget a session on cleanup.
type SessionRemover interface {
	RemoveSession(ctx context.Context, sessionID string) error
}

// Orchestrator runs the pipeline.
type Orchestrator struct {
	oracle        core.Oracle
	stabilizer    *layout.Stabilizer
	store         *session.Store
	flight        singleflight.Group
	logger        *slog.Logger
	sink          core.ArtifactSink
	notifier      core.StageNotifier
	now           func() time.Time
	oracleTimeout time.Duration
	oracleRetries int
	renderTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSink sets the write-through hook called after every commit.
func WithSink(s core.ArtifactSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithNotifier sets the delivery hook for markup and paginated artifacts.
func WithNotifier(n core.StageNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithOracleTimeout bounds each oracle call.
func WithOracleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.oracleTimeout = d
		}
	}
}

// WithOracleRetries sets how many times a failed markup oracle call is
// retried. The outline stage never retries.
func WithOracleRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.oracleRetries = n
		}
	}
}

// WithRenderTimeout bounds each render attempt.
func WithRenderTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.renderTimeout = d
		}
	}
}

// WithStore sets the session store.
func WithStore(s *session.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// New creates an Orchestrator.
func New(gen core.Oracle, stabilizer *layout.Stabilizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		oracle:        gen,
		stabilizer:    stabilizer,
		logger:        slog.Default(),
		now:           time.Now,
		oracleTimeout: defaultOracleTimeout,
		oracleRetries: defaultOracleRetries,
		renderTimeout: defaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = session.NewStore(o.now)
	}
	return o
}

func flightKey(sessionID string, stage core.ArtifactKind) string {
	return sessionID + "/" + string(stage)
}

// Open creates the session if needed and seeds it with the fallback
// outline so there is something to show before the first request.
func (o *Orchestrator) Open(ctx context.Context, sessionID string) (session.Snapshot, bool) {
	e, created := o.store.GetOrCreate(sessionID)
	if created {
		now := o.now()
		art := core.OutlineArtifact{
			Outline:       fallback.DefaultOutline(now),
			IsFallback:    true,
			FailureReason: seedReason,
			CreatedAt:     now,
		}
		if e.Seed(art, now) {
			o.logger.Info("session opened", "session_id", sessionID)
			o.persist(ctx, e, core.KindOutline, 0, art)
		}
	}
	return e.Snapshot(), created
}

// RequestOutline generates the outline for input. It always produces an
// outline: any oracle or extraction failure yields the fallback outline
// flagged IsFallback. The only errors are ErrSuperseded and
// ErrUnknownSession.
func (o *Orchestrator) RequestOutline(ctx context.Context, sessionID, input string) (core.OutlineArtifact, error) {
	v, err, shared := o.flight.Do(flightKey(sessionID, core.KindOutline), func() (any, error) {
		return o.runOutline(ctx, sessionID, input)
	})
	if shared {
		o.logger.Debug("outline request joined in-flight stage", "session_id", sessionID)
	}
	if err != nil {
		return core.OutlineArtifact{}, err
	}
	return v.(core.OutlineArtifact), nil
}

func (o *Orchestrator) runOutline(ctx context.Context, sessionID, input string) (core.OutlineArtifact, error) {
	e, _ := o.store.GetOrCreate(sessionID)
	tk, err := e.Claim(core.KindOutline, o.now())
	if err != nil {
		return core.OutlineArtifact{}, err
	}
	log := o.logger.With("session_id", sessionID, "stage", core.KindOutline, "generation", tk.Generation)
	log.Info("stage claimed")

	now := o.now()
	art := core.OutlineArtifact{CreatedAt: now}
	raw, err := o.generate(ctx, prompt.Outline(input, now))
	if err == nil {
		art.Outline, err = extract.ExtractOutline(raw)
	}
	if err != nil {
		// Outline never retries and never fails; it degrades.
		art.Outline = fallback.DefaultOutline(now)
		art.IsFallback = true
		art.FailureReason = err.Error()
		log.Warn("outline degraded to fallback", "reason", err)
	}

	if err := e.CommitOutline(tk.Generation, art, o.now()); err != nil {
		log.Info("dropping outline result", "error", err)
		return core.OutlineArtifact{}, err
	}
	log.Info("stage committed", "fallback", art.IsFallback, "sections", len(art.Outline.Sections))
	o.persist(ctx, e, core.KindOutline, tk.Generation, art)
	return art, nil
}

// RequestMarkup generates the markup document from the session's outline
// and validates it. Validation defects never fail the request.
func (o *Orchestrator) RequestMarkup(ctx context.Context, sessionID string) (MarkupResult, error) {
	v, err, _ := o.flight.Do(flightKey(sessionID, core.KindMarkup), func() (any, error) {
		return o.runMarkup(ctx, sessionID)
	})
	if err != nil {
		return MarkupResult{}, err
	}
	return v.(MarkupResult), nil
}

func (o *Orchestrator) runMarkup(ctx context.Context, sessionID string) (MarkupResult, error) {
	e, ok := o.store.Get(sessionID)
	if !ok {
		return MarkupResult{}, fmt.Errorf("session %s: %w", sessionID, session.ErrUnknownSession)
	}
	tk, err := e.Claim(core.KindMarkup, o.now())
	if err != nil {
		return MarkupResult{}, err
	}
	log := o.logger.With("session_id", sessionID, "stage", core.KindMarkup, "generation", tk.Generation)
	log.Info("stage claimed")

	p, err := prompt.Markup(tk.Outline)
	if err != nil {
		return MarkupResult{}, o.fail(e, tk, err, log)
	}
	raw, err := o.generateWithRetry(ctx, e, tk, p, log)
	if err != nil {
		return MarkupResult{}, o.fail(e, tk, err, log)
	}

	doc := extract.ExtractMarkup(raw)
	doc.CreatedAt = o.now()
	report := validate.Markup(doc)
	if doc.RawFallback {
		log.Warn("markup kept as raw text", "bytes", len(doc.Content))
	}
	if !report.WellFormed {
		log.Warn("markup has structural defects", "defects", len(report.Defects))
	}

	if err := e.CommitMarkup(tk.Generation, doc, report, o.now()); err != nil {
		log.Info("dropping markup result", "error", err)
		return MarkupResult{}, err
	}
	log.Info("stage committed", "heuristic", doc.Heuristic, "well_formed", report.WellFormed)
	o.persist(ctx, e, core.KindMarkup, tk.Generation, doc)
	o.persist(ctx, e, core.KindValidation, tk.Generation, report)
	o.deliver(ctx, sessionID, core.KindMarkup, doc)
	return MarkupResult{Markup: doc, Validation: report}, nil
}

// RequestPaginated renders the session's markup. A render failure is
// retried once with the placeholder document; a second failure is
// returned as *core.RenderError.
func (o *Orchestrator) RequestPaginated(ctx context.Context, sessionID string, format core.PageFormat) (core.PaginatedArtifact, error) {
	v, err, _ := o.flight.Do(flightKey(sessionID, core.KindPaginated), func() (any, error) {
		return o.runPaginated(ctx, sessionID, format)
	})
	if err != nil {
		return core.PaginatedArtifact{}, err
	}
	return v.(core.PaginatedArtifact), nil
}

func (o *Orchestrator) runPaginated(ctx context.Context, sessionID string, format core.PageFormat) (core.PaginatedArtifact, error) {
	e, ok := o.store.Get(sessionID)
	if !ok {
		return core.PaginatedArtifact{}, fmt.Errorf("session %s: %w", sessionID, session.ErrUnknownSession)
	}
	tk, err := e.Claim(core.KindPaginated, o.now())
	if err != nil {
		return core.PaginatedArtifact{}, err
	}
	log := o.logger.With("session_id", sessionID, "stage", core.KindPaginated, "generation", tk.Generation)
	log.Info("stage claimed", "engine", o.stabilizer.Engine())

	meta := layout.Metadata{Outline: &tk.Outline}
	art, err := o.render(ctx, func(rctx context.Context) (core.PaginatedArtifact, error) {
		return o.stabilizer.Render(rctx, tk.Markup, meta, format)
	})
	if err != nil {
		log.Warn("render failed, retrying with placeholder", "error", err)
		art, err = o.render(ctx, func(rctx context.Context) (core.PaginatedArtifact, error) {
			return o.stabilizer.RenderPlaceholder(rctx, meta, format)
		})
	}
	if err != nil {
		return core.PaginatedArtifact{}, o.fail(e, tk, err, log)
	}

	if err := e.CommitPaginated(tk.Generation, art, o.now()); err != nil {
		log.Info("dropping paginated result", "error", err)
		return core.PaginatedArtifact{}, err
	}
	log.Info("stage committed", "bytes", art.ByteSize, "pages", art.EstimatedPageCount, "placeholder", art.Placeholder)
	o.persist(ctx, e, core.KindPaginated, tk.Generation, art)
	o.deliver(ctx, sessionID, core.KindPaginated, art)
	return art, nil
}

// render runs one render attempt detached from the caller's cancellation,
// with a full render timeout of its own.
func (o *Orchestrator) render(ctx context.Context, attempt func(context.Context) (core.PaginatedArtifact, error)) (core.PaginatedArtifact, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.renderTimeout)
	defer cancel()
	return attempt(rctx)
}

// generate calls the oracle once, outside any lock, detached from the
// caller's cancellation and bounded by the oracle timeout.
func (o *Orchestrator) generate(ctx context.Context, p core.Prompt) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.oracleTimeout)
	defer cancel()
	raw, err := o.oracle.Generate(callCtx, p)
	if err != nil {
		return "", oracle.Classify(err)
	}
	return raw, nil
}

// generateWithRetry retries a classified oracle failure, unless the stage
// was superseded in the meantime.
func (o *Orchestrator) generateWithRetry(ctx context.Context, e *session.Entry, tk session.Ticket, p core.Prompt, log *slog.Logger) (string, error) {
	raw, err := o.generate(ctx, p)
	for attempt := 1; attempt <= o.oracleRetries && err != nil && retryable(err); attempt++ {
		if current := e.Generation(); current != tk.Generation {
			return "", fmt.Errorf("generation %d, current %d: %w", tk.Generation, current, session.ErrSuperseded)
		}
		log.Warn("oracle call failed, retrying", "attempt", attempt, "error", err)
		raw, err = o.generate(ctx, p)
	}
	return raw, err
}

func retryable(err error) bool {
	return errors.Is(err, oracle.ErrTimeout) || errors.Is(err, oracle.ErrQuota) || errors.Is(err, oracle.ErrUnavailable)
}

// fail records err on the session unless the stage was superseded, in
// which case the superseded error is returned instead.
func (o *Orchestrator) fail(e *session.Entry, tk session.Ticket, err error, log *slog.Logger) error {
	if ferr := e.Fail(tk.Generation, tk.Stage, err, o.now()); ferr != nil {
		log.Info("dropping failed result", "error", ferr)
		return ferr
	}
	log.Error("stage failed", "error", err)
	return fmt.Errorf("%s stage: %w", tk.Stage, err)
}

// persist writes through to the sink unless the session has been cleaned
// up; a cleanup waits for a write already under way.
func (o *Orchestrator) persist(ctx context.Context, e *session.Entry, kind core.ArtifactKind, gen uint64, artifact any) {
	if o.sink == nil {
		return
	}
	ran := e.IfLive(func() {
		if err := o.sink.OnArtifactCommitted(context.WithoutCancel(ctx), e.ID(), kind, gen, artifact); err != nil {
			o.logger.Error("artifact sink failed", "session_id", e.ID(), "stage", kind, "generation", gen, "error", err)
		}
	})
	if !ran {
		o.logger.Info("skipping write for removed session", "session_id", e.ID(), "stage", kind, "generation", gen)
	}
}

func (o *Orchestrator) deliver(ctx context.Context, sessionID string, kind core.ArtifactKind, artifact any) {
	if o.notifier == nil {
		return
	}
	o.notifier.OnStageReady(context.WithoutCancel(ctx), sessionID, kind, artifact)
}

// Snapshot returns a copy of the session's state.
func (o *Orchestrator) Snapshot(sessionID string) (session.Snapshot, error) {
	e, ok := o.store.Get(sessionID)
	if !ok {
		return session.Snapshot{}, fmt.Errorf("session %s: %w", sessionID, session.ErrUnknownSession)
	}
	return e.Snapshot(), nil
}

// Sessions lists the live session IDs.
func (o *Orchestrator) Sessions() []string {
	return o.store.IDs()
}

// Cleanup removes the session and tells collaborators to forget it.
func (o *Orchestrator) Cleanup(ctx context.Context, sessionID string) error {
	if !o.store.Delete(sessionID) {
		return fmt.Errorf("session %s: %w", sessionID, session.ErrUnknownSession)
	}
	o.logger.Info("session cleaned up", "session_id", sessionID)
	return o.forget(ctx, sessionID)
}

// SweepExpired removes sessions idle for longer than ttl.
func (o *Orchestrator) SweepExpired(ctx context.Context, ttl time.Duration) []string {
	removed := o.store.Sweep(ttl)
	for _, id := range removed {
		o.logger.Info("session expired", "session_id", id, "ttl", ttl)
		if err := o.forget(ctx, id); err != nil {
			o.logger.Error("forgetting expired session", "session_id", id, "error", err)
		}
	}
	return removed
}

func (o *Orchestrator) forget(ctx context.Context, sessionID string) error {
	var errs []error
	for _, c := range []any{o.sink, o.notifier} {
		if r, ok := c.(SessionRemover); ok {
			if err := r.RemoveSession(ctx, sessionID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Restore installs persisted sessions, typically at startup.
func (o *Orchestrator) Restore(snapshots []session.Snapshot) int {
	for _, s := range snapshots {
		e := session.Restore(s)
		o.store.Put(e)
		o.logger.Debug("session restored", "session_id", s.ID, "state", e.State(), "generation", e.Generation())
	}
	return len(snapshots)
}
