// Package deliver hands finished markup and paginated artifacts to the
// outside world: an in-memory board that clients poll, an HTTP webhook,
// or both through Fanout.
package deliver

import (
	"context"
	"errors"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Notice announces that a stage result is ready. It never carries the
// artifact bytes; clients fetch those through the session.
type Notice struct {
	Seq         uint64            `json:"seq"`
	SessionID   string            `json:"sessionId"`
	Kind        core.ArtifactKind `json:"kind"`
	ReadyAt     time.Time         `json:"readyAt"`
	ByteSize    int               `json:"byteSize,omitempty"`
	Pages       int               `json:"pages,omitempty"`
	Heuristic   string            `json:"heuristic,omitempty"`
	RawMarkup   bool              `json:"rawMarkup,omitempty"`
	Engine      string            `json:"engine,omitempty"`
	Placeholder bool              `json:"placeholder,omitempty"`
	Glyphs      int               `json:"glyphsReplaced,omitempty"`
}

func newNotice(sessionID string, kind core.ArtifactKind, artifact any, now time.Time) Notice {
	n := Notice{SessionID: sessionID, Kind: kind, ReadyAt: now}
	switch a := artifact.(type) {
	case core.MarkupDocument:
		n.ByteSize = len(a.Content)
		n.Heuristic = a.Heuristic
		n.RawMarkup = a.RawFallback
	case core.PaginatedArtifact:
		n.ByteSize = a.ByteSize
		n.Pages = a.EstimatedPageCount
		n.Engine = a.Engine
		n.Placeholder = a.Placeholder
		n.Glyphs = a.GlyphsReplaced
	}
	return n
}

// Fanout forwards every notification to each notifier in order.
type Fanout []core.StageNotifier

// OnStageReady implements core.StageNotifier.
func (f Fanout) OnStageReady(ctx context.Context, sessionID string, kind core.ArtifactKind, artifact any) {
	for _, n := range f {
		n.OnStageReady(ctx, sessionID, kind, artifact)
	}
}

// RemoveSession forwards to every notifier that keeps per-session state.
func (f Fanout) RemoveSession(ctx context.Context, sessionID string) error {
	var errs []error
	for _, n := range f {
		if r, ok := n.(interface {
			RemoveSession(context.Context, string) error
		}); ok {
			errs = append(errs, r.RemoveSession(ctx, sessionID))
		}
	}
	return errors.Join(errs...)
}
