package deliver

import (
	"context"
	"sync"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

const maxNoticesPerSession = 32

// Board keeps recent notices per session for clients that poll.
type Board struct {
	mu      sync.Mutex
	seq     uint64
	notices map[string][]Notice
	changed chan struct{}
	now     func() time.Time
}

// NewBoard creates an empty board. now may be nil.
func NewBoard(now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{
		notices: make(map[string][]Notice),
		changed: make(chan struct{}),
		now:     now,
	}
}

// OnStageReady implements core.StageNotifier.
func (b *Board) OnStageReady(_ context.Context, sessionID string, kind core.ArtifactKind, artifact any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	n := newNotice(sessionID, kind, artifact, b.now())
	n.Seq = b.seq
	list := append(b.notices[sessionID], n)
	if len(list) > maxNoticesPerSession {
		list = list[len(list)-maxNoticesPerSession:]
	}
	b.notices[sessionID] = list
	close(b.changed)
	b.changed = make(chan struct{})
}

// Poll returns the session's notices with a sequence number above after.
func (b *Board) Poll(sessionID string, after uint64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.since(sessionID, after)
}

func (b *Board) since(sessionID string, after uint64) []Notice {
	var out []Notice
	for _, n := range b.notices[sessionID] {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Wait is Poll that blocks until a notice arrives or ctx is done. It
// returns nil when ctx ends first.
func (b *Board) Wait(ctx context.Context, sessionID string, after uint64) []Notice {
	for {
		b.mu.Lock()
		out := b.since(sessionID, after)
		changed := b.changed
		b.mu.Unlock()
		if len(out) > 0 {
			return out
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil
		}
	}
}

// RemoveSession drops the session's notices.
func (b *Board) RemoveSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	delete(b.notices, sessionID)
	b.mu.Unlock()
	return nil
}
