package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

var t0 = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func outlineArt(title string) core.OutlineArtifact {
	return core.OutlineArtifact{Outline: core.Outline{MainTitle: title}, CreatedAt: t0}
}

func advanceToMarkup(t *testing.T, e *Entry) {
	t.Helper()
	tk, err := e.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	require.NoError(t, e.CommitOutline(tk.Generation, outlineArt("o"), t0))
	tk, err = e.Claim(core.KindMarkup, t0)
	require.NoError(t, err)
	require.Equal(t, "o", tk.Outline.MainTitle)
	require.NoError(t, e.CommitMarkup(tk.Generation, core.MarkupDocument{Content: "<html></html>"}, core.ValidationReport{WellFormed: true}, t0))
}

func TestStoreGetOrCreate(t *testing.T) {
	s := NewStore(func() time.Time { return t0 })
	e, created := s.GetOrCreate("a")
	require.True(t, created)
	again, created := s.GetOrCreate("a")
	require.False(t, created)
	require.Same(t, e, again)
	require.Equal(t, AwaitingOutline, e.State())

	_, ok := s.Get("b")
	require.False(t, ok)
	require.Equal(t, 1, s.Len())
	require.True(t, s.Delete("a"))
	require.False(t, s.Delete("a"))
	require.Equal(t, 0, s.Len())
}

func TestStoreConcurrentCreate(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.GetOrCreate(fmt.Sprintf("s-%d", i%8))
		}(i)
	}
	wg.Wait()
	require.Equal(t, 8, s.Len())
	require.Len(t, s.IDs(), 8)
}

func TestStageProgression(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")

	_, err := e.Claim(core.KindMarkup, t0)
	require.ErrorIs(t, err, ErrStageNotReady)
	_, err = e.Claim(core.KindPaginated, t0)
	require.ErrorIs(t, err, ErrStageNotReady)

	advanceToMarkup(t, e)
	require.Equal(t, MarkupReady, e.State())

	tk, err := e.Claim(core.KindPaginated, t0)
	require.NoError(t, err)
	require.Equal(t, "<html></html>", tk.Markup.Content)
	require.Equal(t, AwaitingPaginated, e.State())
	require.NoError(t, e.CommitPaginated(tk.Generation, core.PaginatedArtifact{ByteSize: 3}, t0))
	require.Equal(t, PaginatedReady, e.State())
	require.Equal(t, uint64(3), e.Generation())
}

func TestEarlierStageInvalidatesLaterArtifacts(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")
	advanceToMarkup(t, e)

	tk, err := e.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	snap := e.Snapshot()
	require.Nil(t, snap.Markup)
	require.Nil(t, snap.Validation)
	require.Nil(t, snap.Paginated)
	require.NotNil(t, snap.Outline)

	_, err = e.Claim(core.KindMarkup, t0)
	require.ErrorIs(t, err, ErrStageNotReady)
	require.NoError(t, e.CommitOutline(tk.Generation, outlineArt("new"), t0))
	require.Equal(t, "new", e.Snapshot().Outline.Outline.MainTitle)
}

func TestStaleCommitIsDropped(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")
	first, err := e.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	second, err := e.Claim(core.KindOutline, t0)
	require.NoError(t, err)

	require.NoError(t, e.CommitOutline(second.Generation, outlineArt("second"), t0))
	err = e.CommitOutline(first.Generation, outlineArt("first"), t0)
	require.ErrorIs(t, err, ErrSuperseded)
	require.Equal(t, "second", e.Snapshot().Outline.Outline.MainTitle)
	require.ErrorIs(t, e.Fail(first.Generation, core.KindOutline, errors.New("late"), t0), ErrSuperseded)
}

func TestErrorStateAllowsOneReentry(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")
	advanceToMarkup(t, e)

	tk, err := e.Claim(core.KindMarkup, t0)
	require.NoError(t, err)
	require.NoError(t, e.Fail(tk.Generation, core.KindMarkup, errors.New("quota"), t0))
	require.Equal(t, Error, e.State())
	require.Equal(t, "quota", e.Snapshot().LastError)

	tk, err = e.Claim(core.KindMarkup, t0)
	require.NoError(t, err)
	require.NoError(t, e.Fail(tk.Generation, core.KindMarkup, errors.New("quota"), t0))

	_, err = e.Claim(core.KindMarkup, t0)
	require.ErrorIs(t, err, ErrRetryExhausted)

	// An earlier stage clears the failure.
	tk, err = e.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	require.NoError(t, e.CommitOutline(tk.Generation, outlineArt("o"), t0))
	tk, err = e.Claim(core.KindMarkup, t0)
	require.NoError(t, err)
	require.NoError(t, e.Fail(tk.Generation, core.KindMarkup, errors.New("timeout"), t0))
	_, err = e.Claim(core.KindMarkup, t0)
	require.NoError(t, err)
}

func TestSeedKeepsAwaitingOutline(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")
	require.True(t, e.Seed(outlineArt("seed"), t0))
	require.False(t, e.Seed(outlineArt("again"), t0))
	require.Equal(t, AwaitingOutline, e.State())
	require.Equal(t, uint64(0), e.Generation())

	_, err := e.Claim(core.KindMarkup, t0)
	require.ErrorIs(t, err, ErrStageNotReady)
}

func TestDeletedEntryRejectsCommit(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("a")
	tk, err := e.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	s.Delete("a")
	require.ErrorIs(t, e.CommitOutline(tk.Generation, outlineArt("x"), t0), ErrUnknownSession)
	_, err = e.Claim(core.KindOutline, t0)
	require.ErrorIs(t, err, ErrUnknownSession)
}

func TestRemovalWaitsForIfLive(t *testing.T) {
	s := NewStore(nil)
	e, _ := s.GetOrCreate("s1")

	started, release := make(chan struct{}), make(chan struct{})
	go e.IfLive(func() {
		close(started)
		<-release
	})
	<-started

	deleted := make(chan bool, 1)
	go func() { deleted <- s.Delete("s1") }()
	select {
	case <-deleted:
		t.Fatal("Delete returned while a write was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.True(t, <-deleted)

	require.False(t, e.IfLive(func() { t.Error("callback ran after removal") }))
}

func TestSweep(t *testing.T) {
	now := t0
	s := NewStore(func() time.Time { return now })
	idle, _ := s.GetOrCreate("idle")
	busy, _ := s.GetOrCreate("busy")
	fresh, _ := s.GetOrCreate("fresh")
	_, err := busy.Claim(core.KindOutline, t0)
	require.NoError(t, err)
	_ = idle

	now = t0.Add(2 * time.Hour)
	tk, err := fresh.Claim(core.KindOutline, now)
	require.NoError(t, err)
	require.NoError(t, fresh.CommitOutline(tk.Generation, outlineArt("f"), now))

	require.Equal(t, []string{"idle"}, s.Sweep(time.Hour))
	require.Equal(t, []string{"busy", "fresh"}, s.IDs())
}

func TestRestoreDropsStaleArtifacts(t *testing.T) {
	snap := Snapshot{
		ID:                  "a",
		Generation:          5,
		Outline:             &core.OutlineArtifact{Outline: core.Outline{MainTitle: "o"}},
		OutlineGeneration:   4,
		Markup:              &core.MarkupDocument{Content: "old"},
		MarkupGeneration:    2,
		Paginated:           &core.PaginatedArtifact{ByteSize: 1},
		PaginatedGeneration: 3,
		UpdatedAt:           t0,
	}
	e := Restore(snap)
	got := e.Snapshot()
	require.Equal(t, OutlineReady, got.State)
	require.Nil(t, got.Markup)
	require.Nil(t, got.Paginated)
	require.Equal(t, uint64(5), got.Generation)

	snap.MarkupGeneration = 5
	snap.PaginatedGeneration = 6
	snap.Generation = 6
	got = Restore(snap).Snapshot()
	require.Equal(t, PaginatedReady, got.State)
	require.Equal(t, "old", got.Markup.Content)
	require.Equal(t, t0, got.CreatedAt)
}

func TestStateText(t *testing.T) {
	text, err := MarkupReady.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "markup_ready", string(text))
	var st State
	require.NoError(t, st.UnmarshalText([]byte("error")))
	require.Equal(t, Error, st)
	require.Error(t, st.UnmarshalText([]byte("bogus")))
}
