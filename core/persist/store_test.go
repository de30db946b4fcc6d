package persist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/session"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func outline(title string) core.OutlineArtifact {
	return core.OutlineArtifact{Outline: core.Outline{MainTitle: title, Layout: core.Layout{Columns: 1}}}
}

func TestCommitAndLoad(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 1, outline("first")))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindMarkup, 2, core.MarkupDocument{Content: "<html></html>", Heuristic: core.HeuristicRoot}))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindValidation, 2, core.ValidationReport{WellFormed: true}))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindPaginated, 3, core.PaginatedArtifact{Data: []byte("%PDF-1.3"), ByteSize: 8, Engine: "fpdf"}))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s2", core.KindOutline, 0, outline("seed")))

	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	s1 := snaps[0]
	require.Equal(t, "s1", s1.ID)
	require.Equal(t, uint64(3), s1.Generation)
	require.Equal(t, "first", s1.Outline.Outline.MainTitle)
	require.Equal(t, core.HeuristicRoot, s1.Markup.Heuristic)
	require.True(t, s1.Validation.WellFormed)
	require.Equal(t, []byte("%PDF-1.3"), s1.Paginated.Data)
	require.False(t, s1.UpdatedAt.IsZero())

	require.Equal(t, session.PaginatedReady, session.Restore(s1).State())
	require.Equal(t, session.AwaitingOutline, session.Restore(snaps[1]).State())
}

func TestOlderGenerationDoesNotOverwrite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 5, outline("newer")))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 4, outline("older")))

	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "newer", snaps[0].Outline.Outline.MainTitle)
	require.Equal(t, uint64(5), snaps[0].OutlineGeneration)
}

func TestOutlineCommitDropsStaleLaterStages(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 1, outline("a")))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindMarkup, 2, core.MarkupDocument{Content: "x"}))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindValidation, 2, core.ValidationReport{}))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 3, outline("b")))

	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snaps[0].Markup)
	require.Nil(t, snaps[0].Validation)
	require.Equal(t, "b", snaps[0].Outline.Outline.MainTitle)
}

func TestRemoveSession(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.OnArtifactCommitted(ctx, "s1", core.KindOutline, 1, outline("a")))
	require.NoError(t, s.OnArtifactCommitted(ctx, "s2", core.KindOutline, 1, outline("b")))

	require.NoError(t, s.RemoveSession(ctx, "s1"))
	snaps, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "s2", snaps[0].ID)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, s.OnArtifactCommitted(context.Background(), "s1", core.KindOutline, 1, outline("kept")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	snaps, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "kept", snaps[0].Outline.Outline.MainTitle)
	require.Equal(t, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), snaps[0].UpdatedAt)
}
