package deliver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

var fixed = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func TestBoardPoll(t *testing.T) {
	b := NewBoard(func() time.Time { return fixed })
	ctx := context.Background()

	b.OnStageReady(ctx, "s1", core.KindMarkup, core.MarkupDocument{Content: "<html></html>", Heuristic: core.HeuristicRoot})
	b.OnStageReady(ctx, "s2", core.KindMarkup, core.MarkupDocument{Content: "x"})
	b.OnStageReady(ctx, "s1", core.KindPaginated, core.PaginatedArtifact{ByteSize: 10, EstimatedPageCount: 2, Engine: "fpdf"})

	all := b.Poll("s1", 0)
	require.Len(t, all, 2)
	require.Equal(t, uint64(1), all[0].Seq)
	require.Equal(t, 13, all[0].ByteSize)
	require.Equal(t, core.HeuristicRoot, all[0].Heuristic)
	require.Equal(t, uint64(3), all[1].Seq)
	require.Equal(t, 2, all[1].Pages)
	require.Equal(t, fixed, all[1].ReadyAt)

	require.Len(t, b.Poll("s1", 1), 1)
	require.Empty(t, b.Poll("s1", 3))

	require.NoError(t, b.RemoveSession(ctx, "s1"))
	require.Empty(t, b.Poll("s1", 0))
	require.Len(t, b.Poll("s2", 0), 1)
}

func TestBoardKeepsRecentNotices(t *testing.T) {
	b := NewBoard(nil)
	for i := 0; i < maxNoticesPerSession+5; i++ {
		b.OnStageReady(context.Background(), "s1", core.KindMarkup, core.MarkupDocument{})
	}
	got := b.Poll("s1", 0)
	require.Len(t, got, maxNoticesPerSession)
	require.Equal(t, uint64(6), got[0].Seq)
}

func TestBoardWait(t *testing.T) {
	b := NewBoard(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Nil(t, b.Wait(ctx, "s1", 0))

	done := make(chan []Notice, 1)
	go func() { done <- b.Wait(context.Background(), "s1", 0) }()
	time.Sleep(10 * time.Millisecond)
	b.OnStageReady(context.Background(), "s2", core.KindMarkup, core.MarkupDocument{})
	b.OnStageReady(context.Background(), "s1", core.KindPaginated, core.PaginatedArtifact{})

	select {
	case got := <-done:
		require.Len(t, got, 1)
		require.Equal(t, core.KindPaginated, got[0].Kind)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
}

func TestWebhookDelivers(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Notice
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n Notice
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.OnStageReady(context.Background(), "s1", core.KindPaginated, core.PaginatedArtifact{Data: []byte("%PDF"), ByteSize: 4, Placeholder: true, GlyphsReplaced: 3})
	require.NoError(t, w.Close())

	require.Len(t, got, 1)
	require.Equal(t, "s1", got[0].SessionID)
	require.Equal(t, 4, got[0].ByteSize)
	require.True(t, got[0].Placeholder)
	require.Equal(t, 3, got[0].Glyphs)
}

func TestWebhookRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithRetries(1))
	require.NoError(t, w.Send(context.Background(), Notice{SessionID: "s1"}))
	require.Equal(t, int32(2), calls.Load())

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	w = NewWebhook(down.URL, WithRetries(0))
	require.ErrorContains(t, w.Send(context.Background(), Notice{}), "status 502")
}

type counter struct{ n, removed int }

func (c *counter) OnStageReady(context.Context, string, core.ArtifactKind, any) { c.n++ }

func (c *counter) RemoveSession(context.Context, string) error {
	c.removed++
	return nil
}

func TestFanout(t *testing.T) {
	a, b := &counter{}, &counter{}
	f := Fanout{a, b, NewBoard(nil)}
	f.OnStageReady(context.Background(), "s1", core.KindMarkup, core.MarkupDocument{})
	require.Equal(t, 1, a.n)
	require.Equal(t, 1, b.n)
	require.NoError(t, f.RemoveSession(context.Background(), "s1"))
	require.Equal(t, 1, a.removed)
}
