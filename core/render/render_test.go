package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

func TestPDFRendererPaginates(t *testing.T) {
	var md strings.Builder
	md.WriteString("## Sports day\n\n")
	for i := 0; i < 80; i++ {
		md.WriteString("Everyone ran, jumped and cheered for their team until the very end of the long afternoon.\n\n")
	}
	md.WriteString("![Relay photo](photo-placeholder)\n\n- hat\n- water bottle\n")

	for _, columns := range []int{1, 2, 3} {
		data, err := NewPDFRenderer("").Render(context.Background(), core.PrintDocument{
			Markdown:     md.String(),
			Title:        "Class Newsletter",
			Subtitle:     "2026-10-17",
			Format:       core.PageFormat{Size: "A4", Orientation: "portrait", MarginMM: 15},
			Columns:      columns,
			BodyColor:    "#1A1A1A",
			HeadingColor: "#2E7D32",
			GeneratedAt:  time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "%PDF"))
		require.GreaterOrEqual(t, CountPages(data), 1)
	}
}

func TestPDFRendererReportsMissingGlyphs(t *testing.T) {
	r := NewPDFRenderer(t.TempDir())
	doc := core.PrintDocument{
		Title:    "学級通信",
		Markdown: "学級通信 — café",
		Fonts:    []string{"NotoSansJP-Regular.ttf", "Arial"},
	}
	require.Empty(t, r.FindFont(doc.Fonts))
	require.Equal(t, 8, r.MissingGlyphs(doc))

	data, err := r.Render(context.Background(), doc)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestFindFontPrefersFirstCandidate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Second.ttf", "First.ttf"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	r := NewPDFRenderer(dir)
	require.Equal(t, filepath.Join(dir, "First.ttf"), r.FindFont([]string{"Missing.ttf", "First.ttf", "Second.ttf"}))
	require.Empty(t, r.FindFont([]string{"Arial", "Missing.ttf"}))
	require.Zero(t, r.MissingGlyphs(core.PrintDocument{Markdown: "学級通信", Fonts: []string{"First.ttf"}}))
}

func TestPDFRendererHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFRenderer("").Render(ctx, core.PrintDocument{Markdown: "x"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCP1252Safe(t *testing.T) {
	require.Equal(t, "café • ?? ok", cp1252Safe("café • 通信 ok\x01"))
}

func TestCountPages(t *testing.T) {
	require.Equal(t, 0, CountPages(nil))
	require.Equal(t, 2, CountPages([]byte("%PDF-1.4\n<< /Type /Page >>\n<< /Type /Page >>\n<< /Type /Pages >>\n")))
	require.Equal(t, 1, CountPages([]byte("not a pdf")))
}

func TestHTMLRenderer(t *testing.T) {
	r := NewHTMLRenderer()
	data, err := r.Render(context.Background(), core.PrintDocument{HTML: "<p>x</p>"})
	require.NoError(t, err)
	require.Equal(t, "<p>x</p>", string(data))
	require.Equal(t, ".html", r.Extension())
	require.Equal(t, "html", r.Name())
}

func TestChromiumRendererUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := NewChromiumRenderer("/nonexistent/chrome", "").Render(ctx, core.PrintDocument{HTML: "<p>x</p>"})
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrEngineUnavailable))
}
