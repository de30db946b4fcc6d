package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

const page = "<!DOCTYPE html>\n<html lang=\"ja\"><head><title>通信</title></head><body><h1>通信</h1></body></html>"

func TestExtractMarkupFenced(t *testing.T) {
	doc := ExtractMarkup("Here you go:\n```html\n" + page + "\n```\nEnjoy!")
	require.Equal(t, core.HeuristicFenced, doc.Heuristic)
	require.False(t, doc.RawFallback)
	require.Equal(t, page, doc.Content)
}

func TestExtractMarkupUnterminatedFence(t *testing.T) {
	doc := ExtractMarkup("```html\n<!DOCTYPE html><html><body><p>cut")
	require.Equal(t, core.HeuristicFenced, doc.Heuristic)
	require.True(t, strings.HasSuffix(doc.Content, "<p>cut"))
}

func TestExtractMarkupDoctype(t *testing.T) {
	doc := ExtractMarkup("Sure, the newsletter:\n" + page + "\nLet me know about </html> edits.")
	require.Equal(t, core.HeuristicDoctype, doc.Heuristic)
	require.True(t, strings.HasPrefix(doc.Content, "<!DOCTYPE html>"))
	require.False(t, strings.HasSuffix(doc.Content, "edits."))
	require.True(t, strings.HasSuffix(doc.Content, "</html>"))
}

func TestExtractMarkupTruncatedDoctype(t *testing.T) {
	doc := ExtractMarkup("<!doctype html><html><body><p>truncated")
	require.Equal(t, core.HeuristicDoctype, doc.Heuristic)
	require.Equal(t, "<!doctype html><html><body><p>truncated", doc.Content)
}

func TestExtractMarkupRootOnly(t *testing.T) {
	doc := ExtractMarkup("text before <html><body>x</body></html> after")
	require.Equal(t, core.HeuristicRoot, doc.Heuristic)
	require.Equal(t, "<html><body>x</body></html>", doc.Content)
}

func TestExtractMarkupRawFallback(t *testing.T) {
	raw := "I could not produce the newsletter this time."
	doc := ExtractMarkup(raw)
	require.True(t, doc.RawFallback)
	require.Equal(t, core.HeuristicRaw, doc.Heuristic)
	require.Equal(t, raw, doc.Content)
}

func TestExtractMarkupNeverEmptyForNonEmptyInput(t *testing.T) {
	for _, raw := range []string{"x", "```html\n```", "<html>", " ", "<!DOCTYPE html>"} {
		doc := ExtractMarkup(raw)
		require.NotEmpty(t, doc.Content, "input %q", raw)
	}
}
