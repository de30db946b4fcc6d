package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core/schema"
)

const validJSON = `{
  "schemaVersion": "2.4",
  "issueDate": "2026-10-17",
  "mainTitle": "学級通信 10月号",
  "sections": [
    {"type": "main", "title": "遠足", "content": "news from the zoo", "estimatedLength": "long"},
    {"type": "notice", "title": "持ち物", "content": "水筒", "estimatedLength": "short"}
  ],
  "colorScheme": {"primary": "#1565C0", "secondary": "#90CAF9", "accent": "#FF7043", "background": "#FFFFFF"},
  "photoPlaceholders": {"count": 2, "positions": ["top-right", "bottom"]},
  "layout": {"pageCount": 1, "columns": 2}
}`

func requireReason(t *testing.T, err error, reason error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, reason)
	var failure *Failure
	require.True(t, errors.As(err, &failure))
}

func TestExtractOutlineRejectsGreeting(t *testing.T) {
	_, err := ExtractOutline("こんにちは")
	requireReason(t, err, ErrNotStructuredContent)

	_, err = ExtractOutline("Hello! How can I help you today?")
	requireReason(t, err, ErrNotStructuredContent)

	// The greeting check runs first, even when a valid object follows.
	_, err = ExtractOutline("Hello! Here you go:\n```json\n" + validJSON + "\n```")
	requireReason(t, err, ErrNotStructuredContent)
}

func TestExtractOutlineRejectsEmpty(t *testing.T) {
	_, err := ExtractOutline(" \n\t ")
	requireReason(t, err, ErrNotStructuredContent)
}

func TestExtractOutlineRequiresBraces(t *testing.T) {
	_, err := ExtractOutline("The newsletter should talk about the sports day.")
	requireReason(t, err, ErrNoJSONMarkers)

	_, err = ExtractOutline("only an opening { here")
	requireReason(t, err, ErrNoJSONMarkers)

	_, err = ExtractOutline("} reversed {")
	requireReason(t, err, ErrNoJSONMarkers)
}

func TestExtractOutlineFencedWithCommentary(t *testing.T) {
	raw := "Here is your outline:\n```json\n" + validJSON + "\n```\nLet me know if you want changes {or more sections}."
	outline, err := ExtractOutline(raw)
	require.NoError(t, err)
	require.Equal(t, "学級通信 10月号", outline.MainTitle)
	require.Len(t, outline.Sections, 2)
	require.Equal(t, 2, outline.Layout.Columns)
}

func TestExtractOutlineUntaggedFence(t *testing.T) {
	outline, err := ExtractOutline("```\n" + validJSON + "\n```")
	require.NoError(t, err)
	require.Equal(t, "2.4", outline.SchemaVersion)
}

func TestExtractOutlineBraceSpan(t *testing.T) {
	outline, err := ExtractOutline("Sure! " + validJSON + " Hope this helps.")
	require.NoError(t, err)
	require.Equal(t, "news from the zoo", outline.Sections[0].Content)
}

func TestExtractOutlineParseError(t *testing.T) {
	_, err := ExtractOutline(`{"schemaVersion": "2.4", "sections": [}`)
	requireReason(t, err, ErrParse)

	_, err = ExtractOutline(`{"a": 1} and {"b": 2}`)
	requireReason(t, err, ErrParse)
}

func TestExtractOutlineSchemaViolation(t *testing.T) {
	_, err := ExtractOutline(`{"schemaVersion": "2.4"}`)
	requireReason(t, err, ErrSchemaViolation)

	var schemaErr *schema.Error
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, "issueDate", schemaErr.Field)
}

func TestExtractOutlineRoundTrip(t *testing.T) {
	outline, err := ExtractOutline(validJSON)
	require.NoError(t, err)
	require.NoError(t, schema.ValidateOutline(outline))
}

func TestExtractOutlineNeverPanics(t *testing.T) {
	inputs := []string{
		"", "{", "}", "{}", "```json```", "```json\n{\n```", "{\"sections\": null}",
		"```json\n[]\n```", "{\"layout\": {\"pageCount\": 1e400}}", "\x00{\xff}",
		"```html\n<p>{}</p>\n```",
	}
	for _, in := range inputs {
		require.NotPanics(t, func() {
			outline, err := ExtractOutline(in)
			if err == nil {
				require.NoError(t, schema.ValidateOutline(outline))
			}
		}, "input %q", in)
	}
}
