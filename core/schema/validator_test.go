package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

func validCandidate() map[string]any {
	return map[string]any{
		"schemaVersion": "2.4",
		"issueDate":     "2026-10-17",
		"mainTitle":     "3年2組 学級通信",
		"sections": []any{
			map[string]any{"type": "main", "title": "運動会", "content": "みんな頑張りました", "estimatedLength": "medium"},
		},
		"colorScheme": map[string]any{
			"primary": "#2E7D32", "secondary": "#81C784", "accent": "#FFB300", "background": "#FFFFFF",
		},
		"photoPlaceholders": map[string]any{"count": 1, "positions": []any{"top-right"}},
		"layout":            map[string]any{"pageCount": 1, "columns": 2},
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var schemaErr *Error
	require.True(t, errors.As(err, &schemaErr), "expected *schema.Error, got %v", err)
	return schemaErr.Field
}

func TestValidateAcceptsValidCandidate(t *testing.T) {
	outline, err := Validate(validCandidate())
	require.NoError(t, err)
	require.Equal(t, "2.4", outline.SchemaVersion)
	require.Len(t, outline.Sections, 1)
	require.Equal(t, "運動会", outline.Sections[0].Title)
	require.Equal(t, core.Layout{PageCount: 1, Columns: 2}, outline.Layout)
	require.Equal(t, []string{"top-right"}, outline.PhotoPlaceholders.Positions)
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		field  string
	}{
		{"missing key", func(m map[string]any) { delete(m, "mainTitle") }, "mainTitle"},
		{"sections not list", func(m map[string]any) { m["sections"] = "none" }, "sections"},
		{"empty sections", func(m map[string]any) { m["sections"] = []any{} }, "sections"},
		{"blank section title", func(m map[string]any) {
			m["sections"] = []any{map[string]any{"title": "  "}}
		}, "sections[0].title"},
		{"bad color", func(m map[string]any) {
			m["colorScheme"].(map[string]any)["accent"] = "orange"
		}, "colorScheme.accent"},
		{"short hex", func(m map[string]any) {
			m["colorScheme"].(map[string]any)["primary"] = "#FFF"
		}, "colorScheme.primary"},
		{"zero pages", func(m map[string]any) { m["layout"] = map[string]any{"pageCount": 0} }, "layout.pageCount"},
		{"fractional pages", func(m map[string]any) { m["layout"] = map[string]any{"pageCount": 1.5} }, "layout.pageCount"},
		{"title not string", func(m map[string]any) { m["mainTitle"] = 7.0 }, "mainTitle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			tt.mutate(c)
			_, err := Validate(c)
			require.Error(t, err)
			require.Equal(t, tt.field, fieldOf(t, err))
		})
	}
}

func TestValidateReportsFirstViolation(t *testing.T) {
	c := validCandidate()
	delete(c, "layout")
	c["sections"] = []any{}
	_, err := Validate(c)
	require.Equal(t, "layout", fieldOf(t, err))

	c = validCandidate()
	c["sections"] = []any{}
	c["colorScheme"] = map[string]any{}
	_, err = Validate(c)
	require.Equal(t, "sections", fieldOf(t, err))
}

func TestValidateDefaultsColumns(t *testing.T) {
	c := validCandidate()
	c["layout"] = map[string]any{"pageCount": 2}
	outline, err := Validate(c)
	require.NoError(t, err)
	require.Equal(t, 1, outline.Layout.Columns)
}

func TestValidateOutlineRoundTrip(t *testing.T) {
	outline, err := Validate(validCandidate())
	require.NoError(t, err)
	require.NoError(t, ValidateOutline(outline))

	outline.Sections = nil
	require.Equal(t, "sections", fieldOf(t, ValidateOutline(outline)))
}
