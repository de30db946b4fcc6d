package fallback

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core/schema"
)

func TestDefaultOutlineIsDeterministic(t *testing.T) {
	day := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	later := day.Add(9 * time.Hour)

	first, err := json.Marshal(DefaultOutline(day))
	require.NoError(t, err)
	second, err := json.Marshal(DefaultOutline(later))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDefaultOutlineIsSchemaValid(t *testing.T) {
	outline := DefaultOutline(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, schema.ValidateOutline(outline))
	require.Equal(t, "2026-04-01", outline.IssueDate)
	require.Len(t, outline.Sections, 1)
	require.Equal(t, 1, outline.PhotoPlaceholders.Count)
	require.Equal(t, 1, outline.Layout.PageCount)
}
