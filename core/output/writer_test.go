package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

func TestWriterPaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := New(dir)
	require.NoError(t, err)

	path, err := w.WriteOutline("0192-ab/cd", core.OutlineArtifact{Outline: core.Outline{MainTitle: "x"}})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "0192-ab_cd.outline.json"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"mainTitle": "x"`)

	path, err = w.WriteMarkup("s1", core.MarkupDocument{Content: "<html></html>"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "s1.html"), path)

	path, err = w.WritePaginated("s1", core.PaginatedArtifact{Data: []byte("<html>print</html>")}, ".html")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "s1.print.html"), path)

	path, err = w.WritePaginated("s1", core.PaginatedArtifact{Data: []byte("%PDF")}, ".pdf")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "s1.pdf"), path)
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "newsletter", sanitize(""))
	require.Equal(t, "a_b-c", sanitize("a.b-c"))
}

func TestWriterReplacesAndLeavesNoPartials(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)

	_, err = w.WriteMarkup("s1", core.MarkupDocument{Content: "first"})
	require.NoError(t, err)
	path, err := w.WriteMarkup("s1", core.MarkupDocument{Content: "second"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
