package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyExtractor(t *testing.T) {
	html := `<!DOCTYPE html><html><head><title> 学級通信 </title>
<style>h1 { color: red; }</style><script>alert(1)</script></head>
<body><h1>見出し</h1><form><input></form><p>本文</p><script>x()</script></body></html>`

	body, err := NewBodyExtractor().Extract(html)
	require.NoError(t, err)
	require.Equal(t, "学級通信", body.Title)
	require.Equal(t, []string{"h1 { color: red; }"}, body.Styles)
	require.Contains(t, body.HTML, "<p>本文</p>")
	require.NotContains(t, body.HTML, "script")
	require.NotContains(t, body.HTML, "form")
}

func TestBodyExtractorTitleFromHeading(t *testing.T) {
	body, err := NewBodyExtractor().Extract("<h1>Sports Day</h1><p>fun</p>")
	require.NoError(t, err)
	require.Equal(t, "Sports Day", body.Title)
}
