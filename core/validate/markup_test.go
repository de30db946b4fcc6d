package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

func codes(r core.ValidationReport) []string {
	var out []string
	for _, d := range r.Defects {
		out = append(out, d.Code)
	}
	return out
}

func TestSourceWellFormed(t *testing.T) {
	r := Source(`<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>通信</title></head>
<body><h1>学級通信</h1><p>本文<br>続き</p><ul><li>一<li>二</ul><img src="x.png" alt=""></body>
</html>`)
	require.True(t, r.WellFormed, "defects: %v", r.Defects)
	require.Empty(t, r.Defects)
}

func TestSourceUnclosedElement(t *testing.T) {
	r := Markup(core.MarkupDocument{Content: "<!DOCTYPE html><html><body><div><p>open</body></html>"})
	require.False(t, r.WellFormed)
	require.Contains(t, codes(r), CodeMisnestedEndTag)

	r = Source("<!DOCTYPE html><html><body><section>never closed")
	require.False(t, r.WellFormed)
	require.Equal(t, []string{CodeUnclosedElement}, codes(r))
	require.Equal(t, 1, r.Defects[0].Line)
	require.Equal(t, 28, r.Defects[0].Column)
}

func TestSourcePositions(t *testing.T) {
	r := Source("<!DOCTYPE html>\n<html><body>\n  <div>\n</body></html>")
	require.Len(t, r.Defects, 1)
	d := r.Defects[0]
	require.Equal(t, CodeMisnestedEndTag, d.Code)
	require.Equal(t, 4, d.Line)
	require.Equal(t, 1, d.Column)
}

func TestSourceFragment(t *testing.T) {
	r := Source("<p>just a fragment</p>")
	require.ElementsMatch(t, []string{CodeMissingDoctype, CodeMissingRoot}, codes(r))
}

func TestSourceStrayEndTagAndDuplicates(t *testing.T) {
	r := Source(`<!DOCTYPE html><html><body><div class="a" class="b"></div></span></body></html>`)
	require.ElementsMatch(t, []string{CodeDuplicateAttribute, CodeUnexpectedEndTag}, codes(r))
}

func TestSourcePlainText(t *testing.T) {
	r := Source("no markup at all")
	require.False(t, r.WellFormed)
	require.ElementsMatch(t, []string{CodeMissingDoctype, CodeMissingRoot}, codes(r))

	require.True(t, Source("").WellFormed)
}
