package extract

import (
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

var (
	htmlFenceRegex = regexp.MustCompile("(?is)```[ \\t]*(?:html|xhtml|htm)[ \\t]*\\r?\\n(.*?)(?:```|\\z)")
	doctypeRegex   = regexp.MustCompile(`(?i)<!doctype\s+html`)
	rootOpenRegex  = regexp.MustCompile(`(?i)<html[\s>]`)
	rootCloseRegex = regexp.MustCompile(`(?i)</html\s*>`)
)

// ExtractMarkup recovers an HTML document from raw generator text. It never
// fails: when no marker is found the raw text is kept verbatim with
// RawFallback set. Presence of a marker commits to that heuristic.
func ExtractMarkup(raw string) core.MarkupDocument {
	var (
		content   string
		heuristic string
	)
	switch {
	case htmlFenceRegex.MatchString(raw):
		content = strings.TrimSpace(htmlFenceRegex.FindStringSubmatch(raw)[1])
		heuristic = core.HeuristicFenced
	case doctypeRegex.MatchString(raw):
		content = throughRootClose(raw, doctypeRegex.FindStringIndex(raw)[0])
		heuristic = core.HeuristicDoctype
	case rootOpenRegex.MatchString(raw):
		content = throughRootClose(raw, rootOpenRegex.FindStringIndex(raw)[0])
		heuristic = core.HeuristicRoot
	}
	if strings.TrimSpace(content) == "" {
		return core.MarkupDocument{Content: raw, RawFallback: true, Heuristic: core.HeuristicRaw}
	}
	return core.MarkupDocument{Content: content, Heuristic: heuristic}
}

// throughRootClose slices from start through the last </html>, or to the
// end of the text when the generator was cut off.
func throughRootClose(raw string, start int) string {
	tail := raw[start:]
	closes := rootCloseRegex.FindAllStringIndex(tail, -1)
	if len(closes) == 0 {
		return strings.TrimSpace(tail)
	}
	return tail[:closes[len(closes)-1][1]]
}
