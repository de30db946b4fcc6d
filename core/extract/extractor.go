// Package extract recovers usable content from generator output.
//
// Three extractors live here:
//  1. ExtractOutline: structured outline recovery (fence strip, brace span, schema check)
//  2. ExtractMarkup: HTML document recovery by marker (fence, doctype, root tag)
//  3. BodyExtractor: isolates the printable body of a markup document for layout
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors are elements removed before printing.
// They contribute nothing visible on paper or run code.
var noiseSelectors = []string{
	"script", "noscript", "template",
	"iframe", "object", "embed",
	"video", "audio", "canvas",
	"form", "button", "input", "select", "textarea",
	"link", "meta",
}

// Body is the printable part of a markup document.
type Body struct {
	Title  string
	HTML   string
	Styles []string
}

// BodyExtractor strips noise from a markup document and returns its body.
type BodyExtractor struct{}

// NewBodyExtractor creates a BodyExtractor.
func NewBodyExtractor() *BodyExtractor {
	return &BodyExtractor{}
}

// Extract parses html leniently and returns the title, the inner HTML of
// <body> (or of the whole document when no body exists) and any inline
// <style> sheets, in document order.
func (e *BodyExtractor) Extract(html string) (Body, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Body{}, fmt.Errorf("parsing HTML: %w", err)
	}

	var body Body
	body.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		if css := strings.TrimSpace(s.Text()); css != "" {
			body.Styles = append(body.Styles, css)
		}
	})
	doc.Find("style").Remove()

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	// The parser always synthesizes <body>; fall back to the document root
	// only if something stripped it.
	content := doc.Find("body").First()
	if content.Length() == 0 {
		content = doc.Selection
	}
	inner, err := content.Html()
	if err != nil {
		return Body{}, fmt.Errorf("serializing body: %w", err)
	}
	body.HTML = strings.TrimSpace(inner)

	if body.Title == "" {
		body.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return body, nil
}
