// Passthrough engine writing the print-ready HTML as-is, for printing
// from a browser when no PDF engine is wanted.

package render

import (
	"context"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// HTMLRenderer writes the stabilized HTML as-is.
type HTMLRenderer struct{}

// NewHTMLRenderer creates an HTMLRenderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// Name identifies the engine.
func (r *HTMLRenderer) Name() string { return "html" }

// Render returns the HTML as bytes (passthrough).
func (r *HTMLRenderer) Render(_ context.Context, doc core.PrintDocument) ([]byte, error) {
	return []byte(doc.HTML), nil
}

// Extension returns the file extension for HTML output.
func (r *HTMLRenderer) Extension() string {
	return ".html"
}
