package render

import (
	"context"
	"fmt"
	"io"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// paperInches maps the supported sizes to portrait width and height.
var paperInches = map[string][2]float64{
	"A3":     {11.69, 16.54},
	"A4":     {8.27, 11.69},
	"A5":     {5.83, 8.27},
	"Letter": {8.5, 11},
	"Legal":  {8.5, 14},
}

// ChromiumRenderer prints the HTML form of a document through headless
// Chrome. Columns, keep-together rules and fonts come from the print CSS
// injected during layout.
type ChromiumRenderer struct {
	// Bin is the browser executable. Empty means look it up on the host.
	Bin string
	// RemoteURL connects to an already running browser instead of
	// launching one.
	RemoteURL string
}

// NewChromiumRenderer creates a ChromiumRenderer.
func NewChromiumRenderer(bin, remoteURL string) *ChromiumRenderer {
	return &ChromiumRenderer{Bin: bin, RemoteURL: remoteURL}
}

// Name identifies the engine.
func (r *ChromiumRenderer) Name() string { return "chromium" }

// Extension returns the file extension for PDF output.
func (r *ChromiumRenderer) Extension() string { return ".pdf" }

// Render launches (or connects to) a browser, loads the document and
// prints it to PDF.
func (r *ChromiumRenderer) Render(ctx context.Context, doc core.PrintDocument) ([]byte, error) {
	controlURL := r.RemoteURL
	if controlURL == "" {
		bin := r.Bin
		if bin == "" {
			found, ok := launcher.LookPath()
			if !ok {
				return nil, fmt.Errorf("no chrome executable found: %w", core.ErrEngineUnavailable)
			}
			bin = found
		}
		l := launcher.New().Context(ctx).Bin(bin).Headless(true).Leakless(false)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching chrome: %w: %w", core.ErrEngineUnavailable, err)
		}
		defer func() {
			l.Kill()
			l.Cleanup()
		}()
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to chrome: %w: %w", core.ErrEngineUnavailable, err)
	}
	if r.RemoteURL == "" {
		defer browser.Close()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(doc.HTML); err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("waiting for load: %w", err)
	}

	size := paperInches[pageSize(doc.Format.Size)]
	width, height := size[0], size[1]
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		Landscape:         orientationCode(doc.Format.Orientation) == "L",
		PaperWidth:        &width,
		PaperHeight:       &height,
	})
	if err != nil {
		return nil, fmt.Errorf("printing to PDF: %w", err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("reading PDF stream: %w", err)
	}
	return data, nil
}
