// Package render implements the layout engines. The default engine lays out
// the Markdown projection of a print document with gofpdf.
// Blocks come from the chunker and are kept together within a column;
// paragraphs longer than the chunk size flow across columns and pages.
// Photo placeholders are drawn as dashed boxes with their label.
package render

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/chunk"
)

const (
	columnGap       = 6.0
	placeholderBox  = 35.0
	coreFontFamily  = "Helvetica"
	codeFontFamily  = "Courier"
	defaultFontSize = 10.0
)

var headingSizes = map[int]float64{1: 18, 2: 15, 3: 13, 4: 12, 5: 11, 6: 10}

// PDFRenderer renders the Markdown projection of a document as PDF.
type PDFRenderer struct {
	// FontDir is searched for the TrueType files named in
	// PrintDocument.Fonts. When empty the usual system font directories
	// are searched instead. The first file found is embedded as a UTF-8
	// font; with none found the core Helvetica font is used and text
	// outside Windows-1252 is replaced.
	FontDir   string
	ChunkSize int

	mu    sync.Mutex
	found map[string]string
}

// NewPDFRenderer creates a PDFRenderer.
func NewPDFRenderer(fontDir string) *PDFRenderer {
	return &PDFRenderer{FontDir: fontDir}
}

// Name identifies the engine.
func (r *PDFRenderer) Name() string { return "fpdf" }

// Extension returns the file extension for PDF output.
func (r *PDFRenderer) Extension() string {
	return ".pdf"
}

// Render converts the document into PDF bytes.
func (r *PDFRenderer) Render(ctx context.Context, doc core.PrintDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New(orientationCode(doc.Format.Orientation), "mm", pageSize(doc.Format.Size), "")
	margin := doc.Format.MarginMM
	if margin <= 0 {
		margin = 15
	}
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.AliasNbPages("")

	l := &pdfLayout{pdf: pdf, face: r.selectFace(pdf, doc.Fonts)}
	l.text = l.textFunc()
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	l.body = colorOf(doc.BodyColor, 26, 26, 26)
	l.heading = colorOf(doc.HeadingColor, l.body[0], l.body[1], l.body[2])

	pageW, _ := pdf.GetPageSize()
	pdf.SetFooterFunc(func() {
		pdf.SetLeftMargin(margin)
		pdf.SetRightMargin(margin)
		pdf.SetY(-margin + 2)
		pdf.SetX(margin)
		l.setFont("", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(pageW-2*margin, 4, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		l.flow.place()
	})

	pdf.AddPage()
	l.masthead(doc.Title, doc.Subtitle, pageW-2*margin)

	l.flow = newColumnFlow(pdf, doc.Columns, margin, pageW-2*margin)
	pdf.SetAcceptPageBreakFunc(l.flow.acceptPageBreak)

	chunkSize := r.ChunkSize
	for _, b := range chunk.New(chunkSize).Chunk(doc.Markdown) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.block(b)
		if pdf.Err() {
			break
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

type fontFace struct {
	family string
	utf8   bool
}

// selectFace registers the first usable TrueType candidate.
func (r *PDFRenderer) selectFace(pdf *gofpdf.Fpdf, candidates []string) fontFace {
	path := r.FindFont(candidates)
	if path == "" {
		return fontFace{family: coreFontFamily}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fontFace{family: coreFontFamily}
	}
	family := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pdf.AddUTF8FontFromBytes(family, "", data)
	pdf.AddUTF8FontFromBytes(family, "B", data)
	if pdf.Err() {
		pdf.ClearError()
		return fontFace{family: coreFontFamily}
	}
	return fontFace{family: family, utf8: true}
}

// FindFont returns the path of the first TrueType candidate that exists,
// or "" when there is none. Lookups are cached per candidate list.
func (r *PDFRenderer) FindFont(candidates []string) string {
	key := strings.Join(candidates, "\x00")
	r.mu.Lock()
	defer r.mu.Unlock()
	if path, ok := r.found[key]; ok {
		return path
	}
	path := r.lookup(candidates)
	if r.found == nil {
		r.found = make(map[string]string)
	}
	r.found[key] = path
	return path
}

func (r *PDFRenderer) lookup(candidates []string) string {
	var names []string
	for _, name := range candidates {
		if strings.EqualFold(filepath.Ext(name), ".ttf") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	if r.FontDir != "" {
		for _, name := range names {
			path := filepath.Join(r.FontDir, name)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				return path
			}
		}
		return ""
	}

	// Without a font directory, walk the system ones once and keep the
	// best ranked match.
	best, rank := "", len(names)
	for _, dir := range systemFontDirs() {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			for i, name := range names[:rank] {
				if strings.EqualFold(d.Name(), filepath.Base(name)) {
					best, rank = path, i
					break
				}
			}
			if rank == 0 {
				return fs.SkipAll
			}
			return nil
		})
		if rank == 0 {
			break
		}
	}
	return best
}

func systemFontDirs() []string {
	dirs := []string{
		"/usr/share/fonts",
		"/usr/local/share/fonts",
		"/Library/Fonts",
		"/System/Library/Fonts",
		`C:\Windows\Fonts`,
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "share", "fonts"),
			filepath.Join(home, ".fonts"),
			filepath.Join(home, "Library", "Fonts"),
		)
	}
	return dirs
}

// MissingGlyphs counts the characters of doc that will print as '?'
// because no UTF-8 font could be found.
func (r *PDFRenderer) MissingGlyphs(doc core.PrintDocument) int {
	if r.FindFont(doc.Fonts) != "" {
		return 0
	}
	n := 0
	for _, s := range []string{doc.Title, doc.Subtitle, doc.Markdown} {
		for _, c := range norm.NFC.String(s) {
			if c >= 0x20 && !encodable(c) {
				n++
			}
		}
	}
	return n
}

func encodable(c rune) bool {
	_, ok := charmap.Windows1252.EncodeRune(c)
	return ok
}

type pdfLayout struct {
	pdf     *gofpdf.Fpdf
	face    fontFace
	text    func(string) string
	flow    *columnFlow
	body    [3]int
	heading [3]int
}

func (l *pdfLayout) setFont(style string, size float64) {
	l.pdf.SetFont(l.face.family, style, size)
}

// textFunc returns the string preparation for the selected face. Core
// fonts only cover Windows-1252, so anything else becomes '?'.
func (l *pdfLayout) textFunc() func(string) string {
	if l.face.utf8 {
		return func(s string) string { return stripControls(norm.NFC.String(s)) }
	}
	tr := l.pdf.UnicodeTranslatorFromDescriptor("")
	return func(s string) string { return tr(cp1252Safe(norm.NFC.String(s))) }
}

func stripControls(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

func cp1252Safe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20:
		default:
			if encodable(r) {
				b.WriteRune(r)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}

func (l *pdfLayout) masthead(title, subtitle string, width float64) {
	if title == "" && subtitle == "" {
		return
	}
	pdf := l.pdf
	pdf.SetTextColor(l.heading[0], l.heading[1], l.heading[2])
	if title != "" {
		l.setFont("B", 20)
		pdf.MultiCell(width, 9, l.text(title), "", "C", false)
	}
	if subtitle != "" {
		l.setFont("", 10)
		pdf.SetTextColor(l.body[0], l.body[1], l.body[2])
		pdf.MultiCell(width, 5, l.text(subtitle), "", "C", false)
	}
	y := pdf.GetY() + 2
	left, _, _, _ := pdf.GetMargins()
	pdf.SetDrawColor(l.heading[0], l.heading[1], l.heading[2])
	pdf.SetLineWidth(0.6)
	pdf.Line(left, y, left+width, y)
	pdf.SetLineWidth(0.2)
	pdf.SetY(y + 5)
}

func (l *pdfLayout) block(b chunk.Block) {
	pdf := l.pdf
	w := l.flow.width
	switch b.Kind {
	case chunk.Heading:
		size, ok := headingSizes[b.Level]
		if !ok {
			size = defaultFontSize
		}
		l.setFont("B", size)
		text := l.text(b.Text)
		lineH := size * 0.6
		// Keep a heading with the first lines of what follows it.
		l.keepTogether(l.height(text, lineH) + 4 + 3*5)
		pdf.Ln(2)
		pdf.SetTextColor(l.heading[0], l.heading[1], l.heading[2])
		pdf.MultiCell(w, lineH, text, "", "L", false)
		pdf.Ln(2)
	case chunk.Paragraph:
		l.setFont("", defaultFontSize)
		text := l.text(b.Text)
		l.keepTogether(l.height(text, 5))
		pdf.SetTextColor(l.body[0], l.body[1], l.body[2])
		pdf.MultiCell(w, 5, text, "", "L", false)
		pdf.Ln(2)
	case chunk.ListItem:
		l.setFont("", defaultFontSize)
		text := l.text(b.Text)
		l.keepTogether(l.height(text, 5))
		pdf.SetTextColor(l.body[0], l.body[1], l.body[2])
		pdf.MultiCell(w, 5, text, "", "L", false)
	case chunk.Code:
		if l.face.utf8 {
			l.setFont("", 9)
		} else {
			pdf.SetFont(codeFontFamily, "", 9)
		}
		text := l.text(b.Text)
		l.keepTogether(l.height(text, 4.5))
		pdf.SetFillColor(245, 245, 245)
		pdf.SetTextColor(l.body[0], l.body[1], l.body[2])
		pdf.MultiCell(w, 4.5, text, "", "L", true)
		pdf.Ln(2)
	case chunk.Table:
		l.setFont("", 9)
		text := l.text(b.Text)
		l.keepTogether(l.height(text, 5))
		pdf.SetTextColor(l.body[0], l.body[1], l.body[2])
		pdf.SetDrawColor(200, 200, 200)
		pdf.MultiCell(w, 5, text, "1", "L", false)
		pdf.Ln(2)
	case chunk.Image:
		l.placeholder(b.Text)
	case chunk.Rule:
		l.keepTogether(4)
		y := pdf.GetY() + 2
		pdf.SetDrawColor(l.heading[0], l.heading[1], l.heading[2])
		pdf.Line(l.flow.x(), y, l.flow.x()+w, y)
		pdf.SetY(y + 2)
		pdf.SetX(l.flow.x())
	}
}

// placeholder draws a dashed box where a photo is to be pasted.
func (l *pdfLayout) placeholder(label string) {
	pdf := l.pdf
	l.keepTogether(placeholderBox + 4)
	x, y, w := l.flow.x(), pdf.GetY()+1, l.flow.width
	pdf.SetDrawColor(l.heading[0], l.heading[1], l.heading[2])
	pdf.SetDashPattern([]float64{2, 1.5}, 0)
	pdf.Rect(x, y, w, placeholderBox, "D")
	pdf.SetDashPattern([]float64{}, 0)
	if label == "" {
		label = "Photo"
	}
	l.setFont("", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(x, y+placeholderBox/2-2.5)
	pdf.CellFormat(w, 5, l.text(label), "", 0, "C", false, 0, "")
	pdf.SetXY(x, y+placeholderBox+3)
}

// height estimates the rendered height of text at the current font.
func (l *pdfLayout) height(text string, lineH float64) float64 {
	usable := l.flow.width - 2*l.pdf.GetCellMargin()
	if usable <= 0 {
		return lineH
	}
	lines := 0.0
	for _, para := range strings.Split(text, "\n") {
		n := math.Ceil(l.pdf.GetStringWidth(para) / usable)
		if n < 1 {
			n = 1
		}
		lines += n
	}
	return lines * lineH
}

// keepTogether moves to the next column or page when h does not fit in
// what is left of the current one but would fit in a fresh one.
func (l *pdfLayout) keepTogether(h float64) {
	_, pageH := l.pdf.GetPageSize()
	_, _, _, bottom := l.pdf.GetMargins()
	limit := pageH - bottom
	if l.pdf.GetY()+h <= limit {
		return
	}
	if h > limit-l.flow.pageTop {
		return
	}
	l.flow.advance()
}

// columnFlow fills columns left to right, then starts a new page.
type columnFlow struct {
	pdf     *gofpdf.Fpdf
	n       int
	col     int
	left    float64
	width   float64
	right   float64
	top     float64
	pageTop float64
}

func newColumnFlow(pdf *gofpdf.Fpdf, columns int, margin, total float64) *columnFlow {
	if columns < 1 {
		columns = 1
	}
	if columns > 4 {
		columns = 4
	}
	pageW, _ := pdf.GetPageSize()
	c := &columnFlow{
		pdf:     pdf,
		n:       columns,
		left:    margin,
		width:   (total - columnGap*float64(columns-1)) / float64(columns),
		right:   pageW - margin,
		top:     pdf.GetY(),
		pageTop: margin,
	}
	c.place()
	return c
}

func (c *columnFlow) x() float64 {
	return c.left + float64(c.col)*(c.width+columnGap)
}

func (c *columnFlow) place() {
	if c == nil {
		return
	}
	x := c.x()
	pageW, _ := c.pdf.GetPageSize()
	c.pdf.SetLeftMargin(x)
	c.pdf.SetRightMargin(pageW - x - c.width)
	c.pdf.SetX(x)
}

// acceptPageBreak is installed as the gofpdf page break callback.
func (c *columnFlow) acceptPageBreak() bool {
	if c.col < c.n-1 {
		c.col++
		c.place()
		c.pdf.SetY(c.top)
		return false
	}
	c.col = 0
	c.top = c.pageTop
	c.place()
	return true
}

func (c *columnFlow) advance() {
	if c.acceptPageBreak() {
		c.pdf.AddPage()
		c.place()
	}
}

func orientationCode(o string) string {
	if strings.EqualFold(o, "landscape") {
		return "L"
	}
	return "P"
}

func pageSize(size string) string {
	switch strings.ToUpper(size) {
	case "A3":
		return "A3"
	case "A5":
		return "A5"
	case "LETTER":
		return "Letter"
	case "LEGAL":
		return "Legal"
	default:
		return "A4"
	}
}

func colorOf(hex string, r, g, b int) [3]int {
	if cr, cg, cb, ok := core.RGB(hex); ok {
		return [3]int{cr, cg, cb}
	}
	return [3]int{r, g, b}
}
