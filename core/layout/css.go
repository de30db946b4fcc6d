package layout

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// FontFallbackChain ends in faces present on every print host.
const FontFallbackChain = `"Noto Sans JP", "Hiragino Sans", "Yu Gothic", "Helvetica Neue", Arial, "DejaVu Sans", sans-serif`

// BodyTextColor is forced on body text regardless of the generator's styles.
const BodyTextColor = "#1A1A1A"

// minHeadingContrast is the WCAG AA ratio for normal text.
const minHeadingContrast = 4.5

// printCSS returns the stylesheet injected after the generator's own.
func printCSS(format core.PageFormat, columns int, headingColor string) string {
	var b strings.Builder
	size := format.Size
	if strings.EqualFold(format.Orientation, "landscape") {
		size += " landscape"
	}
	fmt.Fprintf(&b, "@page { size: %s; margin: %gmm; }\n", size, format.MarginMM)
	fmt.Fprintf(&b, "html, body { background: #FFFFFF; }\n")
	fmt.Fprintf(&b, "body { color: %s !important; font-family: %s; line-height: 1.6; -webkit-print-color-adjust: exact; print-color-adjust: exact; }\n",
		BodyTextColor, FontFallbackChain)
	fmt.Fprintf(&b, "h1, h2, h3, h4, h5, h6 { color: %s; font-family: %s; break-after: avoid; page-break-after: avoid; }\n",
		headingColor, FontFallbackChain)
	b.WriteString("section, article, table, figure, img, .photo-placeholder, h1, h2, h3, h4, h5, h6 { break-inside: avoid; page-break-inside: avoid; }\n")
	b.WriteString(".photo-placeholder { border: 1px dashed #999999; min-height: 35mm; display: flex; align-items: center; justify-content: center; }\n")
	if columns > 1 {
		fmt.Fprintf(&b, ".newsletter-columns { column-count: %d; column-gap: 6mm; column-fill: balance; }\n", columns)
	} else {
		b.WriteString(".newsletter-columns { column-count: 1; column-fill: balance; }\n")
	}
	return b.String()
}

// printDocument assembles the print-ready HTML. Generator styles come
// first so the injected rules win.
func printDocument(title string, styles []string, css, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	for _, s := range styles {
		fmt.Fprintf(&b, "<style>\n%s\n</style>\n", escapeStyle(s))
	}
	fmt.Fprintf(&b, "<style>\n%s</style>\n", css)
	b.WriteString("</head>\n<body>\n<div class=\"newsletter-columns\">\n")
	b.WriteString(body)
	b.WriteString("\n</div>\n</body>\n</html>\n")
	return b.String()
}

func escapeStyle(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

// headingColorFor uses the outline's primary color when it stays legible
// on white paper, and the body color otherwise.
func headingColorFor(primary string) string {
	if core.IsHexColor(primary) && contrastRatio(primary, "#FFFFFF") >= minHeadingContrast {
		return strings.ToUpper(primary)
	}
	return BodyTextColor
}

func contrastRatio(a, b string) float64 {
	la, lb := luminance(a), luminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

func luminance(hex string) float64 {
	r, g, b, ok := core.RGB(hex)
	if !ok {
		return 0
	}
	return 0.2126*channel(r) + 0.7152*channel(g) + 0.0722*channel(b)
}

func channel(v int) float64 {
	c := float64(v) / 255
	if c <= 0.03928 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}
