// Package validate reports structural defects in markup documents.
//
// Validation is advisory. It parses with the lenient x/net/html tokenizer,
// never fails, and its report must not gate artifact delivery.
package validate

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Defect codes.
const (
	CodeMissingDoctype     = "missing-doctype"
	CodeMissingRoot        = "missing-root"
	CodeUnclosedElement    = "unclosed-element"
	CodeUnexpectedEndTag   = "unexpected-end-tag"
	CodeMisnestedEndTag    = "misnested-end-tag"
	CodeDuplicateAttribute = "duplicate-attribute"
	CodeTokenizerError     = "tokenizer-error"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Elements whose end tag HTML lets authors omit.
var optionalEnd = map[string]bool{
	"html": true, "head": true, "body": true, "p": true, "li": true,
	"dt": true, "dd": true, "option": true, "optgroup": true,
	"thead": true, "tbody": true, "tfoot": true, "tr": true, "td": true,
	"th": true, "colgroup": true, "caption": true, "rb": true, "rt": true,
	"rp": true, "rtc": true,
}

type openElement struct {
	name   string
	offset int
}

// Markup validates doc and returns the defects found.
func Markup(doc core.MarkupDocument) core.ValidationReport {
	return Source(doc.Content)
}

// Source validates a raw markup string.
func Source(src string) core.ValidationReport {
	lines := newLineIndex(src)
	var defects []core.Defect
	add := func(offset int, code, format string, args ...any) {
		line, col := lines.position(src, offset)
		defects = append(defects, core.Defect{
			Line:    line,
			Column:  col,
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		})
	}

	var (
		stack      []openElement
		offset     int
		sawDoctype bool
		sawRoot    bool
		sawContent bool
	)

	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		start := offset
		offset += len(z.Raw())

		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				add(start, CodeTokenizerError, "tokenizer stopped: %v", err)
			}
			break
		}

		switch tt {
		case html.DoctypeToken:
			sawDoctype = true
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				sawContent = true
			}
		case html.SelfClosingTagToken, html.StartTagToken:
			sawContent = true
			tok := z.Token()
			if tok.Data == "html" {
				sawRoot = true
			}
			checkAttributes(tok, start, add)
			if tt == html.SelfClosingTagToken || voidElements[tok.Data] {
				continue
			}
			stack = append(stack, openElement{name: tok.Data, offset: start})
		case html.EndTagToken:
			tok := z.Token()
			if voidElements[tok.Data] {
				continue
			}
			stack = closeElement(stack, tok.Data, start, add)
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		el := stack[i]
		if !optionalEnd[el.name] {
			add(el.offset, CodeUnclosedElement, "<%s> is never closed", el.name)
		}
	}
	if sawContent && !sawDoctype {
		add(0, CodeMissingDoctype, "document has no <!DOCTYPE html> declaration")
	}
	if sawContent && !sawRoot {
		add(0, CodeMissingRoot, "document has no <html> root element")
	}

	sort.SliceStable(defects, func(i, j int) bool {
		if defects[i].Line != defects[j].Line {
			return defects[i].Line < defects[j].Line
		}
		return defects[i].Column < defects[j].Column
	})
	return core.ValidationReport{WellFormed: len(defects) == 0, Defects: defects}
}

func closeElement(stack []openElement, name string, offset int, add func(int, string, string, ...any)) []openElement {
	idx := -1
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		add(offset, CodeUnexpectedEndTag, "</%s> has no matching open element", name)
		return stack
	}
	for i := len(stack) - 1; i > idx; i-- {
		if !optionalEnd[stack[i].name] {
			add(offset, CodeMisnestedEndTag, "</%s> closes <%s> opened before it is closed", name, stack[i].name)
		}
	}
	return stack[:idx]
}

func checkAttributes(tok html.Token, offset int, add func(int, string, string, ...any)) {
	if len(tok.Attr) < 2 {
		return
	}
	seen := make(map[string]bool, len(tok.Attr))
	for _, a := range tok.Attr {
		if seen[a.Key] {
			add(offset, CodeDuplicateAttribute, "<%s> repeats attribute %q", tok.Data, a.Key)
			continue
		}
		seen[a.Key] = true
	}
}

type lineIndex []int

func newLineIndex(src string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// position converts a byte offset into a 1-based line and rune column.
func (l lineIndex) position(src string, offset int) (int, int) {
	if offset > len(src) {
		offset = len(src)
	}
	line := sort.Search(len(l), func(i int) bool { return l[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	col := utf8.RuneCountInString(src[l[line]:offset]) + 1
	return line + 1, col
}
