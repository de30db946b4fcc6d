package render

import (
	"bytes"
	"regexp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pageObjectRegex = regexp.MustCompile(`/Type\s*/Page[^s]`)

// CountPages returns the number of pages in a PDF. When pdfcpu cannot
// parse the file the page objects are counted directly. Any non-empty
// output counts as at least one page.
func CountPages(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	if ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration()); err == nil && ctx.PageCount > 0 {
		return ctx.PageCount
	}
	if n := len(pageObjectRegex.FindAll(data, -1)); n > 0 {
		return n
	}
	return 1
}
