package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/extract"
	"github.com/gaurav-prasanna/newsletterpipe/core/fallback"
	"github.com/gaurav-prasanna/newsletterpipe/core/prompt"
)

// Mock is an offline oracle. It answers outline prompts with a fenced JSON
// outline built from the input sentences and markup prompts with an HTML
// document built from the outline, wrapped in chatty commentary the way a
// real model often is. Output depends only on the prompt and Now.
type Mock struct {
	// Now dates the outline. Nil uses time.Now.
	Now func() time.Time
}

// NewMock creates a Mock oracle.
func NewMock() *Mock {
	return &Mock{}
}

// Generate answers prompt according to its kind.
func (m *Mock) Generate(ctx context.Context, p core.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Classify(err)
	}
	switch p.Kind {
	case core.PromptOutline:
		return m.outline(prompt.Payload(p.User, prompt.InputMarker))
	case core.PromptMarkup:
		return m.markup(prompt.Payload(p.User, prompt.OutlineMarker))
	default:
		return "", fmt.Errorf("mock oracle: unknown prompt kind %q", p.Kind)
	}
}

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mock) outline(input string) (string, error) {
	outline := fallback.DefaultOutline(m.now())
	sentences := splitSentences(input)
	if len(sentences) > 0 {
		outline.Sections = outline.Sections[:0]
		for i, s := range sentences {
			if i == 4 {
				break
			}
			outline.Sections = append(outline.Sections, core.Section{
				Type:            "main",
				Title:           headline(s),
				Content:         s,
				EstimatedLength: "short",
			})
		}
		if len(sentences) > 2 {
			outline.Layout.Columns = 2
		}
	}
	data, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		return "", err
	}
	return "Here is the outline you asked for:\n```json\n" + string(data) + "\n```\nLet me know if you would like changes.", nil
}

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>{{.MainTitle}}</title>
<style>
h1, h2 { color: {{.ColorScheme.Primary}}; }
.date { color: {{.ColorScheme.Secondary}}; }
</style>
</head>
<body>
<h1>{{.MainTitle}}</h1>
<p class="date">{{.IssueDate}}</p>
{{range .Sections}}<section>
<h2>{{.Title}}</h2>
<p>{{.Content}}</p>
</section>
{{end}}{{range .PhotoPlaceholders.Positions}}<div class="photo-placeholder" data-label="photo: {{.}}">photo: {{.}}</div>
{{end}}</body>
</html>`))

func (m *Mock) markup(payload string) (string, error) {
	outline, err := extract.ExtractOutline(payload)
	if err != nil {
		outline = fallback.DefaultOutline(m.now())
	}
	var buf bytes.Buffer
	if err := newsletterTemplate.Execute(&buf, outline); err != nil {
		return "", fmt.Errorf("mock oracle: %w", err)
	}
	return "Sure! Here is the newsletter:\n```html\n" + buf.String() + "\n```", nil
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '。' || r == '\n' || r == '.' || r == '!' || r == '！'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func headline(sentence string) string {
	runes := []rune(sentence)
	if len(runes) > 16 {
		return string(runes[:16]) + "…"
	}
	return sentence
}
