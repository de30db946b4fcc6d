// Package prompt builds the per-call prompts sent to the generation oracle.
// Every prompt is a fresh value: context goes into the prompt text, never
// into shared instruction state.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Markers separating the instructions from the payload in a user message.
const (
	InputMarker   = "### INPUT"
	OutlineMarker = "### OUTLINE"
)

const outlineSystem = `You plan classroom newsletters for elementary school teachers.
Reply with a single JSON object and nothing else. Use exactly these keys:
schemaVersion (string, "%s"), issueDate (string, YYYY-MM-DD),
mainTitle (string), sections (non-empty array of objects with type, title,
content, estimatedLength), colorScheme (object with primary, secondary,
accent, background, each #RRGGBB), photoPlaceholders (object with count
and positions), layout (object with pageCount >= 1 and columns).`

const markupSystem = `You write printable classroom newsletters as complete HTML documents.
Reply with one HTML document from <!DOCTYPE html> through </html>.
Use the outline's title, sections and colors. Mark every photo position with
an element whose class contains "photo" and whose text describes the photo.
Use inline <style> only; no scripts and no external resources.`

// Outline builds the outline-stage prompt for raw teacher input.
func Outline(input string, today time.Time) core.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. Plan a newsletter from the teacher's notes below.\n", today.Format(time.DateOnly))
	b.WriteString(InputMarker)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(input))
	return core.Prompt{
		Kind:   core.PromptOutline,
		System: fmt.Sprintf(outlineSystem, core.SchemaVersion),
		User:   b.String(),
	}
}

// Markup builds the markup-stage prompt with the outline serialized in.
func Markup(outline core.Outline) (core.Prompt, error) {
	data, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		return core.Prompt{}, fmt.Errorf("encoding outline: %w", err)
	}
	var b strings.Builder
	b.WriteString("Write the newsletter for this outline.\n")
	b.WriteString(OutlineMarker)
	b.WriteString("\n```json\n")
	b.Write(data)
	b.WriteString("\n```")
	return core.Prompt{
		Kind:   core.PromptMarkup,
		System: markupSystem,
		User:   b.String(),
	}, nil
}

// Payload returns what follows marker in a user message, or the whole
// message when the marker is absent.
func Payload(user, marker string) string {
	if i := strings.Index(user, marker); i >= 0 {
		return strings.TrimSpace(user[i+len(marker):])
	}
	return strings.TrimSpace(user)
}
