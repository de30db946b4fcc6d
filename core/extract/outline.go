package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/schema"
)

// Outline extraction failure reasons.
var (
	ErrNotStructuredContent = errors.New("not structured content")
	ErrNoJSONMarkers        = errors.New("no json markers")
	ErrParse                = errors.New("parse error")
	ErrSchemaViolation      = errors.New("schema violation")
)

// Failure is returned for every unsuccessful outline extraction.
type Failure struct {
	Reason error
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return "extract outline: " + f.Reason.Error()
	}
	return fmt.Sprintf("extract outline: %s: %s", f.Reason, f.Detail)
}

// Unwrap exposes the reason marker and, when present, the cause.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Reason}
	}
	return []error{f.Reason, f.Err}
}

// greetingPatterns are lower-cased substrings of conversational replies.
// A match anywhere rejects the reply before any JSON is looked for.
var greetingPatterns = []string{
	"こんにちは",
	"こんばんは",
	"おはよう",
	"はじめまして",
	"お手伝い",
	"ありがとう",
	"hello",
	"good morning",
	"good afternoon",
	"how can i help",
	"thank you",
}

var (
	jsonFenceRegex = regexp.MustCompile("(?s)```[ \\t]*(?i:json5?|jsonc)[ \\t]*\\r?\\n?(.*?)```")
	anyFenceRegex  = regexp.MustCompile("(?s)```[^\\n`]*\\r?\\n?(.*?)```")
)

// ExtractOutline recovers a schema-valid outline from raw generator text.
// Every failure is a *Failure; the function never panics on bad input.
func ExtractOutline(raw string) (core.Outline, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return core.Outline{}, &Failure{Reason: ErrNotStructuredContent, Detail: "empty response"}
	}
	if isGreeting(trimmed) {
		return core.Outline{}, &Failure{Reason: ErrNotStructuredContent, Detail: "conversational reply"}
	}
	if !strings.Contains(trimmed, "{") || !strings.Contains(trimmed, "}") {
		return core.Outline{}, &Failure{Reason: ErrNoJSONMarkers}
	}

	candidate, ok := braceSpan(stripFence(trimmed))
	if !ok {
		// The fence held something else; the object lives outside it.
		candidate, ok = braceSpan(trimmed)
	}
	if !ok {
		return core.Outline{}, &Failure{Reason: ErrNoJSONMarkers, Detail: "closing brace precedes opening brace"}
	}

	var decoded map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return core.Outline{}, &Failure{Reason: ErrParse, Detail: err.Error(), Err: err}
	}
	if dec.More() {
		return core.Outline{}, &Failure{Reason: ErrParse, Detail: "trailing data after object"}
	}

	outline, err := schema.Validate(decoded)
	if err != nil {
		return core.Outline{}, &Failure{Reason: ErrSchemaViolation, Detail: err.Error(), Err: err}
	}
	return outline, nil
}

func isGreeting(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range greetingPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// stripFence returns the interior of a json-tagged fence, else of any
// fence, else the text unchanged.
func stripFence(text string) string {
	if m := jsonFenceRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := anyFenceRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// braceSpan takes the first "{" through the last "}" inclusive.
func braceSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
