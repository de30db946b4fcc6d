// Package schema validates decoded outline candidates against the fixed
// outline schema and converts them into core.Outline values.
//
// Rules are checked in order and the first violation is returned; no repair
// is attempted.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// RequiredKeys are the top-level outline keys, in wire order.
var RequiredKeys = []string{
	"schemaVersion",
	"issueDate",
	"mainTitle",
	"sections",
	"colorScheme",
	"photoPlaceholders",
	"layout",
}

// ColorNames are the four named colors of a color scheme.
var ColorNames = []string{"primary", "secondary", "accent", "background"}

// Error reports the first violated schema rule.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
}

func violation(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks candidate and returns the typed outline.
func Validate(candidate map[string]any) (core.Outline, error) {
	if candidate == nil {
		return core.Outline{}, violation("$", "candidate is not an object")
	}
	for _, key := range RequiredKeys {
		if _, ok := candidate[key]; !ok {
			return core.Outline{}, violation(key, "required key missing")
		}
	}

	sections, err := checkSections(candidate["sections"])
	if err != nil {
		return core.Outline{}, err
	}
	colors, err := checkColors(candidate["colorScheme"])
	if err != nil {
		return core.Outline{}, err
	}
	layout, err := checkLayout(candidate["layout"])
	if err != nil {
		return core.Outline{}, err
	}

	out := core.Outline{
		Sections:    sections,
		ColorScheme: colors,
		Layout:      layout,
	}
	if out.SchemaVersion, err = requireString(candidate, "schemaVersion"); err != nil {
		return core.Outline{}, err
	}
	if out.IssueDate, err = requireString(candidate, "issueDate"); err != nil {
		return core.Outline{}, err
	}
	if out.MainTitle, err = requireString(candidate, "mainTitle"); err != nil {
		return core.Outline{}, err
	}
	if out.PhotoPlaceholders, err = checkPhotos(candidate["photoPlaceholders"]); err != nil {
		return core.Outline{}, err
	}
	return out, nil
}

// ValidateOutline re-checks an already typed outline, e.g. after a
// serialize/parse round trip.
func ValidateOutline(o core.Outline) error {
	data, err := json.Marshal(o)
	if err != nil {
		return violation("$", "encode: %v", err)
	}
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return violation("$", "decode: %v", err)
	}
	_, err = Validate(m)
	return err
}

func checkSections(v any) ([]core.Section, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, violation("sections", "must be a list")
	}
	if len(list) == 0 {
		return nil, violation("sections", "must not be empty")
	}
	sections := make([]core.Section, 0, len(list))
	for i, item := range list {
		field := fmt.Sprintf("sections[%d]", i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, violation(field, "must be an object")
		}
		title := strings.TrimSpace(scalarString(obj["title"]))
		if title == "" {
			return nil, violation(field+".title", "must be a non-empty string")
		}
		sections = append(sections, core.Section{
			Type:            scalarString(obj["type"]),
			Title:           title,
			Content:         scalarString(obj["content"]),
			EstimatedLength: scalarString(obj["estimatedLength"]),
		})
	}
	return sections, nil
}

func checkColors(v any) (core.ColorScheme, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return core.ColorScheme{}, violation("colorScheme", "must be an object")
	}
	values := make(map[string]string, len(ColorNames))
	for _, name := range ColorNames {
		field := "colorScheme." + name
		raw, present := obj[name]
		if !present {
			return core.ColorScheme{}, violation(field, "required color missing")
		}
		s, isString := raw.(string)
		if !isString || !core.IsHexColor(s) {
			return core.ColorScheme{}, violation(field, "must match #RRGGBB, got %v", raw)
		}
		values[name] = s
	}
	return core.ColorScheme{
		Primary:    values["primary"],
		Secondary:  values["secondary"],
		Accent:     values["accent"],
		Background: values["background"],
	}, nil
}

func checkLayout(v any) (core.Layout, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return core.Layout{}, violation("layout", "must be an object")
	}
	pages, ok := integer(obj["pageCount"])
	if !ok || pages < 1 {
		return core.Layout{}, violation("layout.pageCount", "must be a positive integer, got %v", obj["pageCount"])
	}
	columns, ok := integer(obj["columns"])
	if !ok || columns < 1 {
		columns = 1
	}
	return core.Layout{PageCount: pages, Columns: columns}, nil
}

func checkPhotos(v any) (core.PhotoPlaceholders, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return core.PhotoPlaceholders{}, violation("photoPlaceholders", "must be an object")
	}
	var photos core.PhotoPlaceholders
	if raw, present := obj["positions"]; present && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return core.PhotoPlaceholders{}, violation("photoPlaceholders.positions", "must be a list")
		}
		for _, item := range list {
			photos.Positions = append(photos.Positions, scalarString(item))
		}
	}
	count, ok := integer(obj["count"])
	if !ok || count < 0 {
		count = len(photos.Positions)
	}
	photos.Count = count
	return photos, nil
}

func requireString(m map[string]any, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok {
		return "", violation(key, "must be a string")
	}
	return s, nil
}

// scalarString renders strings and numbers as strings; anything else is "".
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func integer(v any) (int, bool) {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return floatInt(f)
	case float64:
		return floatInt(val)
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

func floatInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
