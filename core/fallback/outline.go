// Package fallback builds the placeholder outline used whenever a usable
// outline cannot be recovered from the generator.
package fallback

import (
	"time"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Placeholder strings shown to the teacher for correction.
const (
	PlaceholderTitle   = "学級通信"
	PlaceholderSchool  = "〇〇小学校"
	PlaceholderClass   = "〇年〇組"
	PlaceholderSection = "今週の様子"
	PlaceholderBody    = "ここに今週のクラスの出来事を書いてください。"
	PlaceholderPhoto   = "top-right"
)

// DefaultOutline returns a fixed, schema-valid outline dated today. The
// result depends only on the calendar date of today.
func DefaultOutline(today time.Time) core.Outline {
	return core.Outline{
		SchemaVersion: core.SchemaVersion,
		IssueDate:     today.Format(time.DateOnly),
		MainTitle:     PlaceholderTitle + " " + PlaceholderSchool + " " + PlaceholderClass,
		Sections: []core.Section{{
			Type:            "main",
			Title:           PlaceholderSection,
			Content:         PlaceholderBody,
			EstimatedLength: "medium",
		}},
		ColorScheme: core.ColorScheme{
			Primary:    "#2E7D32",
			Secondary:  "#81C784",
			Accent:     "#FFB300",
			Background: "#FFFFFF",
		},
		PhotoPlaceholders: core.PhotoPlaceholders{
			Count:     1,
			Positions: []string{PlaceholderPhoto},
		},
		Layout: core.Layout{PageCount: 1, Columns: 1},
	}
}
