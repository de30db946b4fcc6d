// Package output writes session artifacts to disk.
// Filenames are derived from the session ID: <id>.outline.json,
// <id>.html, <id>.print.html and <id>.pdf.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

// Writer writes artifacts to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer for dir, creating it if needed. An empty dir means
// the working directory.
func New(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	outputDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// WriteOutline writes the outline as indented JSON.
func (w *Writer) WriteOutline(sessionID string, art core.OutlineArtifact) (string, error) {
	data, err := json.MarshalIndent(art.Outline, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding outline: %w", err)
	}
	return w.write(sessionID, ".outline.json", append(data, '\n'))
}

// WriteMarkup writes the generated markup document.
func (w *Writer) WriteMarkup(sessionID string, doc core.MarkupDocument) (string, error) {
	return w.write(sessionID, ".html", []byte(doc.Content))
}

// WritePaginated writes the rendered artifact. ext comes from the engine;
// HTML output gets a .print.html suffix so it does not clobber the markup.
func (w *Writer) WritePaginated(sessionID string, art core.PaginatedArtifact, ext string) (string, error) {
	if ext == ".html" {
		ext = ".print.html"
	}
	return w.write(sessionID, ext, art.Data)
}

// write replaces the file atomically so a reader never sees half an
// artifact.
func (w *Writer) write(sessionID, ext string, data []byte) (string, error) {
	path := filepath.Join(w.OutputDir, sanitize(sessionID)+ext)
	tmp, err := os.CreateTemp(w.OutputDir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	return path, nil
}

// sanitize replaces characters other than letters, digits and dashes with
// underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "newsletter"
	}
	return b.String()
}
