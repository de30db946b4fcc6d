package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/layout"
	"github.com/gaurav-prasanna/newsletterpipe/core/output"
	"github.com/gaurav-prasanna/newsletterpipe/core/pipeline"
)

var (
	flagText    string
	flagSession string
	flagNoPrint bool
)

// generateCmd runs notes through outline → markup → paginated, writing each
// artifact as it lands.
var generateCmd = &cobra.Command{
	Use:   "generate [file...]",
	Short: "Generate a newsletter from notes",
	Long: `Generate sends the notes to the generator for an outline, then for the full
markup, and lays the markup out for print. The outline JSON, the markup, the
print-ready HTML and the PDF are written to the output directory.

Notes come from --text, from files, or from stdin when the argument is "-".

Examples:
  newsletterpipe generate notes.txt
  newsletterpipe generate --text "Field trip on Friday. Bake sale next week."
  cat notes.txt | newsletterpipe generate - --engine chromium --page_size Letter`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&flagText, "text", "", "Notes given inline instead of a file")
	generateCmd.Flags().StringVar(&flagSession, "session", "", "Session ID used to name the output files (default: a new UUID)")
	generateCmd.Flags().BoolVar(&flagNoPrint, "no_print_html", false, "Skip writing the print-ready HTML next to the PDF")
	addPageFormatFlags(generateCmd)
}

// job is one set of notes and the session that carries it.
type job struct {
	sessionID string
	text      string
}

func runGenerate(cmd *cobra.Command, args []string) error {
	jobs, err := collectJobs(args)
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	format, err := a.pageFormat()
	if err != nil {
		return err
	}
	engine := a.engine()
	stab := a.stabilizer(engine)
	orch, err := a.orchestrator(stab)
	if err != nil {
		return err
	}
	writer, err := output.New(a.cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}

	g := &generator{
		orch:      orch,
		stab:      stab,
		writer:    writer,
		format:    format,
		ext:       engine.Extension(),
		printHTML: !flagNoPrint && engine.Extension() == ".pdf",
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(jobs) == 1 {
		return g.run(ctx, jobs[0])
	}

	var errCount int
	for i, j := range jobs {
		fmt.Fprintf(g.out, "[%d/%d] Generating %s\n", i+1, len(jobs), j.sessionID)
		if err := g.run(ctx, j); err != nil {
			fmt.Fprintf(g.errOut, "  ✗ Error: %v\n", err)
			errCount++
		}
	}
	if errCount > 0 {
		return fmt.Errorf("%d/%d newsletters failed", errCount, len(jobs))
	}
	return nil
}

// collectJobs turns --text and the file arguments into jobs. Files are
// named after their base name; inline and stdin notes get --session or a
// fresh UUID.
func collectJobs(args []string) ([]job, error) {
	if flagText != "" && len(args) > 0 {
		return nil, fmt.Errorf("--text and file arguments are mutually exclusive")
	}
	if flagText == "" && len(args) == 0 {
		return nil, fmt.Errorf("notes are required: pass a file, \"-\" for stdin, or --text")
	}
	if flagSession != "" && len(args) > 1 {
		return nil, fmt.Errorf("--session applies to a single input")
	}

	newID := func() (string, error) {
		if flagSession != "" {
			return flagSession, nil
		}
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating session id: %w", err)
		}
		return id.String(), nil
	}

	if flagText != "" {
		id, err := newID()
		if err != nil {
			return nil, err
		}
		return []job{{sessionID: id, text: flagText}}, nil
	}

	jobs := make([]job, 0, len(args))
	for _, arg := range args {
		text, err := readInput(arg)
		if err != nil {
			return nil, err
		}
		id := flagSession
		if id == "" && arg != "-" {
			id = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		if id == "" {
			if id, err = newID(); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, job{sessionID: id, text: text})
	}
	return jobs, nil
}

type generator struct {
	orch      *pipeline.Orchestrator
	stab      *layout.Stabilizer
	writer    *output.Writer
	format    core.PageFormat
	ext       string
	printHTML bool
	out       io.Writer
	errOut    io.Writer
}

// run drives one session through all three stages.
func (g *generator) run(ctx context.Context, j job) error {
	defer g.orch.Cleanup(ctx, j.sessionID)

	outline, err := g.orch.RequestOutline(ctx, j.sessionID, j.text)
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if outline.IsFallback {
		fmt.Fprintf(g.errOut, "  ! Using the default outline: %s\n", outline.FailureReason)
	}
	path, err := g.writer.WriteOutline(j.sessionID, outline)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "✓ Written: %s (%d sections)\n", path, len(outline.Outline.Sections))

	res, err := g.orch.RequestMarkup(ctx, j.sessionID)
	if err != nil {
		return fmt.Errorf("markup: %w", err)
	}
	if path, err = g.writer.WriteMarkup(j.sessionID, res.Markup); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "✓ Written: %s (%s)\n", path, humanize.Bytes(uint64(len(res.Markup.Content))))
	if !res.Validation.WellFormed {
		fmt.Fprintf(g.errOut, "  ! Markup has %d structural defects; run: newsletterpipe validate %s\n", len(res.Validation.Defects), path)
	}

	if g.printHTML {
		doc, err := g.stab.Prepare(layout.Coerce(res.Markup), layout.Metadata{Outline: &outline.Outline}, g.format)
		if err != nil {
			fmt.Fprintf(g.errOut, "  ! Print-ready HTML skipped: %v\n", err)
		} else {
			path, err := g.writer.WritePaginated(j.sessionID, core.PaginatedArtifact{Data: []byte(doc.HTML)}, ".html")
			if err != nil {
				return err
			}
			fmt.Fprintf(g.out, "✓ Written: %s\n", path)
		}
	}

	art, err := g.orch.RequestPaginated(ctx, j.sessionID, g.format)
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if art.GlyphsReplaced > 0 {
		fmt.Fprintf(g.errOut, "  ! %d characters could not be printed; set render.font_dir to a folder with a TrueType font\n", art.GlyphsReplaced)
	}
	if art.Placeholder {
		fmt.Fprintf(g.errOut, "  ! Layout failed, wrote the placeholder page instead\n")
	}
	if path, err = g.writer.WritePaginated(j.sessionID, art, g.ext); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "✓ Written: %s (%s, %s)\n", path, humanize.Bytes(uint64(art.ByteSize)), pages(art.EstimatedPageCount))
	return nil
}

func pages(n int) string {
	if n == 1 {
		return "1 page"
	}
	return fmt.Sprintf("%d pages", n)
}
