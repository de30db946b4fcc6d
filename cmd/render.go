package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/newsletterpipe/core/layout"
	"github.com/gaurav-prasanna/newsletterpipe/core/output"
)

var (
	flagTitle   string
	flagColumns int
)

var renderCmd = &cobra.Command{
	Use:   "render <markup.html>",
	Short: "Lay out an existing markup file for print",
	Long: `Render skips the generator and lays out a markup file with the configured
engine. An empty file renders the placeholder page.

Examples:
  newsletterpipe render newsletter.html
  newsletterpipe render newsletter.html --engine chromium --columns 2 --page_size Letter`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVar(&flagTitle, "title", "", "Masthead title (default: the document title)")
	renderCmd.Flags().IntVar(&flagColumns, "columns", 1, "Number of text columns (1-4)")
	addPageFormatFlags(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	markup, err := readInput(args[0])
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
	writer, err := output.New(a.cfg.Output.Dir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	art, err := stab.Render(ctx, markup, layout.Metadata{Title: flagTitle, Columns: flagColumns}, format)
	if err != nil {
		return err
	}

	name := "newsletter"
	if args[0] != "-" {
		name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	path, err := writer.WritePaginated(name, art, engine.Extension())
	if err != nil {
		return err
	}
	if art.GlyphsReplaced > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "  ! %d characters could not be printed; set render.font_dir to a folder with a TrueType font\n", art.GlyphsReplaced)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Written: %s (%s, %s)\n", path, humanize.Bytes(uint64(art.ByteSize)), pages(art.EstimatedPageCount))
	return nil
}
