package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/validate"
)

var flagStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate <markup.html>...",
	Short: "Report structural defects in markup files",
	Long: `Validate tokenizes each markup file leniently and lists the structural
defects it finds: missing doctype or root, unclosed or misnested elements,
duplicate attributes. Defects are advisory; use --strict to fail on them.

Examples:
  newsletterpipe validate newsletter.html
  newsletterpipe validate out/*.html --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&flagStrict, "strict", false, "Exit with an error when any file is not well-formed")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var malformed int
	for _, arg := range args {
		src, err := readInput(arg)
		if err != nil {
			return err
		}
		report := validate.Source(src)
		if report.WellFormed {
			fmt.Fprintf(out, "✓ %s: well-formed\n", arg)
			continue
		}
		malformed++
		fmt.Fprintf(out, "✗ %s: %d defects\n", arg, len(report.Defects))
		fmt.Fprintln(out, defectTable(report.Defects))
	}
	if flagStrict && malformed > 0 {
		return fmt.Errorf("%d/%d files are not well-formed", malformed, len(args))
	}
	return nil
}

func defectTable(defects []core.Defect) string {
	rows := make([][]string, 0, len(defects))
	for _, d := range defects {
		rows = append(rows, []string{strconv.Itoa(d.Line), strconv.Itoa(d.Column), d.Code, d.Message})
	}
	return renderTable(
		[]string{"Line", "Col", "Code", "Message"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
	)
}
