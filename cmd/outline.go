package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var flagFailOnFallback bool

var outlineCmd = &cobra.Command{
	Use:   "outline [file]",
	Short: "Print the outline the generator proposes for some notes",
	Long: `Outline runs only the first stage and prints the accepted outline as JSON.
When the generator's reply cannot be used, the default outline is printed and
the reason goes to stderr.

Examples:
  newsletterpipe outline notes.txt
  newsletterpipe outline --text "Spelling test on Monday." --provider ollama`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutline,
}

func init() {
	rootCmd.AddCommand(outlineCmd)
	outlineCmd.Flags().StringVar(&flagText, "text", "", "Notes given inline instead of a file")
	outlineCmd.Flags().BoolVar(&flagFailOnFallback, "fail_on_fallback", false, "Exit with an error when the default outline was used")
}

func runOutline(cmd *cobra.Command, args []string) error {
	text := flagText
	switch {
	case text != "" && len(args) > 0:
		return errors.New("--text and a file argument are mutually exclusive")
	case text == "" && len(args) == 0:
		return errors.New(`notes are required: pass a file, "-" for stdin, or --text`)
	case text == "":
		var err error
		if text, err = readInput(args[0]); err != nil {
			return err
		}
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(a.stabilizer(a.engine()))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	const sessionID = "outline"
	defer orch.Cleanup(ctx, sessionID)
	art, err := orch.RequestOutline(ctx, sessionID, text)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(art.Outline, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding outline: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if art.IsFallback {
		fmt.Fprintf(cmd.ErrOrStderr(), "! Default outline used: %s\n", art.FailureReason)
		if flagFailOnFallback {
			return errors.New("generator reply was not a usable outline")
		}
	}
	return nil
}
