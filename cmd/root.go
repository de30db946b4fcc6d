// Package cmd implements the newsletterpipe CLI using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Persistent flag variables.
var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagProvider  string
	flagModel     string
	flagEngine    string
	flagOutputDir string
)

var rootCmd = &cobra.Command{
	Use:   "newsletterpipe",
	Short: "newsletterpipe turns a teacher's notes into a printable class newsletter",
	Long: `newsletterpipe runs free-form notes through a text generator in two stages,
outline and then full markup, and lays the result out as a print-ready PDF.

Usage:
  newsletterpipe generate notes.txt
  newsletterpipe serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (default: ~/.config/newsletterpipe/config.toml)")
	pf.StringVar(&flagLogLevel, "log_level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log_format", "", "Log format: auto, json, text")
	pf.StringVar(&flagProvider, "provider", "", "Generator: openai, ollama, mock")
	pf.StringVar(&flagModel, "model", "", "Generator model (default depends on the provider)")
	pf.StringVar(&flagEngine, "engine", "", "Rendering engine: fpdf, chromium, html")
	pf.StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: current directory)")
}
