package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gaurav-prasanna/newsletterpipe/config"
	"github.com/gaurav-prasanna/newsletterpipe/core"
	"github.com/gaurav-prasanna/newsletterpipe/core/layout"
	"github.com/gaurav-prasanna/newsletterpipe/core/oracle"
	"github.com/gaurav-prasanna/newsletterpipe/core/pipeline"
	"github.com/gaurav-prasanna/newsletterpipe/core/render"
	"github.com/gaurav-prasanna/newsletterpipe/logging"
	"github.com/spf13/cobra"
)

// app carries what every command needs: the resolved config and a logger.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadApp loads the config file and applies flag overrides on top.
func loadApp() (*app, error) {
	cfg, _, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	err = cfg.Apply(config.Overrides{
		Provider:  flagProvider,
		Model:     flagModel,
		Engine:    flagEngine,
		OutputDir: flagOutputDir,
		LogLevel:  flagLogLevel,
		LogFormat: flagLogFormat,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: os.Stderr})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) oracle() (core.Oracle, error) {
	o := a.cfg.Oracle
	switch o.Provider {
	case "openai":
		return oracle.NewOpenAI(oracle.OpenAIConfig{
			APIKey:  o.APIKey,
			Model:   o.Model,
			BaseURL: o.BaseURL,
			Timeout: a.cfg.OracleTimeout(),
		})
	case "ollama":
		return oracle.NewOllama(o.BaseURL, o.Model, a.cfg.OracleTimeout()), nil
	case "mock":
		return oracle.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", o.Provider)
	}
}

func (a *app) engine() core.Engine {
	switch a.cfg.Render.Engine {
	case "chromium":
		return render.NewChromiumRenderer(a.cfg.Render.ChromeBin, a.cfg.Render.ChromeURL)
	case "html":
		return render.NewHTMLRenderer()
	default:
		r := render.NewPDFRenderer(a.cfg.Render.FontDir)
		if r.FindFont(a.cfg.Render.Fonts) == "" {
			a.logger.Warn("no TrueType font found, text outside Windows-1252 will print as '?'",
				"font_dir", a.cfg.Render.FontDir, "fonts", a.cfg.Render.Fonts)
		}
		return r
	}
}

func (a *app) stabilizer(engine core.Engine) *layout.Stabilizer {
	return layout.New(engine, layout.WithFonts(a.cfg.Render.Fonts), layout.WithLogger(a.logger))
}

// orchestrator builds the pipeline around stab using the configured oracle.
func (a *app) orchestrator(stab *layout.Stabilizer, opts ...pipeline.Option) (*pipeline.Orchestrator, error) {
	gen, err := a.oracle()
	if err != nil {
		return nil, err
	}
	base := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithOracleTimeout(a.cfg.OracleTimeout()),
		pipeline.WithOracleRetries(a.cfg.Oracle.Retries),
	}
	return pipeline.New(gen, stab, append(base, opts...)...), nil
}

// Page format flags shared by generate and render.
var (
	flagPageSize    string
	flagOrientation string
	flagMarginMM    float64
)

func addPageFormatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagPageSize, "page_size", "", "Page size: A3, A4, A5, Letter, Legal")
	cmd.Flags().StringVar(&flagOrientation, "orientation", "", "Page orientation: portrait, landscape")
	cmd.Flags().Float64Var(&flagMarginMM, "margin_mm", 0, "Page margin in millimetres")
}

// pageFormat returns the configured page format with flag overrides.
func (a *app) pageFormat() (core.PageFormat, error) {
	f := a.cfg.PageFormat()
	if flagPageSize != "" {
		f.Size = flagPageSize
	}
	if flagOrientation != "" {
		f.Orientation = flagOrientation
	}
	if flagMarginMM != 0 {
		f.MarginMM = flagMarginMM
	}
	normalized, adjusted := layout.NormalizePageFormat(f)
	if adjusted {
		return core.PageFormat{}, fmt.Errorf("unsupported page format %s/%s/%gmm", f.Size, f.Orientation, f.MarginMM)
	}
	return normalized, nil
}
