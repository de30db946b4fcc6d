// Package config loads the TOML configuration file.
//
// Sections by subsystem:
//   - Oracle: which generator to call and how long to wait for it
//   - Render: engine, page format and fonts
//   - Session: idle TTL, sweep interval and the SQLite path
//   - Delivery: optional webhook for ready notices
//   - Server, Logging, Output: the HTTP adapter, log output and artifact dir
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gaurav-prasanna/newsletterpipe/core"
)

//go:embed sample_config.toml
var sampleConfig string

// Oracle selects and tunes the text generator.
type Oracle struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	APIKeyEnv      string `toml:"api_key_env"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
}

// Render selects the engine and the default page format.
type Render struct {
	Engine      string   `toml:"engine"`
	PageSize    string   `toml:"page_size"`
	Orientation string   `toml:"orientation"`
	MarginMM    float64  `toml:"margin_mm"`
	FontDir     string   `toml:"font_dir"`
	Fonts       []string `toml:"fonts"`
	ChromeBin   string   `toml:"chrome_bin"`
	ChromeURL   string   `toml:"chrome_url"`
}

// Session tunes session lifetime and persistence.
type Session struct {
	TTLMinutes           int    `toml:"ttl_minutes"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
	DBPath               string `toml:"db_path"`
}

// Delivery configures the optional webhook.
type Delivery struct {
	WebhookURL     string `toml:"webhook_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Server configures the HTTP adapter.
type Server struct {
	Addr string `toml:"addr"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Output configures where the CLI writes artifacts.
type Output struct {
	Dir string `toml:"dir"`
}

// Config is the whole configuration.
type Config struct {
	Oracle   Oracle   `toml:"oracle"`
	Render   Render   `toml:"render"`
	Session  Session  `toml:"session"`
	Delivery Delivery `toml:"delivery"`
	Server   Server   `toml:"server"`
	Logging  Logging  `toml:"logging"`
	Output   Output   `toml:"output"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load parses, normalizes and validates the config at path. An empty path
// looks for the default file, then newsletterpipe.toml in the working
// directory. A missing file yields the defaults; the bool reports whether a
// file was read.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, false, err
	}
	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("newsletterpipe.toml")
	if err != nil {
		return "", false, err
	}
	for _, p := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true, nil
		}
	}
	return defaultPath, false, nil
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// OracleTimeout returns the per-call oracle timeout.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// PageFormat returns the configured default page format.
func (c *Config) PageFormat() core.PageFormat {
	return core.PageFormat{Size: c.Render.PageSize, Orientation: c.Render.Orientation, MarginMM: c.Render.MarginMM}
}

// SessionTTL returns how long an idle session is kept.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// SweepInterval returns how often expired sessions are swept.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Session.SweepIntervalSeconds) * time.Second
}

// DeliveryTimeout returns the webhook timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// Overrides holds command-line values that take precedence over the file.
// Empty fields are ignored.
type Overrides struct {
	Provider  string
	Model     string
	Engine    string
	OutputDir string
	LogLevel  string
	LogFormat string
}

// Apply copies non-empty overrides into c and re-runs normalization and
// validation, so an overridden provider still picks up its defaults.
func (c *Config) Apply(o Overrides) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if o.Provider != "" && !strings.EqualFold(o.Provider, c.Oracle.Provider) {
		c.Oracle.Model = ""
		c.Oracle.BaseURL = ""
	}
	set(&c.Oracle.Provider, o.Provider)
	set(&c.Oracle.Model, o.Model)
	set(&c.Render.Engine, o.Engine)
	set(&c.Output.Dir, o.OutputDir)
	set(&c.Logging.Level, o.LogLevel)
	set(&c.Logging.Format, o.LogFormat)
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}
