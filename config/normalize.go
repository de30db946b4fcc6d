package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeOracle()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.Delivery.WebhookURL = strings.TrimSpace(c.Delivery.WebhookURL)
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func (c *Config) normalizeOracle() {
	o := &c.Oracle
	o.Provider = strings.ToLower(strings.TrimSpace(o.Provider))
	if o.Provider == "" {
		o.Provider = defaultProvider
	}
	o.Model = strings.TrimSpace(o.Model)
	o.BaseURL = strings.TrimSpace(o.BaseURL)
	switch o.Provider {
	case "openai":
		if o.Model == "" {
			o.Model = defaultOpenAIModel
		}
	case "ollama":
		if o.Model == "" {
			o.Model = defaultOllamaModel
		}
		if o.BaseURL == "" {
			o.BaseURL = defaultOllamaBaseURL
		}
	}
	o.APIKey = strings.TrimSpace(o.APIKey)
	o.APIKeyEnv = strings.TrimSpace(o.APIKeyEnv)
	if o.APIKey == "" && o.APIKeyEnv != "" {
		if value, ok := os.LookupEnv(o.APIKeyEnv); ok {
			o.APIKey = strings.TrimSpace(value)
		}
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = defaultOracleTimeoutSeconds
	}
}

func (c *Config) normalizeRender() error {
	r := &c.Render
	r.Engine = strings.ToLower(strings.TrimSpace(r.Engine))
	if r.Engine == "" {
		r.Engine = defaultEngine
	}
	r.PageSize = strings.TrimSpace(r.PageSize)
	if r.PageSize == "" {
		r.PageSize = defaultPageSize
	}
	r.Orientation = strings.ToLower(strings.TrimSpace(r.Orientation))
	if r.Orientation == "" {
		r.Orientation = defaultOrientation
	}
	if r.MarginMM == 0 {
		r.MarginMM = defaultMarginMM
	}
	if len(r.Fonts) == 0 {
		r.Fonts = append([]string(nil), defaultFonts...)
	}
	var err error
	if r.FontDir, err = expandPath(strings.TrimSpace(r.FontDir)); err != nil {
		return fmt.Errorf("render.font_dir: %w", err)
	}
	r.ChromeBin = strings.TrimSpace(r.ChromeBin)
	r.ChromeURL = strings.TrimSpace(r.ChromeURL)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Session.DBPath) == "" {
		c.Session.DBPath = defaultDBPath
	}
	if c.Session.DBPath, err = expandPath(c.Session.DBPath); err != nil {
		return fmt.Errorf("session.db_path: %w", err)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	return nil
}
