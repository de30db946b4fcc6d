package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/gaurav-prasanna/newsletterpipe/core/layout"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateOracle(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateOracle() error {
	switch c.Oracle.Provider {
	case "mock", "ollama":
	case "openai":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle.api_key is required for the openai provider. Set %s or edit the config file", c.Oracle.APIKeyEnv)
		}
	default:
		return fmt.Errorf("oracle.provider %q must be one of openai, ollama, mock", c.Oracle.Provider)
	}
	if c.Oracle.Retries < 0 || c.Oracle.Retries > maxOracleRetries {
		return fmt.Errorf("oracle.retries must be between 0 and %d", maxOracleRetries)
	}
	return nil
}

func (c *Config) validateRender() error {
	if !slices.Contains([]string{"fpdf", "chromium", "html"}, c.Render.Engine) {
		return fmt.Errorf("render.engine %q must be one of fpdf, chromium, html", c.Render.Engine)
	}
	if _, adjusted := layout.NormalizePageFormat(c.PageFormat()); adjusted {
		return fmt.Errorf("render page format %s/%s/%gmm is not supported (sizes A3, A4, A5, Letter, Legal; margin 0-50mm)",
			c.Render.PageSize, c.Render.Orientation, c.Render.MarginMM)
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.TTLMinutes <= 0 {
		return errors.New("session.ttl_minutes must be positive")
	}
	if c.Session.SweepIntervalSeconds <= 0 {
		return errors.New("session.sweep_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.WebhookURL == "" {
		return nil
	}
	u, err := url.Parse(c.Delivery.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("delivery.webhook_url %q must be an http(s) URL", c.Delivery.WebhookURL)
	}
	if c.Delivery.TimeoutSeconds <= 0 {
		return errors.New("delivery.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	if !slices.Contains([]string{"auto", "json", "text"}, c.Logging.Format) {
		return fmt.Errorf("logging.format %q must be one of auto, json, text", c.Logging.Format)
	}
	return nil
}
