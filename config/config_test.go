package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, "mock", cfg.Oracle.Provider)
	require.Equal(t, "fpdf", cfg.Render.Engine)
	require.Equal(t, 90*time.Second, cfg.OracleTimeout())
	require.Equal(t, 2*time.Hour, cfg.SessionTTL())
	require.Equal(t, "A4", cfg.PageFormat().Size)
	require.True(t, filepath.IsAbs(cfg.Session.DBPath))
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[oracle]
provider = "Ollama"
timeout_seconds = 30

[render]
engine = "html"
page_size = "Letter"
orientation = "landscape"
margin_mm = 10

[session]
ttl_minutes = 5
db_path = "/tmp/np/sessions.db"

[logging]
format = "JSON"
`)
	cfg, exists, err := Load(path)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "ollama", cfg.Oracle.Provider)
	require.Equal(t, "llama3.1", cfg.Oracle.Model)
	require.Equal(t, "http://localhost:11434", cfg.Oracle.BaseURL)
	require.Equal(t, 30*time.Second, cfg.OracleTimeout())
	require.Equal(t, "landscape", cfg.PageFormat().Orientation)
	require.Equal(t, 5*time.Minute, cfg.SessionTTL())
	require.Equal(t, "/tmp/np/sessions.db", cfg.Session.DBPath)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestOpenAIKeyFromEnv(t *testing.T) {
	t.Setenv("NP_TEST_KEY", " sk-test ")
	path := writeConfig(t, `
[oracle]
provider = "openai"
api_key_env = "NP_TEST_KEY"
`)
	cfg, _, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.Oracle.APIKey)
	require.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"provider": "[oracle]\nprovider = \"bard\"\n",
		"openai":   "[oracle]\nprovider = \"openai\"\napi_key_env = \"NP_TEST_UNSET_KEY\"\n",
		"retries":  "[oracle]\nretries = 9\n",
		"engine":   "[render]\nengine = \"word\"\n",
		"size":     "[render]\npage_size = \"B9\"\n",
		"margin":   "[render]\nmargin_mm = 80\n",
		"ttl":      "[session]\nttl_minutes = -1\n",
		"webhook":  "[delivery]\nwebhook_url = \"ftp://x\"\n",
		"level":    "[logging]\nlevel = \"loud\"\n",
		"unknown":  "[render]\ncolour = \"red\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestSampleConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path))
	cfg, exists, err := Load(path)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, "mock", cfg.Oracle.Provider)
	require.Len(t, cfg.Render.Fonts, 4)
}

func TestApplyOverrides(t *testing.T) {
	cfg, _, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	require.NoError(t, cfg.Apply(Overrides{Provider: "Ollama", Engine: "html", LogLevel: "debug"}))
	require.Equal(t, "ollama", cfg.Oracle.Provider)
	require.Equal(t, defaultOllamaModel, cfg.Oracle.Model)
	require.Equal(t, defaultOllamaBaseURL, cfg.Oracle.BaseURL)
	require.Equal(t, "html", cfg.Render.Engine)
	require.Equal(t, "debug", cfg.Logging.Level)

	require.ErrorContains(t, cfg.Apply(Overrides{Engine: "typewriter"}), "render.engine")
}
