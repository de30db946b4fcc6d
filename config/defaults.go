package config

const (
	defaultConfigPath           = "~/.config/newsletterpipe/config.toml"
	defaultProvider             = "mock"
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOllamaModel          = "llama3.1"
	defaultOllamaBaseURL        = "http://localhost:11434"
	defaultAPIKeyEnv            = "OPENAI_API_KEY"
	defaultOracleTimeoutSeconds = 90
	defaultOracleRetries        = 1
	maxOracleRetries            = 3
	defaultEngine               = "fpdf"
	defaultPageSize             = "A4"
	defaultOrientation          = "portrait"
	defaultMarginMM             = 15
	defaultTTLMinutes           = 120
	defaultSweepSeconds         = 300
	defaultDBPath               = "~/.local/share/newsletterpipe/sessions.db"
	defaultDeliveryTimeout      = 10
	defaultServerAddr           = "127.0.0.1:8787"
	defaultLogLevel             = "info"
	defaultLogFormat            = "auto"
	defaultOutputDir            = "."
)

// defaultFonts are tried in order inside render.font_dir.
var defaultFonts = []string{
	"NotoSansJP-Regular.ttf",
	"NotoSansCJKjp-Regular.ttf",
	"ipaexg.ttf",
	"DejaVuSans.ttf",
}

// Default returns a Config populated with defaults. The mock provider
// needs no network, so the defaults are usable as they are.
func Default() Config {
	return Config{
		Oracle: Oracle{
			Provider:       defaultProvider,
			APIKeyEnv:      defaultAPIKeyEnv,
			TimeoutSeconds: defaultOracleTimeoutSeconds,
			Retries:        defaultOracleRetries,
		},
		Render: Render{
			Engine:      defaultEngine,
			PageSize:    defaultPageSize,
			Orientation: defaultOrientation,
			MarginMM:    defaultMarginMM,
			Fonts:       append([]string(nil), defaultFonts...),
		},
		Session: Session{
			TTLMinutes:           defaultTTLMinutes,
			SweepIntervalSeconds: defaultSweepSeconds,
			DBPath:               defaultDBPath,
		},
		Delivery: Delivery{
			TimeoutSeconds: defaultDeliveryTimeout,
		},
		Server: Server{
			Addr: defaultServerAddr,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Output: Output{
			Dir: defaultOutputDir,
		},
	}
}
