package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Runs      RunsConfig      `yaml:"runs" mapstructure:"runs"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Keepa     KeepaConfig     `yaml:"keepa" mapstructure:"keepa"`
	SPAPI     SPAPIConfig     `yaml:"spapi" mapstructure:"spapi"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RunsConfig configures where run artifacts (logs, result snapshots,
// uploaded input files) live on disk.
type RunsConfig struct {
	LogDir    string `yaml:"log_dir" mapstructure:"log_dir"`
	ResultDir string `yaml:"result_dir" mapstructure:"result_dir"`
	InputDir  string `yaml:"input_dir" mapstructure:"input_dir"`
}

// RetryConfig configures the shared retry/backoff primitive.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier        float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	HintSafetyMarginS int     `yaml:"hint_safety_margin_secs" mapstructure:"hint_safety_margin_secs"`
}

// CollectorConfig configures the marketplace collector loop.
type CollectorConfig struct {
	ListingsPerCity int `yaml:"listings_per_city" mapstructure:"listings_per_city"`
	// MaxStallRounds is the number of consecutive empty-discovery
	// iterations tolerated before a collection unit soft-stops. This is a
	// heuristic: it cannot distinguish an exhausted feed from one that is
	// lazy-loading slower than SettleWaitSecs.
	MaxStallRounds   int    `yaml:"max_stall_rounds" mapstructure:"max_stall_rounds"`
	SettleWaitSecs   int `yaml:"settle_wait_secs" mapstructure:"settle_wait_secs"`
	PageLoadWaitSecs int `yaml:"page_load_wait_secs" mapstructure:"page_load_wait_secs"`
	LastNDays        int `yaml:"last_n_days" mapstructure:"last_n_days"`
	// ReplayFile points at a captured response stream. When set, scrape
	// runs replay the capture instead of driving a live session.
	ReplayFile string `yaml:"replay_file" mapstructure:"replay_file"`
}

// KeepaConfig configures the price-history lookup client.
type KeepaConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Domain       int    `yaml:"domain" mapstructure:"domain"`
	TopNProducts int    `yaml:"top_n_products" mapstructure:"top_n_products"`
	PaceMs       int    `yaml:"pace_ms" mapstructure:"pace_ms"`
}

// SPAPIConfig configures the commerce API client. Catalog and pricing are
// independently rate-limited endpoints of the same provider.
type SPAPIConfig struct {
	AccessToken   string `yaml:"access_token" mapstructure:"access_token"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	MarketplaceID string `yaml:"marketplace_id" mapstructure:"marketplace_id"`
	Condition     string `yaml:"condition" mapstructure:"condition"`
	CatalogPaceMs int    `yaml:"catalog_pace_ms" mapstructure:"catalog_pace_ms"`
	OffersPaceMs  int    `yaml:"offers_pace_ms" mapstructure:"offers_pace_ms"`
}

// VisionConfig configures the photo classification strategy. Strategy is
// resolved once at run start and passed down explicitly.
type VisionConfig struct {
	Strategy     string `yaml:"strategy" mapstructure:"strategy"`
	AnthropicKey string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	ClaudeModel  string `yaml:"claude_model" mapstructure:"claude_model"`
	OpenAIKey    string `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIModel  string `yaml:"openai_model" mapstructure:"openai_model"`
	OpenAIBase   string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	MaxImages    int    `yaml:"max_images" mapstructure:"max_images"`
}

// RegistryConfig points at the job definitions file.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the trigger/status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCRIPTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "scriptify.db")
	v.SetDefault("runs.log_dir", "scripts_logs")
	v.SetDefault("runs.result_dir", "scripts_results")
	v.SetDefault("runs.input_dir", "scripts_inputs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 2000)
	v.SetDefault("retry.max_backoff_ms", 60000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.5)
	v.SetDefault("retry.hint_safety_margin_secs", 5)

	v.SetDefault("collector.listings_per_city", 50)
	v.SetDefault("collector.max_stall_rounds", 3)
	v.SetDefault("collector.settle_wait_secs", 10)
	v.SetDefault("collector.page_load_wait_secs", 15)
	v.SetDefault("collector.last_n_days", 7)

	v.SetDefault("keepa.base_url", "https://api.keepa.com")
	v.SetDefault("keepa.domain", 3) // DE
	v.SetDefault("keepa.top_n_products", 5)
	v.SetDefault("keepa.pace_ms", 1000)

	v.SetDefault("spapi.base_url", "https://sellingpartnerapi-eu.amazon.com")
	v.SetDefault("spapi.marketplace_id", "A1PA6795UKMFR9") // DE
	v.SetDefault("spapi.condition", "new")
	v.SetDefault("spapi.catalog_pace_ms", 220) // 5 req/s, margin
	v.SetDefault("spapi.offers_pace_ms", 2000) // 0.5 req/s

	v.SetDefault("vision.strategy", "claude")
	v.SetDefault("vision.claude_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("vision.openai_model", "gpt-4o")
	v.SetDefault("vision.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.max_images", 15)

	v.SetDefault("registry.path", "jobs.yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
