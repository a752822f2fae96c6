package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Secrets    SecretsConfig    `yaml:"secrets" mapstructure:"secrets"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Workflows  WorkflowsConfig  `yaml:"workflows" mapstructure:"workflows"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs" validate:"min=1"`
}

// CacheConfig selects the cache store and per-depth profile TTLs.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver" validate:"oneof=memory redis sqlite postgres"`
	URL           string `yaml:"url" mapstructure:"url"`   // redis / postgres DSN
	Path          string `yaml:"path" mapstructure:"path"` // sqlite file
	LightTTLHours int    `yaml:"light_ttl_hours" mapstructure:"light_ttl_hours" validate:"min=1"`
	DeepTTLHours  int    `yaml:"deep_ttl_hours" mapstructure:"deep_ttl_hours" validate:"gtefield=LightTTLHours"`
	ExtTTLHours   int    `yaml:"extended_ttl_hours" mapstructure:"extended_ttl_hours" validate:"gtefield=DeepTTLHours"`
	StageTTLHours int    `yaml:"stage_ttl_hours" mapstructure:"stage_ttl_hours" validate:"min=1"`
}

// SecretsConfig configures the secret manager.
type SecretsConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"` // mounted secret files, one per name
	TTLSecs int    `yaml:"ttl_secs" mapstructure:"ttl_secs" validate:"min=1"`
}

// TTL returns the secret cache lifetime.
func (s SecretsConfig) TTL() time.Duration { return time.Duration(s.TTLSecs) * time.Second }

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI chat-completions settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"url"`
}

// PerplexityConfig holds Perplexity API settings. Perplexity speaks the
// chat-completions wire format.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"url"`
}

// ApifyConfig holds Apify actor API settings.
type ApifyConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url" validate:"url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gt=0"` // requests per second
	Burst     int     `yaml:"burst" mapstructure:"burst" validate:"min=1"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"url"`
}

// FirecrawlConfig holds Firecrawl API settings (reader fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"url"`
}

// ProvidersConfig holds settings shared by all LLM providers.
type ProvidersConfig struct {
	CallTimeoutSecs  int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs" validate:"min=1"`
	UpgradeThreshold float64 `yaml:"upgrade_threshold" mapstructure:"upgrade_threshold" validate:"min=0,max=100"`
}

// CallTimeout returns the per-call provider timeout.
func (p ProvidersConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSecs) * time.Second
}

// PricingConfig holds credit pricing knobs.
type PricingConfig struct {
	BaseFees      BaseFees `yaml:"base_fees" mapstructure:"base_fees"`
	Margin        float64  `yaml:"margin" mapstructure:"margin" validate:"min=0"`
	MinimumCharge float64  `yaml:"minimum_charge" mapstructure:"minimum_charge" validate:"min=0"`
	TokenCap      int      `yaml:"token_cap" mapstructure:"token_cap" validate:"min=1"`
}

// BaseFees holds the credit base fee per analysis depth.
type BaseFees struct {
	Light    float64 `yaml:"light" mapstructure:"light" validate:"min=0"`
	Deep     float64 `yaml:"deep" mapstructure:"deep" validate:"min=0"`
	Extended float64 `yaml:"extended" mapstructure:"extended" validate:"min=0"`
}

// WorkflowsConfig points at an optional workflow definition override file.
type WorkflowsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=64"`
}

// TracingConfig configures the OTLP trace exporter. Tracing is off when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	Insecure    bool   `yaml:"insecure" mapstructure:"insecure"`
}

// MonitoringConfig configures the serve-mode alert checker.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"min=0"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"min=1"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"min=0,max=1"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd" validate:"min=0"`
	CooldownSecs         int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs" validate:"min=0"` // per alert type
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUALIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 180)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.url", "")
	v.SetDefault("cache.path", "qualify-cache.db")
	v.SetDefault("cache.light_ttl_hours", 12)
	v.SetDefault("cache.deep_ttl_hours", 24)
	v.SetDefault("cache.extended_ttl_hours", 48)
	v.SetDefault("cache.stage_ttl_hours", 72)
	v.SetDefault("secrets.dir", "")
	v.SetDefault("secrets.ttl_secs", 300)
	// Empty keys are declared so QUALIFY_*_KEY env vars bind on Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("apify.key", "")
	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.rate_limit", 5.0)
	v.SetDefault("apify.burst", 5)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("providers.call_timeout_secs", 60)
	v.SetDefault("providers.upgrade_threshold", 70.0)
	v.SetDefault("pricing.base_fees.light", 0.5)
	v.SetDefault("pricing.base_fees.deep", 1.5)
	v.SetDefault("pricing.base_fees.extended", 3.0)
	v.SetDefault("pricing.margin", 0.3)
	v.SetDefault("pricing.minimum_charge", 0.1)
	v.SetDefault("pricing.token_cap", 50000)
	v.SetDefault("workflows.path", "")
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "qualify-cli")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 50.0)
	v.SetDefault("monitoring.cooldown_secs", 3600)
}

// Validate checks struct-level constraints on a loaded config.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	if (c.Cache.Driver == "redis" || c.Cache.Driver == "postgres") && c.Cache.URL == "" {
		return eris.Errorf("config: cache.url is required for driver %s", c.Cache.Driver)
	}
	return nil
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
