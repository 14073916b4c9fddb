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
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Poll       PollConfig       `yaml:"poll" mapstructure:"poll"`
	Compare    CompareConfig    `yaml:"compare" mapstructure:"compare"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// APIConfig holds the pipeline API endpoints and client behavior.
type APIConfig struct {
	StagingURL       string `yaml:"staging_url" mapstructure:"staging_url"`
	ProductionURL    string `yaml:"production_url" mapstructure:"production_url"`
	QueueURL         string `yaml:"queue_url" mapstructure:"queue_url"`
	Token            string `yaml:"token" mapstructure:"token"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinIntervalMs    int    `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// PollConfig configures the queue polling loop.
type PollConfig struct {
	IntervalSecs int      `yaml:"interval_secs" mapstructure:"interval_secs"`
	Concurrency  int      `yaml:"concurrency" mapstructure:"concurrency"`
	Queues       []string `yaml:"queues" mapstructure:"queues"`
}

// CompareConfig configures the staging/production comparison.
type CompareConfig struct {
	RoundingThreshold float64 `yaml:"rounding_threshold" mapstructure:"rounding_threshold"`
	CacheTTLSecs      int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CatalogPath       string  `yaml:"catalog_path" mapstructure:"catalog_path"`
	Language          string  `yaml:"language" mapstructure:"language"`
	DifficultAt       int     `yaml:"difficult_at" mapstructure:"difficult_at"`
}

// MonitoringConfig configures queue health alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	PendingApprovalLimit int     `yaml:"pending_approval_limit" mapstructure:"pending_approval_limit"`
	CooldownMins         int     `yaml:"cooldown_mins" mapstructure:"cooldown_mins"`
}

// StoreConfig configures the report history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultQueues lists the pipeline stages in processing order.
var DefaultQueues = []string{
	"parsePdf",
	"precheck",
	"guessWikidata",
	"extractEmissions",
	"followUpScope12",
	"followUpScope3",
	"followUpBiogenic",
	"followUpEconomy",
	"followUpGoals",
	"followUpInitiatives",
	"followUpIndustryGics",
	"checkDB",
	"saveToAPI",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXTRACTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.staging_url", "https://stage-api.klimatkollen.se/api")
	v.SetDefault("api.production_url", "https://api.klimatkollen.se/api")
	v.SetDefault("api.queue_url", "https://stage-api.klimatkollen.se/api/queues")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.min_interval_ms", 250)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.initial_backoff_ms", 500)
	v.SetDefault("api.breaker_failures", 5)
	v.SetDefault("api.breaker_reset_secs", 30)
	v.SetDefault("poll.interval_secs", 30)
	v.SetDefault("poll.concurrency", 4)
	v.SetDefault("poll.queues", DefaultQueues)
	v.SetDefault("compare.rounding_threshold", 0.5)
	v.SetDefault("compare.cache_ttl_secs", 300)
	v.SetDefault("compare.language", "sv")
	v.SetDefault("compare.difficult_at", 5)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.pending_approval_limit", 20)
	v.SetDefault("monitoring.cooldown_mins", 60)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Compare.RoundingThreshold < 0 {
		return eris.Errorf("config: compare.rounding_threshold must be >= 0, got %v", c.Compare.RoundingThreshold)
	}
	if c.Poll.IntervalSecs <= 0 {
		return eris.Errorf("config: poll.interval_secs must be > 0, got %d", c.Poll.IntervalSecs)
	}
	if len(c.Poll.Queues) == 0 {
		return eris.New("config: poll.queues must list at least one queue")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
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
