package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"llm-price-tracker/internal/changes"
	"llm-price-tracker/internal/logging"
	"llm-price-tracker/internal/normalize"
	"llm-price-tracker/internal/sources"
)

// Storage backends.
const (
	BackendFilesystem = "filesystem"
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Logging   logging.Config   `mapstructure:"logging"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Scheduler SchedulerConfig  `mapstructure:"scheduler"`
	Sources   SourcesConfig    `mapstructure:"sources"`
	Normalize normalize.Config `mapstructure:"normalize"`
	Changes   changes.Config   `mapstructure:"changes"`
	Alerting  AlertingConfig   `mapstructure:"alerting"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Export    ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig selects where snapshots and changelogs live.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs run cadence in daemon mode.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SourcesConfig lists upstream sources and how to reach them.
type SourcesConfig struct {
	// Offline reads previously saved raw documents instead of fetching.
	Offline        bool          `mapstructure:"offline"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	OpenRouter     SourceConfig  `mapstructure:"openrouter"`
	LiteLLM        SourceConfig  `mapstructure:"litellm"`
}

// SourceConfig configures one upstream source.
type SourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// AlertingConfig defines changelog notification routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	WebsiteURL string         `mapstructure:"website_url"`
	Timeout    time.Duration  `mapstructure:"timeout"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Discord    DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig describes the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// MetricsConfig controls run metrics pushed to a Prometheus Pushgateway.
type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("LLMPRICES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv imports KEY=VALUE pairs from ./.env without overriding
// variables already present in the environment.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "llmprices")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("storage.backend", BackendFilesystem)
	v.SetDefault("storage.data_dir", "data")

	// empty defaults let AutomaticEnv resolve secrets that never appear in the file
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6c6c6d70))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("sources.offline", false)
	v.SetDefault("sources.request_timeout", "30s")
	v.SetDefault("sources.user_agent", "")
	v.SetDefault("sources.openrouter.enabled", true)
	v.SetDefault("sources.openrouter.url", "https://openrouter.ai/api/v1/models")
	v.SetDefault("sources.litellm.enabled", true)
	v.SetDefault("sources.litellm.url", "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json")

	v.SetDefault("normalize.source_priority", []string{sources.SourceOpenRouter, sources.SourceLiteLLM})
	v.SetDefault("normalize.fallback_provider", "unknown")

	v.SetDefault("changes.threshold_pct", 0.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.website_url", "")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.webhook_url", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "llmprices")

	v.SetDefault("export.max_data_points", 365)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFilesystem:
		if strings.TrimSpace(c.Storage.DataDir) == "" {
			return fmt.Errorf("storage.data_dir must be set for the filesystem backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Changes.ThresholdPct < 0 {
		return fmt.Errorf("changes.threshold_pct cannot be negative")
	}
	if strings.TrimSpace(c.Normalize.FallbackProvider) == "" {
		return fmt.Errorf("normalize.fallback_provider must not be empty")
	}
	if strings.Contains(c.Normalize.FallbackProvider, "/") {
		return fmt.Errorf("normalize.fallback_provider must not contain '/'")
	}
	if !c.Sources.OpenRouter.Enabled && !c.Sources.LiteLLM.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url must be set when discord is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("metrics.pushgateway_url must be set when metrics are enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// EnabledSources lists enabled source names.
func (c *Config) EnabledSources() []string {
	var out []string
	if c.Sources.LiteLLM.Enabled {
		out = append(out, sources.SourceLiteLLM)
	}
	if c.Sources.OpenRouter.Enabled {
		out = append(out, sources.SourceOpenRouter)
	}
	return out
}
