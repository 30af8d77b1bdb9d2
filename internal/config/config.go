package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"penwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Market    MarketConfig    `mapstructure:"market"`
	Street    StreetConfig    `mapstructure:"street"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig covers the official rate history provider (Yahoo Finance chart API).
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Symbol         string        `mapstructure:"symbol"`
	Range          string        `mapstructure:"range"`
	Interval       string        `mapstructure:"interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// StreetConfig covers the parallel market scrape target.
type StreetConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Selector       string        `mapstructure:"selector"`
	Index          int           `mapstructure:"index"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines the anti-spam policy, greeting schedule and routing.
type AlertingConfig struct {
	Threshold float64        `mapstructure:"threshold"`
	OpenHour  int            `mapstructure:"open_hour"`
	CloseHour int            `mapstructure:"close_hour"`
	Timezone  string         `mapstructure:"timezone"`
	Seed      int64          `mapstructure:"seed"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot credentials.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	ParseMode      string        `mapstructure:"parse_mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Configured reports whether both credentials are present.
func (t TelegramConfig) Configured() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

// StateConfig points at the persisted record.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// DatabaseConfig encapsulates optional PostgreSQL run history.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the in-process watch loop and overlap guard.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PENWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The bot credentials keep the plain names used by existing deployments.
	_ = v.BindEnv("alerting.telegram.bot_token", "PENWATCH_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("alerting.telegram.chat_id", "PENWATCH_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

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

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "penwatch")
	v.SetDefault("app.environment", "production")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.symbol", "PEN=X")
	v.SetDefault("market.range", "1mo")
	v.SetDefault("market.interval", "1d")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", DefaultUserAgent)

	v.SetDefault("street.enabled", true)
	v.SetDefault("street.url", "https://cuantoestaeldolar.pe/")
	v.SetDefault("street.selector", `[class*="ValueCurrency_item_cost"]`)
	v.SetDefault("street.index", 3)
	v.SetDefault("street.request_timeout", "10s")
	v.SetDefault("street.user_agent", DefaultUserAgent)

	v.SetDefault("alerting.threshold", 0.003)
	v.SetDefault("alerting.open_hour", 9)
	v.SetDefault("alerting.close_hour", 18)
	v.SetDefault("alerting.timezone", "America/Lima")
	v.SetDefault("alerting.seed", 0)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.parse_mode", "Markdown")
	v.SetDefault("alerting.telegram.request_timeout", "10s")

	v.SetDefault("state.path", "estado.json")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.cron", "0 */15 * * * *")
	v.SetDefault("scheduler.run_timeout", "2m")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70656e77))

	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)
}

// DefaultUserAgent is a desktop browser identification; both upstreams reject bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

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
	if strings.TrimSpace(c.Market.Symbol) == "" {
		return fmt.Errorf("market.symbol must be configured")
	}
	if c.Market.RequestTimeout <= 0 {
		return fmt.Errorf("market.request_timeout must be greater than zero")
	}
	if c.Street.Enabled {
		if strings.TrimSpace(c.Street.URL) == "" || strings.TrimSpace(c.Street.Selector) == "" {
			return fmt.Errorf("street.url and street.selector must be configured when street.enabled")
		}
		if c.Street.Index < 0 {
			return fmt.Errorf("street.index cannot be negative")
		}
		if c.Street.RequestTimeout <= 0 {
			return fmt.Errorf("street.request_timeout must be greater than zero")
		}
	}
	if c.Alerting.Threshold < 0 {
		return fmt.Errorf("alerting.threshold cannot be negative")
	}
	if !validHour(c.Alerting.OpenHour) || !validHour(c.Alerting.CloseHour) {
		return fmt.Errorf("alerting.open_hour and alerting.close_hour must be within 0-23")
	}
	if c.Alerting.OpenHour == c.Alerting.CloseHour {
		return fmt.Errorf("alerting.open_hour and alerting.close_hour must differ")
	}
	if _, err := time.LoadLocation(c.Alerting.Timezone); err != nil {
		return fmt.Errorf("alerting.timezone %q: %w", c.Alerting.Timezone, err)
	}
	if strings.TrimSpace(c.State.Path) == "" {
		return fmt.Errorf("state.path must be configured")
	}
	if c.Scheduler.RunTimeout <= 0 {
		return fmt.Errorf("scheduler.run_timeout must be greater than zero")
	}
	return nil
}

// Location resolves the configured alerting timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Alerting.Timezone)
	if err != nil {
		return time.FixedZone("PET", -5*60*60)
	}
	return loc
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
