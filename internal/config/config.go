package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/rewired-gh/dailythread/internal/digest"
	"github.com/rewired-gh/dailythread/internal/thread"
)

// Config represents the complete application configuration
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset"`
	Thread   ThreadConfig   `mapstructure:"thread"`
	Charts   ChartsConfig   `mapstructure:"charts"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	// DryRun logs payloads instead of publishing them.
	DryRun bool `mapstructure:"dry_run"`
	// Force publishes even when the dataset is not newer than the marker.
	Force bool `mapstructure:"force"`
}

// DatasetConfig holds the dataset source configuration
type DatasetConfig struct {
	URL            string        `mapstructure:"url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Timezone       string        `mapstructure:"timezone"`
}

// ThreadConfig holds the thread layout
type ThreadConfig struct {
	Header       string        `mapstructure:"header"`
	RepeatHeader bool          `mapstructure:"repeat_header"`
	Footer       string        `mapstructure:"footer"`
	RepeatFooter bool          `mapstructure:"repeat_footer"`
	Limits       thread.Limits `mapstructure:"limits"`
}

// ChartsConfig holds chart rendering configuration
type ChartsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Dir               string `mapstructure:"dir"`
	MovingAverageDays int    `mapstructure:"moving_average_days"`
}

// TelegramConfig holds Telegram publishing configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	NotifyErrors   bool          `mapstructure:"notify_errors"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath     string `mapstructure:"db_path"`
	MarkerPath string `mapstructure:"marker_path"`
	MaxRuns    int    `mapstructure:"max_runs"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// DAILYTHREAD_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("DAILYTHREAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	def := digest.DefaultOptions()
	limits := thread.DefaultLimits()

	v.SetDefault("dataset.url", "https://raw.githubusercontent.com/pcm-dpc/COVID-19/master/dati-json/dpc-covid19-ita-andamento-nazionale.json")
	v.SetDefault("dataset.poll_interval", "3m")
	v.SetDefault("dataset.timeout", "30s")
	v.SetDefault("dataset.max_retries", 3)
	v.SetDefault("dataset.retry_delay_base", "2s")
	v.SetDefault("dataset.timezone", "Europe/Rome")

	v.SetDefault("thread.header", def.Header)
	v.SetDefault("thread.repeat_header", def.RepeatHeader)
	v.SetDefault("thread.footer", def.Footer)
	v.SetDefault("thread.repeat_footer", def.RepeatFooter)
	v.SetDefault("thread.limits.total", limits.Total)
	v.SetDefault("thread.limits.header_max", limits.HeaderMax)
	v.SetDefault("thread.limits.footer_max", limits.FooterMax)
	v.SetDefault("thread.limits.separator_overhead", limits.SeparatorOverhead)

	v.SetDefault("charts.enabled", true)
	v.SetDefault("charts.dir", "./data/charts")
	v.SetDefault("charts.moving_average_days", def.MovingAverageDays)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "2s")
	v.SetDefault("telegram.notify_errors", true)

	v.SetDefault("storage.db_path", "./data/dailythread.db")
	v.SetDefault("storage.marker_path", "./data/last_update")
	v.SetDefault("storage.max_runs", 500)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dry_run", false)
	v.SetDefault("force", false)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Dataset.URL == "" {
		return fmt.Errorf("dataset.url is required")
	}
	if c.Dataset.PollInterval < 10*time.Second {
		return fmt.Errorf("dataset.poll_interval must be at least 10 seconds")
	}
	if c.Dataset.Timeout <= 0 {
		return fmt.Errorf("dataset.timeout must be positive")
	}
	if c.Dataset.MaxRetries < 1 {
		return fmt.Errorf("dataset.max_retries must be at least 1")
	}
	if _, err := time.LoadLocation(c.Dataset.Timezone); err != nil {
		return fmt.Errorf("dataset.timezone: %w", err)
	}

	if err := c.Thread.Limits.Validate(); err != nil {
		return fmt.Errorf("thread.limits: %w", err)
	}
	if n := len([]rune(c.Thread.Header)); n > c.Thread.Limits.HeaderMax {
		return fmt.Errorf("thread.header is %d characters, max %d", n, c.Thread.Limits.HeaderMax)
	}
	if n := len([]rune(c.Thread.Footer)); n > c.Thread.Limits.FooterMax {
		return fmt.Errorf("thread.footer is %d characters, max %d", n, c.Thread.Limits.FooterMax)
	}

	if c.Charts.Enabled && c.Charts.Dir == "" {
		return fmt.Errorf("charts.dir is required when charts are enabled")
	}
	if c.Charts.MovingAverageDays < 1 {
		return fmt.Errorf("charts.moving_average_days must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if !c.Telegram.Enabled && !c.DryRun {
		return fmt.Errorf("either telegram.enabled or dry_run must be set")
	}

	if c.Storage.MarkerPath == "" {
		return fmt.Errorf("storage.marker_path is required")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Location returns the display time zone of dataset dates.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Dataset.Timezone)
}

// DigestOptions returns the thread layout as digest options.
func (c *Config) DigestOptions() digest.Options {
	return digest.Options{
		Header:            c.Thread.Header,
		RepeatHeader:      c.Thread.RepeatHeader,
		Footer:            c.Thread.Footer,
		RepeatFooter:      c.Thread.RepeatFooter,
		MovingAverageDays: c.Charts.MovingAverageDays,
		Limits:            c.Thread.Limits,
	}
}
