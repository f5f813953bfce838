// Package config loads the YAML configuration and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/sportsdesk/internal/news"
	"github.com/deusflow/sportsdesk/internal/policy"
	"github.com/deusflow/sportsdesk/internal/rss"
)

const (
	DefaultPath   = "configs/sportsdesk.yaml"
	configPathEnv = "SPORTSDESK_CONFIG"
)

type Config struct {
	Feeds            []string        `yaml:"feeds"`
	FeedsFile        string          `yaml:"feeds_file"`
	FeedMaxAge       time.Duration   `yaml:"feed_max_age"`
	MinContentChars  int             `yaml:"min_content_chars"`
	MaxFetchAttempts int             `yaml:"max_fetch_attempts"`
	RescoreUnscored  bool            `yaml:"rescore_unscored"`
	PollInterval     time.Duration   `yaml:"poll_interval"`
	Timezone         string          `yaml:"timezone"`
	Policy           policy.Config   `yaml:"policy"`
	OutputMode       news.OutputMode `yaml:"output_mode"`
	Seed             uint64          `yaml:"seed"`

	Telegram   TelegramConfig   `yaml:"telegram"`
	Twitter    TwitterConfig    `yaml:"twitter"`
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Log        LogConfig        `yaml:"log"`

	location *time.Location
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	BaseURL string `yaml:"base_url"`
}

type TwitterConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BaseURL     string `yaml:"base_url"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider"` // gemini | openai
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	DailyBudget       int           `yaml:"daily_budget"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"` // postgres | badger
	DSN        string `yaml:"dsn"`
	BadgerPath string `yaml:"badger_path"`
}

type CacheConfig struct {
	Driver    string        `yaml:"driver"` // memory | redis | none
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type ScoringConfig struct {
	Workers       int `yaml:"workers"`
	ContentPrefix int `yaml:"content_prefix"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Feeds:            append([]string(nil), rss.DefaultFeeds...),
		FeedMaxAge:       rss.DefaultMaxAge,
		MinContentChars:  400,
		MaxFetchAttempts: 3,
		PollInterval:     300 * time.Second,
		Timezone:         "UTC",
		Policy:           policy.DefaultConfig(),
		OutputMode:       news.OutputTelegram,
		LLM: LLMConfig{
			Provider:          "gemini",
			Timeout:           60 * time.Second,
			RequestsPerMinute: 15,
		},
		Storage: StorageConfig{
			Driver:     "badger",
			BadgerPath: "data/badger",
		},
		Cache: CacheConfig{
			Driver: "memory",
			TTL:    48 * time.Hour,
		},
		Scoring: ScoringConfig{
			Workers:       1,
			ContentPrefix: 500,
		},
		Monitoring: MonitoringConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (or $SPORTSDESK_CONFIG, or the default path), applies
// environment overrides and validates the result. A missing file at the
// default path is not an error.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadStore is Load for commands that only read the store: LLM, channel and
// cache settings are not checked.
func LoadStore(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.ValidateStore()
}

func read(path string) (*Config, error) {
	cfg := Default()

	explicit := true
	if path == "" {
		path = getEnvOrDefault(configPathEnv, "")
	}
	if path == "" {
		path, explicit = DefaultPath, false
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if cfg.FeedsFile != "" {
		feeds, err := rss.LoadFeeds(cfg.FeedsFile)
		if err != nil {
			return nil, fmt.Errorf("feeds file: %w", err)
		}
		cfg.Feeds = feeds
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.Telegram.Token = getEnvOrDefault("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	c.Twitter.BearerToken = getEnvOrDefault("TWITTER_BEARER_TOKEN", c.Twitter.BearerToken)

	c.LLM.Provider = getEnvOrDefault("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnvOrDefault("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnvOrDefault("LLM_BASE_URL", c.LLM.BaseURL)
	switch c.LLM.Provider {
	case "gemini":
		c.LLM.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.LLM.APIKey)
	case "openai":
		c.LLM.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.LLM.APIKey)
	}
	c.LLM.DailyBudget = getEnvIntOrDefault("MAX_AI_REQUESTS", c.LLM.DailyBudget)

	c.Storage.Driver = getEnvOrDefault("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnvOrDefault("DATABASE_DSN", c.Storage.DSN)
	c.Storage.BadgerPath = getEnvOrDefault("BADGER_PATH", c.Storage.BadgerPath)

	c.Cache.Driver = getEnvOrDefault("CACHE_DRIVER", c.Cache.Driver)
	c.Cache.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.Cache.RedisAddr)

	if mode := os.Getenv("OUTPUT_MODE"); mode != "" {
		c.OutputMode = news.OutputMode(mode)
	}
	c.Policy.DailyQuota = getEnvIntOrDefault("DAILY_QUOTA", c.Policy.DailyQuota)
	c.Scoring.Workers = getEnvIntOrDefault("SCORING_WORKERS", c.Scoring.Workers)
	c.Timezone = getEnvOrDefault("TIMEZONE", c.Timezone)

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SEED: %w", err)
		}
		c.Seed = seed
	}

	c.Monitoring.Addr = getEnvOrDefault("MONITORING_ADDR", c.Monitoring.Addr)
	if os.Getenv("MONITORING_ENABLED") == "true" {
		c.Monitoring.Enabled = true
	}
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Location is the zone that decides where "today" begins.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// Validate checks everything a poll cycle needs, credentials included.
func (c *Config) Validate() error {
	errs := c.storeErrors()

	if len(c.Feeds) == 0 {
		errs = append(errs, errors.New("at least one feed is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.MaxFetchAttempts < 1 {
		errs = append(errs, errors.New("max_fetch_attempts must be at least 1"))
	}
	if c.MinContentChars < 0 {
		errs = append(errs, errors.New("min_content_chars must not be negative"))
	}

	if !c.OutputMode.Valid() {
		errs = append(errs, fmt.Errorf("output_mode must be telegram, twitter, both or none, got %q", c.OutputMode))
	}
	if c.OutputMode == news.OutputTelegram || c.OutputMode == news.OutputBoth {
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
		}
		if c.Telegram.ChatID == "" {
			errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required"))
		}
	}
	if (c.OutputMode == news.OutputTwitter || c.OutputMode == news.OutputBoth) && c.Twitter.BearerToken == "" {
		errs = append(errs, errors.New("TWITTER_BEARER_TOKEN is required"))
	}

	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required"))
		}
	case "openai":
		// a local OpenAI-compatible server needs no key
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY or llm.base_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be gemini or openai, got %q", c.LLM.Provider))
	}

	switch c.Cache.Driver {
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis cache"))
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.driver must be memory, redis or none, got %q", c.Cache.Driver))
	}

	if c.Scoring.Workers < 1 {
		errs = append(errs, errors.New("scoring.workers must be at least 1"))
	}
	if c.Monitoring.Enabled && c.Monitoring.Addr == "" {
		errs = append(errs, errors.New("monitoring.addr is required when monitoring is enabled"))
	}

	return errors.Join(errs...)
}

// ValidateStore checks the settings needed to read the store and report on
// the current day.
func (c *Config) ValidateStore() error {
	return errors.Join(c.storeErrors()...)
}

func (c *Config) storeErrors() []error {
	var errs []error

	if c.Policy.DailyQuota < 0 {
		errs = append(errs, errors.New("policy.daily_quota must not be negative"))
	}
	for name, t := range map[string]policy.Thresholds{"instant": c.Policy.Instant, "batch": c.Policy.Batch} {
		if t.Uniqueness != 0 && t.Uniqueness != 1 {
			errs = append(errs, fmt.Errorf("policy.%s.uniqueness must be 0 or 1", name))
		}
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	} else {
		c.location = loc
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for postgres storage"))
		}
	case "badger":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or badger, got %q", c.Storage.Driver))
	}
	return errs
}
