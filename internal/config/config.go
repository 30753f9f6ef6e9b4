// Package config loads process configuration from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendEndpoint   = "endpoint"
	BackendOpenRouter = "openrouter"
	BackendGemini     = "gemini"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	// Search and summary backends
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	SearchModel       string `envconfig:"SEARCH_MODEL" default:"perplexity/sonar"`
	SummaryBackend    string `envconfig:"SUMMARY_BACKEND" default:"endpoint"`
	FeedSummaryAPIURL string `envconfig:"FEED_SUMMARY_API_URL"`
	SummaryModel      string `envconfig:"SUMMARY_MODEL" default:"openai/gpt-oss-120b"`
	SummaryLocale     string `envconfig:"SUMMARY_TAXONOMY_LOCALE" default:"IT"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	XTitle            string `envconfig:"X_TITLE"`
	HTTPReferer       string `envconfig:"HTTP_REFERER"`

	// Configuration files
	ConfigDir        string `envconfig:"CONFIG_DIR" default:"configs"`
	LocaleTablesPath string `envconfig:"LOCALE_TABLES_PATH"`
	RSSFeedsPath     string `envconfig:"RSS_FEEDS_PATH"`

	// HTTP behaviour
	APITimeout  time.Duration `envconfig:"API_TIMEOUT" default:"30s"`
	PageTimeout time.Duration `envconfig:"PAGE_TIMEOUT" default:"10s"`
	MaxRetries  int           `envconfig:"MAX_RETRIES" default:"2"`
	BackoffBase time.Duration `envconfig:"BACKOFF_BASE" default:"600ms"`
	BackoffCap  time.Duration `envconfig:"BACKOFF_CAP" default:"8s"`

	// Pipeline
	FetchConcurrency    int  `envconfig:"FETCH_CONCURRENCY" default:"6"`
	SummaryConcurrency  int  `envconfig:"SUMMARY_CONCURRENCY" default:"3"`
	MaxSearchCalls      int  `envconfig:"MAX_SEARCH_CALLS" default:"0"`
	MaxSummaryCalls     int  `envconfig:"MAX_SUMMARY_CALLS" default:"0"`
	MaxTotalCalls       int  `envconfig:"MAX_TOTAL_CALLS" default:"0"`
	MinLenMulti         int  `envconfig:"MIN_LEN_MULTI" default:"1000"`
	MinLenSingle        int  `envconfig:"MIN_LEN_SINGLE" default:"1000"`
	ReadabilityFallback bool `envconfig:"READABILITY_FALLBACK" default:"true"`

	// Summary cache
	CacheBackend    string        `envconfig:"CACHE_BACKEND" default:"memory"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	SummaryCacheTTL time.Duration `envconfig:"SUMMARY_CACHE_TTL" default:"6h"`

	// Outputs
	OutputDir     string   `envconfig:"OUTPUT_DIR" default:"local_output"`
	S3Destination string   `envconfig:"S3_DESTINATION"`
	AWSRegion     string   `envconfig:"AWS_REGION"`
	KafkaBrokers  []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic    string   `envconfig:"KAFKA_TOPIC" default:"feeds"`

	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`

	// Server and schedule
	HTTPAddr            string   `envconfig:"HTTP_ADDR" default:":8080"`
	ScheduleCron        string   `envconfig:"SCHEDULE_CRON"`
	ScheduleClusters    []int    `envconfig:"SCHEDULE_CLUSTERS"`
	ScheduleLocales     []string `envconfig:"SCHEDULE_LOCALES" default:"it"`
	ScheduleMaxResults  int      `envconfig:"SCHEDULE_MAX_RESULTS" default:"10"`
	DispatchConcurrency int      `envconfig:"DISPATCH_CONCURRENCY" default:"2"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.SummaryBackend = strings.ToLower(cfg.SummaryBackend)
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks rules that span several keys.
func (c *Config) Validate() error {
	if c.OpenRouterAPIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	switch c.SummaryBackend {
	case BackendEndpoint:
		if c.FeedSummaryAPIURL == "" {
			return fmt.Errorf("FEED_SUMMARY_API_URL is required when SUMMARY_BACKEND=endpoint")
		}
	case BackendOpenRouter:
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SUMMARY_BACKEND=gemini")
		}
	default:
		return fmt.Errorf("SUMMARY_BACKEND must be endpoint, openrouter or gemini, got %q", c.SummaryBackend)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.CacheBackend)
	}
	if c.FetchConcurrency <= 0 || c.SummaryConcurrency <= 0 || c.DispatchConcurrency <= 0 {
		return fmt.Errorf("concurrency settings must be positive")
	}
	if c.MaxRetries < 0 || c.MaxSearchCalls < 0 || c.MaxSummaryCalls < 0 || c.MaxTotalCalls < 0 {
		return fmt.Errorf("retry and call limits must not be negative")
	}
	if c.MinLenMulti <= 0 || c.MinLenSingle <= 0 {
		return fmt.Errorf("MIN_LEN_MULTI and MIN_LEN_SINGLE must be positive")
	}
	if c.ScheduleCron != "" && len(c.ScheduleClusters) == 0 {
		return fmt.Errorf("SCHEDULE_CLUSTERS is required when SCHEDULE_CRON is set")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
