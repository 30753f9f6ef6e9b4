package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("FEED_SUMMARY_API_URL", "https://summary.example.com/feedsummary")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SearchModel != "perplexity/sonar" || cfg.SummaryBackend != BackendEndpoint {
		t.Errorf("backends = %q %q", cfg.SearchModel, cfg.SummaryBackend)
	}
	if cfg.APITimeout != 30*time.Second || cfg.BackoffBase != 600*time.Millisecond || cfg.MaxRetries != 2 {
		t.Errorf("http = %v %v %d", cfg.APITimeout, cfg.BackoffBase, cfg.MaxRetries)
	}
	if cfg.FetchConcurrency != 6 || cfg.MinLenMulti != 1000 || !cfg.ReadabilityFallback {
		t.Errorf("pipeline = %+v", cfg)
	}
	if cfg.OutputDir != "local_output" || cfg.HTTPAddr != ":8080" || cfg.SummaryCacheTTL != 6*time.Hour {
		t.Errorf("outputs = %q %q %v", cfg.OutputDir, cfg.HTTPAddr, cfg.SummaryCacheTTL)
	}
}

func TestLoad_Lists(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("SUMMARY_BACKEND", "OpenRouter")
	t.Setenv("SCHEDULE_CRON", "0 6 * * *")
	t.Setenv("SCHEDULE_CLUSTERS", "1,2,12")
	t.Setenv("SCHEDULE_LOCALES", "it,en")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SummaryBackend != BackendOpenRouter {
		t.Errorf("backend = %q", cfg.SummaryBackend)
	}
	if !reflect.DeepEqual(cfg.ScheduleClusters, []int{1, 2, 12}) || !reflect.DeepEqual(cfg.ScheduleLocales, []string{"it", "en"}) {
		t.Errorf("schedule = %v %v", cfg.ScheduleClusters, cfg.ScheduleLocales)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			OpenRouterAPIKey: "k", SummaryBackend: BackendOpenRouter, CacheBackend: CacheMemory,
			FetchConcurrency: 1, SummaryConcurrency: 1, DispatchConcurrency: 1,
			MinLenMulti: 1000, MinLenSingle: 1000, KafkaTopic: "feeds",
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no key", func(c *Config) { c.OpenRouterAPIKey = "" }, "OPENROUTER_API_KEY"},
		{"endpoint without url", func(c *Config) { c.SummaryBackend = BackendEndpoint }, "FEED_SUMMARY_API_URL"},
		{"gemini without key", func(c *Config) { c.SummaryBackend = BackendGemini }, "GEMINI_API_KEY"},
		{"bad backend", func(c *Config) { c.SummaryBackend = "bedrock" }, "SUMMARY_BACKEND"},
		{"bad cache", func(c *Config) { c.CacheBackend = "disk" }, "CACHE_BACKEND"},
		{"zero concurrency", func(c *Config) { c.FetchConcurrency = 0 }, "concurrency"},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "t" }, "TELEGRAM_CHAT_ID"},
		{"cron without clusters", func(c *Config) { c.ScheduleCron = "@daily" }, "SCHEDULE_CLUSTERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
