// Package app wires configuration into the feed pipeline and exposes the
// command line entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/feedgen/internal/apiclient"
	"github.com/deusflow/feedgen/internal/cache"
	"github.com/deusflow/feedgen/internal/config"
	"github.com/deusflow/feedgen/internal/feed"
	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/gemini"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/metrics"
	"github.com/deusflow/feedgen/internal/publish"
	"github.com/deusflow/feedgen/internal/ratelimit"
	"github.com/deusflow/feedgen/internal/retry"
	"github.com/deusflow/feedgen/internal/rss"
	"github.com/deusflow/feedgen/internal/storage"
	"github.com/deusflow/feedgen/internal/summarizer"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

const (
	cacheCleanupEvery = 10 * time.Minute
	redisPingTimeout  = 5 * time.Second
)

// Services are the long-lived components shared by every run of the process.
type Services struct {
	Config     *config.Config
	Pipeline   *Pipeline
	Summarizer summarizer.Summarizer
	Budget     *ratelimit.Budget
	Metrics    *metrics.Metrics

	closers []func() error
}

// Close releases the cache, the Gemini client and the Kafka producer in reverse
// order of creation.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build creates the services described by cfg. Optional sinks are created only when
// configured.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{
		Config:  cfg,
		Budget:  ratelimit.NewBudget(ratelimit.Limits{Search: cfg.MaxSearchCalls, Summary: cfg.MaxSummaryCalls, Total: cfg.MaxTotalCalls}),
		Metrics: metrics.New(),
	}
	if err := s.build(ctx, cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) build(ctx context.Context, cfg *config.Config) error {
	tables, err := locale.Builtin()
	if err != nil {
		return err
	}
	if cfg.LocaleTablesPath != "" {
		t, err := locale.Load(cfg.LocaleTablesPath)
		if err != nil {
			return fmt.Errorf("load locale tables: %w", err)
		}
		tables = t
	}

	retryCfg := retry.RetryConfig{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BackoffBase,
		MaxDelay:   cfg.BackoffCap,
		Jitter:     true,
	}
	openRouter := apiclient.New(apiclient.Options{
		BaseURL:     cfg.OpenRouterBaseURL,
		APIKey:      cfg.OpenRouterAPIKey,
		HTTPReferer: cfg.HTTPReferer,
		XTitle:      cfg.XTitle,
		Timeout:     cfg.APITimeout,
		Retry:       retryCfg,
	})

	store, err := s.summaryStore(ctx, cfg)
	if err != nil {
		return err
	}
	backend, err := s.summaryBackend(ctx, cfg, openRouter, tables, retryCfg)
	if err != nil {
		return err
	}
	cached := summarizer.NewCachedSummarizer(backend, store, cfg.SummaryCacheTTL, s.Budget)
	cached.Metrics = s.Metrics
	s.Summarizer = cached

	var extraFeeds interface{ For(code string) []string }
	if cfg.RSSFeedsPath != "" {
		feeds, err := rss.LoadFeeds(cfg.RSSFeedsPath)
		if err != nil {
			return err
		}
		extraFeeds = feeds
	}

	gen := feed.New(feed.Config{
		Catalog:             taxonomy.Catalog{Dir: cfg.ConfigDir},
		Search:              openRouter,
		SearchModel:         cfg.SearchModel,
		Summarizer:          cached,
		Feeds:               rss.NewReader(nil, fetcher.BotUserAgent, cfg.PageTimeout),
		ExtraFeeds:          extraFeeds,
		Listing:             fetcher.New(fetcher.Options{UserAgent: fetcher.BrowserUserAgent, Timeout: cfg.PageTimeout}),
		Articles:            fetcher.New(fetcher.Options{UserAgent: fetcher.BotUserAgent, Timeout: cfg.PageTimeout}),
		Tables:              tables,
		Budget:              s.Budget,
		Metrics:             s.Metrics,
		Concurrency:         cfg.FetchConcurrency,
		SummaryConcurrency:  cfg.SummaryConcurrency,
		ReadabilityFallback: cfg.ReadabilityFallback,
	})

	s.Pipeline = &Pipeline{
		Generator:    gen,
		Artifacts:    storage.NewArtifactWriter(cfg.OutputDir),
		Debug:        cfg.Debug,
		MinLenMulti:  cfg.MinLenMulti,
		MinLenSingle: cfg.MinLenSingle,
	}

	if cfg.S3Destination != "" {
		uploader, err := storage.NewS3Uploader(ctx, cfg.AWSRegion)
		if err != nil {
			return err
		}
		s.Pipeline.Uploader = uploader
		s.Pipeline.Destination = cfg.S3Destination
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := publish.NewKafkaSink(publish.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return err
		}
		s.closers = append(s.closers, sink.Close)
		s.Pipeline.Publishers = append(s.Pipeline.Publishers, sink)
	}
	if cfg.TelegramToken != "" {
		bot := apiclient.New(apiclient.Options{Timeout: cfg.APITimeout, Retry: retryCfg})
		s.Pipeline.Publishers = append(s.Pipeline.Publishers, publish.NewTelegramSink(bot, cfg.TelegramToken, cfg.TelegramChatID))
	}
	return nil
}

func (s *Services) summaryStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.CacheBackend == config.CacheRedis {
		store := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		s.closers = append(s.closers, store.Close)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("summary cache on redis", "addr", cfg.RedisAddr)
		return store, nil
	}
	store := cache.NewMemoryStore(cacheCleanupEvery)
	s.closers = append(s.closers, store.Close)
	return store, nil
}

func (s *Services) summaryBackend(ctx context.Context, cfg *config.Config, openRouter *apiclient.Client, tables *locale.Tables, retryCfg retry.RetryConfig) (summarizer.Summarizer, error) {
	switch cfg.SummaryBackend {
	case config.BackendOpenRouter, config.BackendGemini:
		tax, err := taxonomy.Load(cfg.ConfigDir, cfg.SummaryLocale)
		if err != nil {
			return nil, fmt.Errorf("load summary taxonomy: %w", err)
		}
		if cfg.SummaryBackend == config.BackendOpenRouter {
			logger.Info("summaries by chat completion", "model", cfg.SummaryModel)
			return summarizer.NewLLMSummarizer(openRouter, tax, tables, cfg.SummaryModel), nil
		}
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, tax, tables)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { client.Close(); return nil })
		logger.Info("summaries by gemini", "model", cfg.GeminiModel)
		return client, nil
	default:
		endpoint := apiclient.New(apiclient.Options{Timeout: cfg.APITimeout, Retry: retryCfg})
		logger.Info("summaries by remote endpoint", "url", cfg.FeedSummaryAPIURL)
		return summarizer.NewEndpointSummarizer(endpoint, cfg.FeedSummaryAPIURL), nil
	}
}
