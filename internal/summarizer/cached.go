package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/deusflow/feedgen/internal/cache"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/metrics"
	"github.com/deusflow/feedgen/internal/ratelimit"
)

const DefaultCacheTTL = 6 * time.Hour

// CachedSummarizer reuses summaries of the same article set and charges the
// summary budget only on a miss. A nil Store disables caching.
type CachedSummarizer struct {
	Next   Summarizer
	Store  cache.Store
	TTL    time.Duration
	Budget *ratelimit.Budget

	Metrics *metrics.Metrics // optional
}

func NewCachedSummarizer(next Summarizer, store cache.Store, ttl time.Duration, budget *ratelimit.Budget) *CachedSummarizer {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSummarizer{Next: next, Store: store, TTL: ttl, Budget: budget}
}

// CacheKey identifies a request by language, cluster, model and article links.
func CacheKey(req Request) string {
	parts := []string{req.Language, strconv.Itoa(req.ClusterID), req.Model}
	if len(req.Links) > 0 {
		parts = append(parts, req.Links...)
	} else {
		for _, c := range req.Contents {
			parts = append(parts, c.Source, c.Content)
		}
	}
	return cache.GenerateKey(parts...)
}

func (c *CachedSummarizer) Summarize(ctx context.Context, req Request) (*Summary, error) {
	key := CacheKey(req)
	if c.Store != nil {
		data, ok, err := c.Store.Get(ctx, key)
		if err != nil {
			logger.Warn("summary cache read failed", "error", err)
		}
		if ok {
			var s Summary
			if err := json.Unmarshal(data, &s); err == nil {
				c.Budget.RecordCacheHit()
				c.Metrics.IncrementSummaryCacheHits()
				logger.Debug("summary cache hit", "cluster_id", req.ClusterID)
				return &s, nil
			}
		}
	}

	if err := c.Budget.Use(ratelimit.Summary); err != nil {
		return nil, fmt.Errorf("summarize cluster %d: %w", req.ClusterID, err)
	}
	s, err := c.Next.Summarize(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.Store != nil {
		data, err := json.Marshal(s)
		if err == nil {
			err = c.Store.Set(ctx, key, data, c.TTL)
		}
		if err != nil {
			logger.Warn("summary cache write failed", "error", err)
		}
	}
	return s, nil
}
