package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deusflow/feedgen/internal/logger"
)

// Kind is a class of outbound LLM call.
type Kind string

const (
	Search  Kind = "search"
	Summary Kind = "summary"
)

// ErrExceeded is returned by Use when a limit is reached.
var ErrExceeded = errors.New("rate limit exceeded")

// Limits of zero mean unlimited.
type Limits struct {
	Search  int
	Summary int
	Total   int
}

func (l Limits) of(kind Kind) int {
	switch kind {
	case Search:
		return l.Search
	case Summary:
		return l.Summary
	}
	return 0
}

// Budget counts search and summary calls against daily limits. It is shared by every
// run of the process.
type Budget struct {
	mu          sync.Mutex
	limits      Limits
	counts      map[Kind]int
	totalCount  int
	cacheHits   int
	cacheMisses int
	resetTime   time.Time
	now         func() time.Time
}

func NewBudget(limits Limits) *Budget {
	return newBudget(limits, time.Now)
}

func newBudget(limits Limits, now func() time.Time) *Budget {
	return &Budget{
		limits:    limits,
		counts:    make(map[Kind]int),
		now:       now,
		resetTime: now().Add(24 * time.Hour), // Reset daily
	}
}

// Allow reports whether a call of kind would be accepted.
func (b *Budget) Allow(kind Kind) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if err := b.check(kind); err != nil {
		logger.Warn("AI rate limit reached", "kind", kind, "error", err)
		return false
	}
	return true
}

// Use records one call of kind, or fails with ErrExceeded.
func (b *Budget) Use(kind Kind) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkReset()
	if err := b.check(kind); err != nil {
		return err
	}

	b.counts[kind]++
	b.totalCount++
	b.cacheMisses++

	logger.Debug("AI usage", "kind", kind, "used", b.counts[kind], "limit", b.limits.of(kind),
		"total", b.totalCount, "total_limit", b.limits.Total)
	return nil
}

func (b *Budget) check(kind Kind) error {
	if max := b.limits.of(kind); max > 0 && b.counts[kind] >= max {
		return fmt.Errorf("%s: %w (%d/%d)", kind, ErrExceeded, b.counts[kind], max)
	}
	if b.limits.Total > 0 && b.totalCount >= b.limits.Total {
		return fmt.Errorf("total: %w (%d/%d)", ErrExceeded, b.totalCount, b.limits.Total)
	}
	return nil
}

// RecordCacheHit records a summary served from cache.
func (b *Budget) RecordCacheHit() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cacheHits++
}

func (b *Budget) cacheHitRate() float64 {
	total := b.cacheHits + b.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(b.cacheHits) / float64(total) * 100
}

type Stats struct {
	SearchUsed   int       `json:"search_used"`
	SearchLimit  int       `json:"search_limit"`
	SummaryUsed  int       `json:"summary_used"`
	SummaryLimit int       `json:"summary_limit"`
	TotalUsed    int       `json:"total_used"`
	TotalLimit   int       `json:"total_limit"`
	CacheHits    int       `json:"cache_hits"`
	CacheMisses  int       `json:"cache_misses"`
	CacheHitRate float64   `json:"cache_hit_rate"`
	ResetTime    time.Time `json:"reset_time"`
}

func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats()
}

func (b *Budget) stats() Stats {
	return Stats{
		SearchUsed:   b.counts[Search],
		SearchLimit:  b.limits.Search,
		SummaryUsed:  b.counts[Summary],
		SummaryLimit: b.limits.Summary,
		TotalUsed:    b.totalCount,
		TotalLimit:   b.limits.Total,
		CacheHits:    b.cacheHits,
		CacheMisses:  b.cacheMisses,
		CacheHitRate: b.cacheHitRate(),
		ResetTime:    b.resetTime,
	}
}

// LogStats logs current statistics
func (b *Budget) LogStats() {
	s := b.Stats()
	logger.Info("AI budget statistics",
		"search", fmt.Sprintf("%d/%d", s.SearchUsed, s.SearchLimit),
		"summary", fmt.Sprintf("%d/%d", s.SummaryUsed, s.SummaryLimit),
		"total", fmt.Sprintf("%d/%d", s.TotalUsed, s.TotalLimit),
		"cache_hits", s.CacheHits,
		"cache_hit_rate", fmt.Sprintf("%.1f%%", s.CacheHitRate))
}

// checkReset resets counters if reset time has passed
func (b *Budget) checkReset() {
	now := b.now()
	if !now.After(b.resetTime) {
		return
	}
	s := b.stats()
	logger.Info("resetting AI budget counters", "total_used", s.TotalUsed, "cache_hits", s.CacheHits)

	b.counts = make(map[Kind]int)
	b.totalCount = 0
	b.cacheHits = 0
	b.cacheMisses = 0
	b.resetTime = now.Add(24 * time.Hour)
}
