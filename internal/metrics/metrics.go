package metrics

import (
	"sync"
	"time"
)

// Metrics aggregates process-level counters across pipeline runs.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsStarted       int64
	RunsFailed        int64
	FeedItems         int64
	CitationsRemoved  int64
	ArticlesDiscarded int64
	SummaryFailures   int64
	SummaryCacheHits  int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

// add expects a non-nil receiver: taking a counter's address already dereferences m.
func (m *Metrics) add(counter *int64, n int) {
	if n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter += int64(n)
}

func (m *Metrics) IncrementRunsStarted() {
	if m == nil {
		return
	}
	m.add(&m.RunsStarted, 1)
}

func (m *Metrics) AddFeedItems(n int) {
	if m == nil {
		return
	}
	m.add(&m.FeedItems, n)
}

func (m *Metrics) AddCitationsRemoved(n int) {
	if m == nil {
		return
	}
	m.add(&m.CitationsRemoved, n)
}

func (m *Metrics) AddArticlesDiscarded(n int) {
	if m == nil {
		return
	}
	m.add(&m.ArticlesDiscarded, n)
}

func (m *Metrics) IncrementSummaryFailures() {
	if m == nil {
		return
	}
	m.add(&m.SummaryFailures, 1)
}

func (m *Metrics) IncrementSummaryCacheHits() {
	if m == nil {
		return
	}
	m.add(&m.SummaryCacheHits, 1)
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

// SetError marks a failed run.
func (m *Metrics) SetError(err string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsFailed++
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

type Stats struct {
	RunsStarted             int64  `json:"runs_started"`
	RunsFailed              int64  `json:"runs_failed"`
	FeedItems               int64  `json:"feed_items"`
	CitationsRemoved        int64  `json:"citations_removed"`
	ArticlesDiscarded       int64  `json:"articles_discarded"`
	SummaryFailures         int64  `json:"summary_failures"`
	SummaryCacheHits        int64  `json:"summary_cache_hits"`
	LastProcessingTimeMs    int64  `json:"last_processing_time_ms"`
	AverageProcessingTimeMs int64  `json:"average_processing_time_ms"`
	LastRunTime             string `json:"last_run_time,omitempty"`
	LastErrorTime           string `json:"last_error_time,omitempty"`
	LastError               string `json:"last_error,omitempty"`
	IsHealthy               bool   `json:"is_healthy"`
}

func (m *Metrics) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		RunsStarted:             m.RunsStarted,
		RunsFailed:              m.RunsFailed,
		FeedItems:               m.FeedItems,
		CitationsRemoved:        m.CitationsRemoved,
		ArticlesDiscarded:       m.ArticlesDiscarded,
		SummaryFailures:         m.SummaryFailures,
		SummaryCacheHits:        m.SummaryCacheHits,
		LastProcessingTimeMs:    m.LastProcessingTime.Milliseconds(),
		AverageProcessingTimeMs: m.AverageProcessingTime.Milliseconds(),
		LastRunTime:             formatTime(m.LastRunTime),
		LastErrorTime:           formatTime(m.LastErrorTime),
		LastError:               m.LastError,
		IsHealthy:               m.IsHealthy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
