// Package feed runs the feed generation pipeline for one cluster and locale:
// citation search, headline extraction, clustering, then article validation and
// summarization in two passes.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/feedgen/internal/citations"
	"github.com/deusflow/feedgen/internal/clustering"
	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/metrics"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/ratelimit"
	"github.com/deusflow/feedgen/internal/recency"
	"github.com/deusflow/feedgen/internal/scraper"
	"github.com/deusflow/feedgen/internal/summarizer"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

// Step is a pipeline stage a run can stop after.
type Step int

const (
	StepSearch Step = iota + 1
	StepExtract
	StepCluster
	StepSelect
)

func (s Step) String() string {
	switch s {
	case StepSearch:
		return "search"
	case StepExtract:
		return "extract"
	case StepCluster:
		return "cluster"
	case StepSelect:
		return "select"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

const (
	DefaultMaxResults = 10
	DefaultMinLength  = 1000
	DefaultLocale     = "IT"

	maxCitationPages  = 10
	minItemsPerPage   = 10
	maxArticlesPerSet = 5
	historicalResults = 3
	singletonWarnAt   = 200
)

type Request struct {
	ClusterID    int    `json:"cluster_id"`
	MaxResults   int    `json:"max_results"`
	Geo          string `json:"geo"`
	Locale       string `json:"locale"`
	UpToStep     Step   `json:"upto_step,omitempty"`
	MinLenMulti  int    `json:"min_len_multi,omitempty"`
	MinLenSingle int    `json:"min_len_single,omitempty"`
	Model        string `json:"model,omitempty"`
}

func (r Request) withDefaults() Request {
	if r.MaxResults <= 0 {
		r.MaxResults = DefaultMaxResults
	}
	if r.Locale == "" {
		r.Locale = DefaultLocale
	}
	r.Locale = strings.ToUpper(r.Locale)
	if r.Geo == "" {
		r.Geo = r.Locale
	}
	if r.MinLenMulti <= 0 {
		r.MinLenMulti = DefaultMinLength
	}
	if r.MinLenSingle <= 0 {
		r.MinLenSingle = DefaultMinLength
	}
	return r
}

// Result is the output of one run. StoppedAt is set when the run was asked to stop
// early, in which case Feed is empty.
type Result struct {
	Feed        []news.FeedItem `json:"feed"`
	Clusters    []news.Cluster  `json:"clusters"`
	StoppedAt   Step            `json:"stopped_at,omitempty"`
	Diagnostics *Diagnostics    `json:"-"`
}

// Catalog provides the taxonomy and preferred sources of a locale.
type Catalog interface {
	Load(locale string) (*taxonomy.Taxonomy, *taxonomy.TopSources, error)
}

type Config struct {
	Catalog     Catalog
	Search      citations.ChatClient
	SearchModel string
	Summarizer  summarizer.Summarizer
	Feeds       citations.FeedReader // optional
	// ExtraFeeds adds RSS feeds per category code to those of the top sources.
	ExtraFeeds interface{ For(code string) []string }

	// Listing and Articles fetch headline pages and article pages. Each run wraps
	// them in its own memo.
	Listing  fetcher.Source
	Articles fetcher.Source

	Tables  *locale.Tables
	Budget  *ratelimit.Budget
	Metrics *metrics.Metrics

	Concurrency         int // page fetches in flight per stage
	SummaryConcurrency  int // clusters validated and summarized at once
	ReadabilityFallback bool

	Now func() time.Time
}

type Generator struct {
	cfg Config
}

func New(cfg Config) *Generator {
	if cfg.Tables == nil {
		cfg.Tables = locale.Default()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = taxonomy.Catalog{Dir: "configs"}
	}
	if cfg.Listing == nil {
		cfg.Listing = fetcher.New(fetcher.Options{UserAgent: fetcher.BrowserUserAgent})
	}
	if cfg.Articles == nil {
		cfg.Articles = fetcher.New(fetcher.Options{UserAgent: fetcher.BotUserAgent})
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 6
	}
	if cfg.SummaryConcurrency <= 0 {
		cfg.SummaryConcurrency = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{cfg: cfg}
}

// Generate runs the pipeline. Only a failed search fails the run: an unknown
// cluster or an empty stage yields an empty feed.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	req = req.withDefaults()
	g.cfg.Metrics.IncrementRunsStarted()
	start := time.Now()

	rc, err := g.newRun(req)
	if err != nil {
		g.cfg.Metrics.SetError(err.Error())
		return nil, err
	}

	res, err := g.run(ctx, rc, req)
	rc.Diag.Elapsed = time.Since(start)
	g.cfg.Metrics.RecordProcessingTime(rc.Diag.Elapsed)
	if err != nil {
		rc.Log.Error("feed generation failed", "error", err)
		g.cfg.Metrics.SetError(err.Error())
		return nil, err
	}

	res.Diagnostics = rc.Diag
	rc.Diag.Feed = res.Feed
	g.cfg.Metrics.AddFeedItems(len(res.Feed))
	g.cfg.Metrics.SetLastRun()
	rc.Log.Info("feed generated", "items", len(res.Feed), "pages_fetched", rc.Pages.Len()+rc.Articles.Len(),
		"elapsed", rc.Diag.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (g *Generator) newRun(req Request) (*RunContext, error) {
	tax, sources, err := g.cfg.Catalog.Load(req.Locale)
	if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", req.Locale, err)
	}

	id := uuid.NewString()
	log := logger.With("run_id", id, "cluster_id", req.ClusterID, "locale", req.Locale)
	rc := &RunContext{
		ID:       id,
		Locale:   req.Locale,
		Geo:      req.Geo,
		Model:    req.Model,
		Started:  g.cfg.Now(),
		Taxonomy: tax,
		Sources:  sources,
		Tables:   g.cfg.Tables,
		Pages:    fetcher.NewMemo(g.cfg.Listing),
		Articles: fetcher.NewMemo(g.cfg.Articles),
		Log:      log,
		now:      g.cfg.Now,
	}
	rc.Cluster, rc.found = tax.Cluster(req.ClusterID)
	rc.Diag = newDiagnostics(rc, req)

	rc.extractor = scraper.New(scraper.Config{
		Listing:             rc.Pages,
		Articles:            rc.Articles,
		Tables:              rc.Tables,
		Now:                 rc.now,
		Logger:              log,
		ReadabilityFallback: g.cfg.ReadabilityFallback,
	})
	rc.clusterer = clustering.New(rc.Tables)
	rc.recency = recency.NewChecker(rc.Tables, rc.now)
	rc.search = &citations.Pipeline{
		Client:      g.cfg.Search,
		Extractor:   rc.extractor,
		Feeds:       g.cfg.Feeds,
		Tables:      rc.Tables,
		Budget:      g.cfg.Budget,
		Model:       g.cfg.SearchModel,
		Concurrency: g.cfg.Concurrency,
	}
	return rc, nil
}

func (g *Generator) run(ctx context.Context, rc *RunContext, req Request) (*Result, error) {
	empty := &Result{Feed: []news.FeedItem{}, Clusters: []news.Cluster{}}
	if !rc.found {
		rc.Log.Warn("cluster not found")
		rc.Diag.note("cluster %d not found", req.ClusterID)
		return empty, nil
	}
	rc.Log.Info("generating feed", "cluster", rc.Cluster.Name, "categories", len(rc.Cluster.Categories),
		"must_be_fresh", rc.MustBeFresh())

	urls, err := g.searchStep(ctx, rc, req.MaxResults)
	if err != nil {
		return nil, err
	}
	if stop := rc.checkpoint(req, StepSearch, empty); stop != nil {
		return stop, nil
	}
	if len(urls) == 0 {
		rc.Diag.note("no search results found")
		return empty, nil
	}

	items := g.extractStep(ctx, rc, urls)
	if stop := rc.checkpoint(req, StepExtract, empty); stop != nil {
		return stop, nil
	}
	if len(items) == 0 {
		rc.Diag.note("no news items extracted")
		return empty, nil
	}

	clusters := g.clusterStep(rc, items)
	if stop := rc.checkpoint(req, StepCluster, empty); stop != nil {
		return stop, nil
	}
	if len(clusters) == 0 {
		rc.Diag.note("no clusters created")
		return empty, nil
	}

	feed := g.selectStep(ctx, rc, req, clusters)
	return &Result{Feed: feed, Clusters: clusters}, nil
}

func (g *Generator) clusterStep(rc *RunContext, items []news.NewsItem) []news.Cluster {
	clusters, valid := rc.clusterer.Cluster(items, clustering.DefaultThreshold)
	rc.Diag.ValidItems = valid
	rc.Diag.Clusters = clusters
	rc.Log.Info("clustered items", "items", len(items), "valid", valid, "clusters", len(clusters))
	return clusters
}

// forEach calls fn for every index in [0, n) on at most limit goroutines. Callers
// write results into index-addressed slots so merges keep input order.
func forEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}
