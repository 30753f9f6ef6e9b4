// Package citations discovers candidate source URLs for a category: web search citations,
// links harvested from preferred home pages and RSS feed entries, deduplicated and filtered.
package citations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/feedgen/internal/apiclient"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/ratelimit"
	"github.com/deusflow/feedgen/internal/scraper"
	"github.com/deusflow/feedgen/internal/urlutil"
)

const (
	DefaultModel       = "perplexity/sonar"
	DefaultTemperature = 0.1

	MaxHomeSites = 8
	PerSiteLinks = 5
	PerFeedLinks = 5

	querySites    = 3
	promptSites   = 5
	queryKeywords = 5

	ReasonVideoLive = "video/live"
)

type ChatClient interface {
	ChatCompletion(ctx context.Context, req apiclient.ChatRequest) (*apiclient.ChatResponse, error)
}

type NewsExtractor interface {
	ExtractNews(ctx context.Context, url string, opts scraper.Options) []news.NewsItem
}

type FeedReader interface {
	CollectLinks(ctx context.Context, urls []string, perFeed int) []string
}

// Removal is a citation dropped by Filter.
type Removal struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// BuildQuery joins the description, up to five keywords and the locale's "latest news"
// suffix. With preferred sites the query is ORed with site: hints for the first three.
func BuildQuery(tables *locale.Tables, code, description string, keywords, preferredSites []string) string {
	if len(keywords) > queryKeywords {
		keywords = keywords[:queryKeywords]
	}
	query := description + " " + strings.Join(keywords, ", ") + " " + tables.QuerySuffix(code)

	if len(preferredSites) > 0 {
		sites := preferredSites
		if len(sites) > querySites {
			sites = sites[:querySites]
		}
		hints := make([]string, len(sites))
		for i, s := range sites {
			hints[i] = "site:" + s
		}
		query = "(" + query + ") (" + strings.Join(hints, " OR ") + ")"
	}
	return query
}

// BuildSystemPrompt renders the locale's search prompt naming up to five preferred sites.
func BuildSystemPrompt(tables *locale.Tables, code string, maxResults int, description string, preferredSites []string) string {
	if len(preferredSites) > promptSites {
		preferredSites = preferredSites[:promptSites]
	}
	return tables.SearchPrompt(code, maxResults, description, preferredSites)
}

// Dedup keeps the first occurrence of every citation.
func Dedup(citations []string) []string {
	return news.DedupStrings(citations)
}

// Filter drops video and live pages and blocked domains. A domain is blocked when it
// equals a blocked entry, is a subdomain of it or contains it.
func Filter(tables *locale.Tables, citations, blocked []string) ([]string, []Removal) {
	patterns := append(append([]string(nil), tables.Common.VideoPatterns...), tables.Common.LivePatterns...)

	var kept []string
	var removed []Removal
	for _, u := range citations {
		lower := strings.ToLower(u)
		domain := strings.ToLower(urlutil.Domain(u))

		if containsAny(lower, patterns) {
			removed = append(removed, Removal{URL: u, Reason: ReasonVideoLive})
			continue
		}
		if b, ok := blockedBy(domain, blocked); ok {
			removed = append(removed, Removal{URL: u, Reason: fmt.Sprintf("blocked domain (%s)", b)})
			continue
		}
		kept = append(kept, u)
	}
	return kept, removed
}

func blockedBy(domain string, blocked []string) (string, bool) {
	for _, b := range blocked {
		lower := strings.ToLower(b)
		if lower == "" {
			continue
		}
		if domain == lower || strings.HasSuffix(domain, "."+lower) || strings.Contains(domain, lower) {
			return b, true
		}
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// RestrictToSites prepends the home pages of sites and keeps only citations whose domain
// matches one of them. It returns the kept citations and how many were dropped.
func RestrictToSites(citations, sites []string) ([]string, int) {
	candidates := make([]string, 0, len(sites)+len(citations))
	for _, s := range sites {
		candidates = append(candidates, urlutil.TopSourceHomeURL(s))
	}
	candidates = append(candidates, citations...)

	kept := make([]string, 0, len(candidates))
	for _, u := range candidates {
		domain := strings.ToLower(urlutil.Domain(u))
		for _, s := range sites {
			if news.MatchesDomain(domain, strings.ToLower(s)) {
				kept = append(kept, u)
				break
			}
		}
	}
	return kept, len(candidates) - len(kept)
}

// HarvestHomePages scans the home pages of up to maxSites sites and returns at most
// perSite links from each, in site order.
func HarvestHomePages(ctx context.Context, ex NewsExtractor, sites []string, maxSites, perSite, concurrency int) []string {
	if len(sites) > maxSites {
		sites = sites[:maxSites]
	}
	perSiteLinks := make([][]string, len(sites))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, site := range sites {
		g.Go(func() error {
			items := ex.ExtractNews(ctx, urlutil.HomeURL(site), scraper.Options{BaseDomain: site})
			if len(items) > perSite {
				items = items[:perSite]
			}
			links := make([]string, len(items))
			for j, item := range items {
				links[j] = item.Link
			}
			perSiteLinks[i] = links
			logger.Debug("home page scanned", "site", site, "links", len(links))
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for _, links := range perSiteLinks {
		out = append(out, links...)
	}
	return out
}

// Pipeline runs one category search. Fields left nil disable the matching source.
type Pipeline struct {
	Client      ChatClient
	Extractor   NewsExtractor
	Feeds       FeedReader
	Tables      *locale.Tables
	Budget      *ratelimit.Budget
	Model       string
	Concurrency int
}

type Request struct {
	Locale         string
	IABCode        string
	Description    string
	Keywords       []string
	PreferredSites []string
	RSSFeeds       []string
	BlockedDomains []string
	MaxResults     int
}

type Result struct {
	Query           string    `json:"query"`
	SystemPrompt    string    `json:"system_prompt"`
	Keywords        []string  `json:"keywords"`
	Content         string    `json:"content"`
	SearchCitations []string  `json:"search_citations"`
	HomeCitations   []string  `json:"home_citations"`
	FeedCitations   []string  `json:"feed_citations"`
	Citations       []string  `json:"citations"`
	Removed         []Removal `json:"removed"`
}

// Search asks the search model for citations and merges them with home page and feed
// links. A failed search call fails the category; the other sources fail soft.
func (p *Pipeline) Search(ctx context.Context, log *slog.Logger, req Request) (*Result, error) {
	if log == nil {
		log = logger.Logger
	}
	tables := p.Tables
	if tables == nil {
		tables = locale.Default()
	}

	keywords := req.Keywords
	if len(keywords) > queryKeywords {
		keywords = keywords[:queryKeywords]
	}
	res := &Result{
		Query:        BuildQuery(tables, req.Locale, req.Description, keywords, req.PreferredSites),
		SystemPrompt: BuildSystemPrompt(tables, req.Locale, req.MaxResults, req.Description, req.PreferredSites),
		Keywords:     keywords,
	}
	log.Info("searching category", "iab_code", req.IABCode, "description", req.Description,
		"keywords", strings.Join(keywords, ", "), "query", res.Query)

	if err := p.Budget.Use(ratelimit.Search); err != nil {
		return nil, fmt.Errorf("search %s: %w", req.IABCode, err)
	}
	model := p.Model
	if model == "" {
		model = DefaultModel
	}
	resp, err := p.Client.ChatCompletion(ctx, apiclient.ChatRequest{
		Model: model,
		Messages: []apiclient.Message{
			{Role: "system", Content: res.SystemPrompt},
			{Role: "user", Content: res.Query},
		},
		Temperature: DefaultTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", req.IABCode, err)
	}
	res.Content = resp.Content()
	res.SearchCitations = resp.CitationURLs()
	log.Info("search returned citations", "iab_code", req.IABCode, "count", len(res.SearchCitations))

	if p.Extractor != nil && len(req.PreferredSites) > 0 {
		res.HomeCitations = HarvestHomePages(ctx, p.Extractor, req.PreferredSites, MaxHomeSites, PerSiteLinks, p.Concurrency)
		log.Info("home pages scanned", "sites", min(len(req.PreferredSites), MaxHomeSites), "citations", len(res.HomeCitations))
	}
	if p.Feeds != nil && len(req.RSSFeeds) > 0 {
		res.FeedCitations = p.Feeds.CollectLinks(ctx, req.RSSFeeds, PerFeedLinks)
	}

	all := make([]string, 0, len(res.SearchCitations)+len(res.HomeCitations)+len(res.FeedCitations))
	all = append(all, res.SearchCitations...)
	all = append(all, res.HomeCitations...)
	all = append(all, res.FeedCitations...)

	res.Citations, res.Removed = Filter(tables, Dedup(all), req.BlockedDomains)
	if len(res.Removed) > 0 {
		log.Warn("filtered out video/live/blocked URLs", "count", len(res.Removed))
	}
	return res, nil
}
