// Package rss reads article links from RSS and Atom feeds as an extra citation source.
package rss

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
)

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
// categories:
//   IAB13:
//     - https://...
type FeedsConfig struct {
	Feeds      []string            `yaml:"feeds"`
	Categories map[string][]string `yaml:"categories"`
}

// For returns the feeds of a category code followed by the shared feeds.
func (c *FeedsConfig) For(code string) []string {
	if c == nil {
		return nil
	}
	out := append([]string(nil), c.Categories[code]...)
	return append(out, c.Feeds...)
}

// LoadFeeds reads RSS feeds list from YAML file. An empty path means no feeds.
func LoadFeeds(path string) (*FeedsConfig, error) {
	if path == "" {
		return &FeedsConfig{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const DefaultTimeout = 10 * time.Second

type Reader struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewReader(client *http.Client, userAgent string, timeout time.Duration) *Reader {
	parser := gofeed.NewParser()
	if client != nil {
		parser.Client = client
	}
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reader{parser: parser, timeout: timeout}
}

// Links returns up to max item links of one feed, newest first as published.
// A feed that cannot be parsed yields no links.
func (r *Reader) Links(ctx context.Context, feedURL string, max int) []string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	feed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		logger.Warn("error parsing RSS", "url", feedURL, "error", err)
		return nil
	}

	var links []string
	for _, item := range feed.Items {
		if max > 0 && len(links) >= max {
			break
		}
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	logger.Debug("loaded RSS links", "url", feedURL, "count", len(links))
	return links
}

// CollectLinks reads every feed in order and returns the distinct links, at most
// perFeed from each.
func (r *Reader) CollectLinks(ctx context.Context, urls []string, perFeed int) []string {
	var all []string
	ok := 0
	for _, u := range urls {
		links := r.Links(ctx, u, perFeed)
		if links != nil {
			ok++
		}
		all = append(all, links...)
	}
	if len(urls) > 0 {
		logger.Debug("processed RSS feeds", "ok", ok, "total", len(urls))
	}
	return news.DedupStrings(all)
}
