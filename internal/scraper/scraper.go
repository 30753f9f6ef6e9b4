// Package scraper turns fetched HTML into headline candidates and full articles.
package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/recency"
	"github.com/deusflow/feedgen/internal/similarity"
	"github.com/deusflow/feedgen/internal/urlutil"
)

const (
	MaxItemsPerPage = 40

	minArticleLength  = 1000 // citation page body length to count as an article
	minLinkTextLength = 20
	maxLinkTextLength = 250
	minNormalizedText = 15
	maxTitleLength    = 200
	maxSnippetLength  = 500
	minSnippetLength  = 40
	snippetDepth      = 4
	maxSlugLength     = 20

	linkSelectors = "h1 a|h2 a|h3 a|h4 a|article a|div.article a|div.post a|div.story a|div.content a"
)

type Config struct {
	Listing  fetcher.Source // headline pages, sent with a browser user agent
	Articles fetcher.Source // full article pages
	Tables   *locale.Tables
	Now      func() time.Time
	Logger   *slog.Logger

	// ReadabilityFallback extracts body text with readability when a page has no
	// recognizable content container.
	ReadabilityFallback bool
}

type Extractor struct {
	listing     fetcher.Source
	articles    fetcher.Source
	tables      *locale.Tables
	recency     *recency.Checker
	log         *slog.Logger
	readability bool
}

func New(cfg Config) *Extractor {
	if cfg.Tables == nil {
		cfg.Tables = locale.Default()
	}
	if cfg.Listing == nil {
		cfg.Listing = fetcher.New(fetcher.Options{UserAgent: fetcher.BrowserUserAgent})
	}
	if cfg.Articles == nil {
		cfg.Articles = fetcher.New(fetcher.Options{UserAgent: fetcher.BotUserAgent})
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Logger
	}
	return &Extractor{
		listing:     cfg.Listing,
		articles:    cfg.Articles,
		tables:      cfg.Tables,
		recency:     recency.NewChecker(cfg.Tables, cfg.Now),
		log:         cfg.Logger,
		readability: cfg.ReadabilityFallback,
	}
}

type Options struct {
	// BaseDomain restricts links to one host. Defaults to the page's own domain.
	BaseDomain  string
	MustBeFresh bool
	// IsCitation also considers the page itself as an article.
	IsCitation bool
}

// ExtractNews fetches pageURL and returns up to MaxItemsPerPage headline candidates.
// A page that cannot be fetched or parsed yields no items.
func (e *Extractor) ExtractNews(ctx context.Context, pageURL string, opts Options) []news.NewsItem {
	page := e.listing.Fetch(ctx, pageURL)
	if !page.OK() {
		e.log.Debug("page not extracted", "url", pageURL, "status", page.StatusCode, "error", page.Err)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.log.Warn("error parsing HTML", "url", pageURL, "error", err)
		return nil
	}

	var items []news.NewsItem
	if opts.IsCitation {
		if self, ok := e.selfCitation(doc, page.Body, pageURL, opts.MustBeFresh); ok {
			items = append(items, self)
		}
	}

	removeNoise(doc)
	return e.scanLinks(doc, pageURL, baseDomain(pageURL, opts.BaseDomain), items)
}

// selfCitation accepts the page itself when it has a title, a recent date and a long body.
func (e *Extractor) selfCitation(doc *goquery.Document, body []byte, pageURL string, fresh bool) (news.NewsItem, bool) {
	title := probeTitle(doc)
	date := probeDate(doc, citationDateProbes)
	if title == "" || date == "" {
		return news.NewsItem{}, false
	}
	if bodyLength(doc, body) <= minArticleLength {
		return news.NewsItem{}, false
	}
	if ok, reason := e.recency.IsRecent(date, recency.MaxDays(fresh)); !ok {
		e.log.Debug("citation page not recent", "url", pageURL, "reason", reason)
		return news.NewsItem{}, false
	}
	return news.NewsItem{
		Title:        truncate(title, maxTitleLength),
		Link:         pageURL,
		SourceDomain: urlutil.Domain(pageURL),
	}, true
}

// bodyLength measures the main content container, or the whole page without chrome.
func bodyLength(doc *goquery.Document, body []byte) int {
	content := doc.Find("article").First()
	if content.Length() == 0 {
		content = firstWithClass(doc.Find("div"), articleBodyClass)
	}
	if content.Length() > 0 {
		return runeLen(strippedText(content))
	}

	copyDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	copyDoc.Find(noiseTags).Remove()
	return runeLen(strippedText(copyDoc.Selection))
}

func baseDomain(pageURL, base string) string {
	if base == "" {
		base = urlutil.Domain(pageURL)
	}
	if i := strings.Index(base, "/"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimPrefix(base, "www.")
}

func (e *Extractor) scanLinks(doc *goquery.Document, pageURL, base string, items []news.NewsItem) []news.NewsItem {
	seenTitles := make(map[string]struct{})
	seenLinks := make(map[string]struct{})
	for _, item := range items {
		seenTitles[similarity.NormalizeText(item.Title)] = struct{}{}
		seenLinks[item.Link] = struct{}{}
	}

	var anchors []*goquery.Selection
	for _, selector := range strings.Split(linkSelectors, "|") {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			anchors = append(anchors, a)
		})
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		anchors = append(anchors, a)
	})

	for _, a := range anchors {
		if len(items) >= MaxItemsPerPage {
			break
		}

		href := a.AttrOr("href", "")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript") {
			continue
		}

		title := strippedText(a)
		if n := runeLen(title); n < minLinkTextLength || n > maxLinkTextLength {
			continue
		}
		if _, denied := e.tables.DeniedLinkText(strings.ToLower(title)); denied {
			continue
		}

		normalized := similarity.NormalizeText(title)
		if _, dup := seenTitles[normalized]; dup || runeLen(normalized) < minNormalizedText {
			continue
		}

		link := urlutil.Resolve(pageURL, href)
		linkDomain := urlutil.Domain(link)
		if linkDomain != "" && linkDomain != base {
			continue
		}
		if _, dup := seenLinks[link]; dup {
			continue
		}
		if e.isAsset(link) || e.looksTruncated(link) {
			continue
		}

		seenTitles[normalized] = struct{}{}
		seenLinks[link] = struct{}{}

		source := linkDomain
		if source == "" {
			source = base
		}
		items = append(items, news.NewsItem{
			Title:        truncate(title, maxTitleLength),
			Link:         link,
			Snippet:      truncate(findSnippet(a), maxSnippetLength),
			SourceDomain: source,
		})
	}
	return items
}

func (e *Extractor) isAsset(link string) bool {
	lower := strings.ToLower(link)
	for _, pattern := range e.tables.Common.AssetPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// looksTruncated flags links without an article suffix whose last path segment is a
// short slug not ending in a digit.
func (e *Extractor) looksTruncated(link string) bool {
	for _, suffix := range e.tables.Common.ArticleSuffixes {
		if strings.HasSuffix(link, suffix) {
			return false
		}
	}
	path := strings.Trim(urlutil.Path(link), "/")
	last := path[strings.LastIndex(path, "/")+1:]
	if last == "" {
		return false
	}
	r := []rune(last)
	return !unicode.IsDigit(r[len(r)-1]) && len(r) < maxSlugLength
}

// findSnippet climbs up to four ancestors of the anchor looking for a paragraph or
// summary block; the last text found is kept even when it is short.
func findSnippet(a *goquery.Selection) string {
	snippet := ""
	parent := a.Parent()
	for i := 0; i < snippetDepth && parent.Length() > 0; i++ {
		p := parent.Find("p").First()
		if p.Length() == 0 {
			p = firstWithClass(parent.Find("div"), snippetClass)
		}
		if p.Length() > 0 {
			snippet = strippedText(p)
			if runeLen(snippet) > minSnippetLength {
				break
			}
		}
		parent = parent.Parent()
	}
	return snippet
}
