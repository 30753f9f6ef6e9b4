package scraper

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/urlutil"
)

const (
	maxContentParts   = 15
	minPartLength     = 40
	minDivTextLength  = 100
	maxRawContentSize = 3000
)

// FetchArticle downloads a page and extracts its title, image, date and body.
// Failures leave the defaults in place: placeholder image, empty text.
func (e *Extractor) FetchArticle(ctx context.Context, articleURL string) news.Article {
	article := news.Article{
		Image:        e.placeholder(),
		Link:         articleURL,
		SourceDomain: urlutil.Domain(articleURL),
	}

	page := e.articles.Fetch(ctx, articleURL)
	if !page.OK() {
		e.log.Debug("article not fetched", "url", articleURL, "status", page.StatusCode, "error", page.Err)
		return article
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.log.Warn("error fetching article", "url", articleURL, "error", err)
		return article
	}

	article.Title = probeTitle(doc)
	article.Subtitle = article.Title
	if img := metaContent(doc, "og:image"); img != "" {
		article.Image = img
	}
	article.PublishedDate = probeDate(doc, articleDateProbes)

	var parts []string
	if desc := metaContent(doc, "og:description"); desc != "" {
		parts = append(parts, desc)
	}

	body := doc.Find("article").First()
	if body.Length() == 0 {
		body = firstWithClass(doc.Find("div"), contentClass)
	}
	if body.Length() > 0 {
		parts = bodyParts(body, parts)
	} else if e.readability {
		parts = e.readabilityParts(page.Body, articleURL, parts)
	}

	raw := truncate(strings.Join(parts, "\n\n"), maxRawContentSize)
	article.Content = FormatHTML(raw)
	article.ContentTextLength = runeLen(raw)
	article.Extracted = true
	return article
}

// bodyParts collects formatted paragraphs from body in document order. Wrapper divs
// and short divs are skipped.
func bodyParts(body *goquery.Selection, parts []string) []string {
	body.Find("p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "div" {
			if s.Find("p").Length() > 0 || runeLen(strippedText(s)) < minDivTextLength {
				return true
			}
		}
		if text := FormatText(s); runeLen(text) > minPartLength {
			parts = append(parts, text)
		}
		return len(parts) < maxContentParts
	})
	return parts
}

func (e *Extractor) readabilityParts(body []byte, articleURL string, parts []string) []string {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return parts
	}
	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		e.log.Debug("readability failed", "url", articleURL, "error", err)
		return parts
	}
	for _, para := range strings.Split(parsed.TextContent, "\n") {
		para = collapseSpaces(para)
		if runeLen(para) > minPartLength {
			parts = append(parts, para)
		}
		if len(parts) >= maxContentParts {
			break
		}
	}
	return parts
}

func (e *Extractor) placeholder() string {
	if img := e.tables.Common.PlaceholderImage; img != "" {
		return img
	}
	return news.PlaceholderImage
}
