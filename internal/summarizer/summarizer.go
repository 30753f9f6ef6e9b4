// Package summarizer turns a validated article set into one feed summary. Backends
// share the request and response contract of the feed-summary service.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/scraper"
)

const (
	ServiceName     = "feedsummary"
	ServiceVersion  = "1.0"
	DefaultModel    = "openai/gpt-oss-120b"
	DefaultLanguage = "it"
	CharSize        = 2000
	MaxTokens       = CharSize * 13 / 10
	Temperature     = 0.1
)

// Content is one numbered source text.
type Content struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

type Request struct {
	ClusterID int       `json:"cluster_id"`
	Language  string    `json:"language"`
	Contents  []Content `json:"contents"`
	Model     string    `json:"model,omitempty"`

	// Links identify the source articles for caching; they are not sent.
	Links []string `json:"-"`
}

// UnmarshalJSON accepts "articles" as an alias of "contents".
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var aux struct {
		plain
		Articles []Content `json:"articles"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Request(aux.plain)
	if r.Contents == nil {
		r.Contents = aux.Articles
	}
	return nil
}

// NewRequest numbers the articles from 1 in order.
func NewRequest(clusterID int, locale string, articles []news.Article, model string) Request {
	req := Request{
		ClusterID: clusterID,
		Language:  strings.ToLower(locale),
		Model:     model,
		Contents:  make([]Content, len(articles)),
		Links:     make([]string, len(articles)),
	}
	for i, a := range articles {
		req.Contents[i] = Content{ID: i + 1, Content: a.Content, Source: a.SourceDomain}
		req.Links[i] = a.Link
	}
	return req
}

// Meta describes the call that produced a summary.
type Meta struct {
	LLM          string  `json:"llm"`
	Service      string  `json:"service"`
	Language     string  `json:"language"`
	Version      string  `json:"version"`
	Output       *string `json:"output"`
	OutputType   *string `json:"output_type"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	MaxTokens    int     `json:"max_tokens"`
	Elapsed      int64   `json:"elapsed"`
	StopReason   string  `json:"stop_reason"`
	Cost         any     `json:"cost"`
}

type Summary struct {
	Meta     *Meta    `json:"meta,omitempty"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Summary  string   `json:"summary"`
	Products []string `json:"products"`
	Brands   []string `json:"brands"`
	Keywords Scores   `json:"keywords"`
}

// Scores maps a category code to its relevance. Numeric strings are accepted.
type Scores map[string]float64

func (s *Scores) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("keywords: %w", err)
	}
	out := make(Scores, len(raw))
	for code, v := range raw {
		var f float64
		if err := json.Unmarshal(v, &f); err == nil {
			out[code] = f
			continue
		}
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			return fmt.Errorf("keywords %s: not a number", code)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("keywords %s: %w", code, err)
		}
		out[code] = f
	}
	*s = out
	return nil
}

type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*Summary, error)
}

// FeedItem builds the feed entry for a summary of articles. [n] citations in the
// summary become links to the n-th article.
func FeedItem(s *Summary, articles []news.Article, image, today string) news.FeedItem {
	if image == "" {
		image = news.PlaceholderImage
	}
	item := news.FeedItem{
		Title:         s.Title,
		Subtitle:      s.Subtitle,
		Content:       s.Summary,
		Image:         image,
		PublishedDate: today,
		ClusterSize:   len(articles),
		SourceDomain:  make([]string, len(articles)),
		Link:          make([]string, len(articles)),
		IABCode:       s.Keywords,
		Products:      nonNil(s.Products),
		Brands:        nonNil(s.Brands),
	}
	refs := make([]scraper.SourceRef, len(articles))
	for i, a := range articles {
		item.SourceDomain[i] = a.SourceDomain
		item.Link[i] = a.Link
		refs[i] = scraper.SourceRef{Link: a.Link, Domain: a.SourceDomain}
	}
	item.Content = scraper.LinkSourceRefs(item.Content, refs)
	return item
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
