// Package fetcher performs plain page GETs. A fetch never fails with an error return:
// the outcome is a Page whose OK method tells the caller whether there is content.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 5 << 20

	// BrowserUserAgent is sent when scanning pages for headlines.
	BrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	// BotUserAgent is sent when fetching full article bodies.
	BotUserAgent = "Mozilla/5.0 (compatible; NewsFeedBot/1.0)"
)

// Page is the result of one fetch. The zero value means "no content".
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

// OK reports whether the page was fetched with status 200.
func (p Page) OK() bool {
	return p.Err == nil && p.StatusCode == http.StatusOK
}

// Source is anything that turns a URL into a Page.
type Source interface {
	Fetch(ctx context.Context, url string) Page
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	maxBytes  int64
}

type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
}

func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:    opts.HTTPClient,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.userAgent == "" {
		f.userAgent = BrowserUserAgent
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, url string) Page {
	page := Page{URL: url}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		page.Err = fmt.Errorf("build request: %w", err)
		return page
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		page.Err = err
		return page
	}
	defer resp.Body.Close()

	page.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		page.Err = fmt.Errorf("HTTP error: %d", resp.StatusCode)
		return page
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		page.Err = fmt.Errorf("read body: %w", err)
		return page
	}
	page.Body = body
	return page
}

// Memo shares fetches of the same URL for the lifetime of one pipeline run.
// Concurrent callers of an in-flight URL wait for the single request.
type Memo struct {
	next  Source
	group singleflight.Group

	mu    sync.Mutex
	pages map[string]Page
}

func NewMemo(next Source) *Memo {
	return &Memo{next: next, pages: make(map[string]Page)}
}

func (m *Memo) Fetch(ctx context.Context, url string) Page {
	m.mu.Lock()
	if page, ok := m.pages[url]; ok {
		m.mu.Unlock()
		return page
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do(url, func() (any, error) {
		m.mu.Lock()
		if page, ok := m.pages[url]; ok {
			m.mu.Unlock()
			return page, nil
		}
		m.mu.Unlock()

		page := m.next.Fetch(ctx, url)
		// cancelled fetches are not remembered
		if ctx.Err() == nil {
			m.mu.Lock()
			m.pages[url] = page
			m.mu.Unlock()
		}
		return page, nil
	})
	return v.(Page)
}

// Len returns the number of remembered pages.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}
