package feed

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/feedgen/internal/apiclient"
	"github.com/deusflow/feedgen/internal/clustering"
	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/metrics"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/recency"
	"github.com/deusflow/feedgen/internal/summarizer"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

const (
	linkA = "https://a.it/economia/governo-manovra-2026.html"
	linkB = "https://b.it/economia/manovra-finanziaria-testo.html"
	linkC = "https://c.it/sport/pogacar-vince-tappa-alpina.html"
	pageC = "https://c.it/sport/"
)

type pageMap map[string]string

func (p pageMap) Fetch(_ context.Context, url string) fetcher.Page {
	body, ok := p[url]
	if !ok {
		return fetcher.Page{URL: url, StatusCode: 404, Err: fmt.Errorf("HTTP error: 404")}
	}
	return fetcher.Page{URL: url, StatusCode: 200, Body: []byte(body)}
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC)
}

// articleHTML builds an article page whose body is roughly 105 runes per paragraph.
func articleHTML(title, image, date string, paragraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	fmt.Fprintf(&b, `<meta property="og:title" content="%s">`, title)
	if image != "" {
		fmt.Fprintf(&b, `<meta property="og:image" content="%s">`, image)
	}
	fmt.Fprintf(&b, `<meta property="article:published_time" content="%s">`, date)
	b.WriteString(`</head><body><article>`)
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, `<p>Paragrafo %02d della notizia con dettagli importanti sulla vicenda seguita da vicino dai lettori italiani.</p>`, i)
	}
	b.WriteString(`</article></body></html>`)
	return b.String()
}

const sportListing = `<html><body>
<div class="story">
  <h2><a href="/sport/pogacar-vince-tappa-alpina.html">Ciclismo: Pogacar vince tappa alpina spettacolare</a></h2>
</div>
</body></html>`

func newsPages() pageMap {
	return pageMap{
		linkA: articleHTML("Governo approva manovra finanziaria definitiva", "https://cdn.a.it/manovra.jpg", "2026-01-14T08:00:00Z", 12),
		linkB: articleHTML("Manovra finanziaria, governo approva testo definitivo", "", "2026-01-13T18:00:00Z", 12),
		pageC: sportListing,
		linkC: articleHTML("Pogacar vince la tappa alpina", "", "2026-01-14T09:00:00Z", 6),
	}
}

type fakeChat struct {
	mu    sync.Mutex
	calls int
	links []string
	err   error
}

func (f *fakeChat) ChatCompletion(_ context.Context, _ apiclient.ChatRequest) (*apiclient.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &apiclient.ChatResponse{
		Choices:   []apiclient.Choice{{Message: apiclient.Message{Content: "ok"}}},
		Citations: f.links,
	}, nil
}

type fakeSummarizer struct {
	mu   sync.Mutex
	reqs []summarizer.Request
	err  error
}

func (f *fakeSummarizer) Summarize(_ context.Context, req summarizer.Request) (*summarizer.Summary, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &summarizer.Summary{
		Title:    "Sintesi: " + req.Contents[0].Source,
		Subtitle: "Sottotitolo",
		Summary:  "Testo della sintesi",
		Keywords: summarizer.Scores{"381": 90},
	}, nil
}

func (f *fakeSummarizer) requests() []summarizer.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]summarizer.Request(nil), f.reqs...)
}

type fakeCatalog struct {
	tax     *taxonomy.Taxonomy
	sources *taxonomy.TopSources
	err     error
}

func (f fakeCatalog) Load(string) (*taxonomy.Taxonomy, *taxonomy.TopSources, error) {
	return f.tax, f.sources, f.err
}

func testCatalog() fakeCatalog {
	return fakeCatalog{
		tax: taxonomy.New(taxonomy.Cluster{
			ID:          7,
			Name:        "Attualità",
			Description: "Notizie del giorno",
			Categories: []taxonomy.Category{
				{IABCode: "381", Description: "Politica", Keywords: []string{"governo", "manovra"}},
			},
		}),
		sources: taxonomy.NewTopSources(nil, nil),
	}
}

type fixture struct {
	gen     *Generator
	chat    *fakeChat
	sum     *fakeSummarizer
	metrics *metrics.Metrics
}

func newFixture() *fixture {
	pages := newsPages()
	f := &fixture{
		chat:    &fakeChat{links: []string{linkA, linkB, pageC}},
		sum:     &fakeSummarizer{},
		metrics: metrics.New(),
	}
	f.gen = New(Config{
		Catalog:    testCatalog(),
		Search:     f.chat,
		Summarizer: f.sum,
		Listing:    pages,
		Articles:   pages,
		Metrics:    f.metrics,
		Now:        fixedNow,
	})
	return f
}

func TestGenerate_EndToEnd(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7, Locale: "it"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// One search for the category plus one historical search.
	if f.chat.calls != 2 {
		t.Errorf("search calls = %d, want 2", f.chat.calls)
	}
	if len(res.Clusters) != 2 || len(res.Clusters[0]) != 2 || len(res.Clusters[1]) != 1 {
		t.Fatalf("clusters = %+v", res.Clusters)
	}

	if len(res.Feed) != 1 {
		t.Fatalf("expected one feed item, got %+v", res.Feed)
	}
	item := res.Feed[0]
	if item.ClusterSize != 2 {
		t.Errorf("cluster size = %d", item.ClusterSize)
	}
	if !reflect.DeepEqual(item.Link, []string{linkA, linkB}) {
		t.Errorf("links = %v", item.Link)
	}
	if !reflect.DeepEqual(item.SourceDomain, []string{"a.it", "b.it"}) {
		t.Errorf("domains = %v", item.SourceDomain)
	}
	if item.Image != "https://cdn.a.it/manovra.jpg" {
		t.Errorf("image = %q", item.Image)
	}
	if item.PublishedDate != "2026-01-14" {
		t.Errorf("published = %q", item.PublishedDate)
	}
	if item.IABCode["381"] != 90 {
		t.Errorf("iab = %v", item.IABCode)
	}

	reqs := f.sum.requests()
	if len(reqs) != 1 {
		t.Fatalf("summary requests = %d", len(reqs))
	}
	if reqs[0].ClusterID != 7 || reqs[0].Language != "it" {
		t.Errorf("request = %+v", reqs[0])
	}
	for _, c := range reqs[0].Contents {
		if c.Source == "c.it" {
			t.Errorf("short article was summarized: %+v", c)
		}
	}

	d := res.Diagnostics
	if d == nil {
		t.Fatal("missing diagnostics")
	}
	if d.Items != 3 || d.ValidItems != 3 {
		t.Errorf("items = %d valid = %d", d.Items, d.ValidItems)
	}
	if d.Discards[news.DiscardLength] != 1 || d.Discarded() != 1 {
		t.Errorf("discards = %v", d.Discards)
	}
	if len(d.DiscardSamples) != 1 || d.DiscardSamples[0].Domain != "c.it" {
		t.Errorf("samples = %+v", d.DiscardSamples)
	}
	if len(d.Selections) != 2 || d.Selections[0].Pass != 1 || d.Selections[1].Pass != 2 {
		t.Errorf("selections = %+v", d.Selections)
	}
	if len(d.Feed) != 1 {
		t.Errorf("diagnostics feed = %d", len(d.Feed))
	}

	stats := f.metrics.Stats()
	if stats.FeedItems != 1 || stats.ArticlesDiscarded != 1 || stats.RunsStarted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGenerate_MaxResults(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7, MaxResults: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Feed) != 1 {
		t.Fatalf("feed = %d", len(res.Feed))
	}
	if n := len(res.Diagnostics.Selections); n != 1 {
		t.Errorf("singletons should not be tried once the feed is full, selections = %d", n)
	}
}

func TestGenerate_LowerThresholdKeepsShortArticle(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7, MinLenSingle: 300})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Feed) != 2 {
		t.Fatalf("feed = %+v", res.Feed)
	}
	if res.Feed[1].ClusterSize != 1 || res.Feed[1].Link[0] != linkC {
		t.Errorf("second item = %+v", res.Feed[1])
	}
}

func TestGenerate_UpToStep(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7, UpToStep: StepCluster})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.StoppedAt != StepCluster || len(res.Feed) != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Diagnostics.Clusters) != 2 {
		t.Errorf("clusters recorded = %d", len(res.Diagnostics.Clusters))
	}
	if len(f.sum.requests()) != 0 {
		t.Error("summarizer called after stop")
	}

	res, err = newFixture().gen.Generate(context.Background(), Request{ClusterID: 7, UpToStep: StepSearch})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.StoppedAt != StepSearch || len(res.Diagnostics.Extractions) != 0 {
		t.Errorf("search stop = %+v", res.Diagnostics)
	}
}

func TestGenerate_UnknownCluster(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 99})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Feed == nil || len(res.Feed) != 0 {
		t.Errorf("feed = %#v", res.Feed)
	}
	if f.chat.calls != 0 {
		t.Errorf("search calls = %d", f.chat.calls)
	}
}

func TestGenerate_SearchErrorFailsRun(t *testing.T) {
	f := newFixture()
	boom := errors.New("upstream down")
	f.chat.err = boom
	if _, err := f.gen.Generate(context.Background(), Request{ClusterID: 7}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if f.metrics.Stats().LastError == "" {
		t.Error("error not recorded in metrics")
	}
}

func TestGenerate_CatalogError(t *testing.T) {
	cat := testCatalog()
	cat.err = errors.New("missing file")
	gen := New(Config{Catalog: cat, Search: &fakeChat{}, Summarizer: &fakeSummarizer{}, Now: fixedNow})
	if _, err := gen.Generate(context.Background(), Request{ClusterID: 7}); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerate_SummaryFailureIsSoft(t *testing.T) {
	f := newFixture()
	f.sum.err = errors.New("model overloaded")
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7, MinLenSingle: 300})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Feed) != 0 {
		t.Errorf("feed = %d", len(res.Feed))
	}
	if res.Diagnostics.SummaryFailures != 2 || f.metrics.Stats().SummaryFailures != 2 {
		t.Errorf("failures = %d", res.Diagnostics.SummaryFailures)
	}
}

func TestRequest_Defaults(t *testing.T) {
	r := Request{ClusterID: 1, Locale: "en"}.withDefaults()
	if r.Locale != "EN" || r.Geo != "EN" || r.MaxResults != DefaultMaxResults ||
		r.MinLenMulti != DefaultMinLength || r.MinLenSingle != DefaultMinLength {
		t.Errorf("defaults = %+v", r)
	}
}

func TestValidate_Order(t *testing.T) {
	rc := &RunContext{now: fixedNow, recency: recency.NewChecker(nil, fixedNow)}
	headline := news.NewsItem{Title: "Titolo", Link: "https://a.it/x.html", SourceDomain: "a.it"}

	short := news.Article{Extracted: true, ContentTextLength: 800, Link: headline.Link}
	if _, reason, ok := rc.validate(headline, short, 1000); ok || reason != news.DiscardLength {
		t.Errorf("short: %v %v", reason, ok)
	}
	undated := news.Article{Extracted: true, ContentTextLength: 1200}
	if _, reason, ok := rc.validate(headline, undated, 1000); ok || reason != news.DiscardNoDate {
		t.Errorf("undated: %v %v", reason, ok)
	}
	old := news.Article{Extracted: true, ContentTextLength: 1200, PublishedDate: "2025-11-01"}
	if _, reason, ok := rc.validate(headline, old, 1000); ok || reason != news.DiscardOldDate {
		t.Errorf("old: %v %v", reason, ok)
	}
	art, _, ok := rc.validate(headline, news.Article{Extracted: true, ContentTextLength: 1200, PublishedDate: "2026-01-13"}, 1000)
	if !ok || art.Title != "Titolo" {
		t.Errorf("valid: %+v %v", art, ok)
	}
}

func TestByPriority(t *testing.T) {
	cluster := news.Cluster{
		{Title: "1", SourceDomain: "x.it"},
		{Title: "2", SourceDomain: "www.ansa.it"},
		{Title: "3", SourceDomain: "y.it"},
		{Title: "4", SourceDomain: "ilsole24ore.com"},
	}
	got := byPriority(cluster, []string{"ansa.it", "ilsole24ore.com"})
	var order []string
	for _, m := range got {
		order = append(order, m.Title)
	}
	if want := []string{"2", "4", "1", "3"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if cluster[0].Title != "1" {
		t.Error("input reordered")
	}
}

func TestEnrich(t *testing.T) {
	rc := &RunContext{clusterer: clustering.New(nil), Log: logger.Logger}
	single := []news.Cluster{
		{{Title: "Pogacar vince tappa alpina spettacolare", Link: "https://a.it/1"}},
		{{Title: "Pogacar domina tappa alpina Dolomiti", Link: "https://b.it/2"}},
		{{Title: "Borsa Milano chiude rialzo netto", Link: "https://c.it/3"}},
	}
	req := Request{MinLenMulti: 1000, MinLenSingle: 600}

	set := rc.enrich(single, 0, req)
	if len(set.members) != 2 || set.members[1].Link != "https://b.it/2" || set.minLen != 1000 {
		t.Errorf("enriched = %+v", set)
	}
	set = rc.enrich(single, 2, req)
	if len(set.members) != 1 || set.minLen != 600 || set.pass != 2 {
		t.Errorf("alone = %+v", set)
	}
}

func TestRenderReport(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), Request{ClusterID: 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	report := RenderReport(res.Diagnostics)
	for _, want := range []string{
		"# Debug Log: Cluster 7 - Attualità",
		"## 1. Search Query",
		"## 2. Citations (Source URLs)",
		"## 3. News Extraction by Source",
		"## 4. Clustering Results",
		"## 5. Source Selection & AI Summary",
		"## 6. Final Feed Summary",
		"length=1, no_date=0, old_date=0",
		"**Total articles:** 1",
		linkA,
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

type feedList map[string][]string

func (f feedList) For(code string) []string { return f[code] }

func TestRSSFeeds_MergesExtraFeeds(t *testing.T) {
	g := New(Config{ExtraFeeds: feedList{"381": {"https://x.it/rss", "https://y.it/rss"}}})
	rc := &RunContext{Sources: taxonomy.NewTopSources([]taxonomy.SourceCategory{
		{IABCode: "381", RSSFeeds: []string{"https://y.it/rss"}},
	}, nil)}

	got := g.rssFeeds(rc, "381")
	if want := []string{"https://y.it/rss", "https://x.it/rss"}; !reflect.DeepEqual(got, want) {
		t.Errorf("feeds = %v, want %v", got, want)
	}
	if got := New(Config{}).rssFeeds(rc, "999"); len(got) != 0 {
		t.Errorf("unknown code feeds = %v", got)
	}
}
