package scraper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/news"
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

func newExtractor(pages pageMap) *Extractor {
	return New(Config{Listing: pages, Articles: pages, Now: fixedNow})
}

const listingPage = `<html><body>
<nav><a href="/politica/menu-di-navigazione-principale-del-sito.html">Navigazione principale del sito di notizie</a></nav>
<div class="story">
  <h2><a href="/politica/governo-approva-legge-bilancio-2026.html">Il governo approva la nuova legge di bilancio</a></h2>
  <p>La manovra introduce nuove misure fiscali per famiglie e imprese nel prossimo anno.</p>
</div>
<div class="story">
  <h3><a href="https://news.example.com/economia/export-record-2026">Nuovo record per le esportazioni italiane</a></h3>
</div>
<div class="story">
  <h3><a href="https://other.example.org/esteri/vertice-internazionale-1234">Vertice internazionale sul clima a Ginevra</a></h3>
  <h3><a href="/docs/rapporto-annuale-sul-lavoro.pdf">Scarica il rapporto annuale sul lavoro</a></h3>
  <h3><a href="/sport/calcio">Tutte le notizie di calcio della giornata</a></h3>
  <h3><a href="/utenti/abbonamento.html">Abbonati ora per leggere senza limiti</a></h3>
  <h3><a href="/breve.html">Troppo corto</a></h3>
</div>
<a href="/politica/governo-approva-legge-bilancio-2026.html">Il governo approva la nuova legge di bilancio</a>
</body></html>`

func TestExtractNews_FiltersLinks(t *testing.T) {
	pages := pageMap{"https://www.news.example.com/": listingPage}
	items := newExtractor(pages).ExtractNews(context.Background(), "https://www.news.example.com/", Options{})

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	first := items[0]
	if first.Link != "https://www.news.example.com/politica/governo-approva-legge-bilancio-2026.html" {
		t.Errorf("link = %q", first.Link)
	}
	if first.SourceDomain != "news.example.com" {
		t.Errorf("domain = %q", first.SourceDomain)
	}
	if !strings.HasPrefix(first.Snippet, "La manovra introduce") {
		t.Errorf("snippet = %q", first.Snippet)
	}
	if items[1].Title != "Nuovo record per le esportazioni italiane" {
		t.Errorf("second title = %q", items[1].Title)
	}
}

func TestExtractNews_BaseDomainOverride(t *testing.T) {
	pages := pageMap{"https://www.news.example.com/": listingPage}
	items := newExtractor(pages).ExtractNews(context.Background(), "https://www.news.example.com/",
		Options{BaseDomain: "other.example.org/esteri"})

	if len(items) != 1 || items[0].SourceDomain != "other.example.org" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestExtractNews_UnreachablePage(t *testing.T) {
	items := newExtractor(pageMap{}).ExtractNews(context.Background(), "https://missing.example.com/", Options{})
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
}

func TestExtractNews_CapsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < MaxItemsPerPage+10; i++ {
		fmt.Fprintf(&b, `<h2><a href="/n/articolo-numero-%d.html">Notizia numero %d della giornata odierna</a></h2>`, i, i)
	}
	b.WriteString("</body></html>")

	pages := pageMap{"https://site.example.com/": b.String()}
	items := newExtractor(pages).ExtractNews(context.Background(), "https://site.example.com/", Options{})
	if len(items) != MaxItemsPerPage {
		t.Fatalf("expected %d items, got %d", MaxItemsPerPage, len(items))
	}
}

func articlePage(date string, paragraphs int) string {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	b.WriteString(`<meta property="og:title" content="Approvata la riforma delle pensioni">`)
	b.WriteString(`<meta property="og:image" content="https://cdn.example.com/foto.jpg">`)
	b.WriteString(`<meta property="og:description" content="Il parlamento ha approvato la riforma dopo un lungo dibattito.">`)
	if date != "" {
		fmt.Fprintf(&b, `<meta property="article:published_time" content="%s">`, date)
	}
	b.WriteString(`</head><body><header><a href="/">Home</a></header><article>`)
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, `<p>Paragrafo %d della notizia con <strong>dettagli importanti</strong> sulla riforma approvata ieri dal parlamento italiano.</p>`, i)
	}
	b.WriteString(`<p><a href="/politica/altra-notizia-collegata-2026.html">Le reazioni dei sindacati alla riforma</a></p>`)
	b.WriteString(`</article></body></html>`)
	return b.String()
}

func TestExtractNews_CitationPageIncludesItself(t *testing.T) {
	url := "https://www.news.example.com/politica/riforma-pensioni-2026.html"
	pages := pageMap{url: articlePage("2026-01-14T08:00:00Z", 12)}

	items := newExtractor(pages).ExtractNews(context.Background(), url, Options{IsCitation: true})
	if len(items) != 2 {
		t.Fatalf("expected page and one linked item, got %+v", items)
	}
	if items[0].Link != url || items[0].Title != "Approvata la riforma delle pensioni" {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].Title != "Le reazioni dei sindacati alla riforma" {
		t.Errorf("second item = %+v", items[1])
	}
}

func TestExtractNews_CitationPageRejected(t *testing.T) {
	url := "https://www.news.example.com/politica/riforma-pensioni-2026.html"
	tests := []struct {
		name string
		page string
	}{
		{"old", articlePage("2025-11-01T08:00:00Z", 12)},
		{"no date", articlePage("", 12)},
		{"short body", articlePage("2026-01-14T08:00:00Z", 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := newExtractor(pageMap{url: tt.page}).ExtractNews(context.Background(), url, Options{IsCitation: true})
			for _, item := range items {
				if item.Link == url {
					t.Errorf("page itself should not be included: %+v", items)
				}
			}
		})
	}
}

func TestFetchArticle(t *testing.T) {
	url := "https://www.news.example.com/politica/riforma-pensioni-2026.html"
	article := newExtractor(pageMap{url: articlePage("2026-01-14T08:00:00Z", 3)}).FetchArticle(context.Background(), url)

	if article.Title != "Approvata la riforma delle pensioni" || article.Subtitle != article.Title {
		t.Errorf("title = %q subtitle = %q", article.Title, article.Subtitle)
	}
	if article.Image != "https://cdn.example.com/foto.jpg" || !article.HasImage() {
		t.Errorf("image = %q", article.Image)
	}
	if article.PublishedDate != "2026-01-14" {
		t.Errorf("date = %q", article.PublishedDate)
	}
	if article.SourceDomain != "news.example.com" {
		t.Errorf("domain = %q", article.SourceDomain)
	}
	if !article.Extracted || article.ContentTextLength == 0 {
		t.Errorf("expected extracted text, got %+v", article)
	}
	if !strings.Contains(article.Content, "<strong>dettagli importanti</strong>") {
		t.Errorf("bold not preserved: %q", article.Content)
	}
	if !strings.HasPrefix(article.Content, "<p>Il parlamento ha approvato") {
		t.Errorf("description should lead: %q", article.Content)
	}
	if article.TextLength() != article.ContentTextLength {
		t.Errorf("text length = %d", article.TextLength())
	}
}

func TestFetchArticle_TruncatesRawText(t *testing.T) {
	url := "https://www.news.example.com/lungo.html"
	para := "<p>" + strings.Repeat("Una frase lunga del resoconto parlamentare. ", 8) + "</p>"
	page := "<html><body><article>" + strings.Repeat(para, 20) + "</article></body></html>"
	article := newExtractor(pageMap{url: page}).FetchArticle(context.Background(), url)
	if article.ContentTextLength != maxRawContentSize {
		t.Errorf("raw length = %d, want %d", article.ContentTextLength, maxRawContentSize)
	}
}

func TestFetchArticle_Failure(t *testing.T) {
	url := "https://www.news.example.com/missing.html"
	article := newExtractor(pageMap{}).FetchArticle(context.Background(), url)

	if article.Extracted || article.Title != "" || article.Content != "" {
		t.Errorf("expected empty article, got %+v", article)
	}
	if article.Image != news.PlaceholderImage || article.HasImage() {
		t.Errorf("image = %q", article.Image)
	}
	if article.Link != url || article.SourceDomain != "news.example.com" {
		t.Errorf("unexpected defaults %+v", article)
	}
}

func TestFetchArticle_SkipsWrapperDivs(t *testing.T) {
	long := strings.Repeat("Testo lungo del contenuto principale dell'articolo. ", 3)
	page := `<html><body><div class="main-content">
<div><p>Paragrafo dentro un contenitore che supera quaranta caratteri.</p></div>
<div>Breve div</div>
<div>` + long + `</div>
</div></body></html>`
	url := "https://blog.example.com/post.html"
	article := New(Config{Articles: pageMap{url: page}, Listing: pageMap{}, Now: fixedNow}).FetchArticle(context.Background(), url)

	if strings.Count(article.Content, "Paragrafo dentro") != 1 {
		t.Errorf("wrapper div duplicated its paragraph: %q", article.Content)
	}
	if strings.Contains(article.Content, "Breve div") {
		t.Errorf("short div included: %q", article.Content)
	}
	if !strings.Contains(article.Content, "Testo lungo") {
		t.Errorf("long div missing: %q", article.Content)
	}
}

func TestFormatHTML(t *testing.T) {
	got := FormatHTML("Prima frase abbastanza lunga. Seconda **frase** con grassetto finale")
	want := "<p>Prima frase abbastanza lunga.</p>\n<p>Seconda <strong>frase</strong> con grassetto finale.</p>"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
	if got := FormatHTML("Corto."); got != "<p>Corto.</p>" {
		t.Errorf("short text = %q", got)
	}
}

func TestLinkSourceRefs(t *testing.T) {
	sources := []SourceRef{{Link: "https://a.example.com/x", Domain: "a.example.com"}}
	got := LinkSourceRefs("Fatto [1] e altro [2].", sources)
	want := `Fatto <a href="https://a.example.com/x" class="article-source" target="_blank">a.example.com</a> e altro [2].`
	if got != want {
		t.Errorf("got %q", got)
	}
}
