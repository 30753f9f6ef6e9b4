package scraper

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

var (
	// citation pages: containers whose text length proves a real article
	articleBodyClass = regexp.MustCompile(`(?i)article-body|article-content|entry-content|post-content`)
	// full fetch: containers whose paragraphs become the article text
	contentClass = regexp.MustCompile(`(?i)article-body|content|post`)
	noiseClass   = regexp.MustCompile(`(?i)sidebar|menu|footer|nav|social|ad-|widget|header`)
	snippetClass = regexp.MustCompile(`(?i)summary|snippet|desc`)
)

const noiseTags = "nav, footer, aside, form, header"

// citationDateProbes are tried in order; the first element found with a value of at
// least ten characters supplies the date.
var citationDateProbes = []string{
	`meta[property="article:published_time"]`,
	`meta[property="og:article:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="publishdate"]`,
	`meta[name="date"]`,
	`meta[itemprop="datePublished"]`,
	`time[itemprop="datePublished"]`,
	`time`,
}

var articleDateProbes = []string{
	`meta[property="article:published_time"]`,
	`time`,
}

// probeTitle reads og:title, else the first h1. A present og:title meta wins even when empty.
func probeTitle(doc *goquery.Document) string {
	if meta := doc.Find(`meta[property="og:title"]`).First(); meta.Length() > 0 {
		return meta.AttrOr("content", "")
	}
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		return strippedText(h1)
	}
	return ""
}

// probeDate returns the first ten characters of the first usable date value.
func probeDate(doc *goquery.Document, probes []string) string {
	for _, selector := range probes {
		elem := doc.Find(selector).First()
		if elem.Length() == 0 {
			continue
		}
		value := dateValue(elem)
		if runeLen(value) >= 10 {
			return truncate(value, 10)
		}
	}
	return ""
}

func dateValue(elem *goquery.Selection) string {
	if v := elem.AttrOr("content", ""); v != "" {
		return v
	}
	if v := elem.AttrOr("datetime", ""); v != "" {
		return v
	}
	return strippedText(elem)
}

// metaContent returns the content of the first meta with the given property.
func metaContent(doc *goquery.Document, property string) string {
	return doc.Find(`meta[property="` + property + `"]`).First().AttrOr("content", "")
}

// removeNoise deletes navigation and chrome elements in place.
func removeNoise(doc *goquery.Document) {
	doc.Find(noiseTags).Remove()
	doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return hasClass(s, noiseClass)
	}).Remove()
}
