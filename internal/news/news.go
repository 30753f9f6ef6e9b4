package news

import (
	"fmt"
	"strings"
)

// PlaceholderImage marks an article without a usable image.
const PlaceholderImage = "https://via.placeholder.com/300x200?text=No+Image"

// NewsItem is a candidate headline found on a page.
type NewsItem struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	Snippet      string `json:"snippet"`
	SourceDomain string `json:"source_domain"`
}

// Text is the title and snippet joined with a space, as compared by clustering.
func (n NewsItem) Text() string {
	return n.Title + " " + n.Snippet
}

// Cluster is a non-empty group of similar items. The first item is the seed.
type Cluster []NewsItem

// Article is the full content fetched for one link.
type Article struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	Content       string `json:"content"` // HTML paragraphs
	Image         string `json:"image"`
	Link          string `json:"link"`
	PublishedDate string `json:"published_date"`
	SourceDomain  string `json:"source_domain"`
	Author        string `json:"author"`

	// ContentTextLength is the raw text length in runes before HTML formatting.
	// Only meaningful when Extracted is set.
	ContentTextLength int  `json:"content_text_length,omitempty"`
	Extracted         bool `json:"-"`
}

// TextLength is the length used for validation: the raw text length when the page
// was extracted, else the length of whatever content was filled in.
func (a Article) TextLength() int {
	if a.Extracted {
		return a.ContentTextLength
	}
	return len([]rune(a.Content))
}

// HasImage reports whether the article carries a real image.
func (a Article) HasImage() bool {
	return a.Image != "" && !strings.Contains(strings.ToLower(a.Image), "placeholder")
}

// FeedItem is one summarized entry of the generated feed.
type FeedItem struct {
	Title         string             `json:"title"`
	Subtitle      string             `json:"subtitle"`
	Content       string             `json:"content"`
	Image         string             `json:"image"`
	PublishedDate string             `json:"published_date"`
	Author        string             `json:"author"`
	ClusterSize   int                `json:"cluster_size"`
	SourceDomain  []string           `json:"source_domain"`
	Link          []string           `json:"link"`
	IABCode       map[string]float64 `json:"iab_code"` // relevance score per category code
	Products      []string           `json:"products"`
	Brands        []string           `json:"brands"`
}

// DiscardReason explains why a fetched article was not used.
type DiscardReason string

const (
	DiscardLength  DiscardReason = "length"
	DiscardNoDate  DiscardReason = "no_date"
	DiscardOldDate DiscardReason = "old_date"
)

// DiscardRecord is a sample of a rejected article.
type DiscardRecord struct {
	Reason DiscardReason `json:"reason"`
	Title  string        `json:"title"`
	Domain string        `json:"domain"`
}

// DedupByLink keeps the first item for each link, dropping items without one.
func DedupByLink(items []NewsItem) []NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]NewsItem, 0, len(items))
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}
		out = append(out, item)
	}
	return out
}

// DedupStrings keeps the first occurrence of every string.
func DedupStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MatchesDomain reports whether either domain contains the other.
func MatchesDomain(domain, site string) bool {
	if domain == "" || site == "" {
		return false
	}
	return strings.Contains(domain, site) || strings.Contains(site, domain)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// FormatFeedItem renders a one-entry console summary.
func FormatFeedItem(i int, item FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. %s\n", i, item.Title)
	fmt.Fprintf(&b, "   sources: %s (%d articles)\n", strings.Join(item.SourceDomain, ", "), item.ClusterSize)
	if len(item.Brands) > 0 {
		fmt.Fprintf(&b, "   brands: %s\n", strings.Join(item.Brands, ", "))
	}
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return b.String()
}
