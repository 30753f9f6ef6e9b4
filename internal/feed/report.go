package feed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/deusflow/feedgen/internal/news"
)

const (
	reportItemsPerSource = 20
	reportClusters       = 15
)

// RenderReport renders the diagnostics of a run as a markdown debug log.
func RenderReport(d *Diagnostics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Debug Log: Cluster %d - %s\n", d.ClusterID, d.ClusterName)
	fmt.Fprintf(&b, "**Description:** %s\n\n", d.ClusterDescription)
	fmt.Fprintf(&b, "**Run:** `%s` | **Locale:** %s | **Geo:** %s\n\n", d.RunID, d.Locale, d.Geo)
	fmt.Fprintf(&b, "**Generated:** %s\n\n---\n", d.Started.Format("2006-01-02 15:04:05"))

	for _, n := range d.Notes {
		fmt.Fprintf(&b, "\n> %s\n", n)
	}

	b.WriteString("\n## 1. Search Query\n\n")
	var removed int
	for _, s := range d.Searches {
		kind := "today"
		if s.Historical {
			kind = "historical"
		}
		fmt.Fprintf(&b, "### %s (%s)\n\n", s.IABCode, kind)
		if s.Result == nil {
			continue
		}
		if len(s.Result.Keywords) > 0 {
			fmt.Fprintf(&b, "**Keywords used:** `%s`\n\n", strings.Join(s.Result.Keywords, ", "))
		}
		fmt.Fprintf(&b, "**Query:**\n```\n%s\n```\n\n", s.Result.Query)
		fmt.Fprintf(&b, "**System Prompt:**\n```\n%s\n```\n\n", s.Result.SystemPrompt)
		removed += len(s.Result.Removed)
	}

	b.WriteString("\n## 2. Citations (Source URLs)\n\n")
	fmt.Fprintf(&b, "**Total:** %d URLs (after filtering, %d before deduplication)\n\n", len(d.Citations), d.RawCitations)
	for i, u := range d.Citations {
		fmt.Fprintf(&b, "%d. %s\n", i+1, u)
	}
	if removed > 0 {
		fmt.Fprintf(&b, "\n**Filtered out:** %d video/live/blocked URLs\n\n", removed)
		for _, s := range d.Searches {
			if s.Result == nil {
				continue
			}
			for _, r := range s.Result.Removed {
				fmt.Fprintf(&b, "- ~~%s~~ (*%s*)\n", r.URL, r.Reason)
			}
		}
	}
	if d.TopSourcesDropped > 0 {
		fmt.Fprintf(&b, "\n**Not a top source:** %d citations dropped\n", d.TopSourcesDropped)
	}

	b.WriteString("\n## 3. News Extraction by Source\n")
	for _, e := range d.Extractions {
		label := e.URL
		if e.Parent {
			label += " (parent)"
		}
		fmt.Fprintf(&b, "\n### Source: `%s`\n**Extracted:** %d items\n\n", news.Truncate(label, 80), len(e.Items))
		if len(e.Items) == 0 {
			continue
		}
		b.WriteString("| # | Title | Domain |\n|---|-------|--------|\n")
		for i, item := range e.Items {
			if i == reportItemsPerSource {
				fmt.Fprintf(&b, "| ... | *(%d more items)* | |\n", len(e.Items)-reportItemsPerSource)
				break
			}
			fmt.Fprintf(&b, "| %d | %s... | %s |\n", i+1, cell(item.Title, 60), item.SourceDomain)
		}
	}

	b.WriteString("\n## 4. Clustering Results\n\n")
	fmt.Fprintf(&b, "- **Total extracted:** %d items\n", d.Items)
	fmt.Fprintf(&b, "- **After filtering:** %d valid items\n", d.ValidItems)
	fmt.Fprintf(&b, "- **Clusters created:** %d\n\n", len(d.Clusters))
	if len(d.Clusters) > 0 {
		b.WriteString("| Cluster | Size | Representative Title | Domains |\n|---------|------|---------------------|---------|\n")
		for i, c := range d.Clusters {
			if i == reportClusters {
				fmt.Fprintf(&b, "| ... | | *(%d more clusters)* | |\n", len(d.Clusters)-reportClusters)
				break
			}
			fmt.Fprintf(&b, "| %d | %d | %s... | %s |\n", i+1, len(c), cell(c[0].Title, 50), clusterDomains(c))
		}
	}

	b.WriteString("\n## 5. Source Selection & AI Summary\n\n")
	for i, s := range d.Selections {
		status := "no valid articles"
		switch {
		case s.Summarized:
			status = "summary generated"
		case s.Validated > 0:
			status = "summary failed"
		}
		fmt.Fprintf(&b, "- **[%d] pass %d:** %s (%d candidates, %d validated) - %s\n",
			i+1, s.Pass, cell(s.Topic, 50), s.Candidates, s.Validated, status)
	}
	fmt.Fprintf(&b, "\n**Validation discards:** length=%d, no_date=%d, old_date=%d\n",
		d.Discards[news.DiscardLength], d.Discards[news.DiscardNoDate], d.Discards[news.DiscardOldDate])
	for _, s := range d.DiscardSamples {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Reason, cell(s.Title, 60), s.Domain)
	}
	if d.SummaryFailures > 0 {
		fmt.Fprintf(&b, "\n**Summary failures:** %d\n", d.SummaryFailures)
	}

	b.WriteString("\n## 6. Final Feed Summary\n\n")
	fmt.Fprintf(&b, "**Total articles:** %d\n\n", len(d.Feed))
	if len(d.Feed) > 0 {
		b.WriteString("| # | Title | Domain | Cluster Size | Content Len | IAB Code | Products | Brands |\n")
		b.WriteString("|---|-------|--------|--------------|-------------|----------|----------|--------|\n")
		for i, item := range d.Feed {
			fmt.Fprintf(&b, "| %d | %s... | %s | %d | %d | %s | %s | %s |\n",
				i+1, cell(item.Title, 40), strings.Join(item.SourceDomain, ", "), item.ClusterSize,
				len([]rune(item.Content)), scoreCodes(item.IABCode),
				strings.Join(item.Products, ", "), strings.Join(item.Brands, ", "))
		}
	}
	fmt.Fprintf(&b, "\n**Elapsed time:** %.1f seconds\n", d.Elapsed.Seconds())
	return b.String()
}

func cell(s string, n int) string {
	return strings.ReplaceAll(news.Truncate(s, n), "|", `\|`)
}

func clusterDomains(c news.Cluster) string {
	var domains []string
	for _, item := range c {
		if !slices.Contains(domains, item.SourceDomain) {
			domains = append(domains, item.SourceDomain)
		}
	}
	if len(domains) <= 3 {
		return strings.Join(domains, ", ")
	}
	return fmt.Sprintf("%s (+%d)", strings.Join(domains[:3], ", "), len(domains)-3)
}

func scoreCodes(scores map[string]float64) string {
	codes := make([]string, 0, len(scores))
	for code := range scores {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return strings.Join(codes, ", ")
}
