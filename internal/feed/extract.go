package feed

import (
	"context"

	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/scraper"
	"github.com/deusflow/feedgen/internal/urlutil"
)

// extractStep scans the first citation pages. A page that yields few headlines is
// complemented by its parent section page.
func (g *Generator) extractStep(ctx context.Context, rc *RunContext, urls []string) []news.NewsItem {
	if len(urls) > maxCitationPages {
		urls = urls[:maxCitationPages]
	}
	fresh := rc.MustBeFresh()

	extractions := make([][]ExtractionDiag, len(urls))
	_ = forEach(ctx, len(urls), g.cfg.Concurrency, func(ctx context.Context, i int) error {
		url := urls[i]
		items := rc.extractor.ExtractNews(ctx, url, scraper.Options{MustBeFresh: fresh, IsCitation: true})
		found := []ExtractionDiag{{URL: url, Items: items}}

		if len(items) < minItemsPerPage {
			if parent := urlutil.ParentURL(url); parent != "" && parent != url {
				existing := make(map[string]bool, len(items))
				for _, item := range items {
					existing[item.Link] = true
				}
				var added []news.NewsItem
				for _, item := range rc.extractor.ExtractNews(ctx, parent, scraper.Options{MustBeFresh: fresh}) {
					if !existing[item.Link] {
						added = append(added, item)
					}
				}
				if len(added) > 0 {
					found = append(found, ExtractionDiag{URL: parent, Parent: true, Items: added})
				}
			}
		}
		extractions[i] = found
		return nil
	})

	var raw []news.NewsItem
	for i, found := range extractions {
		for _, e := range found {
			rc.Log.Debug("extracted news", "url", e.URL, "parent", e.Parent, "items", len(e.Items), "page", i+1)
			raw = append(raw, e.Items...)
			rc.Diag.Extractions = append(rc.Diag.Extractions, e)
		}
	}

	items := news.DedupByLink(raw)
	rc.Diag.RawItems = len(raw)
	rc.Diag.Items = len(items)
	rc.Log.Info("news items extracted", "raw", len(raw), "deduplicated", len(items))
	return items
}
