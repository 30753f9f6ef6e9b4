package feed

import (
	"context"
	"fmt"
	"slices"

	"github.com/deusflow/feedgen/internal/citations"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

type searchJob struct {
	category   int
	historical bool
	req        citations.Request
}

// searchStep runs the category searches, a historical search per category unless the
// cluster must be fresh, then applies top-sources restrictions and merges the
// citations in category order.
func (g *Generator) searchStep(ctx context.Context, rc *RunContext, maxResults int) ([]string, error) {
	cats := rc.Cluster.Categories
	if len(cats) == 0 {
		return nil, nil
	}
	perCategory := maxResults/len(cats) + 1

	var jobs []searchJob
	for i, cat := range cats {
		jobs = append(jobs, searchJob{category: i, req: g.searchRequest(rc, cat, cat.Description, perCategory)})
		if !rc.MustBeFresh() {
			desc := rc.Tables.HistoricalQuery(cat.Description)
			jobs = append(jobs, searchJob{category: i, historical: true, req: g.searchRequest(rc, cat, desc, historicalResults)})
		}
	}

	results := make([]*citations.Result, len(jobs))
	err := forEach(ctx, len(jobs), g.cfg.Concurrency, func(ctx context.Context, i int) error {
		res, err := rc.search.Search(ctx, rc.Log, jobs[i].req)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	perCat := make([][]string, len(cats))
	for i, job := range jobs {
		res := results[i]
		perCat[job.category] = append(perCat[job.category], res.Citations...)
		rc.Diag.Searches = append(rc.Diag.Searches, SearchDiag{
			IABCode:    job.req.IABCode,
			Historical: job.historical,
			Result:     res,
		})
		g.cfg.Metrics.AddCitationsRemoved(len(res.Removed))
	}

	var all []string
	for i, cat := range cats {
		catCitations := perCat[i]
		if cat.TopSourcesOnly {
			var dropped int
			catCitations, dropped = citations.RestrictToSites(catCitations, rc.Sources.Sites(cat.IABCode))
			if dropped > 0 {
				rc.Log.Warn("filtered out non-top-source citations", "iab_code", cat.IABCode, "count", dropped)
			}
			rc.Diag.TopSourcesDropped += dropped
		}
		rc.Log.Info("category citations", "iab_code", cat.IABCode, "count", len(catCitations))
		all = append(all, catCitations...)
	}

	merged := news.DedupStrings(all)
	rc.Diag.RawCitations = len(all)
	rc.Diag.Citations = merged
	rc.Log.Info("citations after deduplication", "count", len(merged), "raw", len(all))
	return merged, nil
}

func (g *Generator) searchRequest(rc *RunContext, cat taxonomy.Category, description string, maxResults int) citations.Request {
	return citations.Request{
		Locale:         rc.Locale,
		IABCode:        cat.IABCode,
		Description:    description,
		Keywords:       rc.Taxonomy.Keywords(cat.IABCode),
		PreferredSites: rc.Sources.Sites(cat.IABCode),
		RSSFeeds:       g.rssFeeds(rc, cat.IABCode),
		BlockedDomains: rc.blockedDomains(),
		MaxResults:     maxResults,
	}
}

func (rc *RunContext) blockedDomains() []string {
	if rc.Sources == nil {
		return nil
	}
	return rc.Sources.BlockedDomains
}

func (g *Generator) rssFeeds(rc *RunContext, code string) []string {
	feeds := rc.Sources.RSSFeeds(code)
	if g.cfg.ExtraFeeds == nil {
		return feeds
	}
	return news.DedupStrings(append(slices.Clone(feeds), g.cfg.ExtraFeeds.For(code)...))
}
