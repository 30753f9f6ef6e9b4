package feed

import (
	"context"
	"slices"

	"github.com/deusflow/feedgen/internal/clustering"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/summarizer"
)

// candidateSet is the article list tried for one feed item.
type candidateSet struct {
	pass    int
	members []news.NewsItem
	minLen  int
}

// ArticleSet is the validated articles of a candidate set and the first real image among them.
type ArticleSet struct {
	Articles []news.Article
	Image    string
}

type outcome struct {
	item     *news.FeedItem
	set      ArticleSet
	discards []news.DiscardRecord
	failed   bool
}

// selectStep turns clusters into feed items: clusters of two or more first, then
// singletons enriched with similar singletons, until maxResults items exist.
func (g *Generator) selectStep(ctx context.Context, rc *RunContext, req Request, clusters []news.Cluster) []news.FeedItem {
	multi, single := clustering.Split(clusters)
	feed := make([]news.FeedItem, 0, req.MaxResults)

	preferred := rc.preferredSites()
	rc.Log.Info("pass 1: multi-article clusters", "clusters", len(multi))
	feed = g.fill(ctx, rc, req, feed, len(multi), func(i int) candidateSet {
		return candidateSet{pass: 1, members: byPriority(multi[i], preferred), minLen: req.MinLenMulti}
	})

	if len(feed) < req.MaxResults && len(single) > 0 {
		if len(single) > singletonWarnAt {
			rc.Log.Warn("many singleton clusters, enrichment is quadratic", "singletons", len(single))
		}
		rc.Log.Info("pass 2: single-article clusters", "clusters", len(single), "needed", req.MaxResults-len(feed))
		feed = g.fill(ctx, rc, req, feed, len(single), func(i int) candidateSet {
			return rc.enrich(single, i, req)
		})
	}
	return feed
}

// fill processes candidates in windows no larger than the free feed slots, so the
// same candidates are tried as when processing one at a time, and appends the
// resulting items in candidate order.
func (g *Generator) fill(ctx context.Context, rc *RunContext, req Request, feed []news.FeedItem, n int, candidate func(i int) candidateSet) []news.FeedItem {
	for next := 0; next < n && len(feed) < req.MaxResults; {
		size := min(req.MaxResults-len(feed), n-next)
		sets := make([]candidateSet, size)
		for k := range sets {
			sets[k] = candidate(next + k)
		}

		outcomes := make([]outcome, size)
		_ = forEach(ctx, size, g.cfg.SummaryConcurrency, func(ctx context.Context, k int) error {
			outcomes[k] = g.process(ctx, rc, sets[k])
			return nil
		})

		for k, out := range outcomes {
			rc.Diag.recordDiscards(out.discards)
			g.cfg.Metrics.AddArticlesDiscarded(len(out.discards))
			rc.Diag.Selections = append(rc.Diag.Selections, SelectionDiag{
				Pass:       sets[k].pass,
				Topic:      sets[k].members[0].Title,
				Candidates: len(sets[k].members),
				Validated:  len(out.set.Articles),
				Summarized: out.item != nil,
			})
			if out.failed {
				rc.Diag.SummaryFailures++
				g.cfg.Metrics.IncrementSummaryFailures()
			}
			if out.item != nil {
				feed = append(feed, *out.item)
			}
		}
		next += size
	}
	return feed
}

// process fetches and validates up to five members, then summarizes them.
func (g *Generator) process(ctx context.Context, rc *RunContext, set candidateSet) outcome {
	var out outcome
	members := set.members

	for pos := 0; pos < len(members) && len(out.set.Articles) < maxArticlesPerSet; {
		size := min(maxArticlesPerSet-len(out.set.Articles), len(members)-pos)
		articles := make([]news.Article, size)
		_ = forEach(ctx, size, g.cfg.Concurrency, func(ctx context.Context, k int) error {
			articles[k] = rc.extractor.FetchArticle(ctx, members[pos+k].Link)
			return nil
		})

		for k, fetched := range articles {
			art, reason, ok := rc.validate(members[pos+k], fetched, set.minLen)
			if !ok {
				out.discards = append(out.discards, news.DiscardRecord{Reason: reason, Title: art.Title, Domain: art.SourceDomain})
				continue
			}
			if out.set.Image == "" && art.HasImage() {
				out.set.Image = art.Image
			}
			out.set.Articles = append(out.set.Articles, art)
		}
		pos += size
	}

	if len(out.set.Articles) == 0 {
		return out
	}

	req := summarizer.NewRequest(rc.Cluster.ID, rc.Locale, out.set.Articles, rc.Model)
	s, err := g.cfg.Summarizer.Summarize(ctx, req)
	if err != nil {
		rc.Log.Warn("summary failed", "topic", members[0].Title, "articles", len(out.set.Articles), "error", err)
		out.failed = true
		return out
	}
	item := summarizer.FeedItem(s, out.set.Articles, out.set.Image, rc.today())
	out.item = &item
	rc.Log.Info("summary generated", "topic", members[0].Title, "articles", len(out.set.Articles))
	return out
}

// validate fills missing title and content from the headline, then checks length,
// date presence and recency in that order.
func (rc *RunContext) validate(item news.NewsItem, art news.Article, minLen int) (news.Article, news.DiscardReason, bool) {
	if art.Title == "" {
		art.Title = item.Title
	}
	if art.Content == "" {
		art.Content = item.Snippet
	}
	if art.TextLength() < minLen {
		return art, news.DiscardLength, false
	}
	if art.PublishedDate == "" {
		return art, news.DiscardNoDate, false
	}
	if ok, _ := rc.recency.IsRecent(art.PublishedDate, rc.maxDays()); !ok {
		return art, news.DiscardOldDate, false
	}
	return art, "", true
}

// enrich adds every other singleton similar enough to singleton i. An enriched set
// is held to the multi-article length threshold.
func (rc *RunContext) enrich(single []news.Cluster, i int, req Request) candidateSet {
	item := single[i][0]
	members := []news.NewsItem{item}
	ref := item.Text()
	for _, other := range single {
		o := other[0]
		if o.Link == item.Link {
			continue
		}
		if rc.clusterer.Similarity(ref, o.Text()) >= clustering.EnrichThreshold {
			members = append(members, o)
		}
	}

	minLen := req.MinLenSingle
	if len(members) > 1 {
		minLen = req.MinLenMulti
		rc.Log.Debug("enriched single-source cluster", "topic", item.Title, "sources", len(members))
	}
	return candidateSet{pass: 2, members: members, minLen: minLen}
}

// byPriority moves members from preferred sites to the front, keeping order otherwise.
func byPriority(cluster news.Cluster, preferred []string) []news.NewsItem {
	members := slices.Clone([]news.NewsItem(cluster))
	priority := func(item news.NewsItem) int {
		for _, p := range preferred {
			if news.MatchesDomain(item.SourceDomain, p) {
				return 0
			}
		}
		return 1
	}
	slices.SortStableFunc(members, func(a, b news.NewsItem) int {
		return priority(a) - priority(b)
	})
	return members
}
