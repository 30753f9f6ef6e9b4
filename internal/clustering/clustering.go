// Package clustering groups headlines into topics with a single greedy pass.
package clustering

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/similarity"
)

const (
	// DefaultThreshold is the similarity needed to join a seed's cluster.
	DefaultThreshold = 0.25
	// EnrichThreshold is the looser similarity used to merge singleton clusters.
	EnrichThreshold = 0.15

	minTitleWords = 3
)

type Clusterer struct {
	tables *locale.Tables
	sim    *similarity.Engine
}

func New(tables *locale.Tables) *Clusterer {
	if tables == nil {
		tables = locale.Default()
	}
	return &Clusterer{tables: tables, sim: similarity.New(tables)}
}

// Similarity exposes the engine used for clustering.
func (c *Clusterer) Similarity(a, b string) float64 {
	return c.sim.Similarity(a, b)
}

// IsValidTitle rejects navigation, promotional and off-topic headlines and titles
// with fewer than three words longer than two characters.
func (c *Clusterer) IsValidTitle(title string) bool {
	if title == "" {
		return false
	}
	if _, denied := c.tables.DeniedTitle(strings.ToLower(title)); denied {
		return false
	}
	words := 0
	for _, w := range strings.Fields(title) {
		if utf8.RuneCountInString(w) > 2 {
			words++
		}
	}
	return words >= minTitleWords
}

// Cluster drops invalid titles, then walks items in order: each unconsumed item seeds a
// cluster and absorbs every unconsumed item whose title and snippet score at least
// threshold against the seed. Clusters are returned largest first, ties in seed order.
// valid is the number of items that passed the title check.
func (c *Clusterer) Cluster(items []news.NewsItem, threshold float64) (clusters []news.Cluster, valid int) {
	var candidates []news.NewsItem
	for _, item := range items {
		if c.IsValidTitle(item.Title) {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return nil, 0
	}

	texts := make([]string, len(candidates))
	for i, item := range candidates {
		texts[i] = item.Text()
	}

	used := make([]bool, len(candidates))
	for i, seed := range candidates {
		if used[i] {
			continue
		}
		cluster := news.Cluster{seed}
		used[i] = true

		for j, other := range candidates {
			if used[j] {
				continue
			}
			if c.sim.Similarity(texts[i], texts[j]) >= threshold {
				cluster = append(cluster, other)
				used[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}

	slices.SortStableFunc(clusters, func(a, b news.Cluster) int {
		return len(b) - len(a)
	})
	return clusters, len(candidates)
}

// Split separates clusters with at least two items from singletons, keeping order.
func Split(clusters []news.Cluster) (multi, single []news.Cluster) {
	for _, cl := range clusters {
		if len(cl) >= 2 {
			multi = append(multi, cl)
		} else if len(cl) == 1 {
			single = append(single, cl)
		}
	}
	return multi, single
}
