package feed

import (
	"log/slog"
	"time"

	"github.com/deusflow/feedgen/internal/citations"
	"github.com/deusflow/feedgen/internal/clustering"
	"github.com/deusflow/feedgen/internal/fetcher"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/recency"
	"github.com/deusflow/feedgen/internal/scraper"
	"github.com/deusflow/feedgen/internal/taxonomy"
)

// RunContext holds everything scoped to one pipeline run. Nothing in it outlives
// the run, including the page memos.
type RunContext struct {
	ID      string
	Locale  string
	Geo     string
	Model   string
	Started time.Time

	Cluster  taxonomy.Cluster
	Taxonomy *taxonomy.Taxonomy
	Sources  *taxonomy.TopSources
	Tables   *locale.Tables

	Pages    *fetcher.Memo
	Articles *fetcher.Memo
	Diag     *Diagnostics
	Log      *slog.Logger

	found     bool
	now       func() time.Time
	extractor *scraper.Extractor
	clusterer *clustering.Clusterer
	recency   *recency.Checker
	search    *citations.Pipeline
}

func (rc *RunContext) MustBeFresh() bool {
	return rc.Cluster.MustBeFresh()
}

func (rc *RunContext) maxDays() int {
	return recency.MaxDays(rc.MustBeFresh())
}

func (rc *RunContext) today() string {
	return rc.now().Format("2006-01-02")
}

// checkpoint returns the empty result when the run was asked to stop after step.
func (rc *RunContext) checkpoint(req Request, step Step, empty *Result) *Result {
	if req.UpToStep != step {
		return nil
	}
	rc.Log.Info("stopping after step", "step", step)
	rc.Diag.note("stopped after step %d (%s)", int(step), step)
	rc.Diag.StoppedAt = step
	stopped := *empty
	stopped.StoppedAt = step
	return &stopped
}

// preferredSites are the sites ranked first when choosing articles of a cluster.
func (rc *RunContext) preferredSites() []string {
	if len(rc.Cluster.Categories) == 0 {
		return nil
	}
	return rc.Sources.Sites(rc.Cluster.Categories[0].IABCode)
}
