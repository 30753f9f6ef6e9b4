package app

import (
	"cmp"
	"context"
	"strings"

	"github.com/deusflow/feedgen/internal/feed"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/news"
	"github.com/deusflow/feedgen/internal/scheduler"
	"github.com/deusflow/feedgen/internal/storage"
)

type Generator interface {
	Generate(ctx context.Context, req feed.Request) (*feed.Result, error)
}

type Uploader interface {
	UploadFeed(ctx context.Context, dest string, clusterID int, locale string, items []news.FeedItem) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, clusterID int, locale string, items []news.FeedItem) error
}

// Pipeline generates a feed and delivers it to the configured outputs. Output
// failures are logged and do not fail the run.
type Pipeline struct {
	Generator Generator

	Artifacts   *storage.ArtifactWriter // optional
	Uploader    Uploader                // optional
	Destination string
	Publishers  []Publisher

	// Debug writes the markdown debug log of every run. Stopped runs always write it.
	Debug bool

	MinLenMulti  int
	MinLenSingle int
}

func (p *Pipeline) Run(ctx context.Context, req feed.Request) (*feed.Result, error) {
	req.MinLenMulti = cmp.Or(req.MinLenMulti, p.MinLenMulti)
	req.MinLenSingle = cmp.Or(req.MinLenSingle, p.MinLenSingle)

	res, err := p.Generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	loc := strings.ToUpper(cmp.Or(req.Locale, feed.DefaultLocale))
	log := logger.With("cluster_id", req.ClusterID, "locale", loc)
	stopped := res.StoppedAt != 0

	if p.Artifacts != nil {
		if !stopped {
			if path, err := p.Artifacts.WriteFeed(req.ClusterID, loc, res.Feed); err != nil {
				log.Error("failed to write feed", "error", err)
			} else {
				log.Info("feed saved", "path", path, "items", len(res.Feed))
			}
			if _, err := p.Artifacts.WriteClusters(req.ClusterID, loc, res.Clusters); err != nil {
				log.Error("failed to write clusters", "error", err)
			}
		}
		if (p.Debug || stopped) && res.Diagnostics != nil {
			if path, err := p.Artifacts.WriteDebug(req.ClusterID, feed.RenderReport(res.Diagnostics)); err != nil {
				log.Error("failed to write debug log", "error", err)
			} else {
				log.Info("debug log saved", "path", path)
			}
		}
	}
	if stopped {
		log.Info("run stopped early", "step", res.StoppedAt.String())
		return res, nil
	}

	if p.Uploader != nil && p.Destination != "" {
		if uri, err := p.Uploader.UploadFeed(ctx, p.Destination, req.ClusterID, loc, res.Feed); err != nil {
			log.Error("failed to upload feed", "destination", p.Destination, "error", err)
		} else {
			log.Info("feed uploaded", "uri", uri)
		}
	}
	for _, pub := range p.Publishers {
		if err := pub.Publish(ctx, req.ClusterID, loc, res.Feed); err != nil {
			log.Error("failed to publish feed", "error", err)
		}
	}
	return res, nil
}

// RunJob runs one dispatched job.
func (p *Pipeline) RunJob(ctx context.Context, job scheduler.Job) error {
	_, err := p.Run(ctx, feed.Request{
		ClusterID:  job.ClusterID,
		MaxResults: job.MaxResults,
		Geo:        job.Geo,
		Locale:     job.Locale,
		Model:      job.Model,
	})
	return err
}
