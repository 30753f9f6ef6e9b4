// Package api exposes feed generation, summarization and dispatch over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/feedgen/internal/feed"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/metrics"
	"github.com/deusflow/feedgen/internal/ratelimit"
	"github.com/deusflow/feedgen/internal/scheduler"
	"github.com/deusflow/feedgen/internal/summarizer"
)

// FeedRunner generates a feed and delivers it to the configured sinks.
type FeedRunner interface {
	Run(ctx context.Context, req feed.Request) (*feed.Result, error)
}

// Dispatcher starts background runs for a job list and returns the dispatch id.
type Dispatcher interface {
	Start(jobs []scheduler.Job) string
}

type Options struct {
	Feeds      FeedRunner
	Summarizer summarizer.Summarizer
	Dispatcher Dispatcher
	Metrics    *metrics.Metrics
	Budget     *ratelimit.Budget
}

type Handler struct {
	opts Options
}

// NewServer builds the gin engine with all routes.
func NewServer(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(requestLogger(), gin.Recovery())
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Only POST is supported"})
	})

	h := &Handler{opts: opts}
	r.POST("/feed", h.PostFeed)
	r.POST("/feedsummary", h.PostFeedSummary)
	r.POST("/dispatch", h.PostDispatch)
	r.GET("/health", h.GetHealth)
	r.GET("/metrics", h.GetMetrics)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).Round(time.Millisecond),
			"client_ip", c.ClientIP(),
		)
	}
}
