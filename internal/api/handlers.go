package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/feedgen/internal/feed"
	"github.com/deusflow/feedgen/internal/logger"
	"github.com/deusflow/feedgen/internal/ratelimit"
	"github.com/deusflow/feedgen/internal/scheduler"
	"github.com/deusflow/feedgen/internal/summarizer"
)

// PostFeed runs the pipeline for one cluster and returns the feed items.
func (h *Handler) PostFeed(c *gin.Context) {
	var req feed.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.ClusterID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing cluster_id"})
		return
	}
	if req.UpToStep < 0 || req.UpToStep > feed.StepCluster {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upto_step must be between 1 and 3"})
		return
	}

	logger.Info("feed request", "cluster_id", req.ClusterID, "max_results", req.MaxResults,
		"geo", req.Geo, "locale", req.Locale)
	res, err := h.opts.Feeds.Run(c.Request.Context(), req)
	if err != nil {
		logger.Error("feed generation failed", "cluster_id", req.ClusterID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Access-Control-Allow-Origin", "*")
	c.JSON(http.StatusOK, res.Feed)
}

// PostFeedSummary summarizes a set of articles for a cluster.
func (h *Handler) PostFeedSummary(c *gin.Context) {
	var req summarizer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if req.ClusterID == 0 || len(req.Contents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cluster_id and contents are required"})
		return
	}
	if req.Language == "" {
		req.Language = summarizer.DefaultLanguage
	}
	req.Language = strings.ToLower(req.Language)

	s, err := h.opts.Summarizer.Summarize(c.Request.Context(), req)
	switch {
	case errors.Is(err, summarizer.ErrUnknownCluster):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ratelimit.ErrExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Error("summary failed", "cluster_id", req.ClusterID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

type dispatchRequest struct {
	Clusters   []int    `json:"clusters"`
	Locales    []string `json:"locales"`
	MaxResults int      `json:"max_results"`
	Model      string   `json:"model,omitempty"`
}

// PostDispatch starts runs for every cluster and locale and returns at once.
func (h *Handler) PostDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	jobs, err := scheduler.Jobs(req.Clusters, req.Locales, req.MaxResults, req.Model)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := h.opts.Dispatcher.Start(jobs)
	c.JSON(http.StatusAccepted, gin.H{"invoked": len(jobs), "dispatch_id": id})
}

func (h *Handler) GetHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if !h.opts.Metrics.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) GetMetrics(c *gin.Context) {
	body := gin.H{"metrics": h.opts.Metrics.Stats()}
	if h.opts.Budget != nil {
		body["budget"] = h.opts.Budget.Stats()
	}
	c.JSON(http.StatusOK, body)
}
