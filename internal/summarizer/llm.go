package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/feedgen/internal/apiclient"
	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/logger"
)

var ErrUnknownCluster = errors.New("unknown cluster")

type ChatClient interface {
	ChatCompletion(ctx context.Context, req apiclient.ChatRequest) (*apiclient.ChatResponse, error)
}

// LLMSummarizer writes the summary with a chat completion model. It is the
// feed-summary service itself, served by POST /feedsummary.
type LLMSummarizer struct {
	Client   ChatClient
	Clusters ClusterSource
	Tables   *locale.Tables
	Model    string

	now func() time.Time
}

func NewLLMSummarizer(client ChatClient, clusters ClusterSource, tables *locale.Tables, model string) *LLMSummarizer {
	return &LLMSummarizer{Client: client, Clusters: clusters, Tables: tables, Model: model, now: time.Now}
}

func (l *LLMSummarizer) Summarize(ctx context.Context, req Request) (*Summary, error) {
	start := l.clock()
	cluster, ok := l.Clusters.Cluster(req.ClusterID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCluster, req.ClusterID)
	}

	model := req.Model
	if model == "" {
		model = l.Model
	}
	if model == "" {
		model = DefaultModel
	}
	language := LanguageName(l.Tables, req.Language)

	user, err := UserMessage(req.Contents)
	if err != nil {
		return nil, fmt.Errorf("encode contents: %w", err)
	}
	logger.Debug("summarizing cluster", "cluster_id", req.ClusterID, "language", language, "contents", len(req.Contents))

	resp, err := l.Client.ChatCompletion(ctx, apiclient.ChatRequest{
		Model: model,
		Messages: []apiclient.Message{
			{Role: "system", Content: SystemPrompt(language, cluster)},
			{Role: "user", Content: user},
		},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("summary completion: %w", err)
	}

	s, err := ParseSummary(resp.Content())
	if err != nil {
		return nil, err
	}
	s.Meta = newMeta(model, language)
	s.Meta.Elapsed = l.clock().Sub(start).Milliseconds()
	if len(resp.Choices) > 0 && resp.Choices[0].NativeFinishReason != "" {
		s.Meta.StopReason = resp.Choices[0].NativeFinishReason
	}
	if resp.Usage != nil {
		s.Meta.InputTokens = resp.Usage.PromptTokens
		s.Meta.OutputTokens = resp.Usage.CompletionTokens
		if resp.Usage.Cost != nil {
			s.Meta.Cost = *resp.Usage.Cost
		}
	}
	return s, nil
}

func (l *LLMSummarizer) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

func newMeta(model, language string) *Meta {
	return &Meta{
		LLM:        model,
		Service:    ServiceName,
		Language:   language,
		Version:    ServiceVersion,
		MaxTokens:  MaxTokens,
		StopReason: "unknown",
		Cost:       "N/A",
	}
}
