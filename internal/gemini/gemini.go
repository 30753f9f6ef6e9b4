// Package gemini is a summarizer backend over the Gemini API. It sends the same
// instructions as the chat completion backend and asks for a JSON response.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/feedgen/internal/locale"
	"github.com/deusflow/feedgen/internal/summarizer"
)

const DefaultModel = "gemini-1.5-flash"

type Client struct {
	client   *genai.Client
	model    string
	clusters summarizer.ClusterSource
	tables   *locale.Tables
	generate func(ctx context.Context, model, system, user string) (*genai.GenerateContentResponse, error)
}

func NewClient(ctx context.Context, apiKey, model string, clusters summarizer.ClusterSource, tables *locale.Tables) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{client: client, model: model, clusters: clusters, tables: tables}
	c.generate = c.generateContent
	return c, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) generateContent(ctx context.Context, name, system, user string) (*genai.GenerateContentResponse, error) {
	model := c.client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(summarizer.Temperature)
	model.SetMaxOutputTokens(summarizer.MaxTokens)
	return model.GenerateContent(ctx, genai.Text(user))
}

// Summarize implements summarizer.Summarizer. A model named in the request is used
// only when it is a Gemini model.
func (c *Client) Summarize(ctx context.Context, req summarizer.Request) (*summarizer.Summary, error) {
	start := time.Now()
	cluster, ok := c.clusters.Cluster(req.ClusterID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", summarizer.ErrUnknownCluster, req.ClusterID)
	}
	model := c.model
	if strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}
	language := summarizer.LanguageName(c.tables, req.Language)

	user, err := summarizer.UserMessage(req.Contents)
	if err != nil {
		return nil, fmt.Errorf("encode contents: %w", err)
	}
	resp, err := c.generate(ctx, model, summarizer.SystemPrompt(language, cluster), user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	s, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}
	s.Meta = meta(resp, model, language)
	s.Meta.Elapsed = time.Since(start).Milliseconds()
	return s, nil
}

func parseResponse(resp *genai.GenerateContentResponse) (*summarizer.Summary, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return summarizer.ParseSummary(b.String())
}

func meta(resp *genai.GenerateContentResponse, model, language string) *summarizer.Meta {
	m := &summarizer.Meta{
		LLM:        model,
		Service:    summarizer.ServiceName,
		Language:   language,
		Version:    summarizer.ServiceVersion,
		MaxTokens:  summarizer.MaxTokens,
		StopReason: "unknown",
		Cost:       "N/A",
	}
	if fr := resp.Candidates[0].FinishReason; fr != genai.FinishReasonUnspecified {
		m.StopReason = strings.ToLower(strings.TrimPrefix(fr.String(), "FinishReason"))
	}
	if u := resp.UsageMetadata; u != nil {
		m.InputTokens = int(u.PromptTokenCount)
		m.OutputTokens = int(u.CandidatesTokenCount)
	}
	return m
}
