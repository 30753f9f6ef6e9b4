package apiclient

import (
	"context"
	"encoding/json"
	"iter"
	"strings"
)

const chatPath = "/chat/completions"

type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type Annotation struct {
	Type        string       `json:"type"`
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type Choice struct {
	Message            Message `json:"message"`
	Delta              Message `json:"delta"`
	FinishReason       string  `json:"finish_reason"`
	NativeFinishReason string  `json:"native_finish_reason"`
}

type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *float64 `json:"cost,omitempty"`
}

// ChatResponse covers both full completions and stream chunks. Unknown fields are ignored.
type ChatResponse struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Choices   []Choice `json:"choices"`
	Usage     *Usage   `json:"usage,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// Content returns the first choice's message text.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// StopReason prefers the provider-native finish reason.
func (r *ChatResponse) StopReason() string {
	if len(r.Choices) == 0 {
		return ""
	}
	if r.Choices[0].NativeFinishReason != "" {
		return r.Choices[0].NativeFinishReason
	}
	return r.Choices[0].FinishReason
}

// CitationURLs merges top-level citations with url_citation annotations, first seen wins.
func (r *ChatResponse) CitationURLs() []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	for _, u := range r.Citations {
		add(u)
	}
	for _, choice := range r.Choices {
		for _, ann := range choice.Message.Annotations {
			if ann.Type == "url_citation" && ann.URLCitation != nil {
				add(ann.URLCitation.URL)
			}
		}
	}
	return urls
}

func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	var resp ChatResponse
	if err := c.Post(ctx, chatPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatCompletionStream yields decoded chunks. Frames that do not decode are skipped.
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatRequest) iter.Seq2[*ChatResponse, error] {
	req.Stream = true
	return func(yield func(*ChatResponse, error) bool) {
		for raw, err := range c.PostStream(ctx, chatPath, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			var chunk ChatResponse
			if err := json.Unmarshal(raw, &chunk); err != nil {
				continue
			}
			if !yield(&chunk, nil) {
				return
			}
		}
	}
}

// DeltaText returns the streamed text fragment of a chunk.
func (r *ChatResponse) DeltaText() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Delta.Content
}
