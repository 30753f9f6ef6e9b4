package summarizer

import (
	"context"
	"errors"
	"fmt"
)

// Poster sends a JSON body and decodes the JSON response.
type Poster interface {
	Post(ctx context.Context, path string, body, out any) error
}

// EndpointSummarizer calls a remote feed-summary service.
type EndpointSummarizer struct {
	Client Poster
	URL    string
}

func NewEndpointSummarizer(client Poster, url string) *EndpointSummarizer {
	return &EndpointSummarizer{Client: client, URL: url}
}

func (e *EndpointSummarizer) Summarize(ctx context.Context, req Request) (*Summary, error) {
	if e.URL == "" {
		return nil, errors.New("feed summary endpoint not configured")
	}
	var s Summary
	if err := e.Client.Post(ctx, e.URL, req, &s); err != nil {
		return nil, fmt.Errorf("feed summary cluster %d: %w", req.ClusterID, err)
	}
	return &s, nil
}
