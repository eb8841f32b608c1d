// Package moderation classifies chat text with an external toxicity service.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FlagThreshold is the toxicity score at or above which a message is considered flagged.
const FlagThreshold = 0.8

type Result struct {
	Toxicity float64
	Flagged  bool
}

type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Noop is used when no moderation endpoint is configured.
type Noop struct{}

func (Noop) Classify(context.Context, string) (Result, error) {
	return Result{}, nil
}

// PerspectiveClient talks to a Perspective-compatible comments:analyze endpoint.
type PerspectiveClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewPerspectiveClient(endpoint, apiKey string) *PerspectiveClient {
	return &PerspectiveClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type analyzeRequest struct {
	Comment             analyzeComment      `json:"comment"`
	Languages           []string            `json:"languages,omitempty"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
}

type analyzeComment struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

func (p *PerspectiveClient) Classify(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(analyzeRequest{
		Comment:             analyzeComment{Text: text},
		Languages:           []string{"en"},
		RequestedAttributes: map[string]struct{}{"TOXICITY": {}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("parse endpoint: %w", err)
	}
	if p.apiKey != "" {
		q := u.Query()
		q.Set("key", p.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("analyze: unexpected status %d", resp.StatusCode)
	}

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	score, ok := ar.AttributeScores["TOXICITY"]
	if !ok {
		return Result{}, fmt.Errorf("analyze: response missing TOXICITY score")
	}

	return Result{
		Toxicity: score.SummaryScore.Value,
		Flagged:  score.SummaryScore.Value >= FlagThreshold,
	}, nil
}
