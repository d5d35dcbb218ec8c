package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quietpage/proactive-engagement/pkg/journal"
)

// HTTPGenerator calls the response-generation service over HTTP. The
// service owns prompt construction and persona personalities; this
// client only ships the scheduling context.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a generator client. Timeouts are applied per
// call through the request context, not the HTTP client.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{url: url, client: &http.Client{}}
}

type generateWire struct {
	UserID      string                  `json:"userId"`
	Entry       journal.EntrySnapshot   `json:"entry"`
	History     []journal.EntrySnapshot `json:"history"`
	Persona     string                  `json:"persona"`
	ContextNote string                  `json:"contextNote"`
}

type generateWireResponse struct {
	Text       string                 `json:"text"`
	Confidence float64                `json:"confidence"`
	TopicFlags map[string]interface{} `json:"topicFlags"`
}

// Generate posts the request and decodes the generated response.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(generateWire{
		UserID:      req.UserID,
		Entry:       req.Entry,
		History:     req.History,
		Persona:     req.Persona,
		ContextNote: req.ContextNote,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generator call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var wire generateWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}

	return &GenerateResponse{
		Text:       wire.Text,
		Confidence: wire.Confidence,
		TopicFlags: wire.TopicFlags,
	}, nil
}
