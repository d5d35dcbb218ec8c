package executor

import (
	"context"

	"github.com/quietpage/proactive-engagement/pkg/journal"
)

// GenerateRequest carries everything the response generator needs for
// one persona response.
type GenerateRequest struct {
	UserID      string
	Entry       journal.EntrySnapshot
	History     []journal.EntrySnapshot
	Persona     string
	ContextNote string
}

// GenerateResponse is the generator's output.
type GenerateResponse struct {
	Text       string
	Confidence float64
	TopicFlags map[string]interface{}
}

// Generator is the external AI response generator. It is opaque and
// remote: calls may be slow or fail, and the collaborator applies its
// own rate limiting.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}
