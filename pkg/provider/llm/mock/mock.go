// Package mock provides a scripted [llm.Provider] for coach tests.
//
//	p := &mock.Provider{Replies: []string{"Tell me more!", "Where was that?"}}
//	chain := coach.NewLLM(p, coach.LLMConfig{})
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm"
)

// Provider answers completions from a script. Each call consumes the next
// entry of Replies; the last entry is repeated once the script runs out, and
// an empty script yields an empty reply. A non-nil Err fails every call.
type Provider struct {
	// ModelName is returned by Model.
	ModelName string

	// Replies are the coach answers served in order.
	Replies []string

	// Err, if non-nil, is returned from every Complete call.
	Err error

	mu       sync.Mutex
	served   int
	requests []llm.CompletionRequest
}

// Complete records req and returns the next scripted reply. A cancelled ctx
// fails without consuming the script.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Replies) == 0 {
		return &llm.CompletionResponse{}, nil
	}

	reply := p.Replies[min(p.served, len(p.Replies)-1)]
	p.served++
	words := len(strings.Fields(reply))
	return &llm.CompletionResponse{
		Content: reply,
		Usage:   llm.Usage{CompletionTokens: words, TotalTokens: words},
	}, nil
}

// Model returns ModelName.
func (p *Provider) Model() string { return p.ModelName }

// Requests returns a copy of every request received, in order.
func (p *Provider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// LearnerTurns returns the last user message of every request, in order.
func (p *Provider) LearnerTurns() []string {
	var out []string
	for _, req := range p.Requests() {
		turn := ""
		for _, m := range req.Messages {
			if m.Role == llm.RoleUser {
				turn = m.Content
			}
		}
		out = append(out, turn)
	}
	return out
}

var _ llm.Provider = (*Provider)(nil)
