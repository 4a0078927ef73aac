// Package coach produces the coach's reply to a learner message.
//
// The chat engine only sees the [Responder] interface. [Canned] picks a
// follow-up question from a fixed phrase list, [LLM] asks a language model,
// and [Chain] tries responders in order behind circuit breakers so an
// unavailable model degrades to canned replies.
package coach

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/resilience"
	"github.com/apper-canvas/linguaflow-1080p-card/pkg/provider/llm"
)

// ErrEmptyReply is returned when a responder produced no text.
var ErrEmptyReply = errors.New("coach: empty reply")

// Responder turns a learner message into the coach's reply.
// Implementations must be safe for concurrent use.
type Responder interface {
	Respond(ctx context.Context, userText string) (string, error)
}

// ResponderFunc adapts a function to [Responder].
type ResponderFunc func(ctx context.Context, userText string) (string, error)

// Respond implements [Responder].
func (f ResponderFunc) Respond(ctx context.Context, userText string) (string, error) {
	return f(ctx, userText)
}

// ─────────────────────────────────────────────────────────────────────────────
// Canned
// ─────────────────────────────────────────────────────────────────────────────

// DefaultPhrases are the follow-up questions used by [Canned].
var DefaultPhrases = []string{
	"That's really interesting! Could you tell me more about that?",
	"I understand what you mean. What's your favorite part about it?",
	"That sounds wonderful! How long have you been interested in this?",
	"Great point! What would you recommend to someone who's just starting?",
	"I can see why you enjoy that. What got you started with it?",
	"That's fascinating! Are there any challenges you face with it?",
	"I appreciate you sharing that. What do you think others might find surprising about it?",
	"Excellent! How do you usually spend your time doing this activity?",
}

// Canned replies with a uniformly random phrase. It never fails.
type Canned struct {
	phrases []string

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Responder = (*Canned)(nil)

// CannedOption configures a [Canned] responder.
type CannedOption func(*Canned)

// WithPhrases replaces [DefaultPhrases]. An empty list is ignored.
func WithPhrases(phrases ...string) CannedOption {
	return func(c *Canned) {
		if len(phrases) > 0 {
			c.phrases = append([]string(nil), phrases...)
		}
	}
}

// WithSeed makes phrase selection deterministic.
func WithSeed(seed uint64) CannedOption {
	return func(c *Canned) {
		c.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// NewCanned returns a [Canned] responder.
func NewCanned(opts ...CannedOption) *Canned {
	c := &Canned{phrases: DefaultPhrases}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Respond implements [Responder]. The learner text is ignored.
func (c *Canned) Respond(_ context.Context, _ string) (string, error) {
	if c.rng == nil {
		return c.phrases[rand.IntN(len(c.phrases))], nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phrases[c.rng.IntN(len(c.phrases))], nil
}

// ─────────────────────────────────────────────────────────────────────────────
// LLM
// ─────────────────────────────────────────────────────────────────────────────

// DefaultSystemPrompt frames the model as a conversation partner.
const DefaultSystemPrompt = "You are a friendly language coach chatting with a learner. " +
	"Reply in one or two short sentences and end with a question that keeps the conversation going. " +
	"Do not correct grammar; corrections are shown separately."

// LLMConfig tunes an [LLM] responder.
type LLMConfig struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// LLM asks a language model for the reply.
type LLM struct {
	provider llm.Provider
	cfg      LLMConfig
}

var _ Responder = (*LLM)(nil)

// NewLLM returns an [LLM] responder using provider. An empty system prompt
// selects [DefaultSystemPrompt].
func NewLLM(provider llm.Provider, cfg LLMConfig) *LLM {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &LLM{provider: provider, cfg: cfg}
}

// Respond implements [Responder].
func (l *LLM) Respond(ctx context.Context, userText string) (string, error) {
	resp, err := l.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: l.cfg.SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userText}},
		Temperature:  l.cfg.Temperature,
		MaxTokens:    l.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("coach: llm %s: %w", l.provider.Model(), err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Content), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain
// ─────────────────────────────────────────────────────────────────────────────

// Chain tries responders in registration order, each behind its own circuit
// breaker.
type Chain struct {
	group *resilience.FallbackGroup[Responder]
}

var _ Responder = (*Chain)(nil)

// NewChain returns a [Chain] whose first entry is primary.
func NewChain(primary Responder, primaryName string, cfg resilience.FallbackConfig) *Chain {
	return &Chain{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// Then appends a responder tried after the ones already registered.
func (c *Chain) Then(name string, r Responder) *Chain {
	c.group.AddFallback(name, r)
	return c
}

// Respond implements [Responder].
func (c *Chain) Respond(ctx context.Context, userText string) (string, error) {
	return resilience.ExecuteWithResult(c.group, func(r Responder) (string, error) {
		return r.Respond(ctx, userText)
	})
}

// Statuses reports the breaker state of every responder in the chain.
func (c *Chain) Statuses() []resilience.BreakerStatus {
	return c.group.Statuses()
}

// Healthy reports whether at least one responder can be tried.
func (c *Chain) Healthy() bool {
	return c.group.Healthy()
}
