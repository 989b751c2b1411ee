// Package llmclient is the narrow LLM capability the evaluator primitives
// (G-Eval, Toxicity's LLM mode, CIP's saboteur/agent roles) depend on:
// complete a prompt, optionally with per-token logprobs for G-Eval's
// probability-normalized scoring mode.
package llmclient

import "context"

// Request is one completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64

	// Logprobs requests per-token log probabilities on the response,
	// consumed by G-Eval's probability-normalized scoring mode
	// (spec.md §4.10).
	Logprobs    bool
	TopLogprobs int
}

// TokenLogprob is one generated token's log probability, plus its top-k
// alternates when TopLogprobs > 0.
type TokenLogprob struct {
	Token       string
	Logprob     float64
	Alternates  map[string]float64
}

// Response is a completion result.
type Response struct {
	Content  string
	Logprobs []TokenLogprob
}

// Client is the capability every caller in this module depends on. Modeled
// after the teacher's internal/llm Provider interface, narrowed from
// chat-with-tools down to single-shot completion since no evaluator needs
// tool calling.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
