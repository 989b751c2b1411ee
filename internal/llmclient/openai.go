package llmclient

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
	"github.com/agentreplay/agentreplay-sub001/internal/observability"
)

// OpenAIClient is the Client implementation backed by
// github.com/sashabaranov/go-openai, adapted from the teacher/pack's
// go-openai wrapper pattern (construct once from an API key, expose a
// narrow call surface rather than the raw SDK client).
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs a client. baseURL overrides the default
// OpenAI endpoint when set (e.g. for an OpenAI-compatible gateway);
// defaultModel is used when a Request leaves Model empty. httpClient, when
// nil, defaults to an otelhttp-instrumented client so completion calls show
// up alongside the rest of the request's trace.
func NewOpenAIClient(apiKey, baseURL, defaultModel string, httpClient *http.Client) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, agenterr.New(agenterr.MissingField, "llmclient: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient == nil {
		httpClient = observability.NewHTTPClient(nil)
	}
	cfg.HTTPClient = httpClient
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: defaultModel}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	ccr := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.Logprobs {
		ccr.LogProbs = true
		if req.TopLogprobs > 0 {
			ccr.TopLogProbs = req.TopLogprobs
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		observability.LoggerWithTrace(ctx).Error().Err(err).Str("model", model).Msg("openai_chat_completion_failed")
		return Response{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return Response{}, agenterr.New(agenterr.UpstreamFailure, "openai returned no choices")
	}
	choice := resp.Choices[0]

	out := Response{Content: choice.Message.Content}
	if choice.LogProbs != nil {
		out.Logprobs = make([]TokenLogprob, 0, len(choice.LogProbs.Content))
		for _, tok := range choice.LogProbs.Content {
			tl := TokenLogprob{Token: tok.Token, Logprob: tok.LogProb}
			if len(tok.TopLogProbs) > 0 {
				tl.Alternates = make(map[string]float64, len(tok.TopLogProbs))
				for _, alt := range tok.TopLogProbs {
					tl.Alternates[alt.Token] = alt.LogProb
				}
			}
			out.Logprobs = append(out.Logprobs, tl)
		}
	}
	return out, nil
}
