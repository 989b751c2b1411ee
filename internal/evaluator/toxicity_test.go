package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

func TestToxicityKeywordCleanTextPasses(t *testing.T) {
	ev := NewToxicity("tox-1")
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "have a wonderful day"})
	require.NoError(t, err)
	require.True(t, res.Pass)
	require.Equal(t, 0.0, res.Score)
}

func TestToxicityKeywordMatchesScoreProportionally(t *testing.T) {
	ev := NewToxicity("tox-1")
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "you are an idiot and stupid"})
	require.NoError(t, err)
	require.InDelta(t, 0.4, res.Score, 1e-9)
	require.True(t, res.Pass)
}

func TestToxicityKeywordManyMatchesFails(t *testing.T) {
	ev := NewToxicity("tox-1", WithToxicityThreshold(0.5))
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "idiot stupid hate kill worthless"})
	require.NoError(t, err)
	require.False(t, res.Pass)
}

func TestToxicityLLMModeParsesLabels(t *testing.T) {
	stub := &fixedToxicityClient{content: `{"toxic":0.9,"severe_toxic":0.1,"obscene":0.2,"threat":0.0,"insult":0.8,"identity_hate":0.0}`}
	ev := NewToxicity("tox-1", WithLLMMode(stub, "test-model"))
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "anything"})
	require.NoError(t, err)
	require.InDelta(t, 0.9, res.Score, 1e-9)
	require.False(t, res.Pass)
	require.Equal(t, 0.9, res.Categories["toxic"])
}

// fixedToxicityClient returns a fixed JSON body regardless of prompt.
type fixedToxicityClient struct{ content string }

func (c *fixedToxicityClient) Complete(context.Context, llmclient.Request) (llmclient.Response, error) {
	return llmclient.Response{Content: c.content}, nil
}
