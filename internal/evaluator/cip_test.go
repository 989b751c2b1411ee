package evaluator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

// perturbingClient answers the saboteur's critical (invert) prompt with
// critical and its null (paraphrase) prompt with paraphrase.
type perturbingClient struct{ critical, paraphrase string }

func (p *perturbingClient) Complete(_ context.Context, req llmclient.Request) (llmclient.Response, error) {
	if strings.HasPrefix(req.Prompt, "Invert") {
		return llmclient.Response{Content: p.critical}, nil
	}
	return llmclient.Response{Content: p.paraphrase}, nil
}

// scriptedAgent returns a different fixed answer depending on which context
// it was called with, so CIP's three invocations can be distinguished.
type scriptedAgent struct {
	byContext map[string]string
	fallback  string
}

func (a *scriptedAgent) Answer(_ context.Context, _ string, contextPassages []string) (string, error) {
	if len(contextPassages) > 0 {
		if v, ok := a.byContext[contextPassages[0]]; ok {
			return v, nil
		}
	}
	return a.fallback, nil
}

func TestCIPFaithfulAgentPassesIntegrityCheck(t *testing.T) {
	embedder := embedding.NewDeterministic(32, true, 7)
	// Faithful agent: a different context yields a clearly different
	// answer (high adherence alpha), a paraphrase yields the same answer
	// (high robustness rho).
	agent := &scriptedAgent{
		byContext: map[string]string{
			"critical-version": "completely different conclusion entirely",
		},
		fallback: "the original stable conclusion",
	}
	client := &perturbingClient{critical: "critical-version", paraphrase: "original context passage"}
	saboteur := NewSaboteur(client, embedder, "test-model")

	cip := NewCIP("cip-1", agent, saboteur, embedder)
	res, err := cip.Evaluate(context.Background(), TraceContext{
		Input:   "what happened?",
		Context: []string{"original context passage"},
	})
	require.NoError(t, err)
	require.True(t, res.Pass)
	require.Contains(t, res.Metrics, "cip_score")
	require.Contains(t, res.Metrics, "adherence")
	require.Contains(t, res.Metrics, "robustness")
}

func TestCIPBudgetExceededAborts(t *testing.T) {
	embedder := embedding.NewDeterministic(32, true, 7)
	agent := &scriptedAgent{fallback: "same answer always"}
	client := &echoClient{text: "same answer always"}
	saboteur := NewSaboteur(client, embedder, "test-model")

	cip := NewCIP("cip-1", agent, saboteur, embedder, WithCIPBudget(CIPBudget{MaxUSD: 0.001, CostPerCall: 1.0}))
	_, err := cip.Evaluate(context.Background(), TraceContext{
		Input:   "question",
		Context: []string{"ctx"},
	})
	require.Error(t, err)
}

func TestCIPThresholdsConfigurable(t *testing.T) {
	cip := NewCIP("cip-1", &scriptedAgent{}, &Saboteur{}, nil, WithCIPThresholds(0.9, 0.9, 0.9))
	require.Equal(t, 0.9, cip.alphaThr)
	require.Equal(t, 0.9, cip.rhoThr)
	require.Equal(t, 0.9, cip.omegaThr)
}
