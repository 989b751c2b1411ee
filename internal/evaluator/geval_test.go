package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

func TestGEvalScoresAndScalesToUnitRange(t *testing.T) {
	stub := &fixedJudgeClient{content: `[{"criterion":"clarity","score":4,"reasoning":"clear enough"}]`}
	ev := NewGEval("geval-1", stub, []Criterion{{Name: "clarity", Min: 1, Max: 5, Weight: 1}}, WithRawScoring())
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "some output"})
	require.NoError(t, err)
	require.InDelta(t, 0.75, res.Metrics["clarity"], 1e-9) // (4-1)/(5-1)
	require.InDelta(t, 0.75, res.Score, 1e-9)
	require.True(t, res.Pass)
}

func TestGEvalWeightedMeanAcrossCriteria(t *testing.T) {
	stub := &fixedJudgeClient{content: `[
		{"criterion":"clarity","score":5,"reasoning":""},
		{"criterion":"correctness","score":1,"reasoning":"wrong"}
	]`}
	criteria := []Criterion{
		{Name: "clarity", Min: 1, Max: 5, Weight: 1},
		{Name: "correctness", Min: 1, Max: 5, Weight: 3},
	}
	ev := NewGEval("geval-1", stub, criteria, WithRawScoring())
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "x"})
	require.NoError(t, err)
	// clarity=1.0, correctness=0.0, weighted (1*1 + 3*0)/4 = 0.25
	require.InDelta(t, 0.25, res.Score, 1e-9)
	require.False(t, res.Pass)
}

func TestGEvalFailureIncludesFeedbackAndSeverity(t *testing.T) {
	stub := &fixedJudgeClient{content: `[{"criterion":"safety","score":1,"reasoning":"unsafe content detected"}]`}
	ev := NewGEval("geval-1", stub, []Criterion{{Name: "safety", Min: 1, Max: 5, Weight: 1}}, WithRawScoring())
	res, err := ev.Evaluate(context.Background(), TraceContext{Output: "x"})
	require.NoError(t, err)
	require.False(t, res.Pass)
	require.Equal(t, SeverityCritical, res.Severity)
	require.Contains(t, res.Feedback, "unsafe content detected")
}

func TestGEvalNoCriteriaIsError(t *testing.T) {
	ev := NewGEval("geval-1", &fixedJudgeClient{}, nil)
	_, err := ev.Evaluate(context.Background(), TraceContext{})
	require.Error(t, err)
}

func TestGEvalMalformedResponseIsError(t *testing.T) {
	stub := &fixedJudgeClient{content: "not json at all"}
	ev := NewGEval("geval-1", stub, []Criterion{{Name: "clarity", Min: 1, Max: 5}})
	_, err := ev.Evaluate(context.Background(), TraceContext{Output: "x"})
	require.Error(t, err)
}

// fixedJudgeClient returns a fixed completion regardless of prompt.
type fixedJudgeClient struct{ content string }

func (c *fixedJudgeClient) Complete(context.Context, llmclient.Request) (llmclient.Response, error) {
	return llmclient.Response{Content: c.content}, nil
}
