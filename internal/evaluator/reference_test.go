package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceMetricExactMatchScoresPerfect(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	trace := TraceContext{
		Output:   "the cat sat on the mat",
		Metadata: map[string]string{"expected_output": "the cat sat on the mat"},
	}
	res, err := ev.Evaluate(context.Background(), trace)
	require.NoError(t, err)
	require.InDelta(t, 1.0, res.Metrics["rouge1_f1"], 1e-9)
	require.True(t, res.Pass)
}

func TestReferenceMetricDisjointTextScoresZero(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	trace := TraceContext{
		Output:   "completely different words here",
		Metadata: map[string]string{"expected_output": "the cat sat on the mat"},
	}
	res, err := ev.Evaluate(context.Background(), trace)
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Metrics["rouge1_f1"])
	require.False(t, res.Pass)
}

func TestReferenceMetricRougeLRewardsOrder(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	ordered := TraceContext{
		Output:   "the quick brown fox",
		Metadata: map[string]string{"expected_output": "the quick brown fox jumps"},
	}
	scrambled := TraceContext{
		Output:   "fox the quick brown",
		Metadata: map[string]string{"expected_output": "the quick brown fox jumps"},
	}
	orderedRes, err := ev.Evaluate(context.Background(), ordered)
	require.NoError(t, err)
	scrambledRes, err := ev.Evaluate(context.Background(), scrambled)
	require.NoError(t, err)
	require.Greater(t, orderedRes.Metrics["rougeL_f1"], scrambledRes.Metrics["rougeL_f1"])
}

func TestReferenceMetricBleu4PenalizesShortOutput(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	short := TraceContext{
		Output:   "the cat",
		Metadata: map[string]string{"expected_output": "the cat sat on the mat today"},
	}
	res, err := ev.Evaluate(context.Background(), short)
	require.NoError(t, err)
	require.Less(t, res.Metrics["bleu4"], 1.0)
}

func TestReferenceMetricEmptyOutputScoresZero(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	trace := TraceContext{Output: "", Metadata: map[string]string{"expected_output": "something"}}
	res, err := ev.Evaluate(context.Background(), trace)
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)
}

func TestReferenceMetricFallsBackToContextWhenNoExpectedOutput(t *testing.T) {
	ev := NewReferenceMetric("ref-1")
	trace := TraceContext{Output: "hello world", Context: []string{"hello world"}}
	res, err := ev.Evaluate(context.Background(), trace)
	require.NoError(t, err)
	require.InDelta(t, 1.0, res.Metrics["rouge1_f1"], 1e-9)
}

func TestReferenceMetricUsesConfiguredPrimaryMetric(t *testing.T) {
	ev := NewReferenceMetric("ref-1", WithPrimaryMetric("bleu4", 0.1))
	trace := TraceContext{
		Output:   "the cat sat on the mat",
		Metadata: map[string]string{"expected_output": "the cat sat on the mat"},
	}
	res, err := ev.Evaluate(context.Background(), trace)
	require.NoError(t, err)
	require.Equal(t, res.Metrics["bleu4"], res.Score)
}
