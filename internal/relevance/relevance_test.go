package relevance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

func TestScoreWeightsSumToCandidateUpperBound(t *testing.T) {
	c := Candidate{EdgeID: model.TraceID{Lo: 1}, SemanticScore: 1, TimestampUS: 1_000_000}
	s := Score(c, 1_000_000, DefaultHalfLife, 1, Default)
	require.InDelta(t, 1.0, s, 1e-9)
}

func TestScoreDecaysWithAge(t *testing.T) {
	c := Candidate{EdgeID: model.TraceID{Lo: 1}, SemanticScore: 0.5, TimestampUS: 0}
	fresh := Score(c, 0, DefaultHalfLife, 0.5, Default)
	old := Score(c, DefaultHalfLife*1_000_000, DefaultHalfLife, 0.5, Default)
	require.Greater(t, fresh, old)
}

func TestScoreBatchSortsDescending(t *testing.T) {
	candidates := []Candidate{
		{EdgeID: model.TraceID{Lo: 1}, SemanticScore: 0.1, TimestampUS: 1000},
		{EdgeID: model.TraceID{Lo: 2}, SemanticScore: 0.9, TimestampUS: 1000},
		{EdgeID: model.TraceID{Lo: 3}, SemanticScore: 0.5, TimestampUS: 1000},
	}
	scored := ScoreBatch(candidates, 1000, DefaultHalfLife, Default)
	require.Len(t, scored, 3)
	for i := 1; i < len(scored); i++ {
		require.GreaterOrEqual(t, scored[i-1].FinalScore, scored[i].FinalScore)
	}
	require.Equal(t, model.TraceID{Lo: 2}, scored[0].EdgeID)
}

func TestScoreBatchTiesBrokenByRecencyThenEdgeID(t *testing.T) {
	candidates := []Candidate{
		{EdgeID: model.TraceID{Lo: 5}, SemanticScore: 0.5, TimestampUS: 100},
		{EdgeID: model.TraceID{Lo: 2}, SemanticScore: 0.5, TimestampUS: 200},
		{EdgeID: model.TraceID{Lo: 9}, SemanticScore: 0.5, TimestampUS: 200},
	}
	scored := ScoreBatch(candidates, 200, DefaultHalfLife, Default)
	require.Equal(t, model.TraceID{Lo: 2}, scored[0].EdgeID)
	require.Equal(t, model.TraceID{Lo: 9}, scored[1].EdgeID)
	require.Equal(t, model.TraceID{Lo: 5}, scored[2].EdgeID)
}

func TestScoreBatchNormalizesInfluenceWithinSet(t *testing.T) {
	candidates := []Candidate{
		{EdgeID: model.TraceID{Lo: 1}, SemanticScore: 0, TimestampUS: 0, RawInfluence: 0},
		{EdgeID: model.TraceID{Lo: 2}, SemanticScore: 0, TimestampUS: 0, RawInfluence: 2},
	}
	scored := ScoreBatch(candidates, 0, DefaultHalfLife, InfluenceFocused)
	require.Greater(t, scored[0].FinalScore, scored[1].FinalScore)
	require.Equal(t, model.TraceID{Lo: 2}, scored[0].EdgeID)
}

func TestInfluenceFocusedWeightsSumToOne(t *testing.T) {
	require.InDelta(t, 1.0, InfluenceFocused.Semantic+InfluenceFocused.Temporal+InfluenceFocused.Graph, 1e-9)
	require.InDelta(t, 1.0, Default.Semantic+Default.Temporal+Default.Graph, 1e-9)
}
