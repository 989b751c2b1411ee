package nlquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPlanTemplateMatchErrorsFromLastHour(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p := NewPlanner(fixedClock(now))
	q := p.Plan("show me errors from last hour")

	require.Equal(t, IntentSearch, q.Intent)
	require.GreaterOrEqual(t, q.Confidence, 0.8)
	require.Equal(t, "true", q.Filters["has_error"])
	require.NotNil(t, q.TimeRange)
	require.Equal(t, now.Add(-time.Hour).UnixMicro(), q.TimeRange.StartUS)
	require.Equal(t, now.UnixMicro(), q.TimeRange.EndUS)
}

func TestPlanTemplateWhyRefFailed(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("why did span-42 fail?")

	require.Equal(t, IntentExplain, q.Intent)
	require.Equal(t, 0.9, q.Confidence)
	require.Equal(t, "span-42", q.Filters["ref"])
	require.Equal(t, "true", q.Filters["has_error"])
}

func TestPlanTemplateSlowResponsesOverSeconds(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("slow responses over 5 seconds")

	require.Equal(t, "5000", q.Filters["duration_ms_gt"])
	require.Equal(t, 0.9, q.Confidence)
}

func TestPlanFallbackClassifiesExplainOverSearch(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("explain why this search for errors happened")

	require.Equal(t, IntentExplain, q.Intent)
	require.Equal(t, 0.6, q.Confidence)
}

func TestPlanFallbackNumericExtraction(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("find calls with more than 500 tokens")

	require.Equal(t, "500", q.Filters["tokens_gt"])
}

func TestPlanFallbackLessThanMS(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("responses less than 200ms")

	require.Equal(t, "200", q.Filters["duration_ms_lt"])
}

func TestPlanAnalyzeIntentSetsAggregate(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("analyze the average latency trend")

	require.Equal(t, IntentAnalyze, q.Intent)
	require.True(t, q.Aggregate)
}

func TestPlanSpanTypeWordSetsFilter(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("show me all tool call spans")

	require.Equal(t, "tool_call", q.Filters["span_type"])
}

func TestPlanNamedPeriodYesterday(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	p := NewPlanner(fixedClock(now))
	q := p.Plan("list failures from yesterday")

	require.NotNil(t, q.TimeRange)
	yesterdayStart := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	todayStart := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	require.Equal(t, yesterdayStart.UnixMicro(), q.TimeRange.StartUS)
	require.Equal(t, todayStart.UnixMicro(), q.TimeRange.EndUS)
}

func TestPlanDefaultLimitAndRerank(t *testing.T) {
	p := NewPlanner(nil)
	q := p.Plan("list recent traces")

	require.Equal(t, defaultLimit, q.Limit)
	require.True(t, q.Rerank)
}
