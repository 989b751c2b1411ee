package comparison

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribeComputesPercentiles(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	d := describe(samples)

	require.InDelta(t, 5.5, d.Mean, 1e-9)
	require.Equal(t, 10, d.N)
	require.Equal(t, 1.0, d.Min)
	require.Equal(t, 10.0, d.Max)
	require.InDelta(t, 5.5, d.Median, 1e-9)
}

func TestWelchTTestIdenticalSamplesNotSignificant(t *testing.T) {
	samples := []float64{10, 11, 9, 10, 11, 9, 10}
	base := describe(samples)
	cand := describe(samples)

	_, _, p, _, _ := welchTTest(base, cand)
	require.Greater(t, p, 0.9)
}

func TestWelchTTestClearDifferenceIsSignificant(t *testing.T) {
	baseSamples := []float64{100, 102, 98, 101, 99, 100, 103, 97, 100, 101}
	candSamples := []float64{150, 152, 148, 151, 149, 150, 153, 147, 150, 151}
	base := describe(baseSamples)
	cand := describe(candSamples)

	_, _, p, _, _ := welchTTest(base, cand)
	require.Less(t, p, 0.01)
}

func TestCohensDMagnitudeBands(t *testing.T) {
	require.Equal(t, Negligible, magnitudeOf(0.05))
	require.Equal(t, Small, magnitudeOf(0.3))
	require.Equal(t, Medium, magnitudeOf(0.6))
	require.Equal(t, Large, magnitudeOf(1.2))
}

func TestCompareProducesPercentImprovement(t *testing.T) {
	runs := []Run{
		{Name: "baseline", Metrics: map[string][]float64{"latency_ms": {100, 100, 100, 100, 100}}},
		{Name: "candidate", Metrics: map[string][]float64{"latency_ms": {80, 80, 80, 80, 80}}},
	}
	report, err := Compare(runs, []string{"latency_ms"})
	require.NoError(t, err)
	require.Len(t, report.Runs, 1)
	mc := report.Runs[0].Metrics[0]
	require.InDelta(t, -0.2, mc.PercentImprovement, 1e-9)
}

func TestCompareRequiresAtLeastTwoRuns(t *testing.T) {
	_, err := Compare([]Run{{Name: "only"}}, []string{"m"})
	require.Error(t, err)
}

func TestCompareSkipsMetricsMissingFromEitherRun(t *testing.T) {
	runs := []Run{
		{Name: "baseline", Metrics: map[string][]float64{"a": {1, 2, 3}}},
		{Name: "candidate", Metrics: map[string][]float64{"b": {1, 2, 3}}},
	}
	report, err := Compare(runs, []string{"a", "b"})
	require.NoError(t, err)
	require.Empty(t, report.Runs[0].Metrics)
}

func TestSelectWinnerBreaksTiesAlphabetically(t *testing.T) {
	runs := []RunComparison{
		{RunName: "zeta", SigCount: 2},
		{RunName: "alpha", SigCount: 2},
	}
	require.Equal(t, "alpha", selectWinner(runs))
}

func TestSelectWinnerPicksHighestSigCount(t *testing.T) {
	runs := []RunComparison{
		{RunName: "low", SigCount: 1},
		{RunName: "high", SigCount: 3},
	}
	require.Equal(t, "high", selectWinner(runs))
}

func TestSummarizeRendersStarsForSignificance(t *testing.T) {
	report := ComparisonReport{
		BaselineName: "baseline",
		Runs: []RunComparison{
			{RunName: "candidate", Metrics: []MetricComparison{
				{Metric: "m", SignificantAt01: true, SignificantAt05: true, EffectMagnitude: Large},
			}},
		},
		Winner: "candidate",
	}
	summary := Summarize(report)
	require.Equal(t, "**", summary.Runs[0].Rows[0].Stars)
	require.Equal(t, "large", summary.Runs[0].Rows[0].EffectMagnitude)
}

func TestIncompleteBetaBoundaryValues(t *testing.T) {
	require.Equal(t, 0.0, incompleteBeta(0, 2, 3))
	require.Equal(t, 1.0, incompleteBeta(1, 2, 3))
	require.False(t, math.IsNaN(incompleteBeta(0.5, 2, 3)))
}
