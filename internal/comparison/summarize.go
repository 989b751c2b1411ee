package comparison

import "fmt"

// MetricRow is one plain-data row of a rendered comparison table, ready for
// a CLI or UI layer to print without re-deriving any statistics.
type MetricRow struct {
	Metric             string
	BaselineMean       float64
	BaselineMedian     float64
	CandidateMean      float64
	CandidateMedian    float64
	CILow              float64
	CIHigh             float64
	Stars              string // "**" p<0.01, "*" p<0.05, "" otherwise
	EffectMagnitude    string
	PercentImprovement float64
}

// RunSummary is one run's rendered table.
type RunSummary struct {
	RunName string
	Rows    []MetricRow
}

// Summary is the rendered view of a ComparisonReport, per SPEC_FULL.md's
// C12 supplement.
type Summary struct {
	BaselineName string
	Runs         []RunSummary
	Winner       string
}

// Summarize renders report as plain structured data.
func Summarize(report ComparisonReport) Summary {
	s := Summary{BaselineName: report.BaselineName, Winner: report.Winner}
	for _, rc := range report.Runs {
		rs := RunSummary{RunName: rc.RunName}
		for _, mc := range rc.Metrics {
			rs.Rows = append(rs.Rows, MetricRow{
				Metric:             mc.Metric,
				BaselineMean:       mc.Baseline.Mean,
				BaselineMedian:     mc.Baseline.Median,
				CandidateMean:      mc.Candidate.Mean,
				CandidateMedian:    mc.Candidate.Median,
				CILow:              mc.CILow,
				CIHigh:             mc.CIHigh,
				Stars:              significanceStars(mc),
				EffectMagnitude:    mc.EffectMagnitude.String(),
				PercentImprovement: mc.PercentImprovement,
			})
		}
		s.Runs = append(s.Runs, rs)
	}
	return s
}

func significanceStars(mc MetricComparison) string {
	switch {
	case mc.SignificantAt01:
		return "**"
	case mc.SignificantAt05:
		return "*"
	default:
		return ""
	}
}

// String renders row as a single human-readable line, e.g. for a CLI table.
func (r MetricRow) String() string {
	return fmt.Sprintf("%-24s base=%.4g cand=%.4g (%+.1f%%) ci=[%.4g,%.4g] %s effect=%s",
		r.Metric, r.BaselineMean, r.CandidateMean, r.PercentImprovement*100, r.CILow, r.CIHigh, r.Stars, r.EffectMagnitude)
}
