package evaluator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// AnomalyMetricName is one of the four metrics the Anomaly Detector tracks.
type AnomalyMetricName string

const (
	MetricLatencyMS AnomalyMetricName = "latency_ms"
	MetricTokens    AnomalyMetricName = "tokens"
	MetricCost      AnomalyMetricName = "cost"
	MetricErrorRate AnomalyMetricName = "error_rate"
)

var anomalyMetrics = []AnomalyMetricName{MetricLatencyMS, MetricTokens, MetricCost, MetricErrorRate}

const (
	anomalyWarmupSamples = 30
	seasonalBuckets      = 168 // hour + 24*weekday
	seasonalAlpha        = 0.01
	seasonalMinSamples   = 10
	costWindowSize       = 1000
)

// metricState tracks one metric's online EWMA mean and EWMA variance (both
// with adaptive alpha) plus its 168-bucket seasonal profile, per spec.md §4.10.
type metricState struct {
	count   int64
	mean    float64
	m2      float64 // EWMA variance, used directly as the z-score variance (not a Welford sum of squares)
	seasonal [seasonalBuckets]struct {
		count int64
		mean  float64
	}
	costWindow []float64 // sliding window for IQR, MetricCost only
}

func (s *metricState) update(value float64, bucket int) {
	s.count++
	alpha := 2 / math.Min(float64(s.count+1), 1000)
	delta := value - s.mean
	s.mean += alpha * delta
	s.m2 = (1 - alpha) * (s.m2 + alpha*delta*delta)

	sb := &s.seasonal[bucket]
	sb.count++
	sb.mean += seasonalAlpha * (value - sb.mean)
}

func (s *metricState) zScore(value float64, bucket int) float64 {
	variance := s.m2
	if variance <= 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	effectiveMean := s.mean
	sb := s.seasonal[bucket]
	if sb.count > seasonalMinSamples {
		effectiveMean = 0.7*s.mean + 0.3*sb.mean
	}
	return (value - effectiveMean) / stddev
}

// AnomalyDetector is the online anomaly evaluator from spec.md §4.10. One
// detector keeps a single set of metric states; it does not separate them by
// tenant.
type AnomalyDetector struct {
	id          string
	threshold   float64 // sensitivity, default 3.0
	mu          sync.Mutex
	states      map[AnomalyMetricName]*metricState
}

// NewAnomalyDetector constructs an AnomalyDetector with the default
// sensitivity (3.0 standard deviations).
func NewAnomalyDetector(id string) *AnomalyDetector {
	states := make(map[AnomalyMetricName]*metricState, len(anomalyMetrics))
	for _, m := range anomalyMetrics {
		states[m] = &metricState{}
	}
	return &AnomalyDetector{id: id, threshold: 3.0, states: states}
}

// WithSensitivity overrides the default 3.0 z-score threshold.
func (a *AnomalyDetector) WithSensitivity(sensitivity float64) *AnomalyDetector {
	a.threshold = sensitivity
	return a
}

func (a *AnomalyDetector) ID() string { return a.id }

func (a *AnomalyDetector) Metadata() Metadata {
	return Metadata{
		Name:        "anomaly-detector",
		Version:     "1.0",
		Description: "online EWMA/seasonal/IQR anomaly detection over latency, tokens, cost, error rate",
		Tags:        []string{"statistical", "stateful"},
	}
}

// anomalyObservation is what Evaluate needs beyond TraceContext.Metadata:
// the four raw metric values for this trace. Derived from metadata keys
// the ingestion/edge layer is expected to populate.
type anomalyObservation struct {
	latencyMS float64
	tokens    float64
	cost      float64
	hasError  bool
	timestamp time.Time
}

func observationFromTrace(trace TraceContext) anomalyObservation {
	var obs anomalyObservation
	var totalDuration, totalTokens int64
	var hasError bool
	for _, e := range trace.Edges {
		totalDuration += e.DurationUS
		totalTokens += e.TokenCount
		if e.HasError() {
			hasError = true
		}
	}
	obs.latencyMS = float64(totalDuration) / 1000
	obs.tokens = float64(totalTokens)
	obs.hasError = hasError
	if trace.TimestampUS > 0 {
		obs.timestamp = time.UnixMicro(trace.TimestampUS)
	} else {
		obs.timestamp = time.Now()
	}
	if v, ok := trace.Metadata["cost_usd"]; ok {
		fmt.Sscanf(v, "%f", &obs.cost)
	}
	return obs
}

func seasonalBucket(t time.Time) int {
	return t.Hour() + 24*int(t.Weekday())
}

func (a *AnomalyDetector) Evaluate(ctx context.Context, trace TraceContext) (Result, error) {
	start := time.Now()
	obs := observationFromTrace(trace)
	bucket := seasonalBucket(obs.timestamp)

	a.mu.Lock()
	defer a.mu.Unlock()

	latencyState := a.states[MetricLatencyMS]
	tokensState := a.states[MetricTokens]
	costState := a.states[MetricCost]
	errorState := a.states[MetricErrorRate]

	warm := latencyState.count >= anomalyWarmupSamples

	errorRate := 0.0
	if obs.hasError {
		errorRate = 1.0
	}

	var latencyZ, tokensZ, costZ, errorZ float64
	if warm {
		latencyZ = latencyState.zScore(obs.latencyMS, bucket)
		tokensZ = tokensState.zScore(obs.tokens, bucket)
		errorZ = errorState.zScore(errorRate, bucket)
		costZ = costState.zScore(obs.cost, bucket)
	}

	costState.costWindow = append(costState.costWindow, obs.cost)
	if len(costState.costWindow) > costWindowSize {
		costState.costWindow = costState.costWindow[len(costState.costWindow)-costWindowSize:]
	}
	costAnomalous := warm && isIQRAnomalous(costState.costWindow, obs.cost)

	latencyState.update(obs.latencyMS, bucket)
	tokensState.update(obs.tokens, bucket)
	costState.update(obs.cost, bucket)
	errorState.update(errorRate, bucket)

	metrics := map[string]float64{
		"latency_z": latencyZ, "tokens_z": tokensZ, "cost_z": costZ, "error_rate_z": errorZ,
		"samples_seen": float64(latencyState.count),
	}

	anomalous := warm && (math.Abs(latencyZ) > a.threshold ||
		math.Abs(tokensZ) > a.threshold ||
		math.Abs(errorZ) > a.threshold ||
		costAnomalous)

	maxAbsZ := math.Max(math.Abs(latencyZ), math.Max(math.Abs(tokensZ), math.Abs(errorZ)))
	score := 1.0
	if a.threshold > 0 {
		score = clamp01(1 - maxAbsZ/(2*a.threshold))
	}

	res := Result{
		EvaluatorID: a.id,
		Score:       score,
		Pass:        !anomalous,
		Metrics:     metrics,
		DurationMS:  nowMS(start),
	}
	if anomalous {
		res.Feedback = "metric deviates beyond sensitivity threshold"
		res.Severity = SeverityMajor
	}
	return res, nil
}

// isIQRAnomalous reports whether value falls outside [Q1-1.5*IQR,
// Q3+1.5*IQR] over the sliding window, per spec.md §4.10.
func isIQRAnomalous(window []float64, value float64) bool {
	if len(window) < 4 {
		return false
	}
	sorted := append([]float64(nil), window...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	return value < lower || value > upper
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
