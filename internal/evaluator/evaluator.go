// Package evaluator implements the pluggable evaluator registry (C9) and
// its built-in primitives (C10): reference-metric, LLM-judge, toxicity,
// anomaly, and causal-integrity graders, all built against one narrow
// Evaluator capability interface so new graders can be registered without
// touching the runner.
package evaluator

import (
	"context"
	"sort"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// TraceContext is what an evaluator is handed: the edge set under test plus
// whatever input/output/reference text and metadata the caller has on hand.
type TraceContext struct {
	TraceID     model.TraceID
	Edges       []model.Edge
	Input       string
	Output      string
	Context     []string // retrieved/provided context passages
	Metadata    map[string]string
	EvalTraceID model.TraceID // if this evaluation is itself being traced
	TimestampUS int64
}

// Severity categorizes a failing grade for actionable feedback.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Result is the outcome of one evaluator run against one TraceContext.
type Result struct {
	EvaluatorID string
	Score       float64 // always in [0,1]
	Pass        bool
	Metrics     map[string]float64 // named sub-scores, e.g. per ROUGE variant
	Feedback    string
	Severity    Severity
	Categories  map[string]float64 // e.g. toxicity's per-label probabilities
	DurationMS  int64
}

// Metadata describes an evaluator for discovery/UI purposes.
type Metadata struct {
	Name          string
	Version       string
	Description   string
	CostPerEval   float64
	AvgLatencyMS  float64
	Tags          []string
	Author        string
}

// Evaluator is the polymorphic capability every grader implements.
type Evaluator interface {
	ID() string
	Metadata() Metadata
	Evaluate(ctx context.Context, trace TraceContext) (Result, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nowMS(start time.Time) int64 { return time.Since(start).Milliseconds() }
