package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

// Criterion is one user-declared G-Eval grading dimension.
type Criterion struct {
	Name        string
	Description string
	Min, Max    int
	Weight      float64
}

// GEval is the LLM-judge evaluator from spec.md §4.10: for each declared
// criterion, prompts the LLM for an integer score and combines them into a
// weighted mean scaled to [0,1].
type GEval struct {
	id         string
	client     llmclient.Client
	model      string
	criteria   []Criterion
	threshold  float64
	useLogprob bool // probability-normalized mode; default true when client supports logprobs
}

// GEvalOption configures a GEval evaluator.
type GEvalOption func(*GEval)

// WithModel overrides the LLM model name used for grading.
func WithModel(model string) GEvalOption { return func(g *GEval) { g.model = model } }

// WithThreshold overrides the pass threshold (default 0.6).
func WithThreshold(t float64) GEvalOption { return func(g *GEval) { g.threshold = t } }

// WithRawScoring disables probability-normalized scoring, taking the
// integer score as-is even when logprobs are available.
func WithRawScoring() GEvalOption { return func(g *GEval) { g.useLogprob = false } }

// NewGEval constructs a GEval evaluator grading against criteria.
func NewGEval(id string, client llmclient.Client, criteria []Criterion, opts ...GEvalOption) *GEval {
	g := &GEval{id: id, client: client, criteria: criteria, threshold: 0.6, useLogprob: true}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GEval) ID() string { return g.id }

func (g *GEval) Metadata() Metadata {
	return Metadata{
		Name:        "g-eval",
		Version:     "1.0",
		Description: "LLM-judge scoring against user-declared criteria",
		Tags:        []string{"llm-judge"},
	}
}

type gevalJudgment struct {
	Criterion string `json:"criterion"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

func (g *GEval) Evaluate(ctx context.Context, trace TraceContext) (Result, error) {
	start := time.Now()
	if len(g.criteria) == 0 {
		return Result{}, agenterr.New(agenterr.InvalidInput, "g-eval: no criteria declared")
	}

	prompt := g.buildPrompt(trace)
	resp, err := g.client.Complete(ctx, llmclient.Request{
		Model:        g.model,
		SystemPrompt: "You are an impartial evaluator. Respond with a JSON array only.",
		Prompt:       prompt,
		Logprobs:     g.useLogprob,
		TopLogprobs:  5,
	})
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "g-eval: llm completion failed")
	}

	judgments, err := parseJudgments(resp.Content)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.Internal, err, "g-eval: could not parse judge response")
	}

	metrics := make(map[string]float64, len(g.criteria))
	var weightedSum, weightTotal float64
	var feedbacks []string
	worstSeverity := SeverityNone

	byName := make(map[string]gevalJudgment, len(judgments))
	for _, j := range judgments {
		byName[j.Criterion] = j
	}

	for _, c := range g.criteria {
		j, ok := byName[c.Name]
		if !ok {
			continue
		}
		var raw float64
		if g.useLogprob && len(resp.Logprobs) > 0 {
			raw = probabilityNormalizedScore(resp.Logprobs, c.Min, c.Max, j.Score)
		} else {
			raw = float64(j.Score)
		}
		normalized := clamp01(scaleToUnit(raw, c.Min, c.Max))
		metrics[c.Name] = normalized

		weight := c.Weight
		if weight == 0 {
			weight = 1
		}
		weightedSum += weight * normalized
		weightTotal += weight

		sev := severityFor(normalized)
		if severityRank(sev) > severityRank(worstSeverity) {
			worstSeverity = sev
		}
		if normalized < g.threshold && j.Reasoning != "" {
			feedbacks = append(feedbacks, fmt.Sprintf("%s: %s", c.Name, j.Reasoning))
		}
	}

	var final float64
	if weightTotal > 0 {
		final = weightedSum / weightTotal
	}

	res := Result{
		EvaluatorID: g.id,
		Score:       final,
		Pass:        final >= g.threshold,
		Metrics:     metrics,
		DurationMS:  nowMS(start),
	}
	if !res.Pass {
		res.Severity = worstSeverity
		res.Feedback = strings.Join(feedbacks, "; ")
	}
	return res, nil
}

func (g *GEval) buildPrompt(trace TraceContext) string {
	var sb strings.Builder
	sb.WriteString("Input: ")
	sb.WriteString(trace.Input)
	sb.WriteString("\nOutput: ")
	sb.WriteString(trace.Output)
	sb.WriteString("\n\nScore the output on each criterion below. Reply with a JSON array of ")
	sb.WriteString(`{"criterion","score","reasoning"}`)
	sb.WriteString(" objects.\n")
	for _, c := range g.criteria {
		fmt.Fprintf(&sb, "- %s (%d-%d): %s\n", c.Name, c.Min, c.Max, c.Description)
	}
	return sb.String()
}

func parseJudgments(content string) ([]gevalJudgment, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in judge response")
	}
	var out []gevalJudgment
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scaleToUnit(v float64, min, max int) float64 {
	if max == min {
		return 0
	}
	return (v - float64(min)) / float64(max-min)
}

func severityFor(score float64) Severity {
	switch {
	case score < 0.3:
		return SeverityCritical
	case score < 0.45:
		return SeverityMajor
	case score < 0.6:
		return SeverityMinor
	default:
		return SeverityNone
	}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// probabilityNormalizedScore implements spec.md §4.10's S = sum_i i*P(i) /
// sum_i P(i), deriving P(i) from the response's top-k logprobs for the
// score token, falling back to the raw integer score when no distribution
// over the declared range is present in the returned alternates.
func probabilityNormalizedScore(logprobs []llmclient.TokenLogprob, min, max, raw int) float64 {
	tok := logprobs[len(logprobs)-1]
	probs := make(map[int]float64)
	probs[raw] = math.Exp(tok.Logprob)
	for alt, lp := range tok.Alternates {
		var i int
		if _, err := fmt.Sscanf(alt, "%d", &i); err != nil {
			continue
		}
		if i < min || i > max {
			continue
		}
		probs[i] = math.Exp(lp)
	}
	var num, den float64
	for i, p := range probs {
		num += float64(i) * p
		den += p
	}
	if den == 0 {
		return float64(raw)
	}
	return num / den
}
