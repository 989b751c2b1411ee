package evaluator

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
)

// ReferenceMetric is the deterministic text-similarity evaluator from
// spec.md §4.10: ROUGE-N (1,2), ROUGE-L, BLEU-4, with an optional
// embedding-backed BERTScore.
type ReferenceMetric struct {
	id            string
	primaryMetric string // which metric decides Pass, e.g. "rouge1_f1"
	threshold     float64
	embedder      embedding.Provider // optional, enables BERTScore
}

// ReferenceOption configures a ReferenceMetric.
type ReferenceOption func(*ReferenceMetric)

// WithPrimaryMetric overrides which metric's F1 decides Pass.
func WithPrimaryMetric(name string, threshold float64) ReferenceOption {
	return func(r *ReferenceMetric) { r.primaryMetric = name; r.threshold = threshold }
}

// WithBERTScore enables BERTScore via an injected embedding provider.
func WithBERTScore(p embedding.Provider) ReferenceOption {
	return func(r *ReferenceMetric) { r.embedder = p }
}

// NewReferenceMetric constructs a ReferenceMetric evaluator registered
// under id.
func NewReferenceMetric(id string, opts ...ReferenceOption) *ReferenceMetric {
	r := &ReferenceMetric{id: id, primaryMetric: "rouge1_f1", threshold: 0.5}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *ReferenceMetric) ID() string { return r.id }

func (r *ReferenceMetric) Metadata() Metadata {
	return Metadata{
		Name:        "reference-metrics",
		Version:     "1.0",
		Description: "ROUGE-N/L and BLEU-4 against a reference text",
		Tags:        []string{"deterministic", "text-similarity"},
	}
}

var tokenEdgeRe = regexp.MustCompile(`^[^a-z0-9]+|[^a-z0-9]+$`)

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = tokenEdgeRe.ReplaceAllString(f, "")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func referenceText(trace TraceContext) string {
	if ref, ok := trace.Metadata["expected_output"]; ok && ref != "" {
		return ref
	}
	if ref, ok := trace.Metadata["reference"]; ok && ref != "" {
		return ref
	}
	if len(trace.Context) > 0 {
		return trace.Context[0]
	}
	return ""
}

func (r *ReferenceMetric) Evaluate(ctx context.Context, trace TraceContext) (Result, error) {
	start := time.Now()
	candidate := tokenize(trace.Output)
	reference := tokenize(referenceText(trace))

	metrics := map[string]float64{}
	p1, r1, f1 := rougeN(candidate, reference, 1)
	metrics["rouge1_precision"], metrics["rouge1_recall"], metrics["rouge1_f1"] = p1, r1, f1
	p2, r2, f2 := rougeN(candidate, reference, 2)
	metrics["rouge2_precision"], metrics["rouge2_recall"], metrics["rouge2_f1"] = p2, r2, f2
	pl, rl, fl := rougeL(candidate, reference)
	metrics["rougeL_precision"], metrics["rougeL_recall"], metrics["rougeL_f1"] = pl, rl, fl
	metrics["bleu4"] = bleu4(candidate, reference)

	if r.embedder != nil && len(candidate) > 0 && len(reference) > 0 {
		bp, br, bf, err := bertScore(ctx, r.embedder, candidate, reference)
		if err == nil {
			metrics["bertscore_precision"], metrics["bertscore_recall"], metrics["bertscore_f1"] = bp, br, bf
		}
	}

	primary, ok := metrics[r.primaryMetric]
	if !ok {
		primary = f1
	}
	res := Result{
		EvaluatorID: r.id,
		Score:       clamp01(primary),
		Pass:        primary >= r.threshold,
		Metrics:     metrics,
		DurationMS:  nowMS(start),
	}
	if !res.Pass {
		res.Feedback = "candidate output diverges from reference text"
	}
	return res, nil
}

// ngramCounts returns raw n-gram multiset counts; rougeN and bleu4 clip them
// against the reference counts.
func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	if len(tokens) < n {
		return counts
	}
	for i := 0; i+n <= len(tokens); i++ {
		key := strings.Join(tokens[i:i+n], " ")
		counts[key]++
	}
	return counts
}

func rougeN(candidate, reference []string, n int) (precision, recall, f1 float64) {
	candCounts := ngramCounts(candidate, n)
	refCounts := ngramCounts(reference, n)
	if len(candCounts) == 0 || len(refCounts) == 0 {
		return 0, 0, 0
	}
	var overlap int
	for gram, c := range candCounts {
		if rc, ok := refCounts[gram]; ok {
			overlap += min(c, rc)
		}
	}
	var candTotal, refTotal int
	for _, c := range candCounts {
		candTotal += c
	}
	for _, c := range refCounts {
		refTotal += c
	}
	if candTotal > 0 {
		precision = float64(overlap) / float64(candTotal)
	}
	if refTotal > 0 {
		recall = float64(overlap) / float64(refTotal)
	}
	f1 = f1Score(precision, recall)
	return precision, recall, f1
}

// rougeL computes precision/recall/F1 from the longest common subsequence
// length, F1 weighted by beta=precision/recall per spec.md §4.10.
func rougeL(candidate, reference []string) (precision, recall, f1 float64) {
	lcs := lcsLength(candidate, reference)
	if len(candidate) == 0 || len(reference) == 0 || lcs == 0 {
		return 0, 0, 0
	}
	precision = float64(lcs) / float64(len(candidate))
	recall = float64(lcs) / float64(len(reference))
	if precision == 0 || recall == 0 {
		return precision, recall, 0
	}
	beta := precision / recall
	f1 = (1 + beta*beta) * precision * recall / (recall + beta*beta*precision)
	return precision, recall, f1
}

// lcsLength runs the standard O(m*n) time, O(min(m,n)) space DP.
func lcsLength(a, b []string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := 1; j <= len(b); j++ {
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				curr[i] = prev[i-1] + 1
			} else if prev[i] >= curr[i-1] {
				curr[i] = prev[i]
			} else {
				curr[i] = curr[i-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// bleu4 computes modified n-gram precision (n=1..4) with add-1 smoothing for
// zero counts and a brevity penalty, per spec.md §4.10.
func bleu4(candidate, reference []string) float64 {
	if len(candidate) == 0 {
		return 0
	}
	var logSum float64
	for n := 1; n <= 4; n++ {
		candCounts := ngramCounts(candidate, n)
		refCounts := ngramCounts(reference, n)
		var overlap, total int
		for gram, c := range candCounts {
			total += c
			if rc, ok := refCounts[gram]; ok {
				overlap += min(c, rc)
			}
		}
		// add-1 smoothing keeps a zero-overlap n-gram order from zeroing the
		// whole geometric mean outright.
		p := float64(overlap) / float64(total)
		if overlap == 0 {
			p = float64(overlap+1) / float64(total+1)
		}
		logSum += math.Log(p)
	}
	geoMean := math.Exp(logSum / 4)

	c := float64(len(candidate))
	rLen := float64(len(reference))
	bp := 1.0
	if c <= rLen {
		bp = math.Exp(1 - rLen/c)
	}
	return bp * geoMean
}

func f1Score(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// bertScore computes embedding-backed precision/recall/F1: precision is the
// mean over candidate tokens of the max cosine similarity to any reference
// token, recall is symmetric, per spec.md §4.10.
func bertScore(ctx context.Context, p embedding.Provider, candidate, reference []string) (precision, recall, f1 float64, err error) {
	vecs, err := p.EmbedBatch(ctx, append(append([]string{}, candidate...), reference...))
	if err != nil {
		return 0, 0, 0, err
	}
	candVecs := vecs[:len(candidate)]
	refVecs := vecs[len(candidate):]

	precision = meanMaxCosine(candVecs, refVecs)
	recall = meanMaxCosine(refVecs, candVecs)
	f1 = f1Score(precision, recall)
	return precision, recall, f1, nil
}

func meanMaxCosine(from, to [][]float32) float64 {
	if len(from) == 0 || len(to) == 0 {
		return 0
	}
	var sum float64
	for _, a := range from {
		best := -1.0
		for _, b := range to {
			if s := cosineSimilarity(a, b); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
