package evaluator

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
	"github.com/agentreplay/agentreplay-sub001/internal/observability"
)

// Registry indexes evaluators by id and runs them, grounded on the
// teacher's playground/eval Registry/Factory split but keyed by evaluator
// instance rather than by config-driven factory, since C9's evaluators are
// constructed once (with their own injected LLM/embedding clients) and then
// registered by stable identity.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator

	cache         *cache.Cache
	cacheEnabled  bool
	maxConcurrent int
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithCache enables the optional result cache, keyed by a fingerprint of
// (trace_id, canonicalized metadata, sorted evaluator_ids), with the given
// TTL.
func WithCache(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.cache = cache.New(ttl, ttl*2)
		r.cacheEnabled = true
	}
}

// WithMaxConcurrent bounds how many traces EvaluateBatch evaluates at once.
func WithMaxConcurrent(n int) RegistryOption {
	return func(r *Registry) { r.maxConcurrent = n }
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator), maxConcurrent: 8}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds an evaluator, failing on a duplicate id.
func (r *Registry) Register(ev Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ev.ID()
	if _, exists := r.evaluators[id]; exists {
		return agenterr.New(agenterr.InvalidInput, "evaluator %q already registered", id)
	}
	r.evaluators[id] = ev
	return nil
}

// Unregister removes an evaluator by id; a no-op if absent.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.evaluators, id)
}

// Get returns the evaluator registered under id, if any.
func (r *Registry) Get(id string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.evaluators[id]
	return ev, ok
}

// List returns every registered evaluator's id, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.evaluators))
	for id := range r.evaluators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvaluateTrace runs evaluatorIDs against trace in parallel under timeout.
// Individual evaluator failures are logged and omitted from the result map
// (partial success), per spec.md §4.9.
func (r *Registry) EvaluateTrace(ctx context.Context, trace TraceContext, evaluatorIDs []string, timeout time.Duration) map[string]Result {
	if r.cacheEnabled {
		key := r.fingerprint(trace, evaluatorIDs)
		if cached, ok := r.cache.Get(key); ok {
			return cached.(map[string]Result)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		id  string
		res Result
		err error
	}
	out := make(chan outcome, len(evaluatorIDs))
	for _, id := range evaluatorIDs {
		ev, ok := r.Get(id)
		if !ok {
			observability.LoggerWithTrace(runCtx).Warn().Str("evaluator_id", id).Msg("evaluate_trace: unknown evaluator id, skipping")
			continue
		}
		go func(id string, ev Evaluator) {
			start := time.Now()
			res, err := ev.Evaluate(runCtx, trace)
			res.DurationMS = nowMS(start)
			out <- outcome{id: id, res: res, err: err}
		}(id, ev)
	}

	results := make(map[string]Result)
	expected := 0
	for _, id := range evaluatorIDs {
		if _, ok := r.Get(id); ok {
			expected++
		}
	}
	for i := 0; i < expected; i++ {
		o := <-out
		if o.err != nil {
			observability.LoggerWithTrace(runCtx).Warn().Err(o.err).Str("evaluator_id", o.id).Msg("evaluate_trace: evaluator failed, omitting from result")
			continue
		}
		results[o.id] = o.res
	}

	if r.cacheEnabled {
		r.cache.SetDefault(r.fingerprint(trace, evaluatorIDs), results)
	}
	return results
}

// EvaluateBatch runs EvaluateTrace across traces, capping concurrency at
// maxConcurrent (configured via WithMaxConcurrent, default 8) with a
// semaphore, per spec.md §4.9.
func (r *Registry) EvaluateBatch(ctx context.Context, traces []TraceContext, evaluatorIDs []string, timeout time.Duration) []map[string]Result {
	results := make([]map[string]Result, len(traces))
	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup
	for i, trace := range traces {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, trace TraceContext) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.EvaluateTrace(ctx, trace, evaluatorIDs, timeout)
		}(i, trace)
	}
	wg.Wait()
	return results
}

// AggregationMode selects how TaskPolicy composites per-evaluator results.
type AggregationMode string

const (
	AggregationWeightedMean AggregationMode = "weighted_mean"
	AggregationTrimmedMean  AggregationMode = "trimmed_mean"
	AggregationMedian       AggregationMode = "median"
)

// PolicyMode selects how TaskPolicy derives overall.passed.
type PolicyMode string

const (
	PolicyAll      PolicyMode = "all"
	PolicyAny      PolicyMode = "any"
	PolicyQuorum   PolicyMode = "quorum"
	PolicyWeighted PolicyMode = "weighted"
)

// TaskPolicy is the pass/fail aggregation rule for a task definition's
// declared graders, per spec.md §4.9.
type TaskPolicy struct {
	Mode        PolicyMode
	Quorum      int             // PolicyQuorum only; 0 means ceil(n/2)
	TieBreaker  bool            // PolicyQuorum tie-break: true = pass
	Aggregation AggregationMode // PolicyWeighted only; default median
	Threshold   float64         // PolicyWeighted only; default 0.5
	Weights     map[string]float64
}

// TaskDefinition names the graders a task declares and the policy used to
// combine their results into one pass/fail verdict.
type TaskDefinition struct {
	EvaluatorIDs []string
	Policy       TaskPolicy
	Timeout      time.Duration
}

// TaskOutcome is the result of EvaluateTaskDefinition.
type TaskOutcome struct {
	Results   map[string]Result
	Composite float64
	Passed    bool
}

// EvaluateTaskDefinition runs every grader task declares, then applies
// task.Policy to compute a single overall verdict, per spec.md §4.9.
func (r *Registry) EvaluateTaskDefinition(ctx context.Context, trace TraceContext, task TaskDefinition) TaskOutcome {
	results := r.EvaluateTrace(ctx, trace, task.EvaluatorIDs, task.Timeout)
	return applyPolicy(results, task.Policy)
}

func applyPolicy(results map[string]Result, policy TaskPolicy) TaskOutcome {
	scores := make([]float64, 0, len(results))
	for _, res := range results {
		scores = append(scores, res.Score)
	}
	composite := compositeScore(results, policy)

	var passed bool
	switch policy.Mode {
	case PolicyAll:
		passed = len(results) > 0
		for _, res := range results {
			if !res.Pass {
				passed = false
				break
			}
		}
	case PolicyAny:
		for _, res := range results {
			if res.Pass {
				passed = true
				break
			}
		}
	case PolicyQuorum:
		quorum := policy.Quorum
		if quorum <= 0 {
			quorum = (len(results) + 1) / 2
		}
		passCount := 0
		for _, res := range results {
			if res.Pass {
				passCount++
			}
		}
		if passCount == quorum && 2*quorum == len(results) {
			passed = policy.TieBreaker
		} else {
			passed = passCount >= quorum
		}
	case PolicyWeighted:
		threshold := policy.Threshold
		if threshold == 0 {
			threshold = 0.5
		}
		passed = composite >= threshold
	default:
		threshold := policy.Threshold
		if threshold == 0 {
			threshold = 0.5
		}
		passed = composite >= threshold
	}

	return TaskOutcome{Results: results, Composite: composite, Passed: passed}
}

func compositeScore(results map[string]Result, policy TaskPolicy) float64 {
	if len(results) == 0 {
		return 0
	}
	switch policy.Aggregation {
	case AggregationWeightedMean:
		var sumW, sumWV float64
		for id, res := range results {
			w := policy.Weights[id]
			if w == 0 {
				w = 1
			}
			sumW += w
			sumWV += w * res.Score
		}
		if sumW == 0 {
			return 0
		}
		return sumWV / sumW
	case AggregationTrimmedMean:
		return trimmedMean(scoresOf(results), 0.1)
	default: // AggregationMedian
		return median(scoresOf(results))
	}
}

func scoresOf(results map[string]Result) []float64 {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	scores := make([]float64, 0, len(results))
	for _, id := range ids {
		scores = append(scores, results[id].Score)
	}
	return scores
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func trimmedMean(values []float64, fraction float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	trim := int(float64(len(sorted)) * fraction)
	trimmed := sorted[trim : len(sorted)-trim]
	if len(trimmed) == 0 {
		trimmed = sorted
	}
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// fingerprint builds the cache key from spec.md §4.9's caching rule:
// (trace_id, canonicalized metadata, sorted evaluator_ids).
func (r *Registry) fingerprint(trace TraceContext, evaluatorIDs []string) string {
	h := fnv.New64a()
	h.Write([]byte(trace.TraceID.String()))

	metaKeys := make([]string, 0, len(trace.Metadata))
	for k, v := range trace.Metadata {
		metaKeys = append(metaKeys, k+"="+v)
	}
	sort.Strings(metaKeys)
	h.Write([]byte(strings.Join(metaKeys, "&")))

	sortedIDs := append([]string(nil), evaluatorIDs...)
	sort.Strings(sortedIDs)
	h.Write([]byte(strings.Join(sortedIDs, ",")))
	return strconv.FormatUint(h.Sum64(), 16)
}
