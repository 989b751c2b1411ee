package evaluator

import (
	"context"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

// AgentCaller is the "agent under test" capability CIP invokes three times
// per evaluation: answer a question given a context.
type AgentCaller interface {
	Answer(ctx context.Context, question string, contextPassages []string) (string, error)
}

// llmAgentCaller adapts an llmclient.Client into an AgentCaller for callers
// that don't have a richer agent harness to inject.
type llmAgentCaller struct {
	client llmclient.Client
	model  string
}

// NewLLMAgentCaller wraps client as a simple single-turn AgentCaller.
func NewLLMAgentCaller(client llmclient.Client, model string) AgentCaller {
	return &llmAgentCaller{client: client, model: model}
}

func (a *llmAgentCaller) Answer(ctx context.Context, question string, contextPassages []string) (string, error) {
	prompt := question + "\n\nContext:\n"
	for _, c := range contextPassages {
		prompt += c + "\n"
	}
	resp, err := a.client.Complete(ctx, llmclient.Request{Model: a.model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// CIPBudget caps per-evaluation cost; Evaluate aborts with BudgetExceeded
// once MaxUSD or MaxTokens would be exceeded mid-run. CostPerCall/
// TokensPerCall are the per-agent-invocation estimates used to track spend
// against the budget, since the narrow AgentCaller/llmclient.Client
// interfaces don't themselves report per-call usage.
type CIPBudget struct {
	MaxUSD        float64
	MaxTokens     int64
	CostPerCall   float64
	TokensPerCall int64
}

// CIP is the Causal Integrity Protocol evaluator from spec.md §4.10: three
// live agent invocations (base, critical-perturbed, null-perturbed)
// compared by embedding cosine similarity to measure adherence to context
// and robustness to meaning-preserving noise.
type CIP struct {
	id       string
	agent    AgentCaller
	saboteur *Saboteur
	embedder embedding.Provider
	budget   CIPBudget
	alphaThr float64
	rhoThr   float64
	omegaThr float64
}

// cipSpend tracks one Evaluate call's estimated cost, local to that call so
// concurrent evaluations of different traces never share state.
type cipSpend struct {
	usd    float64
	tokens int64
}

// CIPOption configures a CIP evaluator.
type CIPOption func(*CIP)

// WithCIPThresholds overrides the default (0.5, 0.8, 0.6) pass thresholds.
func WithCIPThresholds(alpha, rho, omega float64) CIPOption {
	return func(c *CIP) { c.alphaThr, c.rhoThr, c.omegaThr = alpha, rho, omega }
}

// WithCIPBudget sets the per-evaluation cost cap.
func WithCIPBudget(b CIPBudget) CIPOption { return func(c *CIP) { c.budget = b } }

// NewCIP constructs a CIP evaluator.
func NewCIP(id string, agent AgentCaller, saboteur *Saboteur, embedder embedding.Provider, opts ...CIPOption) *CIP {
	c := &CIP{
		id: id, agent: agent, saboteur: saboteur, embedder: embedder,
		alphaThr: 0.5, rhoThr: 0.8, omegaThr: 0.6,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *CIP) ID() string { return c.id }

func (c *CIP) Metadata() Metadata {
	return Metadata{
		Name:        "causal-integrity-protocol",
		Version:     "1.0",
		Description: "counterfactual adherence/robustness evaluation via agent re-invocation",
		Tags:        []string{"counterfactual", "expensive"},
	}
}

func (c *CIP) Evaluate(ctx context.Context, trace TraceContext) (Result, error) {
	start := time.Now()
	question := trace.Input
	baseContext := trace.Context

	spend := &cipSpend{}

	yBase, err := c.agent.Answer(ctx, question, baseContext)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "cip: base agent call failed")
	}
	if err := c.checkBudget(spend); err != nil {
		return Result{}, err
	}

	cCrit, err := c.saboteur.Critical(ctx, question, baseContext)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.QualityCheckFailed, err, "cip: critical perturbation failed")
	}
	yCrit, err := c.agent.Answer(ctx, question, []string{cCrit})
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "cip: critical agent call failed")
	}
	if err := c.checkBudget(spend); err != nil {
		return Result{}, err
	}

	cNull, err := c.saboteur.Null(ctx, baseContext)
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.QualityCheckFailed, err, "cip: null perturbation failed")
	}
	yNull, err := c.agent.Answer(ctx, question, []string{cNull})
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "cip: null agent call failed")
	}
	if err := c.checkBudget(spend); err != nil {
		return Result{}, err
	}

	vecs, err := c.embedder.EmbedBatch(ctx, []string{yBase, yCrit, yNull})
	if err != nil {
		return Result{}, agenterr.Wrap(agenterr.UpstreamFailure, err, "cip: response embedding failed")
	}

	simBC := cosineSimilarity(vecs[0], vecs[1])
	simBN := cosineSimilarity(vecs[0], vecs[2])

	alpha := 1 - simBC
	rho := simBN
	omega := 0.0
	if alpha+rho > 0 {
		omega = 2 * alpha * rho / (alpha + rho)
	}

	passed := alpha >= c.alphaThr && rho >= c.rhoThr && omega >= c.omegaThr

	res := Result{
		EvaluatorID: c.id,
		Score:       omega,
		Pass:        passed,
		Metrics: map[string]float64{
			"adherence": alpha, "robustness": rho, "cip_score": omega,
			"sim_base_critical": simBC, "sim_base_null": simBN,
		},
		DurationMS: nowMS(start),
	}
	if !passed {
		res.Feedback = "failed causal integrity check: adherence/robustness/composite below threshold"
		res.Severity = SeverityMajor
	}
	return res, nil
}

// checkBudget records one agent invocation's estimated cost against spend
// and aborts with BudgetExceeded once either cap configured in CIPBudget is
// crossed. A zero CIPBudget (the default) disables enforcement entirely.
func (c *CIP) checkBudget(spend *cipSpend) error {
	if c.budget.MaxUSD <= 0 && c.budget.MaxTokens <= 0 {
		return nil
	}
	spend.usd += c.budget.CostPerCall
	spend.tokens += c.budget.TokensPerCall
	if c.budget.MaxUSD > 0 && spend.usd > c.budget.MaxUSD {
		return agenterr.New(agenterr.BudgetExceeded, "cip: spent $%.4f exceeds per-eval cap $%.4f", spend.usd, c.budget.MaxUSD)
	}
	if c.budget.MaxTokens > 0 && spend.tokens > c.budget.MaxTokens {
		return agenterr.New(agenterr.BudgetExceeded, "cip: spent %d tokens exceeds per-eval cap %d", spend.tokens, c.budget.MaxTokens)
	}
	return nil
}
