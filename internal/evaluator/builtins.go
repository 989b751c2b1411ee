package evaluator

import (
	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

// BuiltinsConfig names the five primitives a running deployment registers
// by default, per spec.md §4.10.
type BuiltinsConfig struct {
	LLMClient llmclient.Client
	Embedder  embedding.Provider
	Model     string
	Criteria  []Criterion // G-Eval criteria; a sane default is used if empty

	AnomalySensitivity float64 // z-score threshold; <= 0 keeps the detector's default

	CIPAlphaThreshold float64
	CIPRhoThreshold   float64
	CIPOmegaThreshold float64
	CIPBudget         CIPBudget
}

var defaultGEvalCriteria = []Criterion{
	{Name: "relevance", Description: "Does the output address the input?", Min: 1, Max: 5, Weight: 1},
	{Name: "faithfulness", Description: "Is the output grounded in the provided context?", Min: 1, Max: 5, Weight: 1},
}

// RegisterBuiltins registers the five built-in evaluators (reference
// metrics, G-Eval, toxicity, anomaly detection, CIP) under their
// conventional ids, per spec.md §4.10.
func RegisterBuiltins(r *Registry, cfg BuiltinsConfig) error {
	criteria := cfg.Criteria
	if len(criteria) == 0 {
		criteria = defaultGEvalCriteria
	}

	refOpts := []ReferenceOption{}
	if cfg.Embedder != nil {
		refOpts = append(refOpts, WithBERTScore(cfg.Embedder))
	}
	if err := r.Register(NewReferenceMetric("reference_metrics", refOpts...)); err != nil {
		return err
	}
	if err := r.Register(NewGEval("g_eval", cfg.LLMClient, criteria, WithModel(cfg.Model))); err != nil {
		return err
	}
	if err := r.Register(NewToxicity("toxicity")); err != nil {
		return err
	}
	anomaly := NewAnomalyDetector("anomaly_detector")
	if cfg.AnomalySensitivity > 0 {
		anomaly = anomaly.WithSensitivity(cfg.AnomalySensitivity)
	}
	if err := r.Register(anomaly); err != nil {
		return err
	}

	cipOpts := []CIPOption{}
	if cfg.CIPAlphaThreshold > 0 || cfg.CIPRhoThreshold > 0 || cfg.CIPOmegaThreshold > 0 {
		cipOpts = append(cipOpts, WithCIPThresholds(cfg.CIPAlphaThreshold, cfg.CIPRhoThreshold, cfg.CIPOmegaThreshold))
	}
	if cfg.CIPBudget != (CIPBudget{}) {
		cipOpts = append(cipOpts, WithCIPBudget(cfg.CIPBudget))
	}
	saboteur := NewSaboteur(cfg.LLMClient, cfg.Embedder, cfg.Model)
	agent := NewLLMAgentCaller(cfg.LLMClient, cfg.Model)
	if err := r.Register(NewCIP("causal_integrity", agent, saboteur, cfg.Embedder, cipOpts...)); err != nil {
		return err
	}
	return nil
}
