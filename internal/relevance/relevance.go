// Package relevance scores retrieval candidates by blending semantic,
// temporal, and causal-graph signals into a single ranking score, the way
// internal/rag/retrieve fuses full-text and vector ranks via RRF.
package relevance

import (
	"math"
	"sort"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// DefaultHalfLife is τ in temporal_score = exp(-age_seconds / τ): 7 days.
const DefaultHalfLife = 7 * 24 * 60 * 60

// Weights blends the three component scores. The zero value is invalid;
// use Default or InfluenceFocused.
type Weights struct {
	Semantic float64
	Temporal float64
	Graph    float64
}

// Default is the general-purpose weighting from spec.md §4.6.
var Default = Weights{Semantic: 0.6, Temporal: 0.2, Graph: 0.2}

// InfluenceFocused favors graph influence, for root-cause retrieval.
var InfluenceFocused = Weights{Semantic: 0.4, Temporal: 0.1, Graph: 0.5}

// Candidate is one scoring input: a nearest-neighbor hit plus its timestamp
// and raw (unnormalized) graph influence.
type Candidate struct {
	EdgeID        model.TraceID
	SemanticScore float64 // in [0,1]
	TimestampUS   int64
	RawInfluence  float64 // causal.Index.Influence(EdgeID), pre-normalization
}

// Scored is a Candidate with its computed final_score attached.
type Scored struct {
	Candidate
	FinalScore float64
}

// Score computes one candidate's final_score given nowUS (the reference
// time) and already-normalized graphScore in [0,1]. Exposed separately from
// ScoreBatch so callers that already have a normalized graph score (e.g. a
// single-candidate path) can skip the batch normalization pass.
func Score(c Candidate, nowUS int64, halfLifeSeconds float64, graphScore float64, w Weights) float64 {
	if halfLifeSeconds <= 0 {
		halfLifeSeconds = DefaultHalfLife
	}
	ageSeconds := float64(nowUS-c.TimestampUS) / 1e6
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	temporal := math.Exp(-ageSeconds / halfLifeSeconds)

	semantic := clamp01(c.SemanticScore)
	graph := clamp01(graphScore)

	return w.Semantic*semantic + w.Temporal*temporal + w.Graph*graph
}

// ScoreBatch normalizes RawInfluence to [0,1] within the candidate set, then
// scores every candidate and sorts descending by FinalScore, with ties
// broken by recency (newer first) then by EdgeID for determinism.
func ScoreBatch(candidates []Candidate, nowUS int64, halfLifeSeconds float64, w Weights) []Scored {
	maxInfluence := 0.0
	for _, c := range candidates {
		if c.RawInfluence > maxInfluence {
			maxInfluence = c.RawInfluence
		}
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		graphScore := 0.0
		if maxInfluence > 0 {
			graphScore = c.RawInfluence / maxInfluence
		}
		out[i] = Scored{
			Candidate:  c,
			FinalScore: Score(c, nowUS, halfLifeSeconds, graphScore, w),
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if out[i].TimestampUS != out[j].TimestampUS {
			return out[i].TimestampUS > out[j].TimestampUS
		}
		return lessTraceID(out[i].EdgeID, out[j].EdgeID)
	})
	return out
}

func lessTraceID(a, b model.TraceID) bool {
	if a.Hi != b.Hi {
		return a.Hi < b.Hi
	}
	return a.Lo < b.Lo
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
