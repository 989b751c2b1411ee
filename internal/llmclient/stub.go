package llmclient

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Stub is a hash-based deterministic Client for tests: the same prompt
// always produces the same response and logprobs, with no network
// dependency, mirroring the embedding package's Deterministic provider.
type Stub struct {
	// ScoreTemplate, when non-empty, is used verbatim as Content (with
	// "%d" substituted by a hash-derived integer score 1-5) instead of the
	// default JSON-array-of-criteria shape G-Eval expects.
	ScoreTemplate string
}

// NewStub constructs a Stub with the default G-Eval-shaped response.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Complete(_ context.Context, req Request) (Response, error) {
	h := fnv.New64a()
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte(req.Prompt))
	sum := h.Sum64()

	score := int(sum%5) + 1 // 1..5, stable per prompt

	content := s.ScoreTemplate
	if content == "" {
		content = fmt.Sprintf(`[{"criterion":"overall","score":%d,"reasoning":"deterministic stub"}]`, score)
	} else {
		content = fmt.Sprintf(content, score)
	}

	resp := Response{Content: content}
	if req.Logprobs {
		resp.Logprobs = stubLogprobs(sum, score)
	}
	return resp, nil
}

// stubLogprobs fabricates a single-token logprob distribution peaked at
// score, for exercising G-Eval's probability-normalized scoring path
// without a live model.
func stubLogprobs(seed uint64, score int) []TokenLogprob {
	peak := -0.1 - float64(seed%10)/100
	alts := make(map[string]float64, 4)
	for i := 1; i <= 5; i++ {
		if i == score {
			continue
		}
		alts[fmt.Sprintf("%d", i)] = peak - math.Abs(float64(i-score))*1.5
	}
	return []TokenLogprob{{
		Token:      fmt.Sprintf("%d", score),
		Logprob:    peak,
		Alternates: alts,
	}}
}
