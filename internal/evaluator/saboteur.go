package evaluator

import (
	"context"
	"regexp"
	"strings"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
)

const (
	saboteurMaxInputBytes  = 50 * 1024
	saboteurMaxRetries     = 3
	criticalMaxCosine      = 0.7 // critical perturbations must be LESS similar than this
	nullMinCosine          = 0.85 // null perturbations must be AT LEAST this similar
)

// redactionPatterns match common secret/PII shapes. Intentionally narrow:
// this is a best-effort scrub before a perturbed context goes back into a
// live agent call, not a general-purpose DLP scanner.
var redactionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), // SSN-shaped
	regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`), // card-number-shaped
}

var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)disregard (the )?system prompt`),
	regexp.MustCompile(`(?i)reveal (your|the) (system prompt|instructions)`),
}

// Saboteur generates adversarial perturbations of a context for CIP, and
// validates them before they're allowed back into a live agent call:
// size cap, secret/PII redaction, prompt-injection detection, with bounded
// retries per spec.md §4.10.
type Saboteur struct {
	client   llmclient.Client
	embedder embedding.Provider
	model    string
}

// NewSaboteur constructs a Saboteur backed by client for perturbation
// generation and embedder for the similarity gates.
func NewSaboteur(client llmclient.Client, embedder embedding.Provider, model string) *Saboteur {
	return &Saboteur{client: client, embedder: embedder, model: model}
}

// Critical produces a fact-inverted perturbation of contextPassages: one
// that should change a faithful agent's answer.
func (s *Saboteur) Critical(ctx context.Context, question string, contextPassages []string) (string, error) {
	original := strings.Join(contextPassages, "\n")
	return s.perturb(ctx, original, "Invert or negate the key facts in this context so a careful reader relying on it would reach a different conclusion, while keeping the same topic and phrasing style. Question under test: "+question, criticalMaxCosine, false)
}

// Null produces a meaning-preserving paraphrase of contextPassages: one
// that should NOT change a faithful agent's answer.
func (s *Saboteur) Null(ctx context.Context, contextPassages []string) (string, error) {
	original := strings.Join(contextPassages, "\n")
	return s.perturb(ctx, original, "Paraphrase this context, preserving its meaning and every fact exactly.", nullMinCosine, true)
}

// perturb retries generation up to saboteurMaxRetries times until the
// result passes redaction, prompt-injection, and similarity-gate
// validation; bound acts as a floor when requireAbove is true
// (null mode) and as a ceiling when false (critical mode, similarity must
// stay BELOW the bound).
func (s *Saboteur) perturb(ctx context.Context, original, instruction string, bound float64, requireAbove bool) (string, error) {
	if len(original) > saboteurMaxInputBytes {
		return "", agenterr.New(agenterr.InvalidInput, "saboteur: input exceeds %d bytes", saboteurMaxInputBytes)
	}

	var lastErr error
	for attempt := 0; attempt < saboteurMaxRetries; attempt++ {
		resp, err := s.client.Complete(ctx, llmclient.Request{
			Model:        s.model,
			SystemPrompt: "You generate adversarial test context for an evaluation harness.",
			Prompt:       instruction + "\n\nContext:\n" + original,
		})
		if err != nil {
			lastErr = err
			continue
		}
		candidate := resp.Content
		if err := validatePerturbation(candidate); err != nil {
			lastErr = err
			continue
		}
		if s.embedder != nil {
			sim, err := s.cosineToOriginal(ctx, original, candidate)
			if err != nil {
				lastErr = err
				continue
			}
			if requireAbove && sim < bound {
				lastErr = agenterr.New(agenterr.QualityCheckFailed, "saboteur: null perturbation similarity %.3f below floor %.3f", sim, bound)
				continue
			}
			if !requireAbove && sim >= bound {
				lastErr = agenterr.New(agenterr.QualityCheckFailed, "saboteur: critical perturbation similarity %.3f at or above ceiling %.3f", sim, bound)
				continue
			}
		}
		return Redact(candidate), nil
	}
	return "", agenterr.Wrap(agenterr.QualityCheckFailed, lastErr, "saboteur: persistent validation failure after %d attempts", saboteurMaxRetries)
}

func (s *Saboteur) cosineToOriginal(ctx context.Context, original, candidate string) (float64, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{original, candidate})
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(vecs[0], vecs[1]), nil
}

func validatePerturbation(text string) error {
	if len(text) > saboteurMaxInputBytes {
		return agenterr.New(agenterr.InvalidInput, "saboteur: generated perturbation exceeds size cap")
	}
	for _, re := range redactionPatterns {
		if re.MatchString(text) {
			return agenterr.New(agenterr.QualityCheckFailed, "saboteur: generated perturbation contains a secret/PII-shaped value")
		}
	}
	for _, re := range promptInjectionPatterns {
		if re.MatchString(text) {
			return agenterr.New(agenterr.QualityCheckFailed, "saboteur: generated perturbation matches a prompt-injection pattern")
		}
	}
	return nil
}

// Redact scrubs secret/PII-shaped substrings from text, for callers that
// want to sanitize rather than reject.
func Redact(text string) string {
	out := text
	for _, re := range redactionPatterns {
		out = re.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
