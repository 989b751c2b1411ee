// Package embedding provides the EmbeddingProvider the Ingestion Actor calls
// to turn trace text into vectors: an HTTP client for a real embeddings
// endpoint, and a deterministic hash-based stub for tests.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/observability"
)

// Provider converts text to embedding vectors.
type Provider interface {
	// EmbedBatch returns one embedding vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the embedding model.
	Name() string
	// Dimension is the embedding dimensionality.
	Dimension() int
	// Ping checks whether the embedding service is reachable.
	Ping(ctx context.Context) error
}

// HTTPConfig configures an HTTPProvider against an OpenAI-style embeddings
// endpoint (POST {BaseURL}{Path} with {"model","input"}, response
// {"data":[{"embedding":[...]}]}).
type HTTPConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string // "Authorization" sends "Bearer <key>"; anything else is sent verbatim
	Timeout   time.Duration
	Dimension int

	// HTTPClient, when set, is used in place of observability.NewHTTPClient's
	// default-wrapped client. Lets callers share one otelhttp-instrumented
	// client across the embedding provider and the LLM client.
	HTTPClient *http.Client
}

// HTTPProvider is the concrete Provider used in production.
type HTTPProvider struct {
	cfg      HTTPConfig
	client   *http.Client
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewHTTP constructs an HTTPProvider from cfg.
func NewHTTP(cfg HTTPConfig) *HTTPProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = observability.NewHTTPClient(nil)
	}
	return &HTTPProvider{cfg: cfg, client: client}
}

func (p *HTTPProvider) Name() string   { return p.cfg.Model }
func (p *HTTPProvider) Dimension() int { return p.cfg.Dimension }

func (p *HTTPProvider) Ping(ctx context.Context) error {
	_, err := p.EmbedBatch(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch sends every text in one request. Callers that need request-size
// limits should chunk before calling; the Ingestion Actor already caps
// batches at max_batch_size, so request-size chunking here would be a second,
// redundant limit.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	if !p.lastCall.IsZero() && p.minDelay > 0 {
		if elapsed := time.Since(p.lastCall); elapsed < p.minDelay {
			time.Sleep(p.minDelay - elapsed)
		}
	}
	p.lastCall = time.Now()
	p.mu.Unlock()

	body, err := json.Marshal(embedReq{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, p.cfg.BaseURL+p.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	switch p.cfg.APIHeader {
	case "":
	case "Authorization":
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	default:
		req.Header.Set(p.cfg.APIHeader, p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		observability.LoggerWithTrace(ctx).Error().
			Int("status", resp.StatusCode).
			RawJSON("body", observability.RedactJSON(respBody)).
			Msg("embeddings_bad_status")
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(respBody))
	}

	var er embedResp
	if err := json.Unmarshal(respBody, &er); err != nil {
		n := len(respBody)
		if n > 200 {
			n = 200
		}
		return nil, fmt.Errorf("failed to parse embedding response (input count %d, body %q): %w", len(texts), respBody[:n], err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(texts))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// Deterministic is a hash-based stub Provider for tests: same text always
// maps to the same vector, with no network dependency.
type Deterministic struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic constructs a Deterministic provider. dim<=0 falls back to
// 64.
func NewDeterministic(dim int, normalize bool, seed uint64) *Deterministic {
	if dim <= 0 {
		dim = 64
	}
	return &Deterministic{dim: dim, normalize: normalize, seed: seed}
}

func (d *Deterministic) Name() string               { return "deterministic-stub" }
func (d *Deterministic) Dimension() int             { return d.dim }
func (d *Deterministic) Ping(context.Context) error { return nil }

func (d *Deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *Deterministic) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		if sumSq > 0 {
			inv := float32(1 / math.Sqrt(sumSq))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := range tmp {
			tmp[i] = byte(seed >> (8 * i))
		}
		h.Write(tmp[:])
	}
	h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
