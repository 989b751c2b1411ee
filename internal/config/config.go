// Package config holds the deployment-tunable settings for agentreplayd.
// Epsilon, shard count, batch size/wait, channel capacity, anomaly
// sensitivity, relevance half-life and weights, and the CIP thresholds are
// config fields with their defaults, so a deployment can retune them without
// a rebuild. The anomaly warmup length and the comparison analyzer's
// significance levels are not config fields; they are constants in their
// own packages.
package config

import (
	"time"

	"github.com/agentreplay/agentreplay-sub001/internal/vectorindex"
)

// ServerConfig is the thin HTTP surface's bind address.
type ServerConfig struct {
	Host string
	Port int
}

// GovernorConfig mirrors governor.Config; held here so it's reachable from
// YAML/env rather than constructed ad hoc in main.
type GovernorConfig struct {
	Epsilon               float64
	ShardCount            int
	UseBinaryQuantization bool
	Dimension             int
	HNSW                  vectorindex.Params
	SketchDepth           int
	SketchWidth           int

	// StatsMirrorRedisAddr, when set, attaches a governor.RedisStatsMirror
	// so duplicate counts are visible to other ingestion processes sharing
	// this Redis instance. Empty disables the mirror.
	StatsMirrorRedisAddr string
	StatsMirrorTTL       time.Duration
}

// IngestionConfig mirrors ingestion.Config.
type IngestionConfig struct {
	MaxBatchSize    int
	MaxWaitTime     time.Duration
	ChannelCapacity int
}

// TraceStoreConfig configures the durable vector mirror and HNSW params the
// trace store facade uses for semantic search.
type TraceStoreConfig struct {
	HNSW             vectorindex.Params
	Dimension        int
	QdrantDSN        string // empty disables the durable mirror
	QdrantCollection string

	// PostgresDSN selects the pgvector-backed durable mirror instead, when
	// QdrantDSN is empty. The two backends are mutually exclusive; Qdrant
	// wins if both are set.
	PostgresDSN string
}

// RelevanceConfig is the weighted-sum-of-signals tuning for the relevance
// scorer, per spec.md §4.6.
type RelevanceConfig struct {
	SemanticWeight  float64
	TemporalWeight  float64
	GraphWeight     float64
	HalfLifeSeconds float64 // τ, default 7 days
}

// EvaluatorConfig tunes the registry's caching and concurrency, and the
// Causal Integrity Protocol's pass thresholds and per-eval budget.
type EvaluatorConfig struct {
	CacheTTL            time.Duration
	CacheEnabled        bool
	MaxConcurrent       int
	EvalTimeout         time.Duration
	AnomalySensitivity  float64
	CIPAlphaThreshold   float64
	CIPRhoThreshold     float64
	CIPOmegaThreshold   float64
	CIPMaxUSD           float64
	CIPMaxTokens        int64
	CIPCostPerCall      float64
	CIPTokensPerCall    int64
}

// EmbeddingConfig configures the outbound embedding provider. If BaseURL is
// empty, a deterministic stub is used instead (grounded on the same
// stub-when-unconfigured convention the LLM client follows).
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Timeout   time.Duration
	Dimension int
}

// LLMConfig configures the outbound LLM client used by G-Eval, toxicity
// LLM mode, and CIP's agent/saboteur roles.
type LLMConfig struct {
	Provider string // "openai" or "stub"
	APIKey   string
	BaseURL  string
	Model    string
}

// ObservabilityConfig controls logging and OTel tracing.
type ObservabilityConfig struct {
	LogLevel       string
	LogPath        string
	ServiceName    string
	Environment    string
	OTLPEndpoint   string
}

// Config is the top-level configuration for agentreplayd.
type Config struct {
	Server        ServerConfig
	Governor      GovernorConfig
	Ingestion     IngestionConfig
	TraceStore    TraceStoreConfig
	Relevance     RelevanceConfig
	Evaluator     EvaluatorConfig
	Embedding     EmbeddingConfig
	LLM           LLMConfig
	Observability ObservabilityConfig
}

// Default returns a Config with every spec.md §4 default filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8090},
		Governor: GovernorConfig{
			Epsilon:               0.05,
			ShardCount:            16,
			UseBinaryQuantization: true,
			Dimension:             256,
			HNSW:                  vectorindex.Params{M: 16, EfConstruction: 200, EfSearch: 64},
			SketchDepth:           5,
			SketchWidth:           2048,
		},
		Ingestion: IngestionConfig{
			MaxBatchSize:    64,
			MaxWaitTime:     20 * time.Millisecond,
			ChannelCapacity: 4096,
		},
		TraceStore: TraceStoreConfig{
			HNSW:             vectorindex.Params{M: 16, EfConstruction: 200, EfSearch: 64},
			Dimension:        256,
			QdrantCollection: "agentreplay_traces",
		},
		Relevance: RelevanceConfig{
			SemanticWeight:  0.6,
			TemporalWeight:  0.2,
			GraphWeight:     0.2,
			HalfLifeSeconds: 7 * 24 * 3600,
		},
		Evaluator: EvaluatorConfig{
			CacheTTL:           5 * time.Minute,
			CacheEnabled:       true,
			MaxConcurrent:      8,
			EvalTimeout:        30 * time.Second,
			AnomalySensitivity: 3.0,
			CIPAlphaThreshold:  0.5,
			CIPRhoThreshold:    0.8,
			CIPOmegaThreshold:  0.6,
		},
		Embedding: EmbeddingConfig{
			Path:      "/v1/embeddings",
			Model:     "text-embedding-3-small",
			APIHeader: "Authorization",
			Timeout:   30 * time.Second,
			Dimension: 256,
		},
		LLM: LLMConfig{
			Provider: "stub",
			Model:    "gpt-4o-mini",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			ServiceName: "agentreplayd",
			Environment: "dev",
		},
	}
}
