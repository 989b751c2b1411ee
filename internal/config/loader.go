package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration starting from Default(), then an optional YAML
// file (AGENTREPLAY_CONFIG, falling back to config.yaml/config.yml in the
// working directory), then environment variables, in that increasing order
// of precedence — env always wins, matching the teacher's LOG_LEVEL-from-
// env override pattern generalized to every tunable.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Default()

	if err := mergeYAMLFile(&cfg); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeYAMLFile(cfg *Config) error {
	var paths []string
	if p := strings.TrimSpace(os.Getenv("AGENTREPLAY_CONFIG")); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "config.yaml", "config.yml")

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// envOr returns the trimmed environment variable named key, or fallback
// when unset/blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	return fallback
}

// applyEnvOverrides layers environment variables over whatever Default()
// and an optional YAML file already populated. Secrets (API keys, DSNs) are
// env-only by convention even when a YAML file is present.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = envOr("AGENTREPLAY_HOST", cfg.Server.Host)
	cfg.Server.Port = envOrInt("AGENTREPLAY_PORT", cfg.Server.Port)

	cfg.Governor.Epsilon = envOrFloat("GOVERNOR_EPSILON", cfg.Governor.Epsilon)
	cfg.Governor.ShardCount = envOrInt("GOVERNOR_SHARD_COUNT", cfg.Governor.ShardCount)
	cfg.Governor.Dimension = envOrInt("GOVERNOR_DIMENSION", cfg.Governor.Dimension)
	cfg.Governor.UseBinaryQuantization = envOrBool("GOVERNOR_USE_BINARY_QUANTIZATION", cfg.Governor.UseBinaryQuantization)
	cfg.Governor.HNSW.M = envOrInt("GOVERNOR_HNSW_M", cfg.Governor.HNSW.M)
	cfg.Governor.HNSW.EfConstruction = envOrInt("GOVERNOR_HNSW_EF_CONSTRUCTION", cfg.Governor.HNSW.EfConstruction)
	cfg.Governor.HNSW.EfSearch = envOrInt("GOVERNOR_HNSW_EF_SEARCH", cfg.Governor.HNSW.EfSearch)
	cfg.Governor.StatsMirrorRedisAddr = envOr("GOVERNOR_STATSMIRROR_REDIS_ADDR", cfg.Governor.StatsMirrorRedisAddr)
	cfg.Governor.StatsMirrorTTL = envOrDuration("GOVERNOR_STATSMIRROR_TTL", cfg.Governor.StatsMirrorTTL)

	cfg.Ingestion.MaxBatchSize = envOrInt("INGESTION_MAX_BATCH_SIZE", cfg.Ingestion.MaxBatchSize)
	cfg.Ingestion.MaxWaitTime = envOrDuration("INGESTION_MAX_WAIT", cfg.Ingestion.MaxWaitTime)
	cfg.Ingestion.ChannelCapacity = envOrInt("INGESTION_CHANNEL_CAPACITY", cfg.Ingestion.ChannelCapacity)

	cfg.TraceStore.Dimension = envOrInt("TRACESTORE_DIMENSION", cfg.TraceStore.Dimension)
	cfg.TraceStore.QdrantDSN = envOr("QDRANT_DSN", cfg.TraceStore.QdrantDSN)
	cfg.TraceStore.QdrantCollection = envOr("QDRANT_COLLECTION", cfg.TraceStore.QdrantCollection)
	cfg.TraceStore.PostgresDSN = envOr("TRACESTORE_POSTGRES_DSN", cfg.TraceStore.PostgresDSN)
	cfg.TraceStore.HNSW.M = envOrInt("TRACESTORE_HNSW_M", cfg.TraceStore.HNSW.M)
	cfg.TraceStore.HNSW.EfConstruction = envOrInt("TRACESTORE_HNSW_EF_CONSTRUCTION", cfg.TraceStore.HNSW.EfConstruction)
	cfg.TraceStore.HNSW.EfSearch = envOrInt("TRACESTORE_HNSW_EF_SEARCH", cfg.TraceStore.HNSW.EfSearch)

	cfg.Relevance.SemanticWeight = envOrFloat("RELEVANCE_SEMANTIC_WEIGHT", cfg.Relevance.SemanticWeight)
	cfg.Relevance.TemporalWeight = envOrFloat("RELEVANCE_TEMPORAL_WEIGHT", cfg.Relevance.TemporalWeight)
	cfg.Relevance.GraphWeight = envOrFloat("RELEVANCE_GRAPH_WEIGHT", cfg.Relevance.GraphWeight)
	cfg.Relevance.HalfLifeSeconds = envOrFloat("RELEVANCE_HALF_LIFE_SECONDS", cfg.Relevance.HalfLifeSeconds)

	cfg.Evaluator.CacheTTL = envOrDuration("EVALUATOR_CACHE_TTL", cfg.Evaluator.CacheTTL)
	cfg.Evaluator.CacheEnabled = envOrBool("EVALUATOR_CACHE_ENABLED", cfg.Evaluator.CacheEnabled)
	cfg.Evaluator.MaxConcurrent = envOrInt("EVALUATOR_MAX_CONCURRENT", cfg.Evaluator.MaxConcurrent)
	cfg.Evaluator.EvalTimeout = envOrDuration("EVALUATOR_TIMEOUT", cfg.Evaluator.EvalTimeout)
	cfg.Evaluator.AnomalySensitivity = envOrFloat("EVALUATOR_ANOMALY_SENSITIVITY", cfg.Evaluator.AnomalySensitivity)
	cfg.Evaluator.CIPAlphaThreshold = envOrFloat("CIP_ALPHA_THRESHOLD", cfg.Evaluator.CIPAlphaThreshold)
	cfg.Evaluator.CIPRhoThreshold = envOrFloat("CIP_RHO_THRESHOLD", cfg.Evaluator.CIPRhoThreshold)
	cfg.Evaluator.CIPOmegaThreshold = envOrFloat("CIP_OMEGA_THRESHOLD", cfg.Evaluator.CIPOmegaThreshold)
	cfg.Evaluator.CIPMaxUSD = envOrFloat("CIP_MAX_USD", cfg.Evaluator.CIPMaxUSD)
	cfg.Evaluator.CIPMaxTokens = int64(envOrInt("CIP_MAX_TOKENS", int(cfg.Evaluator.CIPMaxTokens)))
	cfg.Evaluator.CIPCostPerCall = envOrFloat("CIP_COST_PER_CALL", cfg.Evaluator.CIPCostPerCall)
	cfg.Evaluator.CIPTokensPerCall = int64(envOrInt("CIP_TOKENS_PER_CALL", int(cfg.Evaluator.CIPTokensPerCall)))

	cfg.Embedding.BaseURL = envOr("EMBED_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Path = envOr("EMBED_PATH", cfg.Embedding.Path)
	cfg.Embedding.Model = envOr("EMBED_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = envOr("EMBED_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.APIHeader = envOr("EMBED_API_HEADER", cfg.Embedding.APIHeader)
	cfg.Embedding.Timeout = envOrDuration("EMBED_TIMEOUT", cfg.Embedding.Timeout)
	cfg.Embedding.Dimension = envOrInt("EMBED_DIMENSION", cfg.Embedding.Dimension)

	cfg.LLM.Provider = envOr("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = envOr("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = envOr("OPENAI_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = envOr("OPENAI_MODEL", cfg.LLM.Model)

	cfg.Observability.LogLevel = envOr("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogPath = envOr("LOG_PATH", cfg.Observability.LogPath)
	cfg.Observability.ServiceName = envOr("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.Environment = envOr("ENVIRONMENT", cfg.Observability.Environment)
	cfg.Observability.OTLPEndpoint = envOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("config: server port must be positive, got %d", cfg.Server.Port)
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	sum := cfg.Relevance.SemanticWeight + cfg.Relevance.TemporalWeight + cfg.Relevance.GraphWeight
	if sum <= 0 {
		return fmt.Errorf("config: relevance weights must sum to a positive value, got %.3f", sum)
	}
	return nil
}
