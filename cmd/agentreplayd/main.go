package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentreplay/agentreplay-sub001/internal/config"
	"github.com/agentreplay/agentreplay-sub001/internal/embedding"
	"github.com/agentreplay/agentreplay-sub001/internal/evaluator"
	"github.com/agentreplay/agentreplay-sub001/internal/governor"
	"github.com/agentreplay/agentreplay-sub001/internal/ingestion"
	"github.com/agentreplay/agentreplay-sub001/internal/llmclient"
	"github.com/agentreplay/agentreplay-sub001/internal/nlquery"
	"github.com/agentreplay/agentreplay-sub001/internal/observability"
	"github.com/agentreplay/agentreplay-sub001/internal/tracestore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var shutdown func(context.Context) error
	var logWriters []io.Writer
	if cfg.Observability.OTLPEndpoint != "" {
		s, err := observability.InitOTel(context.Background(), cfg.Observability)
		if err != nil {
			log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		} else {
			shutdown = s
			// Tee logs through an OTelWriter alongside stdout/file output. The
			// writer emits via the global OTel logger provider; InitOTel installs
			// only trace and metric providers, so these records reach the
			// default no-op logger provider.
			logWriters = append(logWriters, observability.NewOTelWriter(cfg.Observability.ServiceName))
		}
	}
	observability.InitLogger(cfg.Observability.LogPath, cfg.Observability.LogLevel, logWriters...)
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)
	embedder := buildEmbedder(cfg.Embedding, httpClient)
	llm := buildLLMClient(cfg.LLM, httpClient)

	store := buildTraceStore(cfg.TraceStore)
	gov := governor.New(governor.Config{
		Epsilon:               cfg.Governor.Epsilon,
		ShardCount:            cfg.Governor.ShardCount,
		UseBinaryQuantization: cfg.Governor.UseBinaryQuantization,
		Dimension:             cfg.Governor.Dimension,
		HNSW:                  cfg.Governor.HNSW,
		SketchDepth:           cfg.Governor.SketchDepth,
		SketchWidth:           cfg.Governor.SketchWidth,
	})
	if cfg.Governor.StatsMirrorRedisAddr != "" {
		mirror, err := governor.NewRedisStatsMirror(cfg.Governor.StatsMirrorRedisAddr, cfg.Governor.StatsMirrorTTL)
		if err != nil {
			log.Warn().Err(err).Msg("stats mirror init failed, continuing without cross-process duplicate counts")
		} else {
			gov.SetStatsMirror(mirror)
		}
	}

	actor := ingestion.New(ingestion.Config{
		MaxBatchSize:    cfg.Ingestion.MaxBatchSize,
		MaxWaitTime:     cfg.Ingestion.MaxWaitTime,
		ChannelCapacity: cfg.Ingestion.ChannelCapacity,
		EmbeddingDim:    cfg.Embedding.Dimension,
		Provider:        embedder,
	}, gov)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	regOpts := []evaluator.RegistryOption{evaluator.WithMaxConcurrent(cfg.Evaluator.MaxConcurrent)}
	if cfg.Evaluator.CacheEnabled {
		regOpts = append(regOpts, evaluator.WithCache(cfg.Evaluator.CacheTTL))
	}
	registry := evaluator.NewRegistry(regOpts...)
	if err := evaluator.RegisterBuiltins(registry, evaluator.BuiltinsConfig{
		LLMClient:          llm,
		Embedder:           embedder,
		Model:              cfg.LLM.Model,
		AnomalySensitivity: cfg.Evaluator.AnomalySensitivity,
		CIPAlphaThreshold:  cfg.Evaluator.CIPAlphaThreshold,
		CIPRhoThreshold:    cfg.Evaluator.CIPRhoThreshold,
		CIPOmegaThreshold:  cfg.Evaluator.CIPOmegaThreshold,
		CIPBudget: evaluator.CIPBudget{
			MaxUSD:        cfg.Evaluator.CIPMaxUSD,
			MaxTokens:     cfg.Evaluator.CIPMaxTokens,
			CostPerCall:   cfg.Evaluator.CIPCostPerCall,
			TokensPerCall: cfg.Evaluator.CIPTokensPerCall,
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register built-in evaluators")
	}

	planner := nlquery.NewPlanner(time.Now)

	srv := &server{
		cfg:      cfg,
		store:    store,
		actor:    actor,
		governor: gov,
		registry: registry,
		planner:  planner,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("agentreplayd listening")
	if err := http.ListenAndServe(addr, srv.routes()); err != nil {
		log.Fatal().Err(err).Msg("http server exited")
	}
}

func buildEmbedder(cfg config.EmbeddingConfig, httpClient *http.Client) embedding.Provider {
	if cfg.BaseURL == "" {
		return embedding.NewDeterministic(cfg.Dimension, true, 0)
	}
	return embedding.NewHTTP(embedding.HTTPConfig{
		BaseURL:    cfg.BaseURL,
		Path:       cfg.Path,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		APIHeader:  cfg.APIHeader,
		Timeout:    cfg.Timeout,
		Dimension:  cfg.Dimension,
		HTTPClient: httpClient,
	})
}

func buildLLMClient(cfg config.LLMConfig, httpClient *http.Client) llmclient.Client {
	if cfg.Provider == "openai" {
		client, err := llmclient.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, httpClient)
		if err != nil {
			log.Warn().Err(err).Msg("openai client init failed, falling back to stub")
			return llmclient.NewStub()
		}
		return client
	}
	return llmclient.NewStub()
}

func buildTraceStore(cfg config.TraceStoreConfig) *tracestore.Facade {
	opts := []tracestore.Option{}
	switch {
	case cfg.QdrantDSN != "":
		mirror, err := tracestore.NewQdrantMirror(cfg.QdrantDSN, cfg.QdrantCollection, cfg.Dimension)
		if err != nil {
			log.Warn().Err(err).Msg("qdrant mirror init failed, continuing without durable recall")
		} else {
			opts = append(opts, tracestore.WithDurableMirror(mirror))
		}
	case cfg.PostgresDSN != "":
		mirror, err := tracestore.NewPostgresMirror(context.Background(), cfg.PostgresDSN, cfg.Dimension)
		if err != nil {
			log.Warn().Err(err).Msg("postgres mirror init failed, continuing without durable recall")
		} else {
			opts = append(opts, tracestore.WithDurableMirror(mirror))
		}
	}
	return tracestore.New(cfg.HNSW, opts...)
}

// writeJSON is a small helper shared by the HTTP handlers in handlers.go.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
