package config

import (
	"os"
	"testing"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Governor.Epsilon != 0.05 {
		t.Fatalf("expected epsilon 0.05, got %v", cfg.Governor.Epsilon)
	}
	if cfg.Governor.ShardCount != 16 {
		t.Fatalf("expected shard count 16, got %d", cfg.Governor.ShardCount)
	}
	if cfg.Ingestion.MaxBatchSize != 64 {
		t.Fatalf("expected max batch size 64, got %d", cfg.Ingestion.MaxBatchSize)
	}
	sum := cfg.Relevance.SemanticWeight + cfg.Relevance.TemporalWeight + cfg.Relevance.GraphWeight
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("expected relevance weights to sum to 1, got %v", sum)
	}
}

func TestEnvOrHelpers(t *testing.T) {
	key := "AGENTREPLAY_TEST_ENV_OR"
	old, had := os.LookupEnv(key)
	defer func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	}()

	_ = os.Unsetenv(key)
	if got := envOr(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	_ = os.Setenv(key, "  set-value  ")
	if got := envOr(key, "fallback"); got != "set-value" {
		t.Fatalf("expected trimmed set-value, got %q", got)
	}

	_ = os.Setenv(key, "123")
	if got := envOrInt(key, 7); got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}
	_ = os.Setenv(key, "not-an-int")
	if got := envOrInt(key, 7); got != 7 {
		t.Fatalf("expected fallback 7 on parse failure, got %d", got)
	}

	_ = os.Setenv(key, "true")
	if got := envOrBool(key, false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("AGENTREPLAY_PORT", "9100")
	t.Setenv("GOVERNOR_EPSILON", "0.1")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Governor.Epsilon != 0.1 {
		t.Fatalf("expected epsilon 0.1, got %v", cfg.Governor.Epsilon)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.Observability.LogLevel)
	}
}

func TestLoadRejectsNonPositivePort(t *testing.T) {
	t.Setenv("AGENTREPLAY_PORT", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-positive port")
	}
}

func TestLoadRequiresOpenAIKeyWhenProviderSelected(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when LLM_PROVIDER=openai without an API key")
	}
}
