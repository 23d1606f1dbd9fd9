// Package config centralizes every recognized option from spec.md §6, read
// from flags with environment-variable fallback the way the teacher's
// cmd/api/main.go and cmd/migrate/main.go read GCS_BUCKET/PROJECT_ID: a
// flag whose default is os.Getenv(...).
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/dvloznov/finance-agent/internal/apperr"
	"github.com/dvloznov/finance-agent/internal/domain"
)

// Config holds every configurable option spec.md §6 enumerates.
type Config struct {
	Port string

	ProjectID string
	DatasetID string
	DBTimeout time.Duration
	DBPoolSize int

	LLMProvider      string
	LLMAPIKey        string
	LLMModel         string
	LLMTemperature   float64
	LLMMaxTokens     int
	LLMTimeout       time.Duration
	LLMBaseURL       string // ProviderY/ProviderZ endpoint base
	LLMRetryMax      int
	LLMBackoffBaseMs int

	IngestWorkers       int
	IngestRetryMax      int
	IngestBackoffBaseMs int

	ConversationTTLSeconds    int
	ConversationMaxMessages   int

	InsightCacheTTLSeconds int

	SourcePriority map[domain.SourceType]int
}

// Load parses flags (falling back to environment variables) into a Config
// and validates it. A ConfigurationError is returned for anything that
// must fail fast at startup, per spec.md §7.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("finance-agent", flag.ContinueOnError)

	cfg := Config{}
	fs.StringVar(&cfg.Port, "port", envOr("PORT", "8080"), "HTTP server port")
	fs.StringVar(&cfg.ProjectID, "project-id", envOr("PROJECT_ID", ""), "GCP project id (db_url equivalent)")
	fs.StringVar(&cfg.DatasetID, "dataset-id", envOr("DATASET_ID", "finance"), "BigQuery dataset id")
	fs.DurationVar(&cfg.DBTimeout, "db-timeout", envDuration("DB_TIMEOUT", 5*time.Second), "single DB query timeout")
	fs.IntVar(&cfg.DBPoolSize, "db-pool-size", envInt("DB_POOL_SIZE", 20), "bounded Store connection pool size")

	fs.StringVar(&cfg.LLMProvider, "llm-provider", envOr("LLM_PROVIDER", "ProviderX"), "ProviderX (Gemini), ProviderY, or ProviderZ")
	fs.StringVar(&cfg.LLMAPIKey, "llm-api-key", envOr("LLM_API_KEY", ""), "LLM API key")
	fs.StringVar(&cfg.LLMModel, "llm-model", envOr("LLM_MODEL", "gemini-2.5-flash"), "LLM model name")
	fs.Float64Var(&cfg.LLMTemperature, "llm-temperature", envFloat("LLM_TEMPERATURE", 0.2), "LLM sampling temperature")
	fs.IntVar(&cfg.LLMMaxTokens, "llm-max-tokens", envInt("LLM_MAX_TOKENS", 2048), "LLM max output tokens")
	fs.DurationVar(&cfg.LLMTimeout, "llm-timeout", envDuration("LLM_TIMEOUT", 30*time.Second), "LLM request timeout")
	fs.StringVar(&cfg.LLMBaseURL, "llm-base-url", envOr("LLM_BASE_URL", ""), "base URL for ProviderY/ProviderZ HTTP providers")
	fs.IntVar(&cfg.LLMRetryMax, "llm-retry-max", envInt("LLM_RETRY_MAX", 3), "max LLM call retry attempts on a transient error")
	fs.IntVar(&cfg.LLMBackoffBaseMs, "llm-backoff-base-ms", envInt("LLM_BACKOFF_BASE_MS", 200), "LLM retry backoff base, milliseconds")

	fs.IntVar(&cfg.IngestWorkers, "ingest-workers", envInt("INGEST_WORKERS", 4), "bounded ingestion worker pool size")
	fs.IntVar(&cfg.IngestRetryMax, "ingest-retry-max", envInt("INGEST_RETRY_MAX", 5), "max ingestion retry attempts")
	fs.IntVar(&cfg.IngestBackoffBaseMs, "ingest-backoff-base-ms", envInt("INGEST_BACKOFF_BASE_MS", 100), "ingestion retry backoff base, milliseconds")

	fs.IntVar(&cfg.ConversationTTLSeconds, "conversation-ttl-s", envInt("CONVERSATION_TTL_S", 3600), "conversation memory idle TTL, seconds")
	fs.IntVar(&cfg.ConversationMaxMessages, "conversation-max-messages", envInt("CONVERSATION_MAX_MESSAGES", 50), "conversation memory sliding cap")

	fs.IntVar(&cfg.InsightCacheTTLSeconds, "insight-cache-ttl-s", envInt("INSIGHT_CACHE_TTL_S", 3600), "insight cache TTL, seconds")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.SourcePriority = domain.DefaultSourcePriority()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ProjectID == "" {
		return apperr.New(apperr.KindConfiguration, "project-id (or PROJECT_ID) is required")
	}
	switch c.LLMProvider {
	case "ProviderX", "ProviderY", "ProviderZ":
	default:
		return apperr.New(apperr.KindConfiguration, "llm-provider must be one of ProviderX, ProviderY, ProviderZ")
	}
	if c.LLMProvider != "ProviderX" && c.LLMBaseURL == "" {
		return apperr.New(apperr.KindConfiguration, "llm-base-url is required for "+c.LLMProvider)
	}
	if c.LLMProvider != "ProviderX" && c.LLMAPIKey == "" {
		return apperr.New(apperr.KindConfiguration, "llm-api-key is required for "+c.LLMProvider)
	}
	if c.IngestWorkers <= 0 {
		return apperr.New(apperr.KindConfiguration, "ingest-workers must be > 0")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
