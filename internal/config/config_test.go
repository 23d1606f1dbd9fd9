package config

import (
	"testing"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"-project-id", "proj-1"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DatasetID != "finance" {
		t.Errorf("DatasetID = %q, want finance", cfg.DatasetID)
	}
	if cfg.LLMProvider != "ProviderX" {
		t.Errorf("LLMProvider = %q, want ProviderX", cfg.LLMProvider)
	}
	if cfg.IngestWorkers != 4 {
		t.Errorf("IngestWorkers = %d, want 4", cfg.IngestWorkers)
	}
	if len(cfg.SourcePriority) == 0 {
		t.Errorf("expected SourcePriority to be populated from domain.DefaultSourcePriority")
	}
}

func TestLoadOverridesFromFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-project-id", "proj-1",
		"-port", "9090",
		"-llm-provider", "ProviderY",
		"-llm-base-url", "https://example.test",
		"-llm-api-key", "secret",
	})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.LLMProvider != "ProviderY" {
		t.Errorf("LLMProvider = %q, want ProviderY", cfg.LLMProvider)
	}
}

func TestValidateRejectsMissingProjectID(t *testing.T) {
	_, err := Load(nil)
	if err == nil {
		t.Fatal("expected error for missing project-id")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	_, err := Load([]string{"-project-id", "p", "-llm-provider", "ProviderQ"})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("expected ConfigurationError for unknown provider, got %v", err)
	}
}

func TestValidateRequiresBaseURLAndKeyForHTTPProviders(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing base url", []string{"-project-id", "p", "-llm-provider", "ProviderZ", "-llm-api-key", "k"}},
		{"missing api key", []string{"-project-id", "p", "-llm-provider", "ProviderZ", "-llm-base-url", "https://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args); !apperr.Is(err, apperr.KindConfiguration) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestValidateRejectsNonPositiveIngestWorkers(t *testing.T) {
	_, err := Load([]string{"-project-id", "p", "-ingest-workers", "0"})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("expected ConfigurationError for zero ingest-workers, got %v", err)
	}
}
