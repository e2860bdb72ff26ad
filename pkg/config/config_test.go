package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 1000
  temperature: 0.2
  context_window: 8192

embedding:
  model: "nomic-embed-text"
  cache_ttl: 30s

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_docs"
  vector_dim: 768

retrieval:
  top_k: 8
  similarity_threshold: 0.25
  hybrid_vector_weight: 0.7
  hybrid_text_weight: 0.3

orchestrator:
  collections:
    gradebook: ["grade", "gradebook"]

dedup:
  slack_ttl: 3s
  teams_ttl: 5s
  processing_timeout: 1m
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 0.2, config.LLM.Temperature)
	assert.Equal(t, "ollama", config.Embedding.Provider)
	assert.Equal(t, 30*time.Second, config.Embedding.CacheTTL)
	assert.Equal(t, 768, config.Embedding.Dimensions)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, 8, config.Retrieval.TopK)
	assert.Equal(t, 0.7, config.Retrieval.HybridVectorWeight)
	assert.Equal(t, []string{"grade", "gradebook"}, config.Orchestrator.Collections["gradebook"])
	assert.Equal(t, 3*time.Second, config.Dedup.SlackTTL)
	assert.Equal(t, 5*time.Second, config.Dedup.TeamsTTL)
	assert.Equal(t, time.Minute, config.Dedup.ProcessingTimeout)
	assert.Empty(t, config.Validate())
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, 0.3, config.Retrieval.SimilarityThreshold)
	assert.Equal(t, 0.5, config.Retrieval.HybridVectorWeight)
	assert.Equal(t, 0.5, config.Retrieval.HybridTextWeight)
	assert.Zero(t, config.Retrieval.HybridMinScore)
	assert.Equal(t, 0.1, config.LLM.Temperature)
	assert.Equal(t, 3, config.Orchestrator.MinQueryLength)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid llm",
			mutate: func(c *Config) {
				c.LLM.BaseURL = ""
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
			},
			errorMessages: []string{
				"llm.base_url: Ollama base URL is required",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "invalid retrieval and dedup",
			mutate: func(c *Config) {
				c.Database.URL = "not a url"
				c.Retrieval.SimilarityThreshold = 1.5
				c.Retrieval.HybridMinScore = -0.1
				c.Dedup.ProcessingTimeout = time.Second
			},
			errorMessages: []string{
				"database.url: invalid database URL",
				"retrieval.similarity_threshold: similarity_threshold must be between 0 and 1",
				"retrieval.hybrid_min_score: hybrid_min_score must be between 0 and 1",
				"dedup.processing_timeout: processing_timeout must exceed every completed TTL",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("LLM_PROVIDER", "openai")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "openai", config.LLM.Provider)
}
