package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.Provider == "ollama" && c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.ContextWindow <= c.LLM.MaxTokens {
		errors = append(errors, ValidationError{
			Field:   "llm.context_window",
			Message: "context_window must exceed max_tokens",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.similarity_threshold",
			Message: "similarity_threshold must be between 0 and 1",
		})
	}

	if w := c.Retrieval.HybridVectorWeight + c.Retrieval.HybridTextWeight; w <= 0 || c.Retrieval.HybridVectorWeight < 0 || c.Retrieval.HybridTextWeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.hybrid_weights",
			Message: "hybrid weights must be non-negative and not both zero",
		})
	}

	if c.Retrieval.HybridMinScore < 0 || c.Retrieval.HybridMinScore > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.hybrid_min_score",
			Message: "hybrid_min_score must be between 0 and 1",
		})
	}

	if c.Retrieval.ContextTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.context_tokens",
			Message: "context_tokens must be positive",
		})
	}

	// Validate Dedup config
	if c.Dedup.SlackTTL <= 0 || c.Dedup.TeamsTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "dedup.ttl",
			Message: "dedup TTLs must be positive",
		})
	}

	if c.Dedup.ProcessingTimeout <= c.Dedup.SlackTTL || c.Dedup.ProcessingTimeout <= c.Dedup.TeamsTTL {
		errors = append(errors, ValidationError{
			Field:   "dedup.processing_timeout",
			Message: "processing_timeout must exceed every completed TTL",
		})
	}

	if c.Server.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
