package types

import (
	"context"

	"github.com/xhad/askdocs/internal/models"
)

// Core collaborator interfaces. Implementations live in pkg/llm and pkg/store;
// tests substitute in-memory fakes.

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

type SearchFilters struct {
	ContentTypes []string
	Sections     []string
	Collections  []string
	MinScore     float64
}

type HybridWeights struct {
	Vector float64
	Text   float64
}

type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int, filters SearchFilters) ([]models.Chunk, error)
	HybridSearch(ctx context.Context, vector []float32, text string, topK int, weights HybridWeights, filters SearchFilters) ([]models.Chunk, error)
	Health(ctx context.Context) bool
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

type LLM interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}
