package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/xerr"
)

type EmbedderConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// Embedder is the embedding collaborator backed by a langchaingo client.
type Embedder struct {
	config EmbedderConfig
	embed  embeddings.Embedder
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	provider, err := ParseProvider(config.Provider)
	if err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	client, err := embedFactories[provider](config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return NewEmbedderWithClient(client, config)
}

// NewEmbedderWithClient wraps any client exposing CreateEmbedding.
func NewEmbedderWithClient(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return &Embedder{config: config, embed: emb}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, xerr.Retrieval(xerr.CodeEmbeddingFailed, "embed query", err)
	}
	if err := e.checkDims(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, xerr.Retrieval(xerr.CodeEmbeddingFailed, "embed batch", err)
	}
	if len(vecs) != len(texts) {
		return nil, xerr.Retrieval(xerr.CodeEmbeddingFailed,
			fmt.Sprintf("embedding count mismatch: got %d for %d texts", len(vecs), len(texts)), nil)
	}
	for _, v := range vecs {
		if err := e.checkDims(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (e *Embedder) Dimensions() int {
	return e.config.Dimensions
}

func (e *Embedder) checkDims(vec []float32) error {
	if len(vec) == 0 {
		return xerr.Retrieval(xerr.CodeEmbeddingFailed, "empty embedding", nil)
	}
	if e.config.Dimensions > 0 && len(vec) != e.config.Dimensions {
		return xerr.Retrieval(xerr.CodeEmbeddingFailed,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vec), e.config.Dimensions), nil)
	}
	return nil
}

// CachedEmbedder memoizes query vectors by exact text.
type CachedEmbedder struct {
	inner types.Embedder
	cache *cache.Cache
}

var _ types.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner types.Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, found := c.cache.Get(text); found {
		return v.([]float32), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, cache.DefaultExpiration)
	return vec, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, found := c.cache.Get(t); found {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Set(missing[j], v, cache.DefaultExpiration)
	}
	return out, nil
}

func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}
