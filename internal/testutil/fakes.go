// Package testutil holds in-memory collaborator fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/types"
)

type Embedder struct {
	mu    sync.Mutex
	Err   error
	Dims  int
	calls int
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	return make([]float32, e.dims()), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Embedder) Dimensions() int { return e.dims() }

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) dims() int {
	if e.Dims == 0 {
		return 3
	}
	return e.Dims
}

// Store returns canned results for plain and hybrid search.
type Store struct {
	mu          sync.Mutex
	Plain       []models.Chunk
	Hybrid      []models.Chunk
	PlainErr    error
	HybridErr   error
	Healthy     bool
	searches    int
	hybrids     int
	LastFilters types.SearchFilters
	LastWeights types.HybridWeights
	LastTopK    int
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int, filters types.SearchFilters) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	s.LastFilters, s.LastTopK = filters, topK
	if s.PlainErr != nil {
		return nil, s.PlainErr
	}
	return append([]models.Chunk(nil), s.Plain...), nil
}

func (s *Store) HybridSearch(ctx context.Context, vector []float32, text string, topK int, weights types.HybridWeights, filters types.SearchFilters) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hybrids++
	s.LastFilters, s.LastWeights, s.LastTopK = filters, weights, topK
	if s.HybridErr != nil {
		return nil, s.HybridErr
	}
	return append([]models.Chunk(nil), s.Hybrid...), nil
}

func (s *Store) Health(ctx context.Context) bool { return s.Healthy }

func (s *Store) Calls() (plain, hybrid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches, s.hybrids
}

// LLM replies with Reply, or with the result of ReplyFn when set.
type LLM struct {
	mu       sync.Mutex
	Reply    string
	ReplyFn  func(messages []types.Message) string
	Err      error
	calls    int
	Messages []types.Message
	Opts     types.GenerateOptions
}

func (l *LLM) Generate(ctx context.Context, messages []types.Message, opts types.GenerateOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.Messages, l.Opts = messages, opts
	if l.Err != nil {
		return "", l.Err
	}
	if l.ReplyFn != nil {
		return l.ReplyFn(messages), nil
	}
	return l.Reply, nil
}

func (l *LLM) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Chunk builds a chunk with a URL and title derived from id.
func Chunk(id string, score float64, content string) models.Chunk {
	return models.Chunk{
		ID:      id,
		Content: content,
		Score:   score,
		Metadata: models.ChunkMetadata{
			URL:         "https://docs.example.com/" + id,
			Title:       "Doc " + id,
			ContentType: "guide",
		},
	}
}
