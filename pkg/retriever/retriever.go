// Package retriever finds candidate chunks for a query, escalating to hybrid
// ranking when plain vector search comes back empty.
package retriever

import (
	"context"
	"sort"

	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/xerr"
	"go.uber.org/zap"
)

type SearchMode string

const (
	ModePlain  SearchMode = "plain"
	ModeHybrid SearchMode = "hybrid"
)

type Options struct {
	TopK                int
	SimilarityThreshold float64
	ContentTypes        []string
	Sections            []string
	Collections         []string
	// Hybrid requests hybrid ranking up front; no escalation happens then.
	Hybrid bool
}

// Result is an ordered, score-descending chunk list. An empty Chunks slice is
// a valid outcome, distinct from an error.
type Result struct {
	Chunks []models.Chunk
	Mode   SearchMode
	// Escalated is set when the plain search came back empty and a hybrid
	// retry was attempted.
	Escalated bool
	// EscalationErr holds the hybrid retry failure, if any. The plain search
	// succeeded in that case, so this is not returned as an error.
	EscalationErr error
}

func (r Result) Empty() bool {
	return len(r.Chunks) == 0
}

type Config struct {
	TopK                int
	SimilarityThreshold float64
	// HybridMinScore floors the blended hybrid score. SimilarityThreshold
	// applies to plain search only.
	HybridMinScore float64
	Weights        types.HybridWeights
}

func DefaultConfig() Config {
	return Config{
		TopK:                5,
		SimilarityThreshold: 0.3,
		Weights:             types.HybridWeights{Vector: 0.5, Text: 0.5},
	}
}

type Retriever struct {
	embedder types.Embedder
	store    types.VectorStore
	config   Config
	logger   *zap.Logger
}

func New(embedder types.Embedder, store types.VectorStore, config Config, log *zap.Logger) *Retriever {
	def := DefaultConfig()
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = def.SimilarityThreshold
	}
	if config.HybridMinScore < 0 {
		config.HybridMinScore = 0
	}
	if config.Weights.Vector <= 0 && config.Weights.Text <= 0 {
		config.Weights = def.Weights
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger.OrNop(log).Named("retriever"),
	}
}

// Retrieve embeds the query and searches the vector store. When the plain
// search returns nothing it escalates once to hybrid ranking.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = r.config.TopK
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = r.config.SimilarityThreshold
	}
	filters := types.SearchFilters{
		ContentTypes: opts.ContentTypes,
		Sections:     opts.Sections,
		Collections:  opts.Collections,
		MinScore:     opts.SimilarityThreshold,
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if xerr.Is(err, xerr.KindRetrieval) {
			return Result{}, err
		}
		return Result{}, xerr.Retrieval(xerr.CodeEmbeddingFailed, "embed query", err)
	}

	if opts.Hybrid {
		chunks, err := r.hybrid(ctx, vec, query, opts.TopK, filters)
		if err != nil {
			return Result{}, err
		}
		return Result{Chunks: chunks, Mode: ModeHybrid}, nil
	}

	chunks, err := r.store.Search(ctx, vec, opts.TopK, filters)
	if err != nil {
		return Result{}, asRetrieval(err, "vector search")
	}
	if len(chunks) > 0 {
		sortByScore(chunks)
		r.logger.Debug("vector search", zap.Int("hits", len(chunks)))
		return Result{Chunks: chunks, Mode: ModePlain}, nil
	}

	r.logger.Info("vector search empty, escalating to hybrid",
		zap.Float64("threshold", opts.SimilarityThreshold),
		zap.Int("top_k", opts.TopK))

	chunks, err = r.hybrid(ctx, vec, query, opts.TopK, filters)
	if err != nil {
		r.logger.Warn("hybrid escalation failed", zap.Error(err))
		return Result{Mode: ModeHybrid, Escalated: true, EscalationErr: err}, nil
	}
	return Result{Chunks: chunks, Mode: ModeHybrid, Escalated: true}, nil
}

func (r *Retriever) hybrid(ctx context.Context, vec []float32, query string, topK int, filters types.SearchFilters) ([]models.Chunk, error) {
	filters.MinScore = r.config.HybridMinScore
	chunks, err := r.store.HybridSearch(ctx, vec, query, topK, r.config.Weights, filters)
	if err != nil {
		return nil, asRetrieval(err, "hybrid search")
	}
	sortByScore(chunks)
	return chunks, nil
}

func asRetrieval(err error, op string) error {
	if xerr.Is(err, xerr.KindRetrieval) {
		return err
	}
	return xerr.Retrieval(xerr.CodeRetrievalFailed, op, err)
}

// sortByScore keeps collaborator order for ties.
func sortByScore(chunks []models.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
