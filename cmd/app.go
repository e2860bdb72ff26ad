package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/config"
	"github.com/xhad/askdocs/pkg/llm"
	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/metrics"
	"github.com/xhad/askdocs/pkg/orchestrator"
	"github.com/xhad/askdocs/pkg/pipeline"
	"github.com/xhad/askdocs/pkg/retriever"
	"github.com/xhad/askdocs/pkg/store"
	"go.uber.org/zap"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Recorder
	store        *store.VectorStore
	orchestrator *orchestrator.Orchestrator
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if verrs := cfg.Validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	if err := llm.ValidateProviders(cfg.LLM.Provider, cfg.Embedding.Provider); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(logger.Config{
		File:       cfg.Log.File,
		Production: cfg.Log.Production,
		Level:      cfg.Log.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rec := metrics.New()

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	r := retriever.New(llm.NewCachedEmbedder(embedder, cfg.Embedding.CacheTTL), vectorStore, retriever.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		HybridMinScore:      cfg.Retrieval.HybridMinScore,
		Weights: types.HybridWeights{
			Vector: cfg.Retrieval.HybridVectorWeight,
			Text:   cfg.Retrieval.HybridTextWeight,
		},
	}, log)

	p := pipeline.New(r, chat, pipeline.Config{
		ContextTokens:  cfg.Retrieval.ContextTokens,
		ContextWindow:  cfg.LLM.ContextWindow,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		MinQueryLength: cfg.Orchestrator.MinQueryLength,
		HelpCenterURL:  cfg.Fallback.HelpCenterURL,
		DocsURL:        cfg.Fallback.DocsURL,
	}, log, rec)

	var classifier orchestrator.Classifier = orchestrator.HeuristicClassifier{Collections: cfg.Orchestrator.Collections}
	if cfg.Orchestrator.UseLLMClassify {
		classifier = orchestrator.NewLLMClassifier(chat, orchestrator.HeuristicClassifier{Collections: cfg.Orchestrator.Collections}, log)
	}

	o := orchestrator.New(p, classifier, orchestrator.Config{
		MinQueryLength:      cfg.Orchestrator.MinQueryLength,
		TopK:                cfg.Retrieval.TopK,
		ContextTokens:       cfg.Retrieval.ContextTokens,
		FollowUpTopKBoost:   cfg.Retrieval.FollowUpTopKBoost,
		FollowUpContextMult: cfg.Retrieval.FollowUpContextMult,
		IncludeReferences:   true,
	}, log, rec)

	return &app{
		config:       cfg,
		logger:       log,
		metrics:      rec,
		store:        vectorStore,
		orchestrator: o,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}
