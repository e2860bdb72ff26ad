// Package pipeline runs one query end to end: retrieve, pack context, prompt,
// generate and parse, or synthesize a fallback when retrieval finds nothing.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/askdocs/internal/models"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/contextwindow"
	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/metrics"
	"github.com/xhad/askdocs/pkg/prompt"
	"github.com/xhad/askdocs/pkg/response"
	"github.com/xhad/askdocs/pkg/retriever"
	"github.com/xhad/askdocs/pkg/xerr"
	"go.uber.org/zap"
)

type Stage string

const (
	StageInit         Stage = "init"
	StageRetrieving   Stage = "retrieving"
	StageHybridRetry  Stage = "hybrid_retry"
	StageFallback     Stage = "fallback"
	StageContextBuilt Stage = "context_built"
	StagePrompted     Stage = "prompted"
	StageGenerating   Stage = "generating"
	StageParsed       Stage = "parsed"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Fallback reasons reported in DebugInfo.FallbackReason.
const (
	ReasonEmptyRetrieval = "EMPTY_RETRIEVAL_RESULTS"
	ReasonHybridEmpty    = "HYBRID_SEARCH_ALSO_EMPTY"
	ReasonHybridFailed   = "HYBRID_SEARCH_FAILED"
)

const excerptRunes = 200

type DebugInfo struct {
	Stage          Stage                   `json:"stage"`
	IsFallback     bool                    `json:"isFallback"`
	FallbackReason string                  `json:"fallbackReason,omitempty"`
	DocsFound      int                     `json:"docsFound"`
	SearchMode     retriever.SearchMode    `json:"searchMode,omitempty"`
	Timings        map[Stage]time.Duration `json:"timings"`
}

type Result struct {
	Answer        string                `json:"answer"`
	Summary       string                `json:"summary"`
	Steps         []string              `json:"steps,omitempty"`
	Citations     []models.Citation     `json:"citations"`
	RetrievedDocs []models.RetrievedDoc `json:"retrievedDocs"`
	Debug         DebugInfo             `json:"debugInfo"`
}

// StageError wraps a retrieval or generation failure with the stage it
// happened in and the debug info gathered up to that point.
type StageError struct {
	Stage Stage
	Debug DebugInfo
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options are per-request overrides. Zero values use the pipeline Config.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	ContentTypes        []string
	Sections            []string
	Collections         []string
	Hybrid              bool
	ContextTokens       int
	PreferSteps         bool
	IncludeReferences   bool
	MaxTokens           int
	Temperature         float64
}

type Config struct {
	ContextTokens  int
	ContextWindow  int
	MaxTokens      int
	Temperature    float64
	TopP           float64
	MinQueryLength int
	HelpCenterURL  string
	DocsURL        string
}

func DefaultConfig() Config {
	return Config{
		ContextTokens:  3000,
		ContextWindow:  8192,
		MaxTokens:      1000,
		Temperature:    0.1,
		TopP:           0.9,
		MinQueryLength: 3,
		HelpCenterURL:  "https://help.example.com",
		DocsURL:        "https://docs.example.com",
	}
}

// Retriever is satisfied by *retriever.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retriever.Options) (retriever.Result, error)
}

type Pipeline struct {
	retriever Retriever
	llm       types.LLM
	prompts   *prompt.Builder
	config    Config
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

func New(r Retriever, llm types.LLM, config Config, log *zap.Logger, rec *metrics.Recorder) *Pipeline {
	def := DefaultConfig()
	if config.ContextTokens <= 0 {
		config.ContextTokens = def.ContextTokens
	}
	if config.ContextWindow <= 0 {
		config.ContextWindow = def.ContextWindow
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Temperature <= 0 {
		config.Temperature = def.Temperature
	}
	if config.TopP <= 0 {
		config.TopP = def.TopP
	}
	if config.MinQueryLength <= 0 {
		config.MinQueryLength = def.MinQueryLength
	}
	if config.HelpCenterURL == "" {
		config.HelpCenterURL = def.HelpCenterURL
	}
	if config.DocsURL == "" {
		config.DocsURL = def.DocsURL
	}
	return &Pipeline{
		retriever: r,
		llm:       llm,
		prompts:   prompt.New(),
		config:    config,
		logger:    logger.OrNop(log).Named("pipeline"),
		metrics:   rec,
	}
}

// run tracks the state of one request.
type run struct {
	p     *Pipeline
	debug DebugInfo
	mark  time.Time
}

func (r *run) enter(s Stage) {
	now := time.Now()
	r.debug.Timings[r.debug.Stage] += now.Sub(r.mark)
	r.p.metrics.ObserveStage(string(r.debug.Stage), now.Sub(r.mark))
	r.debug.Stage = s
	r.mark = now
}

func (r *run) fail(err error) error {
	stage := r.debug.Stage
	r.enter(StageFailed)
	r.p.logger.Error("pipeline stage failed", zap.String("stage", string(stage)), zap.Error(err))
	return &StageError{Stage: stage, Debug: r.debug, Err: err}
}

// Run answers query. Validation and budget errors are returned as *xerr.Error;
// retrieval and generation failures come back as *StageError.
func (p *Pipeline) Run(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < p.config.MinQueryLength {
		return nil, xerr.Validation(xerr.CodeInvalidQuery,
			fmt.Sprintf("query must be at least %d characters", p.config.MinQueryLength))
	}

	r := &run{
		p:     p,
		debug: DebugInfo{Stage: StageInit, Timings: make(map[Stage]time.Duration)},
		mark:  time.Now(),
	}

	r.enter(StageRetrieving)
	res, err := p.retriever.Retrieve(ctx, query, retriever.Options{
		TopK:                opts.TopK,
		SimilarityThreshold: opts.SimilarityThreshold,
		ContentTypes:        opts.ContentTypes,
		Sections:            opts.Sections,
		Collections:         opts.Collections,
		Hybrid:              opts.Hybrid,
	})
	if err != nil {
		return nil, r.fail(err)
	}
	r.debug.DocsFound = len(res.Chunks)
	r.debug.SearchMode = res.Mode
	if res.Escalated {
		r.enter(StageHybridRetry)
	}

	if res.Empty() {
		return p.fallback(r, query, fallbackReason(res)), nil
	}

	budget := opts.ContextTokens
	if budget <= 0 {
		budget = p.config.ContextTokens
	}
	window := contextwindow.Build(res.Chunks, budget)
	r.enter(StageContextBuilt)
	p.logger.Debug("context built",
		zap.Int("chunks", len(window.Chunks)),
		zap.Int("tokens", window.TokenCount),
		zap.Int("budget", budget))

	bundle := p.prompts.Build(query, window, prompt.Options{
		PreferSteps:       opts.PreferSteps,
		IncludeReferences: opts.IncludeReferences,
	})
	r.enter(StagePrompted)

	gen := types.GenerateOptions{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        p.config.TopP,
	}
	if gen.MaxTokens <= 0 {
		gen.MaxTokens = p.config.MaxTokens
	}
	if gen.Temperature <= 0 {
		gen.Temperature = p.config.Temperature
	}

	estimate := contextwindow.EstimateTokens(bundle.SystemPrompt) + contextwindow.EstimateTokens(bundle.UserPrompt) + gen.MaxTokens
	if estimate > p.config.ContextWindow {
		return nil, xerr.Budget(fmt.Sprintf("estimated %d tokens exceeds context window of %d", estimate, p.config.ContextWindow))
	}

	r.enter(StageGenerating)
	raw, err := p.llm.Generate(ctx, []types.Message{
		{Role: types.RoleSystem, Content: bundle.SystemPrompt},
		{Role: types.RoleUser, Content: bundle.UserPrompt},
	}, gen)
	if err != nil {
		if !xerr.Is(err, xerr.KindGeneration) {
			err = xerr.Generation(xerr.CodeGenerationFailed, "generate answer", err)
		}
		return nil, r.fail(err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, r.fail(xerr.Generation(xerr.CodeEmptyGeneration, "LLM returned empty content", nil))
	}

	r.enter(StageParsed)
	answer := response.Parse(raw)
	if v := response.Validate(raw); !v.Valid {
		issues := make([]string, len(v.Issues))
		for i, is := range v.Issues {
			issues[i] = string(is)
		}
		p.logger.Warn("generated answer has quality issues", zap.Strings("issues", issues))
	}

	r.enter(StageDone)
	return &Result{
		Answer:        answer.Answer,
		Summary:       answer.Summary,
		Steps:         answer.Steps,
		Citations:     bundle.Citations,
		RetrievedDocs: retrievedDocs(res.Chunks),
		Debug:         r.debug,
	}, nil
}

func fallbackReason(res retriever.Result) string {
	switch {
	case res.Escalated && res.EscalationErr != nil:
		return ReasonHybridFailed
	case res.Escalated:
		return ReasonHybridEmpty
	default:
		return ReasonEmptyRetrieval
	}
}

func retrievedDocs(chunks []models.Chunk) []models.RetrievedDoc {
	docs := make([]models.RetrievedDoc, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, models.RetrievedDoc{ID: c.ID, Score: c.Score, Excerpt: c.Excerpt(excerptRunes)})
	}
	return docs
}
