// Package orchestrator turns an inbound platform question into a
// platform-agnostic answer. HandleQuery never returns an error and never
// panics; every failure becomes a well-formed Result.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/metrics"
	"github.com/xhad/askdocs/pkg/pipeline"
	"github.com/xhad/askdocs/pkg/xerr"
	"go.uber.org/zap"
)

type Platform string

const (
	PlatformSlack Platform = "slack"
	PlatformTeams Platform = "teams"
	PlatformWeb   Platform = "web"
	PlatformCLI   Platform = "cli"
)

// Metadata keys read from PlatformQueryContext.Metadata.
const (
	MetaCollection      = "collection"
	MetaParentContextID = "parentContextId"
	MetaChannelName     = "channelName"
)

const CodeInternal = "INTERNAL_ERROR"

type PlatformQueryContext struct {
	Platform  Platform          `json:"platform"`
	UserID    string            `json:"userId"`
	ChannelID string            `json:"channelId"`
	ThreadID  string            `json:"threadId,omitempty"`
	Query     string            `json:"query"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Hints struct {
	PreferSteps   bool   `json:"preferSteps"`
	Collection    string `json:"collection,omitempty"`
	ThreadContext string `json:"threadContext,omitempty"`
}

type Metadata struct {
	ContextID        string `json:"contextId"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Platform         string `json:"platform"`
	Stage            string `json:"stage,omitempty"`
	IsFallback       bool   `json:"isFallback"`
	FallbackReason   string `json:"fallbackReason,omitempty"`
	DocsFound        int    `json:"docsFound"`
	SearchMode       string `json:"searchMode,omitempty"`
	ErrorCode        string `json:"errorCode,omitempty"`
}

type Result struct {
	Text          string   `json:"text"`
	Summary       string   `json:"summary"`
	Steps         []string `json:"steps,omitempty"`
	Sources       []Source `json:"sources"`
	Confidence    float64  `json:"confidence"`
	Intent        Intent   `json:"intent"`
	PlatformHints Hints    `json:"platformHints"`
	Metadata      Metadata `json:"metadata"`
}

var errorMessages = map[string]string{
	xerr.CodeInvalidQuery:          "Please ask a slightly longer question so I can search the documentation.",
	xerr.CodeContextBudgetExceeded: "That question pulls in more documentation than I can read at once. Try narrowing it down.",
	xerr.CodeEmbeddingFailed:       "I couldn't search the documentation right now. Please try again in a moment.",
	xerr.CodeRetrievalFailed:       "I couldn't search the documentation right now. Please try again in a moment.",
	xerr.CodeGenerationFailed:      "I found relevant documentation but couldn't write an answer. Please try again.",
	xerr.CodeEmptyGeneration:       "I found relevant documentation but couldn't write an answer. Please try again.",
}

const genericErrorMessage = "Something went wrong while answering your question. Please try again."

// ErrorMessage maps an error code to a user-safe message.
func ErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return genericErrorMessage
}

// Runner is satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, query string, opts pipeline.Options) (*pipeline.Result, error)
}

type Config struct {
	MinQueryLength      int
	TopK                int
	ContextTokens       int
	FollowUpTopKBoost   int
	FollowUpContextMult float64
	IncludeReferences   bool
}

func DefaultConfig() Config {
	return Config{
		MinQueryLength:      3,
		TopK:                5,
		ContextTokens:       3000,
		FollowUpTopKBoost:   3,
		FollowUpContextMult: 1.5,
		IncludeReferences:   true,
	}
}

type Orchestrator struct {
	pipeline   Runner
	classifier Classifier
	config     Config
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

func New(p Runner, classifier Classifier, config Config, log *zap.Logger, rec *metrics.Recorder) *Orchestrator {
	def := DefaultConfig()
	if config.MinQueryLength <= 0 {
		config.MinQueryLength = def.MinQueryLength
	}
	if config.TopK <= 0 {
		config.TopK = def.TopK
	}
	if config.ContextTokens <= 0 {
		config.ContextTokens = def.ContextTokens
	}
	if config.FollowUpTopKBoost < 0 {
		config.FollowUpTopKBoost = 0
	}
	if config.FollowUpContextMult < 1 {
		config.FollowUpContextMult = 1
	}
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	return &Orchestrator{
		pipeline:   p,
		classifier: classifier,
		config:     config,
		logger:     logger.OrNop(log).Named("orchestrator"),
		metrics:    rec,
	}
}

// HandleQuery answers one platform question.
func (o *Orchestrator) HandleQuery(ctx context.Context, qc PlatformQueryContext) (result Result) {
	start := time.Now()
	meta := Metadata{ContextID: uuid.NewString(), Platform: string(qc.Platform)}
	log := o.logger.With(
		zap.String("context_id", meta.ContextID),
		zap.String("platform", string(qc.Platform)),
		zap.String("user_id", qc.UserID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling query", zap.Any("panic", r), zap.Stack("stack"))
			result = o.errorResult(meta, CodeInternal, "")
		}
		result.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
	}()

	query := Normalize(qc.Query)
	if utf8.RuneCountInString(query) < o.config.MinQueryLength {
		log.Info("rejected short query", zap.Int("length", utf8.RuneCountInString(query)))
		return o.errorResult(meta, xerr.CodeInvalidQuery, "")
	}

	hints, cls := o.hints(ctx, qc, query)
	opts := o.pipelineOptions(hints, qc)

	res, err := o.pipeline.Run(ctx, query, opts)
	if err != nil {
		code := xerr.CodeOf(err)
		var se *pipeline.StageError
		stage := ""
		if errors.As(err, &se) {
			stage = string(se.Stage)
			meta.DocsFound = se.Debug.DocsFound
			meta.SearchMode = string(se.Debug.SearchMode)
		}
		log.Error("pipeline failed", zap.String("code", code), zap.String("stage", stage), zap.Error(err))
		out := o.errorResult(meta, code, stage)
		out.PlatformHints = hints
		return out
	}

	meta.Stage = string(res.Debug.Stage)
	meta.IsFallback = res.Debug.IsFallback
	meta.FallbackReason = res.Debug.FallbackReason
	meta.DocsFound = res.Debug.DocsFound
	meta.SearchMode = string(res.Debug.SearchMode)

	outcome := "answered"
	if res.Debug.IsFallback {
		outcome = "fallback"
	}
	o.metrics.Result(outcome)

	result = Result{
		Text:          res.Answer,
		Summary:       res.Summary,
		Steps:         res.Steps,
		Sources:       Sources(res.RetrievedDocs, res.Citations),
		Confidence:    Confidence(res),
		Intent:        FinalIntent(cls.Intent, query, res),
		PlatformHints: hints,
		Metadata:      meta,
	}
	log.Info("query answered",
		zap.String("outcome", outcome),
		zap.Float64("confidence", result.Confidence),
		zap.String("intent", string(result.Intent)),
		zap.Int("sources", len(result.Sources)))
	return result
}

func (o *Orchestrator) hints(ctx context.Context, qc PlatformQueryContext, query string) (Hints, Classification) {
	channelHint := qc.Metadata[MetaChannelName]
	if channelHint == "" {
		channelHint = qc.ChannelID
	}
	cls := o.classifier.Classify(ctx, query, channelHint)

	h := Hints{
		PreferSteps:   containsAny(strings.ToLower(query), howToKeywords),
		Collection:    qc.Metadata[MetaCollection],
		ThreadContext: qc.Metadata[MetaParentContextID],
	}
	if h.Collection == "" {
		h.Collection = cls.Collection
	}
	return h, cls
}

func (o *Orchestrator) pipelineOptions(h Hints, qc PlatformQueryContext) pipeline.Options {
	opts := pipeline.Options{
		TopK:              o.config.TopK,
		ContextTokens:     o.config.ContextTokens,
		PreferSteps:       h.PreferSteps,
		IncludeReferences: o.config.IncludeReferences,
	}
	if h.Collection != "" {
		opts.Collections = []string{h.Collection}
	}
	if qc.Metadata[MetaParentContextID] != "" {
		opts.TopK += o.config.FollowUpTopKBoost
		opts.ContextTokens = int(float64(opts.ContextTokens) * o.config.FollowUpContextMult)
	}
	return opts
}

func (o *Orchestrator) errorResult(meta Metadata, code, stage string) Result {
	o.metrics.Result("error")
	if code == "" {
		code = CodeInternal
	}
	meta.ErrorCode = code
	meta.Stage = stage
	msg := ErrorMessage(code)
	return Result{
		Text:       msg,
		Summary:    msg,
		Sources:    []Source{},
		Confidence: 0,
		Intent:     IntentOther,
		Metadata:   meta,
	}
}
