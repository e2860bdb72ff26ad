package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/logger"
	"go.uber.org/zap"
)

type Intent string

const (
	IntentInstructions Intent = "instructions"
	IntentDetails      Intent = "details"
	IntentOther        Intent = "other"
)

func (i Intent) valid() bool {
	switch i {
	case IntentInstructions, IntentDetails, IntentOther:
		return true
	}
	return false
}

var (
	howToKeywords       = []string{"how to", "step", "guide", "tutorial"}
	explanatoryKeywords = []string{"what is", "explain", "detail"}
)

type Classification struct {
	Intent     Intent `json:"intent"`
	Collection string `json:"collection"`
}

// Classifier derives query intent and the target collection. Implementations
// must always return a usable Classification.
type Classifier interface {
	Classify(ctx context.Context, query, channelHint string) Classification
}

// HeuristicClassifier matches keywords. Collections maps a collection name to
// channel-name keywords.
type HeuristicClassifier struct {
	Collections map[string][]string
}

func (h HeuristicClassifier) Classify(_ context.Context, query, channelHint string) Classification {
	return Classification{
		Intent:     keywordIntent(query),
		Collection: h.collectionFor(channelHint),
	}
}

func keywordIntent(query string) Intent {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, howToKeywords):
		return IntentInstructions
	case containsAny(q, explanatoryKeywords):
		return IntentDetails
	default:
		return IntentOther
	}
}

func (h HeuristicClassifier) collectionFor(channelHint string) string {
	hint := strings.ToLower(channelHint)
	if hint == "" {
		return ""
	}
	for _, name := range h.names() {
		if containsAny(hint, h.Collections[name]) {
			return name
		}
	}
	return ""
}

func (h HeuristicClassifier) names() []string {
	names := make([]string, 0, len(h.Collections))
	for name := range h.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

const classifyPrompt = `Classify the user's documentation question.
Reply with a single JSON object and nothing else:
{"intent": "instructions" | "details" | "other", "collection": one of [%s] or ""}
"instructions" means the user wants steps to do something. "details" means the user wants an explanation.`

// LLMClassifier asks the model for a JSON classification and falls back to
// the heuristic when the reply does not decode into the expected shape.
type LLMClassifier struct {
	llm      types.LLM
	fallback HeuristicClassifier
	logger   *zap.Logger
}

func NewLLMClassifier(llm types.LLM, fallback HeuristicClassifier, log *zap.Logger) *LLMClassifier {
	return &LLMClassifier{llm: llm, fallback: fallback, logger: logger.OrNop(log).Named("classifier")}
}

func (c *LLMClassifier) Classify(ctx context.Context, query, channelHint string) Classification {
	names := c.fallback.names()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}

	user := "Question: " + query
	if channelHint != "" {
		user += "\nChannel: " + channelHint
	}
	raw, err := c.llm.Generate(ctx, []types.Message{
		{Role: types.RoleSystem, Content: fmt.Sprintf(classifyPrompt, strings.Join(quoted, ", "))},
		{Role: types.RoleUser, Content: user},
	}, types.GenerateOptions{MaxTokens: 60, Temperature: 0.1})
	if err != nil {
		c.logger.Debug("llm classification failed, using heuristic", zap.Error(err))
		return c.fallback.Classify(ctx, query, channelHint)
	}

	cls, err := decodeClassification(raw, names)
	if err != nil {
		c.logger.Debug("invalid classification, using heuristic", zap.Error(err), zap.String("raw", raw))
		return c.fallback.Classify(ctx, query, channelHint)
	}
	return cls
}

// decodeClassification accepts exactly one JSON object with known fields, an
// intent from the enum and a collection from allowed (or empty).
func decodeClassification(raw string, allowed []string) (Classification, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Classification{}, fmt.Errorf("no JSON object in reply")
	}

	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.DisallowUnknownFields()

	var payload struct {
		Intent     *string `json:"intent"`
		Collection *string `json:"collection"`
	}
	if err := dec.Decode(&payload); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if dec.More() {
		return Classification{}, fmt.Errorf("trailing data after classification object")
	}
	if payload.Intent == nil {
		return Classification{}, fmt.Errorf("intent is required")
	}

	cls := Classification{Intent: Intent(strings.ToLower(*payload.Intent))}
	if !cls.Intent.valid() {
		return Classification{}, fmt.Errorf("unknown intent %q", *payload.Intent)
	}
	if payload.Collection != nil && *payload.Collection != "" {
		idx := sort.SearchStrings(allowed, *payload.Collection)
		if idx == len(allowed) || allowed[idx] != *payload.Collection {
			return Classification{}, fmt.Errorf("unknown collection %q", *payload.Collection)
		}
		cls.Collection = *payload.Collection
	}
	return cls, nil
}
