package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/askdocs/internal/types"
	"github.com/xhad/askdocs/pkg/xerr"
)

// DefaultTemperature biases generation toward factual output.
const DefaultTemperature = 0.1

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatModel is the LLM collaborator backed by a langchaingo model.
type ChatModel struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.LLM = (*ChatModel)(nil)

// NewWithConfig creates a new ChatModel for the configured provider.
func NewWithConfig(config ChatConfig) (*ChatModel, error) {
	provider, err := ParseProvider(config.Provider)
	if err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = "mistral"
	}
	if provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	model, err := chatFactories[provider](config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return NewWithModel(model, config)
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, config ChatConfig) (*ChatModel, error) {
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, xerr.Configuration(xerr.CodeConfiguration, "temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, xerr.Configuration(xerr.CodeConfiguration, "max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}

	return &ChatModel{config: config, llm: model}, nil
}

// Generate sends messages to the model. Zero-valued options fall back to the
// configured low-temperature defaults.
func (c *ChatModel) Generate(ctx context.Context, messages []types.Message, opts types.GenerateOptions) (string, error) {
	merged := c.merge(opts)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleOf(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{
		llms.WithMaxTokens(merged.MaxTokens),
		llms.WithTemperature(merged.Temperature),
	}
	if merged.TopP > 0 {
		callOpts = append(callOpts, llms.WithTopP(merged.TopP))
	}
	if len(merged.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(merged.Stop))
	}

	resp, err := c.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", xerr.Generation(xerr.CodeGenerationFailed, "chat completion failed", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", xerr.Generation(xerr.CodeEmptyGeneration, "no response from LLM", nil)
	}

	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", xerr.Generation(xerr.CodeEmptyGeneration, "LLM returned empty content", nil)
	}
	return text, nil
}

func (c *ChatModel) merge(opts types.GenerateOptions) types.GenerateOptions {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = c.config.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = c.config.Temperature
	}
	if opts.TopP <= 0 {
		opts.TopP = c.config.TopP
	}
	return opts
}

func roleOf(role string) schema.ChatMessageType {
	switch role {
	case types.RoleSystem:
		return schema.ChatMessageTypeSystem
	case types.RoleAssistant, "model":
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
