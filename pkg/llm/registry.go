package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/askdocs/pkg/xerr"
)

// Provider is the closed set of model backends.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Providers lists every Provider; both factory maps must cover it.
var Providers = []Provider{ProviderOllama, ProviderOpenAI}

type chatFactory func(config ChatConfig) (llms.Model, error)

type embedFactory func(config EmbedderConfig) (embeddings.EmbedderClient, error)

var chatFactories = map[Provider]chatFactory{
	ProviderOllama: func(config ChatConfig) (llms.Model, error) {
		return ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	},
	ProviderOpenAI: func(config ChatConfig) (llms.Model, error) {
		if config.APIKey == "" {
			return nil, xerr.Configuration(xerr.CodeConfiguration, "openai chat model requires an api key")
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	},
}

var embedFactories = map[Provider]embedFactory{
	ProviderOllama: func(config EmbedderConfig) (embeddings.EmbedderClient, error) {
		return ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	},
	ProviderOpenAI: func(config EmbedderConfig) (embeddings.EmbedderClient, error) {
		if config.APIKey == "" {
			return nil, xerr.Configuration(xerr.CodeConfiguration, "openai embeddings require an api key")
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		return openai.New(opts...)
	},
}

// ParseProvider maps a config string onto the Provider enum.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", xerr.Configuration(xerr.CodeUnknownProvider, fmt.Sprintf("unknown provider %q", s))
}

// ValidateProviders fails fast at startup when a configured provider has no factory.
func ValidateProviders(chat, embed string) error {
	cp, err := ParseProvider(chat)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if _, ok := chatFactories[cp]; !ok {
		return xerr.Configuration(xerr.CodeUnknownProvider, fmt.Sprintf("no chat factory for %q", cp))
	}
	ep, err := ParseProvider(embed)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if _, ok := embedFactories[ep]; !ok {
		return xerr.Configuration(xerr.CodeUnknownProvider, fmt.Sprintf("no embedding factory for %q", ep))
	}
	return nil
}
