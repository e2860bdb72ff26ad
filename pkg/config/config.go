package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider      string  `yaml:"provider"`
		BaseURL       string  `yaml:"base_url"`
		APIKey        string  `yaml:"api_key"`
		Model         string  `yaml:"model"`
		MaxTokens     int     `yaml:"max_tokens"`
		Temperature   float64 `yaml:"temperature"`
		TopP          float64 `yaml:"top_p"`
		ContextWindow int     `yaml:"context_window"`
	} `yaml:"llm"`

	Embedding struct {
		Provider   string        `yaml:"provider"`
		BaseURL    string        `yaml:"base_url"`
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model"`
		Dimensions int           `yaml:"dimensions"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
	} `yaml:"embedding"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Retrieval struct {
		TopK                int     `yaml:"top_k"`
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		HybridVectorWeight  float64 `yaml:"hybrid_vector_weight"`
		HybridTextWeight    float64 `yaml:"hybrid_text_weight"`
		HybridMinScore      float64 `yaml:"hybrid_min_score"`
		ContextTokens       int     `yaml:"context_tokens"`
		FollowUpTopKBoost   int     `yaml:"follow_up_top_k_boost"`
		FollowUpContextMult float64 `yaml:"follow_up_context_multiplier"`
	} `yaml:"retrieval"`

	Fallback struct {
		HelpCenterURL string `yaml:"help_center_url"`
		DocsURL       string `yaml:"docs_url"`
	} `yaml:"fallback"`

	Orchestrator struct {
		MinQueryLength int                 `yaml:"min_query_length"`
		UseLLMClassify bool                `yaml:"use_llm_classifier"`
		Collections    map[string][]string `yaml:"collections"`
	} `yaml:"orchestrator"`

	Dedup struct {
		SlackTTL          time.Duration `yaml:"slack_ttl"`
		TeamsTTL          time.Duration `yaml:"teams_ttl"`
		ProcessingTimeout time.Duration `yaml:"processing_timeout"`
		SweepInterval     time.Duration `yaml:"sweep_interval"`
		SweepBatch        int           `yaml:"sweep_batch"`
	} `yaml:"dedup"`

	Server struct {
		Addr      string  `yaml:"addr"`
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
	} `yaml:"server"`

	Log struct {
		File       string `yaml:"file"`
		Production bool   `yaml:"production"`
		Level      string `yaml:"level"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/askdocs/config.yaml"),
			"/etc/askdocs/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.1
	}
	if config.LLM.TopP == 0 {
		config.LLM.TopP = 0.9
	}
	if config.LLM.ContextWindow == 0 {
		config.LLM.ContextWindow = 8192
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.CacheTTL == 0 {
		config.Embedding.CacheTTL = 10 * time.Minute
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Embedding.Dimensions == 0 {
		config.Embedding.Dimensions = config.Database.VectorDim
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}
	if config.Retrieval.SimilarityThreshold == 0 {
		config.Retrieval.SimilarityThreshold = 0.3
	}
	if config.Retrieval.HybridVectorWeight == 0 && config.Retrieval.HybridTextWeight == 0 {
		config.Retrieval.HybridVectorWeight = 0.5
		config.Retrieval.HybridTextWeight = 0.5
	}
	if config.Retrieval.ContextTokens == 0 {
		config.Retrieval.ContextTokens = 3000
	}
	if config.Retrieval.FollowUpTopKBoost == 0 {
		config.Retrieval.FollowUpTopKBoost = 3
	}
	if config.Retrieval.FollowUpContextMult == 0 {
		config.Retrieval.FollowUpContextMult = 1.5
	}

	if config.Fallback.HelpCenterURL == "" {
		config.Fallback.HelpCenterURL = "https://help.example.com"
	}
	if config.Fallback.DocsURL == "" {
		config.Fallback.DocsURL = "https://docs.example.com"
	}

	if config.Orchestrator.MinQueryLength == 0 {
		config.Orchestrator.MinQueryLength = 3
	}

	if config.Dedup.SlackTTL == 0 {
		config.Dedup.SlackTTL = 3 * time.Second
	}
	if config.Dedup.TeamsTTL == 0 {
		config.Dedup.TeamsTTL = 5 * time.Second
	}
	if config.Dedup.ProcessingTimeout == 0 {
		config.Dedup.ProcessingTimeout = 2 * time.Minute
	}
	if config.Dedup.SweepInterval == 0 {
		config.Dedup.SweepInterval = 10 * time.Second
	}
	if config.Dedup.SweepBatch == 0 {
		config.Dedup.SweepBatch = 500
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 20
	}
	if config.Server.Burst == 0 {
		config.Server.Burst = 40
	}

	if config.Log.File == "" {
		config.Log.File = "askdocs.log"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if provider := os.Getenv("EMBEDDING_PROVIDER"); provider != "" {
		config.Embedding.Provider = provider
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
