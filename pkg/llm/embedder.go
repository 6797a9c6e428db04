package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/lectern/internal/types"
	"github.com/xhad/lectern/pkg/usage"
)

// EmbedderConfig represents the configuration for an embedding provider.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
	// Gate is consulted before, and told about, every metered call. It is
	// ignored for Ollama.
	Gate types.BudgetGate
	// CountTokens estimates usage for providers that do not report it.
	CountTokens func(model, text string) int
}

// Embedder maps texts to vectors through a langchaingo embedding client.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	metered  bool
}

var _ types.EmbeddingProvider = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = withEmbedderDefaults(config)

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required for %s embeddings", config.Model)
		}
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = llm
	case ProviderOllama:
		llm, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Provider)
	}

	return NewEmbedder(client, config)
}

// NewEmbedder wraps an existing embedding client. Metering applies when the
// provider is OpenAI and a gate is set.
func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	config = withEmbedderDefaults(config)

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		metered:  config.Provider == ProviderOpenAI && config.Gate != nil,
	}, nil
}

func withEmbedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Model == "" {
		if config.Provider == ProviderOllama {
			config.Model = "nomic-embed-text:latest"
		} else {
			config.Model = "text-embedding-3-small"
		}
	}
	if config.Provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.CountTokens == nil {
		config.CountTokens = llms.CountTokens
	}
	return config
}

func (e *Embedder) ModelName() string {
	return e.config.Model
}

// Embed returns one vector per text in input order. When the monthly budget
// is spent it fails with a *usage.BudgetExceededError and makes no call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if e.metered {
		allowance, err := e.config.Gate.CheckAllowed()
		if err != nil {
			return nil, fmt.Errorf("failed to check usage limit: %w", err)
		}
		if !allowance.Allowed {
			return nil, &usage.BudgetExceededError{Message: allowance.Message}
		}
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}

	if e.metered {
		tokens := 0
		for _, text := range texts {
			tokens += e.config.CountTokens(e.config.Model, text)
		}
		if _, err := e.config.Gate.Record(e.config.Model, tokens); err != nil {
			log.Printf("Warning: failed to record embedding usage: %v", err)
		}
	}

	return vectors, nil
}
