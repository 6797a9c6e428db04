package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/types"
)

const (
	ModeAPI   = "api"
	ModeLocal = "local"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ChatConfig represents the configuration for the answer composer.
type ChatConfig struct {
	// Mode "api" generates with a model; "local" always uses the
	// placeholder summary.
	Mode         string
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	// Temperature defaults to 0.2 when nil; 0 is honoured.
	Temperature  *float64
	MaxTokens    int
	ExcerptChars int
	// Gate meters generation. Leave nil for providers that are not
	// cost-bearing.
	Gate types.BudgetGate
}

// Composer turns retrieved hits into an answer. It never returns an error:
// every failure becomes displayable text.
type Composer struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.Composer = (*Composer)(nil)

// NewWithConfig creates a Composer backed by the configured provider. In
// api mode without an OpenAI key the composer falls back to placeholder
// answers instead of failing.
func NewWithConfig(config ChatConfig) (*Composer, error) {
	config = withChatDefaults(config)
	if *config.Temperature < 0 || *config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	}

	if config.Mode != ModeAPI {
		return NewComposer(nil, config), nil
	}

	var model llms.Model
	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			log.Printf("No OpenAI API key configured, answers will use placeholder mode")
			return NewComposer(nil, config), nil
		}
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	case ProviderOllama:
		llm, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
		// Local models are not metered.
		config.Gate = nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	return NewComposer(model, config), nil
}

// NewComposer wraps an existing model. A nil model selects placeholder mode.
func NewComposer(model llms.Model, config ChatConfig) *Composer {
	return &Composer{
		config: withChatDefaults(config),
		llm:    model,
	}
}

func withChatDefaults(config ChatConfig) ChatConfig {
	if config.Mode == "" {
		config.Mode = ModeAPI
	}
	if config.Provider == "" {
		config.Provider = ProviderOpenAI
	}
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	if config.Temperature == nil {
		temperature := 0.2
		config.Temperature = &temperature
	}
	if config.ExcerptChars == 0 {
		config.ExcerptChars = 1500
	}
	if config.Provider == ProviderOllama && config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	return config
}

// Generative reports whether answers come from a model.
func (c *Composer) Generative() bool {
	return c.llm != nil && c.config.Mode == ModeAPI
}

// Generate answers question from hits.
func (c *Composer) Generate(ctx context.Context, question string, hits []models.RetrievalHit) string {
	return c.generate(ctx, question, hits, nil)
}

// GenerateStream behaves like Generate and also hands each chunk to
// onChunk as the model produces it. Placeholder answers arrive as a
// single chunk.
func (c *Composer) GenerateStream(ctx context.Context, question string, hits []models.RetrievalHit, onChunk func(string)) string {
	return c.generate(ctx, question, hits, onChunk)
}

func (c *Composer) generate(ctx context.Context, question string, hits []models.RetrievalHit, onChunk func(string)) string {
	if !c.Generative() {
		answer := placeholderAnswer(question, hits)
		if onChunk != nil {
			onChunk(answer)
		}
		return answer
	}

	if c.config.Gate != nil {
		allowance, err := c.config.Gate.CheckAllowed()
		if err != nil {
			return fmt.Sprintf("Error checking usage limit: %v", err)
		}
		if !allowance.Allowed {
			return allowance.Message
		}
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, BuildPrompt(question, hits, c.config.ExcerptChars)),
	}
	opts := []llms.CallOption{
		llms.WithMaxTokens(c.config.MaxTokens),
		llms.WithTemperature(*c.config.Temperature),
	}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onChunk(string(chunk))
			return nil
		}))
	}

	response, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return fmt.Sprintf("Error calling %s: %v", c.providerLabel(), err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return fmt.Sprintf("Error calling %s: no response from model", c.providerLabel())
	}

	choice := response.Choices[0]
	c.recordUsage(choice.GenerationInfo)

	return strings.TrimSpace(choice.Content)
}

// recordUsage reports prompt and completion tokens under separate model
// keys. Ledger failures are logged and never affect the answer.
func (c *Composer) recordUsage(info map[string]any) {
	if c.config.Gate == nil || info == nil {
		return
	}

	usage := []struct {
		key   string
		field string
	}{
		{c.config.Model + "-input", "PromptTokens"},
		{c.config.Model + "-output", "CompletionTokens"},
	}
	for _, u := range usage {
		tokens, ok := tokenCount(info[u.field])
		if !ok {
			continue
		}
		if _, err := c.config.Gate.Record(u.key, tokens); err != nil {
			log.Printf("Warning: failed to record usage for %s: %v", u.key, err)
		}
	}
}

func tokenCount(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (c *Composer) providerLabel() string {
	switch c.config.Provider {
	case ProviderOllama:
		return "Ollama"
	default:
		return "OpenAI"
	}
}
