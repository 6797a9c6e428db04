package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  mode: "local"
  model: "gpt-4"
  max_tokens: 1000
  temperature: 0.5

embedding:
  provider: "ollama"
  base_url: "http://localhost:11434"

store:
  backend: "postgres"
  url: "postgres://localhost:5432/test"
  collection: "papers"

source:
  provider: "semanticscholar"
  timeout: 3s
  topics:
    - "biblical theology"
    - "patristics"

usage:
  monthly_limit: 10

server:
  port: 9000
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, ModeLocal, config.LLM.Mode)
	assert.Equal(t, "gpt-4", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.5, *config.LLM.Temperature)
	assert.Equal(t, ProviderOllama, config.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedding.Model)
	assert.Equal(t, 768, config.Store.VectorDim)
	assert.Equal(t, "postgres://localhost:5432/test", config.Store.URL)
	assert.Equal(t, "papers", config.Store.Collection)
	assert.Equal(t, SourceSemanticScholar, config.Source.Provider)
	assert.Equal(t, 3*time.Second, config.Source.Timeout)
	assert.Equal(t, []string{"biblical theology", "patristics"}, config.Source.Topics)
	assert.Equal(t, 10.0, config.Usage.MonthlyLimit)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Empty(t, config.Validate())
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, ModeAPI, config.LLM.Mode)
	assert.Equal(t, "gpt-3.5-turbo", config.LLM.Model)
	assert.Equal(t, 512, config.LLM.MaxTokens)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, DefaultTemperature, *config.LLM.Temperature)
	assert.Equal(t, 1500, config.LLM.ExcerptChars)
	assert.Equal(t, "text-embedding-3-small", config.Embedding.Model)
	assert.Equal(t, 1536, config.Store.VectorDim)
	assert.Equal(t, BackendSQLite, config.Store.Backend)
	assert.Equal(t, "lectern", config.Store.Collection)
	assert.Equal(t, DefaultConcepts, config.Source.Concepts)
	assert.Equal(t, 15*time.Second, config.Source.Timeout)
	assert.Equal(t, 5*time.Second, config.Enrich.Timeout)
	assert.Equal(t, 5.00, config.Usage.MonthlyLimit)
	assert.InDelta(t, 0.02/1_000_000, config.Usage.Pricing["text-embedding-3-small"], 1e-15)
	assert.Equal(t, "0.0.0.0:8000", config.Addr())
	assert.Empty(t, config.Validate())

	// Pricing must not alias the package default.
	config.Usage.Pricing["text-embedding-3-small"] = 1
	assert.NotEqual(t, 1.0, DefaultPricing["text-embedding-3-small"])
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		c := Config{}
		applyDefaults(&c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.LLM.Mode = "remote"
				c.LLM.MaxTokens = 5000
				hot := 3.0
				c.LLM.Temperature = &hot
				c.Store.Backend = BackendPostgres
				c.Store.VectorDim = -1
				c.Feedback.WebhookURL = "not a url"
			},
			expectedErrs: 6,
			errorMessages: []string{
				"llm.mode: mode must be",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
				"store.url: database URL is required",
				"store.vector_dim: vector_dim must be positive",
				"feedback.webhook_url: invalid webhook URL",
			},
		},
		{
			name: "unknown providers",
			mutate: func(c *Config) {
				c.Embedding.Provider = "cohere"
				c.Source.Provider = "crossref"
			},
			expectedErrs: 2,
			errorMessages: []string{
				"embedding.provider: unsupported provider: cohere",
				"source.provider: unsupported source: crossref",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)
			errors := config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			if tt.errorMessages != nil {
				for i, msg := range tt.errorMessages {
					assert.Contains(t, errors[i].Error(), msg)
				}
			}
		})
	}
}

func TestMeteredModelsRequirePricing(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name: "priced non-default models",
			mutate: func(c *Config) {
				c.LLM.Model = "gpt-4o-mini"
				c.Embedding.Model = "text-embedding-3-large"
			},
		},
		{
			name: "unpriced chat model",
			mutate: func(c *Config) {
				c.LLM.Model = "gpt-4.1-nano"
			},
			errorMessages: []string{
				`usage.pricing: no price for metered model key "gpt-4.1-nano-input"`,
				`usage.pricing: no price for metered model key "gpt-4.1-nano-output"`,
			},
		},
		{
			name: "unpriced embedding model",
			mutate: func(c *Config) {
				c.Embedding.Model = "text-embedding-4"
			},
			errorMessages: []string{
				`usage.pricing: no price for metered model key "text-embedding-4"`,
			},
		},
		{
			name: "configured price extends defaults",
			mutate: func(c *Config) {
				c.LLM.Model = "gpt-4.1-nano"
				c.Usage.Pricing = map[string]float64{
					"gpt-4.1-nano-input":  0.10 / 1_000_000,
					"gpt-4.1-nano-output": 0.40 / 1_000_000,
				}
			},
		},
		{
			name: "unmetered providers need no price",
			mutate: func(c *Config) {
				c.LLM.Mode = ModeLocal
				c.LLM.Model = "llama3"
				c.Embedding.Provider = ProviderOllama
				c.Embedding.Model = "mxbai-embed-large"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{}
			tt.mutate(&config)
			applyDefaults(&config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestDefaultPricingIsPositive(t *testing.T) {
	for key, price := range DefaultPricing {
		assert.Greater(t, price, 0.0, key)
	}
}

func TestZeroTemperatureIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  temperature: 0\n"), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, config.LLM.Temperature)
	assert.Equal(t, 0.0, *config.LLM.Temperature)
	assert.Empty(t, config.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("SEMANTIC_SCHOLAR_API_KEY", "s2-key")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/hook")
	t.Setenv("LLM_MODE", "local")
	t.Setenv("PORT", "8123")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, "sk-test", config.Embedding.APIKey)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.URL)
	assert.Equal(t, "s2-key", config.Source.S2APIKey)
	assert.Equal(t, "https://discord.example/hook", config.Feedback.WebhookURL)
	assert.Equal(t, ModeLocal, config.LLM.Mode)
	assert.Equal(t, 8123, config.Server.Port)
}

func TestOllamaBaseURLOverride(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")

	config := &Config{}
	config.Embedding.Provider = ProviderOllama
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Empty(t, config.LLM.BaseURL)
}
