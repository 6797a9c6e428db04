package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModeAPI   = "api"
	ModeLocal = "local"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	SourceOpenAlex        = "openalex"
	SourceSemanticScholar = "semanticscholar"
)

// DefaultConcepts are the OpenAlex concept ids the index is restricted to:
// philosophy, theology, religious studies, religion and biblical studies.
var DefaultConcepts = []string{
	"C138885662",
	"C2778407487",
	"C175444787",
	"C41008148",
	"C2522767166",
}

// DefaultPricing is the per-token price, in USD, of each metered model key.
// LLM keys carry an "-input" or "-output" suffix; embedding keys are the
// bare model name.
var DefaultPricing = map[string]float64{
	"text-embedding-3-small": 0.02 / 1_000_000,
	"text-embedding-3-large": 0.13 / 1_000_000,
	"text-embedding-ada-002": 0.10 / 1_000_000,
	"gpt-3.5-turbo-input":    0.50 / 1_000_000,
	"gpt-3.5-turbo-output":   1.50 / 1_000_000,
	"gpt-4o-mini-input":      0.15 / 1_000_000,
	"gpt-4o-mini-output":     0.60 / 1_000_000,
	"gpt-4o-input":           2.50 / 1_000_000,
	"gpt-4o-output":          10.00 / 1_000_000,
}

// DefaultTemperature applies when llm.temperature is not set. An explicit
// 0 is kept.
const DefaultTemperature = 0.2

type Config struct {
	Environment string `yaml:"environment"`

	LLM struct {
		Mode         string   `yaml:"mode"`
		Provider     string   `yaml:"provider"`
		BaseURL      string   `yaml:"base_url"`
		APIKey       string   `yaml:"api_key"`
		Model        string   `yaml:"model"`
		MaxTokens    int      `yaml:"max_tokens"`
		Temperature  *float64 `yaml:"temperature"`
		ExcerptChars int      `yaml:"excerpt_chars"`
	} `yaml:"llm"`

	Embedding struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedding"`

	Store struct {
		Backend    string `yaml:"backend"`
		Path       string `yaml:"path"`
		URL        string `yaml:"url"`
		Collection string `yaml:"collection"`
		VectorDim  int    `yaml:"vector_dim"`
	} `yaml:"store"`

	Source struct {
		Provider        string        `yaml:"provider"`
		Concepts        []string      `yaml:"concepts"`
		Keywords        string        `yaml:"keywords"`
		Mailto          string        `yaml:"mailto"`
		S2APIKey        string        `yaml:"s2_api_key"`
		Timeout         time.Duration `yaml:"timeout"`
		RequestInterval time.Duration `yaml:"request_interval"`
		Topics          []string      `yaml:"topics"`
	} `yaml:"source"`

	Enrich struct {
		UnpaywallEmail string        `yaml:"unpaywall_email"`
		Timeout        time.Duration `yaml:"timeout"`
		Concurrency    int           `yaml:"concurrency"`
	} `yaml:"enrich"`

	Usage struct {
		Path         string             `yaml:"path"`
		MonthlyLimit float64            `yaml:"monthly_limit"`
		Pricing      map[string]float64 `yaml:"pricing"`
	} `yaml:"usage"`

	Feedback struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"feedback"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"lectern.yaml",
			"config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/lectern/config.yaml"),
			"/etc/lectern/config.yaml",
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

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
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
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.LLM.Mode == "" {
		config.LLM.Mode = ModeAPI
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderOpenAI
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-3.5-turbo"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 512
	}
	if config.LLM.Temperature == nil {
		temperature := DefaultTemperature
		config.LLM.Temperature = &temperature
	}
	if config.LLM.ExcerptChars == 0 {
		config.LLM.ExcerptChars = 1500
	}
	if config.LLM.Provider == ProviderOllama && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = ProviderOpenAI
	}
	if config.Embedding.Model == "" {
		if config.Embedding.Provider == ProviderOllama {
			config.Embedding.Model = "nomic-embed-text:latest"
		} else {
			config.Embedding.Model = "text-embedding-3-small"
		}
	}
	if config.Embedding.Provider == ProviderOllama && config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 100
	}

	if config.Store.Backend == "" {
		config.Store.Backend = BackendSQLite
	}
	if config.Store.Path == "" {
		config.Store.Path = "./lectern_db"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "lectern"
	}
	if config.Store.VectorDim == 0 {
		if config.Embedding.Provider == ProviderOllama {
			config.Store.VectorDim = 768
		} else {
			config.Store.VectorDim = 1536
		}
	}

	if config.Source.Provider == "" {
		config.Source.Provider = SourceOpenAlex
	}
	if len(config.Source.Concepts) == 0 {
		config.Source.Concepts = append([]string(nil), DefaultConcepts...)
	}
	if config.Source.Keywords == "" {
		config.Source.Keywords = "theology philosophy religion"
	}
	if config.Source.Timeout == 0 {
		config.Source.Timeout = 15 * time.Second
	}
	if config.Source.RequestInterval == 0 {
		config.Source.RequestInterval = time.Second
	}

	if config.Enrich.UnpaywallEmail == "" {
		config.Enrich.UnpaywallEmail = "lectern@research.app"
	}
	if config.Enrich.Timeout == 0 {
		config.Enrich.Timeout = 5 * time.Second
	}
	if config.Enrich.Concurrency == 0 {
		config.Enrich.Concurrency = 8
	}

	if config.Usage.Path == "" {
		config.Usage.Path = "usage_data.json"
	}
	if config.Usage.MonthlyLimit == 0 {
		config.Usage.MonthlyLimit = 5.00
	}
	// Configured prices extend and override the defaults.
	pricing := make(map[string]float64, len(DefaultPricing)+len(config.Usage.Pricing))
	for k, v := range DefaultPricing {
		pricing[k] = v
	}
	for k, v := range config.Usage.Pricing {
		pricing[k] = v
	}
	config.Usage.Pricing = pricing

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = key
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == ProviderOllama {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedding.Provider == ProviderOllama {
			config.Embedding.BaseURL = baseURL
		}
	}
	if mode := os.Getenv("LLM_MODE"); mode != "" {
		config.LLM.Mode = mode
	}
	if model := os.Getenv("MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("EMBEDDING_MODEL"); model != "" {
		config.Embedding.Model = model
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if path := os.Getenv("LECTERN_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	if key := os.Getenv("SEMANTIC_SCHOLAR_API_KEY"); key != "" {
		config.Source.S2APIKey = key
	}
	if hook := os.Getenv("DISCORD_WEBHOOK_URL"); hook != "" {
		config.Feedback.WebhookURL = hook
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Server.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		config.Server.Port = port
	}
}

// LLMMetered reports whether answer generation is billed to the usage
// ledger.
func (c *Config) LLMMetered() bool {
	return c.LLM.Mode == ModeAPI && c.LLM.Provider == ProviderOpenAI
}

// EmbeddingMetered reports whether embedding calls are billed to the usage
// ledger.
func (c *Config) EmbeddingMetered() bool {
	return c.Embedding.Provider == ProviderOpenAI
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
