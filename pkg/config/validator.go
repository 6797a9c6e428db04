package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.Mode != ModeAPI && c.LLM.Mode != ModeLocal {
		errors = append(errors, ValidationError{
			Field:   "llm.mode",
			Message: fmt.Sprintf("mode must be %q or %q", ModeAPI, ModeLocal),
		})
	}

	if c.LLM.Provider != ProviderOpenAI && c.LLM.Provider != ProviderOllama {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.ExcerptChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.excerpt_chars",
			Message: "excerpt_chars must be positive",
		})
	}

	// Validate embedding config
	if c.Embedding.Provider != ProviderOpenAI && c.Embedding.Provider != ProviderOllama {
		errors = append(errors, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unsupported provider: %s", c.Embedding.Provider),
		})
	}

	if c.Embedding.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedding.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate store config
	switch c.Store.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.Store.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "database URL is required for the postgres backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("unsupported backend: %s", c.Store.Backend),
		})
	}

	if c.Store.URL != "" {
		if _, err := url.Parse(c.Store.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Store.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "store.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate source config
	if c.Source.Provider != SourceOpenAlex && c.Source.Provider != SourceSemanticScholar {
		errors = append(errors, ValidationError{
			Field:   "source.provider",
			Message: fmt.Sprintf("unsupported source: %s", c.Source.Provider),
		})
	}

	if c.Source.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "source.timeout",
			Message: "timeout must be positive",
		})
	}

	// Validate enrichment config
	if c.Enrich.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "enrich.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Enrich.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "enrich.concurrency",
			Message: "concurrency must be positive",
		})
	}

	// Validate usage config
	if c.Usage.MonthlyLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "usage.monthly_limit",
			Message: "monthly_limit must be positive",
		})
	}

	// A metered model without a price would never count against the limit.
	if c.LLMMetered() {
		for _, key := range []string{c.LLM.Model + "-input", c.LLM.Model + "-output"} {
			if _, ok := c.Usage.Pricing[key]; !ok {
				errors = append(errors, ValidationError{
					Field:   "usage.pricing",
					Message: fmt.Sprintf("no price for metered model key %q", key),
				})
			}
		}
	}

	if c.EmbeddingMetered() {
		if _, ok := c.Usage.Pricing[c.Embedding.Model]; !ok {
			errors = append(errors, ValidationError{
				Field:   "usage.pricing",
				Message: fmt.Sprintf("no price for metered model key %q", c.Embedding.Model),
			})
		}
	}

	if c.Feedback.WebhookURL != "" {
		if u, err := url.Parse(c.Feedback.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "feedback.webhook_url",
				Message: "invalid webhook URL",
			})
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	return errors
}
