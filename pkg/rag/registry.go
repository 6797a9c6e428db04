package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/lectern/internal/types"
	"github.com/xhad/lectern/pkg/config"
	"github.com/xhad/lectern/pkg/enrich"
	"github.com/xhad/lectern/pkg/feedback"
	"github.com/xhad/lectern/pkg/llm"
	"github.com/xhad/lectern/pkg/source"
	"github.com/xhad/lectern/pkg/store"
	"github.com/xhad/lectern/pkg/usage"
)

// Registry builds each service from configuration the first time it is
// asked for and hands out the same instance afterwards. It is safe for
// concurrent use.
type Registry struct {
	config  *config.Config
	verbose bool

	ledgerOnce sync.Once
	ledger     *usage.Ledger
	ledgerErr  error

	indexOnce sync.Once
	index     *store.Index
	indexErr  error

	composerOnce sync.Once
	composer     *llm.Composer
	composerErr  error

	pipelineOnce sync.Once
	pipeline     *Pipeline
	pipelineErr  error

	enricherOnce sync.Once
	enricher     *enrich.Enricher

	feedbackOnce sync.Once
	feedback     *feedback.Notifier
}

func NewRegistry(cfg *config.Config, verbose bool) *Registry {
	return &Registry{config: cfg, verbose: verbose}
}

func (r *Registry) Config() *config.Config {
	return r.config
}

func (r *Registry) Ledger() (*usage.Ledger, error) {
	r.ledgerOnce.Do(func() {
		r.ledger, r.ledgerErr = usage.NewWithConfig(usage.LedgerConfig{
			Path:         r.config.Usage.Path,
			MonthlyLimit: r.config.Usage.MonthlyLimit,
			Pricing:      r.config.Usage.Pricing,
		})
	})
	return r.ledger, r.ledgerErr
}

// Index opens the configured backend and wraps it with the embedder.
func (r *Registry) Index(ctx context.Context) (*store.Index, error) {
	r.indexOnce.Do(func() {
		r.index, r.indexErr = r.openIndex(ctx)
	})
	return r.index, r.indexErr
}

func (r *Registry) openIndex(ctx context.Context) (*store.Index, error) {
	ledger, err := r.Ledger()
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  r.config.Embedding.Provider,
		Model:     r.config.Embedding.Model,
		BaseURL:   r.config.Embedding.BaseURL,
		APIKey:    r.config.Embedding.APIKey,
		BatchSize: r.config.Embedding.BatchSize,
		Gate:      ledger,
	})
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	switch r.config.Store.Backend {
	case config.BackendSQLite:
		backend, err = store.NewSQLite(store.SQLiteConfig{Dir: r.config.Store.Path})
	case config.BackendPostgres:
		backend, err = store.NewPostgres(ctx, store.VectorStoreConfig{
			ConnString: r.config.Store.URL,
			VectorDim:  r.config.Store.VectorDim,
		})
	default:
		err = fmt.Errorf("unsupported store backend: %s", r.config.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	return store.NewIndex(backend, embedder, store.IndexConfig{
		Collection: r.config.Store.Collection,
	}), nil
}

func (r *Registry) Source() (types.Source, error) {
	switch r.config.Source.Provider {
	case config.SourceOpenAlex:
		return source.NewOpenAlex(source.OpenAlexConfig{
			Concepts: r.config.Source.Concepts,
			Mailto:   r.config.Source.Mailto,
			Timeout:  r.config.Source.Timeout,
		}), nil
	case config.SourceSemanticScholar:
		return source.NewSemanticScholar(source.SemanticScholarConfig{
			APIKey:   r.config.Source.S2APIKey,
			Keywords: r.config.Source.Keywords,
			Timeout:  r.config.Source.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", r.config.Source.Provider)
	}
}

func (r *Registry) Enricher() *enrich.Enricher {
	r.enricherOnce.Do(func() {
		r.enricher = enrich.NewWithConfig(enrich.Config{
			Email:       r.config.Enrich.UnpaywallEmail,
			Timeout:     r.config.Enrich.Timeout,
			Concurrency: r.config.Enrich.Concurrency,
			Verbose:     r.verbose,
		})
	})
	return r.enricher
}

func (r *Registry) Composer() (*llm.Composer, error) {
	r.composerOnce.Do(func() {
		ledger, err := r.Ledger()
		if err != nil {
			r.composerErr = err
			return
		}
		r.composer, r.composerErr = llm.NewWithConfig(llm.ChatConfig{
			Mode:         r.config.LLM.Mode,
			Provider:     r.config.LLM.Provider,
			Model:        r.config.LLM.Model,
			BaseURL:      r.config.LLM.BaseURL,
			APIKey:       r.config.LLM.APIKey,
			Temperature:  r.config.LLM.Temperature,
			MaxTokens:    r.config.LLM.MaxTokens,
			ExcerptChars: r.config.LLM.ExcerptChars,
			Gate:         ledger,
		})
	})
	return r.composer, r.composerErr
}

func (r *Registry) Feedback() *feedback.Notifier {
	r.feedbackOnce.Do(func() {
		r.feedback = feedback.NewWithConfig(feedback.FeedbackConfig{
			WebhookURL: r.config.Feedback.WebhookURL,
		})
	})
	return r.feedback
}

// Pipeline assembles the full ingest and query pipeline.
func (r *Registry) Pipeline(ctx context.Context) (*Pipeline, error) {
	r.pipelineOnce.Do(func() {
		r.pipeline, r.pipelineErr = r.buildPipeline(ctx)
	})
	return r.pipeline, r.pipelineErr
}

func (r *Registry) buildPipeline(ctx context.Context) (*Pipeline, error) {
	src, err := r.Source()
	if err != nil {
		return nil, err
	}
	index, err := r.Index(ctx)
	if err != nil {
		return nil, err
	}
	composer, err := r.Composer()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(PipelineConfig{
		Source:          src,
		Index:           index,
		Enricher:        r.Enricher(),
		Composer:        composer,
		RequestInterval: r.config.Source.RequestInterval,
	}), nil
}

// Close releases the index if it was opened.
func (r *Registry) Close() error {
	if r.index != nil {
		return r.index.Close()
	}
	return nil
}
