package types

import (
	"context"

	"github.com/xhad/lectern/internal/models"
)

// Core interfaces
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string, maxResults int) ([]models.DocumentRecord, error)
}

// EmbeddingProvider maps texts to vectors, one per input, order preserved.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Allowance is the budget gate's verdict for the current month.
type Allowance struct {
	Allowed   bool
	Remaining float64
	Message   string
}

// BudgetGate is consulted before metered calls and told about their usage.
type BudgetGate interface {
	CheckAllowed() (Allowance, error)
	Record(modelKey string, tokens int) (float64, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, records []models.DocumentRecord) error
	Query(ctx context.Context, text string, topK int) ([]models.RetrievalHit, error)
}

type Enricher interface {
	Enrich(ctx context.Context, sources []models.Metadata) []models.Metadata
}

type Composer interface {
	Generate(ctx context.Context, question string, hits []models.RetrievalHit) string
}
