package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/textutil"
	"github.com/xhad/lectern/internal/types"
)

// ErrInvalidTopK is returned by Query when top_k is not positive.
var ErrInvalidTopK = errors.New("top_k must be a positive integer")

// Entry is one persisted row: a sanitized id, its vector, the indexed text
// and scalar metadata.
type Entry struct {
	ID       string
	Vector   []float32
	Document string
	Metadata models.Metadata
}

// Backend stores entries per named collection.
type Backend interface {
	// Put writes all entries or none of them. An existing id is replaced.
	Put(ctx context.Context, collection string, entries []Entry) error
	// Nearest returns up to k entries ordered by ascending cosine distance,
	// ties broken by id.
	Nearest(ctx context.Context, collection string, vector []float32, k int) ([]models.RetrievalHit, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

type IndexConfig struct {
	Collection string
}

// Index embeds records and keeps them in a Backend collection.
type Index struct {
	config   IndexConfig
	backend  Backend
	embedder types.EmbeddingProvider
}

var _ types.VectorIndex = (*Index)(nil)

func NewIndex(backend Backend, embedder types.EmbeddingProvider, config IndexConfig) *Index {
	if config.Collection == "" {
		config.Collection = "lectern"
	}
	return &Index{
		config:   config,
		backend:  backend,
		embedder: embedder,
	}
}

// Upsert embeds every record in one batch and stores the result. If
// embedding fails nothing is written.
func (ix *Index) Upsert(ctx context.Context, records []models.DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = textutil.SanitizeUTF8(r.Text)
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("failed to embed documents: got %d vectors for %d records", len(vectors), len(records))
	}

	entries := make([]Entry, len(records))
	for i, r := range records {
		metadata := r.Metadata.Clone()
		if metadata == nil {
			metadata = models.Metadata{}
		}
		entries[i] = Entry{
			ID:       models.SanitizeID(r.ID),
			Vector:   vectors[i],
			Document: texts[i],
			Metadata: metadata,
		}
	}

	if err := ix.backend.Put(ctx, ix.config.Collection, entries); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}
	return nil
}

// Query returns the topK nearest entries to text, best match first. Fewer
// entries than topK yields all of them.
func (ix *Index) Query(ctx context.Context, text string, topK int) ([]models.RetrievalHit, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	count, err := ix.backend.Count(ctx, ix.config.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return []models.RetrievalHit{}, nil
	}

	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	hits, err := ix.backend.Nearest(ctx, ix.config.Collection, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return hits, nil
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	return ix.backend.Count(ctx, ix.config.Collection)
}

func (ix *Index) Collection() string {
	return ix.config.Collection
}

func (ix *Index) Close() error {
	return ix.backend.Close()
}

// cosineDistance is 1 - cosine similarity. A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denominator := math.Sqrt(normA) * math.Sqrt(normB)
	if denominator == 0 {
		return 1
	}
	return 1 - dot/denominator
}
