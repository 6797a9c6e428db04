package rag

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/types"
	"github.com/xhad/lectern/pkg/llm"
	"github.com/xhad/lectern/pkg/source"
	"github.com/xhad/lectern/pkg/usage"
)

// Index is the vector index the pipeline reads and writes.
type Index interface {
	types.VectorIndex
	Count(ctx context.Context) (int, error)
}

// Composer produces answers, optionally streaming them as they arrive.
type Composer interface {
	types.Composer
	GenerateStream(ctx context.Context, question string, hits []models.RetrievalHit, onChunk func(string)) string
}

type PipelineConfig struct {
	Source   types.Source
	Index    Index
	Enricher types.Enricher
	Composer Composer
	// RequestInterval is the courtesy delay between provider calls in a
	// batch ingestion.
	RequestInterval time.Duration
}

// Pipeline connects ingestion and question answering.
type Pipeline struct {
	config  PipelineConfig
	limiter *rate.Limiter
}

// Result is the answer to a query along with the sources it was built on.
type Result struct {
	Answer       string            `json:"answer"`
	Sources      []models.Metadata `json:"sources"`
	LibraryLinks models.Links      `json:"library_links"`
}

func NewWithConfig(config PipelineConfig) *Pipeline {
	limit := rate.Inf
	if config.RequestInterval > 0 {
		limit = rate.Every(config.RequestInterval)
	}
	return &Pipeline{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Ingest fetches up to maxResults records for query and indexes them.
func (p *Pipeline) Ingest(ctx context.Context, query string, maxResults int) (int, error) {
	if p.config.Source == nil {
		return 0, fmt.Errorf("no source configured")
	}
	records, err := p.config.Source.Fetch(ctx, query, maxResults)
	if err != nil {
		return 0, err
	}
	if err := p.IngestRecords(ctx, records); err != nil {
		return 0, err
	}
	log.Printf("Ingested %d records for %q from %s", len(records), query, p.config.Source.Name())
	return len(records), nil
}

// IngestRecords indexes records that were obtained elsewhere.
func (p *Pipeline) IngestRecords(ctx context.Context, records []models.DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := p.config.Index.Upsert(ctx, records); err != nil {
		return fmt.Errorf("failed to index records: %w", err)
	}
	return nil
}

// IngestPDF indexes a single local PDF file.
func (p *Pipeline) IngestPDF(ctx context.Context, path string, opts source.PDFOptions) (models.DocumentRecord, error) {
	record, err := source.LoadPDF(path, opts)
	if err != nil {
		return models.DocumentRecord{}, err
	}
	if err := p.IngestRecords(ctx, []models.DocumentRecord{record}); err != nil {
		return models.DocumentRecord{}, err
	}
	log.Printf("Ingested %s as %q", path, record.Title)
	return record, nil
}

// Query retrieves the topK closest records, enriches them with open-access
// links and composes an answer.
func (p *Pipeline) Query(ctx context.Context, question string, topK int) (Result, error) {
	return p.QueryStream(ctx, question, topK, nil)
}

// QueryStream is Query with answer text delivered to onChunk as it is
// generated. A nil onChunk disables streaming.
func (p *Pipeline) QueryStream(ctx context.Context, question string, topK int, onChunk func(string)) (Result, error) {
	hits, err := p.config.Index.Query(ctx, question, topK)
	if err != nil {
		if usage.IsBudgetExceeded(err) {
			return p.limitReached(question, err, onChunk), nil
		}
		return Result{}, err
	}

	sources := make([]models.Metadata, len(hits))
	for i, hit := range hits {
		sources[i] = hit.Metadata
	}
	if p.config.Enricher != nil {
		sources = p.config.Enricher.Enrich(ctx, sources)
	}

	enriched := make([]models.RetrievalHit, len(hits))
	for i, hit := range hits {
		hit.Metadata = sources[i]
		enriched[i] = hit
	}

	var answer string
	if onChunk != nil {
		answer = p.config.Composer.GenerateStream(ctx, question, enriched, onChunk)
	} else {
		answer = p.config.Composer.Generate(ctx, question, enriched)
	}

	return Result{
		Answer:       answer,
		Sources:      sources,
		LibraryLinks: llm.LibraryLinks(question),
	}, nil
}

// limitReached answers with the budget notice when the question itself
// could not be embedded.
func (p *Pipeline) limitReached(question string, err error, onChunk func(string)) Result {
	message := usage.UserMessage(err)
	log.Printf("Query refused: %s", message)
	if onChunk != nil {
		onChunk(message)
	}
	return Result{
		Answer:       message,
		Sources:      []models.Metadata{},
		LibraryLinks: llm.LibraryLinks(question),
	}
}

// Count reports how many records the index holds.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.config.Index.Count(ctx)
}

// QueryReport is the outcome of one query in a batch.
type QueryReport struct {
	Query    string `json:"query"`
	Ingested int    `json:"ingested"`
	Error    string `json:"error,omitempty"`
}

// BatchReport summarises a batch ingestion.
type BatchReport struct {
	Total    int           `json:"total"`
	PerQuery []QueryReport `json:"per_query"`
	Failed   []string      `json:"failed"`
}

// IngestBatch ingests each query in turn, spacing provider calls by the
// configured interval. A failed query is recorded and skipped; an exhausted
// budget stops the batch and is returned with the partial report.
func (p *Pipeline) IngestBatch(ctx context.Context, queries []string, maxResults int, progress func(QueryReport)) (BatchReport, error) {
	report := BatchReport{
		PerQuery: make([]QueryReport, 0, len(queries)),
		Failed:   []string{},
	}

	for _, query := range queries {
		if err := p.limiter.Wait(ctx); err != nil {
			return report, err
		}

		n, err := p.Ingest(ctx, query, maxResults)
		entry := QueryReport{Query: query, Ingested: n}
		if err != nil {
			entry.Error = err.Error()
			report.Failed = append(report.Failed, query)
			log.Printf("Error ingesting %q: %v", query, err)
		}
		report.Total += n
		report.PerQuery = append(report.PerQuery, entry)
		if progress != nil {
			progress(entry)
		}

		if err != nil && usage.IsBudgetExceeded(err) {
			return report, err
		}
	}

	return report, nil
}
