package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/lectern/internal/models"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore is the PostgreSQL backend. Ranking happens in the database
// with pgvector's cosine distance operator.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var _ Backend = (*VectorStore)(nil)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewPostgres(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "lectern_entries"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if !identifierPattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name: %q", config.TableName)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			document TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *VectorStore) Put(ctx context.Context, collection string, entries []Entry) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (collection, id, document, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = EXCLUDED.document,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	for _, e := range entries {
		if len(e.Vector) != vs.config.VectorDim {
			return fmt.Errorf("document %s has %d dimensions, table expects %d", e.ID, len(e.Vector), vs.config.VectorDim)
		}
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(ctx, stmt,
			collection,
			e.ID,
			e.Document,
			pgvector.NewVector(e.Vector),
			string(metadata),
		); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (vs *VectorStore) Nearest(ctx context.Context, collection string, vector []float32, k int) ([]models.RetrievalHit, error) {
	query := fmt.Sprintf(`
		SELECT id, document, metadata::text, embedding <=> $2 AS distance
		FROM %s
		WHERE collection = $1
		ORDER BY distance, id
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, collection, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	hits := []models.RetrievalHit{}
	for rows.Next() {
		var (
			hit          models.RetrievalHit
			metadataJSON string
			distance     float64
		)
		if err := rows.Scan(&hit.ID, &hit.Document, &metadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &hit.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", hit.ID, err)
		}
		hit.Distance = &distance
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return hits, nil
}

func (vs *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE collection = $1`, vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}
