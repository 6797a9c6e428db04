package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/xhad/lectern/internal/models"
)

type SQLiteConfig struct {
	// Dir holds the database file; it is created if missing.
	Dir string
}

// SQLiteStore keeps vectors as little-endian float32 blobs and ranks them
// in process. It suits collections of a few tens of thousands of papers.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Backend = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	embedding BLOB NOT NULL,
	document TEXT NOT NULL,
	metadata TEXT NOT NULL,
	PRIMARY KEY (collection, id)
)`

func NewSQLite(config SQLiteConfig) (*SQLiteStore, error) {
	if config.Dir == "" {
		config.Dir = "./lectern_db"
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	dbPath := filepath.Join(config.Dir, "lectern.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Put(ctx context.Context, collection string, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, embedding, document, metadata)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			embedding = excluded.embedding,
			document = excluded.document,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, e.ID, float32SliceToBytes(e.Vector), e.Document, string(metadata)); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Nearest(ctx context.Context, collection string, vector []float32, k int) ([]models.RetrievalHit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, document, metadata FROM entries WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	type scored struct {
		hit      models.RetrievalHit
		distance float64
	}

	var candidates []scored
	for rows.Next() {
		var (
			id, document, metadataJSON string
			blob                       []byte
		)
		if err := rows.Scan(&id, &blob, &document, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		stored := bytesToFloat32Slice(blob)
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("dimension mismatch for %s: stored %d, query %d", id, len(stored), len(vector))
		}

		var metadata models.Metadata
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
		}

		candidates = append(candidates, scored{
			hit:      models.RetrievalHit{ID: id, Document: document, Metadata: metadata},
			distance: cosineDistance(vector, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].hit.ID < candidates[j].hit.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]models.RetrievalHit, len(candidates))
	for i := range candidates {
		d := candidates[i].distance
		hits[i] = candidates[i].hit
		hits[i].Distance = &d
	}
	return hits, nil
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
