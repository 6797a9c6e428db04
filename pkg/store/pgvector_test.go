package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xhad/lectern/pkg/store"
)

// The PostgreSQL backend runs the same suite as SQLite against a live
// database with the pgvector extension available.
func TestPostgresIndex(t *testing.T) {
	connString := os.Getenv("LECTERN_TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("LECTERN_TEST_DATABASE_URL not set")
	}

	runIndexSuite(t, func(t *testing.T, emb *tableEmbedder) *store.Index {
		t.Helper()
		ctx := context.Background()
		table := fmt.Sprintf("lectern_test_%d", time.Now().UnixNano())

		backend, err := store.NewPostgres(ctx, store.VectorStoreConfig{
			ConnString: connString,
			TableName:  table,
			VectorDim:  2,
		})
		require.NoError(t, err)
		t.Cleanup(func() { backend.Close() })

		return store.NewIndex(backend, emb, store.IndexConfig{Collection: "test"})
	})
}

func TestPostgresRejectsUnsafeTableName(t *testing.T) {
	_, err := store.NewPostgres(context.Background(), store.VectorStoreConfig{
		ConnString: "postgres://localhost:5432/none",
		TableName:  "docs; DROP TABLE users",
	})
	require.Error(t, err)
}
