// Package postgres provides a PostgreSQL-backed implementation of
// [memory.Storage] and [memory.TxStorage], persisting interaction records
// with their embeddings as pgvector columns.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close(ctx)
//
//	shortTerm, longTerm, err := store.LoadHistory(ctx)
//	err = store.Save(ctx, memory.StoreSnapshot{ShortTerm: shortTerm, LongTerm: longTerm})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlInteractions = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS interactions (
    id           TEXT         PRIMARY KEY,
    tier         TEXT         NOT NULL CHECK (tier IN ('short_term', 'long_term')),
    prompt       TEXT         NOT NULL,
    output       TEXT         NOT NULL,
    embedding    vector(%[1]d) NOT NULL,
    concepts     JSONB        NOT NULL DEFAULT '[]',
    "timestamp"  TIMESTAMPTZ  NOT NULL,
    access_count INT          NOT NULL DEFAULT 0,
    decay_factor DOUBLE PRECISION NOT NULL DEFAULT 1.0
);

CREATE INDEX IF NOT EXISTS idx_interactions_tier
    ON interactions (tier);

CREATE INDEX IF NOT EXISTS idx_interactions_embedding
    ON interactions USING hnsw (embedding vector_cosine_ops);
`

// ddl returns the DDL with the embedding dimension substituted. The vector
// dimension is baked into the column type at schema creation time; changing
// it after the first migration requires a manual schema update.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(ddlInteractions, embeddingDimensions)
}

// Migrate creates or ensures the interactions table and the pgvector
// extension exist. Idempotent (CREATE TABLE/EXTENSION IF NOT EXISTS) and
// safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
