package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/danja/semem/pkg/memory"
)

var (
	_ memory.Storage   = (*Store)(nil)
	_ memory.TxStorage = (*Store)(nil)
)

const (
	tierShortTerm = "short_term"
	tierLongTerm  = "long_term"
)

// txKey is the context key under which an in-flight transaction started by
// [Store.BeginTx] is carried to a subsequent [Store.Save] call.
type txKey struct{}

// Store is a PostgreSQL-backed implementation of [memory.Storage] and
// [memory.TxStorage], persisting interaction records (with embeddings as
// pgvector columns) in a single `interactions` table partitioned by tier.
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] so the
// interactions table exists with the given embedding dimension.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// LoadHistory implements [memory.Storage]. It reads every persisted
// interaction, partitioned by tier.
func (s *Store) LoadHistory(ctx context.Context) ([]*memory.Interaction, []*memory.Interaction, error) {
	const q = `
		SELECT id, tier, prompt, output, embedding, concepts, "timestamp", access_count, decay_factor
		FROM   interactions
		ORDER  BY "timestamp"`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: load history: %w", err)
	}
	defer rows.Close()

	var shortTerm, longTerm []*memory.Interaction
	for rows.Next() {
		ia, tier, err := scanInteraction(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: load history: scan: %w", err)
		}
		switch tier {
		case tierLongTerm:
			longTerm = append(longTerm, ia)
		default:
			shortTerm = append(shortTerm, ia)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres store: load history: %w", err)
	}
	return shortTerm, longTerm, nil
}

func scanInteraction(row pgx.Rows) (ia *memory.Interaction, tier string, err error) {
	ia = &memory.Interaction{}
	var conceptsRaw []byte
	var vec pgvector.Vector

	if err := row.Scan(
		&ia.ID, &tier, &ia.Prompt, &ia.Output, &vec, &conceptsRaw,
		&ia.Timestamp, &ia.AccessCount, &ia.DecayFactor,
	); err != nil {
		return nil, "", err
	}
	ia.Embedding = vec.Slice()
	if err := json.Unmarshal(conceptsRaw, &ia.Concepts); err != nil {
		return nil, "", fmt.Errorf("unmarshal concepts: %w", err)
	}
	return ia, tier, nil
}

// Save implements [memory.Storage]. It replaces the entire persisted
// interaction set with snapshot inside a transaction: if ctx carries a
// transaction started by [Store.BeginTx], Save uses it without committing
// (the caller commits or rolls back explicitly); otherwise Save manages its
// own transaction, committing on success and rolling back on any error.
func (s *Store) Save(ctx context.Context, snapshot memory.StoreSnapshot) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return saveWithTx(ctx, tx, snapshot)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: save: begin: %w", err)
	}
	if err := saveWithTx(ctx, tx, snapshot); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: save: commit: %w", err)
	}
	return nil
}

func saveWithTx(ctx context.Context, tx pgx.Tx, snapshot memory.StoreSnapshot) error {
	if _, err := tx.Exec(ctx, `DELETE FROM interactions`); err != nil {
		return fmt.Errorf("postgres store: save: clear: %w", err)
	}

	batch := &pgx.Batch{}
	const insert = `
		INSERT INTO interactions
		    (id, tier, prompt, output, embedding, concepts, "timestamp", access_count, decay_factor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	queue := func(tier string, ia *memory.Interaction) error {
		concepts, err := json.Marshal(ia.Concepts)
		if err != nil {
			return fmt.Errorf("marshal concepts for %s: %w", ia.ID, err)
		}
		batch.Queue(insert,
			ia.ID, tier, ia.Prompt, ia.Output, pgvector.NewVector(ia.Embedding),
			concepts, ia.Timestamp, ia.AccessCount, ia.DecayFactor,
		)
		return nil
	}
	for _, ia := range snapshot.ShortTerm {
		if err := queue(tierShortTerm, ia); err != nil {
			return fmt.Errorf("postgres store: save: %w", err)
		}
	}
	for _, ia := range snapshot.LongTerm {
		if err := queue(tierLongTerm, ia); err != nil {
			return fmt.Errorf("postgres store: save: %w", err)
		}
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres store: save: insert row %d: %w", i, err)
		}
	}
	return nil
}

// BeginTx implements [memory.TxStorage]. The returned context carries the
// transaction handle for a subsequent Save call.
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("postgres store: begin tx: %w", err)
	}
	return context.WithValue(ctx, txKey{}, tx), nil
}

// Commit implements [memory.TxStorage].
func (s *Store) Commit(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("postgres store: commit: %w: no transaction on context", memory.ErrConfigError)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Rollback implements [memory.TxStorage].
func (s *Store) Rollback(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("postgres store: rollback: %w: no transaction on context", memory.ErrConfigError)
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("postgres store: rollback: %w", err)
	}
	return nil
}

// Close implements [memory.Storage]. It releases all connections held by
// the underlying pool.
func (s *Store) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}
