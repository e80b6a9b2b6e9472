package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/postgres"
)

// dsn returns the test database DSN from SEMEM_TEST_POSTGRES_DSN, skipping
// the calling test when unset. These tests require a running PostgreSQL
// instance with the pgvector extension installable by the connecting role.
func dsn(t *testing.T) string {
	t.Helper()
	v := os.Getenv("SEMEM_TEST_POSTGRES_DSN")
	if v == "" {
		t.Skip("SEMEM_TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	return v
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	store, err := postgres.NewStore(context.Background(), dsn(t), 4)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func sampleSnapshot() memory.StoreSnapshot {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return memory.StoreSnapshot{
		ShortTerm: []*memory.Interaction{
			{
				ID: "short-1", Prompt: "p1", Output: "o1",
				Embedding: []float32{1, 0, 0, 0}, Concepts: []string{"ai", "ml"},
				Timestamp: now, AccessCount: 2, DecayFactor: 1.21,
			},
		},
		LongTerm: []*memory.Interaction{
			{
				ID: "long-1", Prompt: "p2", Output: "o2",
				Embedding: []float32{0, 1, 0, 0}, Concepts: []string{"history"},
				Timestamp: now, AccessCount: 12, DecayFactor: 1.5,
			},
		},
	}
}

func TestSaveAndLoadHistory_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleSnapshot()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotShort, gotLong, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(gotShort) != 1 || gotShort[0].ID != "short-1" {
		t.Errorf("short term = %+v", gotShort)
	}
	if len(gotLong) != 1 || gotLong[0].ID != "long-1" {
		t.Errorf("long term = %+v", gotLong)
	}
	if len(gotShort[0].Concepts) != 2 {
		t.Errorf("concepts = %v", gotShort[0].Concepts)
	}
}

func TestSave_ReplacesPreviousSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, memory.StoreSnapshot{}); err != nil {
		t.Fatalf("Save (empty): %v", err)
	}

	gotShort, gotLong, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(gotShort) != 0 || len(gotLong) != 0 {
		t.Errorf("expected empty history after replacing with an empty snapshot, got short=%v long=%v", gotShort, gotLong)
	}
}

func TestBeginTxCommit_PersistsAcrossExplicitTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	txCtx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := store.Save(txCtx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Commit(txCtx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	gotShort, _, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(gotShort) != 1 {
		t.Errorf("expected committed row visible, got %v", gotShort)
	}
}

func TestBeginTxRollback_DiscardsChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	txCtx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := store.Save(txCtx, sampleSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Rollback(txCtx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	gotShort, gotLong, err := store.LoadHistory(ctx)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(gotShort) != 0 || len(gotLong) != 0 {
		t.Errorf("expected rolled-back transaction to leave no rows, got short=%v long=%v", gotShort, gotLong)
	}
}
