package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/memstore"
	memmock "github.com/danja/semem/pkg/memory/mock"
)

func baseConfig() memstore.Config {
	return memstore.Config{
		Dimension:                4,
		DecayRate:                1e-4,
		PromoteFactor:            1.1,
		DemoteFactor:             0.9,
		PromotionAccessThreshold: 10,
		ClusterSeed:              1,
	}
}

func interaction(id string, embedding []float32, concepts ...string) *memory.Interaction {
	return &memory.Interaction{
		ID:        id,
		Prompt:    "p-" + id,
		Output:    "o-" + id,
		Embedding: embedding,
		Concepts:  concepts,
	}
}

func TestAddInteraction_AssignsIDAndDefaults(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ia := &memory.Interaction{Embedding: []float32{1, 0, 0, 0}}
	if err := s.AddInteraction(context.Background(), ia); err != nil {
		t.Fatalf("AddInteraction error: %v", err)
	}
	if ia.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if ia.DecayFactor != 1.0 {
		t.Errorf("DecayFactor = %v, want 1.0", ia.DecayFactor)
	}
	if ia.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if s.ShortTermSize() != 1 {
		t.Errorf("ShortTermSize() = %d, want 1", s.ShortTermSize())
	}
}

func TestAddInteraction_DuplicateIDRejected(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()
	if err := s.AddInteraction(ctx, interaction("a", []float32{1, 0, 0, 0})); err != nil {
		t.Fatal(err)
	}
	err := s.AddInteraction(ctx, interaction("a", []float32{0, 1, 0, 0}))
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestAddInteraction_RollsBackOnStorageFailure(t *testing.T) {
	t.Parallel()
	storage := &memmock.Storage{SaveErr: errors.New("disk full")}
	s := memstore.New(baseConfig(), storage)
	ctx := context.Background()

	err := s.AddInteraction(ctx, interaction("a", []float32{1, 0, 0, 0}, "x", "y"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, memory.ErrStorageError) {
		t.Errorf("expected ErrStorageError in chain, got %v", err)
	}
	if s.ShortTermSize() != 0 {
		t.Errorf("ShortTermSize() = %d, want 0 after rollback", s.ShortTermSize())
	}
	if w := s.Retrieve(ctx, []float32{1, 0, 0, 0}, []string{"x"}, -1e9, 0); len(w) != 0 {
		t.Errorf("expected no residual graph effects, got %d entries", len(w))
	}
}

func TestAddInteraction_PersistsOnSuccess(t *testing.T) {
	t.Parallel()
	storage := &memmock.Storage{}
	s := memstore.New(baseConfig(), storage)
	if err := s.AddInteraction(context.Background(), interaction("a", []float32{1, 0, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if storage.CallCount("Save") != 1 {
		t.Errorf("Save called %d times, want 1", storage.CallCount("Save"))
	}
}

func TestRetrieve_EmptyStoreReturnsNil(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	got := s.Retrieve(context.Background(), []float32{1, 0, 0, 0}, nil, 0, 0)
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRetrieve_ThresholdSplitsHitsAndMisses(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()

	// Two very dissimilar interactions; a query aligned with "match" should
	// score high against it and low against "other".
	if err := s.AddInteraction(ctx, interaction("match", []float32{1, 0, 0, 0}, "ai")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddInteraction(ctx, interaction("other", []float32{0, 1, 0, 0}, "cooking")); err != nil {
		t.Fatal(err)
	}

	results := s.Retrieve(ctx, []float32{1, 0, 0, 0}, []string{"ai"}, 1.0, 0)

	var found bool
	for _, r := range results {
		if r.Interaction.ID == "match" && !r.FromFallback {
			found = true
			if r.Interaction.AccessCount != 2 {
				t.Errorf("AccessCount = %d, want 2 (1 at ingestion plus this hit)", r.Interaction.AccessCount)
			}
		}
	}
	if !found {
		t.Error("expected 'match' to appear as a primary relevant hit")
	}
}

func TestRetrieve_ExcludeLastNGreaterThanNReturnsFallbackOnly(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()
	if err := s.AddInteraction(ctx, interaction("a", []float32{1, 0, 0, 0}, "x")); err != nil {
		t.Fatal(err)
	}

	results := s.Retrieve(ctx, []float32{1, 0, 0, 0}, []string{"x"}, 0, 5)
	for _, r := range results {
		if !r.FromFallback {
			t.Errorf("expected only fallback entries, got primary hit %+v", r)
		}
	}
}

func TestRetrieve_MissDemotesDecayFactor(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()
	ia := interaction("a", []float32{1, 0, 0, 0}, "x")
	if err := s.AddInteraction(ctx, ia); err != nil {
		t.Fatal(err)
	}

	// A query orthogonal to ia's embedding guarantees sim=0, well under any
	// positive threshold.
	s.Retrieve(ctx, []float32{0, 1, 0, 0}, nil, 1.0, 0)
	if ia.DecayFactor >= 1.0 {
		t.Errorf("DecayFactor = %v, want < 1.0 after a miss", ia.DecayFactor)
	}
}

func TestClassify_PromotesHighAccessInteractions(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.PromotionAccessThreshold = 2
	s := memstore.New(cfg, nil)
	ctx := context.Background()
	if err := s.AddInteraction(ctx, interaction("a", []float32{1, 0, 0, 0}, "x")); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		s.Retrieve(ctx, []float32{1, 0, 0, 0}, []string{"x"}, -1e9, 0)
	}
	s.Classify()

	lt := s.LongTerm()
	if len(lt) != 1 || lt[0].ID != "a" {
		t.Fatalf("expected 'a' promoted to long term, got %v", lt)
	}

	s.Classify()
	if len(s.LongTerm()) != 1 {
		t.Error("Classify should be idempotent")
	}
}

func TestEvict_RemovesInteractionAndReindexes(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()
	if err := s.AddInteraction(ctx, interaction("a", []float32{1, 0, 0, 0}, "x")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddInteraction(ctx, interaction("b", []float32{0, 1, 0, 0}, "y")); err != nil {
		t.Fatal(err)
	}

	if err := s.Evict("a"); err != nil {
		t.Fatal(err)
	}
	if s.ShortTermSize() != 1 {
		t.Errorf("ShortTermSize() = %d, want 1", s.ShortTermSize())
	}
	if err := s.Evict("nonexistent"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadSnapshot_RestoresIndexesAndGraph(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	s.LoadSnapshot([]*memory.Interaction{
		interaction("a", []float32{1, 0, 0, 0}, "x", "y"),
	}, nil)

	if s.ShortTermSize() != 1 {
		t.Fatalf("ShortTermSize() = %d, want 1", s.ShortTermSize())
	}
	results := s.Retrieve(context.Background(), []float32{1, 0, 0, 0}, []string{"x"}, -1e9, 0)
	if len(results) == 0 {
		t.Error("expected retrieve to see the loaded interaction")
	}
}

func TestRetrieve_SortsByScoreDescending(t *testing.T) {
	t.Parallel()
	s := memstore.New(baseConfig(), nil)
	ctx := context.Background()
	if err := s.AddInteraction(ctx, interaction("low", []float32{1, 1, 0, 0}, "x")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if err := s.AddInteraction(ctx, interaction("high", []float32{1, 0, 0, 0}, "x")); err != nil {
		t.Fatal(err)
	}

	results := s.Retrieve(ctx, []float32{1, 0, 0, 0}, []string{"x"}, -1e9, 0)
	var primary []string
	for _, r := range results {
		if !r.FromFallback {
			primary = append(primary, r.Interaction.ID)
		}
	}
	if len(primary) < 2 {
		t.Fatalf("expected at least 2 primary hits, got %v", primary)
	}
	if primary[0] != "high" {
		t.Errorf("expected 'high' to rank first, got order %v", primary)
	}
}
