// Package memstore implements the Memory Store: the component that owns
// the vector index, concept graph, and cluster map, maintains short- and
// long-term interaction tiers, and runs the relevance-ranked retrieval
// scoring pipeline.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/clustermap"
	"github.com/danja/semem/pkg/memory/conceptgraph"
	"github.com/danja/semem/pkg/memory/normalize"
	"github.com/danja/semem/pkg/memory/vectorindex"
)

// Config carries the scoring-pipeline tunables. Zero values are not
// sensible defaults; callers should populate every field (typically from
// internal/config.MemoryConfig).
type Config struct {
	// Dimension is the target embedding dimension D.
	Dimension int

	// DecayRate is the per-second exponential decay applied to
	// DecayFactor based on an interaction's age, default 1e-4.
	DecayRate float64

	// PromoteFactor multiplies DecayFactor on a retrieval hit, default 1.1.
	PromoteFactor float64

	// DemoteFactor multiplies DecayFactor on a retrieval miss, default 0.9.
	DemoteFactor float64

	// PromotionAccessThreshold is the AccessCount past which Classify
	// promotes an interaction to the long-term archive, default 10.
	PromotionAccessThreshold int

	// DecrementOnEvict, when true, makes Evict undo the evicted
	// interaction's contribution to the concept graph.
	DecrementOnEvict bool

	// ClusterSeed makes k-means initialization deterministic.
	ClusterSeed int64
}

// ScoredInteraction pairs a retrieved interaction with its pipeline score.
type ScoredInteraction struct {
	Interaction *memory.Interaction

	// AdjSim is the similarity/decay/reinforcement-adjusted score computed
	// in the primary pipeline (step 3e of the retrieval algorithm). Zero
	// for fallback entries.
	AdjSim float64

	// ActivationScore is the sum of spreading-activation values across the
	// interaction's concepts. Zero for fallback entries.
	ActivationScore float64

	// Score is AdjSim+ActivationScore for primary-pipeline entries, or the
	// cluster cosine similarity for fallback entries.
	Score float64

	// FromFallback marks an entry contributed by the cluster-map fallback
	// rather than the primary similarity-threshold pipeline.
	FromFallback bool
}

// Store owns the Vector Index, Concept Graph, and Cluster Map, the
// short-/long-term interaction tiers, and runs add_interaction/retrieve/
// classify. Mutating operations take an exclusive lock; the embedding
// cache is independently locked elsewhere and is not touched here. Safe
// for concurrent use.
type Store struct {
	mu sync.RWMutex

	cfg Config

	shortTerm []*memory.Interaction
	idIndex   map[string]int

	longTerm    []*memory.Interaction
	longTermIDs map[string]struct{}

	vectors  *vectorindex.Index
	graph    *conceptgraph.Graph
	clusters *clustermap.Map

	clustersDirty bool

	storage memory.Storage
	nowFn   func() time.Time
}

// New returns an empty Store. storage may be nil, in which case
// AddInteraction never persists and never rolls back.
func New(cfg Config, storage memory.Storage) *Store {
	return &Store{
		cfg:         cfg,
		idIndex:     make(map[string]int),
		longTermIDs: make(map[string]struct{}),
		vectors:     vectorindex.New(),
		graph:       conceptgraph.New(),
		clusters:    clustermap.New(cfg.ClusterSeed),
		storage:     storage,
		nowFn:       time.Now,
	}
}

// LoadSnapshot seeds the store from a previously persisted snapshot
// (typically read via [memory.Storage.LoadHistory] at startup). It must be
// called before any AddInteraction/Retrieve call and at most once.
func (s *Store) LoadSnapshot(shortTerm, longTerm []*memory.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shortTerm = shortTerm
	s.idIndex = make(map[string]int, len(shortTerm))
	embeddings := make([][]float32, len(shortTerm))
	for i, ia := range shortTerm {
		s.idIndex[ia.ID] = i
		embeddings[i] = ia.Embedding
		s.graph.Update(ia.Concepts)
	}
	s.vectors.Reset(embeddings)

	s.longTerm = longTerm
	s.longTermIDs = make(map[string]struct{}, len(longTerm))
	for _, ia := range longTerm {
		s.longTermIDs[ia.ID] = struct{}{}
	}

	s.clustersDirty = true
}

// AddInteraction normalizes interaction's embedding to the store's
// dimension, appends it to the short-term tier, updates the concept graph,
// marks the cluster map dirty for lazy recomputation, and persists the new
// snapshot (if a Storage collaborator is configured). A persistence
// failure rolls back the in-memory mutation entirely before being
// surfaced.
func (s *Store) AddInteraction(ctx context.Context, interaction *memory.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized, err := normalize.Normalize(interaction.Embedding, s.cfg.Dimension)
	if err != nil {
		return fmt.Errorf("memstore: add_interaction: %w", err)
	}
	interaction.Embedding = normalized

	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	if _, exists := s.idIndex[interaction.ID]; exists {
		return fmt.Errorf("memstore: add_interaction: id %q already exists", interaction.ID)
	}
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = s.nowFn()
	}
	if interaction.DecayFactor == 0 {
		interaction.DecayFactor = 1.0
	}
	if interaction.AccessCount == 0 {
		interaction.AccessCount = 1
	}

	s.shortTerm = append(s.shortTerm, interaction)
	s.idIndex[interaction.ID] = len(s.shortTerm) - 1
	s.vectors.Add(interaction.Embedding)
	s.graph.Update(interaction.Concepts)
	s.clustersDirty = true

	if s.storage != nil {
		if saveErr := s.storage.Save(ctx, s.snapshotLocked()); saveErr != nil {
			s.rollbackLastLocked()
			return fmt.Errorf("memstore: add_interaction: %w", errors.Join(memory.ErrStorageError, saveErr))
		}
	}
	return nil
}

func (s *Store) snapshotLocked() memory.StoreSnapshot {
	return memory.StoreSnapshot{ShortTerm: s.shortTerm, LongTerm: s.longTerm}
}

// rollbackLastLocked undoes the most recent AddInteraction's in-memory
// mutation: the appended record, its vector-index entry, and its concept
// graph edge contributions.
func (s *Store) rollbackLastLocked() {
	n := len(s.shortTerm)
	if n == 0 {
		return
	}
	last := s.shortTerm[n-1]
	s.shortTerm = s.shortTerm[:n-1]
	delete(s.idIndex, last.ID)
	s.graph.Downdate(last.Concepts)

	embeddings := make([][]float32, len(s.shortTerm))
	for i, ia := range s.shortTerm {
		embeddings[i] = ia.Embedding
	}
	s.vectors.Reset(embeddings)
	s.clustersDirty = true
}

// Retrieve runs the relevance-ranked retrieval pipeline: cosine similarity
// combined with temporal decay and access reinforcement, concept
// spreading-activation, and a cluster-fallback tail. Every primary-pipeline
// hit increments its AccessCount, refreshes its Timestamp, and multiplies
// DecayFactor by PromoteFactor; every miss multiplies DecayFactor by
// DemoteFactor. excludeLastN >= N returns only the cluster fallback.
func (s *Store) Retrieve(ctx context.Context, queryVec []float32, queryConcepts []string, threshold float64, excludeLastN int) []ScoredInteraction {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.shortTerm)
	if n == 0 {
		return nil
	}

	s.recomputeClustersIfDirtyLocked()

	now := s.nowFn()
	limit := n - excludeLastN

	var relevant []ScoredInteraction
	for i := 0; i < limit; i++ {
		ia := s.shortTerm[i]
		sim := vectorindex.Cosine(queryVec, ia.Embedding) * 100
		ageS := now.Sub(ia.Timestamp).Seconds()
		effDecay := ia.DecayFactor * math.Exp(-s.cfg.DecayRate*ageS)
		reinforcement := math.Log(1 + float64(ia.AccessCount))
		adjSim := sim * effDecay * reinforcement

		if adjSim >= threshold {
			relevant = append(relevant, ScoredInteraction{Interaction: ia, AdjSim: adjSim})
			ia.AccessCount++
			ia.Timestamp = now
			ia.DecayFactor *= s.cfg.PromoteFactor
		} else {
			ia.DecayFactor *= s.cfg.DemoteFactor
		}
	}

	activated := s.graph.SpreadingActivation(queryConcepts)
	for i := range relevant {
		var activationScore float64
		for _, c := range relevant[i].Interaction.Concepts {
			activationScore += activated[c]
		}
		relevant[i].ActivationScore = activationScore
		relevant[i].Score = relevant[i].AdjSim + activationScore
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		if relevant[i].Score != relevant[j].Score {
			return relevant[i].Score > relevant[j].Score
		}
		ti, tj := relevant[i].Interaction.Timestamp, relevant[j].Interaction.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return relevant[i].Interaction.ID < relevant[j].Interaction.ID
	})

	fallback := s.clusters.SemanticLookup(queryVec)
	result := make([]ScoredInteraction, 0, len(relevant)+len(fallback))
	result = append(result, relevant...)
	for _, f := range fallback {
		if f.Pos < 0 || f.Pos >= len(s.shortTerm) {
			continue
		}
		result = append(result, ScoredInteraction{
			Interaction:  s.shortTerm[f.Pos],
			Score:        f.Similarity,
			FromFallback: true,
		})
	}
	return result
}

func (s *Store) recomputeClustersIfDirtyLocked() {
	if !s.clustersDirty {
		return
	}
	members := make([]clustermap.Member, len(s.shortTerm))
	for i, ia := range s.shortTerm {
		members[i] = clustermap.Member{Pos: i, Embedding: ia.Embedding}
	}
	s.clusters.Recompute(members)
	s.clustersDirty = false
}

// Classify promotes every short-term interaction whose AccessCount exceeds
// PromotionAccessThreshold and is not already archived, appending a deep
// snapshot to the long-term tier. Idempotent: already-promoted ids are
// skipped. Not called automatically by Retrieve; invoked at caller
// discretion.
func (s *Store) Classify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ia := range s.shortTerm {
		if ia.AccessCount <= s.cfg.PromotionAccessThreshold {
			continue
		}
		if _, already := s.longTermIDs[ia.ID]; already {
			continue
		}
		s.longTerm = append(s.longTerm, ia.Clone())
		s.longTermIDs[ia.ID] = struct{}{}
	}
}

// LongTerm returns a copy of the archival long-term list. These records
// are never re-scored by Retrieve; they are surfaced only via this
// explicit query.
func (s *Store) LongTerm() []*memory.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*memory.Interaction, len(s.longTerm))
	copy(out, s.longTerm)
	return out
}

// ShortTermSize returns the current number of short-term interactions.
func (s *Store) ShortTermSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shortTerm)
}

// ClusterCount returns K = min(10, N) as of the last cluster recomputation.
func (s *Store) ClusterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clusters.K()
}

// Evict removes the interaction identified by id from the short-term tier.
// When cfg.DecrementOnEvict is true, the evicted interaction's concept
// graph edge contributions are also undone; otherwise the graph is left
// additive-only, matching the spec's documented default. Evicting an
// unknown id returns [memory.ErrNotFound].
func (s *Store) Evict(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.idIndex[id]
	if !ok {
		return fmt.Errorf("memstore: evict: %w: %s", memory.ErrNotFound, id)
	}

	evicted := s.shortTerm[idx]
	s.shortTerm = append(s.shortTerm[:idx], s.shortTerm[idx+1:]...)
	delete(s.idIndex, id)
	for i := idx; i < len(s.shortTerm); i++ {
		s.idIndex[s.shortTerm[i].ID] = i
	}

	if s.cfg.DecrementOnEvict {
		s.graph.Downdate(evicted.Concepts)
	}

	embeddings := make([][]float32, len(s.shortTerm))
	for i, ia := range s.shortTerm {
		embeddings[i] = ia.Embedding
	}
	s.vectors.Reset(embeddings)
	s.clustersDirty = true
	return nil
}
