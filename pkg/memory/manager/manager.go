// Package manager implements the Memory Manager facade: the single entry
// point wiring the Memory Store, Embedding Cache, and Context Assembler
// into embed/add/retrieve/generate-response operations backed by an
// external chat provider, persistence backend, and prompt template
// renderer.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/contextassembler"
	"github.com/danja/semem/pkg/memory/embedcache"
	"github.com/danja/semem/pkg/memory/memstore"
	"github.com/danja/semem/pkg/memory/normalize"
)

// Config carries the facade's operating parameters, typically translated
// from internal/config.MemoryConfig by the composition root.
type Config struct {
	// Dimension is the target embedding dimension D.
	Dimension int

	// EmbedModel, ChatModel, and ConceptModel identify which model string
	// is passed to the ChatProvider for each call kind. ConceptModel
	// defaults to ChatModel when empty.
	EmbedModel, ChatModel, ConceptModel string

	// DefaultChatOptions is used for both concept-extraction and
	// user-facing chat calls.
	DefaultChatOptions memory.ChatOptions

	// SimilarityThresholdDefault is used by Retrieve when the caller does
	// not supply an explicit threshold.
	SimilarityThresholdDefault float64

	// Assembler carries the Context Assembler's per-call options.
	Assembler contextassembler.Options
}

// Manager is the facade over the semantic memory engine. Safe for
// concurrent use: Initialize is idempotent-checked, and the collaborators
// it wires (Store, Cache, Assembler's caller) manage their own locking —
// except the Assembler itself, which this facade serializes with a mutex
// since it is not independently safe for concurrent use.
type Manager struct {
	cfg Config

	provider  memory.ChatProvider
	storage   memory.Storage
	templates memory.PromptTemplates

	store     *memstore.Store
	cache     *embedcache.Cache
	assembler *contextassembler.Assembler
	assembleM sync.Mutex

	initMu      sync.Mutex
	initialized bool
}

// New returns a Manager wiring the given collaborators. Call Initialize
// before use.
func New(cfg Config, provider memory.ChatProvider, storage memory.Storage, templates memory.PromptTemplates, store *memstore.Store, cache *embedcache.Cache, assembler *contextassembler.Assembler) *Manager {
	if cfg.ConceptModel == "" {
		cfg.ConceptModel = cfg.ChatModel
	}
	return &Manager{
		cfg:       cfg,
		provider:  provider,
		storage:   storage,
		templates: templates,
		store:     store,
		cache:     cache,
		assembler: assembler,
	}
}

// Initialize loads persisted history (if a Storage collaborator is
// configured) into the Memory Store and starts the embedding cache's
// background sweep. Calling Initialize a second time returns
// [memory.ErrAlreadyInitialized].
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return memory.ErrAlreadyInitialized
	}

	if m.storage != nil {
		shortTerm, longTerm, err := m.storage.LoadHistory(ctx)
		if err != nil {
			return fmt.Errorf("manager: initialize: %w", errors.Join(memory.ErrStorageError, err))
		}
		m.store.LoadSnapshot(shortTerm, longTerm)
	}
	m.cache.StartSweep(ctx)
	m.initialized = true
	return nil
}

// Embed returns the normalized embedding for text, serving from the
// embedding cache when possible and falling back to the configured
// ChatProvider on a miss.
func (m *Manager) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := m.cache.GetOrFetch(ctx, m.cfg.EmbedModel, text, func(ctx context.Context) ([]float32, error) {
		return m.provider.Embed(ctx, m.cfg.EmbedModel, text)
	})
	if err != nil {
		return nil, fmt.Errorf("manager: embed: %w", errors.Join(memory.ErrProviderUnavailable, err))
	}
	return normalize.Normalize(raw, m.cfg.Dimension)
}

// ExtractConcepts asks the configured ChatProvider to extract concepts
// from text via the PromptTemplates-rendered concept prompt, then parses
// the first JSON array substring of the reply. Any failure — provider
// error, missing array, malformed JSON — yields an empty list rather than
// an error, per the documented concept-extraction error-swallowing policy.
func (m *Manager) ExtractConcepts(ctx context.Context, text string) []string {
	messages := m.templates.ConceptPrompt(m.cfg.ConceptModel, text)
	reply, err := m.provider.Chat(ctx, m.cfg.ConceptModel, messages, m.cfg.DefaultChatOptions)
	if err != nil {
		return nil
	}
	concepts, ok := parseConceptArray(reply)
	if !ok {
		return nil
	}
	return concepts
}

// parseConceptArray locates the first "[...]" substring in s and parses it
// as a JSON array of strings.
func parseConceptArray(s string) ([]string, bool) {
	start := -1
	depth := 0
	for i, r := range s {
		switch r {
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					var concepts []string
					if err := json.Unmarshal([]byte(s[start:i+1]), &concepts); err != nil {
						return nil, false
					}
					return concepts, true
				}
			}
		}
	}
	return nil, false
}

// AddInteraction embeds and extracts concepts from prompt concurrently
// (an errgroup-coordinated fan-out: the two calls are independent external
// provider requests), then forwards the resulting interaction to the
// Memory Store.
func (m *Manager) AddInteraction(ctx context.Context, prompt, output string) (*memory.Interaction, error) {
	var embedding []float32
	var concepts []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := m.Embed(gctx, prompt)
		if err != nil {
			return err
		}
		embedding = e
		return nil
	})
	g.Go(func() error {
		concepts = m.ExtractConcepts(gctx, prompt)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ia := &memory.Interaction{Prompt: prompt, Output: output, Embedding: embedding, Concepts: concepts}
	if err := m.store.AddInteraction(ctx, ia); err != nil {
		return nil, err
	}
	return ia, nil
}

// Retrieve embeds queryText, extracts its concepts, and runs the Memory
// Store's retrieval scoring pipeline. threshold <= 0 substitutes
// cfg.SimilarityThresholdDefault.
func (m *Manager) Retrieve(ctx context.Context, queryText string, threshold float64, excludeLastN int) ([]memstore.ScoredInteraction, error) {
	if threshold <= 0 {
		threshold = m.cfg.SimilarityThresholdDefault
	}
	embedding, err := m.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	concepts := m.ExtractConcepts(ctx, queryText)
	return m.store.Retrieve(ctx, embedding, concepts, threshold, excludeLastN), nil
}

// GenerateResponse assembles a bounded context string from retrievals and
// recentInteractions via the Context Assembler, renders the chat prompt
// through PromptTemplates, and delegates to the configured ChatProvider.
func (m *Manager) GenerateResponse(ctx context.Context, systemPrompt, currentPrompt string, recentInteractions []*memory.Interaction, retrievals []contextassembler.BufferEntry) (string, error) {
	m.assembleM.Lock()
	contextStr := m.assembler.BuildContext(currentPrompt, retrievals, recentInteractions, m.cfg.Assembler)
	m.assembleM.Unlock()

	messages := m.templates.ChatPrompt(m.cfg.ChatModel, systemPrompt, contextStr, currentPrompt)
	reply, err := m.provider.Chat(ctx, m.cfg.ChatModel, messages, m.cfg.DefaultChatOptions)
	if err != nil {
		return "", fmt.Errorf("manager: generate_response: %w", errors.Join(memory.ErrProviderUnavailable, err))
	}
	return reply, nil
}

// Classify promotes eligible short-term interactions to the long-term
// archive. See [memstore.Store.Classify].
func (m *Manager) Classify() {
	m.store.Classify()
}

// ShortTermSize returns the current number of short-term interactions.
func (m *Manager) ShortTermSize() int {
	return m.store.ShortTermSize()
}

// ClusterCount returns the Memory Store's current k-means cluster count.
func (m *Manager) ClusterCount() int {
	return m.store.ClusterCount()
}

// LongTerm returns the current long-term archive.
func (m *Manager) LongTerm() []*memory.Interaction {
	return m.store.LongTerm()
}

// Dispose stops the embedding cache's background sweep and closes the
// persistence backend (if configured), releasing all held resources.
func (m *Manager) Dispose(ctx context.Context) error {
	m.cache.Dispose()
	if m.storage != nil {
		return m.storage.Close(ctx)
	}
	return nil
}
