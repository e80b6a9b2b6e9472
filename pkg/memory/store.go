// Package memory defines the semantic memory engine's core data model and
// the external collaborator interfaces it consumes.
//
// The engine itself is organized as a small set of cooperating components:
//
//   - Vector Index ([vectorindex]): exact similarity search over the current
//     embedding set.
//   - Concept Graph ([conceptgraph]): a weighted co-occurrence graph over
//     extracted concept strings, with spreading-activation scoring.
//   - Cluster Map ([clustermap]): a k-means partition of the embedding set,
//     used as a coarse semantic fallback when the primary pipeline yields
//     too few hits.
//   - Memory Store ([memstore]): owns the three structures above, maintains
//     short-/long-term interaction tiers, and runs the retrieval scoring
//     pipeline.
//   - Embedding Cache ([embedcache]): a bounded, TTL-evicting cache from
//     (model, text-prefix) to a provider's native-dimension vector.
//   - Context Window Manager ([contextwindow]) and Context Assembler
//     ([contextassembler]): token-budgeted, concept-grouped summarization
//     of retrieved material into a single prompt-ready string.
//   - Memory Manager ([manager]): the facade wiring the above into
//     embed/add/retrieve/generate_response operations.
//
// This package additionally declares the three external collaborator
// interfaces the engine depends on but does not implement: [ChatProvider],
// [Storage], and [PromptTemplates]. Concrete adapters live in
// pkg/provider/chat/... and pkg/memory/postgres; a test double for each is
// available in pkg/memory/mock.
//
// All interfaces are public so that external packages can supply alternative
// backends without depending on engine internals. Every implementation must
// be safe for concurrent use.
package memory

import "context"

// ChatMessage is a single turn in a chat-style conversation, passed to
// [ChatProvider.Chat].
type ChatMessage struct {
	// Role identifies the speaker: "system", "user", or "assistant".
	Role string

	// Content is the text of this turn.
	Content string
}

// ChatOptions carries generation parameters common to chat and completion
// calls. Zero values request provider defaults.
type ChatOptions struct {
	// Temperature controls output randomness, in the range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero means provider default.
	MaxTokens int
}

// ChatProvider is the external collaborator that fronts a remote or local
// LLM backend for chat completion, single-turn completion, and embedding.
//
// It is the minimal contract the memory engine core consumes; richer,
// streaming-capable backends are bridged into it by adapters in
// pkg/provider/chat (composing a pkg/provider/llm.Provider with a
// pkg/provider/embeddings.Provider).
//
// Implementations must be safe for concurrent use and must propagate ctx
// cancellation promptly.
type ChatProvider interface {
	// Chat sends messages to model and returns the assistant's reply text.
	Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (string, error)

	// Completion sends a single prompt to model and returns the completion text.
	Completion(ctx context.Context, model, prompt string, opts ChatOptions) (string, error)

	// Embed computes the embedding vector for text using model, in the
	// provider's native dimension (which may differ from the engine's
	// configured dimension D — callers must pass the result through a
	// dimension normalizer before storing it).
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// StoreSnapshot is the persisted representation of a Memory Store's state,
// as read by [Storage.LoadHistory] and written by [Storage.Save]. The
// layout is opaque to the engine core; concrete Storage implementations
// choose their own wire/row format.
type StoreSnapshot struct {
	// ShortTerm holds every interaction currently eligible for retrieval scoring.
	ShortTerm []*Interaction

	// LongTerm holds archival snapshots of interactions promoted past the
	// access-count threshold. Never re-scored by the primary pipeline.
	LongTerm []*Interaction
}

// Storage is the external persistence collaborator. The engine consumes
// this interface but does not define a durable log itself: multi-writer
// distributed consistency and crash-safe durability are explicitly out of
// scope for the core.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// LoadHistory reads the persisted short-term and long-term interaction
	// lists. Called once by Manager.Initialize; a failure here is fatal
	// to initialization.
	LoadHistory(ctx context.Context) (shortTerm []*Interaction, longTerm []*Interaction, err error)

	// Save persists snapshot. Per-operation failures trigger an in-memory
	// rollback in the caller (the Memory Store) and are then surfaced.
	Save(ctx context.Context, snapshot StoreSnapshot) error

	// Close releases any resources held by the storage backend (connection
	// pools, file handles). Subsequent calls to other methods are undefined.
	Close(ctx context.Context) error
}

// TxStorage is an optional extension of [Storage] for backends that support
// explicit transaction demarcation around a Save call. Callers type-assert
// for this interface and fall back to a bare Save when absent.
type TxStorage interface {
	Storage

	// BeginTx starts a transaction scoped to ctx. The returned context (if
	// any) should be threaded through the subsequent Save call by the caller.
	BeginTx(ctx context.Context) (context.Context, error)

	// Commit finalizes the transaction started by BeginTx.
	Commit(ctx context.Context) error

	// Rollback aborts the transaction started by BeginTx.
	Rollback(ctx context.Context) error
}

// PromptTemplates is the external collaborator that renders model-specific
// prompt payloads. The engine core never constructs raw prompt strings for
// an LLM itself; it delegates rendering to this interface so that prompt
// wording can evolve independently of the retrieval pipeline.
//
// Implementations must be safe for concurrent use.
type PromptTemplates interface {
	// ConceptPrompt renders the messages sent to model to extract concepts
	// from text. The response is expected to contain a JSON array
	// substring (e.g., `["ai","ml"]`), possibly wrapped in prose; see
	// [manager.Manager.ExtractConcepts] for the parsing contract.
	ConceptPrompt(model, text string) []ChatMessage

	// ChatPrompt renders the messages sent to model for a user-facing chat
	// turn: system carries the high-priority system instruction, context is
	// the assembled memory context (may be empty), and userQuery is the
	// current user prompt.
	ChatPrompt(model, system, context, userQuery string) []ChatMessage
}
