package memory

import "errors"

// Sentinel error kinds recognized across the memory engine. Callers should
// use [errors.Is] to test for these; concrete errors are wrapped with
// additional context via fmt.Errorf("<component>: <op>: %w", err).
var (
	// ErrInvalidEmbedding indicates a vector that is not a finite-valued,
	// non-empty numeric sequence, surfaced by [normalize.Normalize] and
	// propagated by any caller that accepts a raw embedding.
	ErrInvalidEmbedding = errors.New("memory: invalid embedding")

	// ErrProviderUnavailable indicates an embed/chat/completion call to an
	// external provider failed. Embedding failures propagate to the caller;
	// concept-extraction failures are swallowed by the Manager and yield an
	// empty concept list instead.
	ErrProviderUnavailable = errors.New("memory: provider unavailable")

	// ErrStorageError indicates a persistence read/write failure. A failure
	// during initial history load is fatal to the Manager's initialization; a
	// failure during a per-operation save triggers an in-memory rollback and
	// is then surfaced to the caller.
	ErrStorageError = errors.New("memory: storage error")

	// ErrConfigError indicates an invalid or incomplete configuration
	// (unknown storage type, missing required fields). Fatal at construction.
	ErrConfigError = errors.New("memory: config error")

	// ErrNotFound indicates an id lookup that did not match any interaction.
	ErrNotFound = errors.New("memory: not found")

	// ErrAlreadyInitialized indicates a second call to initialize a facade
	// that has already completed initialization.
	ErrAlreadyInitialized = errors.New("memory: already initialized")
)
