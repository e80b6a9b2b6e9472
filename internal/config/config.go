// Package config provides the configuration schema, loader, and provider
// registry for the semantic memory engine.
package config

// Config is the root configuration structure for the memory engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// ServerConfig holds process-wide logging settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for chat
// and embedding generation. Each field selects a named provider registered
// in the [Registry].
type ProvidersConfig struct {
	Chat       ProviderEntry `yaml:"chat"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anyllm").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "text-embedding-3-small").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// MemoryConfig holds every tunable parameter of the memory engine's
// retrieval, caching, and context-assembly pipeline.
type MemoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the reference
	// pgvector-backed Storage adapter. Empty disables persistence.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Dimension is the target embedding dimension D that all stored vectors
	// are normalized to.
	Dimension int `yaml:"dimension"`

	// MaxTokens bounds the assembled context size, in estimated tokens.
	MaxTokens int `yaml:"max_tokens"`

	// MaxTimeWindowMs bounds the age, in milliseconds, of context buffer
	// entries eligible to survive pruning.
	MaxTimeWindowMs int64 `yaml:"max_time_window_ms"`

	// RelevanceThreshold is the minimum similarity (0..1) a context buffer
	// entry must retain to survive pruning.
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// MaxContextSize bounds the context buffer length after pruning.
	MaxContextSize int `yaml:"max_context_size"`

	// SimilarityThresholdDefault is the retrieval cutoff on the 0..100
	// adjusted-similarity scale.
	SimilarityThresholdDefault float64 `yaml:"similarity_threshold_default"`

	// OverlapRatio controls sliding-window overlap, in [0, 0.5].
	OverlapRatio float64 `yaml:"overlap_ratio"`

	// AvgTokenLen is the characters-per-token heuristic used for token estimation.
	AvgTokenLen int `yaml:"avg_token_len"`

	// MinWindow and MaxWindow bound the sliding context window size, in tokens.
	MinWindow int `yaml:"min_window"`
	MaxWindow int `yaml:"max_window"`

	// CacheMaxSize bounds the embedding cache's entry count.
	CacheMaxSize int `yaml:"cache_max_size"`

	// CacheTTLMs is the embedding cache entry time-to-live, in milliseconds.
	CacheTTLMs int64 `yaml:"cache_ttl_ms"`

	// PromotionAccessThreshold is the access_count above which a short-term
	// interaction is eligible for promotion to the long-term archive.
	PromotionAccessThreshold int `yaml:"promotion_access_threshold"`

	// ContextTruncationLimit, if > 0, bounds the character length of each
	// bullet's output text in multi-element concept groups.
	ContextTruncationLimit int `yaml:"context_truncation_limit"`

	// DecrementOnEvict selects whether explicit eviction subtracts the
	// evicted interaction's concept-graph edge contributions. Default false
	// (graph and clusters are additive-only for the process lifetime).
	DecrementOnEvict bool `yaml:"decrement_on_evict"`

	// CacheKeyFullHash, if true, folds a hash of the full text length into
	// the embedding cache key as an optional collision-reduction knob on top
	// of the mandated 100-character prefix key.
	CacheKeyFullHash bool `yaml:"cache_key_full_hash"`
}

// Defaults returns a MemoryConfig populated with the defaults enumerated in
// the engine's external-interface specification.
func Defaults() MemoryConfig {
	return MemoryConfig{
		Dimension:                  1536,
		MaxTokens:                  8192,
		MaxTimeWindowMs:            86_400_000,
		RelevanceThreshold:         0,
		MaxContextSize:             5,
		SimilarityThresholdDefault: 40,
		OverlapRatio:               0.1,
		AvgTokenLen:                4,
		MinWindow:                  256,
		MaxWindow:                  2048,
		CacheMaxSize:               1000,
		CacheTTLMs:                 3_600_000,
		PromotionAccessThreshold:   10,
		ContextTruncationLimit:     0,
		DecrementOnEvict:           false,
		CacheKeyFullHash:           false,
	}
}
