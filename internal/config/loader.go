package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"openai", "anyllm"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for any
// unset MemoryConfig field, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{Memory: Defaults()}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyMemoryDefaults(&cfg.Memory)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyMemoryDefaults fills zero-valued MemoryConfig tuning fields with the
// engine's documented default, so a partially specified YAML document
// (or one predating a newly added option) still yields a coherent config.
// Dimension is left as decoded (an omitted key keeps the default it was
// decoded over), so an explicit non-positive value reaches Validate.
func applyMemoryDefaults(m *MemoryConfig) {
	d := Defaults()
	if m.MaxTokens <= 0 {
		m.MaxTokens = d.MaxTokens
	}
	if m.MaxTimeWindowMs <= 0 {
		m.MaxTimeWindowMs = d.MaxTimeWindowMs
	}
	if m.MaxContextSize <= 0 {
		m.MaxContextSize = d.MaxContextSize
	}
	if m.SimilarityThresholdDefault == 0 {
		m.SimilarityThresholdDefault = d.SimilarityThresholdDefault
	}
	if m.OverlapRatio == 0 {
		m.OverlapRatio = d.OverlapRatio
	}
	if m.AvgTokenLen <= 0 {
		m.AvgTokenLen = d.AvgTokenLen
	}
	if m.MinWindow <= 0 {
		m.MinWindow = d.MinWindow
	}
	if m.MaxWindow <= 0 {
		m.MaxWindow = d.MaxWindow
	}
	if m.CacheMaxSize <= 0 {
		m.CacheMaxSize = d.CacheMaxSize
	}
	if m.CacheTTLMs <= 0 {
		m.CacheTTLMs = d.CacheTTLMs
	}
	if m.PromotionAccessThreshold <= 0 {
		m.PromotionAccessThreshold = d.PromotionAccessThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.Chat.Name == "" {
		slog.Warn("no chat provider configured; generate_response will fail at call time")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; embed will fail at call time")
	}

	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; the reference Storage adapter will not be available")
	}

	if cfg.Memory.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("memory.dimension must be positive, got %d", cfg.Memory.Dimension))
	}
	if cfg.Memory.OverlapRatio < 0 || cfg.Memory.OverlapRatio > 0.5 {
		errs = append(errs, fmt.Errorf("memory.overlap_ratio %.3f is out of range [0, 0.5]", cfg.Memory.OverlapRatio))
	}
	if cfg.Memory.MinWindow > cfg.Memory.MaxWindow {
		errs = append(errs, fmt.Errorf("memory.min_window (%d) exceeds memory.max_window (%d)", cfg.Memory.MinWindow, cfg.Memory.MaxWindow))
	}
	if cfg.Memory.SimilarityThresholdDefault < 0 || cfg.Memory.SimilarityThresholdDefault > 100 {
		errs = append(errs, fmt.Errorf("memory.similarity_threshold_default %.2f is out of range [0, 100]", cfg.Memory.SimilarityThresholdDefault))
	}
	if cfg.Memory.CacheMaxSize <= 0 {
		errs = append(errs, fmt.Errorf("memory.cache_max_size must be positive, got %d", cfg.Memory.CacheMaxSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
