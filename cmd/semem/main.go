// Command semem is the composition root for the semantic memory engine:
// it loads configuration, wires the configured chat/embedding providers and
// persistence backend into a [manager.Manager], and exposes a Prometheus
// metrics endpoint alongside a minimal line-oriented interaction loop over
// standard input for local experimentation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/danja/semem/internal/config"
	"github.com/danja/semem/internal/observe"
	"github.com/danja/semem/internal/resilience"
	"github.com/danja/semem/pkg/memory"
	"github.com/danja/semem/pkg/memory/contextassembler"
	"github.com/danja/semem/pkg/memory/contextwindow"
	"github.com/danja/semem/pkg/memory/embedcache"
	"github.com/danja/semem/pkg/memory/manager"
	"github.com/danja/semem/pkg/memory/memstore"
	"github.com/danja/semem/pkg/memory/postgres"
	chatanyllm "github.com/danja/semem/pkg/provider/chat/anyllm"
	chatopenai "github.com/danja/semem/pkg/provider/chat/openai"
	"github.com/danja/semem/pkg/provider/embeddings"
	embedollama "github.com/danja/semem/pkg/provider/embeddings/ollama"
	embedopenai "github.com/danja/semem/pkg/provider/embeddings/openai"
	"github.com/danja/semem/pkg/provider/llm"
	llmanyllm "github.com/danja/semem/pkg/provider/llm/anyllm"
	llmopenai "github.com/danja/semem/pkg/provider/llm/openai"
	"github.com/danja/semem/pkg/provider/prompt"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the /metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "semem: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "semem: %v\n", err)
		}
		return 1
	}

	logger, levelVar := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("semem starting", "config", *configPath, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "semem"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownObserve(shutdownCtx)
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	go serveMetrics(*metricsAddr, metrics)

	reg := config.NewRegistry()
	embedProvider, err := buildEmbeddingsRegistry(reg, cfg)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}
	buildChatRegistry(reg, embedProvider)

	chatProvider, err := reg.CreateChat(cfg.Providers.Chat)
	if err != nil {
		slog.Error("failed to build chat provider", "err", err)
		return 1
	}

	storage, err := buildStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to build storage backend", "err", err)
		return 1
	}

	mgr := buildManager(cfg, chatProvider, storage, metrics)
	if err := mgr.Initialize(ctx); err != nil {
		slog.Error("failed to initialise memory manager", "err", err)
		return 1
	}

	go watchConfig(ctx, *configPath, levelVar)
	go reportGauges(ctx, mgr, metrics)

	slog.Info("semem ready — reading interactions from stdin, press Ctrl+C to shut down")
	runREPL(ctx, mgr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutting down…")
	if err := mgr.Dispose(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildEmbeddingsRegistry registers the built-in embeddings provider
// factories and instantiates the one named in cfg.Providers.Embeddings.
func buildEmbeddingsRegistry(reg *config.Registry, cfg *config.Config) (embeddings.Provider, error) {
	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		var opts []embedopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, embedopenai.WithBaseURL(e.BaseURL))
		}
		return embedopenai.New(e.APIKey, e.Model, opts...)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return embedollama.New(e.BaseURL, e.Model)
	})

	if cfg.Providers.Embeddings.Name == "" {
		return nil, nil
	}
	return reg.CreateEmbeddings(cfg.Providers.Embeddings)
}

// buildChatRegistry registers the built-in chat provider factories. Each
// factory composes a pkg/provider/llm.Provider (bound to the requested
// model) with embedProvider — the single embeddings backend configured for
// the whole engine — into a [memory.ChatProvider].
func buildChatRegistry(reg *config.Registry, embedProvider embeddings.Provider) {
	reg.RegisterChat("openai", func(e config.ProviderEntry) (memory.ChatProvider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		chat, err := llmopenai.New(e.APIKey, e.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("build openai chat backend: %w", err)
		}

		var llmBackend llm.Provider = chat
		if fallbackBackend, ok := e.Options["fallback_backend"].(string); ok && fallbackBackend != "" {
			fallback, err := newAnyLLMChat(fallbackBackend, e)
			if err != nil {
				return nil, fmt.Errorf("build fallback chat backend %q: %w", fallbackBackend, err)
			}
			group := resilience.NewLLMFallback(chat, "openai", resilience.FallbackConfig{})
			group.AddFallback(fallbackBackend, fallback)
			llmBackend = group
		}

		return chatopenai.New(llmBackend, embedProvider), nil
	})

	reg.RegisterChat("anyllm", func(e config.ProviderEntry) (memory.ChatProvider, error) {
		backend, ok := e.Options["backend"].(string)
		if !ok || backend == "" {
			backend = "openai"
		}

		chat, err := newAnyLLMChat(backend, e)
		if err != nil {
			return nil, fmt.Errorf("build anyllm chat backend: %w", err)
		}
		return chatanyllm.New(chat, embedProvider), nil
	})
}

// newAnyLLMChat resolves the any-llm-go backend named by backend. Any-llm-go
// falls back to each backend's documented environment variable (e.g.
// OPENAI_API_KEY) when no explicit API key option is supplied.
func newAnyLLMChat(backend string, e config.ProviderEntry) (llm.Provider, error) {
	switch backend {
	case "anthropic":
		return llmanyllm.NewAnthropic(e.Model)
	case "gemini":
		return llmanyllm.NewGemini(e.Model)
	case "ollama":
		return llmanyllm.NewOllama(e.Model)
	case "deepseek":
		return llmanyllm.NewDeepSeek(e.Model)
	case "mistral":
		return llmanyllm.NewMistral(e.Model)
	case "groq":
		return llmanyllm.NewGroq(e.Model)
	default:
		return llmanyllm.NewOpenAI(e.Model)
	}
}

// buildStorage constructs the reference pgvector-backed [memory.Storage]
// when cfg.Memory.PostgresDSN is set; otherwise the engine runs with no
// persistence (LoadHistory/Save are never called).
func buildStorage(ctx context.Context, cfg *config.Config) (memory.Storage, error) {
	if cfg.Memory.PostgresDSN == "" {
		return nil, nil
	}
	return postgres.NewStore(ctx, cfg.Memory.PostgresDSN, cfg.Memory.Dimension)
}

// buildManager wires the Memory Store, Embedding Cache, and Context
// Assembler into a [manager.Manager] per cfg.Memory. metrics instruments
// the embedding cache's hit/miss counters; may be nil.
func buildManager(cfg *config.Config, chatProvider memory.ChatProvider, storage memory.Storage, metrics *observe.Metrics) *manager.Manager {
	m := cfg.Memory

	store := memstore.New(memstore.Config{
		Dimension:                m.Dimension,
		DecayRate:                1e-4,
		PromoteFactor:            1.1,
		DemoteFactor:             0.9,
		PromotionAccessThreshold: m.PromotionAccessThreshold,
		DecrementOnEvict:         m.DecrementOnEvict,
	}, storage)

	var recorder embedcache.Recorder
	if metrics != nil {
		recorder = metrics
	}
	cache := embedcache.New(m.CacheMaxSize, time.Duration(m.CacheTTLMs)*time.Millisecond, recorder, m.CacheKeyFullHash)

	window := contextwindow.New(m.MinWindow, m.MaxWindow, m.OverlapRatio, m.AvgTokenLen)
	assembler := contextassembler.New(window)

	mgrCfg := manager.Config{
		Dimension:                  m.Dimension,
		EmbedModel:                 cfg.Providers.Embeddings.Model,
		ChatModel:                  cfg.Providers.Chat.Model,
		SimilarityThresholdDefault: m.SimilarityThresholdDefault,
		Assembler: contextassembler.Options{
			MaxTimeWindow:      time.Duration(m.MaxTimeWindowMs) * time.Millisecond,
			RelevanceThreshold: m.RelevanceThreshold,
			MaxContextSize:     m.MaxContextSize,
			MaxTokens:          m.MaxTokens,
			TruncationLimit:    m.ContextTruncationLimit,
		},
	}

	return manager.New(mgrCfg, chatProvider, storage, prompt.New(), store, cache, assembler)
}

// runREPL reads newline-delimited prompts from stdin, generates a response
// via the memory-grounded chat pipeline, and records the exchange as a new
// interaction. It returns when ctx is cancelled or stdin is closed.
func runREPL(ctx context.Context, mgr *manager.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		results, err := mgr.Retrieve(ctx, line, 0, 0)
		if err != nil {
			slog.Error("retrieve failed", "err", err)
			continue
		}
		retrievals := make([]contextassembler.BufferEntry, len(results))
		for i, r := range results {
			retrievals[i] = contextassembler.BufferEntry{Interaction: r.Interaction, Similarity: r.Score}
		}

		reply, err := mgr.GenerateResponse(ctx, "", line, mgr.LongTerm(), retrievals)
		if err != nil {
			slog.Error("generate_response failed", "err", err)
			continue
		}
		fmt.Println(reply)

		if _, err := mgr.AddInteraction(ctx, line, reply); err != nil {
			slog.Error("add_interaction failed", "err", err)
		}
		mgr.Classify()
	}
}

// serveMetrics serves the Prometheus scrape endpoint, instrumented with
// observe.Middleware so scrape requests themselves get traced, logged, and
// timed like any other request this process serves.
func serveMetrics(addr string, metrics *observe.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Middleware(metrics)(promhttp.Handler()))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "err", err)
	}
}

// newLogger builds the process logger around a [slog.LevelVar] so its level
// can be adjusted at runtime by watchConfig without rebuilding the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(slogLevel(level))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	return logger, levelVar
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// watchConfig polls configPath for changes via a [config.Watcher] and
// applies the new log level live, so operators can adjust verbosity without
// restarting the process. All other configuration fields require a restart
// to take effect (providers, storage, and memory tuning are wired once at
// startup into immutable collaborators). Logs a warning and gives up
// watching if the initial load fails.
func watchConfig(ctx context.Context, configPath string, levelVar *slog.LevelVar) {
	w, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		if new.Server.LogLevel != old.Server.LogLevel {
			levelVar.Set(slogLevel(new.Server.LogLevel))
			slog.Info("log level changed via config reload", "log_level", new.Server.LogLevel)
		}
	})
	if err != nil {
		slog.Warn("config watcher: disabled", "err", err)
		return
	}
	<-ctx.Done()
	w.Stop()
}

// reportGauges periodically samples the Memory Store's short-term size and
// cluster count into the corresponding OTel gauges until ctx is cancelled.
func reportGauges(ctx context.Context, mgr *manager.Manager, metrics *observe.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordShortTermSize(ctx, mgr.ShortTermSize())
			metrics.RecordClusterCount(ctx, mgr.ClusterCount())
		}
	}
}
