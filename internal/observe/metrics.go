// Package observe provides application-wide observability primitives for
// the semantic memory engine: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/danja/semem"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RetrievalDuration tracks Memory Store retrieve() latency.
	RetrievalDuration metric.Float64Histogram

	// IngestDuration tracks add_interaction() latency.
	IngestDuration metric.Float64Histogram

	// EmbedDuration tracks embedding-provider round-trip latency.
	EmbedDuration metric.Float64Histogram

	// ContextAssemblyDuration tracks build_context() latency.
	ContextAssemblyDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// CacheHits and CacheMisses count embedding cache lookups.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// RetrievalHits counts interactions whose adjusted similarity crossed
	// the retrieval threshold.
	RetrievalHits metric.Int64Counter

	// PromotionCount counts short-term interactions promoted to long-term.
	PromotionCount metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ShortTermSize tracks the current short-term interaction count.
	ShortTermSize metric.Int64UpDownCounter

	// ClusterCount tracks the current k-means cluster count (K=min(10,N)).
	ClusterCount metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// lastShortTermSize and lastClusterCount hold the most recently reported
	// absolute gauge values so RecordShortTermSize/RecordClusterCount can
	// translate them into the delta Int64UpDownCounter.Add expects.
	lastShortTermSize atomic.Int64
	lastClusterCount  atomic.Int64
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for in-process retrieval-pipeline latencies.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RetrievalDuration, err = m.Float64Histogram("semem.retrieval.duration",
		metric.WithDescription("Latency of the memory store retrieve() pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("semem.ingest.duration",
		metric.WithDescription("Latency of add_interaction()."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("semem.embed.duration",
		metric.WithDescription("Latency of embedding-provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ContextAssemblyDuration, err = m.Float64Histogram("semem.context_assembly.duration",
		metric.WithDescription("Latency of build_context()."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("semem.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("semem.cache.hits",
		metric.WithDescription("Total embedding cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("semem.cache.misses",
		metric.WithDescription("Total embedding cache misses."),
	); err != nil {
		return nil, err
	}
	if met.RetrievalHits, err = m.Int64Counter("semem.retrieval.hits",
		metric.WithDescription("Total interactions whose adjusted similarity crossed the retrieval threshold."),
	); err != nil {
		return nil, err
	}
	if met.PromotionCount, err = m.Int64Counter("semem.promotion.count",
		metric.WithDescription("Total short-term interactions promoted to long-term."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("semem.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ShortTermSize, err = m.Int64UpDownCounter("semem.short_term.size",
		metric.WithDescription("Current short-term interaction count."),
	); err != nil {
		return nil, err
	}
	if met.ClusterCount, err = m.Int64UpDownCounter("semem.cluster.count",
		metric.WithDescription("Current k-means cluster count."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("semem.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordCacheHit records an embedding cache hit.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	m.CacheHits.Add(ctx, 1)
}

// RecordCacheMiss records an embedding cache miss.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	m.CacheMisses.Add(ctx, 1)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordShortTermSize updates the ShortTermSize gauge to the given absolute
// value by adding the delta from the last recorded value.
func (m *Metrics) RecordShortTermSize(ctx context.Context, size int) {
	prev := m.lastShortTermSize.Swap(int64(size))
	m.ShortTermSize.Add(ctx, int64(size)-prev)
}

// RecordClusterCount updates the ClusterCount gauge to the given absolute
// value by adding the delta from the last recorded value.
func (m *Metrics) RecordClusterCount(ctx context.Context, count int) {
	prev := m.lastClusterCount.Swap(int64(count))
	m.ClusterCount.Add(ctx, int64(count)-prev)
}
