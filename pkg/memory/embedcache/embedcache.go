// Package embedcache implements a bounded, TTL-evicting cache from
// (embedding model, text prefix) to a provider's native-dimension
// embedding vector.
package embedcache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// keyPrefixLen is the number of leading characters of the input text used
// as the cache key, per spec (collisions on longer shared prefixes are an
// accepted tradeoff; see DESIGN.md).
const keyPrefixLen = 100

// Key identifies a cache entry by embedding model and text prefix. LenHash
// is non-zero only when the cache was constructed with fullHash enabled; it
// folds in a 1-byte FNV hash of the full text's length bucket to reduce
// collisions between same-prefix texts of different lengths.
type Key struct {
	Model   string
	Prefix  string
	LenHash byte
}

// MakeKey derives the cache key for (model, text), truncating text to its
// first keyPrefixLen characters. When fullHash is true, the key additionally
// folds in a 1-byte FNV hash of len(text) as a collision-reduction knob.
func MakeKey(model, text string, fullHash bool) Key {
	prefix := text
	if len(prefix) > keyPrefixLen {
		prefix = prefix[:keyPrefixLen]
	}
	key := Key{Model: model, Prefix: prefix}
	if fullHash {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(len(text)), byte(len(text) >> 8)})
		key.LenHash = byte(h.Sum32())
	}
	return key
}

// Recorder receives cache hit/miss counter events. *observe.Metrics
// satisfies this interface; passing nil disables instrumentation.
type Recorder interface {
	RecordCacheHit(ctx context.Context)
	RecordCacheMiss(ctx context.Context)
}

type entry struct {
	value     []float32
	timestamp time.Time
}

// Cache is a bounded, TTL-evicting map from [Key] to embedding vector.
// Concurrent misses for the same key are de-duplicated via singleflight so
// only one provider call is made. Independently locked from the Memory
// Store: safe to query concurrently with store mutations. Safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry

	maxSize  int
	ttl      time.Duration
	nowFn    func() time.Time
	fullHash bool

	recorder Recorder
	group    singleflight.Group

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an empty Cache with the given capacity and per-entry TTL.
// recorder may be nil. fullHash enables the length-bucket hash described on
// [MakeKey].
func New(maxSize int, ttl time.Duration, recorder Recorder, fullHash bool) *Cache {
	return &Cache{
		entries:  make(map[Key]*entry),
		maxSize:  maxSize,
		ttl:      ttl,
		nowFn:    time.Now,
		recorder: recorder,
		fullHash: fullHash,
	}
}

// Get returns the cached vector for key, refreshing its timestamp on hit.
func (c *Cache) Get(ctx context.Context, key Key) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.record(ctx, false)
		return nil, false
	}
	e.timestamp = c.nowFn()
	c.record(ctx, true)
	return e.value, true
}

func (c *Cache) record(ctx context.Context, hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.RecordCacheHit(ctx)
	} else {
		c.recorder.RecordCacheMiss(ctx)
	}
}

// Put inserts value under key, running cleanup if the cache exceeds
// capacity as a result.
func (c *Cache) Put(key Key, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, timestamp: c.nowFn()}
	if len(c.entries) > c.maxSize {
		c.cleanupLocked()
	}
}

// GetOrFetch returns the cached vector for (model, text) if present;
// otherwise it calls fetch exactly once even under concurrent callers
// requesting the same key, caches the result on success, and returns it.
func (c *Cache) GetOrFetch(ctx context.Context, model, text string, fetch func(context.Context) ([]float32, error)) ([]float32, error) {
	key := MakeKey(model, text, c.fullHash)
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}

	groupKey := key.Model + "\x00" + key.Prefix + "\x00" + string(key.LenHash)
	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		result, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// cleanup evicts every entry older than the TTL, then — if the cache is
// still over capacity — repeatedly evicts the entry with the oldest
// timestamp until it is within capacity.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

func (c *Cache) cleanupLocked() {
	now := c.nowFn()
	for k, e := range c.entries {
		if now.Sub(e.timestamp) > c.ttl {
			delete(c.entries, k)
		}
	}
	for len(c.entries) > c.maxSize {
		var oldestKey Key
		var oldestTime time.Time
		first := true
		for k, e := range c.entries {
			if first || e.timestamp.Before(oldestTime) {
				oldestKey, oldestTime, first = k, e.timestamp, false
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweep launches a background goroutine that calls cleanup every
// ttl/2 until ctx is cancelled or Dispose is called. Must be called at
// most once per Cache.
func (c *Cache) StartSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	interval := c.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-sweepCtx.Done():
				return
			}
		}
	}()
}

// Dispose cancels the background sweep (if started) and waits for it to
// exit.
func (c *Cache) Dispose() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}
