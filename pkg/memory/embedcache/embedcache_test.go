package embedcache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danja/semem/pkg/memory/embedcache"
)

func TestMakeKey_TruncatesToPrefixLength(t *testing.T) {
	t.Parallel()
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	k := embedcache.MakeKey("model-x", string(long), false)
	if len(k.Prefix) != 100 {
		t.Errorf("Prefix length = %d, want 100", len(k.Prefix))
	}
}

func TestMakeKey_FullHashDistinguishesSamePrefixDifferentLength(t *testing.T) {
	t.Parallel()
	short := "same-prefix-text"
	long := short + string(make([]byte, 300))

	k1 := embedcache.MakeKey("m", short, true)
	k2 := embedcache.MakeKey("m", long, true)
	if k1.Prefix != k2.Prefix {
		t.Fatalf("expected equal prefixes, got %q and %q", k1.Prefix, k2.Prefix)
	}
	if k1.LenHash == k2.LenHash {
		t.Error("expected LenHash to differ for texts of different length")
	}

	without := embedcache.MakeKey("m", short, false)
	if without.LenHash != 0 {
		t.Errorf("LenHash = %d, want 0 when fullHash is disabled", without.LenHash)
	}
}

func TestGetPut_RoundTrip(t *testing.T) {
	t.Parallel()
	c := embedcache.New(10, time.Hour, nil, false)
	k := embedcache.MakeKey("m", "hello", false)
	c.Put(k, []float32{1, 2, 3})

	got, ok := c.Get(context.Background(), k)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestGet_Miss(t *testing.T) {
	t.Parallel()
	c := embedcache.New(10, time.Hour, nil, false)
	_, ok := c.Get(context.Background(), embedcache.MakeKey("m", "absent", false))
	if ok {
		t.Error("expected miss")
	}
}

// TestCleanup_EvictsOldestWhenOverCapacity mirrors the spec's concrete
// cache scenario: max_size=2, put A, put B, get A (refresh), put C should
// evict B (the oldest untouched entry), keeping A and C.
func TestCleanup_EvictsOldestWhenOverCapacity(t *testing.T) {
	t.Parallel()
	c := embedcache.New(2, time.Hour, nil, false)
	ctx := context.Background()

	keyA := embedcache.MakeKey("m", "A", false)
	keyB := embedcache.MakeKey("m", "B", false)
	keyC := embedcache.MakeKey("m", "C", false)

	c.Put(keyA, []float32{1})
	c.Put(keyB, []float32{2})
	c.Get(ctx, keyA) // refresh A's timestamp
	c.Put(keyC, []float32{3})

	if _, ok := c.Get(ctx, keyB); ok {
		t.Error("B should have been evicted (oldest)")
	}
	if _, ok := c.Get(ctx, keyA); !ok {
		t.Error("A should still be present")
	}
	if _, ok := c.Get(ctx, keyC); !ok {
		t.Error("C should still be present")
	}
}

func TestGetOrFetch_DeduplicatesConcurrentMisses(t *testing.T) {
	t.Parallel()
	c := embedcache.New(10, time.Hour, nil, false)
	var calls int32

	fetch := func(context.Context) ([]float32, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return []float32{9, 9}, nil
	}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = c.GetOrFetch(context.Background(), "m", "same-text", fetch)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
}

func TestGetOrFetch_PropagatesFetchError(t *testing.T) {
	t.Parallel()
	c := embedcache.New(10, time.Hour, nil, false)
	wantErr := errors.New("boom")
	_, err := c.GetOrFetch(context.Background(), "m", "x", func(context.Context) ([]float32, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestStartSweep_EvictsExpiredEntries(t *testing.T) {
	t.Parallel()
	c := embedcache.New(10, 20*time.Millisecond, nil, false)
	c.Put(embedcache.MakeKey("m", "x", false), []float32{1})

	ctx, cancel := context.WithCancel(context.Background())
	c.StartSweep(ctx)
	defer func() {
		cancel()
		c.Dispose()
	}()

	time.Sleep(100 * time.Millisecond)
	if _, ok := c.Get(context.Background(), embedcache.MakeKey("m", "x", false)); ok {
		t.Error("expected entry to be swept after TTL")
	}
}
