// Package vectorindex provides exact brute-force similarity search over a
// growing set of dense float vectors of fixed dimension.
//
// The index is sufficient for the expected short-term scale (N <= 1e5); a
// pluggable approximate-nearest-neighbor implementation satisfying the same
// [Index] interface is permitted by the design but not provided here.
package vectorindex

import (
	"container/heap"
	"math"
	"sync"
)

// Result pairs the index position of a stored vector with its similarity
// score against a query vector, as returned by [Index.SearchTopK].
type Result struct {
	// Pos is the position the vector was assigned by [Index.Add].
	Pos int

	// Score is the cosine similarity to the query vector, in [-1, 1].
	Score float64
}

// Index is an exact brute-force similarity search structure over vectors of
// a fixed dimension. Vectors passed to Add are not required to be
// pre-normalized; SearchTopK normalizes internally before computing cosine
// similarity. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	vectors [][]float32
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

// Add appends vec to the index and returns its assigned position.
// Positions are stable and correspond to insertion order; Add never
// reassigns an existing position.
func (ix *Index) Add(vec []float32) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = append(ix.vectors, vec)
	return len(ix.vectors) - 1
}

// Len returns the number of vectors currently held by the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Reset replaces the index contents wholesale with vectors, re-assigning
// positions 0..len(vectors)-1 in order. Used to rebuild the index after a
// rollback or an explicit eviction, where positions must stay aligned with
// an external record list.
func (ix *Index) Reset(vectors [][]float32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = vectors
}

// Vector returns the vector stored at pos, or nil if pos is out of range.
func (ix *Index) Vector(pos int) []float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if pos < 0 || pos >= len(ix.vectors) {
		return nil
	}
	return ix.vectors[pos]
}

// SearchTopK returns the k vectors most similar to query by cosine
// similarity, ordered by descending score. excludeTail (if > 0) excludes
// the most recently added excludeTail vectors from consideration — used by
// the Memory Store to implement exclude_last_n.
//
// Both query and the stored vectors are L2-normalized before comparison; an
// all-zero vector has cosine similarity defined as 0 against anything.
func (ix *Index) SearchTopK(query []float32, k int, excludeTail int) []Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.vectors)
	limit := n - excludeTail
	if limit <= 0 || k <= 0 {
		return nil
	}
	qn := l2Normalize(query)

	h := &resultHeap{}
	heap.Init(h)
	for pos := 0; pos < limit; pos++ {
		score := cosine(qn, l2Normalize(ix.vectors[pos]))
		if h.Len() < k {
			heap.Push(h, Result{Pos: pos, Score: score})
			continue
		}
		if score > (*h)[0].Score {
			heap.Pop(h)
			heap.Push(h, Result{Pos: pos, Score: score})
		}
	}

	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}

// Cosine returns the cosine similarity between a and b, both of which are
// L2-normalized before comparison. An all-zero vector yields 0 against any
// other vector rather than dividing by zero.
func Cosine(a, b []float32) float64 {
	return cosine(l2Normalize(a), l2Normalize(b))
}

func cosine(an, bn []float32) float64 {
	n := len(an)
	if len(bn) < n {
		n = len(bn)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(an[i]) * float64(bn[i])
	}
	return dot
}

// l2Normalize returns a unit-length copy of v, or a zero vector unchanged
// when v has zero magnitude (avoiding divide-by-zero).
func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// resultHeap is a min-heap on Score, used to maintain the top-k results
// seen so far during a single SearchTopK scan.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)         { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
