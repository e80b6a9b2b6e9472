// Package clustermap implements a k-means partition of an embedding set,
// used by the Memory Store as a coarse semantic fallback when the primary
// similarity-threshold pipeline does not apply.
package clustermap

import (
	"math"
	"math/rand"
	"sync"
)

// maxClusters is the hard cap on K regardless of embedding-set size.
const maxClusters = 10

// maxIterations bounds k-means convergence when centroid movement never
// drops below epsilon.
const maxIterations = 100

// convergenceEpsilon is the centroid-movement threshold below which
// k-means is considered converged.
const convergenceEpsilon = 1e-6

// fallbackResultCount is the number of same-cluster members returned by
// SemanticLookup.
const fallbackResultCount = 5

// Member pairs a short-term position with its embedding, as seen by the
// cluster map. Pos is opaque to this package; the Memory Store uses it to
// translate back to an *Interaction.
type Member struct {
	Pos       int
	Embedding []float32
}

// Result is one ranked member of the best-matching cluster, as returned by
// SemanticLookup.
type Result struct {
	Pos        int
	Similarity float64
}

// cluster holds a centroid and the members currently assigned to it.
type cluster struct {
	centroid []float32
	members  []Member
}

// Map is a k-means partition over a caller-supplied embedding set. It is
// stateless between calls to Recompute: callers own the embedding set and
// must call Recompute whenever it changes (the Memory Store amortizes this
// by deferring recomputation to the next retrieve call). Safe for
// concurrent use.
type Map struct {
	mu       sync.RWMutex
	clusters []cluster
	seed     int64
}

// New returns an empty Map. seed makes k-means initialization
// deterministic across calls and test runs.
func New(seed int64) *Map {
	return &Map{seed: seed}
}

// K returns the current number of clusters, i.e. min(10, N) as of the last
// Recompute call (0 before the first Recompute or when N < 2).
func (m *Map) K() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clusters)
}

// Recompute re-partitions members into K = min(10, len(members)) clusters.
// When len(members) < 2 the map becomes empty (no clusters), matching the
// spec's "N<2 -> no clusters" rule.
func (m *Map) Recompute(members []Member) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(members)
	if n < 2 {
		m.clusters = nil
		return
	}
	k := n
	if k > maxClusters {
		k = maxClusters
	}

	vectors := make([][]float32, n)
	for i, mem := range members {
		vectors[i] = mem.Embedding
	}

	centroids, assignment := kmeans(vectors, k, m.seed)

	clusters := make([]cluster, k)
	for i := range clusters {
		clusters[i].centroid = centroids[i]
	}
	for i, c := range assignment {
		clusters[c].members = append(clusters[c].members, members[i])
	}
	m.clusters = clusters
}

// SemanticLookup returns up to 5 members of the single best-matching
// cluster (by cosine similarity of query to centroid, ties broken by
// smallest cluster index), ranked by descending cosine similarity to
// query. Returns nil if no clusters exist.
func (m *Map) SemanticLookup(query []float32) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.clusters) == 0 {
		return nil
	}

	qn := l2Normalize(query)
	best := -1
	bestScore := math.Inf(-1)
	for i, c := range m.clusters {
		score := cosine(qn, l2Normalize(c.centroid))
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	members := m.clusters[best].members
	results := make([]Result, len(members))
	for i, mem := range members {
		results[i] = Result{Pos: mem.Pos, Similarity: cosine(qn, l2Normalize(mem.Embedding))}
	}
	sortResultsDesc(results)
	if len(results) > fallbackResultCount {
		results = results[:fallbackResultCount]
	}
	return results
}

func sortResultsDesc(r []Result) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j-1].Similarity < r[j].Similarity; j-- {
			r[j-1], r[j] = r[j], r[j-1]
		}
	}
}

// kmeans partitions vectors into k clusters using Euclidean distance,
// Forgy-initialized from a seeded PRNG for reproducibility.
func kmeans(vectors [][]float32, k int, seed int64) (centroids [][]float32, assignment []int) {
	rng := rand.New(rand.NewSource(seed))
	n := len(vectors)
	dim := len(vectors[0])

	centroids = make([][]float32, k)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		src := vectors[perm[i]]
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assignment = make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := euclideanSq(v, centroid)
				if d < bestDist {
					bestDist, best = d, c
				}
			}
			assignment[i] = best
		}

		newCentroids := make([][]float32, k)
		counts := make([]int, k)
		for i := range newCentroids {
			newCentroids[i] = make([]float32, dim)
		}
		for i, v := range vectors {
			c := assignment[i]
			counts[c]++
			for d := 0; d < dim && d < len(v); d++ {
				newCentroids[c][d] += v[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				newCentroids[c] = centroids[c]
				continue
			}
			for d := 0; d < dim; d++ {
				newCentroids[c][d] /= float32(counts[c])
			}
		}

		movement := 0.0
		for c := 0; c < k; c++ {
			movement += math.Sqrt(euclideanSq(centroids[c], newCentroids[c]))
		}
		centroids = newCentroids
		if movement < convergenceEpsilon {
			break
		}
	}

	return centroids, assignment
}

func euclideanSq(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
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
