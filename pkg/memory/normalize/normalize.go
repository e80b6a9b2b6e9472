// Package normalize pads or truncates provider-returned embedding vectors to
// the memory engine's configured dimension D.
package normalize

import (
	"fmt"
	"math"

	"github.com/danja/semem/pkg/memory"
)

// Normalize pads vec with trailing zeros or truncates it so the result has
// exactly length d.
//
//   - len(vec) == d: returned as-is (a copy).
//   - len(vec) < d: right-padded with zeros to length d.
//   - len(vec) > d: truncated to the first d elements.
//
// Returns [memory.ErrInvalidEmbedding] if vec is empty or contains a
// non-finite element (NaN or ±Inf).
func Normalize(vec []float32, d int) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("normalize: %w: empty vector", memory.ErrInvalidEmbedding)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("normalize: %w: non-finite element at index %d", memory.ErrInvalidEmbedding, i)
		}
	}

	out := make([]float32, d)
	n := len(vec)
	if n > d {
		n = d
	}
	copy(out, vec[:n])
	return out, nil
}
