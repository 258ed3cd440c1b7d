package embedder

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

// EmptyMarker is the normalized form of empty or blank text
const EmptyMarker NormalizedText = "\x00empty"

// NormalizedText is text with whitespace collapsed and case folded
type NormalizedText string

// IsEmpty reports whether n is the empty marker
func (n NormalizedText) IsEmpty() bool {
	return n == EmptyMarker
}

// Normalize collapses whitespace runs and case-folds text. Blank input maps to EmptyMarker.
func Normalize(text string) NormalizedText {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return EmptyMarker
	}
	return NormalizedText(strings.ToLower(strings.Join(fields, " ")))
}

// Combine computes the weighted sum of the aspect vectors and renormalizes it
// to unit length. Missing, nil and zero aspects contribute nothing; when no
// aspect carries signal the result is the zero vector of length dim.
func Combine(aspects map[types.Aspect]*types.Embedding, weights map[types.Aspect]float64, dim int) ([]float32, error) {
	// Sum in a fixed order so results are bit-identical across calls.
	keys := make([]types.Aspect, 0, len(aspects))
	for a := range aspects {
		keys = append(keys, a)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	sum := make([]float64, dim)
	for _, a := range keys {
		emb := aspects[a]
		w := weights[a]
		if emb == nil || w <= 0 || emb.IsZero() {
			continue
		}
		if len(emb.Vector) != dim {
			return nil, fmt.Errorf("%w: aspect %s has %d dims, want %d", types.ErrDimensionMismatch, a, len(emb.Vector), dim)
		}
		for i, v := range emb.Vector {
			sum[i] += w * float64(v)
		}
	}

	var norm float64
	for _, v := range sum {
		norm += v * v
	}

	out := make([]float32, dim)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range sum {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// VectorNorm returns the L2 norm of v
func VectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
