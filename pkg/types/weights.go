package types

import (
	"fmt"
	"math"
)

// WeightTolerance is the allowed deviation of a weight sum from 1.0
const WeightTolerance = 1e-6

// MatchingWeights are the process-wide fusion weights of the hybrid matcher
type MatchingWeights struct {
	Vector       float64 `json:"vector_score" mapstructure:"vector_score"`
	Graph        float64 `json:"graph_score" mapstructure:"graph_score"`
	Availability float64 `json:"availability_score" mapstructure:"availability_score"`
	Reputation   float64 `json:"reputation_score" mapstructure:"reputation_score"`
}

// DefaultMatchingWeights returns the default fusion weights
func DefaultMatchingWeights() MatchingWeights {
	return MatchingWeights{Vector: 0.5, Graph: 0.3, Availability: 0.1, Reputation: 0.1}
}

// Validate requires non-negative weights summing to 1.0
func (w MatchingWeights) Validate() error {
	return ValidateWeightSet(map[string]float64{
		"vector_score":       w.Vector,
		"graph_score":        w.Graph,
		"availability_score": w.Availability,
		"reputation_score":   w.Reputation,
	})
}

// ValidateWeightSet requires every weight to be non-negative and the set to sum to 1.0.
// Weight sets are never rescaled.
func ValidateWeightSet(weights map[string]float64) error {
	var sum float64
	for name, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidWeights, name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}
