// Package compat scores how well a developer's skills cover a required skill
// set using the skill graph.
//
// The total is a weighted sum of four components, each in [0,1]:
//
//	direct   mean of the clamped direct-match scores
//	related  best related-skill propagation for skills without a strong direct match
//	depth    experience*0.1 + proficiency*0.9 for skills held directly
//	learning how well the developer's adjacent skills prepare them for the rest
//
// A graph outage never fails a score: the breakdown comes back with Total 0
// and Error set.
package compat

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/skillgraph"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// StrongMatch is the clamped direct score at which related-skill propagation is skipped
	StrongMatch = 0.7
	// LearningMinStrength is the weakest adjacency edge counted for learning potential
	LearningMinStrength = 0.5
)

// LearningEdgeTypes are the relationships that count as adjacency for learning potential
var LearningEdgeTypes = []types.EdgeType{types.EdgeRelatedTo, types.EdgePrerequisite}

// Weights weight the four compatibility components
type Weights struct {
	Direct   float64 `json:"direct" mapstructure:"direct"`
	Related  float64 `json:"related" mapstructure:"related"`
	Depth    float64 `json:"depth" mapstructure:"depth"`
	Learning float64 `json:"learning" mapstructure:"learning"`
}

// DefaultWeights returns direct .4, related .3, depth .2, learning .1
func DefaultWeights() Weights {
	return Weights{Direct: 0.4, Related: 0.3, Depth: 0.2, Learning: 0.1}
}

// Validate requires non-negative weights summing to 1.0. Weights are never rescaled.
func (w Weights) Validate() error {
	return types.ValidateWeightSet(map[string]float64{
		"direct":   w.Direct,
		"related":  w.Related,
		"depth":    w.Depth,
		"learning": w.Learning,
	})
}

// Graph is the subset of skillgraph.Graph the scorer needs
type Graph interface {
	DeveloperSkills(ctx context.Context, developerID string) (map[string]types.DeveloperSkill, error)
	RelatedSkills(ctx context.Context, skill string, maxDepth int, minStrength float64) ([]skillgraph.RelatedSkill, error)
	AdjacentSkills(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error)
}

// Options configures a Scorer
type Options struct {
	Weights     *Weights
	MaxDepth    int
	MinStrength float64
	Logger      *zap.Logger
}

// Scorer computes CompatibilityBreakdowns
type Scorer struct {
	graph       Graph
	weights     Weights
	maxDepth    int
	minStrength float64
	logger      *zap.Logger
}

// New creates a scorer. It fails with types.ErrInvalidWeights when opts.Weights
// is set and invalid.
func New(graph Graph, opts Options) (*Scorer, error) {
	weights := DefaultWeights()
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return nil, err
		}
		weights = *opts.Weights
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = skillgraph.DefaultMaxDepth
	}
	if opts.MinStrength <= 0 {
		opts.MinStrength = skillgraph.DefaultMinStrength
	}
	return &Scorer{
		graph:       graph,
		weights:     weights,
		maxDepth:    opts.MaxDepth,
		minStrength: opts.MinStrength,
		logger:      logger.OrNop(opts.Logger).Named("compat"),
	}, nil
}

// Weights returns the default weights of the scorer
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the breakdown of developerID against requiredSkills, reading
// the developer's skills from the graph. A nil weights uses the scorer
// defaults; invalid weights fail with types.ErrInvalidWeights before any graph
// query. Graph failures are reported in the breakdown, never as an error.
func (s *Scorer) Score(ctx context.Context, developerID string, requiredSkills []string, weights *Weights) (*types.CompatibilityBreakdown, error) {
	w, err := s.resolveWeights(weights)
	if err != nil {
		return nil, err
	}
	required := types.NormalizeSkills(requiredSkills)
	if len(required) == 0 {
		return emptyBreakdown(developerID, 0), nil
	}

	held, err := s.graph.DeveloperSkills(ctx, developerID)
	if err != nil {
		return s.degraded(developerID, err), nil
	}
	return s.score(ctx, developerID, held, required, w), nil
}

// ScoreSkills is Score for a skill set supplied by the caller, such as a
// developer record that is not stored yet. developerID only labels the
// breakdown.
func (s *Scorer) ScoreSkills(ctx context.Context, developerID string, held map[string]types.DeveloperSkill, requiredSkills []string, weights *Weights) (*types.CompatibilityBreakdown, error) {
	w, err := s.resolveWeights(weights)
	if err != nil {
		return nil, err
	}
	required := types.NormalizeSkills(requiredSkills)
	if len(required) == 0 {
		return emptyBreakdown(developerID, 0), nil
	}

	normalized := make(map[string]types.DeveloperSkill, len(held))
	for _, hs := range held {
		hs.Skill = types.NormalizeSkill(hs.Skill)
		if prev, ok := normalized[hs.Skill]; ok && prev.Proficiency >= hs.Proficiency {
			continue
		}
		normalized[hs.Skill] = hs
	}
	return s.score(ctx, developerID, normalized, required, w), nil
}

func (s *Scorer) resolveWeights(weights *Weights) (Weights, error) {
	if weights == nil {
		return s.weights, nil
	}
	if err := weights.Validate(); err != nil {
		return Weights{}, err
	}
	return *weights, nil
}

func emptyBreakdown(developerID string, n int) *types.CompatibilityBreakdown {
	return &types.CompatibilityBreakdown{
		DeveloperID:   developerID,
		SkillScores:   make(map[string]float64, n),
		MissingSkills: []string{},
	}
}

func (s *Scorer) score(ctx context.Context, developerID string, held map[string]types.DeveloperSkill, required []string, w Weights) *types.CompatibilityBreakdown {
	b := emptyBreakdown(developerID, len(required))

	raw := skillgraph.DirectMatch(held, required)
	clamped := make(map[string]float64, len(required))
	for _, skill := range required {
		b.SkillScores[skill] = raw[skill]
		clamped[skill] = clamp01(raw[skill])
		if raw[skill] == 0 {
			b.MissingSkills = append(b.MissingSkills, skill)
		}
	}

	related, err := s.related(ctx, held, required, clamped)
	if err != nil {
		return s.degraded(developerID, err)
	}
	learning, err := s.learning(ctx, held, required)
	if err != nil {
		return s.degraded(developerID, err)
	}

	n := float64(len(required))
	var direct, depth float64
	for _, skill := range required {
		direct += clamped[skill]
		if hs, ok := held[skill]; ok {
			depth += clamp01(hs.ExperienceYears*0.1 + hs.Proficiency*0.9)
		}
	}

	b.Direct = direct / n
	b.Related = related
	b.Depth = depth / n
	b.Learning = learning
	b.Total = clamp01(w.Direct*b.Direct + w.Related*b.Related + w.Depth*b.Depth + w.Learning*b.Learning)
	return b
}

// related averages, over required skills, the best pathStrength*proficiency
// reachable from the developer's own skills. Skills with a strong direct match
// are left to the direct component and contribute 0.
func (s *Scorer) related(ctx context.Context, held map[string]types.DeveloperSkill, required []string, clamped map[string]float64) (float64, error) {
	if len(held) == 0 {
		return 0, nil
	}

	var weak []string
	for _, skill := range required {
		if clamped[skill] < StrongMatch {
			weak = append(weak, skill)
		}
	}

	best := make(map[string]float64, len(weak))
	if len(weak) > 0 {
		wanted := make(map[string]struct{}, len(weak))
		for _, skill := range weak {
			wanted[skill] = struct{}{}
		}
		for _, name := range sortedKeys(held) {
			reach, err := s.graph.RelatedSkills(ctx, name, s.maxDepth, s.minStrength)
			if err != nil {
				return 0, err
			}
			prof := held[name].Proficiency
			for _, r := range reach {
				if _, ok := wanted[r.Skill]; !ok {
					continue
				}
				if v := r.PathStrength * prof; v > best[r.Skill] {
					best[r.Skill] = v
				}
			}
		}
	}

	var sum float64
	for _, skill := range weak {
		sum += clamp01(best[skill])
	}
	return sum / float64(len(required)), nil
}

// learning averages, over required skills, 0.3*count + 0.7*avgProficiency of
// the developer's skills adjacent to the required skill, each term clamped to
// [0,1]. A skill already held scores its proficiency.
func (s *Scorer) learning(ctx context.Context, held map[string]types.DeveloperSkill, required []string) (float64, error) {
	if len(held) == 0 {
		return 0, nil
	}
	adjacent, err := s.graph.AdjacentSkills(ctx, required, LearningEdgeTypes, LearningMinStrength)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, skill := range required {
		if hs, ok := held[skill]; ok {
			sum += hs.Proficiency
			continue
		}
		var count, prof float64
		for _, adj := range adjacent[skill] {
			if hs, ok := held[adj]; ok {
				count++
				prof += hs.Proficiency
			}
		}
		if count == 0 {
			continue
		}
		sum += clamp01(0.3*count + 0.7*(prof/count))
	}
	return clamp01(sum / float64(len(required))), nil
}

func (s *Scorer) degraded(developerID string, err error) *types.CompatibilityBreakdown {
	s.logger.Warn("compatibility degraded to zero",
		zap.String("developer_id", developerID), zap.Error(err))
	return &types.CompatibilityBreakdown{
		DeveloperID:   developerID,
		MissingSkills: []string{},
		Error:         fmt.Sprintf("graph signal unavailable: %v", err),
	}
}

func sortedKeys(m map[string]types.DeveloperSkill) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
