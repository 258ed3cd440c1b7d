// Package skillgraph answers traversal and lookup queries over the weighted,
// directed skill graph and the developer -> skill edges.
//
// The graph is read-only from this package's point of view. Every store
// round trip runs under its own timeout, and any store failure is reported as
// an empty result together with an error wrapping types.ErrGraphUnavailable so
// callers can treat it as "no signal".
package skillgraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// DefaultTimeout bounds each store query
	DefaultTimeout = 5 * time.Second
	// DefaultMaxDepth is the traversal depth used for related-skill propagation
	DefaultMaxDepth = 2
	// DefaultMinStrength is the weakest edge or path considered related
	DefaultMinStrength = 0.3
	// ExperienceBonusYears is the experience at which the direct-match bonus saturates
	ExperienceBonusYears = 5.0
)

// Store is the graph-store collaborator. storage.SQLiteStorage implements it.
type Store interface {
	ListEdgesFrom(ctx context.Context, sources []string, minStrength float64) ([]types.SkillEdge, error)
	GetSkills(ctx context.Context, names []string) (map[string]types.SkillNode, error)
	ListDeveloperSkills(ctx context.Context, developerID string) ([]types.DeveloperSkill, error)
}

// RelatedSkill is a skill reachable from the start skill
type RelatedSkill struct {
	Skill        string              `json:"skill"`
	Category     types.SkillCategory `json:"category,omitempty"`
	PathStrength float64             `json:"path_strength"`
	Distance     int                 `json:"distance"`
}

// Options configures a Graph
type Options struct {
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Graph runs skill graph queries against a Store
type Graph struct {
	store   Store
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Recorder
}

// New creates a graph over store
func New(store Store, opts Options) *Graph {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Graph{
		store:   store,
		timeout: opts.Timeout,
		logger:  logger.OrNop(opts.Logger).Named("skillgraph"),
		metrics: opts.Metrics,
	}
}

// RelatedSkills returns the skills reachable from skill within maxDepth hops.
// PathStrength is the product of edge strengths along the strongest path; an
// edge weaker than minStrength is not traversed and a path whose strength falls
// below minStrength is dropped. Each target appears once. Results are ordered by
// PathStrength desc, Distance asc, then name. The start skill is never
// returned.
func (g *Graph) RelatedSkills(ctx context.Context, skill string, maxDepth int, minStrength float64) ([]RelatedSkill, error) {
	start := types.NormalizeSkill(skill)
	if start == "" || maxDepth <= 0 {
		return []RelatedSkill{}, nil
	}

	type best struct {
		strength float64
		distance int
	}
	visited := map[string]best{start: {strength: 1}}
	frontier := []string{start}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := g.listEdges(ctx, frontier, minStrength)
		if err != nil {
			return []RelatedSkill{}, g.unavailable("related skills", err, zap.String("skill", start))
		}

		// Strengths as of the start of this level, so a node improved at this
		// depth is only expanded at the next one.
		base := make(map[string]float64, len(frontier))
		for _, name := range frontier {
			base[name] = visited[name].strength
		}

		improved := make(map[string]struct{})
		for _, e := range edges {
			if e.Target == start || e.Strength < minStrength {
				continue
			}
			from, ok := base[e.Source]
			if !ok {
				continue
			}
			s := from * e.Strength
			if s < minStrength {
				continue
			}
			if cur, seen := visited[e.Target]; seen && cur.strength >= s {
				continue
			}
			visited[e.Target] = best{strength: s, distance: depth}
			improved[e.Target] = struct{}{}
		}

		frontier = frontier[:0]
		for name := range improved {
			frontier = append(frontier, name)
		}
		sort.Strings(frontier)
	}

	delete(visited, start)
	if len(visited) == 0 {
		return []RelatedSkill{}, nil
	}

	names := make([]string, 0, len(visited))
	for name := range visited {
		names = append(names, name)
	}
	nodes, err := g.getSkills(ctx, names)
	if err != nil {
		return []RelatedSkill{}, g.unavailable("skill lookup", err, zap.String("skill", start))
	}

	related := make([]RelatedSkill, 0, len(visited))
	for name, b := range visited {
		related = append(related, RelatedSkill{
			Skill:        name,
			Category:     nodes[name].Category,
			PathStrength: b.strength,
			Distance:     b.distance,
		})
	}
	sortRelated(related)
	return related, nil
}

func sortRelated(related []RelatedSkill) {
	sort.Slice(related, func(i, j int) bool {
		a, b := related[i], related[j]
		if a.PathStrength != b.PathStrength {
			return a.PathStrength > b.PathStrength
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Skill < b.Skill
	})
}

// DeveloperSkills returns the developer's skill edges keyed by normalized name
func (g *Graph) DeveloperSkills(ctx context.Context, developerID string) (map[string]types.DeveloperSkill, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	skills, err := g.store.ListDeveloperSkills(ctx, developerID)
	if err != nil {
		return map[string]types.DeveloperSkill{}, g.unavailable("developer skills", err, zap.String("developer_id", developerID))
	}

	m := make(map[string]types.DeveloperSkill, len(skills))
	for _, s := range skills {
		s.Skill = types.NormalizeSkill(s.Skill)
		m[s.Skill] = s
	}
	return m, nil
}

// DeveloperSkillMatch scores each required skill as
// proficiency * (1 + min(years/5, 1)) when the developer holds it, else 0.
// Scores range up to 2.0 and are not clamped here.
func (g *Graph) DeveloperSkillMatch(ctx context.Context, developerID string, requiredSkills []string) (map[string]float64, error) {
	held, err := g.DeveloperSkills(ctx, developerID)
	if err != nil {
		return map[string]float64{}, err
	}
	return DirectMatch(held, requiredSkills), nil
}

// DirectMatch computes DeveloperSkillMatch from already loaded skills
func DirectMatch(held map[string]types.DeveloperSkill, requiredSkills []string) map[string]float64 {
	scores := make(map[string]float64, len(requiredSkills))
	for _, name := range types.NormalizeSkills(requiredSkills) {
		s, ok := held[name]
		if !ok {
			scores[name] = 0
			continue
		}
		bonus := s.ExperienceYears / ExperienceBonusYears
		if bonus > 1 {
			bonus = 1
		}
		scores[name] = s.Proficiency * (1 + bonus)
	}
	return scores
}

// AdjacentSkills returns, for each skill, the one-hop targets reached through
// edges of the given types with strength >= minStrength. Every requested skill
// has an entry, possibly empty.
func (g *Graph) AdjacentSkills(ctx context.Context, skills []string, edgeTypes []types.EdgeType, minStrength float64) (map[string][]string, error) {
	skills = types.NormalizeSkills(skills)
	adjacent := make(map[string][]string, len(skills))
	for _, s := range skills {
		adjacent[s] = []string{}
	}
	if len(skills) == 0 {
		return adjacent, nil
	}

	edges, err := g.listEdges(ctx, skills, minStrength)
	if err != nil {
		return map[string][]string{}, g.unavailable("adjacent skills", err)
	}

	allowed := make(map[types.EdgeType]struct{}, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = struct{}{}
	}
	seen := make(map[string]struct{})
	for _, e := range edges {
		if _, ok := allowed[e.Type]; !ok && len(allowed) > 0 {
			continue
		}
		if e.Strength < minStrength || e.Target == e.Source {
			continue
		}
		key := e.Source + "\x00" + e.Target
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
	}
	for s := range adjacent {
		sort.Strings(adjacent[s])
	}
	return adjacent, nil
}

func (g *Graph) listEdges(ctx context.Context, sources []string, minStrength float64) ([]types.SkillEdge, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.ListEdgesFrom(ctx, sources, minStrength)
}

func (g *Graph) getSkills(ctx context.Context, names []string) (map[string]types.SkillNode, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.GetSkills(ctx, names)
}

// unavailable logs a store failure and wraps it as ErrGraphUnavailable
func (g *Graph) unavailable(op string, err error, fields ...zap.Field) error {
	g.metrics.Degraded(metrics.SignalGraph)
	g.logger.Warn("skill graph query failed",
		append(fields, zap.String("op", op), zap.Error(err))...)
	return fmt.Errorf("%w: %s: %v", types.ErrGraphUnavailable, op, err)
}
