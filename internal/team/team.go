// Package team assembles a bounded-size team that covers a required skill set.
//
// Selection is a greedy set-cover heuristic: each round adds the candidate
// that contributes the best mix of new coverage, proficiency and reputation.
// It is not globally optimal. It runs in O(teamSize * poolSize) and always
// terminates, so it takes no context for cancellation. Only the collaboration
// history lookups that follow selection do I/O.
package team

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// DefaultTeamSize is used when the caller passes a non-positive limit
	DefaultTeamSize = 5
	// DefaultHistoryTimeout bounds each collaboration history lookup
	DefaultHistoryTimeout = 2 * time.Second

	// ReasonNoCandidates is reported when nobody can cover any required skill
	ReasonNoCandidates = "no suitable candidates"
	// ReasonNoSkills is reported when the requirement is empty
	ReasonNoSkills = "no required skills"
	// ReasonPartialCoverage is reported when some required skills stay uncovered
	ReasonPartialCoverage = "partial coverage"
)

// HistoryStore returns the recorded collaboration score of two developers and
// whether one exists. storage.SQLiteStorage implements it.
type HistoryStore interface {
	CollaborationScore(ctx context.Context, developerA, developerB string) (float64, bool, error)
}

// Options configures a Composer
type Options struct {
	History        HistoryStore
	HistoryTimeout time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Recorder
}

// Composer selects teams
type Composer struct {
	history        HistoryStore
	historyTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Recorder
}

// New creates a composer. History may be nil, in which case every pair scores 0.
func New(opts Options) *Composer {
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = DefaultHistoryTimeout
	}
	return &Composer{
		history:        opts.History,
		historyTimeout: opts.HistoryTimeout,
		logger:         logger.OrNop(opts.Logger).Named("team"),
		metrics:        opts.Metrics,
	}
}

type pooled struct {
	types.Candidate
	static float64
}

// StaticScore is the pre-sort key 0.4*skillCount + 0.4*avgProficiency + 0.2*reputation.
// Reputation is the raw 0-100 value, so it dominates the pre-sort.
func StaticScore(c types.Candidate) float64 {
	// Sum in name order so equal candidates get bit-identical scores.
	names := make([]string, 0, len(c.Skills))
	for name := range c.Skills {
		names = append(names, name)
	}
	sort.Strings(names)
	var sum float64
	for _, name := range names {
		sum += c.Skills[name]
	}
	avg := 0.0
	if len(c.Skills) > 0 {
		avg = sum / float64(len(c.Skills))
	}
	// Raw 0-100 reputation, not the [0,1] score the matcher fuses.
	return 0.4*float64(len(c.Skills)) + 0.4*avg + 0.2*c.Reputation
}

// SelectTeam picks at most teamSizeLimit candidates covering requiredSkills.
// Candidates listed in excludeIDs or not fully available are never selected.
// An empty pool or a pool that covers nothing yields an empty team with
// Reason set.
func (c *Composer) SelectTeam(ctx context.Context, candidates []types.Candidate, requiredSkills []string, teamSizeLimit int, excludeIDs []string) *types.TeamComposition {
	if teamSizeLimit <= 0 {
		teamSizeLimit = DefaultTeamSize
	}
	required := types.NormalizeSkills(requiredSkills)
	result := &types.TeamComposition{
		Team:          []types.TeamMember{},
		CoveredSkills: []string{},
		MissingSkills: append([]string{}, required...),
	}
	if len(required) == 0 {
		result.Reason = ReasonNoSkills
		c.metrics.TeamSelection("empty")
		return result
	}

	pool := c.prepare(candidates, excludeIDs)
	remaining := make(map[string]struct{}, len(required))
	for _, s := range required {
		remaining[s] = struct{}{}
	}

	var team []pooled
	for len(team) < teamSizeLimit && len(remaining) > 0 && len(pool) > 0 {
		bestIdx := -1
		var bestScore float64
		var bestNew []string

		for i, cand := range pool {
			newSkills := make([]string, 0)
			var prof float64
			for _, skill := range required {
				if _, open := remaining[skill]; !open {
					continue
				}
				if p, ok := cand.Skills[skill]; ok {
					newSkills = append(newSkills, skill)
					prof += p
				}
			}
			if len(newSkills) == 0 {
				continue
			}
			score := 0.5*(float64(len(newSkills))/float64(len(remaining))) +
				0.4*(prof/float64(len(newSkills))) +
				0.1*(cand.Reputation*0.1)
			// Strict comparison keeps the earliest pre-sorted candidate on ties.
			if bestIdx == -1 || score > bestScore {
				bestIdx, bestScore, bestNew = i, score, newSkills
			}
		}
		if bestIdx == -1 {
			break
		}

		chosen := pool[bestIdx]
		sort.Strings(bestNew)
		for _, s := range bestNew {
			delete(remaining, s)
		}
		team = append(team, chosen)
		result.Team = append(result.Team, types.TeamMember{
			DeveloperID:       chosen.DeveloperID,
			ContributedSkills: bestNew,
			SelectionScore:    bestScore,
			HourlyRate:        chosen.HourlyRate,
		})
		pool = append(pool[:bestIdx:bestIdx], pool[bestIdx+1:]...)
	}

	result.MissingSkills = result.MissingSkills[:0]
	for _, s := range required {
		if _, open := remaining[s]; open {
			result.MissingSkills = append(result.MissingSkills, s)
		} else {
			result.CoveredSkills = append(result.CoveredSkills, s)
		}
	}
	result.SkillCoverage = float64(len(result.CoveredSkills)) / float64(len(required))

	if len(team) == 0 {
		result.Reason = ReasonNoCandidates
		c.metrics.TeamSelection("empty")
		return result
	}

	for _, m := range team {
		result.CostEstimate += m.HourlyRate
	}
	result.SynergyScore = c.synergy(ctx, team)
	result.CollaborationPotential = complementarity(team)

	status := "complete"
	if len(result.MissingSkills) > 0 {
		result.Reason = ReasonPartialCoverage
		status = "partial"
	}
	c.metrics.TeamSelection(status)
	return result
}

// prepare drops excluded and unavailable candidates, normalizes skill names
// and orders the pool by static score desc, then developer id.
func (c *Composer) prepare(candidates []types.Candidate, excludeIDs []string) []pooled {
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	pool := make([]pooled, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		if _, skip := excluded[cand.DeveloperID]; skip {
			continue
		}
		if cand.Availability != types.AvailabilityAvailable {
			continue
		}
		if _, dup := seen[cand.DeveloperID]; dup {
			continue
		}
		seen[cand.DeveloperID] = struct{}{}

		skills := make(map[string]float64, len(cand.Skills))
		for name, p := range cand.Skills {
			name = types.NormalizeSkill(name)
			if name == "" {
				continue
			}
			if prev, ok := skills[name]; !ok || p > prev {
				skills[name] = p
			}
		}
		cand.Skills = skills
		pool = append(pool, pooled{Candidate: cand, static: StaticScore(cand)})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].static != pool[j].static {
			return pool[i].static > pool[j].static
		}
		return pool[i].DeveloperID < pool[j].DeveloperID
	})
	return pool
}

// synergy averages the collaboration history score over all team pairs.
// Missing history and lookup failures count as 0.
func (c *Composer) synergy(ctx context.Context, team []pooled) float64 {
	if len(team) < 2 || c.history == nil {
		return 0
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(team); i++ {
		for j := i + 1; j < len(team); j++ {
			pairs++
			a, b := team[i].DeveloperID, team[j].DeveloperID

			lookupCtx, cancel := context.WithTimeout(ctx, c.historyTimeout)
			score, ok, err := c.history.CollaborationScore(lookupCtx, a, b)
			cancel()
			if err != nil {
				c.metrics.Degraded(metrics.SignalHistory)
				c.logger.Warn("collaboration history lookup failed",
					zap.String("developer_a", a), zap.String("developer_b", b), zap.Error(err))
				continue
			}
			if ok {
				sum += score
			}
		}
	}
	return sum / float64(pairs)
}

// complementarity averages 1 - Jaccard(skillsA, skillsB) over all team pairs
func complementarity(team []pooled) float64 {
	if len(team) < 2 {
		return 0
	}

	var sum float64
	pairs := 0
	for i := 0; i < len(team); i++ {
		for j := i + 1; j < len(team); j++ {
			pairs++
			a, b := team[i].Skills, team[j].Skills
			inter := 0
			for s := range a {
				if _, ok := b[s]; ok {
					inter++
				}
			}
			union := len(a) + len(b) - inter
			if union == 0 {
				continue
			}
			sum += 1 - float64(inter)/float64(union)
		}
	}
	return sum / float64(pairs)
}
