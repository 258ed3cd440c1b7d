package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/devmatch-mcp/internal/compat"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// DefaultLimit is the result count when a request does not set one
	DefaultLimit = 20
	// MaxLimit caps the result count of a single request
	MaxLimit = 100
	// DefaultCacheTTL is the lifetime of a cached response
	DefaultCacheTTL = time.Hour
	// DefaultCacheSize is the number of cached responses
	DefaultCacheSize = 1000
	// OverFetch is the shortlist multiplier applied to the vector search
	OverFetch = 2
)

// QueryType names the direction of a match request
type QueryType string

const (
	QueryDevelopersForProject QueryType = "developers_for_project"
	QueryProjectsForDeveloper QueryType = "projects_for_developer"
)

// Learning-time estimates attached to detailed analysis
const (
	LearningImmediate      = "immediate"
	LearningOneToTwoWeeks  = "1-2 weeks"
	LearningTwoToFourWeeks = "2-4 weeks"
	LearningOneToTwoMonths = "1-2 months"
)

// Embedder produces query embeddings
type Embedder interface {
	DeveloperEmbedding(ctx context.Context, d *types.Developer) (*types.MultiAspectEmbedding, error)
	ProjectEmbedding(ctx context.Context, p *types.Project) (*types.MultiAspectEmbedding, error)
}

// Index returns the vector shortlist for a query
type Index interface {
	Search(ctx context.Context, kind types.EntityKind, query []float32, limit int) ([]similarity.Match, error)
}

// Scorer produces the graph signal for one developer against a skill set.
// Score reads the stored skills of developerID; ScoreSkills uses held.
type Scorer interface {
	Score(ctx context.Context, developerID string, requiredSkills []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error)
	ScoreSkills(ctx context.Context, developerID string, held map[string]types.DeveloperSkill, requiredSkills []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error)
}

// Directory resolves candidate ids to profiles. Ids missing from the returned
// map are treated as unresolvable.
type Directory interface {
	GetDevelopers(ctx context.Context, ids []string) (map[string]*types.Developer, error)
	GetProjects(ctx context.Context, ids []string) (map[string]*types.Project, error)
}

// Request carries per-call options of a match
type Request struct {
	Limit           int
	IncludeAnalysis bool
	CacheTTL        time.Duration
}

// Response is a ranked match list
type Response struct {
	QueryType     QueryType           `json:"query_type"`
	SubjectID     string              `json:"subject_id"`
	Results       []types.MatchResult `json:"results"`
	TotalResults  int                 `json:"total_results"`
	VectorMatches int                 `json:"vector_matches"`
	Dropped       int                 `json:"dropped"`
	Degraded      bool                `json:"degraded"`
	Reason        string              `json:"reason,omitempty"`
	Duration      time.Duration       `json:"duration"`
	CacheHit      bool                `json:"cache_hit"`
}

// Options configures a Matcher
type Options struct {
	Weights     *types.MatchingWeights
	CacheSize   int
	CacheTTL    time.Duration
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
}

// cacheEntry represents a cached response with expiration
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Matcher fuses vector similarity with the graph compatibility signal and the
// candidate's availability and reputation.
type Matcher struct {
	embedder  Embedder
	index     Index
	scorer    Scorer
	directory Directory
	weights   types.MatchingWeights
	cacheTTL  time.Duration
	workers   int
	cache     *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex
	logger    *zap.Logger
	metrics   *metrics.Recorder
}

// target is a resolved candidate ready for scoring
type target struct {
	candidateID  string
	developerID  string
	skills       map[string]types.DeveloperSkill // nil reads the stored skills of developerID
	required     []string
	availability float64
	reputation   float64
}

// query is one direction of the pipeline
type query struct {
	typ       QueryType
	subjectID string
	payload   interface{}
	kind      types.EntityKind
	embed     func(ctx context.Context) (*types.MultiAspectEmbedding, error)
	resolve   func(ctx context.Context, ids []string) (map[string]target, error)
}

// New creates a matcher. It fails with types.ErrInvalidWeights when the
// matching weights do not validate.
func New(emb Embedder, index Index, scorer Scorer, directory Directory, opts Options) (*Matcher, error) {
	weights := types.DefaultMatchingWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	cache, err := lru.New[[32]byte, *cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create match cache: %w", err)
	}

	return &Matcher{
		embedder:  emb,
		index:     index,
		scorer:    scorer,
		directory: directory,
		weights:   weights,
		cacheTTL:  opts.CacheTTL,
		workers:   opts.Concurrency,
		cache:     cache,
		logger:    logger.OrNop(opts.Logger).Named("matcher"),
		metrics:   opts.Metrics,
	}, nil
}

// Weights returns the fusion weights
func (m *Matcher) Weights() types.MatchingWeights {
	return m.weights
}

// MatchDevelopersForProject ranks stored developers against project
func (m *Matcher) MatchDevelopersForProject(ctx context.Context, project *types.Project, req Request) (*Response, error) {
	if project == nil {
		return nil, fmt.Errorf("project is required")
	}
	p := cloneProject(project)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	p.Normalize()
	required := p.RequiredSkillNames()

	return m.run(ctx, query{
		typ:       QueryDevelopersForProject,
		subjectID: p.ID,
		payload:   p,
		kind:      types.EntityDeveloper,
		embed: func(ctx context.Context) (*types.MultiAspectEmbedding, error) {
			return m.embedder.ProjectEmbedding(ctx, p)
		},
		resolve: func(ctx context.Context, ids []string) (map[string]target, error) {
			devs, err := m.directory.GetDevelopers(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make(map[string]target, len(devs))
			for id, d := range devs {
				out[id] = target{
					candidateID:  id,
					developerID:  d.ID,
					required:     required,
					availability: d.Availability.Score(),
					reputation:   d.ReputationScore(),
				}
			}
			return out, nil
		},
	}, req)
}

// MatchProjectsForDeveloper ranks stored projects against developer. The graph
// signal scores the skills on the developer record, which need not be stored,
// and availability and reputation are the developer's own.
func (m *Matcher) MatchProjectsForDeveloper(ctx context.Context, developer *types.Developer, req Request) (*Response, error) {
	if developer == nil {
		return nil, fmt.Errorf("developer is required")
	}
	d := cloneDeveloper(developer)
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid developer: %w", err)
	}
	d.Normalize()
	held := d.SkillMap()

	return m.run(ctx, query{
		typ:       QueryProjectsForDeveloper,
		subjectID: d.ID,
		payload:   d,
		kind:      types.EntityProject,
		embed: func(ctx context.Context) (*types.MultiAspectEmbedding, error) {
			return m.embedder.DeveloperEmbedding(ctx, d)
		},
		resolve: func(ctx context.Context, ids []string) (map[string]target, error) {
			projects, err := m.directory.GetProjects(ctx, ids)
			if err != nil {
				return nil, err
			}
			out := make(map[string]target, len(projects))
			for id, p := range projects {
				out[id] = target{
					candidateID:  id,
					developerID:  d.ID,
					skills:       held,
					required:     p.RequiredSkillNames(),
					availability: d.Availability.Score(),
					reputation:   d.ReputationScore(),
				}
			}
			return out, nil
		},
	}, req)
}

func (m *Matcher) run(ctx context.Context, q query, req Request) (*Response, error) {
	start := time.Now()
	m.validateRequest(&req)

	hash, err := computeQueryHash(q.typ, q.payload, req)
	if err != nil {
		return nil, err
	}
	if cached, ok := m.checkCache(hash); ok {
		m.metrics.CacheHit(metrics.CacheMatch)
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		m.metrics.MatchRequest(string(q.typ), "cache_hit", cached.VectorMatches, cached.Duration)
		return cached, nil
	}
	m.metrics.CacheMiss(metrics.CacheMatch)

	resp := &Response{
		QueryType: q.typ,
		SubjectID: q.subjectID,
		Results:   []types.MatchResult{},
	}

	profile, err := q.embed(ctx)
	if err != nil {
		if !errors.Is(err, types.ErrModelUnavailable) {
			m.metrics.MatchRequest(string(q.typ), "error", 0, time.Since(start))
			return nil, err
		}
		m.logger.Warn("query embedding unavailable, returning no candidates",
			zap.String("query_type", string(q.typ)),
			zap.String("subject_id", q.subjectID),
			zap.Error(err))
		m.metrics.Degraded(metrics.SignalEmbedding)
		resp.Degraded = true
		resp.Reason = err.Error()
		return m.finish(resp, q, start, "degraded"), nil
	}

	matches, err := m.index.Search(ctx, q.kind, profile.Combined, req.Limit*OverFetch)
	if err != nil {
		m.metrics.MatchRequest(string(q.typ), "error", 0, time.Since(start))
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	resp.VectorMatches = len(matches)

	targets, err := m.resolveTargets(ctx, q, matches)
	if err != nil {
		resp.Degraded = true
		resp.Reason = fmt.Sprintf("%v: %v", types.ErrEntityResolution, err)
		resp.Dropped = len(matches)
		return m.finish(resp, q, start, "degraded"), nil
	}
	resp.Dropped = len(matches) - len(targets)

	results, err := m.score(ctx, q.subjectID, targets, req.IncludeAnalysis)
	if err != nil {
		m.metrics.MatchRequest(string(q.typ), "error", len(matches), time.Since(start))
		return nil, err
	}

	sortResults(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	resp.Results = results
	if len(results) == 0 {
		resp.Reason = types.ErrNoCandidates.Error()
	}

	status := "ok"
	if len(results) == 0 {
		status = "empty"
	}
	resp = m.finish(resp, q, start, status)
	m.storeInCache(hash, req.CacheTTL, resp)
	return resp, nil
}

func (m *Matcher) finish(resp *Response, q query, start time.Time, status string) *Response {
	resp.TotalResults = len(resp.Results)
	resp.Duration = time.Since(start)
	m.metrics.MatchRequest(string(q.typ), status, resp.VectorMatches, resp.Duration)
	m.logger.Debug("match completed",
		zap.String("query_type", string(q.typ)),
		zap.String("subject_id", q.subjectID),
		zap.Int("vector_matches", resp.VectorMatches),
		zap.Int("results", resp.TotalResults),
		zap.Int("dropped", resp.Dropped),
		zap.Duration("duration", resp.Duration))
	return resp
}

// scoredMatch pairs a vector match with its resolved target
type scoredMatch struct {
	match  similarity.Match
	target target
}

// resolveTargets drops vector matches whose entity cannot be resolved
func (m *Matcher) resolveTargets(ctx context.Context, q query, matches []similarity.Match) ([]scoredMatch, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match.ID
	}

	resolved, err := q.resolve(ctx, ids)
	if err != nil {
		m.metrics.Degraded(metrics.SignalEntity)
		m.logger.Warn("candidate resolution failed, dropping shortlist",
			zap.String("query_type", string(q.typ)),
			zap.Int("candidates", len(ids)),
			zap.Error(err))
		return nil, err
	}

	out := make([]scoredMatch, 0, len(matches))
	for _, match := range matches {
		t, ok := resolved[match.ID]
		if !ok {
			m.metrics.Degraded(metrics.SignalEntity)
			m.logger.Warn("dropping unresolvable candidate",
				zap.String("query_type", string(q.typ)),
				zap.String("candidate_id", match.ID))
			continue
		}
		out = append(out, scoredMatch{match: match, target: t})
	}
	return out, nil
}

// score computes the graph signal of every target concurrently and fuses it
func (m *Matcher) score(ctx context.Context, subjectID string, targets []scoredMatch, includeAnalysis bool) ([]types.MatchResult, error) {
	results := make([]types.MatchResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, sm := range targets {
		g.Go(func() error {
			var (
				b   *types.CompatibilityBreakdown
				err error
			)
			if sm.target.skills != nil {
				b, err = m.scorer.ScoreSkills(gctx, sm.target.developerID, sm.target.skills, sm.target.required, nil)
			} else {
				b, err = m.scorer.Score(gctx, sm.target.developerID, sm.target.required, nil)
			}
			if err != nil {
				return fmt.Errorf("compatibility for %s: %w", sm.target.candidateID, err)
			}
			results[i] = m.fuse(subjectID, sm, b, includeAnalysis)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fuse combines the vector and graph signals, then blends in availability and
// reputation with the remaining weight.
func (m *Matcher) fuse(subjectID string, sm scoredMatch, b *types.CompatibilityBreakdown, includeAnalysis bool) types.MatchResult {
	w := m.weights
	vector := sm.match.Score
	graph := b.Total

	final := vector*w.Vector + graph*w.Graph
	adjusted := final*(1-w.Availability-w.Reputation) +
		sm.target.availability*w.Availability +
		sm.target.reputation*w.Reputation

	r := types.MatchResult{
		SubjectID:   subjectID,
		CandidateID: sm.target.candidateID,
		VectorScore: vector,
		GraphScore:  graph,
		FinalScore:  clamp01(adjusted),
		Breakdown:   b,
	}
	if includeAnalysis {
		r.Analysis = analyze(vector, graph, b, sm.target)
	}
	return r
}

func analyze(vector, graph float64, b *types.CompatibilityBreakdown, t target) *types.DetailedAnalysis {
	missing := append([]string{}, b.MissingSkills...)
	if b.Degraded() {
		// A degraded breakdown carries no skill detail.
		missing = append(missing, t.required...)
	}
	return &types.DetailedAnalysis{
		MissingSkills:       missing,
		LearningTime:        LearningTime(len(missing)),
		MatchConfidence:     MatchConfidence(vector, graph),
		AvailabilityScore:   t.availability,
		ReputationScore:     t.reputation,
		GraphSignalDegraded: b.Degraded(),
	}
}

// LearningTime estimates ramp-up time from the number of missing skills
func LearningTime(missing int) string {
	switch {
	case missing <= 0:
		return LearningImmediate
	case missing <= 2:
		return LearningOneToTwoWeeks
	case missing <= 4:
		return LearningTwoToFourWeeks
	default:
		return LearningOneToTwoMonths
	}
}

// MatchConfidence is the mean of the two signals discounted by their disagreement
func MatchConfidence(vector, graph float64) float64 {
	avg := (vector + graph) / 2
	return clamp01(avg * (1 - 0.5*math.Abs(vector-graph)))
}

// validateRequest fills request defaults
func (m *Matcher) validateRequest(req *Request) {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = m.cacheTTL
	}
}

// checkCache looks up a cached response
func (m *Matcher) checkCache(hash [32]byte) (*Response, bool) {
	now := time.Now()

	m.cacheMu.RLock()
	entry, found := m.cache.Get(hash)
	if !found {
		m.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		m.cacheMu.RUnlock()

		m.cacheMu.Lock()
		m.cache.Remove(hash)
		m.cacheMu.Unlock()
		return nil, false
	}

	response := copyResponse(entry.response)
	m.cacheMu.RUnlock()
	return response, true
}

// storeInCache saves a response; degraded responses are never cached
func (m *Matcher) storeInCache(hash [32]byte, ttl time.Duration, resp *Response) {
	if resp.Degraded {
		return
	}
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(ttl),
	}

	m.cacheMu.Lock()
	m.cache.Add(hash, entry)
	m.cacheMu.Unlock()
}

// Invalidate drops every cached response. Entity writes call it since the
// cache cannot tell which responses a write affects.
func (m *Matcher) Invalidate() {
	m.cacheMu.Lock()
	m.cache.Purge()
	m.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (m *Matcher) CacheLen() int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return m.cache.Len()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.MatchResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r.Clone()
	}
	return &dst
}

// computeQueryHash hashes the query type, the normalized payload and the
// result-shaping options
func computeQueryHash(typ QueryType, payload interface{}, req Request) ([32]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to encode query payload: %w", err)
	}

	var data strings.Builder
	data.WriteString(string(typ))
	data.WriteString("|")
	data.Write(encoded)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	data.WriteString("|")
	data.WriteString(strconv.FormatBool(req.IncludeAnalysis))

	return sha256.Sum256([]byte(data.String())), nil
}

// sortResults orders by final score descending, then candidate id
func sortResults(results []types.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].CandidateID < results[j].CandidateID
	})
}

func cloneProject(p *types.Project) *types.Project {
	c := *p
	c.Skills = append([]types.ProjectSkill(nil), p.Skills...)
	return &c
}

func cloneDeveloper(d *types.Developer) *types.Developer {
	c := *d
	c.Skills = append([]types.DeveloperSkill(nil), d.Skills...)
	c.Languages = append([]string(nil), d.Languages...)
	return &c
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
