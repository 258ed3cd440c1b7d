// Package engine wires the matching components into one value owned by the
// host process. There are no package-level singletons: every collaborator is
// built in New and released by Close.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/compat"
	"github.com/dshills/devmatch-mcp/internal/config"
	"github.com/dshills/devmatch-mcp/internal/embedder"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/internal/matcher"
	"github.com/dshills/devmatch-mcp/internal/metrics"
	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/internal/skillgraph"
	"github.com/dshills/devmatch-mcp/internal/storage"
	"github.com/dshills/devmatch-mcp/internal/storage/postgres"
	"github.com/dshills/devmatch-mcp/internal/team"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

const (
	// DefaultMatchLimit is the result count of the match operations
	DefaultMatchLimit = 20
	// DefaultTeamSize is the team size limit of FindOptimalTeam
	DefaultTeamSize = team.DefaultTeamSize
)

// VectorMirror keeps a second copy of combined vectors in an ANN backend
type VectorMirror interface {
	similarity.Backend
	Upsert(ctx context.Context, kind types.EntityKind, id string, vector []float32) error
	Delete(ctx context.Context, kind types.EntityKind, id string) error
	Close() error
}

// Options supplies collaborators that New would otherwise build from the config
type Options struct {
	Storage storage.Storage
	Model   embedder.Embedder
	Mirror  VectorMirror
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Engine exposes the matching operations
type Engine struct {
	cfg        *config.Config
	store      storage.Storage
	model      embedder.Embedder
	embeddings *embedder.Store
	index      *similarity.Index
	mirror     VectorMirror
	graph      *skillgraph.Graph
	scorer     *compat.Scorer
	composer   *team.Composer
	matcher    *matcher.Matcher
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

// UpsertResult reports what an entity write persisted
type UpsertResult struct {
	EntityKind      types.EntityKind `json:"entity_kind"`
	ID              string           `json:"id"`
	Embedded        bool             `json:"embedded"`
	DegradedAspects []types.Aspect   `json:"degraded_aspects,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}

// Status describes the engine and its backends
type Status struct {
	Storage            *storage.Status       `json:"storage"`
	Provider           string                `json:"provider"`
	Model              string                `json:"model"`
	Dimension          int                   `json:"dimension"`
	VectorBackend      string                `json:"vector_backend"`
	SimilarityThresh   float64               `json:"similarity_threshold"`
	MatchingWeights    types.MatchingWeights `json:"matching_weights"`
	EmbeddingCacheSize int                   `json:"embedding_cache_size"`
	MatchCacheSize     int                   `json:"match_cache_size"`
}

// New builds an engine from cfg. Collaborators missing from opts are created
// from cfg: SQLite storage at cfg.DBPath, the configured embedding provider,
// and a pgvector mirror when cfg.VectorBackend is pgvector.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.OrNop(opts.Logger)

	model := opts.Model
	if model == nil {
		m, err := embedder.New(ctx, embedder.Config{
			Provider:  cfg.EmbeddingProvider,
			Model:     cfg.EmbeddingModelName,
			APIKey:    cfg.EmbeddingAPIKey,
			BaseURL:   cfg.EmbeddingBaseURL,
			Dimension: cfg.VectorDimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		model = m
	}

	embeddings, err := embedder.NewStore(model, embedder.StoreOptions{
		Dimension:   cfg.VectorDimension,
		CacheSize:   cfg.EmbeddingCacheSize,
		CacheTTL:    cfg.EmbeddingCacheTTL,
		Timeout:     cfg.ModelTimeout,
		Concurrency: cfg.EmbeddingWorkers,
		RateLimit:   cfg.EmbeddingRateLimit,
		Logger:      log,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		_ = model.Close()
		return nil, err
	}

	store := opts.Storage
	if store == nil {
		dbPath, err := expandPath(cfg.DBPath)
		if err != nil {
			_ = model.Close()
			return nil, err
		}
		s, err := storage.NewSQLiteStorage(dbPath, storage.WithVectorModel(model.Model()))
		if err != nil {
			_ = model.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = s
	}

	mirror := opts.Mirror
	if mirror == nil && cfg.VectorBackend == config.BackendPGVector {
		pg, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.VectorDimension, model.Model())
		if err != nil {
			_ = store.Close()
			_ = model.Close()
			return nil, fmt.Errorf("failed to initialize pgvector: %w", err)
		}
		mirror = pg
	}

	var backend similarity.Backend = store
	if mirror != nil {
		backend = mirror
	}

	graph := skillgraph.New(store, skillgraph.Options{
		Timeout: cfg.GraphTimeout,
		Logger:  log,
		Metrics: opts.Metrics,
	})
	scorer, err := compat.New(graph, compat.Options{Logger: log})
	if err != nil {
		return nil, err
	}
	index := similarity.NewIndex(backend, cfg.SimilarityThreshold)

	weights := cfg.MatchingWeights
	m, err := matcher.New(embeddings, index, scorer, store, matcher.Options{
		Weights:     &weights,
		CacheSize:   cfg.MatchCacheSize,
		CacheTTL:    cfg.MatchCacheTTL,
		Concurrency: cfg.ScoringWorkers,
		Logger:      log,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	composer := team.New(team.Options{
		History:        store,
		HistoryTimeout: cfg.GraphTimeout,
		Logger:         log,
		Metrics:        opts.Metrics,
	})

	log.Info("engine ready",
		zap.String("provider", model.Provider()),
		zap.String("model", model.Model()),
		zap.Int("dimension", embeddings.Dimension()),
		zap.String("vector_backend", cfg.VectorBackend),
		zap.String("build_mode", storage.BuildMode))

	return &Engine{
		cfg:        cfg,
		store:      store,
		model:      model,
		embeddings: embeddings,
		index:      index,
		mirror:     mirror,
		graph:      graph,
		scorer:     scorer,
		composer:   composer,
		matcher:    m,
		logger:     log.Named("engine"),
		metrics:    opts.Metrics,
	}, nil
}

// Close releases the storage, the mirror and the embedding model
func (e *Engine) Close() error {
	var errs []error
	if e.mirror != nil {
		errs = append(errs, e.mirror.Close())
	}
	errs = append(errs, e.store.Close(), e.model.Close())
	return errors.Join(errs...)
}

// Dimension returns the vector dimension D
func (e *Engine) Dimension() int {
	return e.embeddings.Dimension()
}

// GenerateEmbedding embeds text for one aspect
func (e *Engine) GenerateEmbedding(ctx context.Context, text string, aspect types.Aspect, useCache bool) (*types.Embedding, error) {
	if !aspect.Valid() || aspect == types.AspectCombined {
		return nil, fmt.Errorf("unknown aspect %q", aspect)
	}
	return e.embeddings.Embed(ctx, text, aspect, useCache)
}

// GenerateDeveloperProfileEmbedding embeds every developer aspect and the
// combined vector. Nothing is persisted.
func (e *Engine) GenerateDeveloperProfileEmbedding(ctx context.Context, dev *types.Developer) (*types.MultiAspectEmbedding, error) {
	d, err := prepareDeveloper(dev)
	if err != nil {
		return nil, err
	}
	return e.embeddings.DeveloperEmbedding(ctx, d)
}

// GenerateProjectRequirementEmbedding embeds every project aspect and the
// combined vector. Nothing is persisted.
func (e *Engine) GenerateProjectRequirementEmbedding(ctx context.Context, project *types.Project) (*types.MultiAspectEmbedding, error) {
	p, err := prepareProject(project)
	if err != nil {
		return nil, err
	}
	return e.embeddings.ProjectEmbedding(ctx, p)
}

// FindMatchingDevelopers ranks stored developers for project. A non-positive
// limit uses DefaultMatchLimit.
func (e *Engine) FindMatchingDevelopers(ctx context.Context, project *types.Project, limit int, includeAnalysis bool) (*matcher.Response, error) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	return e.matcher.MatchDevelopersForProject(ctx, project, matcher.Request{Limit: limit, IncludeAnalysis: includeAnalysis})
}

// FindMatchingProjects ranks stored projects for developer. A non-positive
// limit uses DefaultMatchLimit.
func (e *Engine) FindMatchingProjects(ctx context.Context, developer *types.Developer, limit int, includeAnalysis bool) (*matcher.Response, error) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	return e.matcher.MatchProjectsForDeveloper(ctx, developer, matcher.Request{Limit: limit, IncludeAnalysis: includeAnalysis})
}

// CalculateSkillCompatibility scores a stored developer against requiredSkills.
// Invalid weights fail with types.ErrInvalidWeights.
func (e *Engine) CalculateSkillCompatibility(ctx context.Context, developerID string, requiredSkills []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error) {
	if strings.TrimSpace(developerID) == "" {
		return nil, types.ErrMissingID
	}
	return e.scorer.Score(ctx, developerID, requiredSkills, weights)
}

// FindOptimalTeam selects up to teamSizeLimit stored developers covering
// requiredSkills. The candidate pool is every developer holding at least one
// required skill.
func (e *Engine) FindOptimalTeam(ctx context.Context, requiredSkills []string, teamSizeLimit int, excludeIDs []string) (*types.TeamComposition, error) {
	if teamSizeLimit <= 0 {
		teamSizeLimit = DefaultTeamSize
	}
	required := types.NormalizeSkills(requiredSkills)

	var candidates []types.Candidate
	if len(required) > 0 {
		devs, err := e.store.ListDevelopersBySkills(ctx, required, excludeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate pool: %w", err)
		}
		candidates = make([]types.Candidate, 0, len(devs))
		for _, d := range devs {
			candidates = append(candidates, types.CandidateFromDeveloper(d))
		}
	}

	return e.composer.SelectTeam(ctx, candidates, required, teamSizeLimit, excludeIDs), nil
}

// UpsertDeveloper persists dev with its aspect and combined embeddings. When
// the model is unavailable the record is still written, without embeddings,
// and the result says so.
func (e *Engine) UpsertDeveloper(ctx context.Context, dev *types.Developer) (*UpsertResult, error) {
	d, err := prepareDeveloper(dev)
	if err != nil {
		return nil, err
	}
	profile, embedErr := e.embeddings.DeveloperEmbedding(ctx, d)

	result, err := e.persist(ctx, types.EntityDeveloper, d.ID, profile, embedErr, func(tx storage.Tx) error {
		return tx.UpsertDeveloper(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	*dev = *d
	return result, nil
}

// UpsertProject persists project with its aspect and combined embeddings,
// degrading like UpsertDeveloper.
func (e *Engine) UpsertProject(ctx context.Context, project *types.Project) (*UpsertResult, error) {
	p, err := prepareProject(project)
	if err != nil {
		return nil, err
	}
	profile, embedErr := e.embeddings.ProjectEmbedding(ctx, p)

	result, err := e.persist(ctx, types.EntityProject, p.ID, profile, embedErr, func(tx storage.Tx) error {
		return tx.UpsertProject(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	*project = *p
	return result, nil
}

func (e *Engine) persist(ctx context.Context, kind types.EntityKind, id string, profile *types.MultiAspectEmbedding, embedErr error, write func(tx storage.Tx) error) (*UpsertResult, error) {
	if embedErr != nil && !errors.Is(embedErr, types.ErrModelUnavailable) {
		return nil, embedErr
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := write(tx); err != nil {
		return nil, err
	}
	result := &UpsertResult{EntityKind: kind, ID: id}
	if embedErr == nil {
		if err := tx.UpsertEmbeddings(ctx, profile); err != nil {
			return nil, err
		}
		result.Embedded = true
		result.DegradedAspects = profile.Degraded
	} else {
		// Stale vectors would keep matching the old text.
		if err := tx.DeleteEmbeddings(ctx, kind, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		result.Reason = embedErr.Error()
		e.logger.Warn("entity stored without embeddings",
			zap.String("entity_kind", string(kind)),
			zap.String("entity_id", id),
			zap.Error(embedErr))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	e.matcher.Invalidate()

	if e.mirror != nil {
		var err error
		if result.Embedded {
			err = e.mirror.Upsert(ctx, kind, id, profile.Combined)
		} else {
			err = e.mirror.Delete(ctx, kind, id)
		}
		if err != nil {
			return result, fmt.Errorf("failed to mirror %s %s vector: %w", kind, id, err)
		}
	}
	return result, nil
}

// DeleteDeveloper removes a developer with its skills, embeddings and
// collaboration history
func (e *Engine) DeleteDeveloper(ctx context.Context, id string) error {
	return e.remove(ctx, types.EntityDeveloper, id, e.store.DeleteDeveloper)
}

// DeleteProject removes a project with its requirements and embeddings
func (e *Engine) DeleteProject(ctx context.Context, id string) error {
	return e.remove(ctx, types.EntityProject, id, e.store.DeleteProject)
}

func (e *Engine) remove(ctx context.Context, kind types.EntityKind, id string, del func(context.Context, string) error) error {
	if err := del(ctx, id); err != nil {
		return err
	}
	e.matcher.Invalidate()
	if e.mirror != nil {
		if err := e.mirror.Delete(ctx, kind, id); err != nil {
			return fmt.Errorf("failed to delete mirrored %s %s vector: %w", kind, id, err)
		}
	}
	return nil
}

// UpsertSkill stores a skill node
func (e *Engine) UpsertSkill(ctx context.Context, skill *types.SkillNode) error {
	if err := e.store.UpsertSkill(ctx, skill); err != nil {
		return err
	}
	e.matcher.Invalidate()
	return nil
}

// UpsertSkillEdge stores a typed skill relationship
func (e *Engine) UpsertSkillEdge(ctx context.Context, edge *types.SkillEdge) error {
	if err := e.store.UpsertSkillEdge(ctx, edge); err != nil {
		return err
	}
	e.matcher.Invalidate()
	return nil
}

// RecordCollaboration stores the collaboration score of a developer pair
func (e *Engine) RecordCollaboration(ctx context.Context, developerA, developerB string, score float64) error {
	return e.store.UpsertCollaboration(ctx, developerA, developerB, score)
}

// Status reports store counts, model identity and cache sizes
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st, err := e.store.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Storage:            st,
		Provider:           e.model.Provider(),
		Model:              e.model.Model(),
		Dimension:          e.embeddings.Dimension(),
		VectorBackend:      e.cfg.VectorBackend,
		SimilarityThresh:   e.index.Threshold(),
		MatchingWeights:    e.matcher.Weights(),
		EmbeddingCacheSize: e.embeddings.CacheSize(),
		MatchCacheSize:     e.matcher.CacheLen(),
	}, nil
}

func prepareDeveloper(dev *types.Developer) (*types.Developer, error) {
	if dev == nil {
		return nil, errors.New("developer is required")
	}
	d := *dev
	d.Skills = append([]types.DeveloperSkill(nil), dev.Skills...)
	d.Languages = append([]string(nil), dev.Languages...)
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid developer: %w", err)
	}
	d.Normalize()
	return &d, nil
}

func prepareProject(project *types.Project) (*types.Project, error) {
	if project == nil {
		return nil, errors.New("project is required")
	}
	p := *project
	p.Skills = append([]types.ProjectSkill(nil), project.Skills...)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}
	p.Normalize()
	return &p, nil
}

// expandPath resolves a leading ~ and creates the parent directory
func expandPath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return path, nil
}
