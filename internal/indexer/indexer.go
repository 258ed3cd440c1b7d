package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/devmatch-mcp/internal/engine"
	"github.com/dshills/devmatch-mcp/internal/logger"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// ErrIngestInProgress is returned when another ingest holds the lock
var ErrIngestInProgress = errors.New("ingest already in progress")

// Target receives the records of a dataset. *engine.Engine implements it.
type Target interface {
	UpsertSkill(ctx context.Context, skill *types.SkillNode) error
	UpsertSkillEdge(ctx context.Context, edge *types.SkillEdge) error
	UpsertDeveloper(ctx context.Context, dev *types.Developer) (*engine.UpsertResult, error)
	UpsertProject(ctx context.Context, project *types.Project) (*engine.UpsertResult, error)
	RecordCollaboration(ctx context.Context, developerA, developerB string, score float64) error
}

// Dataset is the ingest file format
type Dataset struct {
	Skills         []types.SkillNode `json:"skills" mapstructure:"skills"`
	SkillEdges     []types.SkillEdge `json:"skill_edges" mapstructure:"skill_edges"`
	Developers     []types.Developer `json:"developers" mapstructure:"developers"`
	Projects       []types.Project   `json:"projects" mapstructure:"projects"`
	Collaborations []Collaboration   `json:"collaborations" mapstructure:"collaborations"`
}

// Collaboration is the historical collaboration score of a developer pair
type Collaboration struct {
	DeveloperA string  `json:"developer_a" mapstructure:"developer_a"`
	DeveloperB string  `json:"developer_b" mapstructure:"developer_b"`
	Score      float64 `json:"score" mapstructure:"score"`
}

// Config contains configuration for one ingest
type Config struct {
	Workers int // Number of concurrent profile writers (default: runtime.NumCPU())
}

// Statistics contains statistics about the ingest operation
type Statistics struct {
	SkillsStored         int           `json:"skills_stored"`
	EdgesStored          int           `json:"edges_stored"`
	DevelopersIndexed    int           `json:"developers_indexed"`
	ProjectsIndexed      int           `json:"projects_indexed"`
	CollaborationsStored int           `json:"collaborations_stored"`
	IDsAssigned          int           `json:"ids_assigned"`
	NotEmbedded          int           `json:"not_embedded"`
	Failed               int           `json:"failed"`
	Duration             time.Duration `json:"duration"`
	ErrorMessages        []string      `json:"error_messages"`
}

// Indexer loads datasets into a Target
type Indexer struct {
	target  Target
	lock    ingestLock
	workers int
	logger  *zap.Logger
}

// New creates a new Indexer instance
func New(target Target, log *zap.Logger) *Indexer {
	return &Indexer{
		target:  target,
		workers: runtime.NumCPU(),
		logger:  logger.OrNop(log).Named("indexer"),
	}
}

// Busy reports whether an ingest is running
func (idx *Indexer) Busy() bool {
	return idx.lock.busy()
}

// LoadDataset decodes a JSON dataset
func LoadDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return &ds, nil
}

// IngestFile reads the dataset at path and ingests it
func (idx *Indexer) IngestFile(ctx context.Context, path string, config *Config) (*Statistics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds, err := LoadDataset(f)
	if err != nil {
		return nil, err
	}
	return idx.Ingest(ctx, ds, config)
}

// Ingest writes skills, then skill edges, then developers and projects
// concurrently, then collaborations. Records that fail are counted and
// reported in ErrorMessages without aborting the run. Only one ingest runs at
// a time; a concurrent call fails with ErrIngestInProgress.
func (idx *Indexer) Ingest(ctx context.Context, ds *Dataset, config *Config) (*Statistics, error) {
	if !idx.lock.tryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer idx.lock.release()

	if ds == nil {
		return nil, errors.New("dataset is required")
	}
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = idx.workers
	}

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}
	var mu sync.Mutex // Protect stats.ErrorMessages and stats.Failed
	fail := func(what string, err error) {
		mu.Lock()
		stats.Failed++
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", what, err))
		mu.Unlock()
		idx.logger.Warn("ingest record failed", zap.String("record", what), zap.Error(err))
	}

	for i := range ds.Skills {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := idx.target.UpsertSkill(ctx, &ds.Skills[i]); err != nil {
			fail(fmt.Sprintf("skill %q", ds.Skills[i].Name), err)
			continue
		}
		stats.SkillsStored++
	}

	for i := range ds.SkillEdges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := &ds.SkillEdges[i]
		if err := idx.target.UpsertSkillEdge(ctx, e); err != nil {
			fail(fmt.Sprintf("edge %s->%s", e.Source, e.Target), err)
			continue
		}
		stats.EdgesStored++
	}

	for i := range ds.Developers {
		if ds.Developers[i].ID == "" {
			ds.Developers[i].ID = uuid.NewString()
			stats.IDsAssigned++
		}
	}
	for i := range ds.Projects {
		if ds.Projects[i].ID == "" {
			ds.Projects[i].ID = uuid.NewString()
			stats.IDsAssigned++
		}
	}

	if err := idx.indexProfiles(ctx, ds, workers, stats, fail); err != nil {
		return nil, err
	}

	for _, c := range ds.Collaborations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := idx.target.RecordCollaboration(ctx, c.DeveloperA, c.DeveloperB, c.Score); err != nil {
			fail(fmt.Sprintf("collaboration %s/%s", c.DeveloperA, c.DeveloperB), err)
			continue
		}
		stats.CollaborationsStored++
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("ingest completed",
		zap.Int("skills", stats.SkillsStored),
		zap.Int("edges", stats.EdgesStored),
		zap.Int("developers", stats.DevelopersIndexed),
		zap.Int("projects", stats.ProjectsIndexed),
		zap.Int("collaborations", stats.CollaborationsStored),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// indexProfiles upserts developers and projects through a bounded worker pool.
// Each upsert embeds the record, which dominates ingest time.
func (idx *Indexer) indexProfiles(ctx context.Context, ds *Dataset, workers int, stats *Statistics, fail func(string, error)) error {
	var developers, projects, notEmbedded int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range ds.Developers {
		d := &ds.Developers[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := idx.target.UpsertDeveloper(gctx, d)
			if err != nil {
				fail(fmt.Sprintf("developer %s", d.ID), err)
				return nil
			}
			atomic.AddInt32(&developers, 1)
			if !res.Embedded {
				atomic.AddInt32(&notEmbedded, 1)
			}
			return nil
		})
	}

	for i := range ds.Projects {
		p := &ds.Projects[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := idx.target.UpsertProject(gctx, p)
			if err != nil {
				fail(fmt.Sprintf("project %s", p.ID), err)
				return nil
			}
			atomic.AddInt32(&projects, 1)
			if !res.Embedded {
				atomic.AddInt32(&notEmbedded, 1)
			}
			return nil
		})
	}

	// Wait for all goroutines to complete
	if err := g.Wait(); err != nil {
		return err
	}

	stats.DevelopersIndexed = int(developers)
	stats.ProjectsIndexed = int(projects)
	stats.NotEmbedded = int(notEmbedded)
	return nil
}
