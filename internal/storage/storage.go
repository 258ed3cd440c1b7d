package storage

import (
	"context"

	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// Storage defines the interface for persisting profiles, the skill graph and
// entity embeddings
type Storage interface {
	// Skill graph operations
	UpsertSkill(ctx context.Context, skill *types.SkillNode) error
	GetSkills(ctx context.Context, names []string) (map[string]types.SkillNode, error)
	UpsertSkillEdge(ctx context.Context, edge *types.SkillEdge) error
	ListEdgesFrom(ctx context.Context, sources []string, minStrength float64) ([]types.SkillEdge, error)

	// Developer operations
	UpsertDeveloper(ctx context.Context, dev *types.Developer) error
	GetDeveloper(ctx context.Context, id string) (*types.Developer, error)
	GetDevelopers(ctx context.Context, ids []string) (map[string]*types.Developer, error)
	DeleteDeveloper(ctx context.Context, id string) error
	ListDeveloperSkills(ctx context.Context, developerID string) ([]types.DeveloperSkill, error)
	ListDevelopersBySkills(ctx context.Context, skills []string, excludeIDs []string) ([]*types.Developer, error)

	// Project operations
	UpsertProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetProjects(ctx context.Context, ids []string) (map[string]*types.Project, error)
	DeleteProject(ctx context.Context, id string) error

	// Embedding operations
	UpsertEmbeddings(ctx context.Context, emb *types.MultiAspectEmbedding) error
	GetEmbeddings(ctx context.Context, kind types.EntityKind, id string) (*types.MultiAspectEmbedding, error)
	DeleteEmbeddings(ctx context.Context, kind types.EntityKind, id string) error

	// Search operations
	SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]similarity.Match, error)

	// Collaboration history
	UpsertCollaboration(ctx context.Context, developerA, developerB string, score float64) error
	CollaborationScore(ctx context.Context, developerA, developerB string) (float64, bool, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Status contains row counts and health of the store
type Status struct {
	SchemaVersion   string
	BuildMode       string
	Developers      int
	Projects        int
	Skills          int
	SkillEdges      int
	Embeddings      int
	Collaborations  int
	DatabaseSizeMB  float64
	Health          HealthStatus
	VectorModel     string
	VectorDimension int
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible       bool
	EmbeddingsAvailable      bool
	VectorExtensionAvailable bool
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithVectorModel restricts vector search to embeddings produced by model.
// Vectors from different models are not comparable.
func WithVectorModel(model string) Option {
	return func(s *SQLiteStorage) {
		s.vectorModel = model
	}
}
