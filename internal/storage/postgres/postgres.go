// Package postgres mirrors combined entity vectors into PostgreSQL with the
// pgvector extension and serves similarity search from it.
//
// The relational data (profiles, skill graph, history) stays in SQLite; only
// the combined vectors live here. Zero vectors are not indexed because cosine
// distance is undefined for them.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// VectorStore keeps one combined vector per (entity kind, entity id, model)
type VectorStore struct {
	db        *sql.DB
	dimension int
	model     string
}

// Open connects to dsn and creates the vector table if needed
func Open(ctx context.Context, dsn string, dimension int, model string) (*VectorStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	s, err := New(db, dimension, model)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle
func New(db *sql.DB, dimension int, model string) (*VectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrDimensionMismatch, dimension)
	}
	return &VectorStore{db: db, dimension: dimension, model: model}, nil
}

// Migrate creates the pgvector extension, table and HNSW index
func (s *VectorStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStatements(s.dimension) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate vector schema")
		}
	}
	return nil
}

func migrationStatements(dimension int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS entity_embedding (
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding vector(` + strconv.Itoa(dimension) + `) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (entity_kind, entity_id, model)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_embedding_hnsw
			ON entity_embedding USING hnsw (embedding vector_cosine_ops)`,
	}
}

// Close closes the database handle
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// Upsert stores the combined vector of an entity. A zero vector removes the
// entity from the index instead.
func (s *VectorStore) Upsert(ctx context.Context, kind types.EntityKind, id string, vector []float32) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", types.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if isZero(vector) {
		return s.Delete(ctx, kind, id)
	}

	stmt := `
		INSERT INTO entity_embedding (entity_kind, entity_id, model, embedding, updated_at)
		VALUES (` + placeholders(4) + `, now())
		ON CONFLICT (entity_kind, entity_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, stmt, string(kind), id, s.model, pgvector.NewVector(vector))
	if err != nil {
		return errors.Wrap(err, "failed to upsert entity embedding")
	}
	return nil
}

// Delete removes an entity's vector for the configured model
func (s *VectorStore) Delete(ctx context.Context, kind types.EntityKind, id string) error {
	stmt := `DELETE FROM entity_embedding WHERE entity_kind = ` + placeholder(1) +
		` AND entity_id = ` + placeholder(2) + ` AND model = ` + placeholder(3)
	if _, err := s.db.ExecContext(ctx, stmt, string(kind), id, s.model); err != nil {
		return errors.Wrap(err, "failed to delete entity embedding")
	}
	return nil
}

// DeleteMany removes the vectors of several entities at once
func (s *VectorStore) DeleteMany(ctx context.Context, kind types.EntityKind, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	stmt := `DELETE FROM entity_embedding WHERE entity_kind = ` + placeholder(1) +
		` AND model = ` + placeholder(2) + ` AND entity_id = ANY(` + placeholder(3) + `)`
	result, err := s.db.ExecContext(ctx, stmt, string(kind), s.model, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete entity embeddings")
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// SearchVectors implements similarity.Backend. The inner query walks the HNSW
// index by cosine distance; the outer query applies the threshold and the
// score-then-id ordering.
func (s *VectorStore) SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]similarity.Match, error) {
	if len(query) != s.dimension || isZero(query) {
		return []similarity.Match{}, nil
	}

	stmt, args := buildSearchQuery(kind, s.model, pgvector.NewVector(query), threshold, limit)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search entity embeddings")
	}
	defer rows.Close()

	matches := []similarity.Match{}
	for rows.Next() {
		var m similarity.Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan entity embedding match")
		}
		if m.Score > 1 {
			m.Score = 1
		} else if m.Score < -1 {
			m.Score = -1
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	similarity.SortMatches(matches)
	return matches, nil
}

// buildSearchQuery returns the search statement and its arguments. The <=>
// operator computes cosine distance (1 - cosine similarity).
func buildSearchQuery(kind types.EntityKind, model string, vector pgvector.Vector, threshold float64, limit int) (string, []any) {
	args := []any{vector, string(kind), model}
	inner := `
		SELECT entity_id, 1 - (embedding <=> ` + placeholder(1) + `) AS score
		FROM entity_embedding
		WHERE entity_kind = ` + placeholder(2) + ` AND model = ` + placeholder(3) + `
		ORDER BY embedding <=> ` + placeholder(1)
	if limit > 0 {
		args = append(args, limit)
		inner += `
		LIMIT ` + placeholder(len(args))
	}

	args = append(args, threshold)
	stmt := `
		SELECT entity_id, score FROM (` + inner + `
		) candidates
		WHERE score >= ` + placeholder(len(args)) + `
		ORDER BY score DESC, entity_id ASC`
	return stmt, args
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
