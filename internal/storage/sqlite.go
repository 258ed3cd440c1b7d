package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrSameDeveloper is returned when a collaboration pairs a developer with itself
	ErrSameDeveloper = errors.New("collaboration requires two distinct developers")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db          *sql.DB
	vectorModel string
}

// busyTimeoutMs is how long a writer waits on a locked database
const busyTimeoutMs = "5000"

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, driverDSN(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStorage{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// withTx runs fn inside a new transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// placeholders returns "?, ?, ..." with n markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// Skill graph operations

// upsertSkillWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertSkillWithQuerier(ctx context.Context, q querier, skill *types.SkillNode) error {
	name := types.NormalizeSkill(skill.Name)
	if name == "" {
		return types.ErrEmptySkillName
	}
	query := `
		INSERT INTO skills (name, category, popularity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			popularity = excluded.popularity,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := q.ExecContext(ctx, query, name, string(skill.Category), skill.Popularity, now, now); err != nil {
		return fmt.Errorf("failed to upsert skill: %w", err)
	}
	skill.Name = name
	return nil
}

func (s *SQLiteStorage) UpsertSkill(ctx context.Context, skill *types.SkillNode) error {
	return s.upsertSkillWithQuerier(ctx, s.querier(), skill)
}

// getSkillsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSkillsWithQuerier(ctx context.Context, q querier, names []string) (map[string]types.SkillNode, error) {
	names = types.NormalizeSkills(names)
	result := make(map[string]types.SkillNode, len(names))
	if len(names) == 0 {
		return result, nil
	}

	query := `SELECT name, category, popularity FROM skills WHERE name IN (` + placeholders(len(names)) + `)`
	rows, err := q.QueryContext(ctx, query, stringArgs(names)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var node types.SkillNode
		var category string
		if err := rows.Scan(&node.Name, &category, &node.Popularity); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		node.Category = types.SkillCategory(category)
		result[node.Name] = node
	}
	return result, rows.Err()
}

func (s *SQLiteStorage) GetSkills(ctx context.Context, names []string) (map[string]types.SkillNode, error) {
	return s.getSkillsWithQuerier(ctx, s.querier(), names)
}

// upsertSkillEdgeWithQuerier creates missing endpoint skills, then upserts the edge
func (s *SQLiteStorage) upsertSkillEdgeWithQuerier(ctx context.Context, q querier, edge *types.SkillEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	source := types.NormalizeSkill(edge.Source)
	target := types.NormalizeSkill(edge.Target)

	for _, name := range []string{source, target} {
		if _, err := q.ExecContext(ctx, `INSERT INTO skills (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("failed to ensure skill %s: %w", name, err)
		}
	}

	query := `
		INSERT INTO skill_edges (source, target, edge_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, target, edge_type) DO UPDATE SET
			strength = excluded.strength
	`
	if _, err := q.ExecContext(ctx, query, source, target, string(edge.Type), edge.Strength, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert skill edge: %w", err)
	}
	edge.Source, edge.Target = source, target
	return nil
}

func (s *SQLiteStorage) UpsertSkillEdge(ctx context.Context, edge *types.SkillEdge) error {
	return s.upsertSkillEdgeWithQuerier(ctx, s.querier(), edge)
}

// listEdgesFromWithQuerier returns outgoing edges of sources with strength >= minStrength
func (s *SQLiteStorage) listEdgesFromWithQuerier(ctx context.Context, q querier, sources []string, minStrength float64) ([]types.SkillEdge, error) {
	sources = types.NormalizeSkills(sources)
	if len(sources) == 0 {
		return []types.SkillEdge{}, nil
	}

	query := `
		SELECT source, target, edge_type, strength
		FROM skill_edges
		WHERE source IN (` + placeholders(len(sources)) + `) AND strength >= ?
		ORDER BY source, strength DESC, target, edge_type
	`
	args := append(stringArgs(sources), minStrength)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skill edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	edges := make([]types.SkillEdge, 0)
	for rows.Next() {
		var e types.SkillEdge
		var edgeType string
		if err := rows.Scan(&e.Source, &e.Target, &edgeType, &e.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan skill edge: %w", err)
		}
		e.Type = types.EdgeType(edgeType)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLiteStorage) ListEdgesFrom(ctx context.Context, sources []string, minStrength float64) ([]types.SkillEdge, error) {
	return s.listEdgesFromWithQuerier(ctx, s.querier(), sources, minStrength)
}

// Developer operations

// upsertDeveloperWithQuerier replaces the developer row and its skill edges
func (s *SQLiteStorage) upsertDeveloperWithQuerier(ctx context.Context, q querier, dev *types.Developer) error {
	if err := dev.Validate(); err != nil {
		return err
	}
	dev.Normalize()

	languages, err := json.Marshal(dev.Languages)
	if err != nil {
		return fmt.Errorf("failed to encode languages: %w", err)
	}

	query := `
		INSERT INTO developers (id, name, title, bio, experience_summary, github_summary,
		                        languages, availability, reputation, hourly_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			title = excluded.title,
			bio = excluded.bio,
			experience_summary = excluded.experience_summary,
			github_summary = excluded.github_summary,
			languages = excluded.languages,
			availability = excluded.availability,
			reputation = excluded.reputation,
			hourly_rate = excluded.hourly_rate,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err = q.ExecContext(ctx, query,
		dev.ID, dev.Name, dev.Title, dev.Bio, dev.ExperienceSummary, dev.GitHubSummary,
		string(languages), string(dev.Availability), dev.Reputation, dev.HourlyRate, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert developer: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM developer_skills WHERE developer_id = ?`, dev.ID); err != nil {
		return fmt.Errorf("failed to clear developer skills: %w", err)
	}
	for _, skill := range dev.Skills {
		_, err := q.ExecContext(ctx, `
			INSERT INTO developer_skills (developer_id, skill, proficiency, experience_years)
			VALUES (?, ?, ?, ?)
		`, dev.ID, skill.Skill, skill.Proficiency, skill.ExperienceYears)
		if err != nil {
			return fmt.Errorf("failed to insert developer skill %s: %w", skill.Skill, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) UpsertDeveloper(ctx context.Context, dev *types.Developer) error {
	return s.withTx(ctx, func(q querier) error {
		return s.upsertDeveloperWithQuerier(ctx, q, dev)
	})
}

// getDevelopersWithQuerier loads developers and their skills; unknown ids are omitted
func (s *SQLiteStorage) getDevelopersWithQuerier(ctx context.Context, q querier, ids []string) (map[string]*types.Developer, error) {
	result := make(map[string]*types.Developer, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	in := placeholders(len(ids))

	rows, err := q.QueryContext(ctx, `
		SELECT id, name, title, bio, experience_summary, github_summary,
		       languages, availability, reputation, hourly_rate
		FROM developers
		WHERE id IN (`+in+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query developers: %w", err)
	}
	for rows.Next() {
		var dev types.Developer
		var languages, availability string
		if err := rows.Scan(&dev.ID, &dev.Name, &dev.Title, &dev.Bio, &dev.ExperienceSummary,
			&dev.GitHubSummary, &languages, &availability, &dev.Reputation, &dev.HourlyRate); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan developer: %w", err)
		}
		if err := json.Unmarshal([]byte(languages), &dev.Languages); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to decode languages for %s: %w", dev.ID, err)
		}
		dev.Availability = types.Availability(availability)
		dev.Skills = []types.DeveloperSkill{}
		result[dev.ID] = &dev
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	skillRows, err := q.QueryContext(ctx, `
		SELECT developer_id, skill, proficiency, experience_years
		FROM developer_skills
		WHERE developer_id IN (`+in+`)
		ORDER BY developer_id, skill
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query developer skills: %w", err)
	}
	defer func() { _ = skillRows.Close() }()

	for skillRows.Next() {
		var id string
		var skill types.DeveloperSkill
		if err := skillRows.Scan(&id, &skill.Skill, &skill.Proficiency, &skill.ExperienceYears); err != nil {
			return nil, fmt.Errorf("failed to scan developer skill: %w", err)
		}
		if dev, ok := result[id]; ok {
			dev.Skills = append(dev.Skills, skill)
		}
	}
	return result, skillRows.Err()
}

func (s *SQLiteStorage) GetDevelopers(ctx context.Context, ids []string) (map[string]*types.Developer, error) {
	return s.getDevelopersWithQuerier(ctx, s.querier(), ids)
}

func (s *SQLiteStorage) GetDeveloper(ctx context.Context, id string) (*types.Developer, error) {
	devs, err := s.getDevelopersWithQuerier(ctx, s.querier(), []string{id})
	if err != nil {
		return nil, err
	}
	dev, ok := devs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return dev, nil
}

// deleteDeveloperWithQuerier removes the developer, its skills, embeddings and collaborations
func (s *SQLiteStorage) deleteDeveloperWithQuerier(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM developers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete developer: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := s.deleteEmbeddingsWithQuerier(ctx, q, types.EntityDeveloper, id); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `DELETE FROM collaborations WHERE developer_a = ? OR developer_b = ?`, id, id)
	if err != nil {
		return fmt.Errorf("failed to delete collaborations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteDeveloper(ctx context.Context, id string) error {
	return s.withTx(ctx, func(q querier) error {
		return s.deleteDeveloperWithQuerier(ctx, q, id)
	})
}

// listDeveloperSkillsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listDeveloperSkillsWithQuerier(ctx context.Context, q querier, developerID string) ([]types.DeveloperSkill, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT skill, proficiency, experience_years
		FROM developer_skills
		WHERE developer_id = ?
		ORDER BY skill
	`, developerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query developer skills: %w", err)
	}
	defer func() { _ = rows.Close() }()

	skills := make([]types.DeveloperSkill, 0)
	for rows.Next() {
		var skill types.DeveloperSkill
		if err := rows.Scan(&skill.Skill, &skill.Proficiency, &skill.ExperienceYears); err != nil {
			return nil, fmt.Errorf("failed to scan developer skill: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

func (s *SQLiteStorage) ListDeveloperSkills(ctx context.Context, developerID string) ([]types.DeveloperSkill, error) {
	return s.listDeveloperSkillsWithQuerier(ctx, s.querier(), developerID)
}

// listDevelopersBySkillsWithQuerier returns developers holding at least one of
// skills, ordered by id
func (s *SQLiteStorage) listDevelopersBySkillsWithQuerier(ctx context.Context, q querier, skills []string, excludeIDs []string) ([]*types.Developer, error) {
	skills = types.NormalizeSkills(skills)
	if len(skills) == 0 {
		return []*types.Developer{}, nil
	}

	query := `SELECT DISTINCT developer_id FROM developer_skills WHERE skill IN (` + placeholders(len(skills)) + `)`
	args := stringArgs(skills)
	if len(excludeIDs) > 0 {
		query += ` AND developer_id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		args = append(args, stringArgs(excludeIDs)...)
	}
	query += ` ORDER BY developer_id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query developers by skill: %w", err)
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan developer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	devs, err := s.getDevelopersWithQuerier(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Developer, 0, len(ids))
	for _, id := range ids {
		if dev, ok := devs[id]; ok {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (s *SQLiteStorage) ListDevelopersBySkills(ctx context.Context, skills []string, excludeIDs []string) ([]*types.Developer, error) {
	return s.listDevelopersBySkillsWithQuerier(ctx, s.querier(), skills, excludeIDs)
}

// Project operations

// upsertProjectWithQuerier replaces the project row and its requirements
func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *types.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}
	project.Normalize()

	query := `
		INSERT INTO projects (id, title, description, domain, industry, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			domain = excluded.domain,
			industry = excluded.industry,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query, project.ID, project.Title, project.Description,
		project.Domain, project.Industry, project.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM project_skills WHERE project_id = ?`, project.ID); err != nil {
		return fmt.Errorf("failed to clear project skills: %w", err)
	}
	for i, skill := range project.Skills {
		_, err := q.ExecContext(ctx, `
			INSERT INTO project_skills (project_id, skill, required_level, importance, weight, position)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, skill) DO NOTHING
		`, project.ID, skill.Skill, skill.RequiredLevel, string(skill.Importance), skill.Weight, i)
		if err != nil {
			return fmt.Errorf("failed to insert project skill %s: %w", skill.Skill, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *types.Project) error {
	return s.withTx(ctx, func(q querier) error {
		return s.upsertProjectWithQuerier(ctx, q, project)
	})
}

// getProjectsWithQuerier loads projects and their requirements; unknown ids are omitted
func (s *SQLiteStorage) getProjectsWithQuerier(ctx context.Context, q querier, ids []string) (map[string]*types.Project, error) {
	result := make(map[string]*types.Project, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	in := placeholders(len(ids))

	rows, err := q.QueryContext(ctx, `
		SELECT id, title, description, domain, industry, status
		FROM projects
		WHERE id IN (`+in+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Domain, &p.Industry, &p.Status); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Skills = []types.ProjectSkill{}
		result[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	skillRows, err := q.QueryContext(ctx, `
		SELECT project_id, skill, required_level, importance, weight
		FROM project_skills
		WHERE project_id IN (`+in+`)
		ORDER BY project_id, position
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query project skills: %w", err)
	}
	defer func() { _ = skillRows.Close() }()

	for skillRows.Next() {
		var id, importance string
		var skill types.ProjectSkill
		if err := skillRows.Scan(&id, &skill.Skill, &skill.RequiredLevel, &importance, &skill.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan project skill: %w", err)
		}
		skill.Importance = types.Importance(importance)
		if p, ok := result[id]; ok {
			p.Skills = append(p.Skills, skill)
		}
	}
	return result, skillRows.Err()
}

func (s *SQLiteStorage) GetProjects(ctx context.Context, ids []string) (map[string]*types.Project, error) {
	return s.getProjectsWithQuerier(ctx, s.querier(), ids)
}

func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*types.Project, error) {
	projects, err := s.getProjectsWithQuerier(ctx, s.querier(), []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// deleteProjectWithQuerier removes the project, its requirements and embeddings
func (s *SQLiteStorage) deleteProjectWithQuerier(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.deleteEmbeddingsWithQuerier(ctx, q, types.EntityProject, id)
}

func (s *SQLiteStorage) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(q querier) error {
		return s.deleteProjectWithQuerier(ctx, q, id)
	})
}

// Embedding operations

// upsertEmbeddingsWithQuerier replaces every stored vector of the entity with
// the aspects and combined vector of emb
func (s *SQLiteStorage) upsertEmbeddingsWithQuerier(ctx context.Context, q querier, emb *types.MultiAspectEmbedding) error {
	if emb == nil || emb.EntityID == "" {
		return types.ErrMissingID
	}
	if err := s.deleteEmbeddingsWithQuerier(ctx, q, emb.EntityKind, emb.EntityID); err != nil {
		return err
	}

	query := `
		INSERT INTO embeddings (entity_kind, entity_id, aspect, vector, dimension, is_zero,
		                        provider, model, norm_version, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()

	aspects := make([]types.Aspect, 0, len(emb.Aspects))
	for aspect := range emb.Aspects {
		aspects = append(aspects, aspect)
	}
	sort.Slice(aspects, func(i, j int) bool { return aspects[i] < aspects[j] })

	var provider, model string
	for _, aspect := range aspects {
		e := emb.Aspects[aspect]
		if e == nil {
			continue
		}
		if model == "" {
			provider, model = e.Provider, e.Model
		}
		_, err := q.ExecContext(ctx, query,
			string(emb.EntityKind), emb.EntityID, string(aspect), serializeVector(e.Vector),
			len(e.Vector), boolToInt(e.IsZero()), e.Provider, e.Model, e.NormVersion, e.Hash, now)
		if err != nil {
			return fmt.Errorf("failed to insert %s embedding: %w", aspect, err)
		}
	}

	if len(emb.Combined) > 0 {
		_, err := q.ExecContext(ctx, query,
			string(emb.EntityKind), emb.EntityID, string(types.AspectCombined), serializeVector(emb.Combined),
			len(emb.Combined), boolToInt(isZeroVector(emb.Combined)), provider, model, types.NormVersion, "", now)
		if err != nil {
			return fmt.Errorf("failed to insert combined embedding: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) UpsertEmbeddings(ctx context.Context, emb *types.MultiAspectEmbedding) error {
	return s.withTx(ctx, func(q querier) error {
		return s.upsertEmbeddingsWithQuerier(ctx, q, emb)
	})
}

// getEmbeddingsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingsWithQuerier(ctx context.Context, q querier, kind types.EntityKind, id string) (*types.MultiAspectEmbedding, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT aspect, vector, dimension, provider, model, norm_version, content_hash
		FROM embeddings
		WHERE entity_kind = ? AND entity_id = ?
		ORDER BY aspect
	`, string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &types.MultiAspectEmbedding{
		EntityKind: kind,
		EntityID:   id,
		Aspects:    make(map[types.Aspect]*types.Embedding),
	}
	found := false
	for rows.Next() {
		found = true
		var aspect string
		var blob []byte
		e := &types.Embedding{ContentID: id}
		if err := rows.Scan(&aspect, &blob, &e.Dimension, &e.Provider, &e.Model, &e.NormVersion, &e.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Vector = deserializeVector(blob)
		e.ContentType = types.Aspect(aspect)
		if e.ContentType == types.AspectCombined {
			result.Combined = e.Vector
			continue
		}
		result.Aspects[e.ContentType] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return result, nil
}

func (s *SQLiteStorage) GetEmbeddings(ctx context.Context, kind types.EntityKind, id string) (*types.MultiAspectEmbedding, error) {
	return s.getEmbeddingsWithQuerier(ctx, s.querier(), kind, id)
}

// deleteEmbeddingsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteEmbeddingsWithQuerier(ctx context.Context, q querier, kind types.EntityKind, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_kind = ? AND entity_id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteEmbeddings(ctx context.Context, kind types.EntityKind, id string) error {
	return s.deleteEmbeddingsWithQuerier(ctx, s.querier(), kind, id)
}

// Search operations

// SearchVectors implements similarity.Backend over the stored combined vectors
func (s *SQLiteStorage) SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]similarity.Match, error) {
	return searchVectors(ctx, s.querier(), kind, query, threshold, limit, s.vectorModel)
}

// Collaboration history

// collaborationPair orders a pair so that a < b
func collaborationPair(a, b string) (string, string, error) {
	if a == b {
		return "", "", ErrSameDeveloper
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

// upsertCollaborationWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertCollaborationWithQuerier(ctx context.Context, q querier, developerA, developerB string, score float64) error {
	a, b, err := collaborationPair(developerA, developerB)
	if err != nil {
		return err
	}
	if score < 0 || score > 1 {
		return types.ErrInvalidScore
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO collaborations (developer_a, developer_b, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(developer_a, developer_b) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`, a, b, score, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert collaboration: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertCollaboration(ctx context.Context, developerA, developerB string, score float64) error {
	return s.upsertCollaborationWithQuerier(ctx, s.querier(), developerA, developerB, score)
}

// collaborationScoreWithQuerier returns the recorded score of the pair and
// whether one exists
func (s *SQLiteStorage) collaborationScoreWithQuerier(ctx context.Context, q querier, developerA, developerB string) (float64, bool, error) {
	a, b, err := collaborationPair(developerA, developerB)
	if err != nil {
		return 0, false, err
	}
	var score float64
	err = q.QueryRowContext(ctx, `SELECT score FROM collaborations WHERE developer_a = ? AND developer_b = ?`, a, b).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query collaboration: %w", err)
	}
	return score, true, nil
}

func (s *SQLiteStorage) CollaborationScore(ctx context.Context, developerA, developerB string) (float64, bool, error) {
	return s.collaborationScoreWithQuerier(ctx, s.querier(), developerA, developerB)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		BuildMode:   BuildMode,
		VectorModel: s.vectorModel,
	}

	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&status.SchemaVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM developers", &status.Developers},
		{"SELECT COUNT(*) FROM projects", &status.Projects},
		{"SELECT COUNT(*) FROM skills", &status.Skills},
		{"SELECT COUNT(*) FROM skill_edges", &status.SkillEdges},
		{"SELECT COUNT(*) FROM embeddings", &status.Embeddings},
		{"SELECT COUNT(*) FROM collaborations", &status.Collaborations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT dimension FROM embeddings WHERE aspect = ? ORDER BY created_at DESC LIMIT 1",
		string(types.AspectCombined)).Scan(&status.VectorDimension)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:       true,
		EmbeddingsAvailable:      status.Embeddings > 0,
		VectorExtensionAvailable: VectorExtensionAvailable,
	}

	return status, nil
}

// Transaction implementations

// Every operation runs on the transaction's querier so reads observe
// uncommitted writes of the same transaction.

func (t *sqliteTx) UpsertSkill(ctx context.Context, skill *types.SkillNode) error {
	return t.storage.upsertSkillWithQuerier(ctx, t.querier(), skill)
}

func (t *sqliteTx) GetSkills(ctx context.Context, names []string) (map[string]types.SkillNode, error) {
	return t.storage.getSkillsWithQuerier(ctx, t.querier(), names)
}

func (t *sqliteTx) UpsertSkillEdge(ctx context.Context, edge *types.SkillEdge) error {
	return t.storage.upsertSkillEdgeWithQuerier(ctx, t.querier(), edge)
}

func (t *sqliteTx) ListEdgesFrom(ctx context.Context, sources []string, minStrength float64) ([]types.SkillEdge, error) {
	return t.storage.listEdgesFromWithQuerier(ctx, t.querier(), sources, minStrength)
}

func (t *sqliteTx) UpsertDeveloper(ctx context.Context, dev *types.Developer) error {
	return t.storage.upsertDeveloperWithQuerier(ctx, t.querier(), dev)
}

func (t *sqliteTx) GetDeveloper(ctx context.Context, id string) (*types.Developer, error) {
	devs, err := t.storage.getDevelopersWithQuerier(ctx, t.querier(), []string{id})
	if err != nil {
		return nil, err
	}
	dev, ok := devs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return dev, nil
}

func (t *sqliteTx) GetDevelopers(ctx context.Context, ids []string) (map[string]*types.Developer, error) {
	return t.storage.getDevelopersWithQuerier(ctx, t.querier(), ids)
}

func (t *sqliteTx) DeleteDeveloper(ctx context.Context, id string) error {
	return t.storage.deleteDeveloperWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListDeveloperSkills(ctx context.Context, developerID string) ([]types.DeveloperSkill, error) {
	return t.storage.listDeveloperSkillsWithQuerier(ctx, t.querier(), developerID)
}

func (t *sqliteTx) ListDevelopersBySkills(ctx context.Context, skills []string, excludeIDs []string) ([]*types.Developer, error) {
	return t.storage.listDevelopersBySkillsWithQuerier(ctx, t.querier(), skills, excludeIDs)
}

func (t *sqliteTx) UpsertProject(ctx context.Context, project *types.Project) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, id string) (*types.Project, error) {
	projects, err := t.storage.getProjectsWithQuerier(ctx, t.querier(), []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (t *sqliteTx) GetProjects(ctx context.Context, ids []string) (map[string]*types.Project, error) {
	return t.storage.getProjectsWithQuerier(ctx, t.querier(), ids)
}

func (t *sqliteTx) DeleteProject(ctx context.Context, id string) error {
	return t.storage.deleteProjectWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) UpsertEmbeddings(ctx context.Context, emb *types.MultiAspectEmbedding) error {
	return t.storage.upsertEmbeddingsWithQuerier(ctx, t.querier(), emb)
}

func (t *sqliteTx) GetEmbeddings(ctx context.Context, kind types.EntityKind, id string) (*types.MultiAspectEmbedding, error) {
	return t.storage.getEmbeddingsWithQuerier(ctx, t.querier(), kind, id)
}

func (t *sqliteTx) DeleteEmbeddings(ctx context.Context, kind types.EntityKind, id string) error {
	return t.storage.deleteEmbeddingsWithQuerier(ctx, t.querier(), kind, id)
}

func (t *sqliteTx) SearchVectors(ctx context.Context, kind types.EntityKind, query []float32, threshold float64, limit int) ([]similarity.Match, error) {
	return searchVectors(ctx, t.querier(), kind, query, threshold, limit, t.storage.vectorModel)
}

func (t *sqliteTx) UpsertCollaboration(ctx context.Context, developerA, developerB string, score float64) error {
	return t.storage.upsertCollaborationWithQuerier(ctx, t.querier(), developerA, developerB, score)
}

func (t *sqliteTx) CollaborationScore(ctx context.Context, developerA, developerB string) (float64, bool, error) {
	return t.storage.collaborationScoreWithQuerier(ctx, t.querier(), developerA, developerB)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return nil, errors.New("status is not available inside a transaction")
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
