package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/devmatch-mcp/internal/compat"
	"github.com/dshills/devmatch-mcp/internal/config"
	"github.com/dshills/devmatch-mcp/internal/embedder"
	"github.com/dshills/devmatch-mcp/internal/engine"
	"github.com/dshills/devmatch-mcp/internal/indexer"
	"github.com/dshills/devmatch-mcp/internal/matcher"
	"github.com/dshills/devmatch-mcp/internal/storage"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// mockEngine implements Engine with overridable behavior
type mockEngine struct {
	embedFunc    func(ctx context.Context, text string, aspect types.Aspect, useCache bool) (*types.Embedding, error)
	devMatchFunc func(ctx context.Context, project *types.Project, limit int, includeAnalysis bool) (*matcher.Response, error)
	compatFunc   func(ctx context.Context, developerID string, required []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error)
	teamFunc     func(ctx context.Context, required []string, size int, exclude []string) (*types.TeamComposition, error)
	upsertFunc   func(ctx context.Context, dev *types.Developer) (*engine.UpsertResult, error)
	deleted      []string
}

func (m *mockEngine) GenerateEmbedding(ctx context.Context, text string, aspect types.Aspect, useCache bool) (*types.Embedding, error) {
	return m.embedFunc(ctx, text, aspect, useCache)
}

func (m *mockEngine) GenerateDeveloperProfileEmbedding(ctx context.Context, dev *types.Developer) (*types.MultiAspectEmbedding, error) {
	return &types.MultiAspectEmbedding{
		EntityKind: types.EntityDeveloper,
		EntityID:   dev.ID,
		Aspects:    map[types.Aspect]*types.Embedding{types.AspectSkills: {Vector: []float32{1, 0}}},
		Combined:   []float32{1, 0},
		Degraded:   []types.Aspect{types.AspectGitHub},
	}, nil
}

func (m *mockEngine) GenerateProjectRequirementEmbedding(ctx context.Context, project *types.Project) (*types.MultiAspectEmbedding, error) {
	return &types.MultiAspectEmbedding{EntityKind: types.EntityProject, EntityID: project.ID, Combined: []float32{0, 1}}, nil
}

func (m *mockEngine) FindMatchingDevelopers(ctx context.Context, project *types.Project, limit int, includeAnalysis bool) (*matcher.Response, error) {
	return m.devMatchFunc(ctx, project, limit, includeAnalysis)
}

func (m *mockEngine) FindMatchingProjects(ctx context.Context, developer *types.Developer, limit int, includeAnalysis bool) (*matcher.Response, error) {
	return &matcher.Response{QueryType: matcher.QueryProjectsForDeveloper, SubjectID: developer.ID}, nil
}

func (m *mockEngine) CalculateSkillCompatibility(ctx context.Context, developerID string, required []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error) {
	return m.compatFunc(ctx, developerID, required, weights)
}

func (m *mockEngine) FindOptimalTeam(ctx context.Context, required []string, size int, exclude []string) (*types.TeamComposition, error) {
	return m.teamFunc(ctx, required, size, exclude)
}

func (m *mockEngine) UpsertDeveloper(ctx context.Context, dev *types.Developer) (*engine.UpsertResult, error) {
	return m.upsertFunc(ctx, dev)
}

func (m *mockEngine) UpsertProject(ctx context.Context, project *types.Project) (*engine.UpsertResult, error) {
	return &engine.UpsertResult{EntityKind: types.EntityProject, ID: project.ID, Embedded: true}, nil
}

func (m *mockEngine) DeleteDeveloper(ctx context.Context, id string) error {
	if id == "missing" {
		return types.ErrNotFound
	}
	m.deleted = append(m.deleted, "developer:"+id)
	return nil
}

func (m *mockEngine) DeleteProject(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, "project:"+id)
	return nil
}

func (m *mockEngine) Status(ctx context.Context) (*engine.Status, error) {
	return &engine.Status{
		Storage:  &storage.Status{Developers: 3, Projects: 2},
		Provider: "local",
		Model:    "local-hash-v1",
	}, nil
}

// mockIngester records the dataset it received
type mockIngester struct {
	dataset *indexer.Dataset
	path    string
	err     error
	busy    bool
}

func (m *mockIngester) Ingest(ctx context.Context, ds *indexer.Dataset, cfg *indexer.Config) (*indexer.Statistics, error) {
	m.dataset = ds
	if m.err != nil {
		return nil, m.err
	}
	return &indexer.Statistics{DevelopersIndexed: len(ds.Developers), ErrorMessages: []string{"a", "b", "c", "d", "e", "f"}}, nil
}

func (m *mockIngester) Busy() bool { return m.busy }

func (m *mockIngester) IngestFile(ctx context.Context, path string, cfg *indexer.Config) (*indexer.Statistics, error) {
	m.path = path
	return &indexer.Statistics{SkillsStored: 4}, nil
}

func newTestServer(t *testing.T, eng Engine, idx Ingester) *Server {
	t.Helper()
	s, err := NewServer(eng, idx, nil)
	require.NoError(t, err)
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content")
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)

	tests := []struct {
		name     string
		idx      Ingester
		expected int
	}{
		{name: "with ingester", idx: &mockIngester{}, expected: 10},
		{name: "without ingester", idx: nil, expected: 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &mockEngine{}, tt.idx)
			raw := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

			data, err := json.Marshal(raw)
			require.NoError(t, err)
			var resp struct {
				Result struct {
					Tools []struct {
						Name string `json:"name"`
					} `json:"tools"`
				} `json:"result"`
			}
			require.NoError(t, json.Unmarshal(data, &resp))
			assert.Len(t, resp.Result.Tools, tt.expected)

			names := make([]string, 0, len(resp.Result.Tools))
			for _, tool := range resp.Result.Tools {
				names = append(names, tool.Name)
			}
			sort.Strings(names)
			assert.Contains(t, names, "find_matching_developers")
			assert.Contains(t, names, "find_optimal_team")
		})
	}
}

func TestHandleGenerateEmbedding(t *testing.T) {
	eng := &mockEngine{
		embedFunc: func(ctx context.Context, text string, aspect types.Aspect, useCache bool) (*types.Embedding, error) {
			if text == "down" {
				return nil, types.ErrModelUnavailable
			}
			return &types.Embedding{Vector: []float32{0.6, 0.8}, Dimension: 2, ContentType: aspect, Model: "m", Provider: "p"}, nil
		},
	}
	s := newTestServer(t, eng, nil)
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		res, err := s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{"text": "go", "aspect": "experience"}))
		require.NoError(t, err)
		out := resultJSON(t, res)
		assert.Equal(t, "experience", out["aspect"])
		assert.Equal(t, float64(2), out["dimension"])
		assert.Len(t, out["vector"], 2)
	})

	t.Run("developer profile", func(t *testing.T) {
		res, err := s.handleGenerateEmbedding(ctx, callRequest(map[string]interface{}{
			"developer": map[string]interface{}{"id": "dev-1"},
		}))
		require.NoError(t, err)
		out := resultJSON(t, res)
		assert.Equal(t, "dev-1", out["entity_id"])
		assert.Equal(t, []interface{}{"github"}, out["degraded_aspects"])
	})

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{name: "missing text", args: map[string]interface{}{}, code: ErrorCodeInvalidParams},
		{name: "combined aspect", args: map[string]interface{}{"text": "x", "aspect": "combined"}, code: ErrorCodeInvalidParams},
		{name: "unknown aspect", args: map[string]interface{}{"text": "x", "aspect": "hobbies"}, code: ErrorCodeInvalidParams},
		{name: "model down", args: map[string]interface{}{"text": "down"}, code: ErrorCodeModelUnavailable},
		{name: "unknown developer field", args: map[string]interface{}{"developer": map[string]interface{}{"id": "d", "age": 3}}, code: ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleGenerateEmbedding(ctx, callRequest(tt.args))
			requireMCPCode(t, err, tt.code)
		})
	}
}

func TestHandleFindMatchingDevelopers(t *testing.T) {
	var gotProject *types.Project
	var gotLimit int
	var gotAnalysis bool
	eng := &mockEngine{
		devMatchFunc: func(ctx context.Context, project *types.Project, limit int, includeAnalysis bool) (*matcher.Response, error) {
			gotProject, gotLimit, gotAnalysis = project, limit, includeAnalysis
			return &matcher.Response{
				QueryType: matcher.QueryDevelopersForProject,
				SubjectID: project.ID,
				Results: []types.MatchResult{
					{SubjectID: project.ID, CandidateID: "dev-1", Rank: 1, VectorScore: 0.9, GraphScore: 0.5, FinalScore: 0.7},
				},
				TotalResults: 1,
				Duration:     1500 * time.Millisecond,
			}, nil
		},
	}
	s := newTestServer(t, eng, nil)

	res, err := s.handleFindMatchingDevelopers(context.Background(), callRequest(map[string]interface{}{
		"project": map[string]interface{}{
			"id":     "proj-1",
			"skills": []interface{}{map[string]interface{}{"skill": "Go", "importance": "critical", "weight": 2}},
		},
		"limit":            float64(5),
		"include_analysis": false,
	}))
	require.NoError(t, err)

	require.NotNil(t, gotProject)
	assert.Equal(t, "proj-1", gotProject.ID)
	assert.Equal(t, types.ImportanceCritical, gotProject.Skills[0].Importance)
	assert.Equal(t, 2.0, gotProject.Skills[0].Weight)
	assert.Equal(t, 5, gotLimit)
	assert.False(t, gotAnalysis)

	out := resultJSON(t, res)
	assert.Equal(t, float64(1500), out["duration_ms"])
	assert.NotContains(t, out, "duration")
	assert.Len(t, out["results"], 1)

	t.Run("defaults", func(t *testing.T) {
		_, err := s.handleFindMatchingDevelopers(context.Background(), callRequest(map[string]interface{}{
			"project": map[string]interface{}{"id": "proj-2"},
		}))
		require.NoError(t, err)
		assert.Equal(t, matcher.DefaultLimit, gotLimit)
		assert.True(t, gotAnalysis)
	})

	for _, limit := range []float64{0, 101} {
		_, err := s.handleFindMatchingDevelopers(context.Background(), callRequest(map[string]interface{}{
			"project": map[string]interface{}{"id": "proj-1"},
			"limit":   limit,
		}))
		requireMCPCode(t, err, ErrorCodeInvalidParams)
	}

	_, err = s.handleFindMatchingDevelopers(context.Background(), callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleFindMatchingProjects(t *testing.T) {
	s := newTestServer(t, &mockEngine{}, nil)
	res, err := s.handleFindMatchingProjects(context.Background(), callRequest(map[string]interface{}{
		"developer": map[string]interface{}{"id": "dev-9", "availability": "busy", "reputation": 70},
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, "dev-9", out["subject_id"])
	assert.Equal(t, string(matcher.QueryProjectsForDeveloper), out["query_type"])
}

func TestHandleCalculateSkillCompatibility(t *testing.T) {
	var gotWeights *compat.Weights
	eng := &mockEngine{
		compatFunc: func(ctx context.Context, developerID string, required []string, weights *compat.Weights) (*types.CompatibilityBreakdown, error) {
			gotWeights = weights
			if weights != nil {
				if err := weights.Validate(); err != nil {
					return nil, err
				}
			}
			return &types.CompatibilityBreakdown{DeveloperID: developerID, Total: 0.8, MissingSkills: []string{}}, nil
		},
	}
	s := newTestServer(t, eng, nil)
	ctx := context.Background()

	res, err := s.handleCalculateSkillCompatibility(ctx, callRequest(map[string]interface{}{
		"developer_id":    "dev-1",
		"required_skills": []interface{}{"go", "sql"},
	}))
	require.NoError(t, err)
	assert.Nil(t, gotWeights)
	assert.Equal(t, 0.8, resultJSON(t, res)["total"])

	_, err = s.handleCalculateSkillCompatibility(ctx, callRequest(map[string]interface{}{
		"developer_id":    "dev-1",
		"required_skills": []interface{}{"go"},
		"weights":         map[string]interface{}{"direct": 1.0},
	}))
	require.NoError(t, err)
	require.NotNil(t, gotWeights)
	assert.Equal(t, 1.0, gotWeights.Direct)

	_, err = s.handleCalculateSkillCompatibility(ctx, callRequest(map[string]interface{}{
		"developer_id":    "dev-1",
		"required_skills": []interface{}{"go"},
		"weights":         map[string]interface{}{"direct": 0.9, "related": 0.9},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidWeights)

	_, err = s.handleCalculateSkillCompatibility(ctx, callRequest(map[string]interface{}{
		"required_skills": []interface{}{"go"},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleFindOptimalTeam(t *testing.T) {
	var gotSize int
	var gotExclude []string
	eng := &mockEngine{
		teamFunc: func(ctx context.Context, required []string, size int, exclude []string) (*types.TeamComposition, error) {
			gotSize, gotExclude = size, exclude
			return &types.TeamComposition{
				Team:          []types.TeamMember{{DeveloperID: "dev-1", ContributedSkills: required}},
				CoveredSkills: required,
				MissingSkills: []string{},
				SkillCoverage: 1,
			}, nil
		},
	}
	s := newTestServer(t, eng, nil)

	res, err := s.handleFindOptimalTeam(context.Background(), callRequest(map[string]interface{}{
		"required_skills": []interface{}{"go"},
		"exclude_ids":     []interface{}{"dev-2"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, gotSize)
	assert.Equal(t, []string{"dev-2"}, gotExclude)
	assert.Equal(t, 1.0, resultJSON(t, res)["skill_coverage"])

	_, err = s.handleFindOptimalTeam(context.Background(), callRequest(map[string]interface{}{
		"required_skills": []interface{}{"go"},
		"team_size":       float64(0),
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleUpsertAndDelete(t *testing.T) {
	eng := &mockEngine{
		upsertFunc: func(ctx context.Context, dev *types.Developer) (*engine.UpsertResult, error) {
			if err := dev.Validate(); err != nil {
				return nil, err
			}
			return &engine.UpsertResult{EntityKind: types.EntityDeveloper, ID: dev.ID, Embedded: true}, nil
		},
	}
	s := newTestServer(t, eng, nil)
	ctx := context.Background()

	res, err := s.handleUpsertDeveloper(ctx, callRequest(map[string]interface{}{
		"developer": map[string]interface{}{"id": "dev-1", "reputation": "85"},
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, res)["embedded"])

	_, err = s.handleUpsertDeveloper(ctx, callRequest(map[string]interface{}{
		"developer": map[string]interface{}{"id": "dev-1", "reputation": 150},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	res, err = s.handleUpsertProject(ctx, callRequest(map[string]interface{}{
		"project": map[string]interface{}{"id": "proj-1"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "proj-1", resultJSON(t, res)["id"])

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{name: "developer", args: map[string]interface{}{"entity_kind": "developer", "id": "dev-1"}},
		{name: "project", args: map[string]interface{}{"entity_kind": "project", "id": "proj-1"}},
		{name: "not found", args: map[string]interface{}{"entity_kind": "developer", "id": "missing"}, code: ErrorCodeNotFound},
		{name: "bad kind", args: map[string]interface{}{"entity_kind": "skill", "id": "go"}, code: ErrorCodeInvalidParams},
		{name: "missing id", args: map[string]interface{}{"entity_kind": "project"}, code: ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleDeleteEntity(ctx, callRequest(tt.args))
			if tt.code == 0 {
				assert.NoError(t, err)
				return
			}
			requireMCPCode(t, err, tt.code)
		})
	}
	assert.Equal(t, []string{"developer:dev-1", "project:proj-1"}, eng.deleted)
}

func TestHandleIngestDataset(t *testing.T) {
	idx := &mockIngester{}
	s := newTestServer(t, &mockEngine{}, idx)
	ctx := context.Background()

	res, err := s.handleIngestDataset(ctx, callRequest(map[string]interface{}{
		"dataset": map[string]interface{}{
			"developers": []interface{}{map[string]interface{}{"id": "dev-1"}},
			"collaborations": []interface{}{
				map[string]interface{}{"developer_a": "dev-1", "developer_b": "dev-2", "score": 0.4},
			},
		},
	}))
	require.NoError(t, err)
	require.NotNil(t, idx.dataset)
	assert.Equal(t, 0.4, idx.dataset.Collaborations[0].Score)

	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["developers_indexed"])
	assert.Len(t, out["errors"], 5)
	assert.Equal(t, float64(6), out["error_count"])

	_, err = s.handleIngestDataset(ctx, callRequest(map[string]interface{}{"path": "/data/set.json"}))
	require.NoError(t, err)
	assert.Equal(t, "/data/set.json", idx.path)

	_, err = s.handleIngestDataset(ctx, callRequest(map[string]interface{}{"path": "relative.json"}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIngestDataset(ctx, callRequest(map[string]interface{}{}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	idx.err = indexer.ErrIngestInProgress
	_, err = s.handleIngestDataset(ctx, callRequest(map[string]interface{}{"dataset": map[string]interface{}{}}))
	requireMCPCode(t, err, ErrorCodeIngestInProgress)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t, &mockEngine{}, &mockIngester{busy: true})
	res, err := s.handleGetStatus(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	stats, ok := out["statistics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), stats["developers"])
	emb, ok := out["embedding"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "local-hash-v1", emb["model"])
	assert.Equal(t, true, out["ingest_in_progress"])
}

func TestMCPError(t *testing.T) {
	err := &MCPError{Code: -32602, Message: "invalid params"}
	assert.Equal(t, "MCP error -32602: invalid params", err.Error())
}

// TestServer_EngineRoundTrip drives the tools against a real engine on an
// in-memory store
func TestServer_EngineRoundTrip(t *testing.T) {
	local, err := embedder.NewLocalProvider(32)
	require.NoError(t, err)
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		EmbeddingProvider:   embedder.ProviderLocal,
		VectorDimension:     32,
		SimilarityThreshold: -1,
		MatchingWeights:     types.DefaultMatchingWeights(),
		EmbeddingCacheTTL:   time.Hour,
		MatchCacheTTL:       time.Hour,
		EmbeddingCacheSize:  100,
		MatchCacheSize:      100,
		DBPath:              ":memory:",
		VectorBackend:       config.BackendSQLite,
		ModelTimeout:        5 * time.Second,
		GraphTimeout:        5 * time.Second,
		EmbeddingWorkers:    2,
		ScoringWorkers:      2,
	}
	eng, err := engine.New(context.Background(), cfg, engine.Options{Storage: store, Model: local})
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	s := newTestServer(t, eng, indexer.New(eng, nil))
	ctx := context.Background()

	_, err = s.handleIngestDataset(ctx, callRequest(map[string]interface{}{
		"dataset": map[string]interface{}{
			"developers": []interface{}{
				map[string]interface{}{
					"id":     "dev-go",
					"bio":    "Go services and distributed systems",
					"skills": []interface{}{map[string]interface{}{"skill": "go", "proficiency": 0.9, "experience_years": 5}},
				},
				map[string]interface{}{
					"id":     "dev-js",
					"bio":    "React front ends",
					"skills": []interface{}{map[string]interface{}{"skill": "react", "proficiency": 0.8, "experience_years": 3}},
				},
			},
		},
	}))
	require.NoError(t, err)

	res, err := s.handleFindMatchingDevelopers(ctx, callRequest(map[string]interface{}{
		"project": map[string]interface{}{
			"id":          "proj-1",
			"description": "Go services and distributed systems",
			"skills":      []interface{}{map[string]interface{}{"skill": "go", "importance": "critical"}},
		},
		"limit": float64(2),
	}))
	require.NoError(t, err)

	out := resultJSON(t, res)
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "dev-go", first["candidate_id"])

	res, err = s.handleGetStatus(ctx, callRequest(nil))
	require.NoError(t, err)
	stats := resultJSON(t, res)["statistics"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["developers"])
}
