package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/dshills/devmatch-mcp/internal/compat"
	"github.com/dshills/devmatch-mcp/internal/indexer"
	"github.com/dshills/devmatch-mcp/internal/matcher"
	"github.com/dshills/devmatch-mcp/internal/team"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound         = -32001 // Referenced entity is not stored
	ErrorCodeIngestInProgress = -32002 // Another ingest is already running
	ErrorCodeModelUnavailable = -32003 // Embedding backend cannot be reached
	ErrorCodeInvalidWeights   = -32004 // Weight set is negative or does not sum to 1.0
)

// handleGenerateEmbedding handles the generate_embedding tool invocation
func (s *Server) handleGenerateEmbedding(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if _, ok := args["developer"]; ok {
		var dev types.Developer
		if err := decodeArg(args, "developer", &dev); err != nil {
			return nil, err
		}
		profile, err := s.engine.GenerateDeveloperProfileEmbedding(ctx, &dev)
		if err != nil {
			return nil, s.toolError("generate_embedding", err)
		}
		return mcp.NewToolResultText(formatJSON(profileResponse(profile))), nil
	}

	if _, ok := args["project"]; ok {
		var project types.Project
		if err := decodeArg(args, "project", &project); err != nil {
			return nil, err
		}
		profile, err := s.engine.GenerateProjectRequirementEmbedding(ctx, &project)
		if err != nil {
			return nil, s.toolError("generate_embedding", err)
		}
		return mcp.NewToolResultText(formatJSON(profileResponse(profile))), nil
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "one of text, developer or project is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing",
		})
	}
	aspect := types.Aspect(getStringDefault(args, "aspect", string(types.AspectSkills)))
	if !aspect.Valid() || aspect == types.AspectCombined {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid aspect", map[string]interface{}{
			"param": "aspect",
			"value": aspect,
		})
	}
	useCache := getBoolDefault(args, "use_cache", true)

	emb, err := s.engine.GenerateEmbedding(ctx, text, aspect, useCache)
	if err != nil {
		return nil, s.toolError("generate_embedding", err)
	}
	return mcp.NewToolResultText(formatJSON(embeddingResponse(emb))), nil
}

// handleFindMatchingDevelopers handles the find_matching_developers tool invocation
func (s *Server) handleFindMatchingDevelopers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var project types.Project
	if err := decodeArg(args, "project", &project); err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.FindMatchingDevelopers(ctx, &project, limit, getBoolDefault(args, "include_analysis", true))
	if err != nil {
		return nil, s.toolError("find_matching_developers", err)
	}
	return mcp.NewToolResultText(formatJSON(matchResponse(resp))), nil
}

// handleFindMatchingProjects handles the find_matching_projects tool invocation
func (s *Server) handleFindMatchingProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var dev types.Developer
	if err := decodeArg(args, "developer", &dev); err != nil {
		return nil, err
	}
	limit, err := limitArg(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.FindMatchingProjects(ctx, &dev, limit, getBoolDefault(args, "include_analysis", true))
	if err != nil {
		return nil, s.toolError("find_matching_projects", err)
	}
	return mcp.NewToolResultText(formatJSON(matchResponse(resp))), nil
}

// handleCalculateSkillCompatibility handles the calculate_skill_compatibility tool invocation
func (s *Server) handleCalculateSkillCompatibility(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	developerID, ok := args["developer_id"].(string)
	if !ok || strings.TrimSpace(developerID) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "developer_id parameter is required", map[string]interface{}{
			"param":  "developer_id",
			"reason": "missing or empty",
		})
	}
	var required []string
	if err := decodeArg(args, "required_skills", &required); err != nil {
		return nil, err
	}
	var weights *compat.Weights
	if _, ok := args["weights"]; ok {
		weights = &compat.Weights{}
		if err := decodeArg(args, "weights", weights); err != nil {
			return nil, err
		}
	}

	breakdown, err := s.engine.CalculateSkillCompatibility(ctx, developerID, required, weights)
	if err != nil {
		return nil, s.toolError("calculate_skill_compatibility", err)
	}
	return mcp.NewToolResultText(formatJSON(toMap(breakdown))), nil
}

// handleFindOptimalTeam handles the find_optimal_team tool invocation
func (s *Server) handleFindOptimalTeam(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var required []string
	if err := decodeArg(args, "required_skills", &required); err != nil {
		return nil, err
	}
	teamSize := getIntDefault(args, "team_size", team.DefaultTeamSize)
	if teamSize < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "team_size must be at least 1", map[string]interface{}{
			"param": "team_size",
			"value": teamSize,
		})
	}
	var exclude []string
	if _, ok := args["exclude_ids"]; ok {
		if err := decodeArg(args, "exclude_ids", &exclude); err != nil {
			return nil, err
		}
	}

	composition, err := s.engine.FindOptimalTeam(ctx, required, teamSize, exclude)
	if err != nil {
		return nil, s.toolError("find_optimal_team", err)
	}
	return mcp.NewToolResultText(formatJSON(toMap(composition))), nil
}

// handleUpsertDeveloper handles the upsert_developer tool invocation
func (s *Server) handleUpsertDeveloper(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var dev types.Developer
	if err := decodeArg(args, "developer", &dev); err != nil {
		return nil, err
	}
	result, err := s.engine.UpsertDeveloper(ctx, &dev)
	if err != nil {
		return nil, s.toolError("upsert_developer", err)
	}
	return mcp.NewToolResultText(formatJSON(toMap(result))), nil
}

// handleUpsertProject handles the upsert_project tool invocation
func (s *Server) handleUpsertProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var project types.Project
	if err := decodeArg(args, "project", &project); err != nil {
		return nil, err
	}
	result, err := s.engine.UpsertProject(ctx, &project)
	if err != nil {
		return nil, s.toolError("upsert_project", err)
	}
	return mcp.NewToolResultText(formatJSON(toMap(result))), nil
}

// handleDeleteEntity handles the delete_entity tool invocation
func (s *Server) handleDeleteEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	var err error
	kind := types.EntityKind(getStringDefault(args, "entity_kind", ""))
	switch kind {
	case types.EntityDeveloper:
		err = s.engine.DeleteDeveloper(ctx, id)
	case types.EntityProject:
		err = s.engine.DeleteProject(ctx, id)
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid entity_kind", map[string]interface{}{
			"param":   "entity_kind",
			"value":   kind,
			"allowed": []string{string(types.EntityDeveloper), string(types.EntityProject)},
		})
	}
	if err != nil {
		return nil, s.toolError("delete_entity", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":     true,
		"entity_kind": kind,
		"id":          id,
	})), nil
}

// handleIngestDataset handles the ingest_dataset tool invocation
func (s *Server) handleIngestDataset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	config := &indexer.Config{Workers: getIntDefault(args, "workers", 0)}

	var (
		stats *indexer.Statistics
		err   error
	)
	if path, ok := args["path"].(string); ok && path != "" {
		if !filepath.IsAbs(path) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": ErrPathNotAbsolute.Error(),
			})
		}
		stats, err = s.indexer.IngestFile(ctx, path, config)
	} else if _, ok := args["dataset"]; ok {
		var ds indexer.Dataset
		if derr := decodeArg(args, "dataset", &ds); derr != nil {
			return nil, derr
		}
		stats, err = s.indexer.Ingest(ctx, &ds, config)
	} else {
		return nil, newMCPError(ErrorCodeInvalidParams, "path or dataset parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err != nil {
		return nil, s.toolError("ingest_dataset", err)
	}

	response := map[string]interface{}{
		"ingested":              true,
		"skills_stored":         stats.SkillsStored,
		"edges_stored":          stats.EdgesStored,
		"developers_indexed":    stats.DevelopersIndexed,
		"projects_indexed":      stats.ProjectsIndexed,
		"collaborations_stored": stats.CollaborationsStored,
		"ids_assigned":          stats.IDsAssigned,
		"not_embedded":          stats.NotEmbedded,
		"failed":                stats.Failed,
		"duration_ms":           stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, s.toolError("get_status", err)
	}

	response := map[string]interface{}{
		"embedding": map[string]interface{}{
			"provider":   status.Provider,
			"model":      status.Model,
			"dimension":  status.Dimension,
			"cache_size": status.EmbeddingCacheSize,
		},
		"matching": map[string]interface{}{
			"vector_backend":       status.VectorBackend,
			"similarity_threshold": status.SimilarityThresh,
			"weights":              status.MatchingWeights,
			"cache_size":           status.MatchCacheSize,
		},
	}
	if st := status.Storage; st != nil {
		response["statistics"] = map[string]interface{}{
			"developers":       st.Developers,
			"projects":         st.Projects,
			"skills":           st.Skills,
			"skill_edges":      st.SkillEdges,
			"embeddings":       st.Embeddings,
			"collaborations":   st.Collaborations,
			"database_size_mb": fmt.Sprintf("%.2f", st.DatabaseSizeMB),
			"schema_version":   st.SchemaVersion,
			"build_mode":       st.BuildMode,
		}
		response["health"] = map[string]interface{}{
			"database_accessible":        st.Health.DatabaseAccessible,
			"embeddings_available":       st.Health.EmbeddingsAvailable,
			"vector_extension_available": st.Health.VectorExtensionAvailable,
		}
	}
	if s.indexer != nil {
		response["ingest_in_progress"] = s.indexer.Busy()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError maps an engine error onto an MCP error code
func (s *Server) toolError(tool string, err error) error {
	code := ErrorCodeInternalError
	message := tool + " failed"
	switch {
	case errors.Is(err, types.ErrInvalidWeights):
		code, message = ErrorCodeInvalidWeights, "invalid weights"
	case errors.Is(err, types.ErrNotFound):
		code, message = ErrorCodeNotFound, "entity not found"
	case errors.Is(err, indexer.ErrIngestInProgress):
		code, message = ErrorCodeIngestInProgress, "ingest already in progress"
	case errors.Is(err, types.ErrModelUnavailable):
		code, message = ErrorCodeModelUnavailable, "embedding model unavailable"
	case isValidationError(err):
		code, message = ErrorCodeInvalidParams, "invalid parameters"
	}
	if code == ErrorCodeInternalError {
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		types.ErrMissingID,
		types.ErrInvalidProficiency,
		types.ErrInvalidExperience,
		types.ErrInvalidStrength,
		types.ErrInvalidEdgeType,
		types.ErrInvalidImportance,
		types.ErrInvalidReputation,
		types.ErrInvalidAvailability,
		types.ErrEmptySkillName,
		types.ErrDimensionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// decodeArg decodes args[key] into out, rejecting unknown fields
func decodeArg(args map[string]interface{}, key string, out interface{}) error {
	raw, ok := args[key]
	if !ok || raw == nil {
		return newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing",
		})
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return newMCPError(ErrorCodeInternalError, "failed to build decoder", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := decoder.Decode(raw); err != nil {
		return newMCPError(ErrorCodeInvalidParams, "invalid "+key, map[string]interface{}{
			"param":  key,
			"reason": err.Error(),
		})
	}
	return nil
}

// limitArg reads and bounds the limit parameter
func limitArg(args map[string]interface{}) (int, error) {
	limit := getIntDefault(args, "limit", matcher.DefaultLimit)
	if limit < 1 || limit > matcher.MaxLimit {
		return 0, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	return limit, nil
}

func embeddingResponse(emb *types.Embedding) map[string]interface{} {
	return map[string]interface{}{
		"aspect":    emb.ContentType,
		"dimension": emb.Dimension,
		"provider":  emb.Provider,
		"model":     emb.Model,
		"vector":    emb.Vector,
	}
}

func profileResponse(p *types.MultiAspectEmbedding) map[string]interface{} {
	aspects := make(map[string]interface{}, len(p.Aspects))
	for aspect, emb := range p.Aspects {
		aspects[string(aspect)] = emb.Vector
	}
	response := map[string]interface{}{
		"entity_kind": p.EntityKind,
		"entity_id":   p.EntityID,
		"dimension":   len(p.Combined),
		"aspects":     aspects,
		"combined":    p.Combined,
	}
	if len(p.Degraded) > 0 {
		response["degraded_aspects"] = p.Degraded
	}
	return response
}

func matchResponse(resp *matcher.Response) map[string]interface{} {
	response := toMap(resp)
	response["duration_ms"] = resp.Duration.Milliseconds()
	delete(response, "duration")
	return response
}

// toMap round-trips v through its JSON form so responses share one encoder path
func toMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return m
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
)
