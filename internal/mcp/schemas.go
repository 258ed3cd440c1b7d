package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/devmatch-mcp/internal/matcher"
	"github.com/dshills/devmatch-mcp/internal/team"
)

// developerSchema describes a developer profile argument
func developerSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"id":                 map[string]interface{}{"type": "string"},
			"name":               map[string]interface{}{"type": "string"},
			"title":              map[string]interface{}{"type": "string"},
			"bio":                map[string]interface{}{"type": "string"},
			"experience_summary": map[string]interface{}{"type": "string"},
			"github_summary":     map[string]interface{}{"type": "string"},
			"languages": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"skills": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"skill":            map[string]interface{}{"type": "string"},
						"proficiency":      map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 1.0},
						"experience_years": map[string]interface{}{"type": "number", "minimum": 0.0},
					},
					"required": []string{"skill"},
				},
			},
			"availability": map[string]interface{}{
				"type": "string",
				"enum": []string{"available", "partially_available", "busy", "unavailable"},
			},
			"reputation":  map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 100.0},
			"hourly_rate": map[string]interface{}{"type": "number", "minimum": 0.0},
		},
		"required": []string{"id"},
	}
}

// projectSchema describes a project argument
func projectSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "string"},
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"domain":      map[string]interface{}{"type": "string"},
			"industry":    map[string]interface{}{"type": "string"},
			"status":      map[string]interface{}{"type": "string"},
			"skills": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"skill":          map[string]interface{}{"type": "string"},
						"required_level": map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 1.0},
						"importance": map[string]interface{}{
							"type": "string",
							"enum": []string{"nice_to_have", "preferred", "required", "critical"},
						},
						"weight": map[string]interface{}{"type": "number", "minimum": 0.0},
					},
					"required": []string{"skill"},
				},
			},
		},
		"required": []string{"id"},
	}
}

func skillListSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

func limitSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return (1-100)",
		"default":     matcher.DefaultLimit,
		"minimum":     1,
		"maximum":     matcher.MaxLimit,
	}
}

func includeAnalysisSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "If true, attach missing skills, learning time and match confidence to each result",
		"default":     true,
	}
}

// generateEmbeddingTool returns the tool definition for generate_embedding
func generateEmbeddingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_embedding",
		Description: "Embed free text for one aspect, or a whole developer or project profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to embed (used with aspect)",
				},
				"aspect": map[string]interface{}{
					"type":        "string",
					"description": "Aspect the text describes",
					"enum":        []string{"skills", "experience", "github", "description", "requirements", "domain"},
					"default":     "skills",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, bypass the embedding cache",
					"default":     true,
				},
				"developer": developerSchema("Developer profile to embed across all developer aspects"),
				"project":   projectSchema("Project to embed across all project aspects"),
			},
		},
	}
}

// findMatchingDevelopersTool returns the tool definition for find_matching_developers
func findMatchingDevelopersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_matching_developers",
		Description: "Rank stored developers for a project using vector similarity fused with skill-graph compatibility",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project":          projectSchema("Project to staff"),
				"limit":            limitSchema(),
				"include_analysis": includeAnalysisSchema(),
			},
			Required: []string{"project"},
		},
	}
}

// findMatchingProjectsTool returns the tool definition for find_matching_projects
func findMatchingProjectsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_matching_projects",
		Description: "Rank stored projects for a developer using vector similarity fused with skill-graph compatibility",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"developer":        developerSchema("Developer looking for projects"),
				"limit":            limitSchema(),
				"include_analysis": includeAnalysisSchema(),
			},
			Required: []string{"developer"},
		},
	}
}

// calculateSkillCompatibilityTool returns the tool definition for calculate_skill_compatibility
func calculateSkillCompatibilityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "calculate_skill_compatibility",
		Description: "Score a stored developer's skills against a list of required skills using the skill graph",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"developer_id":    map[string]interface{}{"type": "string", "description": "Stored developer id"},
				"required_skills": skillListSchema("Skills the work requires"),
				"weights": map[string]interface{}{
					"type":        "object",
					"description": "Component weights; must be non-negative and sum to 1.0",
					"properties": map[string]interface{}{
						"direct":   map[string]interface{}{"type": "number", "default": 0.4},
						"related":  map[string]interface{}{"type": "number", "default": 0.3},
						"depth":    map[string]interface{}{"type": "number", "default": 0.2},
						"learning": map[string]interface{}{"type": "number", "default": 0.1},
					},
				},
			},
			Required: []string{"developer_id", "required_skills"},
		},
	}
}

// findOptimalTeamTool returns the tool definition for find_optimal_team
func findOptimalTeamTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_optimal_team",
		Description: "Greedily assemble a team of stored developers that covers the required skills",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"required_skills": skillListSchema("Skills the team must cover"),
				"team_size": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum team size",
					"default":     team.DefaultTeamSize,
					"minimum":     1,
				},
				"exclude_ids": skillListSchema("Developer ids that must not be selected"),
			},
			Required: []string{"required_skills"},
		},
	}
}

// upsertDeveloperTool returns the tool definition for upsert_developer
func upsertDeveloperTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_developer",
		Description: "Store a developer profile and its embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"developer": developerSchema("Developer profile to store"),
			},
			Required: []string{"developer"},
		},
	}
}

// upsertProjectTool returns the tool definition for upsert_project
func upsertProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "upsert_project",
		Description: "Store a project and its embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": projectSchema("Project to store"),
			},
			Required: []string{"project"},
		},
	}
}

// deleteEntityTool returns the tool definition for delete_entity
func deleteEntityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_entity",
		Description: "Delete a stored developer or project together with its embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entity_kind": map[string]interface{}{
					"type": "string",
					"enum": []string{"developer", "project"},
				},
				"id": map[string]interface{}{"type": "string"},
			},
			Required: []string{"entity_kind", "id"},
		},
	}
}

// ingestDatasetTool returns the tool definition for ingest_dataset
func ingestDatasetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_dataset",
		Description: "Load skills, skill edges, developers, projects and collaborations from a JSON dataset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSON dataset file",
				},
				"dataset": map[string]interface{}{
					"type":        "object",
					"description": "Inline dataset with skills, skill_edges, developers, projects and collaborations arrays",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Concurrent profile writers (default: number of CPUs)",
					"minimum":     1,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report store counts, embedding model, vector backend and cache sizes",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
