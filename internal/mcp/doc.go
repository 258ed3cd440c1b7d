// Package mcp implements the Model Context Protocol (MCP) server for DevMatch.
//
// The MCP server exposes the matching engine to AI assistants:
//   - generate_embedding: Embed text for one aspect, or a whole profile
//   - find_matching_developers: Rank stored developers for a project
//   - find_matching_projects: Rank stored projects for a developer
//   - calculate_skill_compatibility: Skill-graph score of one developer
//   - find_optimal_team: Greedy team selection over stored developers
//   - upsert_developer, upsert_project: Store a record with its embeddings
//   - delete_entity: Remove a stored developer or project
//   - ingest_dataset: Bulk load a JSON dataset
//   - get_status: Store counts, model identity and cache sizes
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	devmatch serve
//
// # Tool: find_matching_developers
//
//	Request:
//	{
//	  "name": "find_matching_developers",
//	  "arguments": {
//	    "project": {
//	      "id": "proj-42",
//	      "description": "Payments gateway in Go",
//	      "skills": [{"skill": "go", "importance": "critical"}]
//	    },
//	    "limit": 10,
//	    "include_analysis": true
//	  }
//	}
//
//	Response:
//	{
//	  "query_type": "developers_for_project",
//	  "subject_id": "proj-42",
//	  "results": [
//	    {
//	      "candidate_id": "dev-7",
//	      "rank": 1,
//	      "vector_score": 0.81,
//	      "graph_score": 0.64,
//	      "final_score": 0.77,
//	      "analysis": {"missing_skills": [], "learning_time": "immediate", ...}
//	    }
//	  ],
//	  "degraded": false,
//	  "cache_hit": false,
//	  "duration_ms": 12
//	}
//
// A response with "degraded": true carries a "reason" and may hold fewer
// results; it is never cached.
//
// # Argument Decoding
//
// Object arguments (developer, project, weights, dataset) are decoded with
// mapstructure using the same field names as the JSON dataset format. Unknown
// fields are rejected and numeric strings are accepted.
//
// # Error Handling
//
// Tool errors are returned as MCPError values with JSON-RPC error codes:
//   - -32602: Invalid parameters (missing field, bad limit, failed validation)
//   - -32603: Internal error
//   - -32001: Entity not found
//   - -32002: Ingest already in progress
//   - -32003: Embedding model unavailable
//   - -32004: Invalid weights
//
// The Data field holds the parameter name and the reason or the underlying
// error text.
package mcp
