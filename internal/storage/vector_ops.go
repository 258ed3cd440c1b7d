package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshills/devmatch-mcp/internal/similarity"
	"github.com/dshills/devmatch-mcp/pkg/types"
)

// searchVectors ranks the combined vectors of kind against query. Only vectors
// with the query's dimension (and model, when set) are considered.
func searchVectors(ctx context.Context, q querier, kind types.EntityKind, query []float32, threshold float64, limit int, model string) ([]similarity.Match, error) {
	if len(query) == 0 {
		return []similarity.Match{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available. A zero query
	// has no direction for vec_distance_cosine, so it always takes the Go path.
	if VectorExtensionAvailable && !isZeroVector(query) {
		return searchVectorsOptimized(ctx, q, kind, query, threshold, limit, model)
	}
	// Fall back to Go-based computation for purego builds
	return searchVectorsFallback(ctx, q, kind, query, threshold, limit, model)
}

// searchVectorsOptimized uses sqlite-vec extension for SQL-based vector similarity search
func searchVectorsOptimized(ctx context.Context, q querier, kind types.EntityKind, query []float32, threshold float64, limit int, model string) ([]similarity.Match, error) {
	blob := serializeVector(query)

	// vec_distance_cosine returns distance (lower is better); stored zero
	// vectors score 0 to match similarity.Cosine.
	inner := `
		SELECT
			entity_id,
			CASE WHEN is_zero = 1 THEN 0.0 ELSE 1.0 - vec_distance_cosine(vector, ?) END AS score
		FROM embeddings
		WHERE entity_kind = ? AND aspect = ? AND dimension = ?
	`
	args := []interface{}{blob, string(kind), string(types.AspectCombined), len(query)}
	if model != "" {
		inner += " AND model = ?"
		args = append(args, model)
	}

	sqlQuery := "SELECT entity_id, score FROM (" + inner + ") WHERE score >= ? ORDER BY score DESC, entity_id ASC"
	args = append(args, threshold)
	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Results are already sorted and filtered
	matches := make([]similarity.Match, 0)
	for rows.Next() {
		var m similarity.Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		m.Score = math.Max(-1, math.Min(1, m.Score))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Clamping can create new ties; restore the id tie-break.
	similarity.SortMatches(matches)
	return matches, nil
}

// searchVectorsFallback performs vector search using Go-based cosine similarity computation
// This is used when sqlite-vec extension is not available (purego builds)
func searchVectorsFallback(ctx context.Context, q querier, kind types.EntityKind, query []float32, threshold float64, limit int, model string) ([]similarity.Match, error) {
	sqlQuery := `
		SELECT entity_id, vector
		FROM embeddings
		WHERE entity_kind = ? AND aspect = ? AND dimension = ?
	`
	args := []interface{}{string(kind), string(types.AspectCombined), len(query)}
	if model != "" {
		sqlQuery += " AND model = ?"
		args = append(args, model)
	}

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	corpus := make([]similarity.Entry, 0)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		corpus = append(corpus, similarity.Entry{ID: id, Vector: deserializeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return similarity.Search(query, corpus, threshold, limit), nil
}

// serializeVector converts float32 slice to bytes
func serializeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts bytes to float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
